// File: transport/loopback.go
// Author: momentics <momentics@gmail.com>
//
// LoopbackAdapter is an in-process api.Transport: packets handed to TxBurst
// land directly in a peer LoopbackAdapter's RxBurst queue. It exists to
// drive the engine's own tests without a real NIC, the same role the
// teacher's reactor package fills with an in-memory EventReactor for unit
// tests of code that would otherwise need epoll.

package transport

import (
	"sync"

	"github.com/chlin501/eRPC/api"
)

// LoopbackAdapter implements api.Transport by handing packets directly to a
// paired peer adapter's receive queue.
type LoopbackAdapter struct {
	mu       sync.Mutex
	rx       []api.Packet
	peer     *LoopbackAdapter
	nextCH   uint64
	mrNextID uint64
}

// NewLoopbackPair returns two adapters wired to each other: packets sent by
// a are received by b, and vice versa.
func NewLoopbackPair() (a, b *LoopbackAdapter) {
	a = &LoopbackAdapter{}
	b = &LoopbackAdapter{}
	a.peer = b
	b.peer = a
	return a, b
}

// RegisterMemory is a no-op for the loopback adapter; it hands back an
// opaque handle wrapping a monotonic counter.
func (l *LoopbackAdapter) RegisterMemory(buf []byte) (api.MemRegHandle, error) {
	l.mu.Lock()
	l.mrNextID++
	id := l.mrNextID
	l.mu.Unlock()
	return api.MemRegHandle{Opaque: id}, nil
}

// DeregisterMemory is a no-op for the loopback adapter.
func (l *LoopbackAdapter) DeregisterMemory(api.MemRegHandle) error { return nil }

// TxBurst delivers a copy of every packet straight to the peer's receive
// queue and returns one synthetic completion handle per packet. The payload
// is copied, so the caller may reuse its buffer once TxBurst returns.
func (l *LoopbackAdapter) TxBurst(pkts []api.OutPacket) ([]api.CompletionHandle, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	chs := make([]api.CompletionHandle, 0, len(pkts))
	for _, op := range pkts {
		l.nextCH++
		chs = append(chs, api.CompletionHandle{ID: l.nextCH})

		pkt := op.Pkt
		pkt.Payload = append([]byte(nil), op.Pkt.Payload...)
		l.peer.mu.Lock()
		l.peer.rx = append(l.peer.rx, pkt)
		l.peer.mu.Unlock()
	}
	return chs, nil
}

// RxBurst drains and returns all packets queued for this adapter.
func (l *LoopbackAdapter) RxBurst() ([]api.Packet, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.rx) == 0 {
		return nil, nil
	}
	out := l.rx
	l.rx = nil
	return out, nil
}

// TxFlush is a no-op: TxBurst already delivered synchronously.
func (l *LoopbackAdapter) TxFlush() error { return nil }

// Features reports the loopback adapter's (trivial) capabilities.
func (l *LoopbackAdapter) Features() api.TransportFeatures {
	return api.TransportFeatures{ZeroCopy: false, Batch: true, OS: []string{"any"}}
}
