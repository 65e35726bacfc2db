// File: api/transport.go
// Package api defines the transport adapter contract the rpc engine
// consumes. Concrete transports (RDMA verbs, DPDK, raw UDP) satisfy this
// interface; their internals are out of scope for this module — see the
// transport package for a reference implementation.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package api

// Transport abstracts packet TX/RX and memory registration over a concrete
// network fabric. All methods are non-blocking.
type Transport interface {
	// RegisterMemory registers buf for zero-copy transmission/reception.
	RegisterMemory(buf []byte) (MemRegHandle, error)

	// DeregisterMemory releases a previously registered region.
	DeregisterMemory(h MemRegHandle) error

	// TxBurst submits up to len(pkts) packets without blocking. It returns
	// one CompletionHandle per accepted packet, in order; a short return
	// means only the first N packets were accepted.
	TxBurst(pkts []OutPacket) ([]CompletionHandle, error)

	// RxBurst polls for newly received packets without blocking.
	RxBurst() ([]Packet, error)

	// TxFlush forces any batched doorbells/submissions out immediately.
	TxFlush() error
}

// TransportFeatures advertises a transport implementation's capabilities.
type TransportFeatures struct {
	ZeroCopy bool
	Batch    bool
	OS       []string
}
