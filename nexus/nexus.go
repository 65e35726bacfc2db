// File: nexus/nexus.go
// Author: momentics <momentics@gmail.com>
//
// Nexus is the process-wide registry: it measures CPU frequency once, owns
// the SM bootstrap UDP socket, holds the immutable-once-built handler
// registration table, and demultiplexes inbound SM packets to the Endpoint
// that owns the session they name. Nexus depends only on api and sm, never
// on rpc — EndpointSink is defined here so an Endpoint can register itself
// without creating an import cycle.

package nexus

import (
	"net"
	"sync"
	"time"

	"github.com/chlin501/eRPC/api"
	"github.com/chlin501/eRPC/sm"
)

// EndpointSink receives SM packets demultiplexed for sessions it owns.
type EndpointSink interface {
	DeliverSM(pkt *sm.Packet, from *net.UDPAddr)
}

// HandlerEntry pairs a registered request handler with its dispatch type.
type HandlerEntry struct {
	Type api.HandlerType
	Fn   api.ReqFunc
}

// Nexus is the process-wide RPC registry and SM bootstrap socket owner.
type Nexus struct {
	mu sync.RWMutex

	freqHz uint64
	socket *sm.Socket

	handlers map[uint16]HandlerEntry

	acceptSink EndpointSink
	sinks      map[uint32]EndpointSink
}

// New opens the SM bootstrap socket at bootstrapAddr and calibrates the
// clock frequency over calibrateFor (pass 0 to skip calibration sleep and
// default to the trivial 1GHz nanosecond-clock frequency).
func New(bootstrapAddr string, calibrateFor time.Duration) (*Nexus, error) {
	sock, err := sm.Listen(bootstrapAddr)
	if err != nil {
		return nil, err
	}
	freq := uint64(1_000_000_000)
	if calibrateFor > 0 {
		freq = CalibrateFreqHz(calibrateFor)
	}
	return &Nexus{
		freqHz:   freq,
		socket:   sock,
		handlers: make(map[uint16]HandlerEntry),
		sinks:    make(map[uint32]EndpointSink),
	}, nil
}

// Close releases the bootstrap socket.
func (n *Nexus) Close() error { return n.socket.Close() }

// BootstrapAddr returns the SM socket's bound local address, letting a
// caller that listened on port 0 discover the assigned port.
func (n *Nexus) BootstrapAddr() *net.UDPAddr { return n.socket.LocalAddr() }

// FreqHz returns the calibrated clock frequency.
func (n *Nexus) FreqHz() uint64 { return n.freqHz }

// RegisterHandler adds reqType's handler. It fails with api.ErrHandlerExists
// if reqType is already registered.
func (n *Nexus) RegisterHandler(reqType uint16, typ api.HandlerType, fn api.ReqFunc) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if _, exists := n.handlers[reqType]; exists {
		return api.ErrHandlerExists.WithContext("req_type", reqType)
	}
	n.handlers[reqType] = HandlerEntry{Type: typ, Fn: fn}
	return nil
}

// Handler looks up reqType's registered handler.
func (n *Nexus) Handler(reqType uint16) (HandlerEntry, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	h, ok := n.handlers[reqType]
	return h, ok
}

// RegisterAcceptSink designates sink as the receiver of inbound ConnectReq
// packets that don't yet belong to any known session (i.e. new incoming
// connections at a server Endpoint).
func (n *Nexus) RegisterAcceptSink(sink EndpointSink) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.acceptSink = sink
}

// RegisterSink associates localSessionNum with sink so SM packets naming
// that session are routed to it.
func (n *Nexus) RegisterSink(localSessionNum uint32, sink EndpointSink) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sinks[localSessionNum] = sink
}

// UnregisterSink removes a session's routing entry.
func (n *Nexus) UnregisterSink(localSessionNum uint32) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.sinks, localSessionNum)
}

// SendSM encodes and sends pkt to dst over the bootstrap socket.
func (n *Nexus) SendSM(pkt *sm.Packet, dst *net.UDPAddr) error {
	return n.socket.SendTo(pkt, dst)
}

func (n *Nexus) lookupSink(pkt *sm.Packet) (EndpointSink, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	switch pkt.Type {
	case sm.PktConnectReq:
		if n.acceptSink != nil {
			return n.acceptSink, true
		}
		return nil, false
	case sm.PktConnectResp, sm.PktDisconnectResp:
		sink, ok := n.sinks[pkt.ClientSessionNum]
		return sink, ok
	case sm.PktDisconnectReq:
		sink, ok := n.sinks[pkt.ServerSessionNum]
		return sink, ok
	default:
		return nil, false
	}
}

// PumpSM drains every currently pending SM packet and routes each to its
// owning Endpoint's sink. It never blocks.
func (n *Nexus) PumpSM() error {
	for {
		pkt, from, err := n.socket.TryRecv()
		if err != nil {
			return err
		}
		if pkt == nil {
			return nil
		}
		if sink, ok := n.lookupSink(pkt); ok {
			sink.DeliverSM(pkt, from)
		}
	}
}
