// File: api/types.go
// Author: momentics <momentics@gmail.com>
//
// Shared API-level type declarations, DTOs, and constants for the RPC
// runtime: session roles/states, slot states, handler classification, and
// the packet/endpoint descriptors the transport adapter exchanges.

package api

import "time"

// Role identifies whether a session was opened (Client) or accepted (Server).
type Role int

const (
	RoleClient Role = iota
	RoleServer
)

func (r Role) String() string {
	if r == RoleServer {
		return "server"
	}
	return "client"
}

// SessionState enumerates the session management state machine's states.
type SessionState int

const (
	StateConnectInProgress SessionState = iota
	StateConnected
	StateDisconnectWaitForConnect
	StateDisconnectInProgress
	StateDisconnected
	StateError
)

func (s SessionState) String() string {
	switch s {
	case StateConnectInProgress:
		return "connect_in_progress"
	case StateConnected:
		return "connected"
	case StateDisconnectWaitForConnect:
		return "disconnect_wait_for_connect"
	case StateDisconnectInProgress:
		return "disconnect_in_progress"
	case StateDisconnected:
		return "disconnected"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// InRetrySet reports whether sessions in this state belong in the SM retry set.
func (s SessionState) InRetrySet() bool {
	switch s {
	case StateConnectInProgress, StateDisconnectWaitForConnect, StateDisconnectInProgress:
		return true
	default:
		return false
	}
}

// SlotState enumerates the lifecycle of a single request window slot.
type SlotState int

const (
	SlotFree SlotState = iota
	SlotTxInProgress
	SlotAwaitingResp
	SlotRespReceived
)

func (s SlotState) String() string {
	switch s {
	case SlotFree:
		return "free"
	case SlotTxInProgress:
		return "tx_in_progress"
	case SlotAwaitingResp:
		return "awaiting_resp"
	case SlotRespReceived:
		return "resp_received"
	default:
		return "unknown"
	}
}

// HandlerType classifies how a registered request handler is dispatched.
type HandlerType int

const (
	// FgTerminal runs inline and never issues nested requests.
	FgTerminal HandlerType = iota
	// FgNonterminal runs inline and may issue nested requests.
	FgNonterminal
	// Background runs on a worker thread outside the Endpoint's own goroutine.
	Background
)

func (h HandlerType) String() string {
	switch h {
	case FgTerminal:
		return "fg_terminal"
	case FgNonterminal:
		return "fg_nonterminal"
	case Background:
		return "background"
	default:
		return "unknown"
	}
}

// PacketType enumerates the wire packet kinds the transport adapter carries.
type PacketType uint8

const (
	PktSmallReq PacketType = iota
	PktSmallResp
	PktBigReqFirst
	PktBigReqLater
	PktBigRespFirst
	PktBigRespLater
	PktExplicitCreditReturn
)

// EndpointDesc identifies one side of a session: host, bootstrap port, and a
// transport-specific routing token (e.g. queue-pair number, NIC port index).
type EndpointDesc struct {
	Hostname string
	Port     uint16
	RouteTag uint32
}

// Packet is a single on-the-wire RPC data packet, as opposed to a session
// management packet (see the sm package for those).
type Packet struct {
	SessionNum uint32
	MsgNum     uint64
	PktNum     uint32
	PktType    PacketType
	Payload    []byte
}

// OutPacket pairs a packet with its destination so the transport adapter does
// not need to resolve routing itself.
type OutPacket struct {
	Dest EndpointDesc
	Pkt  Packet
}

// MemRegHandle is the opaque result of registering a buffer with the
// transport's memory-registration path (e.g. an RDMA memory region).
type MemRegHandle struct {
	Opaque any
}

// CompletionHandle identifies one outstanding transmit request so the caller
// can correlate a later completion notification.
type CompletionHandle struct {
	ID uint64
}

// APIMetrics provides a standard layout for runtime health/statistics reporting.
type APIMetrics struct {
	NumSessions     int
	NumMessages     int
	InboundTraffic  uint64 // bytes received
	OutboundTraffic uint64 // bytes sent
	StartedAt       time.Time
}

// ServiceInfo exposes descriptive build- and runtime info for external tools.
type ServiceInfo struct {
	Name      string
	Version   string
	Build     string
	StartedAt time.Time
}
