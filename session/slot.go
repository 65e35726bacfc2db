// File: session/slot.go
// Author: momentics <momentics@gmail.com>
//
// A single entry of a session's fixed-size request window.

package session

import "github.com/chlin501/eRPC/api"

// Slot is one in-flight RPC on a session's request window.
type Slot struct {
	Index int
	State api.SlotState

	// Seq is bumped every time the slot returns to Free. Packets are not
	// tagged with it; the rpc engine matches responses to slots by MsgNum.
	Seq uint64

	// MsgNum correlates an in-flight client request with its eventual
	// response, since several slots on one session may be AwaitingResp at
	// once.
	MsgNum uint64

	// ReqMsgBuf is the client's outbound request buffer (user-owned) while
	// the slot is TxInProgress/AwaitingResp, or the runtime-owned inbound
	// request buffer on the server side.
	ReqMsgBuf *api.MsgBuffer

	// Continuation and Tag are set on the client side at enqueue_request
	// time and invoked once a response arrives.
	Continuation api.Continuation
	Tag          uint64

	// ReqHandle is set on the server side while a handler holds the request.
	ReqHandle *api.RequestHandle
}

func freeSlot(index int, seq uint64) Slot {
	return Slot{Index: index, State: api.SlotFree, Seq: seq}
}
