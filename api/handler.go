// File: api/handler.go
// Package api defines the request/response handle types and callback
// signatures shared between the rpc engine and application code.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package api

// ReqFunc is a registered request handler. It MUST call EnqueueResponse on
// the handle exactly once, synchronously or later (including after issuing
// nested requests), per the handler's registered HandlerType.
type ReqFunc func(h *RequestHandle)

// Continuation is invoked when a response arrives for a request this
// endpoint issued. It MUST call Release on the handle exactly once.
type Continuation func(resp *ResponseHandle, tag uint64)

// RequestHandle is delivered to a request handler. ReqMsgBuf is runtime-
// owned and valid until EnqueueResponse is called. PreallocResp is a small
// preallocated response buffer the handler may write into directly; if the
// handler instead sets DynResp and clears PreallocUsed, the runtime frees
// DynResp after the response is transmitted.
type RequestHandle struct {
	ReqMsgBuf    *MsgBuffer
	PreallocResp *MsgBuffer
	DynResp      *MsgBuffer
	PreallocUsed bool

	enqueueFn func(*RequestHandle)
	enqueued  bool
}

// NewRequestHandle constructs a RequestHandle. enqueueFn is invoked exactly
// once by EnqueueResponse and is where the rpc package hooks transmission.
func NewRequestHandle(reqMsgBuf, preallocResp *MsgBuffer, enqueueFn func(*RequestHandle)) *RequestHandle {
	return &RequestHandle{
		ReqMsgBuf:    reqMsgBuf,
		PreallocResp: preallocResp,
		PreallocUsed: true,
		enqueueFn:    enqueueFn,
	}
}

// EnqueueResponse transmits the handler's response. Calling it twice is a
// programming error and panics, per the runtime's fatal-invariant policy.
func (h *RequestHandle) EnqueueResponse() {
	if h.enqueued {
		panic("api: enqueue_response called twice on the same request handle")
	}
	h.enqueued = true
	if h.enqueueFn != nil {
		h.enqueueFn(h)
	}
}

// ResponseHandle is delivered to a continuation. RespMsgBuf remains valid
// until Release is called; until then the slot that produced this response
// cannot be reused.
type ResponseHandle struct {
	RespMsgBuf *MsgBuffer

	releaseFn func()
	released  bool
}

// NewResponseHandle constructs a ResponseHandle. releaseFn is invoked
// exactly once by Release and is where the rpc package frees the response
// buffer and returns the slot to Free.
func NewResponseHandle(respMsgBuf *MsgBuffer, releaseFn func()) *ResponseHandle {
	return &ResponseHandle{RespMsgBuf: respMsgBuf, releaseFn: releaseFn}
}

// Release returns the response handle's slot to the pool. Calling it twice
// is a programming error and panics.
func (r *ResponseHandle) Release() {
	if r.released {
		panic("api: release_response called twice on the same response handle")
	}
	r.released = true
	if r.releaseFn != nil {
		r.releaseFn()
	}
}
