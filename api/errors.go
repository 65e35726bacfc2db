// Package api
// Author: momentics <momentics@gmail.com>
//
// Common error types shared across the RPC runtime. Mirrors the error
// kinds named by the session, request/response, and pacing subsystems so
// callers can switch on Code without depending on package internals.

package api

import "fmt"

// ErrorCode enumerates the error kinds the runtime surfaces to callers.
type ErrorCode int

const (
	ErrCodeOK ErrorCode = iota
	ErrCodeNoMem
	ErrCodeNoSlot
	ErrCodeSessionState
	ErrCodeSessionDisconnected
	ErrCodeSMTimeout
	ErrCodeSMRejected
	ErrCodeWheelHorizon
	ErrCodeHandlerExists
	ErrCodeResolve
	ErrCodeInternal
)

// Error is a structured error carrying a code and optional context.
type Error struct {
	Code    ErrorCode
	Message string
	Context map[string]any
}

func (e *Error) Error() string {
	if len(e.Context) == 0 {
		return e.Message
	}
	return fmt.Sprintf("%s (context: %+v)", e.Message, e.Context)
}

// NewError creates a structured error with empty context.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WithContext returns a copy of e with key/value merged into its context.
// Sentinel errors below are shared package-level values, so this never
// mutates the receiver.
func (e *Error) WithContext(key string, value any) *Error {
	ctx := make(map[string]any, len(e.Context)+1)
	for k, v := range e.Context {
		ctx[k] = v
	}
	ctx[key] = value
	return &Error{Code: e.Code, Message: e.Message, Context: ctx}
}

// Sentinel errors named in the runtime's error handling design.
var (
	ErrNoMem               = NewError(ErrCodeNoMem, "allocation failed")
	ErrNoSlot              = NewError(ErrCodeNoSlot, "request window full")
	ErrSessionState        = NewError(ErrCodeSessionState, "operation forbidden in current session state")
	ErrSessionDisconnected = NewError(ErrCodeSessionDisconnected, "peer session disconnected")
	ErrSMTimeout           = NewError(ErrCodeSMTimeout, "session management handshake timed out")
	ErrWheelHorizon        = NewError(ErrCodeWheelHorizon, "deadline exceeds wheel horizon")
	ErrHandlerExists       = NewError(ErrCodeHandlerExists, "request type already registered")
	ErrResolve             = NewError(ErrCodeResolve, "failed to resolve remote endpoint")
)

// SMRejectReason is the subcode carried by a rejected session management request.
type SMRejectReason int

const (
	SMRejectVersionMismatch SMRejectReason = iota
	SMRejectUnknownHandler
	SMRejectResourceExhausted
)

func (r SMRejectReason) String() string {
	switch r {
	case SMRejectVersionMismatch:
		return "version_mismatch"
	case SMRejectUnknownHandler:
		return "unknown_handler"
	case SMRejectResourceExhausted:
		return "resource_exhausted"
	default:
		return "unknown"
	}
}

// NewSMRejected builds an ErrCodeSMRejected error carrying reason as context.
func NewSMRejected(reason SMRejectReason) *Error {
	return (&Error{Code: ErrCodeSMRejected, Message: "peer rejected session management request"}).
		WithContext("reason", reason)
}
