// File: session/statemachine.go
// Author: momentics <momentics@gmail.com>
//
// The session management state machine's transition table, kept pure: it
// only mutates Session.State and reports the Actions the caller (rpc/sm)
// must carry out. No packet is sent and no retry-set entry is touched here.

package session

import "github.com/chlin501/eRPC/api"

// Action is a side effect the state machine requires its caller to perform.
type Action int

const (
	ActionSendConnectReq Action = iota
	ActionSendDisconnectReq
	ActionAddRetry
	ActionRemoveRetry
	ActionNotifyConnected
	ActionNotifyError
	ActionNotifyDisconnected
)

// Event is an SM input: either a peer reply or a local request.
type Event int

const (
	EventConnectRespAccept Event = iota
	EventConnectRespReject
	EventDestroy
	EventDisconnectResp
)

// Transition applies ev to the session's current state and returns the
// actions the caller must take, or api.ErrSessionState if ev is not valid
// from the session's current state.
func (s *Session) Transition(ev Event) ([]Action, error) {
	switch s.State {
	case api.StateConnectInProgress:
		switch ev {
		case EventConnectRespAccept:
			s.State = api.StateConnected
			return []Action{ActionRemoveRetry, ActionNotifyConnected}, nil
		case EventConnectRespReject:
			s.State = api.StateError
			return []Action{ActionRemoveRetry, ActionNotifyError}, nil
		case EventDestroy:
			s.State = api.StateDisconnectWaitForConnect
			return nil, nil
		}

	case api.StateDisconnectWaitForConnect:
		switch ev {
		case EventConnectRespAccept:
			s.State = api.StateDisconnectInProgress
			return []Action{ActionSendDisconnectReq}, nil
		case EventConnectRespReject:
			s.State = api.StateDisconnected
			return []Action{ActionRemoveRetry, ActionNotifyDisconnected}, nil
		}

	case api.StateConnected:
		switch ev {
		case EventDestroy:
			s.State = api.StateDisconnectInProgress
			return []Action{ActionSendDisconnectReq, ActionAddRetry}, nil
		}

	case api.StateDisconnectInProgress:
		switch ev {
		case EventDisconnectResp:
			s.State = api.StateDisconnected
			return []Action{ActionRemoveRetry, ActionNotifyDisconnected}, nil
		}
	}
	return nil, api.ErrSessionState.
		WithContext("state", s.State.String()).
		WithContext("event", int(ev))
}
