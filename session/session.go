// File: session/session.go
// Author: momentics <momentics@gmail.com>
//
// Session identifies a logical bidirectional RPC channel: its role, state,
// the two endpoint descriptors, session numbers, and its fixed-size request
// window. Session carries no I/O: callers (the rpc and sm packages) drive
// wire transmission from the Action lists Transition returns.

package session

import "github.com/chlin501/eRPC/api"

// Session is one logical RPC channel and its request window.
type Session struct {
	Role  api.Role
	State api.SessionState

	Local  api.EndpointDesc
	Remote api.EndpointDesc

	LocalSessionNum  uint32
	RemoteSessionNum uint32

	// Generation is recorded as supplied by the caller. The rpc Endpoint
	// never reuses a LocalSessionNum and always passes 0, and no packet path
	// compares Generation, so it does not reject stale packets.
	Generation uint32

	Slots []Slot
}

func newSession(role api.Role, windowSize int, local, remote api.EndpointDesc, localNum, generation uint32) *Session {
	slots := make([]Slot, windowSize)
	for i := range slots {
		slots[i] = freeSlot(i, 0)
	}
	return &Session{
		Role:            role,
		Local:           local,
		Remote:          remote,
		LocalSessionNum: localNum,
		Generation:      generation,
		Slots:           slots,
	}
}

// NewClientSession constructs a session in ConnectInProgress and returns the
// actions the caller must perform immediately (send ConnectReq, register the
// session in the SM retry set).
func NewClientSession(windowSize int, local, remote api.EndpointDesc, localNum, generation uint32) (*Session, []Action) {
	s := newSession(api.RoleClient, windowSize, local, remote, localNum, generation)
	s.State = api.StateConnectInProgress
	return s, []Action{ActionSendConnectReq, ActionAddRetry}
}

// NewServerSession constructs a session already Connected, as happens when
// the Nexus accepts an incoming ConnectReq.
func NewServerSession(windowSize int, local, remote api.EndpointDesc, localNum, remoteNum, generation uint32) *Session {
	s := newSession(api.RoleServer, windowSize, local, remote, localNum, generation)
	s.State = api.StateConnected
	s.RemoteSessionNum = remoteNum
	return s
}

// AllocSlot returns the first Free slot, marking it TxInProgress, or
// api.ErrNoSlot if the window is saturated.
func (s *Session) AllocSlot() (*Slot, error) {
	for i := range s.Slots {
		if s.Slots[i].State == api.SlotFree {
			s.Slots[i].State = api.SlotTxInProgress
			return &s.Slots[i], nil
		}
	}
	return nil, api.ErrNoSlot
}

// FreeSlot returns slot idx to Free and bumps its sequence counter. The
// freed slot no longer carries the prior occupant's MsgNum, which is what
// responses are matched by, so a late response for it matches no slot.
func (s *Session) FreeSlot(idx int) {
	s.Slots[idx] = freeSlot(idx, s.Slots[idx].Seq+1)
}

// NonFreeCount returns the number of slots not in the Free state, for the
// window-accounting invariant (Free + non-Free == W).
func (s *Session) NonFreeCount() int {
	n := 0
	for i := range s.Slots {
		if s.Slots[i].State != api.SlotFree {
			n++
		}
	}
	return n
}
