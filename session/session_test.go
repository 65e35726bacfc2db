package session

import (
	"testing"

	"github.com/chlin501/eRPC/api"
)

func TestWindowAccountingInvariant(t *testing.T) {
	s, _ := NewClientSession(8, api.EndpointDesc{}, api.EndpointDesc{}, 1, 0)
	if got := len(s.Slots); got != 8 {
		t.Fatalf("expected 8 slots, got %d", got)
	}
	if s.NonFreeCount() != 0 {
		t.Fatalf("expected all slots free initially, got %d non-free", s.NonFreeCount())
	}

	slot, err := s.AllocSlot()
	if err != nil {
		t.Fatalf("alloc: %v", err)
	}
	if s.NonFreeCount() != 1 {
		t.Fatalf("expected 1 non-free slot, got %d", s.NonFreeCount())
	}

	s.FreeSlot(slot.Index)
	if s.NonFreeCount() != 0 {
		t.Fatalf("expected slot returned to free, got %d non-free", s.NonFreeCount())
	}
}

func TestWindowSaturation(t *testing.T) {
	s, _ := NewClientSession(8, api.EndpointDesc{}, api.EndpointDesc{}, 1, 0)
	for i := 0; i < 8; i++ {
		if _, err := s.AllocSlot(); err != nil {
			t.Fatalf("alloc %d: %v", i, err)
		}
	}
	if _, err := s.AllocSlot(); err != api.ErrNoSlot {
		t.Fatalf("expected ErrNoSlot on 9th alloc, got %v", err)
	}

	s.FreeSlot(0)
	if _, err := s.AllocSlot(); err != nil {
		t.Fatalf("expected alloc to succeed after free, got %v", err)
	}
}

func TestFreeSlotBumpsSeqToRejectStaleResponses(t *testing.T) {
	s, _ := NewClientSession(8, api.EndpointDesc{}, api.EndpointDesc{}, 1, 0)
	slot, _ := s.AllocSlot()
	firstSeq := slot.Seq
	s.FreeSlot(slot.Index)
	if s.Slots[slot.Index].Seq == firstSeq {
		t.Fatal("expected sequence counter to change after free")
	}
}

func TestClientStateMachineHappyPath(t *testing.T) {
	s, actions := NewClientSession(8, api.EndpointDesc{}, api.EndpointDesc{}, 1, 0)
	if s.State != api.StateConnectInProgress {
		t.Fatalf("expected ConnectInProgress, got %v", s.State)
	}
	assertActions(t, actions, ActionSendConnectReq, ActionAddRetry)

	actions, err := s.Transition(EventConnectRespAccept)
	if err != nil {
		t.Fatalf("transition: %v", err)
	}
	if s.State != api.StateConnected {
		t.Fatalf("expected Connected, got %v", s.State)
	}
	assertActions(t, actions, ActionRemoveRetry, ActionNotifyConnected)
}

func TestDestroyDuringConnect(t *testing.T) {
	s, _ := NewClientSession(8, api.EndpointDesc{}, api.EndpointDesc{}, 1, 0)

	if _, err := s.Transition(EventDestroy); err != nil {
		t.Fatalf("destroy: %v", err)
	}
	if s.State != api.StateDisconnectWaitForConnect {
		t.Fatalf("expected DisconnectWaitForConnect, got %v", s.State)
	}

	actions, err := s.Transition(EventConnectRespAccept)
	if err != nil {
		t.Fatalf("connect resp accept: %v", err)
	}
	if s.State != api.StateDisconnectInProgress {
		t.Fatalf("expected DisconnectInProgress, got %v", s.State)
	}
	assertActions(t, actions, ActionSendDisconnectReq)

	actions, err = s.Transition(EventDisconnectResp)
	if err != nil {
		t.Fatalf("disconnect resp: %v", err)
	}
	if s.State != api.StateDisconnected {
		t.Fatalf("expected Disconnected, got %v", s.State)
	}
	assertActions(t, actions, ActionRemoveRetry, ActionNotifyDisconnected)
}

func TestInvalidTransitionReturnsErrSessionState(t *testing.T) {
	s, _ := NewClientSession(8, api.EndpointDesc{}, api.EndpointDesc{}, 1, 0)
	if _, err := s.Transition(EventDisconnectResp); err == nil {
		t.Fatal("expected error for invalid transition")
	}
}

func assertActions(t *testing.T, got []Action, want ...Action) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("action mismatch: got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("action mismatch at %d: got %v, want %v", i, got[i], want[i])
		}
	}
}

func TestRetrySetInvariants(t *testing.T) {
	rs := NewRetrySet()
	s1, _ := NewClientSession(8, api.EndpointDesc{}, api.EndpointDesc{}, 1, 0)
	s2, _ := NewClientSession(8, api.EndpointDesc{}, api.EndpointDesc{}, 2, 0)

	rs.Add(s1, 0)
	rs.Add(s2, 0)
	if rs.Len() != 2 {
		t.Fatalf("expected 2 records, got %d", rs.Len())
	}
	if !rs.Contains(s1) || !rs.Contains(s2) {
		t.Fatal("expected both sessions present")
	}

	rs.Remove(s1)
	if rs.Contains(s1) {
		t.Fatal("expected s1 removed")
	}
	if rs.Len() != 1 {
		t.Fatalf("expected 1 record remaining, got %d", rs.Len())
	}
}

func TestRetrySetDuplicateAddPanics(t *testing.T) {
	rs := NewRetrySet()
	s, _ := NewClientSession(8, api.EndpointDesc{}, api.EndpointDesc{}, 1, 0)
	rs.Add(s, 0)

	defer func() {
		if r := recover(); r == nil {
			t.Fatal("expected panic on duplicate add")
		}
	}()
	rs.Add(s, 0)
}

func TestRetrySetTickDispatchesByState(t *testing.T) {
	rs := NewRetrySet()
	connecting, _ := NewClientSession(8, api.EndpointDesc{}, api.EndpointDesc{}, 1, 0)
	disconnecting, _ := NewClientSession(8, api.EndpointDesc{}, api.EndpointDesc{}, 2, 0)
	disconnecting.State = api.StateDisconnectInProgress

	rs.Add(connecting, 0)
	rs.Add(disconnecting, 0)

	var connectResends, disconnectResends int
	rs.Tick(1000, 100,
		func(s *Session) { connectResends++ },
		func(s *Session) { disconnectResends++ },
	)

	if connectResends != 1 || disconnectResends != 1 {
		t.Fatalf("expected one resend each, got connect=%d disconnect=%d", connectResends, disconnectResends)
	}
}

func TestRetrySetTickDoesNotDoubleProcessSameTick(t *testing.T) {
	rs := NewRetrySet()
	s, _ := NewClientSession(8, api.EndpointDesc{}, api.EndpointDesc{}, 1, 0)
	rs.Add(s, 0)

	calls := 0
	rs.Tick(1000, 100, func(*Session) {
		calls++
		// Simulate a new session opening mid-tick; it must not be visited
		// until the next Tick call.
		other, _ := NewClientSession(8, api.EndpointDesc{}, api.EndpointDesc{}, 99, 0)
		rs.Add(other, 1000)
	}, func(*Session) {})

	if calls != 1 {
		t.Fatalf("expected exactly one resend this tick, got %d", calls)
	}
	if rs.Len() != 2 {
		t.Fatalf("expected the mid-tick add to land, got %d records", rs.Len())
	}
}
