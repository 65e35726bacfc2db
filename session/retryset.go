// File: session/retryset.go
// Author: momentics <momentics@gmail.com>
//
// The SM in-flight retry set: sessions awaiting a handshake reply, tracked
// as (session_ref, last_send_tsc) pairs. Grounded directly on the source's
// rpc_sm_retry.cc: cardinality is bounded by the number of concurrently
// opening/closing sessions, so a linear-scan slice beats a map here.

package session

import "github.com/chlin501/eRPC/api"

type retryRecord struct {
	session     *Session
	lastSendTSC uint64
}

// RetrySet holds the sessions currently awaiting a handshake reply. At most
// one record exists per session at any time.
type RetrySet struct {
	records []retryRecord
}

// NewRetrySet returns an empty retry set.
func NewRetrySet() *RetrySet {
	return &RetrySet{}
}

func (rs *RetrySet) indexOf(s *Session) int {
	for i := range rs.records {
		if rs.records[i].session == s {
			return i
		}
	}
	return -1
}

// Add registers s in the retry set. Adding a session already present is a
// programming error (the state machine must remove before re-adding) and
// panics, per the runtime's fatal-invariant policy.
func (rs *RetrySet) Add(s *Session, nowTSC uint64) {
	if rs.indexOf(s) >= 0 {
		panic("session: retry set: duplicate add for session")
	}
	rs.records = append(rs.records, retryRecord{session: s, lastSendTSC: nowTSC})
}

// Remove drops s from the retry set, if present.
func (rs *RetrySet) Remove(s *Session) {
	idx := rs.indexOf(s)
	if idx < 0 {
		return
	}
	rs.records = append(rs.records[:idx], rs.records[idx+1:]...)
}

// Contains reports whether s currently has an in-flight record.
func (rs *RetrySet) Contains(s *Session) bool {
	return rs.indexOf(s) >= 0
}

// Len returns the number of in-flight records.
func (rs *RetrySet) Len() int {
	return len(rs.records)
}

// Tick scans the retry set once. For each record whose elapsed time since
// last_send_tsc exceeds retransTSC cycles, it resends the packet matching
// the session's current state (ConnectReq for ConnectInProgress and
// DisconnectWaitForConnect, DisconnectReq for DisconnectInProgress) and
// refreshes last_send_tsc. Records added by sendConnectReq/sendDisconnectReq
// during this call are visited on the next Tick, never this one.
func (rs *RetrySet) Tick(nowTSC, retransTSC uint64, sendConnectReq, sendDisconnectReq func(s *Session)) {
	n := len(rs.records)
	for i := 0; i < n && i < len(rs.records); i++ {
		rec := &rs.records[i]
		if nowTSC-rec.lastSendTSC <= retransTSC {
			continue
		}
		rec.lastSendTSC = nowTSC
		switch rec.session.State {
		case api.StateConnectInProgress, api.StateDisconnectWaitForConnect:
			sendConnectReq(rec.session)
		case api.StateDisconnectInProgress:
			sendDisconnectReq(rec.session)
		}
	}
}
