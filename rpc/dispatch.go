// File: rpc/dispatch.go
// Author: momentics <momentics@gmail.com>
//
// The data-plane and SM-plane dispatch an Endpoint performs on each
// Progress() tick: polling the transport, draining background completions,
// reaping the pacing wheel, and handling SM handshake packets delivered by
// the Nexus.

package rpc

import (
	"net"

	"github.com/chlin501/eRPC/api"
	"github.com/chlin501/eRPC/session"
	"github.com/chlin501/eRPC/sm"
	"github.com/chlin501/eRPC/wheel"
)

// DeliverSM implements nexus.EndpointSink.
func (e *Endpoint) DeliverSM(pkt *sm.Packet, from *net.UDPAddr) {
	switch pkt.Type {
	case sm.PktConnectReq:
		e.handleConnectReqServer(pkt)
	case sm.PktConnectResp:
		e.handleConnectRespClient(pkt)
	case sm.PktDisconnectReq:
		e.handleDisconnectReqServer(pkt)
	case sm.PktDisconnectResp:
		e.handleDisconnectRespClient(pkt)
	}
}

func (e *Endpoint) handleConnectReqServer(pkt *sm.Packet) {
	key := acceptKey{clientSessionNum: pkt.ClientSessionNum, clientHost: pkt.Client.Hostname}
	if localNum, ok := e.pendingAccepts[key]; ok {
		// Idempotent replay: reply with the identical ConnectResp rather
		// than reallocating a session number, per spec §4.1.
		if sess, ok := e.sessions[localNum]; ok {
			e.sendConnectResp(sess, true, 0)
		}
		return
	}
	localNum := e.allocLocalSessionNum()
	sess := session.NewServerSession(e.cfg.WindowSize, e.localDesc, pkt.Client, localNum, pkt.ClientSessionNum, e.generation)
	e.sessions[localNum] = sess
	e.pendingAccepts[key] = localNum
	e.nexus.RegisterSink(localNum, e)
	e.sendConnectResp(sess, true, 0)
	e.notify(localNum, SMConnected, "")
}

func (e *Endpoint) handleConnectRespClient(pkt *sm.Packet) {
	sess, ok := e.sessions[pkt.ClientSessionNum]
	if !ok {
		return
	}
	if sess.RemoteSessionNum == 0 {
		sess.RemoteSessionNum = pkt.ServerSessionNum
	}
	ev := session.EventConnectRespReject
	if pkt.Accept {
		ev = session.EventConnectRespAccept
	}
	actions, err := sess.Transition(ev)
	if err != nil {
		return
	}
	e.applyActions(sess, actions)
}

func (e *Endpoint) handleDisconnectReqServer(pkt *sm.Packet) {
	sess, ok := e.sessions[pkt.ServerSessionNum]
	if !ok {
		return
	}
	e.drainSlots(sess)
	delete(e.sessions, pkt.ServerSessionNum)
	e.nexus.UnregisterSink(pkt.ServerSessionNum)
	resp := &sm.Packet{
		Type:             sm.PktDisconnectResp,
		ClientSessionNum: pkt.ClientSessionNum,
		ServerSessionNum: pkt.ServerSessionNum,
		Client:           sess.Remote,
		Server:           sess.Local,
	}
	if dst, err := resolveDesc(sess.Remote); err == nil {
		e.nexus.SendSM(resp, dst)
	}
	e.notify(pkt.ServerSessionNum, SMDisconnected, "")
}

func (e *Endpoint) handleDisconnectRespClient(pkt *sm.Packet) {
	sess, ok := e.sessions[pkt.ClientSessionNum]
	if !ok {
		return
	}
	actions, err := sess.Transition(session.EventDisconnectResp)
	if err != nil {
		return
	}
	e.applyActions(sess, actions)
}

func (e *Endpoint) notify(sessionNum uint32, ev SMEvent, reason string) {
	if e.cfg.OnSMEvent != nil {
		e.cfg.OnSMEvent(sessionNum, ev, reason)
	}
}

// applyActions executes the side effects a session.Transition returned.
func (e *Endpoint) applyActions(sess *session.Session, actions []session.Action) {
	for _, a := range actions {
		switch a {
		case session.ActionSendConnectReq:
			e.sendConnectReq(sess)
		case session.ActionSendDisconnectReq:
			e.sendDisconnectReq(sess)
		case session.ActionAddRetry:
			e.retrySet.Add(sess, e.now())
		case session.ActionRemoveRetry:
			e.retrySet.Remove(sess)
		case session.ActionNotifyConnected:
			e.notify(sess.LocalSessionNum, SMConnected, "")
		case session.ActionNotifyError:
			e.drainSlots(sess)
			delete(e.sessions, sess.LocalSessionNum)
			e.nexus.UnregisterSink(sess.LocalSessionNum)
			e.notify(sess.LocalSessionNum, SMError, "peer rejected connect request")
		case session.ActionNotifyDisconnected:
			e.drainSlots(sess)
			delete(e.sessions, sess.LocalSessionNum)
			e.nexus.UnregisterSink(sess.LocalSessionNum)
			e.notify(sess.LocalSessionNum, SMDisconnected, "")
		}
	}
}

func (e *Endpoint) sendConnectReq(sess *session.Session) {
	req := &sm.Packet{
		Type:             sm.PktConnectReq,
		ClientSessionNum: sess.LocalSessionNum,
		Client:           sess.Local,
		Server:           sess.Remote,
	}
	if dst, err := resolveDesc(sess.Remote); err == nil {
		e.nexus.SendSM(req, dst)
	}
}

func (e *Endpoint) sendDisconnectReq(sess *session.Session) {
	req := &sm.Packet{
		Type:             sm.PktDisconnectReq,
		ClientSessionNum: sess.LocalSessionNum,
		ServerSessionNum: sess.RemoteSessionNum,
		Client:           sess.Local,
		Server:           sess.Remote,
	}
	if dst, err := resolveDesc(sess.Remote); err == nil {
		e.nexus.SendSM(req, dst)
	}
}

func (e *Endpoint) sendConnectResp(sess *session.Session, accept bool, errorCode uint16) {
	resp := &sm.Packet{
		Type:             sm.PktConnectResp,
		Accept:           accept,
		ClientSessionNum: sess.RemoteSessionNum,
		ServerSessionNum: sess.LocalSessionNum,
		Client:           sess.Remote,
		Server:           sess.Local,
		ErrorCode:        errorCode,
	}
	if dst, err := resolveDesc(sess.Remote); err == nil {
		e.nexus.SendSM(resp, dst)
	}
}

func (e *Endpoint) resendConnectReq(sess *session.Session)    { e.sendConnectReq(sess) }
func (e *Endpoint) resendDisconnectReq(sess *session.Session) { e.sendDisconnectReq(sess) }

// pollTransport polls the transport for inbound data packets and routes
// each to the server (request) or client (response) path by packet type.
func (e *Endpoint) pollTransport() error {
	pkts, err := e.transport.RxBurst()
	if err != nil {
		return err
	}
	for _, pkt := range pkts {
		switch pkt.PktType {
		case api.PktSmallReq, api.PktBigReqFirst, api.PktBigReqLater:
			e.dispatchRequest(pkt)
		case api.PktSmallResp, api.PktBigRespFirst, api.PktBigRespLater:
			e.handleResponse(pkt)
		}
	}
	return nil
}

// dispatchRequest runs the server path: envelope-split, handler lookup,
// request buffer allocation, and foreground-vs-background dispatch.
func (e *Endpoint) dispatchRequest(pkt api.Packet) {
	sess, ok := e.sessions[pkt.SessionNum]
	if !ok {
		return
	}
	reqType, payload, err := splitEnvelope(pkt.Payload)
	if err != nil {
		return
	}
	entry, ok := e.nexus.Handler(reqType)
	if !ok {
		return
	}
	reqBuf, err := e.bufPool.Alloc(len(payload))
	if err != nil {
		return
	}
	if err := reqBuf.Resize(len(payload)); err != nil {
		e.bufPool.Free(reqBuf)
		return
	}
	copy(reqBuf.Bytes(), payload)

	prealloc, err := e.bufPool.Alloc(e.cfg.MTU)
	if err != nil {
		e.bufPool.Free(reqBuf)
		return
	}

	h := api.NewRequestHandle(reqBuf, prealloc, e.makeEnqueueFn(sess, pkt, entry.Type, reqBuf))
	if entry.Type == api.Background {
		fn := entry.Fn
		e.executor.Submit(func() { fn(h) })
		return
	}
	entry.Fn(h)
}

// makeEnqueueFn returns h's EnqueueResponse hook. For a Background handler
// it hands the finished handle back to the Endpoint's own goroutine over
// the completions channel; a worker goroutine must never touch session or
// wheel state directly. Foreground handlers run on the Endpoint's own
// goroutine already, so they finish inline.
func (e *Endpoint) makeEnqueueFn(sess *session.Session, reqPkt api.Packet, handlerType api.HandlerType, reqBuf *api.MsgBuffer) func(*api.RequestHandle) {
	return func(h *api.RequestHandle) {
		if handlerType == api.Background {
			e.completions <- completion{sess: sess, reqPkt: reqPkt, handle: h, reqBuf: reqBuf}
			return
		}
		e.finishResponse(sess, reqPkt, h, reqBuf)
	}
}

// drainCompletions finishes every response a background handler enqueued
// since the last tick, on the Endpoint's own goroutine.
func (e *Endpoint) drainCompletions() {
	for {
		select {
		case c := <-e.completions:
			e.finishResponse(c.sess, c.reqPkt, c.handle, c.reqBuf)
		default:
			return
		}
	}
}

// finishResponse transmits a server handler's response and frees the
// buffers the runtime owns, per the ownership table in spec §4.2.
func (e *Endpoint) finishResponse(sess *session.Session, reqPkt api.Packet, h *api.RequestHandle, reqBuf *api.MsgBuffer) {
	var respBuf, unused *api.MsgBuffer
	if h.PreallocUsed {
		respBuf, unused = h.PreallocResp, h.DynResp
	} else {
		respBuf, unused = h.DynResp, h.PreallocResp
	}
	if unused != nil {
		e.bufPool.Free(unused)
	}
	e.bufPool.Free(reqBuf)

	if respBuf == nil {
		return
	}
	pkt := api.Packet{
		SessionNum: sess.RemoteSessionNum,
		MsgNum:     reqPkt.MsgNum,
		PktType:    api.PktSmallResp,
		Payload:    respBuf.Bytes(),
	}
	now := e.now()
	deadline := e.cc.OnTx(sess.LocalSessionNum, now)
	e.wheel.Insert(wheel.Entry{
		Packet:      api.OutPacket{Dest: dataDesc(sess.Remote), Pkt: pkt},
		FreeAfterTx: respBuf,
	}, deadline, now)
}

// handleResponse runs the client path: it correlates pkt with the slot that
// sent the matching request by MsgNum, since several slots on one session
// may be AwaitingResp at once.
func (e *Endpoint) handleResponse(pkt api.Packet) {
	sess, ok := e.sessions[pkt.SessionNum]
	if !ok {
		return
	}
	for i := range sess.Slots {
		sl := &sess.Slots[i]
		if sl.State != api.SlotAwaitingResp || sl.MsgNum != pkt.MsgNum {
			continue
		}
		respBuf, err := e.bufPool.Alloc(len(pkt.Payload))
		if err != nil {
			return
		}
		if err := respBuf.Resize(len(pkt.Payload)); err != nil {
			e.bufPool.Free(respBuf)
			return
		}
		copy(respBuf.Bytes(), pkt.Payload)

		sl.State = api.SlotRespReceived
		cont, tag, idx := sl.Continuation, sl.Tag, sl.Index
		rh := api.NewResponseHandle(respBuf, func() {
			e.bufPool.Free(respBuf)
			sess.FreeSlot(idx)
		})
		if cont != nil {
			cont(rh, tag)
		}
		return
	}
}

// reapWheel hands due packets to the transport. A reaped request packet
// flips its originating slot from TxInProgress to AwaitingResp exactly now,
// the point at which the packet is actually handed off; a reaped response
// packet's FreeAfterTx buffer is returned to the pool only now, after the
// transport has taken a copy, never before.
func (e *Endpoint) reapWheel() {
	entries := e.wheel.Reap(e.now())
	if len(entries) == 0 {
		return
	}
	pkts := e.outPkts.Get()[:0]
	for _, ent := range entries {
		pkts = append(pkts, ent.Packet)
	}
	e.transport.TxBurst(pkts)
	e.outPkts.Put(pkts)
	for _, ent := range entries {
		if ent.Packet.Pkt.PktType == api.PktSmallReq || ent.Packet.Pkt.PktType == api.PktBigReqFirst {
			sessionNum, slotIdx := unpackOpaqueRef(ent.OpaqueRef)
			if sess, ok := e.sessions[sessionNum]; ok && slotIdx < len(sess.Slots) {
				if sess.Slots[slotIdx].State == api.SlotTxInProgress {
					sess.Slots[slotIdx].State = api.SlotAwaitingResp
				}
			}
		}
		if ent.FreeAfterTx != nil {
			e.bufPool.Free(ent.FreeAfterTx)
		}
	}
}
