// File: rpc/endpoint.go
// Author: momentics <momentics@gmail.com>
//
// Endpoint is the request/response engine: one per worker thread, single-
// threaded cooperative per spec §5. All of its state (sessions, slots, the
// wheel, the retry set) is touched only from the goroutine that calls
// Progress and the other public methods; background handlers communicate
// back only through the buffered completions channel, never by touching
// Endpoint state directly.
//
// An Endpoint assumes it is the sole poller of its Nexus's SM bootstrap
// socket, or that every other Endpoint sharing that Nexus owns a disjoint
// local-session-number space — the common single-Endpoint-per-process
// pattern this module's tests use. Running several Endpoints against one
// shared, concurrently-polled Nexus needs an external demultiplexing thread,
// which spec §5 allows but this module does not build.

package rpc

import (
	"fmt"
	"net"
	"sync/atomic"

	"github.com/chlin501/eRPC/api"
	"github.com/chlin501/eRPC/control"
	"github.com/chlin501/eRPC/internal/concurrency"
	"github.com/chlin501/eRPC/nexus"
	"github.com/chlin501/eRPC/pool"
	"github.com/chlin501/eRPC/session"
	"github.com/chlin501/eRPC/wheel"
)

type acceptKey struct {
	clientSessionNum uint32
	clientHost       string
}

type completion struct {
	sess   *session.Session
	reqPkt api.Packet
	handle *api.RequestHandle
	reqBuf *api.MsgBuffer
}

// Endpoint owns a table of sessions, an SM retry set, a pacing wheel, and
// the background worker pool backing Background handlers.
type Endpoint struct {
	cfg       Config
	role      api.Role
	localDesc api.EndpointDesc

	nexus     *nexus.Nexus
	transport api.Transport
	wheel     *wheel.Wheel
	cc        api.CongestionController
	bufPool   api.BufferPool
	executor  *concurrency.Executor
	outPkts   *pool.SyncPool[[]api.OutPacket]

	completions chan completion

	sessions map[uint32]*session.Session
	retrySet *session.RetrySet

	nextLocalSessionNum uint32
	generation           uint32
	nextMsgNum           uint64

	pendingAccepts map[acceptKey]uint32

	// retransTSCThreshold is read every tick from the Endpoint's own
	// goroutine and may be written from another goroutine via
	// ApplyRetransMS (a control.ConfigStore reload hook), hence atomic
	// instead of a plain field.
	retransTSCThreshold atomic.Uint64
}

// NewEndpoint constructs an Endpoint. role determines whether it registers
// itself as the Nexus's accept sink for incoming ConnectReq packets
// (RoleServer) or only the per-session sinks it creates via OpenSession
// (RoleClient).
func NewEndpoint(cfg Config, role api.Role, localDesc api.EndpointDesc, nx *nexus.Nexus, transport api.Transport, cc api.CongestionController, bufPool api.BufferPool) *Endpoint {
	e := &Endpoint{
		cfg:            cfg,
		role:           role,
		localDesc:      localDesc,
		nexus:          nx,
		transport:      transport,
		wheel:          wheel.New(cfg.WheelNumSlots, cfg.WslotWidthTSC, nexus.NowTSC()),
		cc:             cc,
		bufPool:        bufPool,
		executor:       concurrency.NewExecutor(cfg.BackgroundWorkers, cfg.PinCPUBase),
		completions:    make(chan completion, 256),
		sessions:       make(map[uint32]*session.Session),
		retrySet:       session.NewRetrySet(),
		pendingAccepts: make(map[acceptKey]uint32),
		outPkts: pool.NewSyncPool(func() []api.OutPacket {
			return make([]api.OutPacket, 0, 32)
		}),
	}
	e.retransTSCThreshold.Store(msToTSC(cfg.RetransMS, nx.FreqHz()))
	if role == api.RoleServer {
		nx.RegisterAcceptSink(e)
	}
	if cfg.Debug != nil {
		e.registerDebugProbes(cfg.Debug)
	}
	return e
}

// registerDebugProbes wires this Endpoint's live state into dp under the
// same "rpc." names reportMetrics pushes, so control.DebugProbes.DumpState
// (typically fed to control.RegisterPlatformProbes's caller alongside the
// OS-level probes) reflects the running Endpoint rather than a snapshot
// taken at construction time.
func (e *Endpoint) registerDebugProbes(dp *control.DebugProbes) {
	dp.RegisterProbe("rpc.sessions", func() any { return len(e.sessions) })
	dp.RegisterProbe("rpc.retry_queue_len", func() any { return e.retrySet.Len() })
	dp.RegisterProbe("rpc.background_queue_depth", func() any { return len(e.completions) })
	dp.RegisterProbe("rpc.retrans_ms", func() any {
		return e.retransTSCThreshold.Load() * 1000 / e.nexus.FreqHz()
	})
}

// WireConfigStore registers a control.RegisterReloadHook listener that
// re-reads cs's current RetransMS and applies it via ApplyRetransMS,
// so a deployment's cs.SetConfig + control.TriggerHotReload(Sync) updates
// this Endpoint's retransmission threshold without tearing it down.
func (e *Endpoint) WireConfigStore(cs *control.ConfigStore) {
	control.RegisterReloadHook(func() {
		e.ApplyRetransMS(FromConfigStore(cs).RetransMS)
	})
}

// Close releases the background worker pool. It does not close the Nexus,
// which may be shared by other Endpoints.
func (e *Endpoint) Close() {
	e.executor.Close()
}

func (e *Endpoint) now() uint64 { return nexus.NowTSC() }

func msToTSC(ms int64, freqHz uint64) uint64 {
	return uint64(ms) * freqHz / 1000
}

func (e *Endpoint) allocLocalSessionNum() uint32 {
	e.nextLocalSessionNum++
	return e.nextLocalSessionNum
}

// OpenSession creates a client session to (remoteHost, remotePort,
// remoteRouteTag) and immediately sends ConnectReq. It returns the locally
// assigned session number; the caller learns of acceptance/rejection via
// cfg.OnSMEvent.
func (e *Endpoint) OpenSession(remoteHost string, remotePort uint16, remoteRouteTag uint32) (uint32, error) {
	localNum := e.allocLocalSessionNum()
	remote := api.EndpointDesc{Hostname: remoteHost, Port: remotePort, RouteTag: remoteRouteTag}
	sess, actions := session.NewClientSession(e.cfg.WindowSize, e.localDesc, remote, localNum, e.generation)
	e.sessions[localNum] = sess
	e.nexus.RegisterSink(localNum, e)
	e.applyActions(sess, actions)
	return localNum, nil
}

// DestroySession tears down sessionNum per spec §5's cancellation rule:
// outstanding continuations are never called; their slots are drained and
// the RPCs are only ever surfaced through cfg.OnSMEvent.
func (e *Endpoint) DestroySession(sessionNum uint32) error {
	sess, ok := e.sessions[sessionNum]
	if !ok {
		return api.ErrSessionState.WithContext("session_num", sessionNum)
	}
	actions, err := sess.Transition(session.EventDestroy)
	if err != nil {
		return err
	}
	e.drainSlots(sess)
	e.applyActions(sess, actions)
	return nil
}

func (e *Endpoint) drainSlots(sess *session.Session) {
	for i := range sess.Slots {
		if sess.Slots[i].State != api.SlotFree {
			sess.FreeSlot(i)
		}
	}
}

// AllocMsgBuffer allocates a buffer of at least maxSize bytes from the
// Endpoint's buffer pool.
func (e *Endpoint) AllocMsgBuffer(maxSize int) (*api.MsgBuffer, error) {
	return e.bufPool.Alloc(maxSize)
}

// FreeMsgBuffer returns b to the Endpoint's buffer pool.
func (e *Endpoint) FreeMsgBuffer(b *api.MsgBuffer) {
	e.bufPool.Free(b)
}

// ResizeMsgBuffer changes b's logical data size without reallocating.
func (e *Endpoint) ResizeMsgBuffer(b *api.MsgBuffer, n int) error {
	return b.Resize(n)
}

// RegisterHandler registers a request handler on the Endpoint's Nexus.
func (e *Endpoint) RegisterHandler(reqType uint16, typ api.HandlerType, fn api.ReqFunc) error {
	return e.nexus.RegisterHandler(reqType, typ, fn)
}

// EnqueueRequest submits a request on sessionNum's window. cont fires when
// the response arrives; the caller retains ownership of msgbuf until then.
func (e *Endpoint) EnqueueRequest(sessionNum uint32, reqType uint16, msgbuf *api.MsgBuffer, cont api.Continuation, tag uint64) error {
	sess, ok := e.sessions[sessionNum]
	if !ok {
		return api.ErrSessionState.WithContext("session_num", sessionNum)
	}
	if sess.State != api.StateConnected {
		return api.ErrSessionState.WithContext("state", sess.State.String())
	}
	slot, err := sess.AllocSlot()
	if err != nil {
		return err
	}
	e.nextMsgNum++
	msgNum := e.nextMsgNum
	slot.Continuation = cont
	slot.Tag = tag
	slot.ReqMsgBuf = msgbuf
	slot.MsgNum = msgNum

	payload := packEnvelope(reqType, msgbuf.Bytes())
	pkt := api.Packet{
		SessionNum: sess.RemoteSessionNum,
		MsgNum:     msgNum,
		PktType:    api.PktSmallReq,
		Payload:    payload,
	}
	now := e.now()
	deadline := e.cc.OnTx(sessionNum, now)
	ref := packOpaqueRef(sessionNum, slot.Index)
	return e.wheel.Insert(wheel.Entry{
		OpaqueRef: ref,
		Packet:    api.OutPacket{Dest: dataDesc(sess.Remote), Pkt: pkt},
	}, deadline, now)
}

// InBackground reports whether the calling goroutine is one of this
// Endpoint's background workers, per spec §6's in_background().
func (e *Endpoint) InBackground() bool {
	return e.executor.IsWorkerGoroutine()
}

// Progress advances every subsystem once, per spec §2's five-step tick. It
// never blocks.
func (e *Endpoint) Progress() error {
	if err := e.pollTransport(); err != nil {
		return err
	}
	e.drainCompletions()
	e.reapWheel()
	if err := e.nexus.PumpSM(); err != nil {
		return err
	}
	e.tickRetrySet()
	e.reportMetrics()
	return nil
}

func (e *Endpoint) tickRetrySet() {
	e.retrySet.Tick(e.now(), e.retransTSCThreshold.Load(), e.resendConnectReq, e.resendDisconnectReq)
}

// ApplyRetransMS recomputes the SM retransmission threshold from ms,
// letting a control.ConfigStore reload hook push a new value into a
// running Endpoint from any goroutine without reconstructing it or racing
// the Endpoint's own goroutine mid-tick.
func (e *Endpoint) ApplyRetransMS(ms int64) {
	e.retransTSCThreshold.Store(msToTSC(ms, e.nexus.FreqHz()))
}

// reportMetrics publishes this tick's gauges to cfg.Metrics, a no-op when
// the Endpoint was built without one.
func (e *Endpoint) reportMetrics() {
	if e.cfg.Metrics == nil {
		return
	}
	inFlight := 0
	for _, sess := range e.sessions {
		for i := range sess.Slots {
			if sess.Slots[i].State != api.SlotFree {
				inFlight++
			}
		}
	}
	e.cfg.Metrics.Set("rpc.sessions", len(e.sessions))
	e.cfg.Metrics.Set("rpc.in_flight", inFlight)
	e.cfg.Metrics.Set("rpc.retry_queue_len", e.retrySet.Len())
	e.cfg.Metrics.Set("rpc.background_queue_depth", len(e.completions))
}

func resolveDesc(d api.EndpointDesc) (*net.UDPAddr, error) {
	return net.ResolveUDPAddr("udp", fmt.Sprintf("%s:%d", d.Hostname, d.Port))
}
