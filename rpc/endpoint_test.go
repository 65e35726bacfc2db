// File: rpc/endpoint_test.go
// Author: momentics <momentics@gmail.com>

package rpc

import (
	"testing"
	"time"

	"github.com/chlin501/eRPC/api"
	"github.com/chlin501/eRPC/cc"
	"github.com/chlin501/eRPC/nexus"
	"github.com/chlin501/eRPC/pool"
	"github.com/chlin501/eRPC/transport"
)

const (
	echoReqType = 1
	// csReqType is the outer relay request a client sends a server; the
	// server's handler for it is FgNonterminal and issues its own nested
	// request (ssReqType) back over the same session before answering.
	csReqType = 2
	// ssReqType is the nested request the server issues back to the client
	// mid-handler, exercising the req-in-req path spec.md §4.2/§5 reserves
	// for FgNonterminal and Background handlers.
	ssReqType = 3
)

func newTestPair(t *testing.T) (clientNx, serverNx *nexus.Nexus) {
	t.Helper()
	cnx, err := nexus.New("127.0.0.1:0", 0)
	if err != nil {
		t.Fatalf("client nexus: %v", err)
	}
	snx, err := nexus.New("127.0.0.1:0", 0)
	if err != nil {
		t.Fatalf("server nexus: %v", err)
	}
	t.Cleanup(func() { cnx.Close(); snx.Close() })
	return cnx, snx
}

func portOf(nx *nexus.Nexus) uint16 {
	return uint16(nx.BootstrapAddr().Port)
}

func pumpUntil(t *testing.T, deadline time.Duration, endpoints []*Endpoint, cond func() bool) {
	t.Helper()
	end := time.Now().Add(deadline)
	for time.Now().Before(end) {
		for _, e := range endpoints {
			e.Progress()
		}
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("condition not met within %v", deadline)
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.RetransMS = 20
	return cfg
}

func TestBasicEcho(t *testing.T) {
	cnx, snx := newTestPair(t)

	lbClient, lbServer := transport.NewLoopbackPair()
	bufPool := pool.Default()

	clientDesc := api.EndpointDesc{Hostname: "127.0.0.1", Port: portOf(cnx)}
	serverDesc := api.EndpointDesc{Hostname: "127.0.0.1", Port: portOf(snx)}

	client := NewEndpoint(testConfig(), api.RoleClient, clientDesc, cnx, lbClient, cc.NewTimelyController(snx.FreqHz(), 1024, 1e6, 4e9), bufPool)
	server := NewEndpoint(testConfig(), api.RoleServer, serverDesc, snx, lbServer, cc.NewTimelyController(cnx.FreqHz(), 1024, 1e6, 4e9), bufPool)
	defer client.Close()
	defer server.Close()

	server.RegisterHandler(echoReqType, api.FgTerminal, func(h *api.RequestHandle) {
		n := h.ReqMsgBuf.DataSize()
		h.PreallocResp.Resize(n)
		copy(h.PreallocResp.Bytes(), h.ReqMsgBuf.Bytes())
		h.EnqueueResponse()
	})

	sessNum, err := client.OpenSession(serverDesc.Hostname, serverDesc.Port, 0)
	if err != nil {
		t.Fatalf("open session: %v", err)
	}

	var connected bool
	client.cfg.OnSMEvent = func(sn uint32, ev SMEvent, reason string) {
		if sn == sessNum && ev == SMConnected {
			connected = true
		}
	}

	pumpUntil(t, 2*time.Second, []*Endpoint{client, server}, func() bool { return connected })

	req, err := client.AllocMsgBuffer(128)
	if err != nil {
		t.Fatalf("alloc: %v", err)
	}
	req.Resize(128)
	for i := range req.Bytes() {
		req.Bytes()[i] = 0xAB
	}

	var gotResp bool
	err = client.EnqueueRequest(sessNum, echoReqType, req, func(resp *api.ResponseHandle, tag uint64) {
		b := resp.RespMsgBuf.Bytes()
		if len(b) != 128 {
			t.Errorf("resp len = %d, want 128", len(b))
		}
		for _, v := range b {
			if v != 0xAB {
				t.Errorf("resp byte = %x, want 0xAB", v)
				break
			}
		}
		resp.Release()
		gotResp = true
	}, 42)
	if err != nil {
		t.Fatalf("enqueue request: %v", err)
	}

	pumpUntil(t, 2*time.Second, []*Endpoint{client, server}, func() bool { return gotResp })
	client.FreeMsgBuffer(req)
}

func TestWindowSaturation(t *testing.T) {
	cnx, snx := newTestPair(t)
	lbClient, lbServer := transport.NewLoopbackPair()
	bufPool := pool.Default()

	clientDesc := api.EndpointDesc{Hostname: "127.0.0.1", Port: portOf(cnx)}
	serverDesc := api.EndpointDesc{Hostname: "127.0.0.1", Port: portOf(snx)}

	cfg := testConfig()
	cfg.WindowSize = 8
	client := NewEndpoint(cfg, api.RoleClient, clientDesc, cnx, lbClient, cc.NewTimelyController(snx.FreqHz(), 1024, 1e6, 4e9), bufPool)
	server := NewEndpoint(cfg, api.RoleServer, serverDesc, snx, lbServer, cc.NewTimelyController(cnx.FreqHz(), 1024, 1e6, 4e9), bufPool)
	defer client.Close()
	defer server.Close()

	server.RegisterHandler(echoReqType, api.FgTerminal, func(h *api.RequestHandle) {
		h.EnqueueResponse()
	})

	sessNum, err := client.OpenSession(serverDesc.Hostname, serverDesc.Port, 0)
	if err != nil {
		t.Fatalf("open session: %v", err)
	}
	var connected bool
	client.cfg.OnSMEvent = func(sn uint32, ev SMEvent, reason string) {
		if sn == sessNum && ev == SMConnected {
			connected = true
		}
	}
	pumpUntil(t, 2*time.Second, []*Endpoint{client, server}, func() bool { return connected })

	var responses int
	var bufs [8]*api.MsgBuffer
	for i := 0; i < 8; i++ {
		b, _ := client.AllocMsgBuffer(16)
		b.Resize(16)
		bufs[i] = b
		if err := client.EnqueueRequest(sessNum, echoReqType, b, func(resp *api.ResponseHandle, tag uint64) {
			resp.Release()
			responses++
		}, uint64(i)); err != nil {
			t.Fatalf("enqueue %d: %v", i, err)
		}
	}

	b9, _ := client.AllocMsgBuffer(16)
	b9.Resize(16)
	err = client.EnqueueRequest(sessNum, echoReqType, b9, func(resp *api.ResponseHandle, tag uint64) {
		resp.Release()
	}, 99)
	if err == nil {
		t.Fatalf("9th enqueue on a window of 8 should have failed with ErrNoSlot")
	}
	apiErr, ok := err.(*api.Error)
	if !ok || apiErr.Code != api.ErrCodeNoSlot {
		t.Fatalf("expected ErrNoSlot, got %v", err)
	}

	pumpUntil(t, 2*time.Second, []*Endpoint{client, server}, func() bool { return responses == 8 })

	if err := client.EnqueueRequest(sessNum, echoReqType, b9, func(resp *api.ResponseHandle, tag uint64) {
		resp.Release()
		responses++
	}, 100); err != nil {
		t.Fatalf("enqueue after release should succeed: %v", err)
	}
	pumpUntil(t, 2*time.Second, []*Endpoint{client, server}, func() bool { return responses == 9 })

	for _, b := range bufs {
		client.FreeMsgBuffer(b)
	}
	client.FreeMsgBuffer(b9)
}

// TestDestroySessionTearsDown drives a full connect/disconnect cycle and
// checks both sides' session tables are empty afterward, per spec.md §4.1's
// DisconnectReq/Resp handshake.
func TestDestroySessionTearsDown(t *testing.T) {
	cnx, snx := newTestPair(t)
	lbClient, lbServer := transport.NewLoopbackPair()
	bufPool := pool.Default()

	clientDesc := api.EndpointDesc{Hostname: "127.0.0.1", Port: portOf(cnx)}
	serverDesc := api.EndpointDesc{Hostname: "127.0.0.1", Port: portOf(snx)}

	client := NewEndpoint(testConfig(), api.RoleClient, clientDesc, cnx, lbClient, cc.NewTimelyController(snx.FreqHz(), 1024, 1e6, 4e9), bufPool)
	server := NewEndpoint(testConfig(), api.RoleServer, serverDesc, snx, lbServer, cc.NewTimelyController(cnx.FreqHz(), 1024, 1e6, 4e9), bufPool)
	defer client.Close()
	defer server.Close()

	sessNum, err := client.OpenSession(serverDesc.Hostname, serverDesc.Port, 0)
	if err != nil {
		t.Fatalf("open session: %v", err)
	}
	var connected bool
	client.cfg.OnSMEvent = func(sn uint32, ev SMEvent, reason string) {
		if sn == sessNum && ev == SMConnected {
			connected = true
		}
	}
	pumpUntil(t, 2*time.Second, []*Endpoint{client, server}, func() bool { return connected })

	var disconnected bool
	client.cfg.OnSMEvent = func(sn uint32, ev SMEvent, reason string) {
		if sn == sessNum && ev == SMDisconnected {
			disconnected = true
		}
	}
	if err := client.DestroySession(sessNum); err != nil {
		t.Fatalf("destroy session: %v", err)
	}
	pumpUntil(t, 2*time.Second, []*Endpoint{client, server}, func() bool { return disconnected })

	if len(client.sessions) != 0 {
		t.Fatalf("client sessions not cleared: %v", client.sessions)
	}
	if len(server.sessions) != 0 {
		t.Fatalf("server sessions not cleared: %v", server.sessions)
	}
}

// TestNestedRequest exercises the req-in-req path spec.md §4.2/§5 reserves
// for FgNonterminal handlers: the server's csReqType handler does not answer
// the client directly, it increments every byte by 1 and issues its own
// ssReqType request back to the client over the same session, then only
// calls EnqueueResponse once that nested response lands. The client's
// ssReqType handler increments by 2 and echoes. A client byte X therefore
// comes back as X+3, proving the response actually traveled through both
// hops rather than being answered locally.
func TestNestedRequest(t *testing.T) {
	cnx, snx := newTestPair(t)
	lbClient, lbServer := transport.NewLoopbackPair()
	bufPool := pool.Default()

	clientDesc := api.EndpointDesc{Hostname: "127.0.0.1", Port: portOf(cnx)}
	serverDesc := api.EndpointDesc{Hostname: "127.0.0.1", Port: portOf(snx)}

	client := NewEndpoint(testConfig(), api.RoleClient, clientDesc, cnx, lbClient, cc.NewTimelyController(snx.FreqHz(), 1024, 1e6, 4e9), bufPool)
	server := NewEndpoint(testConfig(), api.RoleServer, serverDesc, snx, lbServer, cc.NewTimelyController(cnx.FreqHz(), 1024, 1e6, 4e9), bufPool)
	defer client.Close()
	defer server.Close()

	client.RegisterHandler(ssReqType, api.FgTerminal, func(h *api.RequestHandle) {
		n := h.ReqMsgBuf.DataSize()
		h.PreallocResp.Resize(n)
		b := h.PreallocResp.Bytes()
		copy(b, h.ReqMsgBuf.Bytes())
		for i := range b {
			b[i] += 2
		}
		h.EnqueueResponse()
	})

	var serverSessNum uint32
	server.RegisterHandler(csReqType, api.FgNonterminal, func(h *api.RequestHandle) {
		n := h.ReqMsgBuf.DataSize()
		nested, err := server.AllocMsgBuffer(n)
		if err != nil {
			t.Errorf("alloc nested: %v", err)
			return
		}
		nested.Resize(n)
		copy(nested.Bytes(), h.ReqMsgBuf.Bytes())
		for i, v := range nested.Bytes() {
			nested.Bytes()[i] = v + 1
		}
		orig := h
		err = server.EnqueueRequest(serverSessNum, ssReqType, nested, func(resp *api.ResponseHandle, tag uint64) {
			n := len(resp.RespMsgBuf.Bytes())
			orig.PreallocResp.Resize(n)
			copy(orig.PreallocResp.Bytes(), resp.RespMsgBuf.Bytes())
			resp.Release()
			orig.EnqueueResponse()
		}, 0)
		if err != nil {
			t.Errorf("nested enqueue request: %v", err)
		}
	})

	sessNum, err := client.OpenSession(serverDesc.Hostname, serverDesc.Port, 0)
	if err != nil {
		t.Fatalf("open session: %v", err)
	}

	var clientConnected, serverConnected bool
	client.cfg.OnSMEvent = func(sn uint32, ev SMEvent, reason string) {
		if sn == sessNum && ev == SMConnected {
			clientConnected = true
		}
	}
	server.cfg.OnSMEvent = func(sn uint32, ev SMEvent, reason string) {
		if ev == SMConnected {
			serverSessNum = sn
			serverConnected = true
		}
	}
	pumpUntil(t, 2*time.Second, []*Endpoint{client, server}, func() bool { return clientConnected && serverConnected })

	req, err := client.AllocMsgBuffer(32)
	if err != nil {
		t.Fatalf("alloc: %v", err)
	}
	req.Resize(32)
	for i := range req.Bytes() {
		req.Bytes()[i] = byte(i)
	}

	var gotResp bool
	err = client.EnqueueRequest(sessNum, csReqType, req, func(resp *api.ResponseHandle, tag uint64) {
		b := resp.RespMsgBuf.Bytes()
		if len(b) != 32 {
			t.Errorf("resp len = %d, want 32", len(b))
		}
		for i, v := range b {
			want := byte(i) + 3
			if v != want {
				t.Errorf("resp byte %d = %d, want %d", i, v, want)
				break
			}
		}
		resp.Release()
		gotResp = true
	}, 7)
	if err != nil {
		t.Fatalf("enqueue request: %v", err)
	}

	pumpUntil(t, 2*time.Second, []*Endpoint{client, server}, func() bool { return gotResp })
	client.FreeMsgBuffer(req)
}

// TestSMRetransmission leaves the server unpolled long enough for the
// client's RetrySet to resend its ConnectReq, then checks the session still
// connects once the server handles the original and the resends, per
// spec.md §4.1's retransmission requirement.
func TestSMRetransmission(t *testing.T) {
	cnx, snx := newTestPair(t)
	lbClient, lbServer := transport.NewLoopbackPair()
	bufPool := pool.Default()

	clientDesc := api.EndpointDesc{Hostname: "127.0.0.1", Port: portOf(cnx)}
	serverDesc := api.EndpointDesc{Hostname: "127.0.0.1", Port: portOf(snx)}

	cfg := testConfig()
	cfg.RetransMS = 5
	client := NewEndpoint(cfg, api.RoleClient, clientDesc, cnx, lbClient, cc.NewTimelyController(snx.FreqHz(), 1024, 1e6, 4e9), bufPool)
	server := NewEndpoint(testConfig(), api.RoleServer, serverDesc, snx, lbServer, cc.NewTimelyController(cnx.FreqHz(), 1024, 1e6, 4e9), bufPool)
	defer client.Close()
	defer server.Close()

	sessNum, err := client.OpenSession(serverDesc.Hostname, serverDesc.Port, 0)
	if err != nil {
		t.Fatalf("open session: %v", err)
	}

	// Never pump the server while the client's RetrySet ticks past
	// RetransMS, so the initial ConnectReq sits unread on the server's SM
	// socket and the client resends it. Once pumped, the server answers the
	// original first and replays the same reply for each resend.
	end := time.Now().Add(3 * time.Duration(cfg.RetransMS) * time.Millisecond)
	for time.Now().Before(end) {
		client.Progress()
		time.Sleep(time.Millisecond)
	}

	var connected bool
	client.cfg.OnSMEvent = func(sn uint32, ev SMEvent, reason string) {
		if sn == sessNum && ev == SMConnected {
			connected = true
		}
	}
	pumpUntil(t, 2*time.Second, []*Endpoint{client, server}, func() bool { return connected })
}
