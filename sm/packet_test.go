package sm

import (
	"testing"

	"github.com/chlin501/eRPC/api"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	p := &Packet{
		Type:             PktConnectReq,
		Accept:           true,
		ClientSessionNum: 42,
		ServerSessionNum: 7,
		Client:           api.EndpointDesc{Hostname: "client.local", Port: 31850, RouteTag: 1},
		Server:           api.EndpointDesc{Hostname: "server.local", Port: 31851, RouteTag: 2},
		ErrorCode:        0,
	}

	enc := p.Encode()
	if len(enc) != WireSize {
		t.Fatalf("expected %d bytes, got %d", WireSize, len(enc))
	}

	got, err := Decode(enc)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if *got != *p {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, p)
	}
}

func TestDuplicateConnectReqYieldsIdenticalBytes(t *testing.T) {
	p := &Packet{
		Type:             PktConnectResp,
		Accept:           true,
		ClientSessionNum: 1,
		ServerSessionNum: 5,
		Client:           api.EndpointDesc{Hostname: "a", Port: 1, RouteTag: 1},
		Server:           api.EndpointDesc{Hostname: "b", Port: 2, RouteTag: 2},
	}
	a := p.Encode()
	b := p.Encode()
	if string(a) != string(b) {
		t.Fatal("expected identical encoding for the same logical packet")
	}
}

func TestDecodeTooShortFails(t *testing.T) {
	if _, err := Decode([]byte{1, 2, 3}); err == nil {
		t.Fatal("expected error decoding a too-short buffer")
	}
}
