// File: sm/packet.go
// Author: momentics <momentics@gmail.com>
//
// Session management wire packets: the fixed-layout records exchanged over
// UDP between bootstrap ports during connect/disconnect handshakes. Little-
// endian, self-describing by offset, deliberately unversioned per the
// runtime's wire format (an incompatible peer simply fails to decode).

package sm

import (
	"encoding/binary"

	"github.com/chlin501/eRPC/api"
)

// PacketType enumerates the four SM handshake packet kinds.
type PacketType uint8

const (
	PktConnectReq PacketType = iota
	PktConnectResp
	PktDisconnectReq
	PktDisconnectResp
)

const maxHostnameLen = 64

// descSize is the encoded size of one api.EndpointDesc: a fixed hostname
// field, a 2-byte port, and a 4-byte route tag.
const descSize = maxHostnameLen + 2 + 4

// WireSize is the fixed encoded size of a Packet.
const WireSize = 1 /* type */ + 1 /* accept */ + 4 /* client session num */ + 4 /* server session num */ + 2*descSize + 2 /* error code */

// Packet is one SM handshake message.
type Packet struct {
	Type              PacketType
	Accept            bool
	ClientSessionNum  uint32
	ServerSessionNum  uint32
	Client            api.EndpointDesc
	Server            api.EndpointDesc
	ErrorCode         uint16 // 0 means no error; nonzero maps to api.SMRejectReason+1
}

func putDesc(b []byte, d api.EndpointDesc) {
	var host [maxHostnameLen]byte
	copy(host[:], d.Hostname)
	copy(b[:maxHostnameLen], host[:])
	binary.LittleEndian.PutUint16(b[maxHostnameLen:maxHostnameLen+2], d.Port)
	binary.LittleEndian.PutUint32(b[maxHostnameLen+2:maxHostnameLen+6], d.RouteTag)
}

func getDesc(b []byte) api.EndpointDesc {
	end := 0
	for end < maxHostnameLen && b[end] != 0 {
		end++
	}
	return api.EndpointDesc{
		Hostname: string(b[:end]),
		Port:     binary.LittleEndian.Uint16(b[maxHostnameLen : maxHostnameLen+2]),
		RouteTag: binary.LittleEndian.Uint32(b[maxHostnameLen+2 : maxHostnameLen+6]),
	}
}

// Encode serializes p into a freshly allocated WireSize-byte buffer.
func (p *Packet) Encode() []byte {
	b := make([]byte, WireSize)
	b[0] = byte(p.Type)
	if p.Accept {
		b[1] = 1
	}
	binary.LittleEndian.PutUint32(b[2:6], p.ClientSessionNum)
	binary.LittleEndian.PutUint32(b[6:10], p.ServerSessionNum)
	putDesc(b[10:10+descSize], p.Client)
	putDesc(b[10+descSize:10+2*descSize], p.Server)
	binary.LittleEndian.PutUint16(b[10+2*descSize:10+2*descSize+2], p.ErrorCode)
	return b
}

// Decode parses a WireSize-byte buffer into a Packet. It fails with
// api.ErrResolve if b is shorter than WireSize (the Go analog of the
// original's "incompatible peers fail" clause, since there is no version
// field to check).
func Decode(b []byte) (*Packet, error) {
	if len(b) < WireSize {
		return nil, api.ErrResolve.WithContext("reason", "sm packet too short").
			WithContext("got", len(b)).WithContext("want", WireSize)
	}
	p := &Packet{
		Type:             PacketType(b[0]),
		Accept:           b[1] != 0,
		ClientSessionNum: binary.LittleEndian.Uint32(b[2:6]),
		ServerSessionNum: binary.LittleEndian.Uint32(b[6:10]),
		Client:           getDesc(b[10 : 10+descSize]),
		Server:           getDesc(b[10+descSize : 10+2*descSize]),
		ErrorCode:        binary.LittleEndian.Uint16(b[10+2*descSize : 10+2*descSize+2]),
	}
	return p, nil
}
