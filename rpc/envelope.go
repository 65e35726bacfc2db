// File: rpc/envelope.go
// Author: momentics <momentics@gmail.com>
//
// api.Packet.PktType only carries transport framing (small_req, big_req
// first/later, ...), never the application's handler key, so requests carry
// a 2-byte little-endian req_type prefix the server strips before handler
// dispatch. Responses are never enveloped: the client already knows which
// continuation to run from the slot that produced the request.

package rpc

import (
	"encoding/binary"

	"github.com/chlin501/eRPC/api"
)

func packEnvelope(reqType uint16, payload []byte) []byte {
	b := make([]byte, 2+len(payload))
	binary.LittleEndian.PutUint16(b[:2], reqType)
	copy(b[2:], payload)
	return b
}

func splitEnvelope(b []byte) (uint16, []byte, error) {
	if len(b) < 2 {
		return 0, nil, api.ErrResolve.WithContext("reason", "request envelope too short")
	}
	return binary.LittleEndian.Uint16(b[:2]), b[2:], nil
}

// packOpaqueRef and unpackOpaqueRef tag a wheel entry with the session/slot
// it belongs to, so reapWheel can flip the originating slot from
// TxInProgress to AwaitingResp exactly when the packet is handed to the
// transport, never before.
func packOpaqueRef(sessionNum uint32, slotIndex int) uint64 {
	return uint64(sessionNum)<<32 | uint64(uint32(slotIndex))
}

func unpackOpaqueRef(ref uint64) (sessionNum uint32, slotIndex int) {
	return uint32(ref >> 32), int(uint32(ref))
}

// dataDesc resolves a session peer's data-plane address. RouteTag carries
// the peer's data-plane port, kept distinct from EndpointDesc.Port (the SM
// bootstrap port used for the connect/disconnect handshake) since a real
// transport adapter listens on its own port, separate from the Nexus's
// bootstrap socket.
func dataDesc(d api.EndpointDesc) api.EndpointDesc {
	return api.EndpointDesc{Hostname: d.Hostname, Port: uint16(d.RouteTag), RouteTag: d.RouteTag}
}
