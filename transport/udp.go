// File: transport/udp.go
// Author: momentics <momentics@gmail.com>
//
// UDPAdapter is a reference api.Transport over plain UDP datagrams: good
// enough to drive the engine end-to-end without RDMA hardware. Memory
// registration is a no-op since UDP has no equivalent of an RDMA memory
// region. Grounded in the same net.ListenUDP/ReadFromUDP idiom as the
// pack's own UDP RPC transport (liamzebedee/go-qrp's udp.go).

package transport

import (
	"encoding/binary"
	"fmt"
	"net"
	"time"

	"github.com/chlin501/eRPC/api"
)

const dataPacketHeaderSize = 4 + 8 + 4 + 1 + 4 // session, msg, pkt num, type, payload len

// UDPAdapter implements api.Transport over a single bound UDP socket.
type UDPAdapter struct {
	conn    *net.UDPConn
	mtu     int
	nextCH  uint64
	nextMR  uint64
}

// ListenUDP binds a UDPAdapter to addr (host:port) with the given MTU
// bounding each datagram's payload.
func ListenUDP(addr string, mtu int) (*UDPAdapter, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, err
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return nil, err
	}
	return &UDPAdapter{conn: conn, mtu: mtu}, nil
}

// Close releases the underlying socket.
func (u *UDPAdapter) Close() error { return u.conn.Close() }

// RegisterMemory is a no-op: UDP has no memory-registration step.
func (u *UDPAdapter) RegisterMemory(buf []byte) (api.MemRegHandle, error) {
	u.nextMR++
	return api.MemRegHandle{Opaque: u.nextMR}, nil
}

// DeregisterMemory is a no-op.
func (u *UDPAdapter) DeregisterMemory(api.MemRegHandle) error { return nil }

func encodeDataPacket(p api.Packet) []byte {
	b := make([]byte, dataPacketHeaderSize+len(p.Payload))
	binary.LittleEndian.PutUint32(b[0:4], p.SessionNum)
	binary.LittleEndian.PutUint64(b[4:12], p.MsgNum)
	binary.LittleEndian.PutUint32(b[12:16], p.PktNum)
	b[16] = byte(p.PktType)
	binary.LittleEndian.PutUint32(b[17:21], uint32(len(p.Payload)))
	copy(b[21:], p.Payload)
	return b
}

func decodeDataPacket(b []byte) (api.Packet, error) {
	if len(b) < dataPacketHeaderSize {
		return api.Packet{}, fmt.Errorf("transport: datagram too short (%d bytes)", len(b))
	}
	payloadLen := binary.LittleEndian.Uint32(b[17:21])
	if int(payloadLen) > len(b)-dataPacketHeaderSize {
		return api.Packet{}, fmt.Errorf("transport: payload length %d exceeds datagram", payloadLen)
	}
	return api.Packet{
		SessionNum: binary.LittleEndian.Uint32(b[0:4]),
		MsgNum:     binary.LittleEndian.Uint64(b[4:12]),
		PktNum:     binary.LittleEndian.Uint32(b[12:16]),
		PktType:    api.PacketType(b[16]),
		Payload:    append([]byte(nil), b[21:21+payloadLen]...),
	}, nil
}

// TxBurst sends each packet as one UDP datagram to its destination,
// resolved from EndpointDesc.Hostname:Port.
func (u *UDPAdapter) TxBurst(pkts []api.OutPacket) ([]api.CompletionHandle, error) {
	chs := make([]api.CompletionHandle, 0, len(pkts))
	for _, op := range pkts {
		dst, err := net.ResolveUDPAddr("udp", fmt.Sprintf("%s:%d", op.Dest.Hostname, op.Dest.Port))
		if err != nil {
			return chs, err
		}
		if _, err := u.conn.WriteToUDP(encodeDataPacket(op.Pkt), dst); err != nil {
			return chs, err
		}
		u.nextCH++
		chs = append(chs, api.CompletionHandle{ID: u.nextCH})
	}
	return chs, nil
}

// RxBurst polls once for a pending datagram. The read deadline is set one
// microsecond ahead, since a deadline already in the past makes the net
// package fail the read without attempting it.
func (u *UDPAdapter) RxBurst() ([]api.Packet, error) {
	buf := make([]byte, u.mtu+dataPacketHeaderSize)
	if err := u.conn.SetReadDeadline(time.Now().Add(time.Microsecond)); err != nil {
		return nil, err
	}
	n, _, err := u.conn.ReadFromUDP(buf)
	if err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return nil, nil
		}
		return nil, err
	}
	pkt, err := decodeDataPacket(buf[:n])
	if err != nil {
		return nil, err
	}
	return []api.Packet{pkt}, nil
}

// TxFlush is a no-op: WriteToUDP already submits each datagram synchronously.
func (u *UDPAdapter) TxFlush() error { return nil }
