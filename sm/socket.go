// File: sm/socket.go
// Author: momentics <momentics@gmail.com>
//
// The Nexus's UDP bootstrap socket: connect/disconnect handshake packets
// travel here, outside the data-plane transport. Polling sets a read
// deadline one microsecond ahead: a deadline already in the past makes the
// net package fail the read without attempting it, so a pending datagram
// is returned at once and an empty socket times out shortly after.

package sm

import (
	"errors"
	"net"
	"time"

	"github.com/chlin501/eRPC/api"
	"github.com/chlin501/eRPC/pool"
)

// Socket is the SM bootstrap UDP endpoint.
type Socket struct {
	conn    *net.UDPConn
	bufPool api.BytePool
}

// Listen opens a UDP socket bound to addr (host:port) for SM traffic.
func Listen(addr string) (*Socket, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, err
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return nil, err
	}
	return &Socket{conn: conn, bufPool: pool.NewBytePool(WireSize)}, nil
}

// Close releases the socket.
func (s *Socket) Close() error {
	return s.conn.Close()
}

// LocalAddr returns the socket's bound local address, letting a caller that
// bound to port 0 discover the port the kernel assigned.
func (s *Socket) LocalAddr() *net.UDPAddr {
	return s.conn.LocalAddr().(*net.UDPAddr)
}

// SendTo encodes and sends pkt to dst.
func (s *Socket) SendTo(pkt *Packet, dst *net.UDPAddr) error {
	_, err := s.conn.WriteToUDP(pkt.Encode(), dst)
	return err
}

// TryRecv polls for one pending SM packet, waiting no longer than a
// one-microsecond read deadline. It returns (nil, nil, nil) if nothing is
// currently available.
func (s *Socket) TryRecv() (*Packet, *net.UDPAddr, error) {
	buf := s.bufPool.Acquire(WireSize)
	defer s.bufPool.Release(buf)
	if err := s.conn.SetReadDeadline(time.Now().Add(time.Microsecond)); err != nil {
		return nil, nil, err
	}
	n, addr, err := s.conn.ReadFromUDP(buf)
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return nil, nil, nil
		}
		return nil, nil, err
	}
	pkt, err := Decode(buf[:n])
	if err != nil {
		return nil, nil, err
	}
	return pkt, addr, nil
}
