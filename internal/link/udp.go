package link

import (
	"fmt"
	"net"
	"sync"
)

// UDP carries each wire frame as one datagram. The development and emulation
// backend: a station dials the AP's address; the AP listens and answers the
// last station heard from.
type UDP struct {
	conn *net.UDPConn

	mu   sync.Mutex
	peer *net.UDPAddr // set at dial time; replaced by the source of each received datagram
}

// DialUDP opens a station-side link to the given AP address.
func DialUDP(remote string) (*UDP, error) {
	raddr, err := net.ResolveUDPAddr("udp", remote)
	if err != nil {
		return nil, fmt.Errorf("resolve %q: %w", remote, err)
	}
	conn, err := net.ListenUDP("udp", nil)
	if err != nil {
		return nil, fmt.Errorf("udp open: %w", err)
	}
	return &UDP{conn: conn, peer: raddr}, nil
}

// ListenUDP opens an AP-side link bound to addr.
func ListenUDP(addr string) (*UDP, error) {
	laddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("resolve %q: %w", addr, err)
	}
	conn, err := net.ListenUDP("udp", laddr)
	if err != nil {
		return nil, fmt.Errorf("udp listen: %w", err)
	}
	return &UDP{conn: conn}, nil
}

// Addr returns the local bound address.
func (u *UDP) Addr() net.Addr { return u.conn.LocalAddr() }

func (u *UDP) ReadFrame(buf []byte) (int, RxControl, error) {
	n, from, err := u.conn.ReadFromUDP(buf)
	if err != nil {
		return 0, RxControl{}, err
	}
	u.mu.Lock()
	if u.peer == nil || !u.peer.IP.Equal(from.IP) || u.peer.Port != from.Port {
		u.peer = from
	}
	u.mu.Unlock()
	return n, RxControl{}, nil
}

func (u *UDP) WriteFrame(frame []byte) error {
	u.mu.Lock()
	peer := u.peer
	u.mu.Unlock()
	if peer == nil {
		return fmt.Errorf("udp write: no peer yet")
	}
	_, err := u.conn.WriteToUDP(frame, peer)
	return err
}

func (u *UDP) Close() error { return u.conn.Close() }
