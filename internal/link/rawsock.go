//go:build linux

package link

import (
	"fmt"
	"net"

	"golang.org/x/sys/unix"
)

// RawSock writes frames straight onto a network interface with an AF_PACKET
// socket. Used with an interface in monitor/injection mode where the kernel
// passes our 802.11-style frames through untouched.
type RawSock struct {
	fd      int
	ifindex int
}

func htons(v uint16) uint16 { return v<<8 | v>>8 }

// OpenRaw binds a raw packet socket to the named interface.
func OpenRaw(iface string) (*RawSock, error) {
	fd, err := unix.Socket(unix.AF_PACKET, unix.SOCK_RAW, int(htons(unix.ETH_P_ALL)))
	if err != nil {
		return nil, fmt.Errorf("socket(AF_PACKET): %w", err)
	}
	ifi, err := net.InterfaceByName(iface)
	if err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("if %q: %w", iface, err)
	}
	sa := &unix.SockaddrLinklayer{Protocol: htons(unix.ETH_P_ALL), Ifindex: ifi.Index}
	if err := unix.Bind(fd, sa); err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("bind(packet@%s): %w", iface, err)
	}
	return &RawSock{fd: fd, ifindex: ifi.Index}, nil
}

func (d *RawSock) Close() error { return unix.Close(d.fd) }

// ReadFrame reads one raw frame from the socket. No radio metadata is
// available on this path.
func (d *RawSock) ReadFrame(buf []byte) (int, RxControl, error) {
	n, _, err := unix.Recvfrom(d.fd, buf, 0)
	if err != nil {
		return 0, RxControl{}, err
	}
	return n, RxControl{}, nil
}

// WriteFrame injects one frame on the bound interface.
func (d *RawSock) WriteFrame(frame []byte) error {
	sa := &unix.SockaddrLinklayer{Protocol: htons(unix.ETH_P_ALL), Ifindex: d.ifindex}
	return unix.Sendto(d.fd, frame, 0, sa)
}
