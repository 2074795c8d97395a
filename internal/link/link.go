package link

import "github.com/airsched/go-airsched-server/internal/wire"

// RxControl is the receive-control record the link layer attaches to every
// raw frame: link-quality metadata the power controller consumes. Backends
// without radio metadata (UDP, raw sockets without radiotap) leave RSSI at 0
// and clear HasRSSI.
type RxControl struct {
	RSSI    int8
	Channel uint8
	HasRSSI bool
}

// Handler consumes one raw received frame. The buffer is only valid for the
// duration of the call.
type Handler func(frame []byte, ctl RxControl)

// Device is a point-to-point frame pipe to the radio or its stand-in.
// Implemented by the UDP and raw-socket backends; the serial backend reads
// and writes through serial.Port instead.
type Device interface {
	// ReadFrame blocks for the next raw frame, filling buf.
	ReadFrame(buf []byte) (int, RxControl, error)
	WriteFrame(frame []byte) error
	Close() error
}

// ReadBufSize comfortably holds the largest legal datagram.
const ReadBufSize = wire.MaxFrameLen + 64
