package wire

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/airsched/go-airsched-server/internal/class"
)

// AppHeader is the packed application header carried after the MAC header.
// Wire layout, little-endian, no interior padding:
//
//	u32     signature = 0xA5B6C7D0
//	[4]u16  class_counts (elements per class in this frame)
//	[4]u8   class_types
//	u16     total_size  (payload bytes following the header)
//	u32     timestamp   (sender monotonic ms at emission)
type AppHeader struct {
	ClassCounts [class.MaxClasses]uint16
	ClassTypes  [class.MaxClasses]class.DataType
	TotalSize   uint16
	Timestamp   uint32
}

const (
	Signature = 0xA5B6C7D0

	AppHeaderLen = 4 + 2*class.MaxClasses + class.MaxClasses + 2 + 4

	// MaxFrameLen bounds every datagram this codec will produce or accept.
	MaxFrameLen = MacHeaderLen + AppHeaderLen + class.MaxPayload
)

// ExpectedPayloadBytes is the payload size implied by the class counts and
// types. A disagreement with TotalSize is a non-fatal anomaly for receivers.
func (h *AppHeader) ExpectedPayloadBytes() int {
	n := 0
	for i := 0; i < class.MaxClasses; i++ {
		n += int(h.ClassCounts[i]) * int(h.ClassTypes[i].Width())
	}
	return n
}

// Decode ladder sentinels, in check order.
var (
	ErrTooShort      = errors.New("wire: too short for 802.11 header")
	ErrNotOurFrame   = errors.New("wire: not a data frame for this role")
	ErrNotForUs      = errors.New("wire: destination is not local or broadcast")
	ErrShortHeader   = errors.New("wire: too short for application header")
	ErrBadSignature  = errors.New("wire: bad application signature")
	ErrInvalidHeader = errors.New("wire: invalid application header")
)

// DecodedFrame is the result of a successful (possibly truncated) decode.
// Payload aliases the input buffer; callers copy if they keep it.
type DecodedFrame struct {
	Mac       MacHeader
	Header    AppHeader
	Payload   []byte
	Truncated bool
}

// Codec encodes/decodes framed datagrams. Stateless and safe for concurrent use.
type Codec struct{}

// Encode builds one wire datagram: MAC header, packed AppHeader, payload.
// The payload length must equal hdr.TotalSize and fit the frame byte cap.
func (Codec) Encode(mac MacHeader, hdr AppHeader, payload []byte) ([]byte, error) {
	if len(payload) != int(hdr.TotalSize) {
		return nil, fmt.Errorf("wire encode: payload %d bytes, header says %d", len(payload), hdr.TotalSize)
	}
	if len(payload) > class.MaxPayload {
		return nil, fmt.Errorf("wire encode: payload %d exceeds cap %d", len(payload), class.MaxPayload)
	}
	buf := make([]byte, MacHeaderLen+AppHeaderLen+len(payload))
	putMacHeader(buf, mac)
	putAppHeader(buf[MacHeaderLen:], hdr)
	copy(buf[MacHeaderLen+AppHeaderLen:], payload)
	return buf, nil
}

func putAppHeader(b []byte, h AppHeader) {
	binary.LittleEndian.PutUint32(b[0:4], Signature)
	off := 4
	for i := 0; i < class.MaxClasses; i++ {
		binary.LittleEndian.PutUint16(b[off:off+2], h.ClassCounts[i])
		off += 2
	}
	for i := 0; i < class.MaxClasses; i++ {
		b[off] = byte(h.ClassTypes[i])
		off++
	}
	binary.LittleEndian.PutUint16(b[off:off+2], h.TotalSize)
	off += 2
	binary.LittleEndian.PutUint32(b[off:off+4], h.Timestamp)
}

func parseAppHeader(b []byte) (AppHeader, bool) {
	var h AppHeader
	if binary.LittleEndian.Uint32(b[0:4]) != Signature {
		return h, false
	}
	off := 4
	for i := 0; i < class.MaxClasses; i++ {
		h.ClassCounts[i] = binary.LittleEndian.Uint16(b[off : off+2])
		off += 2
	}
	for i := 0; i < class.MaxClasses; i++ {
		h.ClassTypes[i] = class.DataType(b[off])
		off++
	}
	h.TotalSize = binary.LittleEndian.Uint16(b[off : off+2])
	off += 2
	h.Timestamp = binary.LittleEndian.Uint32(b[off : off+4])
	return h, true
}

// Decode validates and parses one received datagram for the given local role
// and address. The checks run in a fixed order so callers can classify drops:
// frame length, frame type and direction, addressing, header length,
// signature, header validity. A frame shorter than its declared payload is
// returned with Truncated set rather than rejected; the caller processes
// what is available.
func (Codec) Decode(frame []byte, role Role, local MACAddr) (*DecodedFrame, error) {
	if len(frame) < MacHeaderLen {
		return nil, ErrTooShort
	}
	if frame[0] != FrameTypeData || frame[1] != role.RxDir() {
		return nil, ErrNotOurFrame
	}
	mac := parseMacHeader(frame)
	if mac.Dest != local && !mac.Dest.IsBroadcast() {
		return nil, ErrNotForUs
	}
	if len(frame) < MacHeaderLen+AppHeaderLen {
		return nil, ErrShortHeader
	}
	hdr, ok := parseAppHeader(frame[MacHeaderLen:])
	if !ok {
		return nil, ErrBadSignature
	}
	if int(hdr.TotalSize) > class.MaxPayload {
		return nil, fmt.Errorf("%w: total_size %d", ErrInvalidHeader, hdr.TotalSize)
	}
	for i := 0; i < class.MaxClasses; i++ {
		if !hdr.ClassTypes[i].Valid() {
			return nil, fmt.Errorf("%w: class_types[%d]=%d", ErrInvalidHeader, i, hdr.ClassTypes[i])
		}
	}
	df := &DecodedFrame{Mac: mac, Header: hdr}
	avail := len(frame) - MacHeaderLen - AppHeaderLen
	if avail < int(hdr.TotalSize) {
		df.Truncated = true
		df.Payload = frame[MacHeaderLen+AppHeaderLen:]
		return df, nil
	}
	df.Payload = frame[MacHeaderLen+AppHeaderLen : MacHeaderLen+AppHeaderLen+int(hdr.TotalSize)]
	return df, nil
}
