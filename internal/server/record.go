package server

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/airsched/go-airsched-server/internal/class"
	"github.com/airsched/go-airsched-server/internal/recv"
)

// Subscribers receive deliveries as length-prefixed records:
//
//	u8  class
//	u8  data type
//	u16 element count
//	u32 latency ms
//	u8  flags (bit0 = truncated)
//	u16 data length
//	data bytes
//
// All fields little-endian, matching the radio wire format.
const recordHeaderLen = 1 + 1 + 2 + 4 + 1 + 2

const flagTruncated = 0x01

// AppendRecord serializes one delivery onto buf.
func AppendRecord(buf []byte, dv recv.Delivery) []byte {
	var hdr [recordHeaderLen]byte
	hdr[0] = byte(dv.Class)
	hdr[1] = byte(dv.Type)
	binary.LittleEndian.PutUint16(hdr[2:4], dv.Count)
	binary.LittleEndian.PutUint32(hdr[4:8], dv.LatencyMs)
	if dv.Truncated {
		hdr[8] |= flagTruncated
	}
	binary.LittleEndian.PutUint16(hdr[9:11], uint16(len(dv.Data)))
	buf = append(buf, hdr[:]...)
	return append(buf, dv.Data...)
}

// ReadRecord decodes one delivery record from r (used by client tooling and
// tests).
func ReadRecord(r io.Reader) (recv.Delivery, error) {
	var hdr [recordHeaderLen]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return recv.Delivery{}, err
	}
	dv := recv.Delivery{
		Class:     class.ID(hdr[0]),
		Type:      class.DataType(hdr[1]),
		Count:     binary.LittleEndian.Uint16(hdr[2:4]),
		LatencyMs: binary.LittleEndian.Uint32(hdr[4:8]),
		Truncated: hdr[8]&flagTruncated != 0,
	}
	if !dv.Class.Valid() || !dv.Type.Valid() {
		return recv.Delivery{}, fmt.Errorf("record: invalid class %d or type %d", hdr[0], hdr[1])
	}
	n := binary.LittleEndian.Uint16(hdr[9:11])
	dv.Data = make([]byte, n)
	if _, err := io.ReadFull(r, dv.Data); err != nil {
		return recv.Delivery{}, err
	}
	return dv, nil
}
