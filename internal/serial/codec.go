package serial

import (
	"bytes"
	"encoding/binary"

	"github.com/airsched/go-airsched-server/internal/wire"
)

// Codec frames whole wire datagrams for a UART-attached radio modem:
//
//	[0xA5, 0x5A, len_lo, len_hi, frame..., checksum]
//
// len is the frame byte count (u16 LE); checksum = 0xA5 + len_lo + len_hi +
// sum(frame) (mod 256). The decoder scans for the preamble so it resyncs
// after line noise.
type Codec struct{}

const (
	pre0 = 0xA5
	pre1 = 0x5A

	minLn = wire.MacHeaderLen // anything shorter cannot be a frame
	maxLn = wire.MaxFrameLen
)

// CompactBuffer reclaims consumed prefix capacity when underlying buffer
// grows too large relative to unread bytes. It returns true if compaction
// occurred. Thresholds chosen to avoid excessive copying.
func CompactBuffer(b *bytes.Buffer) bool {
	data := b.Bytes()
	// If buffer size < 4KB, skip.
	if len(data) < 4096 {
		return false
	}
	// If unread < 25% of capacity, compact.
	if cap(data) > 0 && len(data)*4 < cap(data) {
		clone := make([]byte, len(data))
		copy(clone, data)
		b.Reset()
		_, _ = b.Write(clone)
		return true
	}
	return false
}

// Encode wraps one frame for the UART line.
func (Codec) Encode(frame []byte) []byte {
	n := len(frame)
	out := make([]byte, n+5)
	out[0] = pre0
	out[1] = pre1
	binary.LittleEndian.PutUint16(out[2:4], uint16(n))
	sum := byte(pre0) + out[2] + out[3]
	for i, b := range frame {
		out[4+i] = b
		sum += b
	}
	out[4+n] = sum
	return out
}

// DecodeStream drains complete frames from in, invoking out for each.
// Malformed stretches are skipped one byte at a time until the next
// preamble; onMalformed (if non-nil) is called per reject.
func (Codec) DecodeStream(in *bytes.Buffer, out func([]byte), onMalformed func()) error {
	header := []byte{pre0, pre1}
	reject := func() {
		if onMalformed != nil {
			onMalformed()
		}
	}
	for {
		data := in.Bytes()
		// Periodically compact to avoid unbounded growth from misaligned garbage
		_ = CompactBuffer(in)
		if len(data) < 4 { // need preamble + length
			return nil
		}

		// align to preamble
		i := bytes.Index(data, header)
		if i < 0 {
			// keep last byte in case next buffer starts with preamble second byte
			if in.Len() > 1 {
				last := data[len(data)-1]
				in.Reset()
				_ = in.WriteByte(last)
			}
			return nil
		}
		if i > 0 {
			in.Next(i)
			continue
		}

		ln := int(binary.LittleEndian.Uint16(data[2:4]))
		if ln < minLn || ln > maxLn {
			// malformed length; advance one byte to resync
			reject()
			in.Next(1)
			continue
		}

		req := 4 + ln + 1 // preamble + length + frame + checksum
		if len(data) < req {
			return nil
		}

		sum := byte(pre0) + data[2] + data[3]
		for _, b := range data[4 : req-1] {
			sum += b
		}
		if sum != data[req-1] {
			// checksum mismatch: count and attempt resync
			reject()
			in.Next(1)
			continue
		}

		frame := make([]byte, ln)
		copy(frame, data[4:4+ln])
		out(frame)
		in.Next(req)
	}
}
