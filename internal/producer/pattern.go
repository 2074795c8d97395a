package producer

import (
	"encoding/binary"
	"math"

	"github.com/airsched/go-airsched-server/internal/class"
)

// Pattern synthesizes count elements of the given type as little-endian
// bytes. The sequences mirror the original test generators so receivers can
// sanity-check decoded values by eye.
func Pattern(dt class.DataType, count uint16) []byte {
	b := make([]byte, int(count)*int(dt.Width()))
	switch dt {
	case class.Int8:
		for i := 0; i < int(count); i++ {
			b[i] = byte(i % 256)
		}
	case class.Int16:
		for i := 0; i < int(count); i++ {
			binary.LittleEndian.PutUint16(b[2*i:], uint16(int16(i*10)))
		}
	case class.Int32:
		for i := 0; i < int(count); i++ {
			binary.LittleEndian.PutUint32(b[4*i:], uint32(int32(i)))
		}
	case class.Float32:
		for i := 0; i < int(count); i++ {
			binary.LittleEndian.PutUint32(b[4*i:], math.Float32bits(float32(i)*0.1))
		}
	case class.Float64:
		for i := 0; i < int(count); i++ {
			binary.LittleEndian.PutUint64(b[8*i:], math.Float64bits(float64(i)*0.01))
		}
	}
	return b
}
