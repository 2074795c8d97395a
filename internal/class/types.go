package class

// Byte limits shared by the scheduler, the wire codec and the receiver.
const (
	// MaxPayload is the hard byte limit for one sample payload and for the
	// aggregate payload of one emitted frame.
	MaxPayload = 1400
	// QueueCap is the per-class queue capacity in samples.
	QueueCap = 50
	// MaxClasses is the number of traffic classes carried on the wire.
	MaxClasses = 4
)

// ID identifies a traffic class. C1..C3 are the periodic classes; Burst is
// the randomized aspiration class. The numeric order defines both queue
// iteration order and byte order inside an emitted frame.
type ID uint8

const (
	C1 ID = iota
	C2
	C3
	Burst
)

// Valid reports whether id names one of the four classes.
func (id ID) Valid() bool { return id < MaxClasses }

func (id ID) String() string {
	switch id {
	case C1:
		return "class1"
	case C2:
		return "class2"
	case C3:
		return "class3"
	case Burst:
		return "burst"
	}
	return "invalid"
}

// DataType is the element type a class carries. It travels on the wire as a
// single byte, so decoders must range-check before interpreting.
type DataType uint8

const (
	Int8 DataType = iota
	Int16
	Int32
	Float32
	Float64
)

var typeWidths = [...]uint16{1, 2, 4, 4, 8}

// Valid reports whether t is one of the five wire data types.
func (t DataType) Valid() bool { return int(t) < len(typeWidths) }

// Width returns the element width in bytes, or 0 for an invalid type.
func (t DataType) Width() uint16 {
	if !t.Valid() {
		return 0
	}
	return typeWidths[t]
}

func (t DataType) String() string {
	switch t {
	case Int8:
		return "i8"
	case Int16:
		return "i16"
	case Int32:
		return "i32"
	case Float32:
		return "f32"
	case Float64:
		return "f64"
	}
	return "invalid"
}

// ParseDataType maps a config-file name to a DataType.
func ParseDataType(s string) (DataType, bool) {
	switch s {
	case "i8", "int8":
		return Int8, true
	case "i16", "int16":
		return Int16, true
	case "i32", "int32":
		return Int32, true
	case "f32", "float32", "float":
		return Float32, true
	case "f64", "float64", "double":
		return Float64, true
	}
	return 0, false
}

// Sample is one typed batch of values from a single class, queued with an
// absolute deadline. Size is the valid byte count; only Data[:Size] is
// meaningful.
//
// Note: This is a convenience type. The wire codec maps payload bytes
// to/from emitted frames.
type Sample struct {
	Class    ID
	Deadline uint32 // absolute ms
	Type     DataType
	Count    uint16 // number of elements
	Size     uint16 // Count * Type.Width()
	Data     [MaxPayload]byte
}

// Payload returns the valid portion of the data buffer.
func (s *Sample) Payload() []byte { return s.Data[:s.Size] }
