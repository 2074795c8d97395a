package wire

import (
	"encoding/binary"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/airsched/go-airsched-server/internal/class"
)

var (
	staMAC = MACAddr{0x24, 0x6F, 0x28, 0xAA, 0x01, 0x02}
	apMAC  = MACAddr{0x48, 0x31, 0xB7, 0x01, 0x9D, 0x49}
)

func mkHeader(counts [class.MaxClasses]uint16, types [class.MaxClasses]class.DataType, size uint16, ts uint32) AppHeader {
	return AppHeader{ClassCounts: counts, ClassTypes: types, TotalSize: size, Timestamp: ts}
}

func mkFrame(t *testing.T, hdr AppHeader, payload []byte) []byte {
	t.Helper()
	mac := MacHeader{Dir: DirStationToAP, Dest: apMAC, Src: staMAC, BSSID: apMAC}
	frame, err := Codec{}.Encode(mac, hdr, payload)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	return frame
}

func TestCodec_RoundTrip(t *testing.T) {
	payload := make([]byte, 96)
	for i := range payload {
		payload[i] = byte(i)
	}
	hdr := mkHeader(
		[class.MaxClasses]uint16{10, 8, 12, 0},
		[class.MaxClasses]class.DataType{class.Int32, class.Float32, class.Int16, class.Int8},
		96, 2000,
	)
	frame := mkFrame(t, hdr, payload)
	if len(frame) != MacHeaderLen+AppHeaderLen+96 {
		t.Fatalf("frame length %d", len(frame))
	}

	df, err := Codec{}.Decode(frame, RoleAP, apMAC)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if df.Truncated {
		t.Fatalf("unexpected truncation")
	}
	if diff := cmp.Diff(hdr, df.Header); diff != "" {
		t.Fatalf("header mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(payload, df.Payload); diff != "" {
		t.Fatalf("payload mismatch (-want +got):\n%s", diff)
	}
	if df.Mac.Src != staMAC || df.Mac.Dest != apMAC {
		t.Fatalf("mac mismatch: %+v", df.Mac)
	}
	if got := df.Header.ExpectedPayloadBytes(); got != 96 {
		t.Fatalf("expected payload bytes %d, want 96", got)
	}
}

func TestCodec_RoundTripMaxPayload(t *testing.T) {
	payload := make([]byte, class.MaxPayload)
	hdr := mkHeader(
		[class.MaxClasses]uint16{class.MaxPayload, 0, 0, 0},
		[class.MaxClasses]class.DataType{class.Int8, class.Int8, class.Int8, class.Int8},
		class.MaxPayload, 1,
	)
	frame := mkFrame(t, hdr, payload)
	if _, err := (Codec{}).Decode(frame, RoleAP, apMAC); err != nil {
		t.Fatalf("decode at cap: %v", err)
	}

	hdr.TotalSize = class.MaxPayload + 1
	if _, err := (Codec{}).Encode(MacHeader{Dir: DirStationToAP}, hdr, make([]byte, class.MaxPayload+1)); err == nil {
		t.Fatalf("encode above cap accepted")
	}
}

func TestCodec_DecodeLadder(t *testing.T) {
	good := mkFrame(t, mkHeader(
		[class.MaxClasses]uint16{1, 0, 0, 0},
		[class.MaxClasses]class.DataType{class.Int32, class.Int32, class.Int32, class.Int32},
		4, 10,
	), []byte{1, 2, 3, 4})

	t.Run("too_short", func(t *testing.T) {
		if _, err := (Codec{}).Decode(good[:16], RoleAP, apMAC); !errors.Is(err, ErrTooShort) {
			t.Fatalf("err=%v", err)
		}
	})
	t.Run("wrong_frame_type", func(t *testing.T) {
		bad := append([]byte(nil), good...)
		bad[0] = 0x80 // beacon
		if _, err := (Codec{}).Decode(bad, RoleAP, apMAC); !errors.Is(err, ErrNotOurFrame) {
			t.Fatalf("err=%v", err)
		}
	})
	t.Run("wrong_direction", func(t *testing.T) {
		// An AP must not accept AP->station frames (promiscuous echo).
		bad := append([]byte(nil), good...)
		bad[1] = DirAPToStation
		if _, err := (Codec{}).Decode(bad, RoleAP, apMAC); !errors.Is(err, ErrNotOurFrame) {
			t.Fatalf("err=%v", err)
		}
	})
	t.Run("not_for_us", func(t *testing.T) {
		other := MACAddr{1, 2, 3, 4, 5, 6}
		if _, err := (Codec{}).Decode(good, RoleAP, other); !errors.Is(err, ErrNotForUs) {
			t.Fatalf("err=%v", err)
		}
	})
	t.Run("broadcast_accepted", func(t *testing.T) {
		bc := append([]byte(nil), good...)
		copy(bc[4:10], Broadcast[:])
		other := MACAddr{1, 2, 3, 4, 5, 6}
		if _, err := (Codec{}).Decode(bc, RoleAP, other); err != nil {
			t.Fatalf("broadcast rejected: %v", err)
		}
	})
	t.Run("short_header", func(t *testing.T) {
		if _, err := (Codec{}).Decode(good[:MacHeaderLen+AppHeaderLen-1], RoleAP, apMAC); !errors.Is(err, ErrShortHeader) {
			t.Fatalf("err=%v", err)
		}
	})
	t.Run("bad_signature", func(t *testing.T) {
		bad := append([]byte(nil), good...)
		binary.LittleEndian.PutUint32(bad[MacHeaderLen:], 0xDEADBEEF)
		if _, err := (Codec{}).Decode(bad, RoleAP, apMAC); !errors.Is(err, ErrBadSignature) {
			t.Fatalf("err=%v", err)
		}
	})
	t.Run("oversize_total", func(t *testing.T) {
		bad := append([]byte(nil), good...)
		// total_size lives after signature + counts + types
		off := MacHeaderLen + 4 + 2*class.MaxClasses + class.MaxClasses
		binary.LittleEndian.PutUint16(bad[off:], 2000)
		if _, err := (Codec{}).Decode(bad, RoleAP, apMAC); !errors.Is(err, ErrInvalidHeader) {
			t.Fatalf("err=%v", err)
		}
	})
	t.Run("bad_class_type", func(t *testing.T) {
		bad := append([]byte(nil), good...)
		bad[MacHeaderLen+4+2*class.MaxClasses] = 9
		if _, err := (Codec{}).Decode(bad, RoleAP, apMAC); !errors.Is(err, ErrInvalidHeader) {
			t.Fatalf("err=%v", err)
		}
	})
}

func TestCodec_TruncatedBestEffort(t *testing.T) {
	payload := make([]byte, 40)
	hdr := mkHeader(
		[class.MaxClasses]uint16{10, 0, 0, 0},
		[class.MaxClasses]class.DataType{class.Int32, class.Int32, class.Int32, class.Int32},
		40, 123,
	)
	frame := mkFrame(t, hdr, payload)
	df, err := Codec{}.Decode(frame[:len(frame)-25], RoleAP, apMAC)
	if err != nil {
		t.Fatalf("truncated frame rejected: %v", err)
	}
	if !df.Truncated {
		t.Fatalf("truncation flag not set")
	}
	if len(df.Payload) != 15 {
		t.Fatalf("best-effort payload %d bytes, want 15", len(df.Payload))
	}
}

func TestRole_DirectionBits(t *testing.T) {
	if RoleStation.TxDir() != DirStationToAP || RoleAP.RxDir() != DirStationToAP {
		t.Fatalf("station->AP bits wrong")
	}
	if RoleAP.TxDir() != DirAPToStation || RoleStation.RxDir() != DirAPToStation {
		t.Fatalf("AP->station bits wrong")
	}
}

func BenchmarkCodec_Encode(b *testing.B) {
	payload := make([]byte, 1024)
	hdr := mkHeader(
		[class.MaxClasses]uint16{256, 0, 0, 0},
		[class.MaxClasses]class.DataType{class.Int32, class.Int32, class.Int32, class.Int32},
		1024, 5,
	)
	mac := MacHeader{Dir: DirStationToAP, Dest: apMAC, Src: staMAC, BSSID: apMAC}
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_, _ = Codec{}.Encode(mac, hdr, payload)
	}
}

func BenchmarkCodec_Decode(b *testing.B) {
	payload := make([]byte, 1024)
	hdr := mkHeader(
		[class.MaxClasses]uint16{256, 0, 0, 0},
		[class.MaxClasses]class.DataType{class.Int32, class.Int32, class.Int32, class.Int32},
		1024, 5,
	)
	mac := MacHeader{Dir: DirStationToAP, Dest: apMAC, Src: staMAC, BSSID: apMAC}
	frame, _ := Codec{}.Encode(mac, hdr, payload)
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_, _ = Codec{}.Decode(frame, RoleAP, apMAC)
	}
}
