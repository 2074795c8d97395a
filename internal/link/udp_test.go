package link

import (
	"context"
	"testing"
	"time"
)

func TestUDP_RoundTrip(t *testing.T) {
	ap, err := ListenUDP("127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ap.Close()

	sta, err := DialUDP(ap.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer sta.Close()

	frame := []byte{0x08, 0x01, 0, 0, 1, 2, 3, 4, 5, 6}
	if err := sta.WriteFrame(frame); err != nil {
		t.Fatalf("station write: %v", err)
	}

	buf := make([]byte, ReadBufSize)
	n, _, err := ap.ReadFrame(buf)
	if err != nil {
		t.Fatalf("ap read: %v", err)
	}
	if string(buf[:n]) != string(frame) {
		t.Fatalf("frame mismatch: % X", buf[:n])
	}

	// The AP learned the station's address and can answer.
	reply := []byte{0x08, 0x02, 0xAA}
	if err := ap.WriteFrame(reply); err != nil {
		t.Fatalf("ap write: %v", err)
	}
	n, _, err = sta.ReadFrame(buf)
	if err != nil {
		t.Fatalf("station read: %v", err)
	}
	if string(buf[:n]) != string(reply) {
		t.Fatalf("reply mismatch: % X", buf[:n])
	}
}

func TestUDP_WriteWithoutPeerFails(t *testing.T) {
	ap, err := ListenUDP("127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ap.Close()
	if err := ap.WriteFrame([]byte{1}); err == nil {
		t.Fatalf("write before any peer succeeded")
	}
}

func TestTXWriter_WritesThroughDevice(t *testing.T) {
	ap, _ := ListenUDP("127.0.0.1:0")
	defer ap.Close()
	sta, _ := DialUDP(ap.Addr().String())
	defer sta.Close()

	w := NewTXWriter(context.Background(), sta, 8)
	defer w.Close()
	if err := w.Transmit([]byte{0x08, 0x01, 0x42}); err != nil {
		t.Fatalf("transmit: %v", err)
	}

	buf := make([]byte, ReadBufSize)
	_ = ap.conn.SetReadDeadline(time.Now().Add(time.Second))
	n, _, err := ap.ReadFrame(buf)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if n != 3 || buf[2] != 0x42 {
		t.Fatalf("got % X", buf[:n])
	}
}
