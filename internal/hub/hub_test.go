package hub

import (
	"testing"
	"time"

	"github.com/airsched/go-airsched-server/internal/class"
	"github.com/airsched/go-airsched-server/internal/recv"
)

func testDelivery() recv.Delivery {
	return recv.Delivery{Class: class.C1, Type: class.Int32, Count: 1, Data: []byte{1, 0, 0, 0}}
}

func TestHub_Broadcast_DropDoesNotBlock(t *testing.T) {
	h := New()
	cl := &Client{Out: make(chan recv.Delivery, 4), Closed: make(chan struct{})}
	h.Add(cl)
	defer h.Remove(cl)

	// Don't read from cl.Out to simulate slow client
	start := time.Now()
	for i := 0; i < 1000; i++ {
		h.Broadcast(testDelivery())
	}
	elapsed := time.Since(start)
	if elapsed > time.Second {
		t.Fatalf("Broadcast took too long: %s", elapsed)
	}
	// Buffer should be full
	if len(cl.Out) != cap(cl.Out) {
		t.Fatalf("expected client buffer to be full, got len=%d cap=%d", len(cl.Out), cap(cl.Out))
	}
}

func TestHub_Broadcast_DropKeepsOthersFlowing(t *testing.T) {
	h := New()
	slow := &Client{Out: make(chan recv.Delivery, 1), Closed: make(chan struct{})}
	fast := &Client{Out: make(chan recv.Delivery, 16), Closed: make(chan struct{})}
	h.Add(slow)
	h.Add(fast)
	defer h.Remove(slow)
	defer h.Remove(fast)

	// Fill slow buffer
	h.Broadcast(testDelivery())
	select {
	case <-slow.Out:
		// the non-blocking read drains the one buffered delivery, so slow
		// has room for exactly one of the burst below
	default:
	}

	// Now send bursts that would drop on slow but must be delivered to fast
	for i := 0; i < 10; i++ {
		h.Broadcast(testDelivery())
	}

	got := 0
	timeout := time.After(200 * time.Millisecond)
loop:
	for {
		select {
		case <-fast.Out:
			got++
			if got >= 11 {
				break loop
			}
		case <-timeout:
			break loop
		}
	}
	if got < 11 {
		t.Fatalf("fast client received %d deliveries, want 11", got)
	}
}

func TestHub_KickPolicyClosesSlowClient(t *testing.T) {
	h := New()
	h.Policy = PolicyKick
	slow := &Client{Out: make(chan recv.Delivery, 1), Closed: make(chan struct{})}
	h.Add(slow)
	defer h.Remove(slow)

	h.Broadcast(testDelivery())
	h.Broadcast(testDelivery()) // overflows; kick policy closes the client

	select {
	case <-slow.Closed:
	case <-time.After(200 * time.Millisecond):
		t.Fatalf("slow client not kicked")
	}
}

func TestHub_AddRemoveCount(t *testing.T) {
	h := New()
	a := &Client{Out: make(chan recv.Delivery, 1), Closed: make(chan struct{})}
	b := &Client{Out: make(chan recv.Delivery, 1), Closed: make(chan struct{})}
	h.Add(a)
	h.Add(b)
	if h.Count() != 2 {
		t.Fatalf("count=%d", h.Count())
	}
	h.Remove(a)
	h.Remove(a) // idempotent
	if h.Count() != 1 {
		t.Fatalf("count=%d", h.Count())
	}
}
