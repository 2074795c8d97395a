package producer

import (
	"context"
	"encoding/binary"
	"sync"
	"testing"
	"time"

	"github.com/airsched/go-airsched-server/internal/class"
	"github.com/airsched/go-airsched-server/internal/sched"
)

type recordingSubmitter struct {
	mu      sync.Mutex
	submits []class.ID
	counts  []uint16
	sizes   []int
	err     error
}

func (r *recordingSubmitter) Submit(id class.ID, count uint16, data []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.submits = append(r.submits, id)
	r.counts = append(r.counts, count)
	r.sizes = append(r.sizes, len(data))
	return nil
}

func (r *recordingSubmitter) ClassType(id class.ID) class.DataType { return class.Int32 }

func (r *recordingSubmitter) total() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.submits)
}

func TestPattern_SizesAndValues(t *testing.T) {
	cases := []struct {
		dt   class.DataType
		n    uint16
		size int
	}{
		{class.Int8, 10, 10},
		{class.Int16, 10, 20},
		{class.Int32, 10, 40},
		{class.Float32, 8, 32},
		{class.Float64, 4, 32},
	}
	for _, c := range cases {
		b := Pattern(c.dt, c.n)
		if len(b) != c.size {
			t.Fatalf("%v: size %d want %d", c.dt, len(b), c.size)
		}
	}
	// Int32 pattern is the element index.
	b := Pattern(class.Int32, 4)
	for i := 0; i < 4; i++ {
		if binary.LittleEndian.Uint32(b[4*i:]) != uint32(i) {
			t.Fatalf("int32 pattern[%d] = %d", i, binary.LittleEndian.Uint32(b[4*i:]))
		}
	}
	// Int16 pattern steps by 10.
	b = Pattern(class.Int16, 3)
	if binary.LittleEndian.Uint16(b[4:]) != 20 {
		t.Fatalf("int16 pattern[2] = %d", binary.LittleEndian.Uint16(b[4:]))
	}
}

func TestPeriodic_SubmitsOnCadence(t *testing.T) {
	rec := &recordingSubmitter{}
	p := NewPeriodic(class.C1, 10, 10*time.Millisecond, rec)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { p.Run(ctx); close(done) }()

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) && rec.total() < 3 {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	<-done
	if rec.total() < 3 {
		t.Fatalf("got %d submissions", rec.total())
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	for i, id := range rec.submits {
		if id != class.C1 || rec.counts[i] != 10 || rec.sizes[i] != 40 {
			t.Fatalf("submit %d: id=%v count=%d size=%d", i, id, rec.counts[i], rec.sizes[i])
		}
	}
}

func TestPeriodic_QueueFullCountedNotFatal(t *testing.T) {
	rec := &recordingSubmitter{err: sched.ErrQueueFull}
	p := NewPeriodic(class.C2, 8, 5*time.Millisecond, rec)
	ctx, cancel := context.WithTimeout(context.Background(), 40*time.Millisecond)
	defer cancel()
	p.Run(ctx)
	if p.Rejected() == 0 {
		t.Fatalf("queue-full submissions not counted")
	}
}

func TestBurst_NormalIntervalBounds(t *testing.T) {
	b := NewBurst(BurstConfig{
		MinInterval: 40 * time.Millisecond,
		MaxInterval: 90 * time.Millisecond,
	}, &recordingSubmitter{})
	for i := 0; i < 1000; i++ {
		d := b.normalInterval()
		if d < 40*time.Millisecond || d > 90*time.Millisecond {
			t.Fatalf("interval %v outside [40ms,90ms]", d)
		}
	}
}

func TestBurst_CyclesThroughPhases(t *testing.T) {
	rec := &recordingSubmitter{}
	b := NewBurst(BurstConfig{
		Count:         4,
		MinInterval:   2 * time.Millisecond,
		MaxInterval:   4 * time.Millisecond,
		Activation:    20 * time.Millisecond,
		BurstInterval: time.Millisecond,
		BurstDuration: 20 * time.Millisecond,
		BurstEnabled:  true,
	}, rec)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { b.Run(ctx); close(done) }()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && b.Bursts() < 2 {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	<-done
	if b.Bursts() < 2 {
		t.Fatalf("burst cycle did not repeat: %d windows", b.Bursts())
	}
	if rec.total() == 0 {
		t.Fatalf("no submissions")
	}
}

func TestBurst_DisabledSkipsWindow(t *testing.T) {
	calls := 0
	b := NewBurst(BurstConfig{
		Count:       1,
		MinInterval: time.Millisecond,
		MaxInterval: time.Millisecond,
		Activation:  5 * time.Millisecond,
	}, &recordingSubmitter{})
	b.sleepFn = func(ctx context.Context, d time.Duration) bool {
		calls++
		return calls < 20 // stop the loop after a few slots
	}
	b.Run(context.Background())
	if b.Bursts() != 0 {
		t.Fatalf("burst window ran while disabled")
	}
}
