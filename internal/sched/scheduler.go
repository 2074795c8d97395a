package sched

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/airsched/go-airsched-server/internal/class"
	"github.com/airsched/go-airsched-server/internal/clock"
	"github.com/airsched/go-airsched-server/internal/logging"
	"github.com/airsched/go-airsched-server/internal/metrics"
	"github.com/airsched/go-airsched-server/internal/queue"
	"github.com/airsched/go-airsched-server/internal/transport"
	"github.com/airsched/go-airsched-server/internal/wire"
)

const (
	// DefaultTickInterval is how often the scheduler inspects queue deadlines.
	DefaultTickInterval = 50 * time.Millisecond

	// smallSlack stops assembly once the frame is nearly full; trailing
	// space below this is not worth scanning the remaining classes for.
	smallSlack = 100
)

// Submission errors surfaced to producers.
var (
	ErrUnknownClass   = errors.New("sched: unknown class")
	ErrSampleTooLarge = errors.New("sched: sample exceeds frame byte cap")
	ErrSizeMismatch   = errors.New("sched: data length does not match count and type")
	ErrQueueFull      = errors.New("sched: class queue full")
)

// ClassConfig fixes a class's element type, cadence and relative deadline
// for the scheduler's lifetime.
type ClassConfig struct {
	Type       class.DataType
	PeriodMs   uint32
	DeadlineMs uint32 // relative; absolute deadline = submit time + DeadlineMs
	Count      uint16 // elements per produced sample
}

// Config is the scheduler configuration supplied at start-up.
type Config struct {
	Classes      [class.MaxClasses]ClassConfig
	ThresholdMs  uint32 // emit when the earliest deadline is within this lead time
	TickInterval time.Duration
}

// Stats is a point-in-time copy of the scheduler counters.
type Stats struct {
	PointsProcessed    uint64
	PacketsTransmitted uint64
	DeadlineMisses     uint64
	QueueDepths        [class.MaxClasses]int
}

// Scheduler owns the per-class queues and turns imminent deadlines into
// emitted wire frames. All interior state is guarded by a single mutex; the
// frame build and transmit happen outside the critical section.
type Scheduler struct {
	mu     sync.Mutex
	queues [class.MaxClasses]*queue.Queue
	cfg    Config
	stats  Stats

	clk    clock.Clock
	tx     transport.Transmitter
	codec  wire.Codec
	role   wire.Role
	local  wire.MACAddr
	peer   wire.MACAddr // zero value means unknown -> broadcast
	logger *slog.Logger
}

type Option func(*Scheduler)

func WithClock(c clock.Clock) Option { return func(s *Scheduler) { s.clk = c } }
func WithTransmitter(t transport.Transmitter) Option {
	return func(s *Scheduler) { s.tx = t }
}
func WithRole(r wire.Role) Option         { return func(s *Scheduler) { s.role = r } }
func WithLocalMAC(a wire.MACAddr) Option  { return func(s *Scheduler) { s.local = a } }
func WithPeerMAC(a wire.MACAddr) Option   { return func(s *Scheduler) { s.peer = a } }
func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) {
		if l != nil {
			s.logger = l
		}
	}
}

// New creates a Scheduler. The default transmitter discards frames, so
// production callers pass WithTransmitter.
func New(cfg Config, opts ...Option) *Scheduler {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = DefaultTickInterval
	}
	s := &Scheduler{
		cfg:    cfg,
		clk:    clock.NewSystem(),
		tx:     transport.TransmitterFunc(func([]byte) error { return nil }),
		role:   wire.RoleStation,
		logger: logging.L(),
	}
	for i := range s.queues {
		s.queues[i] = queue.New(class.QueueCap)
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// ClassType returns the configured element type for a class.
func (s *Scheduler) ClassType(id class.ID) class.DataType {
	return s.cfg.Classes[id].Type
}

// Submit enqueues one sample of count elements for the given class. The data
// length must equal count times the class element width. A full queue or an
// oversized payload is reported to the caller; the sample is not queued.
func (s *Scheduler) Submit(id class.ID, count uint16, data []byte) error {
	if !id.Valid() {
		return fmt.Errorf("%w: %d", ErrUnknownClass, id)
	}
	cc := s.cfg.Classes[id]
	size := int(count) * int(cc.Type.Width())
	if size > class.MaxPayload {
		metrics.IncTooLarge()
		return fmt.Errorf("%w: %d bytes", ErrSampleTooLarge, size)
	}
	if len(data) != size {
		return fmt.Errorf("%w: got %d bytes, want %d", ErrSizeMismatch, len(data), size)
	}
	smp := class.Sample{
		Class:    id,
		Deadline: s.clk.NowMillis() + cc.DeadlineMs,
		Type:     cc.Type,
		Count:    count,
		Size:     uint16(size),
	}
	copy(smp.Data[:], data)

	s.mu.Lock()
	ok := s.queues[id].PushBack(&smp)
	depth := s.queues[id].Len()
	s.mu.Unlock()
	if !ok {
		metrics.IncQueueFull(id.String())
		return fmt.Errorf("%w: %s", ErrQueueFull, id)
	}
	metrics.IncSubmitted(id.String())
	metrics.SetQueueDepth(id.String(), depth)
	s.logger.Debug("sample_queued",
		"class", id.String(), "type", cc.Type.String(),
		"count", count, "size", size, "deadline", smp.Deadline)
	return nil
}

// Run wakes on the tick interval and processes queues until ctx is done.
func (s *Scheduler) Run(ctx context.Context) {
	t := time.NewTicker(s.cfg.TickInterval)
	defer t.Stop()
	s.logger.Info("scheduler_started", "tick", s.cfg.TickInterval, "threshold_ms", s.cfg.ThresholdMs)
	for {
		select {
		case <-t.C:
			s.Tick()
		case <-ctx.Done():
			s.logger.Info("scheduler_stopped")
			return
		}
	}
}

// Tick runs one scheduling pass: deadline inspection, batch assembly, and
// emission. Exposed for deterministic tests.
func (s *Scheduler) Tick() {
	now := s.clk.NowMillis()

	s.mu.Lock()
	earliest, any := s.earliestDeadlineLocked()
	if !any {
		s.mu.Unlock()
		return
	}
	if clock.MillisAfter(earliest, now+s.cfg.ThresholdMs) {
		// No urgency yet.
		s.mu.Unlock()
		return
	}

	// Assemble: drain queues in fixed class order into one payload buffer.
	payload := make([]byte, 0, class.MaxPayload)
	var counts [class.MaxClasses]uint16
	var types [class.MaxClasses]class.DataType
	for id := class.C1; id < class.MaxClasses; id++ {
		types[id] = s.cfg.Classes[id].Type
	}
	remaining := class.MaxPayload
	misses, points := 0, 0

assembly:
	for id := class.C1; id < class.MaxClasses; id++ {
		q := s.queues[id]
		for {
			front := q.Front()
			if front == nil {
				break
			}
			// Size gate on the peeked sample: it stays queued for the
			// next frame, preserving FIFO order without a putback.
			if int(front.Size) > remaining {
				break
			}
			smp := q.PopFront()
			if clock.MillisAfter(now, smp.Deadline) {
				misses++
				points++
				s.logger.Warn("deadline_miss",
					"class", id.String(), "deadline", smp.Deadline, "now", now)
				continue
			}
			payload = append(payload, smp.Payload()...)
			remaining -= int(smp.Size)
			counts[id] += smp.Count
			points++
			if remaining < smallSlack {
				break assembly
			}
		}
	}
	s.stats.PointsProcessed += uint64(points)
	s.stats.DeadlineMisses += uint64(misses)
	var depths [class.MaxClasses]int
	for id := range s.queues {
		depths[id] = s.queues[id].Len()
	}
	s.mu.Unlock()

	metrics.AddPoints(points)
	metrics.AddMisses(misses)
	for id := class.C1; id < class.MaxClasses; id++ {
		metrics.SetQueueDepth(id.String(), depths[id])
	}

	if len(payload) == 0 {
		return
	}
	s.emit(now, counts, types, payload)
}

// emit builds and transmits one frame. Runs outside the scheduler mutex.
func (s *Scheduler) emit(now uint32, counts [class.MaxClasses]uint16, types [class.MaxClasses]class.DataType, payload []byte) {
	hdr := wire.AppHeader{
		ClassCounts: counts,
		ClassTypes:  types,
		TotalSize:   uint16(len(payload)),
		Timestamp:   now,
	}
	dest := s.peer
	if dest == (wire.MACAddr{}) {
		dest = wire.Broadcast
	}
	mac := wire.MacHeader{Dir: s.role.TxDir(), Dest: dest, Src: s.local, BSSID: dest}
	frame, err := s.codec.Encode(mac, hdr, payload)
	if err != nil {
		// Cannot happen with a payload the assembly loop bounded; log and move on.
		s.logger.Error("frame_encode_error", "error", err)
		return
	}
	if err := s.tx.Transmit(frame); err != nil {
		metrics.IncError(metrics.ErrLinkTx)
		s.logger.Error("link_tx_error", "error", err, "bytes", len(frame))
		return
	}
	classesSent := 0
	for _, c := range counts {
		if c > 0 {
			classesSent++
		}
	}
	s.mu.Lock()
	s.stats.PacketsTransmitted += uint64(classesSent)
	s.mu.Unlock()
	metrics.IncFrameEmitted()
	metrics.AddPacketsTransmitted(classesSent)
	s.logger.Info("frame_emitted",
		"bytes", len(payload), "classes", classesSent, "timestamp", now,
		"c1", counts[class.C1], "c2", counts[class.C2],
		"c3", counts[class.C3], "burst", counts[class.Burst])
}

// earliestDeadlineLocked scans the queue heads. Caller holds s.mu.
func (s *Scheduler) earliestDeadlineLocked() (uint32, bool) {
	var earliest uint32
	found := false
	for id := range s.queues {
		front := s.queues[id].Front()
		if front == nil {
			continue
		}
		if !found || clock.MillisBefore(front.Deadline, earliest) {
			earliest = front.Deadline
			found = true
		}
	}
	return earliest, found
}

// Stats returns a copy of the counters and queue depths.
func (s *Scheduler) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.stats
	for id := range s.queues {
		st.QueueDepths[id] = s.queues[id].Len()
	}
	return st
}
