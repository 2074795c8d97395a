package producer

import (
	"context"
	"errors"
	"log/slog"
	"math/rand"
	"sync/atomic"
	"time"

	"github.com/airsched/go-airsched-server/internal/class"
	"github.com/airsched/go-airsched-server/internal/logging"
	"github.com/airsched/go-airsched-server/internal/sched"
)

// Submitter is the scheduler surface producers need. Producers never block
// on it; a full queue is counted and the producer waits for its next slot.
type Submitter interface {
	Submit(id class.ID, count uint16, data []byte) error
	ClassType(id class.ID) class.DataType
}

// Periodic injects one synthesized sample per period for a single class.
type Periodic struct {
	ID     class.ID
	Count  uint16
	Period time.Duration
	Target Submitter

	rejected atomic.Uint64
	logger   *slog.Logger
}

// NewPeriodic creates a periodic producer for one class.
func NewPeriodic(id class.ID, count uint16, period time.Duration, target Submitter) *Periodic {
	return &Periodic{ID: id, Count: count, Period: period, Target: target, logger: logging.L()}
}

// Rejected returns the number of submissions refused by the scheduler.
func (p *Periodic) Rejected() uint64 { return p.rejected.Load() }

// Run submits until ctx is done.
func (p *Periodic) Run(ctx context.Context) {
	t := time.NewTicker(p.Period)
	defer t.Stop()
	p.logger.Info("producer_started", "class", p.ID.String(), "period", p.Period, "count", p.Count)
	for {
		select {
		case <-t.C:
			p.produce()
		case <-ctx.Done():
			p.logger.Info("producer_stopped", "class", p.ID.String())
			return
		}
	}
}

func (p *Periodic) produce() {
	data := Pattern(p.Target.ClassType(p.ID), p.Count)
	if err := p.Target.Submit(p.ID, p.Count, data); err != nil {
		p.rejected.Add(1)
		if errors.Is(err, sched.ErrQueueFull) {
			p.logger.Warn("producer_queue_full", "class", p.ID.String())
			return
		}
		p.logger.Error("producer_submit_error", "class", p.ID.String(), "error", err)
	}
}

// BurstConfig shapes the randomized aspiration-class producer. Intervals are
// drawn uniformly from [MinInterval, MaxInterval]; after Activation of wall
// time the producer runs at the denser BurstInterval for BurstDuration, then
// the cycle repeats.
type BurstConfig struct {
	Count         uint16
	MinInterval   time.Duration
	MaxInterval   time.Duration
	Activation    time.Duration
	BurstInterval time.Duration
	BurstDuration time.Duration
	BurstEnabled  bool
}

// DefaultBurstDuration matches the configured burst window.
const DefaultBurstDuration = 5 * time.Second

// Burst is the bounded-latency randomized producer for the aspiration class.
type Burst struct {
	Cfg    BurstConfig
	Target Submitter

	rejected atomic.Uint64
	bursts   atomic.Uint64
	logger   *slog.Logger
	// sleepFn is swapped by tests to run phase logic without wall time.
	sleepFn func(context.Context, time.Duration) bool
}

// NewBurst creates the burst producer.
func NewBurst(cfg BurstConfig, target Submitter) *Burst {
	if cfg.BurstDuration <= 0 {
		cfg.BurstDuration = DefaultBurstDuration
	}
	b := &Burst{Cfg: cfg, Target: target, logger: logging.L()}
	b.sleepFn = sleepCtx
	return b
}

// Rejected returns the number of submissions refused by the scheduler.
func (b *Burst) Rejected() uint64 { return b.rejected.Load() }

// Bursts returns how many burst windows have run.
func (b *Burst) Bursts() uint64 { return b.bursts.Load() }

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// Run alternates normal and burst phases until ctx is done.
func (b *Burst) Run(ctx context.Context) {
	b.logger.Info("burst_producer_started",
		"min_interval", b.Cfg.MinInterval, "max_interval", b.Cfg.MaxInterval,
		"activation", b.Cfg.Activation, "burst_enabled", b.Cfg.BurstEnabled)
	for {
		if !b.phase(ctx, b.Cfg.Activation, b.normalInterval) {
			return
		}
		if b.Cfg.BurstEnabled {
			b.bursts.Add(1)
			b.logger.Info("burst_window_open", "interval", b.Cfg.BurstInterval, "duration", b.Cfg.BurstDuration)
			if !b.phase(ctx, b.Cfg.BurstDuration, func() time.Duration { return b.Cfg.BurstInterval }) {
				return
			}
			b.logger.Info("burst_window_closed")
		}
	}
}

// phase produces with the given interval source for the given wall duration.
// Returns false when ctx ended the phase.
func (b *Burst) phase(ctx context.Context, total time.Duration, next func() time.Duration) bool {
	deadline := time.Now().Add(total)
	for {
		left := time.Until(deadline)
		if left <= 0 {
			return true
		}
		d := next()
		if d > left {
			d = left
		}
		if !b.sleepFn(ctx, d) {
			return false
		}
		b.produce()
	}
}

func (b *Burst) normalInterval() time.Duration {
	lo, hi := b.Cfg.MinInterval, b.Cfg.MaxInterval
	if hi <= lo {
		return lo
	}
	return lo + time.Duration(rand.Int63n(int64(hi-lo+1)))
}

func (b *Burst) produce() {
	data := Pattern(b.Target.ClassType(class.Burst), b.Cfg.Count)
	if err := b.Target.Submit(class.Burst, b.Cfg.Count, data); err != nil {
		b.rejected.Add(1)
		if errors.Is(err, sched.ErrQueueFull) {
			b.logger.Warn("producer_queue_full", "class", class.Burst.String())
			return
		}
		b.logger.Error("producer_submit_error", "class", class.Burst.String(), "error", err)
	}
}
