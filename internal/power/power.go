package power

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/airsched/go-airsched-server/internal/logging"
	"github.com/airsched/go-airsched-server/internal/metrics"
)

// Level is a discrete transmit power step.
type Level int

const (
	Min Level = iota
	Low
	Medium
	High
)

func (l Level) String() string {
	switch l {
	case Min:
		return "min"
	case Low:
		return "low"
	case Medium:
		return "medium"
	case High:
		return "high"
	}
	return "invalid"
}

// Setter applies a power level to the link hardware.
type Setter interface {
	SetTxPower(Level) error
}

// SetterFunc adapts a function to the Setter interface.
type SetterFunc func(Level) error

func (f SetterFunc) SetTxPower(l Level) error { return f(l) }

// Thresholds are the RSSI cut-offs (dBm) between levels: at or above
// Excellent the link needs minimum power, below Fair it gets maximum.
type Thresholds struct {
	Excellent int8
	Good      int8
	Fair      int8
}

// DefaultThresholds fit a short-range indoor link.
var DefaultThresholds = Thresholds{Excellent: -55, Good: -67, Fair: -78}

// DefaultInterval is the periodic evaluation cadence.
const DefaultInterval = 5 * time.Second

// Controller maps measured link quality to one of four TX power levels and
// pushes changes to the Setter. It is fed RSSI readings from the receive
// path (Observe) and evaluates the most recent one on its own timer (Run) or
// when Evaluate is called; Observe itself does not evaluate.
type Controller struct {
	mu       sync.Mutex
	current  Level
	lastRSSI int8
	hasRSSI  bool

	thresholds Thresholds
	setter     Setter
	interval   time.Duration
	logger     *slog.Logger
}

// New creates a Controller starting at High power (safe default until the
// first reading arrives).
func New(setter Setter, th Thresholds, interval time.Duration) *Controller {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Controller{
		current:    High,
		thresholds: th,
		setter:     setter,
		interval:   interval,
		logger:     logging.L(),
	}
}

// Current returns the level last applied.
func (c *Controller) Current() Level {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Target maps an RSSI reading to a power level.
func (c *Controller) Target(rssi int8) Level {
	switch {
	case rssi >= c.thresholds.Excellent:
		return Min
	case rssi >= c.thresholds.Good:
		return Low
	case rssi >= c.thresholds.Fair:
		return Medium
	default:
		return High
	}
}

// Observe records a link-quality reading; the next evaluation uses the most
// recent one.
func (c *Controller) Observe(rssi int8) {
	c.mu.Lock()
	c.lastRSSI = rssi
	c.hasRSSI = true
	c.mu.Unlock()
}

// Evaluate applies the level implied by the last reading, if it changed.
func (c *Controller) Evaluate() {
	c.mu.Lock()
	if !c.hasRSSI {
		c.mu.Unlock()
		return
	}
	rssi := c.lastRSSI
	target := c.Target(rssi)
	if target == c.current {
		c.mu.Unlock()
		return
	}
	prev := c.current
	c.current = target
	c.mu.Unlock()

	if err := c.setter.SetTxPower(target); err != nil {
		metrics.IncError(metrics.ErrPowerSet)
		c.logger.Error("tx_power_set_error", "error", err, "level", target.String())
		// Keep current as applied intent; the next evaluation calls the
		// setter only when the target level changes, so a failed level is
		// not retried while RSSI stays in the same band.
		return
	}
	metrics.SetPowerLevel(int(target))
	c.logger.Info("tx_power_changed", "rssi", rssi, "from", prev.String(), "to", target.String())
}

// Run evaluates on the configured cadence until ctx is done.
func (c *Controller) Run(ctx context.Context) {
	t := time.NewTicker(c.interval)
	defer t.Stop()
	c.logger.Info("power_controller_started", "interval", c.interval)
	for {
		select {
		case <-t.C:
			c.Evaluate()
		case <-ctx.Done():
			c.logger.Info("power_controller_stopped")
			return
		}
	}
}
