package recv

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/montanaflynn/stats"

	"github.com/airsched/go-airsched-server/internal/class"
	"github.com/airsched/go-airsched-server/internal/clock"
	"github.com/airsched/go-airsched-server/internal/link"
	"github.com/airsched/go-airsched-server/internal/logging"
	"github.com/airsched/go-airsched-server/internal/metrics"
	"github.com/airsched/go-airsched-server/internal/wire"
)

// LatencySanityMax bounds a plausible end-to-end latency; beyond it (or
// negative) the reading is a clock anomaly and reported as 0.
const LatencySanityMax = 30000

// latencyWindow is how many recent readings feed the aggregate statistics.
const latencyWindow = 256

// Delivery is one class's decoded data from one frame.
type Delivery struct {
	Class     class.ID
	Type      class.DataType
	Count     uint16 // whole elements present (may be short on truncation)
	Data      []byte // copied out of the frame buffer
	LatencyMs uint32
	Truncated bool
}

// DeliveryFunc consumes decoded per-class data.
type DeliveryFunc func(Delivery)

// Stats is a snapshot of receiver counters and latency aggregates.
type Stats struct {
	DataPackets    uint64
	ErrorPackets   uint64
	Dropped        uint64
	Truncated      uint64
	SizeMismatches uint64
	ClockAnomalies uint64

	LastClassCounts [class.MaxClasses]uint16
	LastClassTypes  [class.MaxClasses]class.DataType

	LatencyMean   float64
	LatencyMedian float64
	LatencyP95    float64
	LatencyMax    float64
}

// Decoder parses received frames, validates them, computes latency, and
// dispatches per-class payloads. Single-threaded: the link RX loop calls
// HandleFrame sequentially.
type Decoder struct {
	codec   wire.Codec
	role    wire.Role
	local   wire.MACAddr
	clk     clock.Clock
	deliver DeliveryFunc
	logger  *slog.Logger

	mu        sync.Mutex
	st        Stats
	latencies []float64 // ring of recent readings
	latPos    int
}

// NewDecoder builds a Decoder for the given local role and address.
func NewDecoder(role wire.Role, local wire.MACAddr, clk clock.Clock, deliver DeliveryFunc) *Decoder {
	if clk == nil {
		clk = clock.NewSystem()
	}
	return &Decoder{
		role:    role,
		local:   local,
		clk:     clk,
		deliver: deliver,
		logger:  logging.L(),
	}
}

// HandleFrame processes one raw received frame with its control record.
func (d *Decoder) HandleFrame(frame []byte, ctl link.RxControl) {
	df, err := d.codec.Decode(frame, d.role, d.local)
	if err != nil {
		d.classifyDrop(err)
		return
	}
	now := d.clk.NowMillis()

	if df.Truncated {
		metrics.IncTruncated()
		d.mu.Lock()
		d.st.Truncated++
		d.mu.Unlock()
		d.logger.Warn("frame_truncated",
			"declared", df.Header.TotalSize, "have", len(df.Payload))
	}
	if exp := df.Header.ExpectedPayloadBytes(); exp != int(df.Header.TotalSize) {
		metrics.IncSizeMismatch()
		d.mu.Lock()
		d.st.SizeMismatches++
		d.mu.Unlock()
		d.logger.Warn("frame_size_mismatch",
			"expected", exp, "total_size", df.Header.TotalSize)
	}

	latency := d.latency(now, df.Header.Timestamp)

	// Walk the payload in fixed class order; a class whose slice would
	// overrun the available bytes is delivered short and ends the walk.
	off := 0
	for id := class.C1; id < class.MaxClasses; id++ {
		count := df.Header.ClassCounts[id]
		if count == 0 {
			continue
		}
		dt := df.Header.ClassTypes[id]
		width := int(dt.Width())
		want := int(count) * width
		avail := len(df.Payload) - off
		if avail <= 0 {
			d.logger.Warn("class_data_missing", "class", id.String())
			break
		}
		truncated := false
		if avail < want {
			truncated = true
			want = avail - avail%width // whole elements only
			if want == 0 {
				d.logger.Warn("class_data_truncated",
					"class", id.String(), "elements", 0, "declared", count)
				break
			}
		}
		dv := Delivery{
			Class:     id,
			Type:      dt,
			Count:     uint16(want / width),
			Data:      append([]byte(nil), df.Payload[off:off+want]...),
			LatencyMs: latency,
			Truncated: truncated,
		}
		if d.deliver != nil {
			d.deliver(dv)
		}
		if truncated {
			d.logger.Warn("class_data_truncated",
				"class", id.String(), "elements", dv.Count, "declared", count)
			break
		}
		off += want
	}

	metrics.IncDataPackets()
	metrics.SetLastLatency(latency)
	d.mu.Lock()
	d.st.DataPackets++
	d.st.LastClassCounts = df.Header.ClassCounts
	d.st.LastClassTypes = df.Header.ClassTypes
	if len(d.latencies) < latencyWindow {
		d.latencies = append(d.latencies, float64(latency))
	} else {
		d.latencies[d.latPos] = float64(latency)
		d.latPos = (d.latPos + 1) % latencyWindow
	}
	d.mu.Unlock()

	d.logger.Debug("frame_received",
		"bytes", len(df.Payload), "latency_ms", latency,
		"rssi", ctl.RSSI, "src", df.Mac.Src.String())
}

// latency computes receive-clock minus sender timestamp with the sanity
// clamp: negative or implausibly large readings report 0 and count as a
// clock anomaly.
func (d *Decoder) latency(now, sent uint32) uint32 {
	diff := now - sent
	if int32(diff) < 0 || diff > LatencySanityMax {
		metrics.IncClockAnomaly()
		d.mu.Lock()
		d.st.ClockAnomalies++
		d.mu.Unlock()
		d.logger.Warn("clock_anomaly", "now", now, "timestamp", sent)
		return 0
	}
	return diff
}

func (d *Decoder) classifyDrop(err error) {
	var reason string
	switch {
	case errors.Is(err, wire.ErrTooShort):
		reason = metrics.DropTooShort
	case errors.Is(err, wire.ErrNotOurFrame):
		reason = metrics.DropNotOurFrame
	case errors.Is(err, wire.ErrNotForUs):
		reason = metrics.DropNotForUs
	case errors.Is(err, wire.ErrShortHeader):
		reason = metrics.DropShortHeader
	case errors.Is(err, wire.ErrBadSignature):
		reason = metrics.DropBadSignature
	default: // wire.ErrInvalidHeader
		reason = metrics.DropInvalidHeader
	}
	metrics.IncDecodeDrop(reason)
	d.mu.Lock()
	d.st.Dropped++
	if reason == metrics.DropInvalidHeader || reason == metrics.DropBadSignature {
		d.st.ErrorPackets++
	}
	d.mu.Unlock()
	if reason == metrics.DropInvalidHeader || reason == metrics.DropBadSignature {
		metrics.IncErrorPackets()
		d.logger.Warn("frame_rejected", "reason", reason, "error", err)
	}
	// Everything else is expected promiscuous noise: silent drop.
}

// Stats returns counters plus latency aggregates over the recent window.
func (d *Decoder) Stats() Stats {
	d.mu.Lock()
	st := d.st
	window := append([]float64(nil), d.latencies...)
	d.mu.Unlock()
	if len(window) > 0 {
		st.LatencyMean, _ = stats.Mean(window)
		st.LatencyMedian, _ = stats.Median(window)
		st.LatencyP95, _ = stats.Percentile(window, 95)
		st.LatencyMax, _ = stats.Max(window)
	}
	return st
}
