package metrics

import (
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/airsched/go-airsched-server/internal/logging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Prometheus counters
var (
	SamplesSubmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sched_samples_submitted_total",
		Help: "Total samples accepted into a class queue.",
	}, []string{"class"})
	SubmitQueueFull = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sched_submit_queue_full_total",
		Help: "Total submissions rejected because the class queue was full.",
	}, []string{"class"})
	SubmitTooLarge = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sched_submit_too_large_total",
		Help: "Total submissions rejected because the payload exceeds the frame byte cap.",
	})
	PointsProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sched_points_processed_total",
		Help: "Total samples consumed at assembly time (emitted or deadline-missed).",
	})
	DeadlineMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sched_deadline_misses_total",
		Help: "Total samples discarded at assembly because their deadline had elapsed.",
	})
	FramesEmitted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sched_frames_emitted_total",
		Help: "Total wire frames handed to the link transmitter.",
	})
	PacketsTransmitted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sched_packets_transmitted_total",
		Help: "Total per-class contributions transmitted (classes with data in an emitted frame).",
	})
	SchedQueueDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "sched_queue_depth",
		Help: "Current queued samples per class.",
	}, []string{"class"})
	LinkTxFrames = promauto.NewCounter(prometheus.CounterOpts{
		Name: "link_tx_frames_total",
		Help: "Total frames written to the link backend.",
	})
	LinkRxFrames = promauto.NewCounter(prometheus.CounterOpts{
		Name: "link_rx_frames_total",
		Help: "Total raw frames read from the link backend.",
	})
	DecodeDrops = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "recv_decode_drops_total",
		Help: "Frames dropped before delivery, by filter/decode reason.",
	}, []string{"reason"})
	DataPackets = promauto.NewCounter(prometheus.CounterOpts{
		Name: "recv_data_packets_total",
		Help: "Total frames decoded and delivered.",
	})
	ErrorPackets = promauto.NewCounter(prometheus.CounterOpts{
		Name: "recv_error_packets_total",
		Help: "Total frames rejected with an invalid application header.",
	})
	TruncatedFrames = promauto.NewCounter(prometheus.CounterOpts{
		Name: "recv_truncated_frames_total",
		Help: "Total frames processed best-effort with fewer payload bytes than declared.",
	})
	SizeMismatches = promauto.NewCounter(prometheus.CounterOpts{
		Name: "recv_size_mismatch_total",
		Help: "Total frames whose declared size disagrees with the class count arithmetic.",
	})
	ClockAnomalies = promauto.NewCounter(prometheus.CounterOpts{
		Name: "recv_clock_anomalies_total",
		Help: "Total frames whose computed latency failed the sanity clamp.",
	})
	LastLatencyMs = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "recv_last_latency_ms",
		Help: "End-to-end latency of the most recent delivered frame.",
	})
	TxPowerLevel = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "link_tx_power_level",
		Help: "Current discrete TX power level (0=min .. 3=high).",
	})
	HubDroppedDeliveries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hub_dropped_deliveries_total",
		Help: "Total deliveries dropped by hub due to slow subscribers.",
	})
	HubKickedClients = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hub_kicked_clients_total",
		Help: "Total subscribers disconnected due to backpressure kick policy.",
	})
	HubRejectedClients = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hub_rejected_clients_total",
		Help: "Total subscriber connection attempts rejected (e.g., max-clients).",
	})
	HubActiveClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "hub_active_clients",
		Help: "Current number of active subscribers.",
	})
	HubBroadcastFanout = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "hub_broadcast_fanout",
		Help: "Number of subscribers targeted in the most recent broadcast.",
	})
	BuildInfo = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "build_info",
		Help: "Build metadata (value is always 1).",
	}, []string{"version", "commit", "date"})
	Errors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "errors_total",
		Help: "Error counters by subsystem.",
	}, []string{"where"})
	readinessMu sync.RWMutex
	readinessFn func() bool
)

// Error label constants (stable label values to bound cardinality)
const (
	ErrLinkTx         = "link_tx"
	ErrLinkRx         = "link_rx"
	ErrLinkOverflow   = "link_tx_overflow"
	ErrSerialWrite    = "serial_write"
	ErrSerialOverflow = "serial_tx_overflow"
	ErrSerialRead     = "serial_read"
	ErrTCPRead        = "tcp_read"
	ErrTCPWrite       = "tcp_write"
	ErrHandshake      = "handshake"
	ErrPowerSet       = "power_set"
)

// Decode drop reason labels, mirroring the codec error ladder.
const (
	DropTooShort      = "too_short"
	DropNotOurFrame   = "not_our_frame"
	DropNotForUs      = "not_for_us"
	DropShortHeader   = "short_header"
	DropBadSignature  = "bad_signature"
	DropInvalidHeader = "invalid_header"
)

// StartHTTP serves Prometheus metrics at /metrics on the given address.
func StartHTTP(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		if IsReady() {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ready\n"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("not ready\n"))
	})

	srv := &http.Server{
		Addr:    addr,
		Handler: mux,
	}
	go func() {
		logging.L().Info("metrics_listen", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.L().Error("metrics_http_error", "error", err)
		}
	}()
	return srv
}

// Local mirrored counters for easy logging (avoid Prometheus scraping in-process)
var (
	localSubmitted    uint64
	localQueueFull    uint64
	localTooLarge     uint64
	localPoints       uint64
	localMisses       uint64
	localFrames       uint64
	localPacketsTx    uint64
	localLinkTx       uint64
	localLinkRx       uint64
	localDecodeDrops  uint64
	localDataPackets  uint64
	localErrorPackets uint64
	localTruncated    uint64
	localMismatch     uint64
	localAnomalies    uint64
	localHubDrop      uint64
	localHubKick      uint64
	localHubReject    uint64
	localHubClients   uint64
	localFanout       uint64
	localErrors       uint64
)

// Snapshot is a cheap copy of local counters.
type Snapshot struct {
	Submitted    uint64
	QueueFull    uint64
	TooLarge     uint64
	Points       uint64
	Misses       uint64
	Frames       uint64
	PacketsTx    uint64
	LinkTx       uint64
	LinkRx       uint64
	DecodeDrops  uint64
	DataPackets  uint64
	ErrorPackets uint64
	Truncated    uint64
	Mismatch     uint64
	Anomalies    uint64
	HubDrops     uint64
	HubKicks     uint64
	HubRejects   uint64
	HubClients   uint64
	Fanout       uint64
	Errors       uint64 // sum across error labels
}

func Snap() Snapshot {
	return Snapshot{
		Submitted:    atomic.LoadUint64(&localSubmitted),
		QueueFull:    atomic.LoadUint64(&localQueueFull),
		TooLarge:     atomic.LoadUint64(&localTooLarge),
		Points:       atomic.LoadUint64(&localPoints),
		Misses:       atomic.LoadUint64(&localMisses),
		Frames:       atomic.LoadUint64(&localFrames),
		PacketsTx:    atomic.LoadUint64(&localPacketsTx),
		LinkTx:       atomic.LoadUint64(&localLinkTx),
		LinkRx:       atomic.LoadUint64(&localLinkRx),
		DecodeDrops:  atomic.LoadUint64(&localDecodeDrops),
		DataPackets:  atomic.LoadUint64(&localDataPackets),
		ErrorPackets: atomic.LoadUint64(&localErrorPackets),
		Truncated:    atomic.LoadUint64(&localTruncated),
		Mismatch:     atomic.LoadUint64(&localMismatch),
		Anomalies:    atomic.LoadUint64(&localAnomalies),
		HubDrops:     atomic.LoadUint64(&localHubDrop),
		HubKicks:     atomic.LoadUint64(&localHubKick),
		HubRejects:   atomic.LoadUint64(&localHubReject),
		HubClients:   atomic.LoadUint64(&localHubClients),
		Fanout:       atomic.LoadUint64(&localFanout),
		Errors:       atomic.LoadUint64(&localErrors),
	}
}

// Wrapper helpers to keep call sites simple.
func IncSubmitted(classLabel string) {
	SamplesSubmitted.WithLabelValues(classLabel).Inc()
	atomic.AddUint64(&localSubmitted, 1)
}

func IncQueueFull(classLabel string) {
	SubmitQueueFull.WithLabelValues(classLabel).Inc()
	atomic.AddUint64(&localQueueFull, 1)
}

func IncTooLarge() {
	SubmitTooLarge.Inc()
	atomic.AddUint64(&localTooLarge, 1)
}

func AddPoints(n int) {
	PointsProcessed.Add(float64(n))
	atomic.AddUint64(&localPoints, uint64(n))
}

func AddMisses(n int) {
	DeadlineMisses.Add(float64(n))
	atomic.AddUint64(&localMisses, uint64(n))
}

func IncFrameEmitted() {
	FramesEmitted.Inc()
	atomic.AddUint64(&localFrames, 1)
}

func AddPacketsTransmitted(n int) {
	PacketsTransmitted.Add(float64(n))
	atomic.AddUint64(&localPacketsTx, uint64(n))
}

func IncLinkTx() {
	LinkTxFrames.Inc()
	atomic.AddUint64(&localLinkTx, 1)
}

func IncLinkRx() {
	LinkRxFrames.Inc()
	atomic.AddUint64(&localLinkRx, 1)
}

func IncDecodeDrop(reason string) {
	DecodeDrops.WithLabelValues(reason).Inc()
	atomic.AddUint64(&localDecodeDrops, 1)
}

func IncDataPackets() {
	DataPackets.Inc()
	atomic.AddUint64(&localDataPackets, 1)
}

func IncErrorPackets() {
	ErrorPackets.Inc()
	atomic.AddUint64(&localErrorPackets, 1)
}

func IncTruncated() {
	TruncatedFrames.Inc()
	atomic.AddUint64(&localTruncated, 1)
}

func IncSizeMismatch() {
	SizeMismatches.Inc()
	atomic.AddUint64(&localMismatch, 1)
}

func IncClockAnomaly() {
	ClockAnomalies.Inc()
	atomic.AddUint64(&localAnomalies, 1)
}

func IncHubDrop() {
	HubDroppedDeliveries.Inc()
	atomic.AddUint64(&localHubDrop, 1)
}

func IncHubKick() {
	HubKickedClients.Inc()
	atomic.AddUint64(&localHubKick, 1)
}

func IncHubReject() {
	HubRejectedClients.Inc()
	atomic.AddUint64(&localHubReject, 1)
}

func SetHubClients(n int) {
	HubActiveClients.Set(float64(n))
	atomic.StoreUint64(&localHubClients, uint64(n))
}

func SetBroadcastFanout(n int) {
	HubBroadcastFanout.Set(float64(n))
	atomic.StoreUint64(&localFanout, uint64(n))
}

func SetQueueDepth(classLabel string, n int) {
	SchedQueueDepth.WithLabelValues(classLabel).Set(float64(n))
}

func SetLastLatency(ms uint32) { LastLatencyMs.Set(float64(ms)) }

func SetPowerLevel(level int) { TxPowerLevel.Set(float64(level)) }

func IncError(label string) {
	Errors.WithLabelValues(label).Inc()
	atomic.AddUint64(&localErrors, 1)
}

// InitBuildInfo sets the build info gauge (should be called once at startup).
func InitBuildInfo(version, commit, date string) {
	BuildInfo.WithLabelValues(version, commit, date).Set(1)
	// Pre-register common error label series so first error does not log a registration latency.
	for _, lbl := range []string{
		ErrLinkTx, ErrLinkRx, ErrLinkOverflow,
		ErrSerialWrite, ErrSerialOverflow, ErrSerialRead,
		ErrTCPRead, ErrTCPWrite, ErrHandshake, ErrPowerSet,
	} {
		Errors.WithLabelValues(lbl).Add(0)
	}
}

// SetReadinessFunc registers a function used by /ready and IsReady.
func SetReadinessFunc(fn func() bool) { readinessMu.Lock(); readinessFn = fn; readinessMu.Unlock() }

// IsReady invokes the registered readiness function if present.
func IsReady() bool {
	readinessMu.RLock()
	fn := readinessFn
	readinessMu.RUnlock()
	if fn == nil { // if not set yet, treat as ready so metrics endpoint doesn't flap
		return true
	}
	return fn()
}

// Ready is a concise alias used at call sites.
func Ready() bool { return IsReady() }
