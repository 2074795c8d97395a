package main

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/airsched/go-airsched-server/internal/power"
	"github.com/airsched/go-airsched-server/internal/transport"
)

const (
	txQueueSize       = 256  // capacity of async TX ring
	serialReadBufSize = 4096 // per read() buffer for serial backend
	// largeBufferReclaimThreshold is the capacity above which the temporary
	// serial RX accumulation buffer is discarded and reallocated once empty.
	largeBufferReclaimThreshold = 16 * 1024
	rxBackoffMin                = 20 * time.Millisecond
	rxBackoffMax                = 500 * time.Millisecond
)

// sleepFn allows tests to intercept backoff sleeps.
var sleepFn = time.Sleep

// initBackend selects the link backend, starts its RX loop (feeding the
// power controller) and returns a frame transmitter and cleanup. It returns
// an error instead of exiting the process to allow graceful handling by the
// caller.
func initBackend(ctx context.Context, cfg *appConfig, pc *power.Controller, l *slog.Logger, wg *sync.WaitGroup) (transport.Transmitter, func(), error) {
	switch cfg.backend {
	case "udp":
		return initUDPBackend(ctx, cfg, pc, l, wg)
	case "rawsock":
		return initRawBackend(ctx, cfg, pc, l, wg)
	case "serial":
		return initSerialBackend(ctx, cfg, l, wg)
	default:
		return nil, func() {}, fmt.Errorf("unknown backend %q (use udp|rawsock|serial)", cfg.backend)
	}
}
