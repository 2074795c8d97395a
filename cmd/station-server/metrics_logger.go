package main

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/airsched/go-airsched-server/internal/metrics"
)

func startMetricsLogger(ctx context.Context, interval time.Duration, l *slog.Logger, wg *sync.WaitGroup) {
	if interval <= 0 {
		return
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-t.C:
				snap := metrics.Snap()
				l.Info("metrics_snapshot",
					"submitted", snap.Submitted,
					"queue_full", snap.QueueFull,
					"points", snap.Points,
					"misses", snap.Misses,
					"frames", snap.Frames,
					"packets_tx", snap.PacketsTx,
					"link_tx", snap.LinkTx,
					"errors", snap.Errors,
				)
			case <-ctx.Done():
				return
			}
		}
	}()
}
