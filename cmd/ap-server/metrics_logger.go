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
					"link_rx", snap.LinkRx,
					"data_packets", snap.DataPackets,
					"error_packets", snap.ErrorPackets,
					"drops", snap.DecodeDrops,
					"truncated", snap.Truncated,
					"anomalies", snap.Anomalies,
					"hub_drops", snap.HubDrops,
					"subscribers", snap.HubClients,
					"errors", snap.Errors,
				)
			case <-ctx.Done():
				return
			}
		}
	}()
}
