package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"

	"github.com/airsched/go-airsched-server/internal/link"
	"github.com/airsched/go-airsched-server/internal/metrics"
	"github.com/airsched/go-airsched-server/internal/power"
	"github.com/airsched/go-airsched-server/internal/transport"
)

// openUDPLink is a hook for tests (overridden in unit tests).
var openUDPLink = link.DialUDP

// initUDPBackend dials the AP over UDP and launches the RX loop feeding the
// power controller with receive-control records.
func initUDPBackend(ctx context.Context, cfg *appConfig, pc *power.Controller, l *slog.Logger, wg *sync.WaitGroup) (transport.Transmitter, func(), error) {
	dev, err := openUDPLink(cfg.udpRemote)
	if err != nil {
		return nil, func() {}, fmt.Errorf("udp open: %w", err)
	}
	l.Info("udp_open", "remote", cfg.udpRemote, "local", dev.Addr().String())
	tw := link.NewTXWriter(ctx, dev, txQueueSize)
	startRxLoop(ctx, dev, pc, l, wg, "udp_rx_end")
	return tw, func() { _ = dev.Close(); tw.Close() }, nil
}

// startRxLoop drains incoming frames for link-quality metadata. The station
// does not decode AP traffic; it only observes the control records.
func startRxLoop(ctx context.Context, dev link.Device, pc *power.Controller, l *slog.Logger, wg *sync.WaitGroup, endMsg string) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer l.Info(endMsg)
		buf := make([]byte, link.ReadBufSize)
		backoff := rxBackoffMin
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}
			n, ctl, err := dev.ReadFrame(buf)
			if err != nil {
				if ctx.Err() != nil { // shutting down
					return
				}
				if errors.Is(err, net.ErrClosed) {
					return
				}
				metrics.IncError(metrics.ErrLinkRx)
				l.Warn("link_read_error", "error", err, "backoff", backoff)
				sleepFn(backoff)
				backoff *= 2
				if backoff > rxBackoffMax {
					backoff = rxBackoffMax
				}
				continue
			}
			backoff = rxBackoffMin
			if n == 0 {
				continue
			}
			metrics.IncLinkRx()
			if pc != nil && ctl.HasRSSI {
				pc.Observe(ctl.RSSI)
			}
		}
	}()
}
