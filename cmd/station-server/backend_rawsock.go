//go:build linux

package main

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/airsched/go-airsched-server/internal/link"
	"github.com/airsched/go-airsched-server/internal/power"
	"github.com/airsched/go-airsched-server/internal/transport"
)

// openRawDevice is a hook for tests (overridden in unit tests).
var openRawDevice = func(iface string) (link.Device, error) { return link.OpenRaw(iface) }

// initRawBackend sets up the AF_PACKET backend, launching the RX loop.
func initRawBackend(ctx context.Context, cfg *appConfig, pc *power.Controller, l *slog.Logger, wg *sync.WaitGroup) (transport.Transmitter, func(), error) {
	dev, err := openRawDevice(cfg.rawIf)
	if err != nil {
		return nil, func() {}, fmt.Errorf("rawsock open %s: %w", cfg.rawIf, err)
	}
	l.Info("rawsock_open", "if", cfg.rawIf)
	tw := link.NewTXWriter(ctx, dev, txQueueSize)
	startRxLoop(ctx, dev, pc, l, wg, "rawsock_rx_end")
	return tw, func() { _ = dev.Close(); tw.Close() }, nil
}
