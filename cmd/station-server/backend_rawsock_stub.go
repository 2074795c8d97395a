//go:build !linux

package main

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/airsched/go-airsched-server/internal/power"
	"github.com/airsched/go-airsched-server/internal/transport"
)

func initRawBackend(ctx context.Context, cfg *appConfig, pc *power.Controller, l *slog.Logger, wg *sync.WaitGroup) (transport.Transmitter, func(), error) {
	return nil, func() {}, errors.New("rawsock backend requires linux")
}
