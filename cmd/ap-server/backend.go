package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	"github.com/airsched/go-airsched-server/internal/link"
	"github.com/airsched/go-airsched-server/internal/metrics"
	"github.com/airsched/go-airsched-server/internal/serial"
)

const (
	serialReadBufSize           = 4096
	largeBufferReclaimThreshold = 16 * 1024
	rxBackoffMin                = 20 * time.Millisecond
	rxBackoffMax                = 500 * time.Millisecond
)

// sleepFn allows tests to intercept backoff sleeps.
var sleepFn = time.Sleep

// Hooks for tests.
var (
	openUDPListener = link.ListenUDP
	openSerialPort  = serial.Open
)

// initBackend opens the receive side of the selected link backend and
// launches the RX loop that feeds raw frames into handle.
func initBackend(ctx context.Context, cfg *appConfig, handle link.Handler, l *slog.Logger, wg *sync.WaitGroup) (func(), error) {
	switch cfg.backend {
	case "udp":
		dev, err := openUDPListener(cfg.udpListen)
		if err != nil {
			return func() {}, fmt.Errorf("udp listen: %w", err)
		}
		l.Info("udp_listen", "addr", dev.Addr().String())
		startDeviceRx(ctx, dev, handle, l, wg, "udp_rx_end")
		return func() { _ = dev.Close() }, nil
	case "rawsock":
		dev, err := openRawDevice(cfg.rawIf)
		if err != nil {
			return func() {}, fmt.Errorf("rawsock open %s: %w", cfg.rawIf, err)
		}
		l.Info("rawsock_open", "if", cfg.rawIf)
		startDeviceRx(ctx, dev, handle, l, wg, "rawsock_rx_end")
		return func() { _ = dev.Close() }, nil
	case "serial":
		return initSerialRx(ctx, cfg, handle, l, wg)
	default:
		return func() {}, fmt.Errorf("unknown backend %q (use udp|rawsock|serial)", cfg.backend)
	}
}

func startDeviceRx(ctx context.Context, dev link.Device, handle link.Handler, l *slog.Logger, wg *sync.WaitGroup, endMsg string) {
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
			handle(buf[:n], ctl)
		}
	}()
}

func initSerialRx(ctx context.Context, cfg *appConfig, handle link.Handler, l *slog.Logger, wg *sync.WaitGroup) (func(), error) {
	sp, err := openSerialPort(cfg.serialDev, cfg.baud, cfg.serialReadTO)
	if err != nil {
		return func() {}, fmt.Errorf("open serial: %w", err)
	}
	l.Info("serial_open", "device", cfg.serialDev, "baud", cfg.baud)
	serCodec := serial.Codec{}
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer l.Info("serial_rx_end")
		buf := make([]byte, serialReadBufSize)
		acc := bytes.NewBuffer(nil)
		backoff := rxBackoffMin
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}
			n, err := sp.Read(buf)
			if n > 0 {
				acc.Write(buf[:n])
				_ = serCodec.DecodeStream(acc, func(frame []byte) {
					metrics.IncLinkRx()
					handle(frame, link.RxControl{})
				}, func() { metrics.IncError(metrics.ErrSerialRead) })
				if acc.Len() == 0 && cap(acc.Bytes()) > largeBufferReclaimThreshold {
					acc = bytes.NewBuffer(nil)
				}
				backoff = rxBackoffMin
			}
			if err != nil {
				if ctx.Err() != nil { // shutting down
					return
				}
				var perr *os.PathError
				if errors.As(err, &perr) {
					return // device removed or fatal
				}
				if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
					continue // ignore transient EOF
				}
				metrics.IncError(metrics.ErrSerialRead)
				l.Warn("serial_read_error", "error", err, "backoff", backoff)
				sleepFn(backoff)
				backoff *= 2
				if backoff > rxBackoffMax {
					backoff = rxBackoffMax
				}
			}
		}
	}()
	return func() { _ = sp.Close() }, nil
}
