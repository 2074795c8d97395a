package link

import (
	"context"
	"errors"

	"github.com/airsched/go-airsched-server/internal/logging"
	"github.com/airsched/go-airsched-server/internal/metrics"
	"github.com/airsched/go-airsched-server/internal/transport"
)

// ErrTxOverflow is returned when the async TX buffer is full.
var ErrTxOverflow = errors.New("link tx overflow")

// TXWriter funnels all device writes through one goroutine.
type TXWriter struct{ base *transport.AsyncTx }

// NewTXWriter creates a TXWriter over dev with a buffered channel of size buf.
func NewTXWriter(parent context.Context, dev Device, buf int) *TXWriter {
	send := func(fr []byte) error { return dev.WriteFrame(fr) }
	hooks := transport.Hooks{
		OnError: func(err error) {
			metrics.IncError(metrics.ErrLinkTx)
			logging.L().Error("link_write_error", "error", err)
		},
		OnAfter: func() { metrics.IncLinkTx() },
		OnDrop: func() error {
			metrics.IncError(metrics.ErrLinkOverflow)
			return ErrTxOverflow
		},
	}
	return &TXWriter{base: transport.NewAsyncTx(parent, buf, send, hooks)}
}

// Transmit queues a frame for asynchronous write (drops with ErrTxOverflow if buffer full).
func (w *TXWriter) Transmit(fr []byte) error { return w.base.Transmit(fr) }

// Close stops the writer and waits for pending goroutine exit.
func (w *TXWriter) Close() { w.base.Close() }
