package server

import (
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/airsched/go-airsched-server/internal/hub"
	"github.com/airsched/go-airsched-server/internal/metrics"
	"github.com/airsched/go-airsched-server/internal/recv"
)

// startWriter launches the goroutine pushing hub deliveries to a single
// subscriber connection.
func (s *Server) startWriter(ctxDone <-chan struct{}, conn net.Conn, cl *hub.Client, logger *slog.Logger) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			_ = conn.Close()
			if s.Hub != nil {
				s.Hub.Remove(cl)
			}
			s.clientsMu.Lock()
			delete(s.clients, cl)
			s.clientsMu.Unlock()
			s.totalDisconnected.Add(1)
			logger.Info("subscriber_disconnected")
		}()
		t := time.NewTicker(s.flushInterval)
		defer t.Stop()
		batch := make([]recv.Delivery, 0, s.batchSize)
		buf := make([]byte, 0, 4096)
		flush := func() error {
			if len(batch) == 0 {
				return nil
			}
			buf = buf[:0]
			for _, dv := range batch {
				buf = AppendRecord(buf, dv)
			}
			batch = batch[:0]
			if _, err := conn.Write(buf); err != nil {
				wrap := fmt.Errorf("%w: %v", ErrConnWrite, err)
				metrics.IncError(mapErrToMetric(wrap))
				s.setError(wrap)
				return wrap
			}
			return nil
		}
		for {
			select {
			case dv := <-cl.Out:
				batch = append(batch, dv)
				if len(batch) >= s.batchSize {
					if err := flush(); err != nil {
						return
					}
				}
			case <-t.C:
				if err := flush(); err != nil {
					return
				}
			case <-cl.Closed:
				_ = flush()
				return
			case <-ctxDone:
				_ = flush()
				return
			}
		}
	}()
}
