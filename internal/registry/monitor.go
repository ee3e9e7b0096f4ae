package registry

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"kvconsole/internal/backend"
)

const sweepConcurrency = 8

// Monitor pings every registered handle periodically and unregisters the
// sessions whose connection is gone.
type Monitor struct {
	reg      *Registry
	interval time.Duration
	timeout  time.Duration
	onLost   func(id string, err error)
	log      zerolog.Logger
}

// NewMonitor builds a Monitor. onLost may be nil.
func NewMonitor(reg *Registry, interval, timeout time.Duration, onLost func(id string, err error), log zerolog.Logger) *Monitor {
	return &Monitor{
		reg:      reg,
		interval: interval,
		timeout:  timeout,
		onLost:   onLost,
		log:      log.With().Str("component", "monitor").Logger(),
	}
}

// Run sweeps until ctx is done.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if lost := m.Sweep(ctx); len(lost) > 0 {
				m.log.Info().Strs("connection_ids", lost).Msg("stale sessions removed")
			}
		}
	}
}

// Sweep pings every handle once and returns the ids it unregistered. Backend
// error replies leave the session in place.
func (m *Monitor) Sweep(ctx context.Context) []string {
	var (
		mu   sync.Mutex
		lost []string
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(sweepConcurrency)

	for id, conn := range m.reg.handles() {
		g.Go(func() error {
			pctx, cancel := context.WithTimeout(gctx, m.timeout)
			defer cancel()

			_, err := conn.Ping(pctx)
			if err == nil || !backend.IsTransportError(err) || ctx.Err() != nil {
				return nil
			}

			if m.reg.Unregister(id) {
				m.log.Warn().Err(err).Str("connection_id", id).Msg("session lost")
				mu.Lock()
				lost = append(lost, id)
				mu.Unlock()
				if m.onLost != nil {
					m.onLost(id, err)
				}
			}
			return nil
		})
	}
	_ = g.Wait()
	return lost
}
