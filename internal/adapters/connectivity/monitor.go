package connectivity

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"restaurant_offline/internal/adapters/observability"
)

type Pinger interface {
	Ping(ctx context.Context) error
}

// Monitor tracks whether the remote API is reachable. State changes come
// from periodic probes and from explicit reports (SetOnline); subscribers get
// every transition.
type Monitor struct {
	pinger   Pinger
	interval time.Duration
	timeout  time.Duration

	mu     sync.Mutex
	online bool
	subs   []chan bool
}

// NewMonitor starts out offline until the first probe or report says
// otherwise. interval <= 0 limits Run to a single startup probe.
func NewMonitor(p Pinger, interval time.Duration) *Monitor {
	return &Monitor{pinger: p, interval: interval, timeout: 5 * time.Second}
}

func (m *Monitor) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// Subscribe returns a channel that receives the latest state on every
// transition. Slow readers only ever see the most recent value.
func (m *Monitor) Subscribe() <-chan bool {
	ch := make(chan bool, 1)
	m.mu.Lock()
	m.subs = append(m.subs, ch)
	m.mu.Unlock()
	return ch
}

// SetOnline records an externally observed state.
func (m *Monitor) SetOnline(online bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.online == online {
		return
	}
	m.online = online
	observability.SetOnline(online)
	log.Info().Bool("online", online).Msg("connectivity changed")
	for _, ch := range m.subs {
		select {
		case <-ch:
		default:
		}
		ch <- online
	}
}

// Probe pings the remote once and records the outcome.
func (m *Monitor) Probe(ctx context.Context) bool {
	if m.pinger == nil {
		return m.Online()
	}
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()
	err := m.pinger.Ping(ctx)
	if err != nil && ctx.Err() != nil && ctx.Err() != context.DeadlineExceeded {
		return m.Online()
	}
	m.SetOnline(err == nil)
	return err == nil
}

// Run probes immediately and then every interval until ctx is cancelled.
// Without an interval it returns after the first probe.
func (m *Monitor) Run(ctx context.Context) {
	m.Probe(ctx)
	if m.interval <= 0 {
		return
	}
	t := time.NewTicker(m.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			m.Probe(ctx)
		}
	}
}
