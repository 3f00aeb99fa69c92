package sync

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"fieldsync/internal/utils"
)

const (
	// DefaultPollInterval is how often the monitor probes the service
	DefaultPollInterval = 15 * time.Second
	// DefaultProbeTimeout bounds a single health probe
	DefaultProbeTimeout = 3 * time.Second
)

// Prober checks that the remote service is reachable
type Prober interface {
	Health(ctx context.Context) error
}

// MonitorOptions configures a Monitor
type MonitorOptions struct {
	PollInterval time.Duration
	ProbeTimeout time.Duration
}

// Monitor tracks whether the remote service is reachable. Native signals are
// fed in through Signal; an online signal is only believed after a probe.
type Monitor struct {
	prober   Prober
	interval time.Duration
	timeout  time.Duration

	mu      sync.Mutex
	online  bool
	subs    map[int]chan bool
	nextSub int

	log *slog.Logger
}

// NewMonitor creates a monitor starting from the native state initial
func NewMonitor(prober Prober, initial bool, opts MonitorOptions) *Monitor {
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.ProbeTimeout <= 0 {
		opts.ProbeTimeout = DefaultProbeTimeout
	}
	return &Monitor{
		prober:   prober,
		interval: opts.PollInterval,
		timeout:  opts.ProbeTimeout,
		online:   initial,
		subs:     make(map[int]chan bool),
		log:      utils.Component("connectivity"),
	}
}

// IsOnline reports the current state
func (m *Monitor) IsOnline() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// Subscribe returns a channel receiving every state transition and a function
// ending the subscription
func (m *Monitor) Subscribe() (<-chan bool, func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch := make(chan bool, 4)
	id := m.nextSub
	m.nextSub++
	m.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			if _, ok := m.subs[id]; ok {
				delete(m.subs, id)
				close(ch)
			}
		})
	}
}

// Signal feeds a native connectivity event. Offline is applied at once;
// online triggers a probe and is applied only if the probe succeeds.
// It returns the resulting state.
func (m *Monitor) Signal(ctx context.Context, online bool) bool {
	if !online {
		m.set(false)
		return false
	}
	return m.Probe(ctx)
}

// Probe checks the service now and records the outcome
func (m *Monitor) Probe(ctx context.Context) bool {
	probeCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	err := m.prober.Health(probeCtx)
	if err != nil && ctx.Err() != nil {
		// cancelled by the caller; says nothing about the service
		return m.IsOnline()
	}
	if err != nil {
		m.log.Debug("health probe failed", "error", err)
	}
	m.set(err == nil)
	return err == nil
}

// Run probes immediately and then every poll interval until ctx is done
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.Probe(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Probe(ctx)
		}
	}
}

func (m *Monitor) set(online bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.online == online {
		return
	}
	m.online = online
	m.log.Info("connectivity changed", "online", online)
	for _, ch := range m.subs {
		select {
		case ch <- online:
		default:
			m.log.Warn("dropping connectivity event for slow subscriber", "online", online)
		}
	}
}
