// Package health tracks reachability of zonebot's external
// dependencies (the DNS provider, the Slack Web API).
//
// This is distinct from httpkit's transport-level retry, which covers
// sub-second dial hiccups. The monitor covers multi-minute outages:
// provider maintenance windows, expired credentials, network
// partitions. Its snapshot feeds the /udns-system-status reply so an
// operator can tell "the provider is down" apart from "the bot cannot
// reach the provider".
package health

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// Probe checks one dependency. Return nil when reachable.
type Probe func(ctx context.Context) error

// Check is the last known state of one dependency.
type Check struct {
	Name        string
	OK          bool
	LastChecked time.Time
	Error       string
}

// Config tunes the Monitor. Zero values select the defaults noted on
// each field.
type Config struct {
	// Interval between probe rounds (default 60s).
	Interval time.Duration
	// ProbeTimeout bounds one probe call (default 10s).
	ProbeTimeout time.Duration
	Logger       *slog.Logger
}

type namedProbe struct {
	name  string
	probe Probe
}

// Monitor periodically probes registered dependencies and records
// state transitions. Register every probe before calling Start.
type Monitor struct {
	interval     time.Duration
	probeTimeout time.Duration
	logger       *slog.Logger
	probes       []namedProbe

	mu    sync.Mutex
	state map[string]Check

	cancel context.CancelFunc
	done   chan struct{}
}

// NewMonitor creates an idle Monitor.
func NewMonitor(cfg Config) *Monitor {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = 10 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Monitor{
		interval:     cfg.Interval,
		probeTimeout: cfg.ProbeTimeout,
		logger:       logger,
		state:        make(map[string]Check),
		done:         make(chan struct{}),
	}
}

// Register adds a dependency. Must be called before Start.
func (m *Monitor) Register(name string, probe Probe) {
	m.probes = append(m.probes, namedProbe{name: name, probe: probe})
}

// Start probes every dependency once, then re-probes on the configured
// interval in a background goroutine until ctx is cancelled or Stop is
// called.
func (m *Monitor) Start(ctx context.Context) {
	ctx, m.cancel = context.WithCancel(ctx)

	m.probeAll(ctx)

	go func() {
		defer close(m.done)
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.probeAll(ctx)
			}
		}
	}()
}

// Stop cancels the monitor and waits for the probe goroutine to exit.
// Only valid after Start.
func (m *Monitor) Stop() {
	m.cancel()
	<-m.done
}

// Checks returns the last known state of every dependency, sorted by
// name.
func (m *Monitor) Checks() []Check {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Check, 0, len(m.state))
	for _, c := range m.state {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (m *Monitor) probeAll(ctx context.Context) {
	for _, p := range m.probes {
		if ctx.Err() != nil {
			return
		}

		probeCtx, cancel := context.WithTimeout(ctx, m.probeTimeout)
		err := p.probe(probeCtx)
		cancel()

		m.record(p.name, err)
	}
}

// record stores the probe outcome and logs ready/down transitions.
func (m *Monitor) record(name string, err error) {
	now := time.Now()

	m.mu.Lock()
	prev, known := m.state[name]
	next := Check{Name: name, OK: err == nil, LastChecked: now}
	if err != nil {
		next.Error = err.Error()
	}
	m.state[name] = next
	m.mu.Unlock()

	switch {
	case err == nil && (!known || !prev.OK):
		m.logger.Info("dependency reachable", "dependency", name)
	case err != nil && known && prev.OK:
		m.logger.Warn("dependency unreachable", "dependency", name, "error", err)
	case err != nil && !known:
		m.logger.Warn("dependency unreachable at startup", "dependency", name, "error", err)
	}
}
