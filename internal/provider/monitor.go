package provider

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/tagforge/tagforge/internal/logging"
	"github.com/tagforge/tagforge/pkg/types"
)

// Status classifies the health of the active provider endpoint.
type Status string

const (
	StatusOffline  Status = "offline"
	StatusOK       Status = "ok"
	StatusDegraded Status = "degraded"
	StatusSlow     Status = "slow"
)

// classifyLatency maps a round-trip time to a status level. Thresholds match
// the status bar colors of the desktop app.
func classifyLatency(latency time.Duration) Status {
	switch {
	case latency <= 0:
		return StatusOffline
	case latency < 300*time.Millisecond:
		return StatusOK
	case latency < time.Second:
		return StatusDegraded
	default:
		return StatusSlow
	}
}

// Monitor periodically pings the active profile's provider and tracks the
// last observed latency. Generation latency is reported into the same slot
// via RecordLatency.
type Monitor struct {
	registry *Registry
	interval time.Duration

	mu          sync.RWMutex
	profile     *types.AgentProfile
	lastLatency time.Duration
	status      Status
	started     bool
	stopped     bool

	stop chan struct{}
	done chan struct{}
}

// NewMonitor creates a monitor pinging every interval. A zero interval
// defaults to 5 seconds.
func NewMonitor(registry *Registry, interval time.Duration) *Monitor {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Monitor{
		registry: registry,
		interval: interval,
		status:   StatusOffline,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// SetProfile switches the profile being monitored.
func (m *Monitor) SetProfile(profile *types.AgentProfile) {
	m.mu.Lock()
	m.profile = profile
	m.mu.Unlock()
}

// Latency returns the last observed round-trip time.
func (m *Monitor) Latency() time.Duration {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastLatency
}

// Status returns the current classification.
func (m *Monitor) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

// RecordLatency feeds an externally measured latency (e.g. a completed
// generation) into the monitor.
func (m *Monitor) RecordLatency(latency time.Duration) {
	m.mu.Lock()
	m.lastLatency = latency
	m.status = classifyLatency(latency)
	m.mu.Unlock()
}

// Start begins the ping loop. Call Stop to end it. Safe to call once.
func (m *Monitor) Start(ctx context.Context) {
	m.mu.Lock()
	if m.started || m.stopped {
		m.mu.Unlock()
		return
	}
	m.started = true
	m.mu.Unlock()

	go func() {
		defer close(m.done)

		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-m.stop:
				return
			case <-ticker.C:
				m.pingOnce(ctx)
			}
		}
	}()
}

// Stop ends the ping loop and waits for it to exit. Safe to call whether or
// not Start ran.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return
	}
	m.stopped = true
	started := m.started
	m.mu.Unlock()

	if !started {
		return
	}
	close(m.stop)
	<-m.done
}

// pingOnce measures one ListModels round-trip, retrying transient failures
// with exponential backoff before declaring the endpoint offline.
func (m *Monitor) pingOnce(ctx context.Context) {
	m.mu.RLock()
	profile := m.profile
	m.mu.RUnlock()

	if profile == nil {
		return
	}

	prov, err := m.registry.Get(profile.Provider)
	if err != nil {
		return
	}

	creds := Credentials{APIKey: profile.APIKey, EndpointURL: profile.EndpointURL}

	start := time.Now()
	op := func() error {
		_, err := prov.ListModels(ctx, creds)
		return err
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 200 * time.Millisecond
	policy.MaxElapsedTime = 3 * time.Second

	if err := backoff.Retry(op, backoff.WithContext(policy, ctx)); err != nil {
		m.mu.Lock()
		m.lastLatency = 0
		m.status = StatusOffline
		m.mu.Unlock()

		logging.Warn().
			Str("provider", profile.Provider).
			Str("endpoint", profile.EndpointURL).
			Err(err).
			Msg("background ping failed")
		return
	}

	m.RecordLatency(time.Since(start))
}
