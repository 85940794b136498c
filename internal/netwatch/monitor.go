// Package netwatch observes backend reachability and nudges the sync
// engine when connectivity comes back.
package netwatch

import (
	"context"
	"time"

	"github.com/dmitrijs2005/keepsake/internal/logging"
)

// Prober checks whether the remote backend is reachable.
type Prober interface {
	Ping(ctx context.Context) error
}

// Target receives connectivity updates. Satisfied by the engine.
type Target interface {
	SetNetworkAvailable(available bool)
	RetryFailedAndPending(ctx context.Context) error
}

const probeTimeout = 3 * time.Second

// Monitor polls the prober on an interval and is edge-triggered: the
// retry pass runs once per unavailable→available transition, never on
// available→available. Duplicate triggers after flapping are harmless
// because retrying already-synced records is a no-op.
type Monitor struct {
	prober   Prober
	target   Target
	interval time.Duration
	log      logging.Logger

	known     bool
	available bool
}

func New(prober Prober, target Target, interval time.Duration, log logging.Logger) *Monitor {
	return &Monitor{prober: prober, target: target, interval: interval, log: log}
}

// Run polls until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.Check(ctx)

	for {
		select {
		case <-ticker.C:
			m.Check(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// Check performs a single probe and applies the transition rules.
func (m *Monitor) Check(ctx context.Context) {
	probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	err := m.prober.Ping(probeCtx)
	cancel()

	available := err == nil
	wasKnown, was := m.known, m.available
	m.known, m.available = true, available

	m.target.SetNetworkAvailable(available)

	if wasKnown && was == available {
		return
	}

	if available {
		m.log.Info(ctx, "network available")
		// Only a genuine unavailable→available edge retries; the first
		// observation just establishes the baseline.
		if wasKnown {
			if err := m.target.RetryFailedAndPending(ctx); err != nil {
				m.log.Warn(ctx, "retry pass failed", "error", err)
			}
		}
	} else {
		m.log.Info(ctx, "network unavailable", "error", err)
	}
}
