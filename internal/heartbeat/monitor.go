// Package heartbeat implements HeartbeatMonitor: the single
// background task per server instance that reaps sessions whose
// client has stopped sending heartbeats, and reasserts the registry
// TTL for sessions that are quiet but healthy.
package heartbeat

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/tesseract-nexus/pubsub-gateway/internal/registry"
	"github.com/tesseract-nexus/pubsub-gateway/internal/session"
)

const (
	sweepInterval    = 5 * time.Minute
	reassertInterval = 60 * time.Second
	staleAfter       = 90 * time.Second
)

// Monitor runs the sweep and reassertion loops described in spec.md
// §4.3.
type Monitor struct {
	manager  *session.Manager
	registry *registry.Registry
	logger   *logrus.Logger
}

// New builds a Monitor over its collaborators.
func New(manager *session.Manager, reg *registry.Registry, logger *logrus.Logger) *Monitor {
	return &Monitor{manager: manager, registry: reg, logger: logger}
}

// Run blocks, driving both tickers, until ctx is canceled.
func (m *Monitor) Run(ctx context.Context) {
	sweep := time.NewTicker(sweepInterval)
	reassert := time.NewTicker(reassertInterval)
	defer sweep.Stop()
	defer reassert.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-sweep.C:
			m.sweepStale(ctx)
		case <-reassert.C:
			m.reassertQuiet(ctx)
		}
	}
}

// sweepStale terminates every locally-owned session whose last
// heartbeat predates the 90s cutoff, releasing its bus subscriptions
// and registry record in the process (Session.Close does both).
func (m *Monitor) sweepStale(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-staleAfter)
	staleIDs, err := m.registry.ListStale(ctx, cutoff)
	if err != nil {
		m.logger.WithError(err).Error("heartbeat: failed to list stale sessions")
		return
	}

	for _, id := range staleIDs {
		s, ok := m.manager.Get(id)
		if !ok {
			// Owned by another instance, or already gone locally.
			continue
		}
		m.logger.WithField("session_id", id).Info("heartbeat: terminating stale session")
		s.Close(session.CloseHeartbeatTimeout)
	}
}

// reassertQuiet refreshes the registry TTL for every local session
// that received at least one client heartbeat since the previous pass,
// so a healthy but quiet connection never gets reaped purely because
// its client relies on the 30s heartbeat cadence rather than chatter.
func (m *Monitor) reassertQuiet(ctx context.Context) {
	for _, s := range m.manager.AllSessions() {
		if !s.ConsumeHeartbeatSinceSweep() {
			continue
		}
		if err := m.registry.Heartbeat(ctx, s.ID()); err != nil {
			m.logger.WithError(err).WithField("session_id", s.ID()).Warn("heartbeat: registry reassertion failed")
		}
	}
}
