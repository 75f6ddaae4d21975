package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/tesseract-nexus/pubsub-gateway/internal/bus"
	"github.com/tesseract-nexus/pubsub-gateway/internal/config"
	"github.com/tesseract-nexus/pubsub-gateway/internal/model"
	"github.com/tesseract-nexus/pubsub-gateway/internal/registry"
)

// Counter is the subset of MessageCounter the session layer needs:
// one increment per ingress publish, one per egress delivery.
type Counter interface {
	CountPublish(tenantID, principalID, subject string, bytes int)
	CountDeliver(tenantID, principalID, subject string, bytes int)
}

// Manager is the instance-scoped arena of live sessions, keyed by
// session-id. Bus handlers close over a session-id rather than a
// *Session, looking it up here at delivery time; this breaks the
// Session<->BusClient reference cycle described in spec.md §9.
type Manager struct {
	cfg            config.WebSocketConfig
	bus            *bus.Client
	registry       *registry.Registry
	counter        Counter
	logger         *logrus.Logger
	serverInstance string

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewManager builds a Manager over its collaborators.
func NewManager(cfg config.WebSocketConfig, busClient *bus.Client, reg *registry.Registry, counter Counter, logger *logrus.Logger, serverInstance string) *Manager {
	return &Manager{
		cfg:            cfg,
		bus:            busClient,
		registry:       reg,
		counter:        counter,
		logger:         logger,
		serverInstance: serverInstance,
		sessions:       make(map[string]*Session),
	}
}

func (m *Manager) backgroundCtx() context.Context {
	return context.Background()
}

// Bus exposes the shared BusClient to frame dispatch code.
func (m *Manager) Bus() *bus.Client { return m.bus }

// Counter exposes the shared MessageCounter to frame dispatch code.
func (m *Manager) Counter() Counter { return m.counter }

// MaxSubsPerConn returns the configured per-session subscription cap.
func (m *Manager) MaxSubsPerConn() int { return m.cfg.MaxSubsPerConn }

// Open constructs a Session for an already-upgraded connection and
// authenticated principal, registers it in both the in-process arena
// and the shared ConnectionRegistry, and returns it ready for Run.
func (m *Manager) Open(ctx context.Context, conn *websocket.Conn, principal model.Principal, dispatch Dispatch) (*Session, error) {
	now := time.Now().UTC()
	s := &Session{
		id:             uuid.New().String(),
		principal:      principal,
		serverInstance: m.serverInstance,
		openedAt:       now,
		conn:           conn,
		cfg:            m.cfg,
		logger:         m.logger.WithField("component", "session"),
		manager:        m,
		dispatch:       dispatch,
		state:          StateOpening,
		lastHeartbeatAt: now,
		subs:           make(map[string]*bus.SubHandle),
		outbound:       make(chan []byte, m.cfg.OutboundQueue),
		closed:         make(chan struct{}),
	}
	s.logger = s.logger.WithFields(logrus.Fields{
		"session_id": s.id,
		"tenant_id":  principal.TenantID,
		"role":       principal.Role,
	})

	s.setState(StateAuthenticating)

	rec := model.ConnectionRecord{
		SessionID:       s.id,
		PrincipalID:     principal.ID,
		TenantID:        principal.TenantID,
		Role:            principal.Role,
		ServerInstance:  m.serverInstance,
		OpenedAt:        now,
		LastHeartbeatAt: now,
	}
	if err := m.registry.Register(ctx, rec); err != nil {
		s.setState(StateClosed)
		return nil, err
	}

	m.mu.Lock()
	m.sessions[s.id] = s
	m.mu.Unlock()

	return s, nil
}

// Get looks up a live session by id. Used by the heartbeat monitor to
// terminate locally-owned stale sessions.
func (m *Manager) Get(sessionID string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[sessionID]
	return s, ok
}

// Count returns the number of locally open sessions for tenantID,
// used for connection-quota enforcement.
func (m *Manager) Count(tenantID string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, s := range m.sessions {
		if s.TenantID() == tenantID {
			n++
		}
	}
	return n
}

// AllSessions returns a point-in-time snapshot of every locally open
// session, used by HeartbeatMonitor's sweep and reassertion passes.
func (m *Manager) AllSessions() []*Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	return out
}

func (m *Manager) remove(sessionID string) {
	m.mu.Lock()
	delete(m.sessions, sessionID)
	m.mu.Unlock()
}

// deliver is the sole entry point bus handlers call. It looks up the
// session by id and no-ops if the entry is gone, which is precisely
// what lets a subject-handler outlive an Unsubscribe race without
// holding a dangling *Session.
func (m *Manager) deliver(sessionID, subject string, payload []byte) {
	s, ok := m.Get(sessionID)
	if !ok {
		return
	}
	s.enqueueMessage(subject, payload)
}

// CloseAll terminates every locally-owned session, used on graceful
// shutdown.
func (m *Manager) CloseAll(reason CloseReason) {
	m.mu.RLock()
	snapshot := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		snapshot = append(snapshot, s)
	}
	m.mu.RUnlock()

	for _, s := range snapshot {
		s.Close(reason)
	}
}
