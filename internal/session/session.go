// Package session implements SessionManager: per-connection state,
// the reader/writer pumps bridging a WebSocket to the bus, and the
// arena+index table that breaks the Session<->BusClient reference
// cycle (handlers capture a session-id, never a *Session).
package session

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/tesseract-nexus/pubsub-gateway/internal/apperr"
	"github.com/tesseract-nexus/pubsub-gateway/internal/bus"
	"github.com/tesseract-nexus/pubsub-gateway/internal/config"
	"github.com/tesseract-nexus/pubsub-gateway/internal/model"
)

// State is the session lifecycle state machine of spec.md §4.5.
type State int32

const (
	StateOpening State = iota
	StateAuthenticating
	StateRunning
	StateClosing
	StateClosed
)

// CloseReason is stamped on close frames and logged on teardown.
type CloseReason string

const (
	CloseClientClose      CloseReason = "client-close"
	CloseAuthFailure      CloseReason = "auth-failure"
	CloseHeartbeatTimeout CloseReason = "heartbeat-timeout"
	CloseSlowConsumer     CloseReason = "slow-consumer"
	CloseReadError        CloseReason = "read-error"
	CloseWriteError       CloseReason = "write-error"
	CloseInternalError    CloseReason = "internal-error"
	CloseServerShutdown   CloseReason = "server-shutdown"
)

var closeCodes = map[CloseReason]int{
	CloseClientClose:      websocket.CloseNormalClosure,
	CloseAuthFailure:      websocket.CloseNormalClosure,
	CloseHeartbeatTimeout: websocket.CloseNormalClosure,
	CloseSlowConsumer:     websocket.CloseNormalClosure,
	CloseReadError:        websocket.CloseAbnormalClosure,
	CloseWriteError:       websocket.CloseAbnormalClosure,
	CloseInternalError:    websocket.CloseInternalServerErr,
	CloseServerShutdown:   websocket.CloseServiceRestart,
}

// Dispatch decides what a non-heartbeat inbound frame does; the
// Gateway supplies this per endpoint (agent vs dashboard frame
// tables), keeping frame semantics out of SessionManager.
type Dispatch func(s *Session, frame InboundFrame)

// Session is one live WebSocket between a Principal and the gateway.
type Session struct {
	id             string
	principal      model.Principal
	serverInstance string
	openedAt       time.Time

	conn   *websocket.Conn
	cfg    config.WebSocketConfig
	logger *logrus.Entry

	manager  *Manager
	dispatch Dispatch

	mu                  sync.RWMutex
	state               State
	lastHeartbeatAt     time.Time
	heartbeatSinceSweep bool
	subs                map[string]*bus.SubHandle

	outbound  chan []byte
	closeOnce sync.Once
	closed    chan struct{}
}

// ID returns the session's unique identifier.
func (s *Session) ID() string { return s.id }

// Principal returns the authenticated identity that owns this session.
func (s *Session) Principal() model.Principal { return s.principal }

// Manager returns the owning arena, giving frame dispatch code access
// to the shared BusClient, Counter, and quota settings.
func (s *Session) Manager() *Manager { return s.manager }

// TenantID is a shorthand for Principal().TenantID.
func (s *Session) TenantID() string { return s.principal.TenantID }

// State reports the current lifecycle state.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// SubscriptionCount reports how many bus subscriptions this session
// currently holds, for quota enforcement.
func (s *Session) SubscriptionCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subs)
}

// Subscribed reports whether subject is already tracked, for the
// idempotent-subscribe rule.
func (s *Session) Subscribed(subject string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.subs[subject]
	return ok
}

// Subscribe registers a bus subscription for subject and enqueues a
// "message" frame to this session for every delivery. A subject the
// session already holds is a caller-visible no-op (idempotent
// subscribe per spec.md §4.6).
func (s *Session) Subscribe(subject string) error {
	if s.Subscribed(subject) {
		return nil
	}

	sessionID := s.id
	handle, err := s.manager.bus.Subscribe(subject, func(subj string, payload []byte) {
		s.manager.deliver(sessionID, subj, payload)
	})
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.subs[subject] = handle
	s.mu.Unlock()
	return nil
}

// Unsubscribe releases a bus subscription. Unsubscribing a subject the
// session does not hold is a no-op (idempotent per spec.md §4.6).
func (s *Session) Unsubscribe(subject string) error {
	s.mu.Lock()
	handle, ok := s.subs[subject]
	if ok {
		delete(s.subs, subject)
	}
	s.mu.Unlock()

	if !ok {
		return nil
	}
	return handle.Unsubscribe()
}

func (s *Session) unsubscribeAll() {
	s.mu.Lock()
	handles := make([]*bus.SubHandle, 0, len(s.subs))
	for subj, h := range s.subs {
		handles = append(handles, h)
		delete(s.subs, subj)
	}
	s.mu.Unlock()

	for _, h := range handles {
		h.Unsubscribe()
	}
}

// TouchHeartbeat records a client heartbeat locally. The registry's
// TTL is not refreshed synchronously here: HeartbeatMonitor batches
// that refresh every 60s for every session that touched since its
// last pass, per spec.md §4.3.
func (s *Session) TouchHeartbeat() {
	s.mu.Lock()
	s.lastHeartbeatAt = time.Now().UTC()
	s.heartbeatSinceSweep = true
	s.mu.Unlock()
}

func (s *Session) lastHeartbeat() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastHeartbeatAt
}

// ConsumeHeartbeatSinceSweep reports and clears whether a client
// heartbeat has landed since the monitor's last self-reassertion pass.
func (s *Session) ConsumeHeartbeatSinceSweep() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := s.heartbeatSinceSweep
	s.heartbeatSinceSweep = false
	return v
}

// enqueueMessage delivers a bus message to this session's outbound
// queue, counting egress traffic. A full queue closes the session with
// slow-consumer per spec.md §4.5/§8 property 7.
func (s *Session) enqueueMessage(subject string, payload []byte) {
	frame := OutboundMessage{
		Type:      FrameMessage,
		Subject:   subject,
		Payload:   json.RawMessage(payload),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	data, err := json.Marshal(frame)
	if err != nil {
		s.logger.WithError(err).Error("session: failed to marshal outbound message")
		return
	}

	if !s.enqueueRaw(data) {
		return
	}
	if s.manager.counter != nil {
		s.manager.counter.CountDeliver(s.TenantID(), s.principal.ID, subject, len(payload))
	}
}

// SendAck writes an ack frame for a successfully processed inbound
// frame.
func (s *Session) SendAck(id string) {
	data, _ := json.Marshal(newAck(id))
	s.enqueueRaw(data)
}

// SendError writes a recoverable error frame; the session stays open.
func (s *Session) SendError(id, message string) {
	data, _ := json.Marshal(newError(id, message))
	s.enqueueRaw(data)
}

// enqueueRaw performs the non-blocking bounded send. Returns false
// (and triggers a slow-consumer close) on overflow.
func (s *Session) enqueueRaw(data []byte) bool {
	select {
	case s.outbound <- data:
		return true
	default:
		s.logger.Warn("session: outbound queue overflow, closing as slow consumer")
		s.Close(CloseSlowConsumer)
		return false
	}
}

// Close begins the Closing state transition. Idempotent; safe to call
// from any goroutine (reader, writer, heartbeat monitor).
func (s *Session) Close(reason CloseReason) {
	s.closeOnce.Do(func() {
		s.setState(StateClosing)
		close(s.closed)

		s.unsubscribeAll()

		code, ok := closeCodes[reason]
		if !ok {
			code = websocket.CloseInternalServerErr
		}
		deadline := time.Now().Add(s.cfg.WriteWait)
		msg := websocket.FormatCloseMessage(code, string(reason))
		s.conn.WriteControl(websocket.CloseMessage, msg, deadline)
		s.conn.Close()

		ctx := s.manager.backgroundCtx()
		if err := s.manager.registry.Unregister(ctx, s.id); err != nil {
			s.logger.WithError(err).Warn("session: registry unregister failed")
		}
		s.manager.remove(s.id)
		s.setState(StateClosed)
		s.logger.WithField("reason", reason).Info("session: closed")
	})
}

// Run starts the writer pump and blocks in the reader pump until the
// connection ends. Callers invoke Run from the HTTP handler goroutine
// that accepted the upgrade; it returns once the session is fully
// closed.
func (s *Session) Run() {
	s.setState(StateRunning)
	go s.writePump()
	s.readPump()
}

func (s *Session) readPump() {
	defer s.Close(CloseClientClose)

	s.conn.SetReadLimit(s.cfg.MaxMessageSize)
	s.conn.SetReadDeadline(time.Now().Add(s.cfg.PongWait))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(s.cfg.PongWait))
		return nil
	})

	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				s.logger.WithError(err).Warn("session: read error")
			}
			return
		}
		s.handleFrame(raw)
	}
}

func (s *Session) handleFrame(raw []byte) {
	var frame InboundFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		s.SendError("", apperr.ErrInvalidFrame.Error())
		return
	}

	if frame.Type == FrameHeartbeat {
		s.TouchHeartbeat()
		s.SendAck(frame.ID)
		return
	}

	if s.dispatch == nil || frame.Type == FrameUnknown {
		s.SendError(frame.ID, apperr.ErrInvalidFrame.Error())
		return
	}
	s.dispatch(s, frame)
}

func (s *Session) writePump() {
	ticker := time.NewTicker(s.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case data, ok := <-s.outbound:
			s.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteWait))
			if !ok {
				s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				s.Close(CloseWriteError)
				return
			}
		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.Close(CloseWriteError)
				return
			}
		case <-s.closed:
			return
		}
	}
}
