// Package bus wraps a connection to the external NATS-compatible
// message bus: connection management, subject-scoped publish/subscribe,
// and reconnect with exponential backoff.
package bus

import (
	"context"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"

	"github.com/tesseract-nexus/pubsub-gateway/internal/apperr"
	"github.com/tesseract-nexus/pubsub-gateway/internal/config"
)

// Handler is invoked once per message received on a matching subject.
// Handlers run on the client's dispatch path and must not block it:
// hand work off to the caller's own queue instead.
type Handler func(subject string, payload []byte)

// SubHandle represents one registered subscription. Unsubscribe is
// idempotent and synchronous: no further handler invocations occur
// after it returns.
type SubHandle struct {
	subject string
	client  *Client
	mu      sync.Mutex
	sub     *nats.Subscription
	closed  bool
}

// Unsubscribe releases the subscription. Safe to call more than once.
func (h *SubHandle) Unsubscribe() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	h.closed = true
	if h.sub != nil {
		return h.sub.Unsubscribe()
	}
	return nil
}

// Client is a connection-managed client to the message bus. It
// transparently reconnects with exponential backoff and re-establishes
// every live SubHandle after reconnect.
type Client struct {
	cfg    config.NATSConfig
	logger *logrus.Logger

	mu      sync.RWMutex
	conn    *nats.Conn
	subs    map[*SubHandle]Handler
	connCh  chan struct{}
	closed  bool
}

// New builds a Client. Connect must be called before Publish/Subscribe
// will succeed.
func New(cfg config.NATSConfig, logger *logrus.Logger) *Client {
	return &Client{
		cfg:    cfg,
		logger: logger,
		subs:   make(map[*SubHandle]Handler),
		connCh: make(chan struct{}),
	}
}

// Connect is idempotent: it establishes and maintains one logical
// connection, retrying with exponential backoff (100ms -> 30s cap) on
// failure. It returns once an attempt succeeds, or with the last error
// once Close is called; reconnects after a later drop happen in the
// background via the nats.go client's own reconnect loop, which uses
// the same doubling delay and cap.
func (c *Client) Connect() error {
	c.mu.Lock()
	if c.conn != nil && c.conn.IsConnected() {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	return c.connectWithBackoff()
}

func (c *Client) connectWithBackoff() error {
	wait := c.cfg.ReconnectInitial
	if wait <= 0 {
		wait = 100 * time.Millisecond
	}
	max := c.cfg.ReconnectMax
	if max <= 0 {
		max = 30 * time.Second
	}
	initial := wait

	opts := []nats.Option{
		nats.Name("pubsub-gateway"),
		nats.Timeout(10 * time.Second),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.CustomReconnectDelay(func(attempts int) time.Duration {
			d := initial
			for i := 1; i < attempts && d < max; i++ {
				d *= 2
			}
			if d > max {
				d = max
			}
			return d
		}),
		nats.ReconnectBufSize(8 * 1024 * 1024),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err != nil {
				c.logger.WithError(err).Warn("bus: disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			c.logger.WithField("url", nc.ConnectedUrl()).Info("bus: reconnected")
			c.resubscribeAll()
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			c.logger.Warn("bus: connection closed")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			c.logger.WithError(err).Error("bus: async error")
		}),
	}

	var lastErr error
	for attempt := 0; ; attempt++ {
		conn, err := nats.Connect(c.cfg.URL, opts...)
		if err == nil {
			c.mu.Lock()
			c.conn = conn
			c.mu.Unlock()
			c.logger.WithField("url", c.cfg.URL).Info("bus: connected")
			return nil
		}
		lastErr = err
		c.logger.WithError(err).WithField("attempt", attempt+1).Warn("bus: connect failed, retrying")

		select {
		case <-time.After(wait):
		case <-c.connCh:
			return lastErr
		}
		wait *= 2
		if wait > max {
			wait = max
		}
	}
}

// IsConnected reports whether a healthy connection currently exists.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn != nil && c.conn.IsConnected()
}

// Publish sends opaque bytes to subject. It waits up to the configured
// publish timeout for a healthy connection before failing with
// ErrNotConnected; delivery itself is best-effort.
func (c *Client) Publish(subject string, payload []byte) error {
	deadline := time.Now().Add(c.cfg.PublishTimeout)
	for {
		c.mu.RLock()
		conn := c.conn
		c.mu.RUnlock()

		if conn != nil && conn.IsConnected() {
			return conn.Publish(subject, payload)
		}
		if time.Now().After(deadline) {
			return apperr.ErrNotConnected
		}
		time.Sleep(50 * time.Millisecond)
	}
}

// Subscribe registers handler to be invoked once per message matching
// subjectPattern. The returned handle's Unsubscribe is idempotent.
func (c *Client) Subscribe(subjectPattern string, handler Handler) (*SubHandle, error) {
	handle := &SubHandle{subject: subjectPattern, client: c}

	c.mu.Lock()
	c.subs[handle] = handler
	conn := c.conn
	c.mu.Unlock()

	if conn == nil || !conn.IsConnected() {
		// Subscription resumes silently on reconnect (§4.1 failure
		// model); the handle is already tracked for resubscribeAll.
		return handle, nil
	}

	sub, err := conn.Subscribe(subjectPattern, func(msg *nats.Msg) {
		handler(msg.Subject, msg.Data)
	})
	if err != nil {
		c.mu.Lock()
		delete(c.subs, handle)
		c.mu.Unlock()
		return nil, err
	}

	handle.mu.Lock()
	handle.sub = sub
	handle.mu.Unlock()
	return handle, nil
}

func (c *Client) resubscribeAll() {
	c.mu.RLock()
	conn := c.conn
	snapshot := make(map[*SubHandle]Handler, len(c.subs))
	for h, fn := range c.subs {
		snapshot[h] = fn
	}
	c.mu.RUnlock()

	if conn == nil {
		return
	}
	for handle, handler := range snapshot {
		handle.mu.Lock()
		if handle.closed {
			handle.mu.Unlock()
			continue
		}
		subject := handle.subject
		sub, err := conn.Subscribe(subject, func(msg *nats.Msg) {
			handler(msg.Subject, msg.Data)
		})
		if err != nil {
			c.logger.WithError(err).WithField("subject", subject).Error("bus: resubscribe failed")
			handle.mu.Unlock()
			continue
		}
		handle.sub = sub
		handle.mu.Unlock()
	}
}

// Close drains and closes the connection.
func (c *Client) Close(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	conn := c.conn
	close(c.connCh)
	c.mu.Unlock()

	if conn == nil {
		return nil
	}
	done := make(chan struct{})
	go func() {
		conn.Drain()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		conn.Close()
	}
	return nil
}
