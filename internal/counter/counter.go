// Package counter implements MessageCounter: in-memory batched
// per-tenant/client/subject message and byte counting, flushed into a
// fast Redis counter store on a time-or-size trigger.
package counter

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/tesseract-nexus/pubsub-gateway/internal/config"
	"github.com/tesseract-nexus/pubsub-gateway/internal/model"
)

// Counter buffers increments per Redis key and flushes them as one
// pipelined INCRBY batch every FlushInterval or FlushMaxBatch events,
// whichever comes first.
type Counter struct {
	cfg    config.UsageConfig
	rdb    *redis.Client
	logger *logrus.Logger

	mu            sync.Mutex
	buffer        map[string]int64
	bufferedSince time.Time
	eventsSinceFlush int

	dropped int64
}

// New builds a Counter over an already-connected Redis client.
func New(cfg config.UsageConfig, rdb *redis.Client, logger *logrus.Logger) *Counter {
	return &Counter{
		cfg:    cfg,
		rdb:    rdb,
		logger: logger,
		buffer: make(map[string]int64),
	}
}

// CountPublish records one ingress event: a session's publish frame
// that reached the bus.
func (c *Counter) CountPublish(tenantID, principalID, subject string, bytes int) {
	c.record(tenantID, principalID, subject, model.DirectionIn, bytes)
}

// CountDeliver records one egress event: a "message" frame sent to a
// session.
func (c *Counter) CountDeliver(tenantID, principalID, subject string, bytes int) {
	c.record(tenantID, principalID, subject, model.DirectionOut, bytes)
}

func (c *Counter) record(tenantID, principalID, subject string, dir model.EventDirection, bytes int) {
	today := time.Now().UTC().Format("2006-01-02")
	base := fmt.Sprintf("stats:d:%s:%s", today, tenantID)

	c.mu.Lock()
	if len(c.buffer) == 0 {
		c.bufferedSince = time.Now()
	}
	c.incrLocked(base+":total:messages:"+string(dir), 1)
	c.incrLocked(base+":total:bytes:"+string(dir), int64(bytes))
	c.incrLocked(base+":client:"+principalID+":messages:"+string(dir), 1)
	c.incrLocked(base+":client:"+principalID+":bytes:"+string(dir), int64(bytes))
	c.incrLocked(base+":subject:"+subject+":messages:"+string(dir), 1)
	c.incrLocked(base+":subject:"+subject+":bytes:"+string(dir), int64(bytes))
	c.eventsSinceFlush++
	shouldFlush := c.eventsSinceFlush >= c.cfg.FlushMaxBatch
	c.mu.Unlock()

	if shouldFlush {
		c.Flush(context.Background())
	}
}

func (c *Counter) incrLocked(key string, n int64) {
	c.buffer[key] += n
}

// Run drives the periodic flush ticker until ctx is canceled, flushing
// once more on the way out.
func (c *Counter) Run(ctx context.Context) {
	ticker := time.NewTicker(c.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.Flush(context.Background())
			return
		case <-ticker.C:
			c.Flush(ctx)
		}
	}
}

// Flush issues one pipelined INCRBY per buffered key. On error the
// buffer is retained for the next attempt; deltas older than
// FlushRetryWindow are dropped (counted, not retried forever).
func (c *Counter) Flush(ctx context.Context) {
	c.mu.Lock()
	if len(c.buffer) == 0 {
		c.mu.Unlock()
		return
	}
	snapshot := make(map[string]int64, len(c.buffer))
	for k, v := range c.buffer {
		snapshot[k] = v
	}
	bufferedSince := c.bufferedSince
	c.mu.Unlock()

	pipe := c.rdb.Pipeline()
	for key, delta := range snapshot {
		pipe.IncrBy(ctx, key, delta)
	}
	_, err := pipe.Exec(ctx)

	if err != nil {
		c.logger.WithError(err).Warn("counter: flush failed, retaining buffer")
		if time.Since(bufferedSince) > c.cfg.FlushRetryWindow {
			c.mu.Lock()
			dropped := len(c.buffer)
			c.buffer = make(map[string]int64)
			c.eventsSinceFlush = 0
			c.bufferedSince = time.Time{}
			c.mu.Unlock()
			atomic.AddInt64(&c.dropped, int64(dropped))
			c.logger.WithField("dropped_keys", dropped).Error("counter: dropping stale buffered deltas past retry window")
		}
		return
	}

	c.mu.Lock()
	for key, delta := range snapshot {
		c.buffer[key] -= delta
		if c.buffer[key] == 0 {
			delete(c.buffer, key)
		}
	}
	if len(c.buffer) == 0 {
		c.eventsSinceFlush = 0
		c.bufferedSince = time.Time{}
	}
	c.mu.Unlock()
}

// DroppedDeltas reports how many buffered keys have been discarded
// past their retry window, for operator visibility.
func (c *Counter) DroppedDeltas() int64 {
	return atomic.LoadInt64(&c.dropped)
}
