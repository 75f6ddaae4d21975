// Package registry implements ConnectionRegistry: a shared-store
// record of every live session across instances, backed by Redis with
// per-row TTL, following the key+TTL+JSON-blob idiom used for drafts
// and verification tokens elsewhere in the service fleet.
package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tesseract-nexus/pubsub-gateway/internal/apperr"
	"github.com/tesseract-nexus/pubsub-gateway/internal/model"
)

const (
	connKeyPrefix   = "conn:"
	tenantSetPrefix = "conn:tenant:"
)

// Registry is the Redis-backed ConnectionRegistry.
type Registry struct {
	rdb   *redis.Client
	table string
}

// New builds a Registry over an already-connected Redis client.
func New(rdb *redis.Client, table string) *Registry {
	return &Registry{rdb: rdb, table: table}
}

func connKey(sessionID string) string {
	return connKeyPrefix + sessionID
}

func tenantSetKey(tenantID string) string {
	return tenantSetPrefix + tenantID
}

// Register writes a record with TTL model.ConnectionTTL, overwriting
// any existing record for that session-id.
func (r *Registry) Register(ctx context.Context, rec model.ConnectionRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal connection record: %w", err)
	}

	pipe := r.rdb.TxPipeline()
	pipe.Set(ctx, connKey(rec.SessionID), data, model.ConnectionTTL)
	pipe.SAdd(ctx, tenantSetKey(rec.TenantID), rec.SessionID)
	pipe.Expire(ctx, tenantSetKey(rec.TenantID), model.ConnectionTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to register connection: %w", err)
	}
	return nil
}

// Heartbeat refreshes last-heartbeat-at and the record's TTL
// atomically. Fails with apperr.ErrNotFound if the record was reaped.
func (r *Registry) Heartbeat(ctx context.Context, sessionID string) error {
	key := connKey(sessionID)
	data, err := r.rdb.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return apperr.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to read connection record: %w", err)
	}

	var rec model.ConnectionRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return fmt.Errorf("failed to unmarshal connection record: %w", err)
	}
	rec.LastHeartbeatAt = time.Now().UTC()

	updated, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal connection record: %w", err)
	}
	// SET XX: a record deleted since the read is not resurrected.
	refreshed, err := r.rdb.SetXX(ctx, key, updated, model.ConnectionTTL).Result()
	if err != nil {
		return fmt.Errorf("failed to refresh connection record: %w", err)
	}
	if !refreshed {
		return apperr.ErrNotFound
	}
	return nil
}

// Unregister deletes the record. Idempotent.
func (r *Registry) Unregister(ctx context.Context, sessionID string) error {
	rec, err := r.Get(ctx, sessionID)
	if err != nil && err != apperr.ErrNotFound {
		return err
	}

	pipe := r.rdb.TxPipeline()
	pipe.Del(ctx, connKey(sessionID))
	if rec != nil {
		pipe.SRem(ctx, tenantSetKey(rec.TenantID), sessionID)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to unregister connection: %w", err)
	}
	return nil
}

// Get retrieves a single record by session id.
func (r *Registry) Get(ctx context.Context, sessionID string) (*model.ConnectionRecord, error) {
	data, err := r.rdb.Get(ctx, connKey(sessionID)).Bytes()
	if err == redis.Nil {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read connection record: %w", err)
	}
	var rec model.ConnectionRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal connection record: %w", err)
	}
	return &rec, nil
}

// ListByTenant returns every live record for a tenant, used by
// dashboards and operator tooling.
func (r *Registry) ListByTenant(ctx context.Context, tenantID string) ([]model.ConnectionRecord, error) {
	sessionIDs, err := r.rdb.SMembers(ctx, tenantSetKey(tenantID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list tenant sessions: %w", err)
	}

	records := make([]model.ConnectionRecord, 0, len(sessionIDs))
	for _, sid := range sessionIDs {
		rec, err := r.Get(ctx, sid)
		if err == apperr.ErrNotFound {
			// Reaped since the set was read; the set itself is
			// cleaned up lazily by Unregister/ListStale callers.
			continue
		}
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}
	return records, nil
}

// ListStale returns session-ids whose last-heartbeat-at predates
// cutoff, scanning the full connections keyspace with a cursor loop.
func (r *Registry) ListStale(ctx context.Context, cutoff time.Time) ([]string, error) {
	var stale []string
	var cursor uint64
	pattern := connKeyPrefix + "*"

	for {
		keys, next, err := r.rdb.Scan(ctx, cursor, pattern, 200).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to scan connection keys: %w", err)
		}
		for _, key := range keys {
			if len(key) > len(tenantSetPrefix) && key[:len(tenantSetPrefix)] == tenantSetPrefix {
				continue
			}
			data, err := r.rdb.Get(ctx, key).Bytes()
			if err == redis.Nil {
				continue
			}
			if err != nil {
				return nil, fmt.Errorf("failed to read connection record %s: %w", key, err)
			}
			var rec model.ConnectionRecord
			if err := json.Unmarshal(data, &rec); err != nil {
				continue
			}
			if rec.Stale(cutoff) {
				stale = append(stale, rec.SessionID)
			}
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return stale, nil
}
