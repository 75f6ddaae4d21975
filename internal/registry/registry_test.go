package registry

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tesseract-nexus/pubsub-gateway/internal/apperr"
	"github.com/tesseract-nexus/pubsub-gateway/internal/model"
)

func newTestRegistry(t *testing.T) (*Registry, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return New(rdb, "connections"), mr
}

func TestRegistryRegisterAndGet(t *testing.T) {
	reg, _ := newTestRegistry(t)
	ctx := context.Background()

	rec := model.ConnectionRecord{
		SessionID:       "sess-1",
		PrincipalID:     "agent-1",
		TenantID:        "acme",
		Role:            model.RoleAgent,
		ServerInstance:  "gateway-0",
		OpenedAt:        time.Now().UTC(),
		LastHeartbeatAt: time.Now().UTC(),
	}
	require.NoError(t, reg.Register(ctx, rec))

	got, err := reg.Get(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, rec.SessionID, got.SessionID)
	assert.Equal(t, rec.TenantID, got.TenantID)
}

func TestRegistryGetMissing(t *testing.T) {
	reg, _ := newTestRegistry(t)
	_, err := reg.Get(context.Background(), "does-not-exist")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestRegistryHeartbeatRefreshesTimestamp(t *testing.T) {
	reg, _ := newTestRegistry(t)
	ctx := context.Background()

	opened := time.Now().UTC().Add(-time.Hour)
	rec := model.ConnectionRecord{
		SessionID:       "sess-1",
		TenantID:        "acme",
		OpenedAt:        opened,
		LastHeartbeatAt: opened,
	}
	require.NoError(t, reg.Register(ctx, rec))
	require.NoError(t, reg.Heartbeat(ctx, "sess-1"))

	got, err := reg.Get(ctx, "sess-1")
	require.NoError(t, err)
	assert.True(t, got.LastHeartbeatAt.After(opened))
}

func TestRegistryHeartbeatMissing(t *testing.T) {
	reg, _ := newTestRegistry(t)
	err := reg.Heartbeat(context.Background(), "nope")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestRegistryUnregisterRemovesFromTenantSet(t *testing.T) {
	reg, _ := newTestRegistry(t)
	ctx := context.Background()

	rec := model.ConnectionRecord{SessionID: "sess-1", TenantID: "acme"}
	require.NoError(t, reg.Register(ctx, rec))
	require.NoError(t, reg.Unregister(ctx, "sess-1"))

	_, err := reg.Get(ctx, "sess-1")
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	records, err := reg.ListByTenant(ctx, "acme")
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestRegistryUnregisterIdempotent(t *testing.T) {
	reg, _ := newTestRegistry(t)
	ctx := context.Background()
	assert.NoError(t, reg.Unregister(ctx, "never-registered"))
}

func TestRegistryListByTenant(t *testing.T) {
	reg, _ := newTestRegistry(t)
	ctx := context.Background()

	require.NoError(t, reg.Register(ctx, model.ConnectionRecord{SessionID: "a", TenantID: "acme"}))
	require.NoError(t, reg.Register(ctx, model.ConnectionRecord{SessionID: "b", TenantID: "acme"}))
	require.NoError(t, reg.Register(ctx, model.ConnectionRecord{SessionID: "c", TenantID: "globex"}))

	records, err := reg.ListByTenant(ctx, "acme")
	require.NoError(t, err)
	assert.Len(t, records, 2)
}

func TestRegistryListStale(t *testing.T) {
	reg, _ := newTestRegistry(t)
	ctx := context.Background()

	now := time.Now().UTC()
	require.NoError(t, reg.Register(ctx, model.ConnectionRecord{
		SessionID: "fresh", TenantID: "acme", LastHeartbeatAt: now,
	}))
	require.NoError(t, reg.Register(ctx, model.ConnectionRecord{
		SessionID: "stale", TenantID: "acme", LastHeartbeatAt: now.Add(-5 * time.Minute),
	}))

	stale, err := reg.ListStale(ctx, now.Add(-time.Minute))
	require.NoError(t, err)
	assert.Equal(t, []string{"stale"}, stale)
}

func TestChallengeRegistryIssueAndConsumeOnce(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	cr := NewChallengeRegistry(rdb)
	ctx := context.Background()

	ch := model.Challenge{
		Value:     "abc123",
		AgentID:   "agent-1",
		TenantID:  "acme",
		CreatedAt: time.Now().UTC(),
		ExpiresAt: time.Now().UTC().Add(model.ChallengeTTL),
	}
	require.NoError(t, cr.Issue(ctx, ch))

	got, err := cr.VerifyAndConsume(ctx, "abc123")
	require.NoError(t, err)
	assert.Equal(t, "agent-1", got.AgentID)

	_, err = cr.VerifyAndConsume(ctx, "abc123")
	assert.ErrorIs(t, err, apperr.ErrChallengeExpired)
}
