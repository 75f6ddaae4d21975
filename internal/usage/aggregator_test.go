package usage

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tesseract-nexus/pubsub-gateway/internal/config"
	"github.com/tesseract-nexus/pubsub-gateway/internal/model"
	"github.com/tesseract-nexus/pubsub-gateway/internal/registry"
)

type fakeUsageRepo struct {
	rows map[string]model.DailyUsage
}

func newFakeUsageRepo() *fakeUsageRepo {
	return &fakeUsageRepo{rows: make(map[string]model.DailyUsage)}
}

func (f *fakeUsageRepo) Upsert(ctx context.Context, usage model.DailyUsage) error {
	f.rows[usage.TenantID+"|"+usage.Date] = usage
	return nil
}

func (f *fakeUsageRepo) ListRange(ctx context.Context, tenantID, from, to string) ([]model.DailyUsage, error) {
	var out []model.DailyUsage
	for _, row := range f.rows {
		if row.TenantID == tenantID && row.Date >= from && row.Date <= to {
			out = append(out, row)
		}
	}
	return out, nil
}

func newTestAggregator(t *testing.T) (*Aggregator, *redis.Client, *fakeUsageRepo) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	reg := registry.New(rdb, "connections")
	repo := newFakeUsageRepo()
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	cfg := config.UsageConfig{AggregateInterval: time.Minute}
	return New(cfg, rdb, reg, repo, logger), rdb, repo
}

func TestSnapshotDateUpsertsPerTenant(t *testing.T) {
	agg, rdb, repo := newTestAggregator(t)
	ctx := context.Background()
	today := time.Now().UTC().Format(dateLayout)

	rdb.IncrBy(ctx, "stats:d:"+today+":acme:total:messages:in", 5)
	rdb.IncrBy(ctx, "stats:d:"+today+":acme:total:bytes:in", 500)

	agg.snapshotDate(ctx, today)

	row := repo.rows["acme|"+today]
	assert.Equal(t, int64(5), row.MessagesIn)
	assert.Equal(t, int64(500), row.BytesIn)
}

func TestTenantIDFromTotalKey(t *testing.T) {
	id, ok := tenantIDFromTotalKey("stats:d:2026-01-01:acme:total:messages:in")
	assert.True(t, ok)
	assert.Equal(t, "acme", id)

	_, ok = tenantIDFromTotalKey("stats:d:2026-01-01:acme:total:bytes:in")
	assert.False(t, ok)
}

func TestActiveCountsCountsAgentsAndChannels(t *testing.T) {
	agg, rdb, _ := newTestAggregator(t)
	ctx := context.Background()
	today := time.Now().UTC().Format(dateLayout)

	require.NoError(t, agg.registry.Register(ctx, model.ConnectionRecord{
		SessionID: "s1", TenantID: "acme", Role: model.RoleAgent,
	}))
	require.NoError(t, agg.registry.Register(ctx, model.ConnectionRecord{
		SessionID: "s2", TenantID: "acme", Role: model.RoleDashboard,
	}))
	rdb.Set(ctx, "stats:d:"+today+":acme:subject:tenant.acme.channel.general:messages:in", 1, 0)
	rdb.Set(ctx, "stats:d:"+today+":acme:subject:tenant.acme.channel.alerts:messages:in", 1, 0)

	agents, channels := agg.activeCounts(ctx, "acme")
	assert.Equal(t, int64(1), agents)
	assert.Equal(t, int64(2), channels)
}

func TestGetUsageStitchesDurableAndLive(t *testing.T) {
	agg, rdb, repo := newTestAggregator(t)
	ctx := context.Background()

	today := time.Now().UTC().Format(dateLayout)
	yesterday := prevDate(today)

	repo.rows["acme|"+yesterday] = model.DailyUsage{TenantID: "acme", Date: yesterday, MessagesIn: 10}
	rdb.IncrBy(ctx, "stats:d:"+today+":acme:total:messages:in", 3)

	rows, err := agg.GetUsage(ctx, "acme", yesterday, today)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, yesterday, rows[0].Date)
	assert.Equal(t, today, rows[1].Date)
	assert.Equal(t, int64(3), rows[1].MessagesIn)
}

func TestGetUsageExcludesTodayWhenRangeIsPast(t *testing.T) {
	agg, _, repo := newTestAggregator(t)
	ctx := context.Background()

	today := time.Now().UTC().Format(dateLayout)
	yesterday := prevDate(today)
	twoDaysAgo := prevDate(yesterday)

	repo.rows["acme|"+yesterday] = model.DailyUsage{TenantID: "acme", Date: yesterday, MessagesIn: 10}

	rows, err := agg.GetUsage(ctx, "acme", twoDaysAgo, yesterday)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, yesterday, rows[0].Date)
}

func TestPrevDate(t *testing.T) {
	assert.Equal(t, "2026-01-31", prevDate("2026-02-01"))
}
