// Package usage implements UsageAggregator: periodic roll-up of the
// fast counter store into the durable daily_usage table, day-boundary
// close-out, and a read API stitching closed days with the live one.
package usage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/tesseract-nexus/pubsub-gateway/internal/config"
	"github.com/tesseract-nexus/pubsub-gateway/internal/model"
	"github.com/tesseract-nexus/pubsub-gateway/internal/registry"
	"github.com/tesseract-nexus/pubsub-gateway/internal/repository"
)

const dateLayout = "2006-01-02"

// Aggregator rolls fast Redis counters into durable per-tenant daily
// rows and serves range reads over the combination.
type Aggregator struct {
	cfg      config.UsageConfig
	rdb      *redis.Client
	registry *registry.Registry
	repo     repository.UsageRepository
	logger   *logrus.Logger
}

// New builds an Aggregator over its collaborators.
func New(cfg config.UsageConfig, rdb *redis.Client, reg *registry.Registry, repo repository.UsageRepository, logger *logrus.Logger) *Aggregator {
	return &Aggregator{cfg: cfg, rdb: rdb, registry: reg, repo: repo, logger: logger}
}

// Run drives the periodic snapshot loop until ctx is canceled,
// detecting the UTC day boundary and closing out the previous day
// with one final snapshot before rolling to the new date.
func (a *Aggregator) Run(ctx context.Context) {
	ticker := time.NewTicker(a.cfg.AggregateInterval)
	defer ticker.Stop()

	currentDate := time.Now().UTC().Format(dateLayout)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			today := time.Now().UTC().Format(dateLayout)
			if today != currentDate {
				a.snapshotDate(ctx, currentDate)
				currentDate = today
			}
			a.snapshotDate(ctx, currentDate)
		}
	}
}

// snapshotDate reads every tenant's counters for date and upserts one
// DailyUsage row per tenant.
func (a *Aggregator) snapshotDate(ctx context.Context, date string) {
	tenantIDs, err := a.scanTenants(ctx, date)
	if err != nil {
		a.logger.WithError(err).Error("usage: failed to scan counter keys")
		return
	}

	for _, tenantID := range tenantIDs {
		row, err := a.readTenantTotals(ctx, tenantID, date)
		if err != nil {
			a.logger.WithError(err).WithField("tenant_id", tenantID).Error("usage: failed to read counters")
			continue
		}
		if err := a.repo.Upsert(ctx, row); err != nil {
			a.logger.WithError(err).WithField("tenant_id", tenantID).Error("usage: failed to persist daily usage")
		}
	}
}

// scanTenants discovers every tenant with at least one counter for
// date by scanning the total-messages-in key, which every publish
// (ingress) event increments. A tenant whose only counters for date
// are egress (:out) keys is not found.
func (a *Aggregator) scanTenants(ctx context.Context, date string) ([]string, error) {
	pattern := fmt.Sprintf("stats:d:%s:*:total:messages:in", date)
	var tenantIDs []string
	var cursor uint64

	for {
		keys, next, err := a.rdb.Scan(ctx, cursor, pattern, 200).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to scan counter keys: %w", err)
		}
		for _, key := range keys {
			if tenantID, ok := tenantIDFromTotalKey(key); ok {
				tenantIDs = append(tenantIDs, tenantID)
			}
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return tenantIDs, nil
}

func tenantIDFromTotalKey(key string) (string, bool) {
	const suffix = ":total:messages:in"
	if !strings.HasSuffix(key, suffix) {
		return "", false
	}
	trimmed := strings.TrimSuffix(key, suffix)
	parts := strings.SplitN(trimmed, ":", 4)
	if len(parts) != 4 {
		return "", false
	}
	return parts[3], true
}

func (a *Aggregator) readTenantTotals(ctx context.Context, tenantID, date string) (model.DailyUsage, error) {
	base := fmt.Sprintf("stats:d:%s:%s:total", date, tenantID)

	messagesIn, err := a.readInt(ctx, base+":messages:in")
	if err != nil {
		return model.DailyUsage{}, err
	}
	messagesOut, err := a.readInt(ctx, base+":messages:out")
	if err != nil {
		return model.DailyUsage{}, err
	}
	bytesIn, err := a.readInt(ctx, base+":bytes:in")
	if err != nil {
		return model.DailyUsage{}, err
	}
	bytesOut, err := a.readInt(ctx, base+":bytes:out")
	if err != nil {
		return model.DailyUsage{}, err
	}

	activeAgents, activeChannels := a.activeCounts(ctx, tenantID)

	return model.DailyUsage{
		TenantID:       tenantID,
		Date:           date,
		MessagesIn:     messagesIn,
		MessagesOut:    messagesOut,
		BytesIn:        bytesIn,
		BytesOut:       bytesOut,
		ActiveAgents:   activeAgents,
		ActiveChannels: activeChannels,
		UpdatedAt:      time.Now().UTC(),
	}, nil
}

// activeCounts reads live fleet state from the connection registry:
// agent sessions currently open, and distinct channel subjects
// (tenant.<id>.channel.*) that have ingress traffic counted today.
func (a *Aggregator) activeCounts(ctx context.Context, tenantID string) (agents int64, channels int64) {
	records, err := a.registry.ListByTenant(ctx, tenantID)
	if err != nil {
		a.logger.WithError(err).WithField("tenant_id", tenantID).Warn("usage: failed to list tenant connections")
		return 0, 0
	}
	for _, rec := range records {
		if rec.Role == model.RoleAgent {
			agents++
		}
	}

	pattern := fmt.Sprintf("stats:d:%s:%s:subject:%schannel.*:messages:in", time.Now().UTC().Format(dateLayout), tenantID, model.TenantPrefix(tenantID))
	var cursor uint64
	seen := make(map[string]struct{})
	for {
		keys, next, err := a.rdb.Scan(ctx, cursor, pattern, 200).Result()
		if err != nil {
			break
		}
		for _, k := range keys {
			seen[k] = struct{}{}
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return agents, int64(len(seen))
}

func (a *Aggregator) readInt(ctx context.Context, key string) (int64, error) {
	val, err := a.rdb.Get(ctx, key).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read counter %s: %w", key, err)
	}
	return val, nil
}

// GetUsage stitches closed durable rows for [from, to] with a live,
// unpersisted snapshot of today's counters when the range includes
// today.
func (a *Aggregator) GetUsage(ctx context.Context, tenantID, from, to string) ([]model.DailyUsage, error) {
	today := time.Now().UTC().Format(dateLayout)

	durableTo := to
	includeLive := to >= today
	if includeLive {
		durableTo = prevDate(today)
	}

	var rows []model.DailyUsage
	if durableTo >= from {
		durable, err := a.repo.ListRange(ctx, tenantID, from, durableTo)
		if err != nil {
			return nil, err
		}
		rows = durable
	}

	if includeLive && today >= from {
		live, err := a.readTenantTotals(ctx, tenantID, today)
		if err != nil {
			a.logger.WithError(err).WithField("tenant_id", tenantID).Warn("usage: failed to compute live snapshot")
		} else {
			rows = append(rows, live)
		}
	}
	return rows, nil
}

func prevDate(date string) string {
	t, err := time.Parse(dateLayout, date)
	if err != nil {
		return date
	}
	return t.AddDate(0, 0, -1).Format(dateLayout)
}
