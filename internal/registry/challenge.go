package registry

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/tesseract-nexus/pubsub-gateway/internal/apperr"
	"github.com/tesseract-nexus/pubsub-gateway/internal/model"
)

const challengeKeyPrefix = "challenge:"

// ChallengeRegistry is the Redis-backed auth.ChallengeStore: one key per
// issued challenge, TTL-bound, deleted atomically on first read so a
// challenge value can only ever be verified once.
type ChallengeRegistry struct {
	rdb *redis.Client
}

// NewChallengeRegistry builds a ChallengeRegistry over an already
// connected Redis client.
func NewChallengeRegistry(rdb *redis.Client) *ChallengeRegistry {
	return &ChallengeRegistry{rdb: rdb}
}

func challengeKey(value string) string {
	return challengeKeyPrefix + value
}

// Issue writes the challenge with model.ChallengeTTL.
func (c *ChallengeRegistry) Issue(ctx context.Context, ch model.Challenge) error {
	data, err := json.Marshal(ch)
	if err != nil {
		return fmt.Errorf("failed to marshal challenge: %w", err)
	}
	if err := c.rdb.Set(ctx, challengeKey(ch.Value), data, model.ChallengeTTL).Err(); err != nil {
		return fmt.Errorf("failed to persist challenge: %w", err)
	}
	return nil
}

// VerifyAndConsume reads and deletes the challenge in one round trip via
// GetDel, so a concurrent second verification attempt for the same value
// always loses the race and fails closed.
func (c *ChallengeRegistry) VerifyAndConsume(ctx context.Context, value string) (model.Challenge, error) {
	data, err := c.rdb.GetDel(ctx, challengeKey(value)).Bytes()
	if err == redis.Nil {
		return model.Challenge{}, apperr.ErrChallengeExpired
	}
	if err != nil {
		return model.Challenge{}, fmt.Errorf("failed to read challenge: %w", err)
	}

	var ch model.Challenge
	if err := json.Unmarshal(data, &ch); err != nil {
		return model.Challenge{}, fmt.Errorf("failed to unmarshal challenge: %w", err)
	}
	return ch, nil
}
