// Package auth implements the two authentication flows the gateway
// accepts: dashboard bearer-token (JWT) validation and agent
// signed-challenge verification.
package auth

import (
	"context"

	"github.com/tesseract-nexus/pubsub-gateway/internal/config"
	"github.com/tesseract-nexus/pubsub-gateway/internal/model"
)

// ChallengeStore persists single-use challenges. Issue writes a new
// record; VerifyAndConsume atomically reads-and-deletes it, returning
// apperr.ErrChallengeExpired if absent or past TTL.
type ChallengeStore interface {
	Issue(ctx context.Context, ch model.Challenge) error
	VerifyAndConsume(ctx context.Context, value string) (model.Challenge, error)
}

// AgentKeyLookup resolves an agent's registered verification key.
type AgentKeyLookup interface {
	GetAgent(ctx context.Context, agentID string) (model.Agent, error)
}

// Verifier implements AuthVerifier: JWT validation for the dashboard
// path, challenge/signature verification for the agent path.
type Verifier struct {
	cfg        config.JWTConfig
	challenges ChallengeStore
	agents     AgentKeyLookup
}

// NewVerifier builds a Verifier over its collaborators.
func NewVerifier(cfg config.JWTConfig, challenges ChallengeStore, agents AgentKeyLookup) *Verifier {
	return &Verifier{cfg: cfg, challenges: challenges, agents: agents}
}
