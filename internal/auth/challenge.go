package auth

import (
	"context"
	"crypto"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/tesseract-nexus/pubsub-gateway/internal/apperr"
	"github.com/tesseract-nexus/pubsub-gateway/internal/model"
)

// IssueChallenge generates 32 bytes of cryptographic randomness, writes
// a Challenge record with a 5-minute expiry keyed by the challenge
// value, and returns it hex-encoded.
func (v *Verifier) IssueChallenge(ctx context.Context, agentID, tenantID string) (string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("failed to generate challenge randomness: %w", err)
	}
	value := hex.EncodeToString(raw)

	now := time.Now().UTC()
	ch := model.Challenge{
		Value:     value,
		AgentID:   agentID,
		TenantID:  tenantID,
		CreatedAt: now,
		ExpiresAt: now.Add(model.ChallengeTTL),
	}
	if err := v.challenges.Issue(ctx, ch); err != nil {
		return "", fmt.Errorf("failed to persist challenge: %w", err)
	}
	return value, nil
}

// VerifyChallenge atomically consumes the challenge record (failing
// with apperr.ErrAuthRejected if absent, expired, or bound to a
// different agent), retrieves the agent's registered verification key,
// and validates signature over the raw challenge bytes. Ed25519 is
// preferred, RSA-SHA256 is accepted.
//
// The signature primitive always receives the raw challenge bytes: it
// hashes internally (Ed25519) or the hash is computed once and handed
// to the RSA primitive as required by its API, never double-hashed.
func (v *Verifier) VerifyChallenge(ctx context.Context, agentID, challengeValue string, signature []byte) (model.Principal, error) {
	ch, err := v.challenges.VerifyAndConsume(ctx, challengeValue)
	if err != nil {
		return model.Principal{}, apperr.ErrAuthRejected
	}
	if ch.AgentID != agentID {
		return model.Principal{}, apperr.ErrAuthRejected
	}
	if ch.Expired(time.Now().UTC()) {
		return model.Principal{}, apperr.ErrAuthRejected
	}

	agent, err := v.agents.GetAgent(ctx, agentID)
	if err != nil {
		return model.Principal{}, apperr.ErrAuthRejected
	}

	raw, err := hex.DecodeString(challengeValue)
	if err != nil {
		return model.Principal{}, apperr.ErrAuthRejected
	}

	if !verifySignature(agent, raw, signature) {
		return model.Principal{}, apperr.ErrAuthRejected
	}

	return model.NewAgentPrincipal(agentID, agent.TenantID), nil
}

func verifySignature(agent model.Agent, message, signature []byte) bool {
	switch agent.KeyAlgo {
	case "ed25519":
		if len(agent.PublicKey) != ed25519.PublicKeySize {
			return false
		}
		return ed25519.Verify(ed25519.PublicKey(agent.PublicKey), message, signature)
	case "rsa-sha256":
		pub, err := x509.ParsePKIXPublicKey(agent.PublicKey)
		if err != nil {
			return false
		}
		rsaPub, ok := pub.(*rsa.PublicKey)
		if !ok {
			return false
		}
		digest := sha256.Sum256(message)
		return rsa.VerifyPKCS1v15(rsaPub, crypto.SHA256, digest[:], signature) == nil
	default:
		return false
	}
}
