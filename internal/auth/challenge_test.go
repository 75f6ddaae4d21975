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
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tesseract-nexus/pubsub-gateway/internal/apperr"
	"github.com/tesseract-nexus/pubsub-gateway/internal/config"
	"github.com/tesseract-nexus/pubsub-gateway/internal/model"
)

type memChallengeStore struct {
	byValue map[string]model.Challenge
}

func newMemChallengeStore() *memChallengeStore {
	return &memChallengeStore{byValue: make(map[string]model.Challenge)}
}

func (m *memChallengeStore) Issue(ctx context.Context, ch model.Challenge) error {
	m.byValue[ch.Value] = ch
	return nil
}

func (m *memChallengeStore) VerifyAndConsume(ctx context.Context, value string) (model.Challenge, error) {
	ch, ok := m.byValue[value]
	if !ok {
		return model.Challenge{}, apperr.ErrChallengeExpired
	}
	delete(m.byValue, value)
	return ch, nil
}

type memAgentLookup struct {
	agents map[string]model.Agent
}

func (m *memAgentLookup) GetAgent(ctx context.Context, agentID string) (model.Agent, error) {
	agent, ok := m.agents[agentID]
	if !ok {
		return model.Agent{}, errors.New("agent not found")
	}
	return agent, nil
}

func TestVerifyChallengeEd25519(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	agents := &memAgentLookup{agents: map[string]model.Agent{
		"agent-1": {ID: "agent-1", TenantID: "acme", PublicKey: pub, KeyAlgo: "ed25519"},
	}}
	store := newMemChallengeStore()
	v := NewVerifier(config.JWTConfig{}, store, agents)

	value, err := v.IssueChallenge(context.Background(), "agent-1", "acme")
	require.NoError(t, err)

	raw, err := hex.DecodeString(value)
	require.NoError(t, err)
	sig := ed25519.Sign(priv, raw)

	principal, err := v.VerifyChallenge(context.Background(), "agent-1", value, sig)
	require.NoError(t, err)
	assert.Equal(t, "agent-1", principal.ID)
	assert.Equal(t, "acme", principal.TenantID)
	assert.Equal(t, model.RoleAgent, principal.Role)
}

func TestVerifyChallengeRSA(t *testing.T) {
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	pubBytes, err := x509.MarshalPKIXPublicKey(&priv.PublicKey)
	require.NoError(t, err)

	agents := &memAgentLookup{agents: map[string]model.Agent{
		"agent-2": {ID: "agent-2", TenantID: "acme", PublicKey: pubBytes, KeyAlgo: "rsa-sha256"},
	}}
	store := newMemChallengeStore()
	v := NewVerifier(config.JWTConfig{}, store, agents)

	value, err := v.IssueChallenge(context.Background(), "agent-2", "acme")
	require.NoError(t, err)

	raw, err := hex.DecodeString(value)
	require.NoError(t, err)
	digest := sha256.Sum256(raw)
	sig, err := rsa.SignPKCS1v15(rand.Reader, priv, crypto.SHA256, digest[:])
	require.NoError(t, err)

	principal, err := v.VerifyChallenge(context.Background(), "agent-2", value, sig)
	require.NoError(t, err)
	assert.Equal(t, "agent-2", principal.ID)
}

func TestVerifyChallengeRejectsReplay(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	agents := &memAgentLookup{agents: map[string]model.Agent{
		"agent-1": {ID: "agent-1", TenantID: "acme", PublicKey: pub, KeyAlgo: "ed25519"},
	}}
	store := newMemChallengeStore()
	v := NewVerifier(config.JWTConfig{}, store, agents)

	value, err := v.IssueChallenge(context.Background(), "agent-1", "acme")
	require.NoError(t, err)
	raw, _ := hex.DecodeString(value)
	sig := ed25519.Sign(priv, raw)

	_, err = v.VerifyChallenge(context.Background(), "agent-1", value, sig)
	require.NoError(t, err)

	_, err = v.VerifyChallenge(context.Background(), "agent-1", value, sig)
	assert.ErrorIs(t, err, apperr.ErrAuthRejected)
}

func TestVerifyChallengeRejectsWrongAgent(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	agents := &memAgentLookup{agents: map[string]model.Agent{
		"agent-1": {ID: "agent-1", TenantID: "acme", PublicKey: pub, KeyAlgo: "ed25519"},
	}}
	store := newMemChallengeStore()
	v := NewVerifier(config.JWTConfig{}, store, agents)

	value, err := v.IssueChallenge(context.Background(), "agent-1", "acme")
	require.NoError(t, err)
	raw, _ := hex.DecodeString(value)
	sig := ed25519.Sign(priv, raw)

	_, err = v.VerifyChallenge(context.Background(), "someone-else", value, sig)
	assert.ErrorIs(t, err, apperr.ErrAuthRejected)
}

func TestVerifyChallengeRejectsBadSignature(t *testing.T) {
	pub, _, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	agents := &memAgentLookup{agents: map[string]model.Agent{
		"agent-1": {ID: "agent-1", TenantID: "acme", PublicKey: pub, KeyAlgo: "ed25519"},
	}}
	store := newMemChallengeStore()
	v := NewVerifier(config.JWTConfig{}, store, agents)

	value, err := v.IssueChallenge(context.Background(), "agent-1", "acme")
	require.NoError(t, err)

	_, err = v.VerifyChallenge(context.Background(), "agent-1", value, []byte("not a signature"))
	assert.ErrorIs(t, err, apperr.ErrAuthRejected)
}

func TestIssueChallengeExpiry(t *testing.T) {
	store := newMemChallengeStore()
	v := NewVerifier(config.JWTConfig{}, store, &memAgentLookup{agents: map[string]model.Agent{}})

	value, err := v.IssueChallenge(context.Background(), "agent-1", "acme")
	require.NoError(t, err)

	ch := store.byValue[value]
	assert.WithinDuration(t, time.Now().UTC().Add(model.ChallengeTTL), ch.ExpiresAt, time.Second)
}
