package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tesseract-nexus/pubsub-gateway/internal/apperr"
	"github.com/tesseract-nexus/pubsub-gateway/internal/config"
)

func signDashboardToken(t *testing.T, cfg config.JWTConfig, sub, tenantID string, issuedAt, expiresAt time.Time) string {
	t.Helper()
	claims := dashboardClaims{
		TenantID: tenantID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sub,
			Issuer:    cfg.Issuer,
			Audience:  jwt.ClaimStrings{cfg.Audience},
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(cfg.Secret))
	require.NoError(t, err)
	return signed
}

func testJWTConfig() config.JWTConfig {
	return config.JWTConfig{
		Issuer:   "pubsub-gateway",
		Audience: "dashboard",
		Secret:   "test-secret",
		Skew:     30 * time.Second,
	}
}

func TestVerifyDashboardTokenAccepts(t *testing.T) {
	cfg := testJWTConfig()
	v := NewVerifier(cfg, nil, nil)

	now := time.Now()
	token := signDashboardToken(t, cfg, "user-1", "acme", now, now.Add(time.Hour))

	principal, err := v.VerifyDashboardToken(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", principal.ID)
	assert.Equal(t, "acme", principal.TenantID)
}

func TestVerifyDashboardTokenRejectsExpired(t *testing.T) {
	cfg := testJWTConfig()
	v := NewVerifier(cfg, nil, nil)

	now := time.Now()
	token := signDashboardToken(t, cfg, "user-1", "acme", now.Add(-2*time.Hour), now.Add(-time.Hour))

	_, err := v.VerifyDashboardToken(token)
	assert.ErrorIs(t, err, apperr.ErrAuthRejected)
}

func TestVerifyDashboardTokenRejectsMissingTenant(t *testing.T) {
	cfg := testJWTConfig()
	v := NewVerifier(cfg, nil, nil)

	now := time.Now()
	token := signDashboardToken(t, cfg, "user-1", "", now, now.Add(time.Hour))

	_, err := v.VerifyDashboardToken(token)
	assert.ErrorIs(t, err, apperr.ErrAuthRejected)
}

func TestVerifyDashboardTokenRejectsWrongSecret(t *testing.T) {
	cfg := testJWTConfig()
	v := NewVerifier(cfg, nil, nil)

	now := time.Now()
	wrongCfg := cfg
	wrongCfg.Secret = "different-secret"
	token := signDashboardToken(t, wrongCfg, "user-1", "acme", now, now.Add(time.Hour))

	_, err := v.VerifyDashboardToken(token)
	assert.ErrorIs(t, err, apperr.ErrAuthRejected)
}
