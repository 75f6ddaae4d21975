package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/tesseract-nexus/pubsub-gateway/internal/apperr"
	"github.com/tesseract-nexus/pubsub-gateway/internal/config"
	"github.com/tesseract-nexus/pubsub-gateway/internal/model"
)

// dashboardClaims is the expected shape of a dashboard bearer token:
// standard registered claims plus the tenant-id this spec requires.
type dashboardClaims struct {
	TenantID string `json:"tenant-id"`
	jwt.RegisteredClaims
}

// VerifyDashboardToken validates a signed JWT per spec.md §4.4: HMAC
// signature, exp/nbf within the configured clock skew, and required
// sub/tenant-id claims. Returns a UserPrincipal or apperr.ErrAuthRejected.
func (v *Verifier) VerifyDashboardToken(tokenString string) (model.Principal, error) {
	claims := &dashboardClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(v.cfg.Secret), nil
	},
		jwt.WithLeeway(v.cfg.Skew),
		jwt.WithIssuer(v.cfg.Issuer),
		jwt.WithAudience(v.cfg.Audience),
	)
	if err != nil || !token.Valid {
		return model.Principal{}, apperr.ErrAuthRejected
	}
	if claims.Subject == "" || claims.TenantID == "" {
		return model.Principal{}, apperr.ErrAuthRejected
	}

	return model.NewUserPrincipal(claims.Subject, claims.TenantID), nil
}

// tokenExpiryLeeway is exposed so callers building test fixtures can
// mint tokens that land comfortably inside the skew window.
const tokenExpiryLeeway = 30 * time.Second
