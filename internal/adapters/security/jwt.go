package security

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/viralforge/mesh/services/trust-compliance/M91-license-service/internal/ports"
)

// HMACTokenVerifier checks HS256 bearer tokens issued by the platform auth service.
// This service never signs tokens for clients.
type HMACTokenVerifier struct {
	secret []byte
	issuer string
	leeway time.Duration
}

func NewHMACTokenVerifier(secret, issuer string) (*HMACTokenVerifier, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("admin token secret is required")
	}
	return &HMACTokenVerifier{secret: []byte(secret), issuer: strings.TrimSpace(issuer), leeway: 30 * time.Second}, nil
}

type adminClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

func (v *HMACTokenVerifier) Verify(_ context.Context, raw string) (ports.AuthClaims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(v.leeway),
		jwt.WithExpirationRequired(),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}
	parsed, err := jwt.ParseWithClaims(raw, &adminClaims{}, func(token *jwt.Token) (any, error) {
		if token.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, fmt.Errorf("unexpected signing method: %s", token.Method.Alg())
		}
		return v.secret, nil
	}, opts...)
	if err != nil {
		return ports.AuthClaims{}, err
	}
	claims, ok := parsed.Claims.(*adminClaims)
	if !ok || !parsed.Valid {
		return ports.AuthClaims{}, errors.New("invalid token claims")
	}
	if claims.Subject == "" {
		return ports.AuthClaims{}, errors.New("token subject is required")
	}
	return ports.AuthClaims{
		Subject:   claims.Subject,
		Role:      strings.ToLower(strings.TrimSpace(claims.Role)),
		ExpiresAt: claims.ExpiresAt.Time.UTC(),
	}, nil
}
