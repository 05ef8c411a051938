package ports

import (
	"context"
	"time"
)

type AuthClaims struct {
	Subject   string
	Role      string
	ExpiresAt time.Time
}

type TokenVerifier interface {
	Verify(ctx context.Context, token string) (AuthClaims, error)
}
