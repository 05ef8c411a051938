package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidInput          = errors.New("invalid input")
	ErrUnauthorized          = errors.New("unauthorized")
	ErrForbidden             = errors.New("forbidden")
	ErrNotFound              = errors.New("resource not found")
	ErrConflict              = errors.New("conflict")
	ErrRateLimitExceeded     = errors.New("rate limit exceeded")
	ErrStorageUnavailable    = errors.New("storage unavailable")
	ErrDependencyUnavailable = errors.New("dependency unavailable")
	// ErrLicenseNotFound is returned by lookups and lock scopes keyed by license key.
	ErrLicenseNotFound       = fmt.Errorf("license %w", ErrNotFound)
	ErrActivationNotFound    = fmt.Errorf("activation %w", ErrNotFound)
	// ErrKeySpaceExhausted means the key generator kept producing taken keys.
	ErrKeySpaceExhausted     = errors.New("license key generation exhausted attempts")
)
