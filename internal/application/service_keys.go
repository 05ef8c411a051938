package application

import (
	"context"
	"fmt"

	"github.com/viralforge/mesh/services/trust-compliance/M91-license-service/internal/domain"
)

// GenerateLicenseKey returns a key that no stored license uses at the time of the check.
// Collisions are retried until the context ends or the attempt guard trips.
func (s *Service) GenerateLicenseKey(ctx context.Context) (string, error) {
	for attempt := 1; attempt <= s.cfg.KeyGenerationMaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		candidate, err := domain.GenerateLicenseKey(s.random)
		if err != nil {
			return "", fmt.Errorf("generate license key: %w", err)
		}
		exists, err := s.licenses.KeyExists(ctx, candidate)
		if err != nil {
			return "", err
		}
		if !exists {
			return candidate, nil
		}
		s.metrics.IncKeyCollision()
		s.logger.WarnContext(ctx, "license key collision",
			"service", s.cfg.ServiceName,
			"module", "license_keys",
			"layer", "application",
			"operation", "generate_license_key",
			"outcome", "retry",
			"attempt", attempt,
		)
	}
	return "", domain.ErrKeySpaceExhausted
}
