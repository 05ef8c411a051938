package memory

import (
	"context"
	"sort"

	"github.com/google/uuid"
	"github.com/viralforge/mesh/services/trust-compliance/M91-license-service/internal/domain"
	"github.com/viralforge/mesh/services/trust-compliance/M91-license-service/internal/ports"
)

type ActivationRepository struct {
	s *store
}

func (r *ActivationRepository) FindActivation(ctx context.Context, licenseID uuid.UUID, domainName string) (domain.Activation, error) {
	if err := ctxErr(ctx); err != nil {
		return domain.Activation{}, err
	}
	return r.s.findActivation(licenseID, domainName)
}

func (r *ActivationRepository) CountActive(ctx context.Context, licenseID uuid.UUID) (int, error) {
	if err := ctxErr(ctx); err != nil {
		return 0, err
	}
	return r.s.countActive(licenseID), nil
}

// List returns activations newest first. A zero limit returns every match.
func (r *ActivationRepository) List(ctx context.Context, filter ports.ActivationFilter) ([]domain.Activation, error) {
	if err := ctxErr(ctx); err != nil {
		return nil, err
	}
	r.s.mu.RLock()
	out := make([]domain.Activation, 0)
	for _, a := range r.s.activations {
		if filter.LicenseID != nil && a.LicenseID != *filter.LicenseID {
			continue
		}
		if filter.ActiveOnly && !a.IsActive {
			continue
		}
		out = append(out, r.s.withKey(a))
	}
	r.s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].Domain < out[j].Domain
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return page(out, filter.Limit, filter.Offset), nil
}
