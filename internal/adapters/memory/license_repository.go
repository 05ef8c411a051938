package memory

import (
	"context"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/viralforge/mesh/services/trust-compliance/M91-license-service/internal/domain"
	"github.com/viralforge/mesh/services/trust-compliance/M91-license-service/internal/ports"
)

type LicenseRepository struct {
	s *store
}

func (r *LicenseRepository) Create(ctx context.Context, params ports.CreateLicenseParams) (domain.License, error) {
	if err := ctxErr(ctx); err != nil {
		return domain.License{}, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.licenseByKey[params.LicenseKey]; ok {
		return domain.License{}, domain.ErrConflict
	}
	license := cloneLicense(domain.License{
		LicenseID:      uuid.New(),
		LicenseKey:     params.LicenseKey,
		OrganizationID: params.OrganizationID,
		ProductID:      params.ProductID,
		IsActive:       params.IsActive,
		ExpiresAt:      params.ExpiresAt,
		AllowedDomains: params.AllowedDomains,
		MaxActivations: params.MaxActivations,
		CreatedAt:      params.CreatedAt,
		UpdatedAt:      params.CreatedAt,
	})
	r.s.licenses[license.LicenseID] = license
	r.s.licenseByKey[license.LicenseKey] = license.LicenseID
	return cloneLicense(license), nil
}

func (r *LicenseRepository) GetByID(ctx context.Context, licenseID uuid.UUID) (domain.License, error) {
	if err := ctxErr(ctx); err != nil {
		return domain.License{}, err
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	license, ok := r.s.licenses[licenseID]
	if !ok {
		return domain.License{}, domain.ErrLicenseNotFound
	}
	return cloneLicense(license), nil
}

func (r *LicenseRepository) GetByKey(ctx context.Context, licenseKey string) (domain.License, error) {
	if err := ctxErr(ctx); err != nil {
		return domain.License{}, err
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	id, ok := r.s.licenseByKey[licenseKey]
	if !ok {
		return domain.License{}, domain.ErrLicenseNotFound
	}
	return cloneLicense(r.s.licenses[id]), nil
}

func (r *LicenseRepository) KeyExists(ctx context.Context, licenseKey string) (bool, error) {
	if err := ctxErr(ctx); err != nil {
		return false, err
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	_, ok := r.s.licenseByKey[licenseKey]
	return ok, nil
}

// List returns licenses newest first. A zero limit returns every match.
func (r *LicenseRepository) List(ctx context.Context, filter ports.LicenseFilter) ([]domain.License, error) {
	if err := ctxErr(ctx); err != nil {
		return nil, err
	}
	r.s.mu.RLock()
	out := make([]domain.License, 0, len(r.s.licenses))
	for _, l := range r.s.licenses {
		if filter.IsActive != nil && l.IsActive != *filter.IsActive {
			continue
		}
		if filter.OrganizationID != "" && !strings.EqualFold(l.OrganizationID, filter.OrganizationID) {
			continue
		}
		if filter.ProductID != "" && !strings.EqualFold(l.ProductID, filter.ProductID) {
			continue
		}
		out = append(out, cloneLicense(l))
	}
	r.s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].LicenseKey < out[j].LicenseKey
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return page(out, filter.Limit, filter.Offset), nil
}

func (r *LicenseRepository) Update(ctx context.Context, params ports.UpdateLicenseParams) (domain.License, error) {
	if err := ctxErr(ctx); err != nil {
		return domain.License{}, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	_, license, err := r.s.updateLicense(params)
	return license, err
}

func (r *LicenseRepository) Delete(ctx context.Context, licenseID uuid.UUID) error {
	if err := ctxErr(ctx); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	_, err := r.s.deleteLicense(licenseID)
	return err
}

func page[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return []T{}
	}
	if offset > 0 {
		items = items[offset:]
	}
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
