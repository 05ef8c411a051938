package application

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/viralforge/mesh/services/trust-compliance/M91-license-service/internal/domain"
	"github.com/viralforge/mesh/services/trust-compliance/M91-license-service/internal/ports"
)

const createConflictRetries = 3

func (s *Service) CreateLicense(ctx context.Context, req CreateLicenseRequest) (domain.License, error) {
	if req.MaxActivations < 1 {
		return domain.License{}, fmt.Errorf("%w: max_activations must be at least 1", domain.ErrInvalidInput)
	}
	domains, err := normalizeDomains(req.AllowedDomains)
	if err != nil {
		return domain.License{}, err
	}
	isActive := true
	if req.IsActive != nil {
		isActive = *req.IsActive
	}
	expiresAt := req.ExpiresAt
	if expiresAt != nil {
		utc := expiresAt.UTC()
		expiresAt = &utc
	}

	for attempt := 0; attempt < createConflictRetries; attempt++ {
		key, err := s.GenerateLicenseKey(ctx)
		if err != nil {
			return domain.License{}, err
		}
		license, err := s.licenses.Create(ctx, ports.CreateLicenseParams{
			LicenseKey:     key,
			OrganizationID: strings.TrimSpace(req.OrganizationID),
			ProductID:      strings.TrimSpace(req.ProductID),
			IsActive:       isActive,
			ExpiresAt:      expiresAt,
			AllowedDomains: domains,
			MaxActivations: req.MaxActivations,
			CreatedAt:      s.nowFn(),
		})
		if errors.Is(err, domain.ErrConflict) {
			s.metrics.IncKeyCollision()
			continue
		}
		if err != nil {
			return domain.License{}, err
		}
		s.enqueueAfterWrite(ctx, "create_license", EventLicenseCreated, license.LicenseID, licenseData(license))
		return license, nil
	}
	return domain.License{}, domain.ErrKeySpaceExhausted
}

func (s *Service) GetLicense(ctx context.Context, licenseID uuid.UUID) (LicenseDetail, error) {
	license, err := s.licenses.GetByID(ctx, licenseID)
	if err != nil {
		return LicenseDetail{}, err
	}
	return s.licenseDetail(ctx, license)
}

func (s *Service) GetLicenseByKey(ctx context.Context, licenseKey string) (LicenseDetail, error) {
	key := strings.TrimSpace(licenseKey)
	if key == "" {
		return LicenseDetail{}, fmt.Errorf("%w: license_key is required", domain.ErrInvalidInput)
	}
	license, err := s.licenses.GetByKey(ctx, key)
	if err != nil {
		return LicenseDetail{}, err
	}
	return s.licenseDetail(ctx, license)
}

func (s *Service) licenseDetail(ctx context.Context, license domain.License) (LicenseDetail, error) {
	licenseID := license.LicenseID
	activations, err := s.activations.List(ctx, ports.ActivationFilter{LicenseID: &licenseID})
	if err != nil {
		return LicenseDetail{}, err
	}
	detail := LicenseDetail{License: license, Activations: activations}
	for _, a := range activations {
		if a.IsActive {
			detail.ActiveActivations++
		}
	}
	return detail, nil
}

func (s *Service) ListLicenses(ctx context.Context, req ListLicensesRequest) ([]domain.License, error) {
	if req.Offset < 0 {
		return nil, fmt.Errorf("%w: offset must not be negative", domain.ErrInvalidInput)
	}
	return s.licenses.List(ctx, ports.LicenseFilter{
		IsActive:       req.IsActive,
		OrganizationID: strings.TrimSpace(req.OrganizationID),
		ProductID:      strings.TrimSpace(req.ProductID),
		Limit:          s.clampLimit(req.Limit),
		Offset:         req.Offset,
	})
}

// UpdateLicense applies a partial update. Lowering max_activations below the number of
// currently active activations is refused with ErrConflict.
func (s *Service) UpdateLicense(ctx context.Context, licenseID uuid.UUID, req UpdateLicenseRequest) (domain.License, error) {
	if req.ClearExpiry && req.ExpiresAt != nil {
		return domain.License{}, fmt.Errorf("%w: expires_at and clear_expiry are mutually exclusive", domain.ErrInvalidInput)
	}
	params := ports.UpdateLicenseParams{
		LicenseID:   licenseID,
		IsActive:    req.IsActive,
		ClearExpiry: req.ClearExpiry,
		UpdatedAt:   s.nowFn(),
	}
	if req.ExpiresAt != nil {
		utc := req.ExpiresAt.UTC()
		params.ExpiresAt = &utc
	}
	if req.AllowedDomains != nil {
		domains, err := normalizeDomains(*req.AllowedDomains)
		if err != nil {
			return domain.License{}, err
		}
		params.AllowedDomains = &domains
	}
	if req.MaxActivations != nil {
		if *req.MaxActivations < 1 {
			return domain.License{}, fmt.Errorf("%w: max_activations must be at least 1", domain.ErrInvalidInput)
		}
		params.MaxActivations = req.MaxActivations
	}

	current, err := s.licenses.GetByID(ctx, licenseID)
	if err != nil {
		return domain.License{}, err
	}
	var license domain.License
	err = s.locker.WithLicenseLock(ctx, current.LicenseKey, func(ctx context.Context, locked domain.License, tx ports.LicenseTx) error {
		if locked.LicenseID != licenseID {
			return domain.ErrLicenseNotFound
		}
		if params.MaxActivations != nil {
			active, err := tx.CountActive(ctx, licenseID)
			if err != nil {
				return err
			}
			if *params.MaxActivations < active {
				return fmt.Errorf("%w: %d domains are active, deactivate some before lowering max_activations", domain.ErrConflict, active)
			}
		}
		var err error
		license, err = tx.UpdateLicense(ctx, params)
		return err
	})
	if err != nil {
		return domain.License{}, err
	}
	s.enqueueAfterWrite(ctx, "update_license", EventLicenseUpdated, license.LicenseID, licenseData(license))
	return license, nil
}

func (s *Service) SetLicenseActive(ctx context.Context, licenseID uuid.UUID, active bool) (domain.License, error) {
	return s.UpdateLicense(ctx, licenseID, UpdateLicenseRequest{IsActive: &active})
}

func (s *Service) DeleteLicense(ctx context.Context, licenseID uuid.UUID) error {
	license, err := s.licenses.GetByID(ctx, licenseID)
	if err != nil {
		return err
	}
	err = s.locker.WithLicenseLock(ctx, license.LicenseKey, func(ctx context.Context, locked domain.License, tx ports.LicenseTx) error {
		if locked.LicenseID != licenseID {
			return domain.ErrLicenseNotFound
		}
		return tx.DeleteLicense(ctx, licenseID)
	})
	if err != nil {
		return err
	}
	s.enqueueAfterWrite(ctx, "delete_license", EventLicenseDeleted, licenseID, licenseData(license))
	return nil
}

// ListActivations lists the activations of one license, addressed by id or key.
func (s *Service) ListActivations(ctx context.Context, req ListActivationsRequest) ([]domain.Activation, error) {
	licenseID := req.LicenseID
	if licenseID == nil {
		key := strings.TrimSpace(req.LicenseKey)
		if key == "" {
			return nil, fmt.Errorf("%w: license_id or license_key is required", domain.ErrInvalidInput)
		}
		license, err := s.licenses.GetByKey(ctx, key)
		if err != nil {
			return nil, err
		}
		licenseID = &license.LicenseID
	}
	return s.activations.List(ctx, ports.ActivationFilter{
		LicenseID:  licenseID,
		ActiveOnly: req.ActiveOnly,
		Limit:      s.clampLimit(req.Limit),
		Offset:     req.Offset,
	})
}

func (s *Service) ListAllActivations(ctx context.Context, req ListActivationsRequest) ([]domain.Activation, error) {
	if req.Offset < 0 {
		return nil, fmt.Errorf("%w: offset must not be negative", domain.ErrInvalidInput)
	}
	return s.activations.List(ctx, ports.ActivationFilter{
		ActiveOnly: req.ActiveOnly,
		Limit:      s.clampLimit(req.Limit),
		Offset:     req.Offset,
	})
}
