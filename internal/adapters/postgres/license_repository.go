package postgres

import (
	"context"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/viralforge/mesh/services/trust-compliance/M91-license-service/internal/domain"
	"github.com/viralforge/mesh/services/trust-compliance/M91-license-service/internal/ports"
	"gorm.io/gorm"
)

type licenseRepository struct {
	db *gorm.DB
}

func (r *licenseRepository) Create(ctx context.Context, params ports.CreateLicenseParams) (domain.License, error) {
	domains := params.AllowedDomains
	if domains == nil {
		domains = []string{}
	}
	row := licenseModel{
		LicenseID:      uuid.New(),
		LicenseKey:     params.LicenseKey,
		OrganizationID: params.OrganizationID,
		ProductID:      params.ProductID,
		IsActive:       params.IsActive,
		ExpiresAt:      params.ExpiresAt,
		AllowedDomains: pq.StringArray(domains),
		MaxActivations: params.MaxActivations,
		CreatedAt:      params.CreatedAt,
		UpdatedAt:      params.CreatedAt,
	}
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		if isUniqueViolation(err) {
			return domain.License{}, domain.ErrConflict
		}
		return domain.License{}, storageError(err)
	}
	return toDomainLicense(row), nil
}

func (r *licenseRepository) GetByID(ctx context.Context, licenseID uuid.UUID) (domain.License, error) {
	var row licenseModel
	if err := r.db.WithContext(ctx).Where("license_id = ?", licenseID).Take(&row).Error; err != nil {
		if isNotFound(err) {
			return domain.License{}, domain.ErrLicenseNotFound
		}
		return domain.License{}, storageError(err)
	}
	return toDomainLicense(row), nil
}

func (r *licenseRepository) GetByKey(ctx context.Context, licenseKey string) (domain.License, error) {
	var row licenseModel
	if err := r.db.WithContext(ctx).Where("license_key = ?", licenseKey).Take(&row).Error; err != nil {
		if isNotFound(err) {
			return domain.License{}, domain.ErrLicenseNotFound
		}
		return domain.License{}, storageError(err)
	}
	return toDomainLicense(row), nil
}

func (r *licenseRepository) KeyExists(ctx context.Context, licenseKey string) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&licenseModel{}).Where("license_key = ?", licenseKey).Count(&count).Error; err != nil {
		return false, storageError(err)
	}
	return count > 0, nil
}

func (r *licenseRepository) List(ctx context.Context, filter ports.LicenseFilter) ([]domain.License, error) {
	q := r.db.WithContext(ctx).Model(&licenseModel{})
	if filter.IsActive != nil {
		q = q.Where("is_active = ?", *filter.IsActive)
	}
	if filter.OrganizationID != "" {
		q = q.Where("LOWER(organization_id) = LOWER(?)", filter.OrganizationID)
	}
	if filter.ProductID != "" {
		q = q.Where("LOWER(product_id) = LOWER(?)", filter.ProductID)
	}
	q = q.Order("created_at DESC").Order("license_key ASC")
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		q = q.Offset(filter.Offset)
	}

	var rows []licenseModel
	if err := q.Find(&rows).Error; err != nil {
		return nil, storageError(err)
	}
	out := make([]domain.License, 0, len(rows))
	for _, row := range rows {
		out = append(out, toDomainLicense(row))
	}
	return out, nil
}

func (r *licenseRepository) Update(ctx context.Context, params ports.UpdateLicenseParams) (domain.License, error) {
	var license domain.License
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		license, err = updateLicense(tx, params)
		return err
	})
	if err != nil {
		return domain.License{}, storageError(err)
	}
	return license, nil
}

func (r *licenseRepository) Delete(ctx context.Context, licenseID uuid.UUID) error {
	return storageError(r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return deleteLicense(tx, licenseID)
	}))
}

func updateLicense(db *gorm.DB, params ports.UpdateLicenseParams) (domain.License, error) {
	updates := map[string]any{"updated_at": params.UpdatedAt}
	if params.IsActive != nil {
		updates["is_active"] = *params.IsActive
	}
	if params.AllowedDomains != nil {
		updates["allowed_domains"] = pq.StringArray(*params.AllowedDomains)
	}
	if params.MaxActivations != nil {
		updates["max_activations"] = *params.MaxActivations
	}
	if params.ClearExpiry {
		updates["expires_at"] = nil
	} else if params.ExpiresAt != nil {
		updates["expires_at"] = *params.ExpiresAt
	}

	res := db.Model(&licenseModel{}).Where("license_id = ?", params.LicenseID).Updates(updates)
	if res.Error != nil {
		return domain.License{}, storageError(res.Error)
	}
	if res.RowsAffected == 0 {
		return domain.License{}, domain.ErrLicenseNotFound
	}
	var row licenseModel
	if err := db.Where("license_id = ?", params.LicenseID).Take(&row).Error; err != nil {
		return domain.License{}, storageError(err)
	}
	return toDomainLicense(row), nil
}

// deleteLicense removes activations explicitly before the license so the cascade does not
// depend on the foreign key alone.
func deleteLicense(db *gorm.DB, licenseID uuid.UUID) error {
	if err := db.Where("license_id = ?", licenseID).Delete(&activationModel{}).Error; err != nil {
		return err
	}
	res := db.Where("license_id = ?", licenseID).Delete(&licenseModel{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrLicenseNotFound
	}
	return nil
}
