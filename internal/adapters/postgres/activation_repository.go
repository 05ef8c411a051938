package postgres

import (
	"context"

	"github.com/google/uuid"
	"github.com/viralforge/mesh/services/trust-compliance/M91-license-service/internal/domain"
	"github.com/viralforge/mesh/services/trust-compliance/M91-license-service/internal/ports"
	"gorm.io/gorm"
)

type activationRepository struct {
	db *gorm.DB
}

func (r *activationRepository) FindActivation(ctx context.Context, licenseID uuid.UUID, domainName string) (domain.Activation, error) {
	return findActivation(r.db.WithContext(ctx), licenseID, domainName)
}

func (r *activationRepository) CountActive(ctx context.Context, licenseID uuid.UUID) (int, error) {
	return countActive(r.db.WithContext(ctx), licenseID)
}

func (r *activationRepository) List(ctx context.Context, filter ports.ActivationFilter) ([]domain.Activation, error) {
	q := r.db.WithContext(ctx).
		Table("license_activations AS a").
		Select("a.activation_id, a.license_id, l.license_key, a.domain, a.is_active, a.ip_address, a.user_agent, a.created_at, a.updated_at").
		Joins("JOIN licenses AS l ON l.license_id = a.license_id")
	if filter.LicenseID != nil {
		q = q.Where("a.license_id = ?", *filter.LicenseID)
	}
	if filter.ActiveOnly {
		q = q.Where("a.is_active = ?", true)
	}
	q = q.Order("a.created_at DESC").Order("a.domain ASC")
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		q = q.Offset(filter.Offset)
	}

	var rows []activationRow
	if err := q.Scan(&rows).Error; err != nil {
		return nil, storageError(err)
	}
	out := make([]domain.Activation, 0, len(rows))
	for _, row := range rows {
		out = append(out, fromActivationRow(row))
	}
	return out, nil
}

func findActivation(db *gorm.DB, licenseID uuid.UUID, domainName string) (domain.Activation, error) {
	var row activationModel
	if err := db.Where("license_id = ? AND domain = ?", licenseID, domainName).Take(&row).Error; err != nil {
		if isNotFound(err) {
			return domain.Activation{}, domain.ErrActivationNotFound
		}
		return domain.Activation{}, storageError(err)
	}
	return toDomainActivation(row, ""), nil
}

func countActive(db *gorm.DB, licenseID uuid.UUID) (int, error) {
	var count int64
	if err := db.Model(&activationModel{}).Where("license_id = ? AND is_active = ?", licenseID, true).Count(&count).Error; err != nil {
		return 0, storageError(err)
	}
	return int(count), nil
}
