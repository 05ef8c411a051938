package postgres

import (
	"context"

	"github.com/google/uuid"
	"github.com/viralforge/mesh/services/trust-compliance/M91-license-service/internal/domain"
	"github.com/viralforge/mesh/services/trust-compliance/M91-license-service/internal/ports"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// licenseLocker holds SELECT ... FOR UPDATE on the license row for the whole callback.
// Every read and write made through the handed-out tx shares that transaction.
type licenseLocker struct {
	db *gorm.DB
}

func (l *licenseLocker) WithLicenseLock(ctx context.Context, licenseKey string, fn func(ctx context.Context, license domain.License, tx ports.LicenseTx) error) error {
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row licenseModel
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("license_key = ?", licenseKey).
			Take(&row).Error; err != nil {
			if isNotFound(err) {
				return domain.ErrLicenseNotFound
			}
			return err
		}
		return fn(ctx, toDomainLicense(row), &licenseTx{db: tx, license: row})
	})
	return storageError(err)
}

type licenseTx struct {
	db      *gorm.DB
	license licenseModel
}

func (t *licenseTx) FindActivation(ctx context.Context, licenseID uuid.UUID, domainName string) (domain.Activation, error) {
	a, err := findActivation(t.db.WithContext(ctx), licenseID, domainName)
	if err == nil && a.LicenseID == t.license.LicenseID {
		a.LicenseKey = t.license.LicenseKey
	}
	return a, err
}

func (t *licenseTx) CountActive(ctx context.Context, licenseID uuid.UUID) (int, error) {
	return countActive(t.db.WithContext(ctx), licenseID)
}

func (t *licenseTx) CreateActivation(ctx context.Context, params ports.CreateActivationParams) (domain.Activation, error) {
	if params.LicenseID != t.license.LicenseID {
		return domain.Activation{}, domain.ErrInvalidInput
	}
	row := activationModel{
		ActivationID: uuid.New(),
		LicenseID:    params.LicenseID,
		Domain:       params.Domain,
		IsActive:     true,
		IPAddress:    params.IPAddress,
		UserAgent:    params.UserAgent,
		CreatedAt:    params.CreatedAt,
		UpdatedAt:    params.CreatedAt,
	}
	if err := t.db.WithContext(ctx).Create(&row).Error; err != nil {
		if isUniqueViolation(err) {
			return domain.Activation{}, domain.ErrConflict
		}
		return domain.Activation{}, storageError(err)
	}
	return toDomainActivation(row, t.license.LicenseKey), nil
}

func (t *licenseTx) SetActivationState(ctx context.Context, params ports.SetActivationStateParams) (domain.Activation, error) {
	updates := map[string]any{
		"is_active":  params.IsActive,
		"updated_at": params.UpdatedAt,
	}
	if params.IPAddress != nil {
		updates["ip_address"] = *params.IPAddress
	}
	if params.UserAgent != nil {
		updates["user_agent"] = *params.UserAgent
	}
	db := t.db.WithContext(ctx)
	res := db.Model(&activationModel{}).
		Where("activation_id = ? AND license_id = ?", params.ActivationID, t.license.LicenseID).
		Updates(updates)
	if res.Error != nil {
		return domain.Activation{}, storageError(res.Error)
	}
	if res.RowsAffected == 0 {
		return domain.Activation{}, domain.ErrActivationNotFound
	}
	var row activationModel
	if err := db.Where("activation_id = ?", params.ActivationID).Take(&row).Error; err != nil {
		return domain.Activation{}, storageError(err)
	}
	return toDomainActivation(row, t.license.LicenseKey), nil
}

func (t *licenseTx) Enqueue(ctx context.Context, event ports.OutboxEvent) error {
	rec := fromOutboxEvent(event)
	return storageError(t.db.WithContext(ctx).Create(&rec).Error)
}

func (t *licenseTx) UpdateLicense(ctx context.Context, params ports.UpdateLicenseParams) (domain.License, error) {
	if params.LicenseID != t.license.LicenseID {
		return domain.License{}, domain.ErrInvalidInput
	}
	license, err := updateLicense(t.db.WithContext(ctx), params)
	if err != nil {
		return domain.License{}, storageError(err)
	}
	return license, nil
}

// DeleteLicense runs inside the locking transaction. Going through the repository here
// would take a second connection and wait on the row this transaction holds.
func (t *licenseTx) DeleteLicense(ctx context.Context, licenseID uuid.UUID) error {
	if licenseID != t.license.LicenseID {
		return domain.ErrInvalidInput
	}
	return storageError(deleteLicense(t.db.WithContext(ctx), licenseID))
}
