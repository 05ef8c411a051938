package application

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/viralforge/mesh/services/trust-compliance/M91-license-service/internal/domain"
	"github.com/viralforge/mesh/services/trust-compliance/M91-license-service/internal/ports"
)

const defaultUserAgent = "Unknown"

// Validate reports whether key may be used on domain right now. It never writes and
// takes no lock, so a concurrent Activate may change the answer immediately after.
func (s *Service) Validate(ctx context.Context, req ValidateRequest) (ValidateResult, error) {
	key, host, err := normalizeKeyAndDomain(req.LicenseKey, req.Domain)
	if err != nil {
		return ValidateResult{}, err
	}

	license, err := s.licenses.GetByKey(ctx, key)
	if errors.Is(err, domain.ErrLicenseNotFound) {
		return s.validateResult(domain.Decision{Reason: domain.ReasonKeyNotFound}), nil
	}
	if err != nil {
		return ValidateResult{}, err
	}

	snapshot, _, err := loadSnapshot(ctx, s.activations, license.LicenseID, host)
	if err != nil {
		return ValidateResult{}, err
	}
	return s.validateResult(domain.Evaluate(license, snapshot, host, s.nowFn())), nil
}

func (s *Service) validateResult(d domain.Decision) ValidateResult {
	s.observe("validate", d.Eligible, d.Reason)
	return ValidateResult{IsValid: d.Eligible, Message: d.Message(), Reason: d.Reason}
}

// Activate binds domain to the license, creating or reactivating its activation record.
func (s *Service) Activate(ctx context.Context, req ActivateRequest) (ActionResult, error) {
	key, host, err := normalizeKeyAndDomain(req.LicenseKey, req.Domain)
	if err != nil {
		return ActionResult{}, err
	}
	userAgent := req.UserAgent
	if userAgent == "" {
		userAgent = defaultUserAgent
	}

	var result ActionResult
	err = s.locker.WithLicenseLock(ctx, key, func(ctx context.Context, license domain.License, tx ports.LicenseTx) error {
		now := s.nowFn()
		snapshot, existing, err := loadSnapshot(ctx, tx, license.LicenseID, host)
		if err != nil {
			return err
		}
		if d := domain.Evaluate(license, snapshot, host, now); !d.Eligible {
			result = refused(d.Reason)
			return nil
		}

		switch {
		case existing != nil && existing.IsActive:
			result = succeeded(ActionAlreadyActive)
			return nil
		case existing != nil:
			ip, ua := req.IPAddress, userAgent
			updated, err := tx.SetActivationState(ctx, ports.SetActivationStateParams{
				ActivationID: existing.ActivationID,
				IsActive:     true,
				IPAddress:    &ip,
				UserAgent:    &ua,
				UpdatedAt:    now,
			})
			if err != nil {
				return err
			}
			if err := s.enqueue(ctx, tx, EventActivationReactivated, license.LicenseID, activationData(updated)); err != nil {
				return err
			}
			result = succeeded(ActionReactivated)
			return nil
		default:
			if !domain.HasCapacity(license, snapshot.ActiveCount) {
				result = refused(domain.ReasonMaxActivationsReached)
				return nil
			}
			created, err := tx.CreateActivation(ctx, ports.CreateActivationParams{
				LicenseID: license.LicenseID,
				Domain:    host,
				IPAddress: req.IPAddress,
				UserAgent: userAgent,
				CreatedAt: now,
			})
			if err != nil {
				return err
			}
			if err := s.enqueue(ctx, tx, EventActivationCreated, license.LicenseID, activationData(created)); err != nil {
				return err
			}
			result = succeeded(ActionActivated)
			return nil
		}
	})
	if errors.Is(err, domain.ErrLicenseNotFound) {
		result, err = refused(domain.ReasonKeyNotFound), nil
	}
	if err != nil {
		s.logEngineFailure(ctx, "activate", err)
		return ActionResult{}, err
	}
	s.observe("activate", result.Success, result.Reason)
	return result, nil
}

// Deactivate marks the activation for domain inactive. The record is kept so a later
// Activate reactivates it. Inactive or expired licenses may still be deactivated.
func (s *Service) Deactivate(ctx context.Context, req DeactivateRequest) (ActionResult, error) {
	key, host, err := normalizeKeyAndDomain(req.LicenseKey, req.Domain)
	if err != nil {
		return ActionResult{}, err
	}

	var result ActionResult
	err = s.locker.WithLicenseLock(ctx, key, func(ctx context.Context, license domain.License, tx ports.LicenseTx) error {
		existing, err := tx.FindActivation(ctx, license.LicenseID, host)
		if errors.Is(err, domain.ErrActivationNotFound) {
			result = refused(domain.ReasonActivationNotFound)
			return nil
		}
		if err != nil {
			return err
		}
		if !existing.IsActive {
			result = succeeded(ActionAlreadyInactive)
			return nil
		}
		updated, err := tx.SetActivationState(ctx, ports.SetActivationStateParams{
			ActivationID: existing.ActivationID,
			IsActive:     false,
			UpdatedAt:    s.nowFn(),
		})
		if err != nil {
			return err
		}
		if err := s.enqueue(ctx, tx, EventActivationDeactivated, license.LicenseID, activationData(updated)); err != nil {
			return err
		}
		result = succeeded(ActionDeactivated)
		return nil
	})
	if errors.Is(err, domain.ErrLicenseNotFound) {
		result, err = refused(domain.ReasonKeyNotFound), nil
	}
	if err != nil {
		s.logEngineFailure(ctx, "deactivate", err)
		return ActionResult{}, err
	}
	s.observe("deactivate", result.Success, result.Reason)
	return result, nil
}

// loadSnapshot reads the active count and the record for domainName, if any.
func loadSnapshot(ctx context.Context, reader ports.ActivationReader, licenseID uuid.UUID, domainName string) (domain.ActivationSnapshot, *domain.Activation, error) {
	count, err := reader.CountActive(ctx, licenseID)
	if err != nil {
		return domain.ActivationSnapshot{}, nil, err
	}
	snapshot := domain.ActivationSnapshot{ActiveCount: count}
	existing, err := reader.FindActivation(ctx, licenseID, domainName)
	if errors.Is(err, domain.ErrActivationNotFound) {
		return snapshot, nil, nil
	}
	if err != nil {
		return domain.ActivationSnapshot{}, nil, err
	}
	snapshot.DomainActive = existing.IsActive
	return snapshot, &existing, nil
}

func (s *Service) logEngineFailure(ctx context.Context, operation string, err error) {
	s.logger.ErrorContext(ctx, "license engine operation failed",
		"service", s.cfg.ServiceName,
		"module", "license_engine",
		"layer", "application",
		"operation", operation,
		"outcome", "failure",
		"error", err,
	)
}
