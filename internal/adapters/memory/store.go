package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/viralforge/mesh/services/trust-compliance/M91-license-service/internal/domain"
	"github.com/viralforge/mesh/services/trust-compliance/M91-license-service/internal/ports"
)

// Repositories is the in-process storage used with STORAGE_DRIVER=memory and in tests.
// All repositories share one store so cascades and lock scopes see the same rows.
type Repositories struct {
	Licenses    *LicenseRepository
	Activations *ActivationRepository
	Outbox      *OutboxRepository
	Locker      *Locker
}

func NewRepositories() *Repositories {
	s := &store{
		licenses:     map[uuid.UUID]domain.License{},
		licenseByKey: map[string]uuid.UUID{},
		activations:  map[uuid.UUID]domain.Activation{},
		byDomain:     map[activationKey]uuid.UUID{},
		locks:        newKeyedMutex(),
	}
	return &Repositories{
		Licenses:    &LicenseRepository{s: s},
		Activations: &ActivationRepository{s: s},
		Outbox:      &OutboxRepository{s: s},
		Locker:      &Locker{s: s},
	}
}

type activationKey struct {
	licenseID uuid.UUID
	domain    string
}

type store struct {
	mu           sync.RWMutex
	licenses     map[uuid.UUID]domain.License
	licenseByKey map[string]uuid.UUID
	activations  map[uuid.UUID]domain.Activation
	byDomain     map[activationKey]uuid.UUID
	outbox       []ports.OutboxRecord
	locks        *keyedMutex
}

func cloneLicense(l domain.License) domain.License {
	if l.AllowedDomains != nil {
		l.AllowedDomains = append([]string(nil), l.AllowedDomains...)
	} else {
		l.AllowedDomains = []string{}
	}
	if l.ExpiresAt != nil {
		t := *l.ExpiresAt
		l.ExpiresAt = &t
	}
	return l
}

func (s *store) findActivation(licenseID uuid.UUID, domainName string) (domain.Activation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byDomain[activationKey{licenseID: licenseID, domain: domainName}]
	if !ok {
		return domain.Activation{}, domain.ErrActivationNotFound
	}
	return s.withKey(s.activations[id]), nil
}

func (s *store) countActive(licenseID uuid.UUID) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, a := range s.activations {
		if a.LicenseID == licenseID && a.IsActive {
			n++
		}
	}
	return n
}

// withKey fills the denormalized license key. Callers hold s.mu.
func (s *store) withKey(a domain.Activation) domain.Activation {
	if l, ok := s.licenses[a.LicenseID]; ok {
		a.LicenseKey = l.LicenseKey
	}
	return a
}

func ctxErr(ctx context.Context) error {
	if ctx == nil {
		return nil
	}
	return ctx.Err()
}

// updateLicense applies params and returns the row as it was before. Callers hold s.mu.
func (s *store) updateLicense(params ports.UpdateLicenseParams) (prev, next domain.License, err error) {
	prev, ok := s.licenses[params.LicenseID]
	if !ok {
		return domain.License{}, domain.License{}, domain.ErrLicenseNotFound
	}
	next = cloneLicense(prev)
	if params.IsActive != nil {
		next.IsActive = *params.IsActive
	}
	if params.AllowedDomains != nil {
		next.AllowedDomains = append([]string{}, (*params.AllowedDomains)...)
	}
	if params.MaxActivations != nil {
		next.MaxActivations = *params.MaxActivations
	}
	if params.ClearExpiry {
		next.ExpiresAt = nil
	} else if params.ExpiresAt != nil {
		t := *params.ExpiresAt
		next.ExpiresAt = &t
	}
	next.UpdatedAt = params.UpdatedAt
	s.licenses[next.LicenseID] = next
	return prev, cloneLicense(next), nil
}

// deletedLicense is what deleteLicense removed, kept so a failed scope can put it back.
type deletedLicense struct {
	license     domain.License
	activations []domain.Activation
}

// deleteLicense drops the license and every activation under it. Callers hold s.mu.
func (s *store) deleteLicense(licenseID uuid.UUID) (deletedLicense, error) {
	license, ok := s.licenses[licenseID]
	if !ok {
		return deletedLicense{}, domain.ErrLicenseNotFound
	}
	removed := deletedLicense{license: license}
	for id, a := range s.activations {
		if a.LicenseID == licenseID {
			removed.activations = append(removed.activations, a)
			delete(s.byDomain, activationKey{licenseID: licenseID, domain: a.Domain})
			delete(s.activations, id)
		}
	}
	delete(s.licenseByKey, license.LicenseKey)
	delete(s.licenses, licenseID)
	return removed, nil
}

func (s *store) restoreLicense(d deletedLicense) {
	s.licenses[d.license.LicenseID] = d.license
	s.licenseByKey[d.license.LicenseKey] = d.license.LicenseID
	for _, a := range d.activations {
		s.activations[a.ActivationID] = a
		s.byDomain[activationKey{licenseID: a.LicenseID, domain: a.Domain}] = a.ActivationID
	}
}
