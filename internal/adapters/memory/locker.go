package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/viralforge/mesh/services/trust-compliance/M91-license-service/internal/domain"
	"github.com/viralforge/mesh/services/trust-compliance/M91-license-service/internal/ports"
)

// Locker serializes work per license key. Writes made through the scope are undone
// when the callback fails.
type Locker struct {
	s *store
}

func (l *Locker) WithLicenseLock(ctx context.Context, licenseKey string, fn func(ctx context.Context, license domain.License, tx ports.LicenseTx) error) error {
	unlock, err := l.s.locks.lock(ctx, licenseKey)
	if err != nil {
		return err
	}
	defer unlock()

	l.s.mu.RLock()
	id, ok := l.s.licenseByKey[licenseKey]
	license := cloneLicense(l.s.licenses[id])
	l.s.mu.RUnlock()
	if !ok {
		return domain.ErrLicenseNotFound
	}

	tx := &licenseTx{s: l.s, licenseID: license.LicenseID}
	if err := fn(ctx, license, tx); err != nil {
		tx.rollback()
		return err
	}
	return nil
}

type licenseTx struct {
	s         *store
	licenseID uuid.UUID
	undo      []func()
}

func (t *licenseTx) FindActivation(ctx context.Context, licenseID uuid.UUID, domainName string) (domain.Activation, error) {
	if err := ctxErr(ctx); err != nil {
		return domain.Activation{}, err
	}
	return t.s.findActivation(licenseID, domainName)
}

func (t *licenseTx) CountActive(ctx context.Context, licenseID uuid.UUID) (int, error) {
	if err := ctxErr(ctx); err != nil {
		return 0, err
	}
	return t.s.countActive(licenseID), nil
}

func (t *licenseTx) CreateActivation(ctx context.Context, params ports.CreateActivationParams) (domain.Activation, error) {
	if err := ctxErr(ctx); err != nil {
		return domain.Activation{}, err
	}
	if params.LicenseID != t.licenseID {
		return domain.Activation{}, domain.ErrInvalidInput
	}
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	if _, ok := t.s.licenses[t.licenseID]; !ok {
		return domain.Activation{}, domain.ErrLicenseNotFound
	}
	key := activationKey{licenseID: params.LicenseID, domain: params.Domain}
	if _, exists := t.s.byDomain[key]; exists {
		return domain.Activation{}, domain.ErrConflict
	}
	a := domain.Activation{
		ActivationID: uuid.New(),
		LicenseID:    params.LicenseID,
		Domain:       params.Domain,
		IsActive:     true,
		IPAddress:    params.IPAddress,
		UserAgent:    params.UserAgent,
		CreatedAt:    params.CreatedAt,
		UpdatedAt:    params.CreatedAt,
	}
	t.s.activations[a.ActivationID] = a
	t.s.byDomain[key] = a.ActivationID
	t.undo = append(t.undo, func() {
		t.s.mu.Lock()
		defer t.s.mu.Unlock()
		delete(t.s.activations, a.ActivationID)
		delete(t.s.byDomain, key)
	})
	return t.s.withKey(a), nil
}

func (t *licenseTx) SetActivationState(ctx context.Context, params ports.SetActivationStateParams) (domain.Activation, error) {
	if err := ctxErr(ctx); err != nil {
		return domain.Activation{}, err
	}
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	prev, ok := t.s.activations[params.ActivationID]
	if !ok || prev.LicenseID != t.licenseID {
		return domain.Activation{}, domain.ErrActivationNotFound
	}
	next := prev
	next.IsActive = params.IsActive
	if params.IPAddress != nil {
		next.IPAddress = *params.IPAddress
	}
	if params.UserAgent != nil {
		next.UserAgent = *params.UserAgent
	}
	next.UpdatedAt = params.UpdatedAt
	t.s.activations[next.ActivationID] = next
	t.undo = append(t.undo, func() {
		t.s.mu.Lock()
		defer t.s.mu.Unlock()
		t.s.activations[prev.ActivationID] = prev
	})
	return t.s.withKey(next), nil
}

func (t *licenseTx) UpdateLicense(ctx context.Context, params ports.UpdateLicenseParams) (domain.License, error) {
	if err := ctxErr(ctx); err != nil {
		return domain.License{}, err
	}
	if params.LicenseID != t.licenseID {
		return domain.License{}, domain.ErrInvalidInput
	}
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	prev, next, err := t.s.updateLicense(params)
	if err != nil {
		return domain.License{}, err
	}
	t.undo = append(t.undo, func() {
		t.s.mu.Lock()
		defer t.s.mu.Unlock()
		t.s.licenses[prev.LicenseID] = prev
	})
	return next, nil
}

func (t *licenseTx) DeleteLicense(ctx context.Context, licenseID uuid.UUID) error {
	if err := ctxErr(ctx); err != nil {
		return err
	}
	if licenseID != t.licenseID {
		return domain.ErrInvalidInput
	}
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	removed, err := t.s.deleteLicense(licenseID)
	if err != nil {
		return err
	}
	t.undo = append(t.undo, func() {
		t.s.mu.Lock()
		defer t.s.mu.Unlock()
		t.s.restoreLicense(removed)
	})
	return nil
}

func (t *licenseTx) Enqueue(ctx context.Context, event ports.OutboxEvent) error {
	if err := ctxErr(ctx); err != nil {
		return err
	}
	if event.EventID == uuid.Nil {
		event.EventID = uuid.New()
	}
	t.s.mu.Lock()
	t.s.appendOutbox(event)
	t.s.mu.Unlock()
	id := event.EventID
	t.undo = append(t.undo, func() { t.s.dropOutbox(id) })
	return nil
}

func (t *licenseTx) rollback() {
	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
	t.undo = nil
}

// keyedMutex hands out one lock per key and forgets keys nobody holds or waits on.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedLock
}

type keyedLock struct {
	ch   chan struct{}
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: map[string]*keyedLock{}}
}

func (k *keyedMutex) lock(ctx context.Context, key string) (func(), error) {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &keyedLock{ch: make(chan struct{}, 1)}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	select {
	case l.ch <- struct{}{}:
		return func() {
			<-l.ch
			k.release(key, l)
		}, nil
	case <-ctx.Done():
		k.release(key, l)
		return nil, ctx.Err()
	}
}

func (k *keyedMutex) release(key string, l *keyedLock) {
	k.mu.Lock()
	defer k.mu.Unlock()
	l.refs--
	if l.refs == 0 {
		delete(k.locks, key)
	}
}
