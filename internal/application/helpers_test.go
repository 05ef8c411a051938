package application_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/viralforge/mesh/services/trust-compliance/M91-license-service/internal/adapters/memory"
	"github.com/viralforge/mesh/services/trust-compliance/M91-license-service/internal/application"
	"github.com/viralforge/mesh/services/trust-compliance/M91-license-service/internal/domain"
	"github.com/viralforge/mesh/services/trust-compliance/M91-license-service/internal/ports"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

type countingMetrics struct {
	mu         sync.Mutex
	decisions  map[string]int
	collisions int
}

func (m *countingMetrics) ObserveDecision(operation, outcome, reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.decisions == nil {
		m.decisions = map[string]int{}
	}
	m.decisions[operation+"/"+outcome+"/"+reason]++
}

func (m *countingMetrics) IncKeyCollision() {
	m.mu.Lock()
	m.collisions++
	m.mu.Unlock()
}

type harness struct {
	svc     *application.Service
	repos   *memory.Repositories
	clock   *fakeClock
	metrics *countingMetrics
}

type harnessOption func(*application.Dependencies)

func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()
	h := &harness{
		repos:   memory.NewRepositories(),
		clock:   &fakeClock{now: time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)},
		metrics: &countingMetrics{},
	}
	deps := application.Dependencies{
		Config:      application.Config{ServiceName: "M91-License-Service"},
		Licenses:    h.repos.Licenses,
		Activations: h.repos.Activations,
		Locker:      h.repos.Locker,
		Outbox:      h.repos.Outbox,
		Metrics:     h.metrics,
		Clock:       h.clock.Now,
	}
	for _, opt := range opts {
		opt(&deps)
	}
	h.svc = application.NewService(deps)
	return h
}

type licenseSpec struct {
	key       string
	max       int
	inactive  bool
	expiresAt *time.Time
	domains   []string
}

func (h *harness) seed(t *testing.T, spec licenseSpec) domain.License {
	t.Helper()
	if spec.max == 0 {
		spec.max = 1
	}
	license, err := h.repos.Licenses.Create(context.Background(), ports.CreateLicenseParams{
		LicenseKey:     spec.key,
		IsActive:       !spec.inactive,
		ExpiresAt:      spec.expiresAt,
		AllowedDomains: spec.domains,
		MaxActivations: spec.max,
		CreatedAt:      h.clock.Now(),
	})
	require.NoError(t, err)
	return license
}

func (h *harness) activate(t *testing.T, key, host string) application.ActionResult {
	t.Helper()
	res, err := h.svc.Activate(context.Background(), application.ActivateRequest{
		LicenseKey: key,
		Domain:     host,
		IPAddress:  "203.0.113.7",
		UserAgent:  "license-test",
	})
	require.NoError(t, err)
	return res
}

func (h *harness) deactivate(t *testing.T, key, host string) application.ActionResult {
	t.Helper()
	res, err := h.svc.Deactivate(context.Background(), application.DeactivateRequest{LicenseKey: key, Domain: host})
	require.NoError(t, err)
	return res
}

func (h *harness) validate(t *testing.T, key, host string) application.ValidateResult {
	t.Helper()
	res, err := h.svc.Validate(context.Background(), application.ValidateRequest{LicenseKey: key, Domain: host})
	require.NoError(t, err)
	return res
}

func (h *harness) activations(t *testing.T, license domain.License) []domain.Activation {
	t.Helper()
	items, err := h.repos.Activations.List(context.Background(), ports.ActivationFilter{LicenseID: &license.LicenseID})
	require.NoError(t, err)
	return items
}

// pausingLocker holds the first armed scope open, after the lock is taken, until
// release is closed.
type pausingLocker struct {
	inner   ports.LicenseLocker
	armed   atomic.Bool
	entered chan struct{}
	release chan struct{}
}

func newPausingLocker(inner ports.LicenseLocker) *pausingLocker {
	return &pausingLocker{inner: inner, entered: make(chan struct{}), release: make(chan struct{})}
}

func (p *pausingLocker) WithLicenseLock(ctx context.Context, key string, fn func(context.Context, domain.License, ports.LicenseTx) error) error {
	return p.inner.WithLicenseLock(ctx, key, func(ctx context.Context, license domain.License, tx ports.LicenseTx) error {
		if p.armed.CompareAndSwap(true, false) {
			close(p.entered)
			<-p.release
		}
		return fn(ctx, license, tx)
	})
}
