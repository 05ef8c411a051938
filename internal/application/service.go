package application

import (
	"crypto/rand"
	"io"
	"log/slog"
	"time"

	"github.com/viralforge/mesh/services/trust-compliance/M91-license-service/internal/ports"
)

type Service struct {
	cfg         Config
	licenses    ports.LicenseRepository
	activations ports.ActivationRepository
	locker      ports.LicenseLocker
	outbox      ports.OutboxRepository
	cache       ports.Cache
	tokens      ports.TokenVerifier
	metrics     ports.Metrics
	logger      *slog.Logger
	random      io.Reader
	nowFn       func() time.Time
}

type Dependencies struct {
	Config      Config
	Licenses    ports.LicenseRepository
	Activations ports.ActivationRepository
	Locker      ports.LicenseLocker
	Outbox      ports.OutboxRepository
	Cache       ports.Cache
	Tokens      ports.TokenVerifier
	Metrics     ports.Metrics
	Logger      *slog.Logger
	Random      io.Reader
	Clock       func() time.Time
}

func NewService(deps Dependencies) *Service {
	cfg := deps.Config
	if cfg.ServiceName == "" {
		cfg.ServiceName = "M91-License-Service"
	}
	if cfg.KeyGenerationMaxAttempts <= 0 {
		cfg.KeyGenerationMaxAttempts = 64
	}
	if cfg.DefaultListLimit <= 0 {
		cfg.DefaultListLimit = 50
	}
	if cfg.MaxListLimit <= 0 {
		cfg.MaxListLimit = 500
	}

	s := &Service{
		cfg:         cfg,
		licenses:    deps.Licenses,
		activations: deps.Activations,
		locker:      deps.Locker,
		outbox:      deps.Outbox,
		cache:       deps.Cache,
		tokens:      deps.Tokens,
		metrics:     deps.Metrics,
		logger:      deps.Logger,
		random:      deps.Random,
		nowFn:       deps.Clock,
	}
	if s.metrics == nil {
		s.metrics = ports.NoopMetrics{}
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.random == nil {
		s.random = rand.Reader
	}
	if s.nowFn == nil {
		s.nowFn = func() time.Time { return time.Now().UTC() }
	}
	return s
}
