package application

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/viralforge/mesh/services/trust-compliance/M91-license-service/internal/domain"
	"github.com/viralforge/mesh/services/trust-compliance/M91-license-service/internal/ports"
)

const (
	EventLicenseCreated        = "license.created"
	EventLicenseUpdated        = "license.updated"
	EventLicenseDeleted        = "license.deleted"
	EventActivationCreated     = "license.activation.created"
	EventActivationReactivated = "license.activation.reactivated"
	EventActivationDeactivated = "license.activation.deactivated"
)

const (
	eventSchemaVersion = "1.0"
	partitionKeyPath   = "data.license_id"
	rateLimitWindow    = time.Minute
	rateLimitKeyPrefix = "license:ratelimit:"
	roleAdmin          = "admin"
	roleSuperAdmin     = "super_admin"
)

// normalizeKeyAndDomain trims both inputs. Domains are otherwise compared exactly as sent.
func normalizeKeyAndDomain(licenseKey, domainName string) (string, string, error) {
	key := strings.TrimSpace(licenseKey)
	host := strings.TrimSpace(domainName)
	if key == "" {
		return "", "", fmt.Errorf("%w: license_key is required", domain.ErrInvalidInput)
	}
	if host == "" {
		return "", "", fmt.Errorf("%w: domain is required", domain.ErrInvalidInput)
	}
	return key, host, nil
}

func normalizeDomains(in []string) ([]string, error) {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, raw := range in {
		d := strings.TrimSpace(raw)
		if d == "" {
			continue
		}
		if !domain.IsValidDomainPattern(d) {
			return nil, fmt.Errorf("%w: invalid domain pattern %q", domain.ErrInvalidInput, raw)
		}
		if _, ok := seen[d]; ok {
			continue
		}
		seen[d] = struct{}{}
		out = append(out, d)
	}
	return out, nil
}

func (s *Service) clampLimit(limit int) int {
	if limit <= 0 {
		return s.cfg.DefaultListLimit
	}
	if limit > s.cfg.MaxListLimit {
		return s.cfg.MaxListLimit
	}
	return limit
}

type eventEnqueuer interface {
	Enqueue(ctx context.Context, event ports.OutboxEvent) error
}

func (s *Service) buildEvent(eventType string, licenseID uuid.UUID, data any) ports.OutboxEvent {
	occurredAt := s.nowFn()
	eventID := uuid.New()
	envelope := map[string]any{
		"event_id":           eventID.String(),
		"event_type":         eventType,
		"occurred_at":        occurredAt.Format(time.RFC3339),
		"source_service":     s.cfg.ServiceName,
		"schema_version":     eventSchemaVersion,
		"partition_key_path": partitionKeyPath,
		"partition_key":      licenseID.String(),
		"data":               data,
	}
	payload, _ := json.Marshal(envelope)
	return ports.OutboxEvent{
		EventID:       eventID,
		EventType:     eventType,
		PartitionKey:  licenseID.String(),
		Payload:       payload,
		OccurredAt:    occurredAt,
		SchemaVersion: eventSchemaVersion,
	}
}

func (s *Service) enqueue(ctx context.Context, sink eventEnqueuer, eventType string, licenseID uuid.UUID, data any) error {
	if sink == nil {
		return nil
	}
	return sink.Enqueue(ctx, s.buildEvent(eventType, licenseID, data))
}

// enqueueAfterWrite records an admin event once the mutation is committed. A failed
// enqueue is logged rather than reported since the write already happened.
func (s *Service) enqueueAfterWrite(ctx context.Context, operation, eventType string, licenseID uuid.UUID, data any) {
	if s.outbox == nil {
		return
	}
	if err := s.enqueue(ctx, s.outbox, eventType, licenseID, data); err != nil {
		s.logger.WarnContext(ctx, "failed to enqueue license event",
			"service", s.cfg.ServiceName,
			"module", "application",
			"layer", "application",
			"operation", operation,
			"outcome", "failure",
			"event_type", eventType,
			"license_id", licenseID.String(),
			"error", err,
		)
	}
}

type activationEventData struct {
	ActivationID string `json:"activation_id"`
	LicenseID    string `json:"license_id"`
	Domain       string `json:"domain"`
	IsActive     bool   `json:"is_active"`
	IPAddress    string `json:"ip_address,omitempty"`
	OccurredAt   string `json:"occurred_at"`
}

func activationData(a domain.Activation) activationEventData {
	return activationEventData{
		ActivationID: a.ActivationID.String(),
		LicenseID:    a.LicenseID.String(),
		Domain:       a.Domain,
		IsActive:     a.IsActive,
		IPAddress:    a.IPAddress,
		OccurredAt:   a.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

type licenseEventData struct {
	LicenseID      string   `json:"license_id"`
	OrganizationID string   `json:"organization_id,omitempty"`
	ProductID      string   `json:"product_id,omitempty"`
	IsActive       bool     `json:"is_active"`
	MaxActivations int      `json:"max_activations"`
	AllowedDomains []string `json:"allowed_domains"`
	ExpiresAt      string   `json:"expires_at,omitempty"`
}

func licenseData(l domain.License) licenseEventData {
	out := licenseEventData{
		LicenseID:      l.LicenseID.String(),
		OrganizationID: l.OrganizationID,
		ProductID:      l.ProductID,
		IsActive:       l.IsActive,
		MaxActivations: l.MaxActivations,
		AllowedDomains: l.AllowedDomains,
	}
	if l.ExpiresAt != nil {
		out.ExpiresAt = l.ExpiresAt.UTC().Format(time.RFC3339)
	}
	return out
}

func (s *Service) observe(operation string, ok bool, reason domain.Reason) {
	outcome := "success"
	if !ok {
		outcome = "refused"
	}
	s.metrics.ObserveDecision(operation, outcome, string(reason))
}

// AllowPublicRequest applies the per-client fixed window on public endpoints. Without a
// cache, or when the cache fails, requests are let through.
func (s *Service) AllowPublicRequest(ctx context.Context, clientKey string) error {
	if s.cache == nil || s.cfg.PublicRateLimitPerMinute <= 0 || strings.TrimSpace(clientKey) == "" {
		return nil
	}
	window := s.nowFn().Unix() / int64(rateLimitWindow/time.Second)
	key := fmt.Sprintf("%s%s:%d", rateLimitKeyPrefix, clientKey, window)
	count, err := s.cache.IncrWithTTL(ctx, key, rateLimitWindow)
	if err != nil {
		s.logger.WarnContext(ctx, "rate-limit state unavailable",
			"service", s.cfg.ServiceName,
			"module", "application",
			"layer", "application",
			"operation", "rate_limit",
			"outcome", "warning",
			"error", err,
		)
		return nil
	}
	if count > int64(s.cfg.PublicRateLimitPerMinute) {
		return domain.ErrRateLimitExceeded
	}
	return nil
}

// AuthorizeAdmin verifies a bearer token and requires an admin role.
func (s *Service) AuthorizeAdmin(ctx context.Context, token string) (ports.AuthClaims, error) {
	if s.cfg.AdminAuthDisabled {
		return ports.AuthClaims{Subject: "anonymous", Role: roleAdmin}, nil
	}
	if s.tokens == nil {
		return ports.AuthClaims{}, domain.ErrUnauthorized
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return ports.AuthClaims{}, domain.ErrUnauthorized
	}
	claims, err := s.tokens.Verify(ctx, token)
	if err != nil {
		return ports.AuthClaims{}, domain.ErrUnauthorized
	}
	if claims.Role != roleAdmin && claims.Role != roleSuperAdmin {
		return ports.AuthClaims{}, domain.ErrForbidden
	}
	return claims, nil
}
