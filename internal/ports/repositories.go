package ports

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/viralforge/mesh/services/trust-compliance/M91-license-service/internal/domain"
)

type CreateLicenseParams struct {
	LicenseKey     string
	OrganizationID string
	ProductID      string
	IsActive       bool
	ExpiresAt      *time.Time
	AllowedDomains []string
	MaxActivations int
	CreatedAt      time.Time
}

// UpdateLicenseParams carries a partial update; nil fields are left untouched.
type UpdateLicenseParams struct {
	LicenseID      uuid.UUID
	IsActive       *bool
	AllowedDomains *[]string
	MaxActivations *int
	ExpiresAt      *time.Time
	ClearExpiry    bool
	UpdatedAt      time.Time
}

type LicenseFilter struct {
	IsActive       *bool
	OrganizationID string
	ProductID      string
	Limit          int
	Offset         int
}

type LicenseRepository interface {
	Create(ctx context.Context, params CreateLicenseParams) (domain.License, error)
	GetByID(ctx context.Context, licenseID uuid.UUID) (domain.License, error)
	GetByKey(ctx context.Context, licenseKey string) (domain.License, error)
	KeyExists(ctx context.Context, licenseKey string) (bool, error)
	List(ctx context.Context, filter LicenseFilter) ([]domain.License, error)
	Update(ctx context.Context, params UpdateLicenseParams) (domain.License, error)
	// Delete removes the license together with all of its activations.
	Delete(ctx context.Context, licenseID uuid.UUID) error
}

// ActivationReader is the read side used by eligibility evaluation.
type ActivationReader interface {
	FindActivation(ctx context.Context, licenseID uuid.UUID, domainName string) (domain.Activation, error)
	CountActive(ctx context.Context, licenseID uuid.UUID) (int, error)
}

type ActivationFilter struct {
	LicenseID  *uuid.UUID
	ActiveOnly bool
	Limit      int
	Offset     int
}

type ActivationRepository interface {
	ActivationReader
	List(ctx context.Context, filter ActivationFilter) ([]domain.Activation, error)
}

type CreateActivationParams struct {
	LicenseID uuid.UUID
	Domain    string
	IPAddress string
	UserAgent string
	CreatedAt time.Time
}

// SetActivationStateParams flips an activation. IP/UA are only written when non-nil.
type SetActivationStateParams struct {
	ActivationID uuid.UUID
	IsActive     bool
	IPAddress    *string
	UserAgent    *string
	UpdatedAt    time.Time
}

// LicenseTx is the write scope handed out by LicenseLocker. Every call made through it
// observes and mutates state under the lock of a single license.
type LicenseTx interface {
	ActivationReader
	CreateActivation(ctx context.Context, params CreateActivationParams) (domain.Activation, error)
	SetActivationState(ctx context.Context, params SetActivationStateParams) (domain.Activation, error)
	// UpdateLicense and DeleteLicense only touch the locked license; any other id is
	// rejected with domain.ErrInvalidInput.
	UpdateLicense(ctx context.Context, params UpdateLicenseParams) (domain.License, error)
	DeleteLicense(ctx context.Context, licenseID uuid.UUID) error
	Enqueue(ctx context.Context, event OutboxEvent) error
}

// LicenseLocker runs fn with exclusive access to the license identified by licenseKey.
// Calls for different licenses never block each other. A missing license yields
// domain.ErrLicenseNotFound without invoking fn.
type LicenseLocker interface {
	WithLicenseLock(ctx context.Context, licenseKey string, fn func(ctx context.Context, license domain.License, tx LicenseTx) error) error
}

type OutboxEvent struct {
	EventID       uuid.UUID
	EventType     string
	PartitionKey  string
	Payload       []byte
	OccurredAt    time.Time
	SchemaVersion string
}

type OutboxRecord struct {
	OutboxID     uuid.UUID
	EventType    string
	PartitionKey string
	Payload      []byte
	RetryCount   int
	PublishedAt  *time.Time
	LastError    *string
	LastErrorAt  *time.Time
	FirstSeenAt  time.Time
}

type OutboxRepository interface {
	Enqueue(ctx context.Context, event OutboxEvent) error
	FetchUnpublished(ctx context.Context, limit int) ([]OutboxRecord, error)
	MarkPublished(ctx context.Context, outboxID uuid.UUID, at time.Time) error
	MarkFailed(ctx context.Context, outboxID uuid.UUID, errMsg string, at time.Time) error
}
