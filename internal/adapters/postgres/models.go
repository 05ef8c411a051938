package postgres

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

type licenseModel struct {
	LicenseID      uuid.UUID      `gorm:"column:license_id;type:uuid;default:gen_random_uuid();primaryKey"`
	LicenseKey     string         `gorm:"column:license_key"`
	OrganizationID string         `gorm:"column:organization_id"`
	ProductID      string         `gorm:"column:product_id"`
	IsActive       bool           `gorm:"column:is_active"`
	ExpiresAt      *time.Time     `gorm:"column:expires_at"`
	AllowedDomains pq.StringArray `gorm:"column:allowed_domains;type:text[]"`
	MaxActivations int            `gorm:"column:max_activations"`
	CreatedAt      time.Time      `gorm:"column:created_at"`
	UpdatedAt      time.Time      `gorm:"column:updated_at"`
}

func (licenseModel) TableName() string { return "licenses" }

type activationModel struct {
	ActivationID uuid.UUID `gorm:"column:activation_id;type:uuid;default:gen_random_uuid();primaryKey"`
	LicenseID    uuid.UUID `gorm:"column:license_id;type:uuid"`
	Domain       string    `gorm:"column:domain"`
	IsActive     bool      `gorm:"column:is_active"`
	IPAddress    string    `gorm:"column:ip_address"`
	UserAgent    string    `gorm:"column:user_agent"`
	CreatedAt    time.Time `gorm:"column:created_at"`
	UpdatedAt    time.Time `gorm:"column:updated_at"`
}

func (activationModel) TableName() string { return "license_activations" }

// activationRow is an activation joined with its license key.
type activationRow struct {
	ActivationID uuid.UUID `gorm:"column:activation_id"`
	LicenseID    uuid.UUID `gorm:"column:license_id"`
	LicenseKey   string    `gorm:"column:license_key"`
	Domain       string    `gorm:"column:domain"`
	IsActive     bool      `gorm:"column:is_active"`
	IPAddress    string    `gorm:"column:ip_address"`
	UserAgent    string    `gorm:"column:user_agent"`
	CreatedAt    time.Time `gorm:"column:created_at"`
	UpdatedAt    time.Time `gorm:"column:updated_at"`
}

type licenseOutboxModel struct {
	OutboxID      uuid.UUID  `gorm:"column:outbox_id;type:uuid;primaryKey"`
	EventType     string     `gorm:"column:event_type"`
	PartitionKey  string     `gorm:"column:partition_key"`
	Payload       string     `gorm:"column:payload"`
	SchemaVersion string     `gorm:"column:schema_version"`
	CreatedAt     time.Time  `gorm:"column:created_at"`
	FirstSeenAt   time.Time  `gorm:"column:first_seen_at"`
	PublishedAt   *time.Time `gorm:"column:published_at"`
	RetryCount    int        `gorm:"column:retry_count"`
	LastError     *string    `gorm:"column:last_error"`
	LastErrorAt   *time.Time `gorm:"column:last_error_at"`
}

func (licenseOutboxModel) TableName() string { return "license_outbox" }
