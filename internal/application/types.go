package application

import (
	"time"

	"github.com/google/uuid"
	"github.com/viralforge/mesh/services/trust-compliance/M91-license-service/internal/domain"
)

type Config struct {
	ServiceName              string
	KeyGenerationMaxAttempts int
	PublicRateLimitPerMinute int
	DefaultListLimit         int
	MaxListLimit             int
	AdminAuthDisabled        bool
}

type ValidateRequest struct {
	LicenseKey string `json:"license_key" validate:"required"`
	Domain     string `json:"domain" validate:"required"`
}

type ActivateRequest struct {
	LicenseKey string `json:"license_key" validate:"required"`
	Domain     string `json:"domain" validate:"required"`
	IPAddress  string `json:"-"`
	UserAgent  string `json:"-"`
}

type DeactivateRequest struct {
	LicenseKey string `json:"license_key" validate:"required"`
	Domain     string `json:"domain" validate:"required"`
}

type ValidateResult struct {
	IsValid bool          `json:"is_valid"`
	Message string        `json:"message"`
	Reason  domain.Reason `json:"reason,omitempty"`
}

type Action string

const (
	ActionActivated       Action = "activated"
	ActionReactivated     Action = "reactivated"
	ActionAlreadyActive   Action = "already_active"
	ActionDeactivated     Action = "deactivated"
	ActionAlreadyInactive Action = "already_inactive"
)

var actionMessages = map[Action]string{
	ActionActivated:       "activated",
	ActionReactivated:     "reactivated",
	ActionAlreadyActive:   "already activated for this domain",
	ActionDeactivated:     "deactivated",
	ActionAlreadyInactive: "already deactivated",
}

// ActionResult is the outcome of Activate and Deactivate. Business refusals are
// reported with Success=false, never as errors.
type ActionResult struct {
	Success bool          `json:"success"`
	Message string        `json:"message"`
	Action  Action        `json:"action,omitempty"`
	Reason  domain.Reason `json:"reason,omitempty"`
}

func succeeded(action Action) ActionResult {
	return ActionResult{Success: true, Action: action, Message: actionMessages[action]}
}

func refused(reason domain.Reason) ActionResult {
	return ActionResult{Success: false, Reason: reason, Message: reason.Message()}
}

type CreateLicenseRequest struct {
	OrganizationID string     `json:"organization_id" validate:"omitempty,max=64"`
	ProductID      string     `json:"product_id" validate:"omitempty,max=64"`
	AllowedDomains []string   `json:"allowed_domains" validate:"omitempty,dive,domain_pattern"`
	MaxActivations int        `json:"max_activations" validate:"required,min=1"`
	ExpiresAt      *time.Time `json:"expires_at,omitempty"`
	IsActive       *bool      `json:"is_active,omitempty"`
}

type UpdateLicenseRequest struct {
	AllowedDomains *[]string  `json:"allowed_domains,omitempty" validate:"omitempty,dive,domain_pattern"`
	MaxActivations *int       `json:"max_activations,omitempty" validate:"omitempty,min=1"`
	IsActive       *bool      `json:"is_active,omitempty"`
	ExpiresAt      *time.Time `json:"expires_at,omitempty"`
	ClearExpiry    bool       `json:"clear_expiry,omitempty"`
}

type ListLicensesRequest struct {
	IsActive       *bool
	OrganizationID string
	ProductID      string
	Limit          int
	Offset         int
}

type ListActivationsRequest struct {
	LicenseID  *uuid.UUID
	LicenseKey string
	ActiveOnly bool
	Limit      int
	Offset     int
}

type LicenseDetail struct {
	domain.License
	ActiveActivations int                 `json:"active_activations"`
	Activations       []domain.Activation `json:"activations"`
}

type GeneratedKeyResponse struct {
	LicenseKey string `json:"license_key"`
}
