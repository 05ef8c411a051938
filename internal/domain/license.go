package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

type License struct {
	LicenseID      uuid.UUID  `json:"license_id"`
	LicenseKey     string     `json:"license_key"`
	OrganizationID string     `json:"organization_id,omitempty"`
	ProductID      string     `json:"product_id,omitempty"`
	IsActive       bool       `json:"is_active"`
	ExpiresAt      *time.Time `json:"expires_at,omitempty"`
	AllowedDomains []string   `json:"allowed_domains"`
	MaxActivations int        `json:"max_activations"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// Expired reports whether the license is past its expiry at now. A license whose
// expiry equals now is already expired.
func (l License) Expired(now time.Time) bool {
	if l.ExpiresAt == nil {
		return false
	}
	return !now.Before(*l.ExpiresAt)
}

// AllowsDomain applies the allowlist. An empty list admits every domain.
func (l License) AllowsDomain(domain string) bool {
	if len(l.AllowedDomains) == 0 {
		return true
	}
	for _, pattern := range l.AllowedDomains {
		if MatchDomain(pattern, domain) {
			return true
		}
	}
	return false
}

// MatchDomain compares a requesting domain against one allowlist entry.
// "*.example.com" admits "example.com" and any name ending in ".example.com".
// Comparison is byte-exact: no case folding, no regex.
func MatchDomain(pattern, domain string) bool {
	if pattern == domain {
		return true
	}
	if !strings.HasPrefix(pattern, "*.") {
		return false
	}
	suffix := pattern[1:]
	if domain == suffix[1:] {
		return true
	}
	return strings.HasSuffix(domain, suffix)
}

type Activation struct {
	ActivationID uuid.UUID `json:"activation_id"`
	LicenseID    uuid.UUID `json:"license_id"`
	LicenseKey   string    `json:"license_key,omitempty"`
	Domain       string    `json:"domain"`
	IsActive     bool      `json:"is_active"`
	IPAddress    string    `json:"ip_address"`
	UserAgent    string    `json:"user_agent"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// IsValidDomainPattern accepts plain host names and "*."-prefixed wildcard entries.
func IsValidDomainPattern(v string) bool {
	if v == "" || strings.TrimSpace(v) != v || strings.ContainsAny(v, " /\\?#@") {
		return false
	}
	host := strings.TrimPrefix(v, "*.")
	if host == "" || strings.Contains(host, "*") {
		return false
	}
	if strings.HasPrefix(host, ".") || strings.HasSuffix(host, ".") || strings.Contains(host, "..") {
		return false
	}
	return true
}
