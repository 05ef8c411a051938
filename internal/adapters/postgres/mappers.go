package postgres

import (
	"github.com/viralforge/mesh/services/trust-compliance/M91-license-service/internal/domain"
	"github.com/viralforge/mesh/services/trust-compliance/M91-license-service/internal/ports"
)

func toDomainLicense(m licenseModel) domain.License {
	domains := []string(m.AllowedDomains)
	if domains == nil {
		domains = []string{}
	}
	return domain.License{
		LicenseID: m.LicenseID, LicenseKey: m.LicenseKey, OrganizationID: m.OrganizationID,
		ProductID: m.ProductID, IsActive: m.IsActive, ExpiresAt: m.ExpiresAt,
		AllowedDomains: domains, MaxActivations: m.MaxActivations,
		CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt,
	}
}

func toDomainActivation(m activationModel, licenseKey string) domain.Activation {
	return domain.Activation{
		ActivationID: m.ActivationID, LicenseID: m.LicenseID, LicenseKey: licenseKey,
		Domain: m.Domain, IsActive: m.IsActive, IPAddress: m.IPAddress, UserAgent: m.UserAgent,
		CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt,
	}
}

func fromActivationRow(r activationRow) domain.Activation {
	return domain.Activation{
		ActivationID: r.ActivationID, LicenseID: r.LicenseID, LicenseKey: r.LicenseKey,
		Domain: r.Domain, IsActive: r.IsActive, IPAddress: r.IPAddress, UserAgent: r.UserAgent,
		CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt,
	}
}

func toOutboxRecord(m licenseOutboxModel) ports.OutboxRecord {
	return ports.OutboxRecord{
		OutboxID: m.OutboxID, EventType: m.EventType, PartitionKey: m.PartitionKey,
		Payload: []byte(m.Payload), RetryCount: m.RetryCount, PublishedAt: m.PublishedAt,
		LastError: m.LastError, LastErrorAt: m.LastErrorAt, FirstSeenAt: m.FirstSeenAt,
	}
}

func fromOutboxEvent(event ports.OutboxEvent) licenseOutboxModel {
	return licenseOutboxModel{
		OutboxID:      event.EventID,
		EventType:     event.EventType,
		PartitionKey:  event.PartitionKey,
		Payload:       string(event.Payload),
		SchemaVersion: event.SchemaVersion,
		CreatedAt:     event.OccurredAt,
		FirstSeenAt:   event.OccurredAt,
	}
}
