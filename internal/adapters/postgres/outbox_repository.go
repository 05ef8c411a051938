package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/viralforge/mesh/services/trust-compliance/M91-license-service/internal/ports"
	"gorm.io/gorm"
)

type outboxRepository struct {
	db *gorm.DB
}

func (r *outboxRepository) Enqueue(ctx context.Context, event ports.OutboxEvent) error {
	rec := fromOutboxEvent(event)
	return storageError(r.db.WithContext(ctx).Create(&rec).Error)
}

func (r *outboxRepository) FetchUnpublished(ctx context.Context, limit int) ([]ports.OutboxRecord, error) {
	q := r.db.WithContext(ctx).Where("published_at IS NULL").Order("created_at asc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var rows []licenseOutboxModel
	if err := q.Find(&rows).Error; err != nil {
		return nil, storageError(err)
	}
	out := make([]ports.OutboxRecord, 0, len(rows))
	for _, row := range rows {
		out = append(out, toOutboxRecord(row))
	}
	return out, nil
}

func (r *outboxRepository) MarkPublished(ctx context.Context, outboxID uuid.UUID, at time.Time) error {
	return storageError(r.db.WithContext(ctx).Model(&licenseOutboxModel{}).Where("outbox_id = ?", outboxID).Update("published_at", at).Error)
}

func (r *outboxRepository) MarkFailed(ctx context.Context, outboxID uuid.UUID, errMsg string, at time.Time) error {
	err := r.db.WithContext(ctx).Model(&licenseOutboxModel{}).Where("outbox_id = ?", outboxID).Updates(map[string]any{
		"retry_count":   gorm.Expr("retry_count + 1"),
		"last_error":    errMsg,
		"last_error_at": at,
	}).Error
	return storageError(err)
}
