package memory

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/viralforge/mesh/services/trust-compliance/M91-license-service/internal/domain"
	"github.com/viralforge/mesh/services/trust-compliance/M91-license-service/internal/ports"
)

type OutboxRepository struct {
	s *store
}

func (r *OutboxRepository) Enqueue(ctx context.Context, event ports.OutboxEvent) error {
	if err := ctxErr(ctx); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.appendOutbox(event)
	return nil
}

// appendOutbox adds event to the queue. Callers hold s.mu.
func (s *store) appendOutbox(event ports.OutboxEvent) {
	id := event.EventID
	if id == uuid.Nil {
		id = uuid.New()
	}
	s.outbox = append(s.outbox, ports.OutboxRecord{
		OutboxID:     id,
		EventType:    event.EventType,
		PartitionKey: event.PartitionKey,
		Payload:      append([]byte(nil), event.Payload...),
		FirstSeenAt:  event.OccurredAt,
	})
}

func (s *store) dropOutbox(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, rec := range s.outbox {
		if rec.OutboxID == id {
			s.outbox = append(s.outbox[:i], s.outbox[i+1:]...)
			return
		}
	}
}

func (r *OutboxRepository) FetchUnpublished(ctx context.Context, limit int) ([]ports.OutboxRecord, error) {
	if err := ctxErr(ctx); err != nil {
		return nil, err
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make([]ports.OutboxRecord, 0)
	for _, rec := range r.s.outbox {
		if rec.PublishedAt != nil {
			continue
		}
		out = append(out, rec)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (r *OutboxRepository) MarkPublished(ctx context.Context, outboxID uuid.UUID, at time.Time) error {
	return r.update(ctx, outboxID, func(rec *ports.OutboxRecord) {
		t := at
		rec.PublishedAt = &t
	})
}

func (r *OutboxRepository) MarkFailed(ctx context.Context, outboxID uuid.UUID, errMsg string, at time.Time) error {
	return r.update(ctx, outboxID, func(rec *ports.OutboxRecord) {
		msg, t := errMsg, at
		rec.RetryCount++
		rec.LastError = &msg
		rec.LastErrorAt = &t
	})
}

func (r *OutboxRepository) update(ctx context.Context, outboxID uuid.UUID, fn func(*ports.OutboxRecord)) error {
	if err := ctxErr(ctx); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for i := range r.s.outbox {
		if r.s.outbox[i].OutboxID == outboxID {
			fn(&r.s.outbox[i])
			return nil
		}
	}
	return domain.ErrNotFound
}
