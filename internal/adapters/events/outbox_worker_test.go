package events

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viralforge/mesh/services/trust-compliance/M91-license-service/internal/adapters/memory"
	"github.com/viralforge/mesh/services/trust-compliance/M91-license-service/internal/ports"
)

type recordingPublisher struct {
	mu      sync.Mutex
	fail    map[string]error
	written []string
}

func (p *recordingPublisher) Publish(_ context.Context, eventType string, _ []byte, partitionKey string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.fail[eventType]; err != nil {
		return err
	}
	p.written = append(p.written, eventType+"@"+partitionKey)
	return nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func TestOutboxWorkerPublishesAndRetries(t *testing.T) {
	ctx := context.Background()
	repos := memory.NewRepositories()
	licenseID := uuid.NewString()
	for _, eventType := range []string{"license.created", "license.activation.created"} {
		require.NoError(t, repos.Outbox.Enqueue(ctx, ports.OutboxEvent{
			EventID:      uuid.New(),
			EventType:    eventType,
			PartitionKey: licenseID,
			Payload:      []byte(`{}`),
			OccurredAt:   time.Now().UTC(),
		}))
	}
	pub := &recordingPublisher{fail: map[string]error{"license.activation.created": errors.New("broker unavailable")}}
	worker := NewOutboxWorker(quietLogger(), repos.Outbox, pub, time.Millisecond, 10)

	n, err := worker.ProcessOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{"license.created@" + licenseID}, pub.written)

	pending, err := repos.Outbox.FetchUnpublished(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, 1, pending[0].RetryCount)

	delete(pub.fail, "license.activation.created")
	n, err = worker.ProcessOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	pending, err = repos.Outbox.FetchUnpublished(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestOutboxWorkerRunStopsOnCancel(t *testing.T) {
	repos := memory.NewRepositories()
	worker := NewOutboxWorker(quietLogger(), repos.Outbox, NewLoggingPublisher(quietLogger()), time.Millisecond, 0)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, worker.Run(ctx), context.DeadlineExceeded)
}

func TestKafkaPublisherTopicRouting(t *testing.T) {
	_, err := NewKafkaPublisher(nil, "license-events", nil)
	require.Error(t, err)

	p, err := NewKafkaPublisher([]string{"localhost:9092"}, "license-events", map[string]string{
		"license.deleted": "license-tombstones",
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })
	assert.Equal(t, "license-events", p.topicFor("license.created"))
	assert.Equal(t, "license-tombstones", p.topicFor("license.deleted"))
}
