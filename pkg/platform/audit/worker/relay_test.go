package worker

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"petregistry/internal/platform/kafka/producer"
	"petregistry/pkg/platform/audit/store/postgres"
)

type fakeSource struct {
	entries   []postgres.OutboxEntry
	committed bool
}

func (f *fakeSource) Relay(ctx context.Context, limit int, publish func(context.Context, []postgres.OutboxEntry) error) (int, error) {
	batch := f.entries[:min(limit, len(f.entries))]
	if err := publish(ctx, batch); err != nil {
		return 0, err
	}
	f.committed = true
	return len(batch), nil
}

type fakePublisher struct {
	msgs []producer.Message
	err  error
}

func (f *fakePublisher) PublishBatch(_ context.Context, msgs []producer.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func entry(t *testing.T, id, category string) postgres.OutboxEntry {
	t.Helper()
	payload, err := json.Marshal(postgres.Payload{ID: id, Category: category, Action: "x"})
	require.NoError(t, err)
	return postgres.OutboxEntry{ID: id, EventType: "x", AggregateID: "DOG12345", Payload: payload}
}

func TestRelayOnce_RoutesByCategory(t *testing.T) {
	src := &fakeSource{entries: []postgres.OutboxEntry{
		entry(t, "e1", "compliance"),
		entry(t, "e2", "security"),
	}}
	pub := &fakePublisher{}
	r := NewRelay(src, pub, "petregistry.audit", 10, 0, slog.New(slog.NewTextHandler(io.Discard, nil)))

	n, err := r.RelayOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.True(t, src.committed)
	require.Len(t, pub.msgs, 2)
	assert.Equal(t, "petregistry.audit.compliance", pub.msgs[0].Topic)
	assert.Equal(t, []byte("e1"), pub.msgs[0].Key)
	assert.Equal(t, "petregistry.audit.security", pub.msgs[1].Topic)
}

func TestRelayOnce_PublishFailureLeavesOutbox(t *testing.T) {
	src := &fakeSource{entries: []postgres.OutboxEntry{entry(t, "e1", "compliance")}}
	r := NewRelay(src, &fakePublisher{err: errors.New("broker down")}, "p", 10, 0, slog.New(slog.NewTextHandler(io.Discard, nil)))

	_, err := r.RelayOnce(context.Background())
	require.Error(t, err)
	assert.False(t, src.committed)
}
