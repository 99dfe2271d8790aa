// Package worker runs the outbox relay that publishes committed audit events to Kafka.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"petregistry/internal/platform/kafka/producer"
	"petregistry/pkg/platform/audit/store/postgres"
)

// OutboxSource yields committed, unpublished outbox entries.
type OutboxSource interface {
	Relay(ctx context.Context, limit int, publish func(ctx context.Context, entries []postgres.OutboxEntry) error) (int, error)
}

// Publisher sends records to Kafka.
type Publisher interface {
	PublishBatch(ctx context.Context, msgs []producer.Message) error
}

// Relay polls the outbox and publishes each entry to "<topicPrefix>.<category>",
// keyed by event ID so consumers can deduplicate.
type Relay struct {
	source      OutboxSource
	publisher   Publisher
	topicPrefix string
	batchSize   int
	interval    time.Duration
	logger      *slog.Logger
}

func NewRelay(source OutboxSource, publisher Publisher, topicPrefix string, batchSize int, interval time.Duration, logger *slog.Logger) *Relay {
	if interval <= 0 {
		interval = time.Second
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	return &Relay{
		source:      source,
		publisher:   publisher,
		topicPrefix: topicPrefix,
		batchSize:   batchSize,
		interval:    interval,
		logger:      logger,
	}
}

// Run relays until ctx is cancelled. A full batch is followed immediately
// by another poll so a backlog drains without waiting for the ticker.
func (r *Relay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		n, err := r.RelayOnce(ctx)
		if err != nil && ctx.Err() == nil {
			r.logger.WarnContext(ctx, "outbox relay failed", "error", err)
		}
		if err == nil && n == r.batchSize {
			continue
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// RelayOnce publishes one batch and returns how many entries were sent.
func (r *Relay) RelayOnce(ctx context.Context) (int, error) {
	return r.source.Relay(ctx, r.batchSize, func(ctx context.Context, entries []postgres.OutboxEntry) error {
		msgs := make([]producer.Message, 0, len(entries))
		for _, e := range entries {
			var head struct {
				ID       string `json:"id"`
				Category string `json:"category"`
			}
			if err := json.Unmarshal(e.Payload, &head); err != nil {
				return fmt.Errorf("decode outbox entry %s: %w", e.ID, err)
			}
			msgs = append(msgs, producer.Message{
				Topic: TopicFor(r.topicPrefix, head.Category),
				Key:   []byte(head.ID),
				Value: e.Payload,
				Headers: map[string]string{
					"event_type":   e.EventType,
					"aggregate_id": e.AggregateID,
				},
			})
		}
		return r.publisher.PublishBatch(ctx, msgs)
	})
}

// TopicFor names the topic carrying one audit category.
func TopicFor(prefix, category string) string {
	return prefix + "." + category
}
