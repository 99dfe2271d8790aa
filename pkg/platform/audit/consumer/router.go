package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"petregistry/internal/platform/kafka/consumer"
	audit "petregistry/pkg/platform/audit"
	"petregistry/pkg/platform/audit/store/postgres"
)

// EventStore materializes consumed events for querying.
type EventStore interface {
	AppendWithID(ctx context.Context, eventID uuid.UUID, event audit.Event) error
}

// TopicHandler handles messages from a specific topic.
type TopicHandler interface {
	Handle(ctx context.Context, msg *consumer.Message) error
}

// Router dispatches messages to topic-specific handlers.
type Router struct {
	handlers map[string]TopicHandler
	fallback TopicHandler
	logger   *slog.Logger
}

// NewRouter creates a topic router with an optional fallback handler.
func NewRouter(logger *slog.Logger, fallback TopicHandler) *Router {
	return &Router{
		handlers: make(map[string]TopicHandler),
		fallback: fallback,
		logger:   logger,
	}
}

// Register adds a handler for a specific topic.
func (r *Router) Register(topic string, handler TopicHandler) {
	r.handlers[topic] = handler
}

// Topics lists the registered topics.
func (r *Router) Topics() []string {
	topics := make([]string, 0, len(r.handlers))
	for t := range r.handlers {
		topics = append(topics, t)
	}
	return topics
}

// Handle routes the message to the appropriate topic handler.
func (r *Router) Handle(ctx context.Context, msg *consumer.Message) error {
	handler, ok := r.handlers[msg.Topic]
	if !ok {
		if r.fallback != nil {
			return r.fallback.Handle(ctx, msg)
		}
		r.logger.Warn("no handler for topic, skipping message",
			"topic", msg.Topic,
			"key", string(msg.Key),
		)
		return nil // Commit to avoid redelivery
	}
	return handler.Handle(ctx, msg)
}

// decode parses the key and payload. Handlers commit malformed messages
// so they cannot block the partition.
func decode(msg *consumer.Message) (uuid.UUID, audit.Event, error) {
	eventID, err := uuid.Parse(string(msg.Key))
	if err != nil {
		return uuid.Nil, audit.Event{}, fmt.Errorf("parse event id %q: %w", msg.Key, err)
	}

	var p postgres.Payload
	if err := json.Unmarshal(msg.Value, &p); err != nil {
		return eventID, audit.Event{}, fmt.Errorf("unmarshal payload: %w", err)
	}

	event := audit.Event{
		ID:        eventID.String(),
		Category:  audit.EventCategory(p.Category),
		Subject:   p.Subject,
		Action:    p.Action,
		ActorID:   p.ActorID,
		OwnerID:   p.OwnerID,
		Reason:    p.Reason,
		Detail:    p.Detail,
		Severity:  audit.Severity(p.Severity),
		RequestID: p.RequestID,
		ClientIP:  p.ClientIP,
		UserAgent: p.UserAgent,
		Timestamp: time.Now(),
	}
	if ts, err := time.Parse(time.RFC3339Nano, p.Timestamp); err == nil {
		event.Timestamp = ts
	}
	return eventID, event, nil
}
