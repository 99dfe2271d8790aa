package consumer

import (
	"context"
	"fmt"
	"log/slog"

	"petregistry/internal/platform/kafka/consumer"
	audit "petregistry/pkg/platform/audit"
)

// ComplianceHandler materializes ownership events. Storage failures are
// returned so the record is redelivered; nothing in this category may be lost.
type ComplianceHandler struct {
	store  EventStore
	logger *slog.Logger
}

func NewComplianceHandler(store EventStore, logger *slog.Logger) *ComplianceHandler {
	return &ComplianceHandler{store: store, logger: logger}
}

func (h *ComplianceHandler) Handle(ctx context.Context, msg *consumer.Message) error {
	eventID, event, err := decode(msg)
	if err != nil {
		h.logger.ErrorContext(ctx, "CRITICAL: malformed compliance event",
			"key", string(msg.Key),
			"error", err,
		)
		return nil
	}

	if event.Subject == "" || event.ActorID == "" {
		h.logger.ErrorContext(ctx, "CRITICAL: compliance event missing pet code or actor",
			"event_id", eventID,
			"action", event.Action,
		)
		return nil
	}
	event.Category = audit.CategoryCompliance

	if err := h.store.AppendWithID(ctx, eventID, event); err != nil {
		h.logger.ErrorContext(ctx, "failed to store compliance event",
			"event_id", eventID,
			"action", event.Action,
			"error", err,
		)
		return fmt.Errorf("store compliance event: %w", err)
	}

	h.logger.DebugContext(ctx, "stored compliance event",
		"event_id", eventID,
		"action", event.Action,
		"pet_code", event.Subject,
	)
	return nil
}
