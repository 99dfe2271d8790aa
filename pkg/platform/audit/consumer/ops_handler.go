package consumer

import (
	"context"
	"log/slog"

	"petregistry/internal/platform/kafka/consumer"
	audit "petregistry/pkg/platform/audit"
)

// OpsHandler materializes routine events. Failures are logged and skipped.
type OpsHandler struct {
	store  EventStore
	logger *slog.Logger
}

func NewOpsHandler(store EventStore, logger *slog.Logger) *OpsHandler {
	return &OpsHandler{store: store, logger: logger}
}

func (h *OpsHandler) Handle(ctx context.Context, msg *consumer.Message) error {
	eventID, event, err := decode(msg)
	if err != nil {
		h.logger.DebugContext(ctx, "malformed ops event", "error", err)
		return nil
	}
	event.Category = audit.CategoryOperations

	if err := h.store.AppendWithID(ctx, eventID, event); err != nil {
		h.logger.WarnContext(ctx, "failed to store ops event",
			"event_id", eventID,
			"action", event.Action,
			"error", err,
		)
	}
	return nil
}
