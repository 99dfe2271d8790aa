package consumer

import (
	"context"
	"fmt"
	"log/slog"

	"petregistry/internal/platform/kafka/consumer"
	audit "petregistry/pkg/platform/audit"
)

// SecurityHandler materializes OTP abuse events.
type SecurityHandler struct {
	store  EventStore
	logger *slog.Logger
}

func NewSecurityHandler(store EventStore, logger *slog.Logger) *SecurityHandler {
	return &SecurityHandler{store: store, logger: logger}
}

func (h *SecurityHandler) Handle(ctx context.Context, msg *consumer.Message) error {
	eventID, event, err := decode(msg)
	if err != nil {
		h.logger.WarnContext(ctx, "malformed security event",
			"key", string(msg.Key),
			"error", err,
		)
		return nil
	}

	event.Category = audit.CategorySecurity
	if event.Severity == "" {
		event.Severity = audit.SeverityInfo
	}

	if err := h.store.AppendWithID(ctx, eventID, event); err != nil {
		return fmt.Errorf("store security event: %w", err)
	}

	if event.Severity == audit.SeverityCritical {
		h.logger.WarnContext(ctx, "critical security event",
			"event_id", eventID,
			"action", event.Action,
			"subject", event.Subject,
			"client_ip", event.ClientIP,
		)
	}
	return nil
}
