package notify

import (
	"context"
	"log/slog"

	"petregistry/pkg/requestcontext"
)

// LogSender records that a passcode was issued without writing the passcode.
// Used when no broker is configured.
type LogSender struct {
	logger *slog.Logger
}

func NewLogSender(logger *slog.Logger) *LogSender {
	return &LogSender{logger: logger}
}

func (s *LogSender) SendOTP(ctx context.Context, msg OTPMessage) error {
	s.logger.InfoContext(ctx, "handover otp issued",
		"recipient", msg.Recipient,
		"reservation_code", msg.ReservationCode,
		"pet_code", msg.PetCode,
		"request_id", requestcontext.RequestID(ctx),
	)
	return nil
}
