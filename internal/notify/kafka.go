package notify

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"petregistry/internal/platform/kafka/producer"
	"petregistry/pkg/requestcontext"
)

type Publisher interface {
	Publish(ctx context.Context, msg producer.Message) error
}

// KafkaSender publishes OTP notifications for the mailer service, keyed by
// reservation code so resends for one reservation stay ordered.
type KafkaSender struct {
	publisher Publisher
	topic     string
	qr        *QRRenderer
}

func NewKafkaSender(publisher Publisher, topic string, qr *QRRenderer) *KafkaSender {
	return &KafkaSender{publisher: publisher, topic: topic, qr: qr}
}

type notification struct {
	Type string `json:"type"`
	OTPMessage
	QRPNG string `json:"qr_png,omitempty"`
}

func (s *KafkaSender) SendOTP(ctx context.Context, msg OTPMessage) error {
	n := notification{Type: "handover_otp", OTPMessage: msg}
	if s.qr != nil {
		png, err := s.qr.Render(msg)
		if err != nil {
			return err
		}
		n.QRPNG = base64.StdEncoding.EncodeToString(png)
	}
	value, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal otp notification: %w", err)
	}
	headers := map[string]string{"type": n.Type}
	if id := requestcontext.RequestID(ctx); id != "" {
		headers["request_id"] = id
	}
	return s.publisher.Publish(ctx, producer.Message{
		Topic:   s.topic,
		Key:     []byte(msg.ReservationCode),
		Value:   value,
		Headers: headers,
	})
}
