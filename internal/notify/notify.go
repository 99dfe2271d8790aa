// Package notify delivers handover passcodes to customers. Delivery is
// fire-and-forget from the caller's point of view: handover logs a failed
// send and carries on.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/skip2/go-qrcode"
)

// OTPMessage is everything a customer needs at the handover counter.
type OTPMessage struct {
	Recipient       string     `json:"recipient"`
	ReservationCode string     `json:"reservation_code"`
	PetCode         string     `json:"pet_code"`
	OTP             string     `json:"otp"`
	ScheduledAt     *time.Time `json:"scheduled_at,omitempty"`
	Location        string     `json:"location,omitempty"`
	IssuedAt        time.Time  `json:"issued_at"`
}

// qrPayload is what the counter scanner reads.
type qrPayload struct {
	ReservationCode string `json:"reservation_code"`
	OTP             string `json:"otp"`
}

// QRRenderer draws the counter QR code as PNG.
type QRRenderer struct {
	size  int
	level qrcode.RecoveryLevel
}

// NewQRRenderer maps level "L", "M", "Q" or "H" to the recovery level;
// anything else is Medium.
func NewQRRenderer(size int, level string) *QRRenderer {
	var l qrcode.RecoveryLevel
	switch level {
	case "L":
		l = qrcode.Low
	case "Q":
		l = qrcode.High
	case "H":
		l = qrcode.Highest
	default:
		l = qrcode.Medium
	}
	if size <= 0 {
		size = 256
	}
	return &QRRenderer{size: size, level: l}
}

func (r *QRRenderer) Render(msg OTPMessage) ([]byte, error) {
	data, err := json.Marshal(qrPayload{ReservationCode: msg.ReservationCode, OTP: msg.OTP})
	if err != nil {
		return nil, fmt.Errorf("marshal qr payload: %w", err)
	}
	code, err := qrcode.New(string(data), r.level)
	if err != nil {
		return nil, fmt.Errorf("create qr code: %w", err)
	}
	png, err := code.PNG(r.size)
	if err != nil {
		return nil, fmt.Errorf("render qr png: %w", err)
	}
	return png, nil
}

// Sender is implemented by each delivery channel.
type Sender interface {
	SendOTP(ctx context.Context, msg OTPMessage) error
}
