package models

import (
	"time"

	"petregistry/pkg/domain"
)

// OTPRecord is one issued handover passcode. Only the hash is stored. The
// latest unused record of a reservation is the only one that can verify.
type OTPRecord struct {
	ID            string
	ReservationID domain.ReservationID
	Hash          string
	IssuedAt      time.Time
	UsedAt        *time.Time
}

func (o *OTPRecord) IsUsed() bool {
	return o.UsedAt != nil
}
