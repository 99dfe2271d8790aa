package handover

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"

	"golang.org/x/crypto/bcrypt"

	dErrors "petregistry/pkg/domain-errors"
)

// OTPLength is the number of decimal digits in a handover passcode.
const OTPLength = 6

// OTPGenerator returns a fresh passcode.
type OTPGenerator func() (string, error)

var otpMax = big.NewInt(1_000_000)

// RandomOTP draws a uniformly distributed six-digit passcode.
func RandomOTP() (string, error) {
	n, err := rand.Int(rand.Reader, otpMax)
	if err != nil {
		return "", fmt.Errorf("could not generate otp: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

func hashOTP(otp string, cost int) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(otp), cost)
	if err != nil {
		return "", fmt.Errorf("could not hash otp: %w", err)
	}
	return string(hashed), nil
}

// verifyOTP compares in constant time. A malformed candidate is a mismatch.
func verifyOTP(candidate, hash string) error {
	if !wellFormed(candidate) {
		return dErrors.New(dErrors.CodeInvalidOTP, "invalid otp")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(candidate)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return dErrors.New(dErrors.CodeInvalidOTP, "invalid otp")
		}
		return fmt.Errorf("could not verify otp: %w", err)
	}
	return nil
}

func wellFormed(otp string) bool {
	if len(otp) != OTPLength {
		return false
	}
	for _, c := range otp {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
