package auth

import (
	"crypto/rand"
	"fmt"
	"math/big"

	"github.com/google/uuid"
)

// generateDeviceCode draws a fixed-width 6-digit code uniformly from
// [100000, 999999].
func generateDeviceCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", fmt.Errorf("auth: generate code: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()+100000), nil
}

// generateSignupCode issues the short alphanumeric code emailed at
// signup, distinct from the numeric device-verification code.
func generateSignupCode() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("auth: generate signup code: %w", err)
	}
	return id.String()[:8], nil
}
