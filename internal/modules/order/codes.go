package order

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

const orderCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
const orderCodeLength = 8

// generateOrderCode returns the short human-facing order code. The alphabet
// drops lookalike characters (0/O, 1/I) because restaurants read these codes
// out loud. Uniqueness is enforced by the DB index; callers retry on
// collision with a small cap.
func generateOrderCode() (string, error) {
	buf := make([]byte, orderCodeLength)
	max := big.NewInt(int64(len(orderCodeAlphabet)))
	for i := range buf {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("generateOrderCode: %w", err)
		}
		buf[i] = orderCodeAlphabet[n.Int64()]
	}
	return string(buf), nil
}

// generateVerificationCode returns a 6-digit numeric code for a physical
// handoff (pickup or delivery). Single use; cleared once consumed.
func generateVerificationCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", fmt.Errorf("generateVerificationCode: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}
