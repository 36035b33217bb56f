package utils

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"
)

// ProvisionalPrefix marks confirmation numbers of bookings that were never confirmed
const ProvisionalPrefix = "PENDING-"

// RandomHex returns n random bytes hex encoded
func RandomHex(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// ConfirmationNumber builds a customer-facing number like TH-20250601-A1B2C3
func ConfirmationNumber(prefix string, now time.Time) (string, error) {
	suffix, err := RandomHex(3)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s-%s-%s", prefix, now.UTC().Format("20060102"), strings.ToUpper(suffix)), nil
}

// ProvisionalConfirmationNumber derives a placeholder number from the full
// booking id, so it is as unique as the id itself
func ProvisionalConfirmationNumber(id uuid.UUID) string {
	return ProvisionalPrefix + strings.ToUpper(hex.EncodeToString(id[:]))
}

// RequestFingerprint hashes the JSON form of v with BLAKE2b-256
func RequestFingerprint(v any) string {
	payload, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	sum := blake2b.Sum256(payload)
	return hex.EncodeToString(sum[:])
}
