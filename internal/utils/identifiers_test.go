package utils

import (
	"regexp"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfirmationNumber(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	number, err := ConfirmationNumber("TH", now)
	require.NoError(t, err)
	assert.Regexp(t, regexp.MustCompile(`^TH-20250601-[0-9A-F]{6}$`), number)
}

func TestProvisionalConfirmationNumber(t *testing.T) {
	id := uuid.MustParse("1f0e2d3c-4b5a-6978-8796-a5b4c3d2e1f0")
	assert.Equal(t, "PENDING-1F0E2D3C4B5A69788796A5B4C3D2E1F0", ProvisionalConfirmationNumber(id))

	// Ids sharing their first block still get distinct numbers
	other := uuid.MustParse("1f0e2d3c-0000-4000-8000-000000000000")
	assert.NotEqual(t, ProvisionalConfirmationNumber(id), ProvisionalConfirmationNumber(other))
	assert.LessOrEqual(t, len(ProvisionalConfirmationNumber(id)), 48)
}

func TestRequestFingerprint(t *testing.T) {
	a := map[string]any{"userId": "u1", "items": []string{"FL-1"}}
	b := map[string]any{"items": []string{"FL-1"}, "userId": "u1"}
	c := map[string]any{"userId": "u2", "items": []string{"FL-1"}}

	assert.Len(t, RequestFingerprint(a), 64)
	assert.Equal(t, RequestFingerprint(a), RequestFingerprint(b))
	assert.NotEqual(t, RequestFingerprint(a), RequestFingerprint(c))
}
