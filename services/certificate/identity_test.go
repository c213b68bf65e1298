package certificate

import (
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGenerateCertificateNumber(t *testing.T) {
	now := time.Date(2026, time.August, 15, 12, 0, 0, 0, time.UTC)
	pattern := regexp.MustCompile(`^CERT-202608-\d{4}$`)

	for i := 0; i < 20; i++ {
		number := GenerateCertificateNumber(now)
		assert.Regexp(t, pattern, number)
	}
}

func TestGenerateVerificationCode(t *testing.T) {
	now := time.Now().UTC()
	code := GenerateVerificationCode(now)

	assert.Equal(t, strings.ToUpper(code), code)
	assert.NotContains(t, code, "-")
	assert.Greater(t, len(code), 8)

	// Random component keeps same-instant codes apart.
	other := GenerateVerificationCode(now)
	assert.NotEqual(t, code, other)
}

func TestGradeLetter(t *testing.T) {
	tests := []struct {
		score int
		want  string
	}{
		{100, "A+"},
		{95, "A+"},
		{94, "A"},
		{92, "A"},
		{90, "A"},
		{85, "A-"},
		{80, "B+"},
		{75, "B"},
		{70, "B-"},
		{65, "C+"},
		{60, "C"},
		{55, "C-"},
		{52, "D+"},
		{51, "D"},
		{50, "D"},
		{49, "F"},
		{0, "F"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, GradeLetter(tt.score), "score %d", tt.score)
	}
}
