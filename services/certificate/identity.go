package certificate

import (
	"fmt"
	"math/rand"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// GenerateCertificateNumber builds the public certificate number, e.g.
// CERT-202608-0417. The numeric part is random, not sequence-backed; the
// unique column on certificates is the authoritative collision guard and
// the caller retries with a fresh number on a duplicate-key error.
func GenerateCertificateNumber(now time.Time) string {
	return fmt.Sprintf("CERT-%s-%04d", now.Format("200601"), rand.Intn(10000))
}

// GenerateVerificationCode builds the public verification token from a
// time component and a random component, upper-cased. Collisions are
// handled the same way as certificate numbers.
func GenerateVerificationCode(now time.Time) string {
	timePart := strconv.FormatInt(now.UnixNano(), 36)
	randomPart := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return strings.ToUpper(timePart + randomPart)
}

var gradeTable = []struct {
	min    int
	letter string
}{
	{95, "A+"},
	{90, "A"},
	{85, "A-"},
	{80, "B+"},
	{75, "B"},
	{70, "B-"},
	{65, "C+"},
	{60, "C"},
	{55, "C-"},
	{52, "D+"},
	{50, "D"},
}

// GradeLetter maps a final score to its display grade. Anything below 50
// is an F. Display derivation only, recomputed wherever it is shown.
func GradeLetter(finalScore int) string {
	for _, g := range gradeTable {
		if finalScore >= g.min {
			return g.letter
		}
	}
	return "F"
}
