package directory

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// NormalizeEmail returns the canonical directory key for an email address:
// the trimmed address in NFC form, case-folded. A Caser is stateful, so one is
// built per call.
func NormalizeEmail(email string) string {
	return cases.Fold().String(norm.NFC.String(strings.TrimSpace(email)))
}
