// Package numeric normalizes hand-typed decimal quantities from field reports.
package numeric

import (
	"strings"

	"github.com/shopspring/decimal"
)

const (
	// droppedPointThreshold is the magnitude above which a point-less token is
	// suspected of having lost its decimal separator.
	droppedPointThreshold = 1_000_000

	// droppedPointMinLen is the minimum token length for the recovery to apply.
	droppedPointMinLen = 7

	fractionDigits = 2
)

var threshold = decimal.NewFromInt(droppedPointThreshold)

// Normalize converts a quantity token into a canonical two-fraction-digit
// decimal string.
//
// Comma separators become periods and surrounding whitespace is dropped.
// Tokens that do not parse are returned trimmed but otherwise unchanged.
// A token longer than six characters with no period whose value exceeds one
// million is assumed to have lost its separator, and a period is reinserted
// two characters from the right ("1259680" becomes "12596.80"). A genuinely
// large whole number is misread by this rule.
func Normalize(token string) string {
	if token == "" {
		return ""
	}

	s := strings.TrimSpace(strings.ReplaceAll(token, ",", "."))
	value, err := decimal.NewFromString(s)
	if err != nil {
		return s
	}

	if value.Abs().GreaterThan(threshold) && !strings.Contains(s, ".") && len(s) >= droppedPointMinLen {
		repaired := s[:len(s)-2] + "." + s[len(s)-2:]
		if v, err := decimal.NewFromString(repaired); err == nil {
			value = v
		}
	}

	return value.StringFixed(fractionDigits)
}

// Parse returns the decimal value of a token after normalization. ok is false
// for empty or non-numeric tokens.
func Parse(token string) (decimal.Decimal, bool) {
	n := Normalize(token)
	if n == "" {
		return decimal.Zero, false
	}
	v, err := decimal.NewFromString(n)
	if err != nil {
		return decimal.Zero, false
	}
	return v, true
}

// Sum adds the given tokens and returns the canonical string of the total.
// Empty tokens are skipped. ok is false when any non-empty token is not
// numeric or when every token is empty.
func Sum(tokens ...string) (string, bool) {
	total := decimal.Zero
	seen := false
	for _, t := range tokens {
		if strings.TrimSpace(t) == "" {
			continue
		}
		v, ok := Parse(t)
		if !ok {
			return "", false
		}
		total = total.Add(v)
		seen = true
	}
	if !seen {
		return "", false
	}
	return total.StringFixed(fractionDigits), true
}

// Equal reports whether two tokens denote the same quantity after
// normalization. Two empty tokens are equal.
func Equal(a, b string) bool {
	return Normalize(a) == Normalize(b)
}
