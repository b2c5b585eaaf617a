// Package rut normalizes and validates Chilean national identifiers (RUT),
// the subject identifier attached to every captured signature. Two captures
// of "11.111.111-1" and "11111111-1" must compare equal, so every lookup
// and uniqueness check runs on the normalized form.
package rut

import (
	"strings"

	"github.com/safetrack/fieldsign/internal/common"
)

// Normalize strips dots, hyphens and whitespace and upper-cases the check
// digit, returning the canonical form (digits followed by check digit, no
// separator before it is re-added as "body-dv").
//
// Returns ErrorInvalidSubjectID when the input is empty or contains
// characters other than digits and a trailing K.
func Normalize(raw string) (string, error) {
	cleaned := strings.ToUpper(strings.NewReplacer(".", "", "-", "", " ", "").Replace(raw))
	if len(cleaned) < 2 {
		return "", common.ErrorInvalidSubjectID
	}

	body, dv := cleaned[:len(cleaned)-1], cleaned[len(cleaned)-1]
	for _, r := range body {
		if r < '0' || r > '9' {
			return "", common.ErrorInvalidSubjectID
		}
	}
	if !(dv >= '0' && dv <= '9') && dv != 'K' {
		return "", common.ErrorInvalidSubjectID
	}

	return body + "-" + string(dv), nil
}

// Valid reports whether raw is a well-formed RUT with a correct mod-11
// check digit.
func Valid(raw string) bool {
	normalized, err := Normalize(raw)
	if err != nil {
		return false
	}

	parts := strings.SplitN(normalized, "-", 2)
	body, dv := parts[0], parts[1]

	sum := 0
	factor := 2
	for i := len(body) - 1; i >= 0; i-- {
		sum += int(body[i]-'0') * factor
		factor++
		if factor > 7 {
			factor = 2
		}
	}

	expected := 11 - sum%11
	switch expected {
	case 11:
		return dv == "0"
	case 10:
		return dv == "K"
	default:
		return dv == string(rune('0'+expected))
	}
}
