// Package textutil normalises user supplied text before it is persisted.
package textutil

import (
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/text/currency"
	"golang.org/x/text/unicode/norm"
)

// ErrInvalidCurrency indicates the value is not an ISO 4217 currency code.
var ErrInvalidCurrency = errors.New("textutil: invalid currency code")

var plainPolicy = bluemonday.StrictPolicy()

// PlainText strips markup, applies NFC normalisation, collapses surrounding
// whitespace and truncates to maxRunes when maxRunes is positive.
func PlainText(value string, maxRunes int) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	cleaned := plainPolicy.Sanitize(value)
	// StrictPolicy escapes entities; undo the ones people actually type.
	cleaned = strings.NewReplacer("&amp;", "&", "&#39;", "'", "&#34;", "\"", "&lt;", "<", "&gt;", ">").Replace(cleaned)
	cleaned = strings.TrimSpace(norm.NFC.String(cleaned))
	if maxRunes > 0 && utf8.RuneCountInString(cleaned) > maxRunes {
		runes := []rune(cleaned)
		cleaned = strings.TrimSpace(string(runes[:maxRunes]))
	}
	return cleaned
}

// NormalizeCurrency upper-cases and validates an ISO 4217 code, falling back
// to def when value is blank.
func NormalizeCurrency(value, def string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		value = def
	}
	unit, err := currency.ParseISO(strings.ToUpper(value))
	if err != nil {
		return "", ErrInvalidCurrency
	}
	return unit.String(), nil
}

// NormalizeStringMap trims keys and values, removing entries with empty keys.
func NormalizeStringMap(values map[string]string) map[string]string {
	if len(values) == 0 {
		return nil
	}
	result := make(map[string]string, len(values))
	for key, value := range values {
		trimmedKey := strings.TrimSpace(key)
		if trimmedKey == "" {
			continue
		}
		result[trimmedKey] = strings.TrimSpace(value)
	}
	if len(result) == 0 {
		return nil
	}
	return result
}
