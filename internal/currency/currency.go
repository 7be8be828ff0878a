// Package currency holds the pure currency helpers: inference from OCR
// text, display rounding, and the calling-code default used at first
// contact.
package currency

import (
	"math"
	"strings"
)

// Unknown is returned when no currency marker can be found.
const Unknown = "UNKNOWN"

// Infer scans the OCR full-text content for currency markers in fixed
// priority order (EUR, GBP, then USD/$), falling back to the first tax-line
// currency code. The ordering is policy, not a ranking: the first match
// wins outright.
func Infer(content string, taxCodes []string) string {
	if strings.Contains(content, "EUR") {
		return "EUR"
	}
	if strings.Contains(content, "GBP") {
		return "GBP"
	}
	if strings.Contains(content, "USD") || strings.Contains(content, "$") {
		return "USD"
	}
	if len(taxCodes) > 0 && taxCodes[0] != "" {
		return taxCodes[0]
	}
	return Unknown
}

// Round2 rounds half away from zero at the hundredths place. Applied only
// at conversion and display time; stored totals keep full precision.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// callingCodes maps international calling-code prefixes to a display
// currency. Longest prefix wins.
var callingCodes = map[string]string{
	"1":   "USD",
	"44":  "GBP",
	"49":  "EUR",
	"33":  "EUR",
	"34":  "EUR",
	"39":  "EUR",
	"31":  "EUR",
	"351": "EUR",
	"353": "EUR",
	"41":  "CHF",
	"81":  "JPY",
	"91":  "INR",
	"61":  "AUD",
}

// FromPhone infers a preferred currency from the calling-code prefix of a
// WhatsApp id (digits only, country code first). Unmapped prefixes default
// to EUR.
func FromPhone(waID string) string {
	for l := 3; l >= 1; l-- {
		if len(waID) < l {
			continue
		}
		if c, ok := callingCodes[waID[:l]]; ok {
			return c
		}
	}
	return "EUR"
}
