package query

import "regexp"

// The completion capability is asked for strict JSON but occasionally emits
// JavaScript-flavored object literals. The repair pass is a fixed, bounded
// transformation: quote bare object keys and drop trailing commas. Nothing
// else is corrected.
var (
	bareKeyRx       = regexp.MustCompile(`([{,]\s*)([A-Za-z_][A-Za-z0-9_]*)(\s*:)`)
	trailingCommaRx = regexp.MustCompile(`,(\s*[}\]])`)
)

func repairJSON(s string) string {
	s = bareKeyRx.ReplaceAllString(s, `$1"$2"$3`)
	s = trailingCommaRx.ReplaceAllString(s, `$1`)
	return s
}
