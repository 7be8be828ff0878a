// Package memory implements the sliding-window conversation buffer: a
// per-user text blob of alternating turns, truncated to the trailing
// MaxLen characters on every append. Truncation is by raw character count;
// a turn may be split mid-sentence at the window boundary, but the cut is
// advanced to the next rune boundary so the stored blob stays valid UTF-8.
package memory

import (
	"fmt"
	"unicode/utf8"
)

// MaxLen is the retained window size in bytes.
const MaxLen = 1000

// Turn renders one exchange in the stored format.
func Turn(user, assistant string) string {
	return fmt.Sprintf("User: %s\nAssistant: %s", user, assistant)
}

// Window appends a turn to the existing blob and keeps the trailing MaxLen
// characters.
func Window(existing, user, assistant string) string {
	blob := existing
	if blob != "" {
		blob += "\n"
	}
	blob += Turn(user, assistant)
	if len(blob) > MaxLen {
		cut := len(blob) - MaxLen
		// Never leave a partial rune at the head of the window.
		for cut < len(blob) && !utf8.RuneStart(blob[cut]) {
			cut++
		}
		blob = blob[cut:]
	}
	return blob
}
