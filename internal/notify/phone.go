package notify

import "strings"

const (
	minPhoneDigits = 10
	maxPhoneDigits = 15
)

// phoneDigits strips every non-digit character.
func phoneDigits(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// validPhone accepts any string carrying 10 to 15 digits once punctuation and
// spaces are removed. Country codes are not interpreted.
func validPhone(s string) bool {
	n := len(phoneDigits(s))
	return n >= minPhoneDigits && n <= maxPhoneDigits
}
