// Package phone holds the pure phone-number helpers used by lead
// resolution. Matching is a total function over two digit strings so it
// can be tested without touching persistence.
package phone

import (
	"fmt"
	"strings"
)

// minSharedSuffix is the minimum number of trailing digits two numbers
// must share before a prefix-tolerant match is accepted. Anything
// shorter collides on area codes.
const minSharedSuffix = 8

// Normalize strips every non-digit rune from raw.
func Normalize(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Suffix returns the last n digits of digits, or all of them when the
// number is shorter.
func Suffix(digits string, n int) string {
	if len(digits) <= n {
		return digits
	}
	return digits[len(digits)-n:]
}

// Match reports whether a stored candidate number and an incoming number
// denote the same line. Precedence:
//  1. exact digit equality;
//  2. incoming is a digit-suffix of candidate (candidate carries a
//     country code the incoming number lacks);
//  3. candidate is a digit-suffix of incoming (the reverse).
//
// Suffix matches only count when the shorter number is at least
// minSharedSuffix digits long, so "same last four digits" alone never
// matches. Both inputs must already be normalized.
func Match(candidate, incoming string) bool {
	if candidate == "" || incoming == "" {
		return false
	}
	if candidate == incoming {
		return true
	}
	if len(incoming) >= minSharedSuffix && strings.HasSuffix(candidate, incoming) {
		return true
	}
	if len(candidate) >= minSharedSuffix && strings.HasSuffix(incoming, candidate) {
		return true
	}
	return false
}

// FallbackName is the display name given to leads created from a webhook
// whose contact metadata carries no profile name.
func FallbackName(digits string) string {
	return fmt.Sprintf("WhatsApp %s", Suffix(digits, 4))
}
