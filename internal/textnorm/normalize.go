// Package textnorm canonicalises transcript text so that two noisy
// transcriptions of the same agent utterance compare equal (or nearly equal)
// downstream.
//
// Normalisation lowercases the input, strips punctuation, removes a small
// closed set of filler tokens ("um", "uh", ...), spells standalone digit
// groups as words, and collapses whitespace runs. The function is
// deterministic and idempotent: Normalize(Normalize(x)) == Normalize(x).
package textnorm

import (
	"strings"
	"unicode"
)

// fillers is the closed set of disfluency tokens removed during
// normalisation. Kept deliberately small: aggressive filler removal starts
// eating real words ("well", "so") and causes false node merges.
var fillers = map[string]struct{}{
	"um":  {},
	"uh":  {},
	"er":  {},
	"hmm": {},
	"ah":  {},
}

// digitWords spells single digits as words. Multi-digit groups are spelled
// digit by digit ("25" → "two five"), which matches how IVR systems read
// back numbers and keeps the mapping trivially idempotent.
var digitWords = [10]string{
	"zero", "one", "two", "three", "four",
	"five", "six", "seven", "eight", "nine",
}

// Normalize returns the canonical form of text for similarity comparison.
// The empty string normalises to the empty string.
func Normalize(text string) string {
	lower := strings.ToLower(text)

	// Strip punctuation, keeping letters, digits, and spaces. Everything
	// else becomes a space so that "9-5" tokenises as two digit groups.
	var b strings.Builder
	b.Grow(len(lower))
	for _, r := range lower {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		default:
			b.WriteByte(' ')
		}
	}

	fields := strings.Fields(b.String())
	out := make([]string, 0, len(fields))
	for _, tok := range fields {
		if _, skip := fillers[tok]; skip {
			continue
		}
		if isDigits(tok) {
			for _, d := range tok {
				out = append(out, digitWords[d-'0'])
			}
			continue
		}
		out = append(out, tok)
	}

	return strings.Join(out, " ")
}

// isDigits reports whether tok consists entirely of ASCII digits.
func isDigits(tok string) bool {
	for _, r := range tok {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(tok) > 0
}
