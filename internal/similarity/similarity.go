// Package similarity scores textual closeness between two transcripts.
//
// The score is a character-level sequence-matching ratio in [0, 1]. It
// measures what was said, not who said it, so it is a weak proxy for speaker
// identity; the acceptance threshold lives in configuration for that reason.
package similarity

import (
	"strings"

	"github.com/pmezard/go-difflib/difflib"
)

// Score returns the normalized closeness of two strings. Both inputs are
// lowercased and trimmed first so formatting differences do not affect the
// result. Identical normalized strings score 1.0; strings sharing no common
// subsequence structure score 0.0.
func Score(a, b string) float64 {
	left := runeSlice(normalize(a))
	right := runeSlice(normalize(b))
	return difflib.NewMatcher(left, right).Ratio()
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func runeSlice(s string) []string {
	out := make([]string, 0, len(s))
	for _, r := range s {
		out = append(out, string(r))
	}
	return out
}
