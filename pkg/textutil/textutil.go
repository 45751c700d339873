// Package textutil holds the text normalization helpers shared by the reflex
// layer, the attention machine and the orchestrator.
package textutil

import (
	"strings"
	"unicode"

	"github.com/pmezard/go-difflib/difflib"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Fold lowercases s and strips diacritics ("Música" -> "musica").
func Fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, strings.ToLower(s))
	if err != nil {
		return strings.ToLower(s)
	}
	return out
}

// StripPunct replaces punctuation and symbols with spaces and collapses the
// result. Hyphens and apostrophes inside words survive ("lembre-se", "MC's").
func StripPunct(s string) string {
	rs := []rune(s)
	var b strings.Builder
	b.Grow(len(s))

	for i, r := range rs {
		if unicode.IsPunct(r) || unicode.IsSymbol(r) {
			if (r == '-' || r == '\'') && i > 0 && i < len(rs)-1 &&
				IsWordRune(rs[i-1]) && IsWordRune(rs[i+1]) {
				b.WriteRune(r)
				continue
			}
			b.WriteByte(' ')
			continue
		}
		b.WriteRune(r)
	}

	return strings.Join(strings.Fields(b.String()), " ")
}

// CollapseRepeats squeezes runs of three or more identical letters into one
// ("siiiim" -> "sim"). Runs of two are left alone, Portuguese needs them.
func CollapseRepeats(s string) string {
	rs := []rune(s)
	var b strings.Builder
	b.Grow(len(s))

	for i := 0; i < len(rs); {
		j := i
		for j < len(rs) && rs[j] == rs[i] {
			j++
		}
		if j-i >= 3 && unicode.IsLetter(rs[i]) {
			b.WriteRune(rs[i])
		} else {
			b.WriteString(string(rs[i:j]))
		}
		i = j
	}

	return b.String()
}

// Similarity is the sequence-matcher ratio of a and b compared rune by rune,
// in [0, 1].
func Similarity(a, b string) float64 {
	if a == "" && b == "" {
		return 1
	}
	m := difflib.NewMatcher(splitRunes(a), splitRunes(b))
	return m.Ratio()
}

// Closest returns the candidate most similar to term (both folded) when its
// score reaches cutoff.
func Closest(term string, candidates []string, cutoff float64) (string, float64, bool) {
	ft := Fold(term)

	var (
		best      string
		bestScore float64
	)
	for _, c := range candidates {
		score := Similarity(ft, Fold(c))
		if score > bestScore {
			best, bestScore = c, score
		}
	}

	if best == "" || bestScore < cutoff {
		return "", bestScore, false
	}
	return best, bestScore, true
}

// IsWordRune reports whether r belongs inside a word.
func IsWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_'
}

func splitRunes(s string) []string {
	out := make([]string, 0, len(s))
	for _, r := range s {
		out = append(out, string(r))
	}
	return out
}
