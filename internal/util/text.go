package util

import (
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

var (
	reSpaces     = regexp.MustCompile(`\s+`)
	reNonAllowed = regexp.MustCompile(`[^\p{L}\p{N}\s.\-/]`)
)

// NFC returns s in Unicode normalization form C.
func NFC(s string) string {
	return norm.NFC.String(s)
}

// Fold returns the case-folded NFC form of s, for caseless comparison.
func Fold(s string) string {
	return cases.Fold().String(norm.NFC.String(s))
}

// NormalizeName folds case and collapses punctuation and whitespace so two
// spellings of a product name can be scored against each other.
func NormalizeName(input string) string {
	s := Fold(input)
	s = reNonAllowed.ReplaceAllString(s, " ")
	s = reSpaces.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

func NormalizeSpaces(input string) string {
	return strings.TrimSpace(reSpaces.ReplaceAllString(input, " "))
}

// DiceCoefficient scores two strings by their shared rune bigrams, from 0
// (nothing in common) to 1 (identical).
func DiceCoefficient(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 1
	}
	aPairs, aTotal := bigrams(a)
	bPairs, bTotal := bigrams(b)
	if aTotal == 0 || bTotal == 0 {
		return 0
	}

	shared := 0
	for pair, n := range aPairs {
		shared += min(n, bPairs[pair])
	}
	return float64(2*shared) / float64(aTotal+bTotal)
}

func bigrams(s string) (map[[2]rune]int, int) {
	r := []rune(s)
	counts := make(map[[2]rune]int, len(r))
	for i := 1; i < len(r); i++ {
		counts[[2]rune{r[i-1], r[i]}]++
	}
	return counts, max(len(r)-1, 0)
}
