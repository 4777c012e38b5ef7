package pipeline

import (
	"regexp"
	"sort"

	"mailorder/internal"
	"mailorder/internal/util"
)

// FindProductMatches returns every case-insensitive literal occurrence of
// every name in text. No word boundary is required, so a short name can match
// inside a longer word or inside another product name.
//
// Offsets are byte offsets into NFC(text). Matches are ordered by ascending
// start; at an equal start the longer match comes first, then by name.
// Occurrences of one name never overlap each other.
func FindProductMatches(text string, names []string) []internal.ProductMatch {
	text = util.NFC(text)

	var out []internal.ProductMatch
	for _, name := range names {
		if name == "" {
			continue
		}
		re := regexp.MustCompile(`(?i)` + regexp.QuoteMeta(util.NFC(name)))
		for _, loc := range re.FindAllStringIndex(text, -1) {
			out = append(out, internal.ProductMatch{ProductName: name, Start: loc[0], End: loc[1]})
		}
	}

	sortMatches(out)
	return out
}

func sortMatches(matches []internal.ProductMatch) {
	sort.SliceStable(matches, func(i, j int) bool {
		a, b := matches[i], matches[j]
		if a.Start != b.Start {
			return a.Start < b.Start
		}
		if a.Len() != b.Len() {
			return a.Len() > b.Len()
		}
		return a.ProductName < b.ProductName
	})
}
