package pipeline

import (
	"sort"
	"strings"

	"mailorder/internal"
)

// ResolveOverlaps keeps a match only when its span does not intersect an
// already kept span. Matches are visited in FindProductMatches order, so the
// earliest start wins and, at an equal start, the longest name wins.
func ResolveOverlaps(matches []internal.ProductMatch) (kept, dropped []internal.ProductMatch) {
	ordered := append([]internal.ProductMatch(nil), matches...)
	sortMatches(ordered)

	end := -1
	for _, m := range ordered {
		if m.Start < end {
			dropped = append(dropped, m)
			continue
		}
		kept = append(kept, m)
		end = m.End
	}
	return kept, dropped
}

// RemoveMatches returns text with every matched span replaced by a single
// space, so the tokens on either side of a product name do not run together.
// Spans are removed from the highest start down, which keeps the offsets of
// the spans still to be removed valid. Spans that overlap an already removed
// span are clipped to it.
func RemoveMatches(text string, matches []internal.ProductMatch) string {
	ordered := append([]internal.ProductMatch(nil), matches...)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Start > ordered[j].Start })

	residue := text
	limit := len(text)
	for _, m := range ordered {
		start, end := max(m.Start, 0), min(m.End, limit)
		if start >= end {
			continue
		}
		residue = residue[:start] + " " + residue[end:]
		limit = start
	}
	return strings.TrimSpace(residue)
}
