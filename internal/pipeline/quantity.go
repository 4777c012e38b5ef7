package pipeline

import (
	"regexp"

	"mailorder/internal"
)

// Units are listed so that a longer keyword is tried before any keyword that
// is its prefix.
var quantityPattern = regexp.MustCompile(`(?i)\d{1,6}\s*(?:units|pack|meter|kilogram|liter|kg|ml|l|g|m)`)

// FindQuantities returns the quantity expressions of text in order of
// appearance.
func FindQuantities(text string) []internal.QuantityToken {
	found := quantityPattern.FindAllString(text, -1)
	out := make([]internal.QuantityToken, 0, len(found))
	for _, raw := range found {
		out = append(out, internal.QuantityToken{Raw: raw})
	}
	return out
}
