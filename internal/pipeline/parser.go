package pipeline

import (
	"context"

	"mailorder/internal"
	"mailorder/internal/util"
)

// OrderTextParser turns an email body into (product, raw quantity) pairs for
// the given catalog names. Implementations may also report the
// special-request flag; a nil Flag leaves detection to the caller.
type OrderTextParser interface {
	Parse(ctx context.Context, products []string, text string) (internal.ParseResult, error)
}

// LocalParser runs the literal matching pipeline in process.
type LocalParser struct{}

func (LocalParser) Parse(ctx context.Context, products []string, text string) (internal.ParseResult, error) {
	if err := ctx.Err(); err != nil {
		return internal.ParseResult{}, err
	}
	return ParseText(products, text), nil
}

// ParseText matches products in body, strips them, tokenizes the residue for
// quantities and pairs both lists by position.
func ParseText(products []string, body string) internal.ParseResult {
	body = util.NFC(body)

	matches := FindProductMatches(body, products)
	kept, overlapping := ResolveOverlaps(matches)
	residue := RemoveMatches(body, kept)
	quantities := FindQuantities(residue)
	alignment := AlignByPosition(kept, quantities)

	return internal.ParseResult{
		Items: alignment.Items,
		Diagnostics: internal.Diagnostics{
			OverlappingMatches: overlapping,
			DroppedProducts:    alignment.DroppedProducts,
			UnusedQuantities:   alignment.UnusedQuantities,
		},
	}
}
