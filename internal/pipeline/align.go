package pipeline

import "mailorder/internal"

// Alignment is the outcome of ordinal pairing.
type Alignment struct {
	// Items holds one entry per product name, in order of the name's first
	// paired occurrence. A repeated name keeps the quantity of its last
	// occurrence.
	Items []internal.LineItem
	// DroppedProducts are matches past the last quantity token.
	DroppedProducts []string
	// UnusedQuantities are tokens past the last product match.
	UnusedQuantities []string
}

// AlignByPosition pairs the i-th match with the i-th quantity token for
// i < min(len(matches), len(quantities)).
func AlignByPosition(matches []internal.ProductMatch, quantities []internal.QuantityToken) Alignment {
	n := min(len(matches), len(quantities))

	var out Alignment
	index := map[string]int{}
	for i := 0; i < n; i++ {
		name, raw := matches[i].ProductName, quantities[i].Raw
		if at, seen := index[name]; seen {
			out.Items[at].QuantityRaw = raw
			continue
		}
		index[name] = len(out.Items)
		out.Items = append(out.Items, internal.LineItem{ProductName: name, QuantityRaw: raw})
	}
	for _, m := range matches[n:] {
		out.DroppedProducts = append(out.DroppedProducts, m.ProductName)
	}
	for _, q := range quantities[n:] {
		out.UnusedQuantities = append(out.UnusedQuantities, q.Raw)
	}
	return out
}
