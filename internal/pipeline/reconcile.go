package pipeline

import (
	"mailorder/internal"
	"mailorder/internal/catalog"
	"mailorder/internal/util"
)

// suggestionThreshold is the minimum Dice score for an unmatched name to carry
// a catalog suggestion in diagnostics.
const suggestionThreshold = 0.5

type Reconciliation struct {
	Items          []internal.ReconciledItem
	Total          internal.Money
	SpecialRequest bool
	Diagnostics    internal.Diagnostics
}

// Reconcile prices line items against the catalog by exact name. Items whose
// name is not in the catalog, or whose quantity has no positive leading
// integer, are left out and reported in Diagnostics.
func Reconcile(items []internal.LineItem, cat *catalog.Catalog, specialRequest bool) Reconciliation {
	out := Reconciliation{SpecialRequest: specialRequest}
	for _, item := range items {
		entry, ok := cat.Lookup(item.ProductName)
		if !ok {
			notice := internal.UnmatchedProduct{Name: item.ProductName}
			if name, score := cat.Suggest(item.ProductName); score >= suggestionThreshold {
				notice.Suggestion, notice.Score = name, score
			}
			out.Diagnostics.Unmatched = append(out.Diagnostics.Unmatched, notice)
			continue
		}

		qty, err := util.LeadingQuantity(item.QuantityRaw)
		if err != nil || qty <= 0 {
			out.Diagnostics.InvalidQuantities = append(out.Diagnostics.InvalidQuantities, item)
			continue
		}

		subtotal := entry.Price.Times(qty)
		out.Items = append(out.Items, internal.ReconciledItem{
			ProductID:   entry.ID,
			ProductName: entry.Name,
			Quantity:    qty,
			UnitPrice:   entry.Price,
			Subtotal:    subtotal,
		})
		out.Total += subtotal
	}
	return out
}
