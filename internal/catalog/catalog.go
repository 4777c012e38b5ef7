// Package catalog holds the read-only, priced product catalog the pipeline
// matches email text against.
package catalog

import (
	"mailorder/internal"
	"mailorder/internal/util"
)

// Catalog is an immutable snapshot of the product table for one pipeline run.
// It is safe for concurrent reads.
type Catalog struct {
	entries    []internal.CatalogEntry
	byName     map[string]internal.CatalogEntry
	normalized []string
}

// New builds a catalog snapshot. Entry order is preserved; for duplicate names
// the first entry wins.
func New(entries []internal.CatalogEntry) *Catalog {
	c := &Catalog{
		entries:    make([]internal.CatalogEntry, 0, len(entries)),
		byName:     make(map[string]internal.CatalogEntry, len(entries)),
		normalized: make([]string, 0, len(entries)),
	}
	for _, e := range entries {
		if e.Name == "" {
			continue
		}
		if _, dup := c.byName[e.Name]; dup {
			continue
		}
		c.byName[e.Name] = e
		c.entries = append(c.entries, e)
		c.normalized = append(c.normalized, util.NormalizeName(e.Name))
	}
	return c
}

func (c *Catalog) Len() int { return len(c.entries) }

// Names returns the canonical product names in catalog order.
func (c *Catalog) Names() []string {
	out := make([]string, 0, len(c.entries))
	for _, e := range c.entries {
		out = append(out, e.Name)
	}
	return out
}

// Lookup finds an entry by exact, case-sensitive name.
func (c *Catalog) Lookup(name string) (internal.CatalogEntry, bool) {
	e, ok := c.byName[name]
	return e, ok
}

// Suggest returns the catalog name most similar to name and its Dice score.
// It only feeds diagnostics; matching never uses it.
func (c *Catalog) Suggest(name string) (string, float64) {
	query := util.NormalizeName(name)
	best, bestScore := "", 0.0
	for i, candidate := range c.normalized {
		score := util.DiceCoefficient(query, candidate)
		if score > bestScore {
			best, bestScore = c.entries[i].Name, score
		}
	}
	return best, bestScore
}
