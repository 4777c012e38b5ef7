package catalog

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"mailorder/internal"
	"mailorder/internal/storage"
)

type fileEntry struct {
	Name  string  `yaml:"name"`
	SKU   string  `yaml:"sku"`
	Price float64 `yaml:"price"`
}

type fileLayout struct {
	Products []fileEntry `yaml:"products"`
}

// Parse decodes a catalog seed document:
//
//	products:
//	  - name: Wireless Bluetooth Earbuds Pro
//	    sku: WBE-PRO
//	    price: 10.00
func Parse(data []byte) ([]internal.CatalogEntry, error) {
	var layout fileLayout
	if err := yaml.Unmarshal(data, &layout); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}

	seen := map[string]struct{}{}
	out := make([]internal.CatalogEntry, 0, len(layout.Products))
	for i, p := range layout.Products {
		name := strings.TrimSpace(p.Name)
		if name == "" {
			return nil, fmt.Errorf("catalog entry %d: empty name", i+1)
		}
		if p.Price < 0 {
			return nil, fmt.Errorf("catalog entry %q: negative price", name)
		}
		if _, dup := seen[name]; dup {
			return nil, fmt.Errorf("catalog entry %q: duplicate name", name)
		}
		seen[name] = struct{}{}

		entry := internal.CatalogEntry{Name: name, Price: internal.MoneyFromFloat(p.Price)}
		if sku := strings.TrimSpace(p.SKU); sku != "" {
			entry.SKU = &sku
		}
		out = append(out, entry)
	}
	return out, nil
}

func LoadFile(path string) ([]internal.CatalogEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

const lastImportKey = "catalog.last_import"

type ImportService struct {
	db *storage.DB
}

func NewImportService(db *storage.DB) *ImportService {
	return &ImportService{db: db}
}

// ImportFile upserts every entry of the seed file by name.
func (s *ImportService) ImportFile(ctx context.Context, path string) (int, error) {
	entries, err := LoadFile(path)
	if err != nil {
		return 0, err
	}
	if err := s.db.UpsertProducts(ctx, entries); err != nil {
		return 0, err
	}
	_ = s.db.SetMetadata(ctx, lastImportKey, time.Now().UTC().Format(time.RFC3339))
	return len(entries), nil
}

// LastImport returns when the catalog was last imported, or "" if never.
func (s *ImportService) LastImport(ctx context.Context) (string, error) {
	v, err := s.db.GetMetadata(ctx, lastImportKey)
	if err != nil || v == nil {
		return "", err
	}
	return *v, nil
}

// Load reads the current catalog snapshot from storage.
func Load(ctx context.Context, db *storage.DB) (*Catalog, error) {
	entries, err := db.ListProducts(ctx)
	if err != nil {
		return nil, err
	}
	return New(entries), nil
}
