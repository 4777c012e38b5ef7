package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"mailorder/internal"
	"mailorder/internal/catalog"
)

type importResult struct {
	Path     string `json:"path"`
	Products int    `json:"products"`
}

func (r importResult) String() string {
	return fmt.Sprintf("imported %d products from %s", r.Products, r.Path)
}

// NewCatalogImportCommand creates the catalog:import command.
func NewCatalogImportCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "catalog:import [file]",
		Short: "Upsert products from a YAML catalog file",
		Long: `Upsert every product of a YAML catalog file by name.

Without an argument the file named by CATALOG_FILE is used.

Example:
  mailorder catalog:import ./catalog.yaml`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(rootOpts, cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			path := a.cfg.CatalogFile
			if len(args) == 1 {
				path = args[0]
			}
			n, err := catalog.NewImportService(a.db).ImportFile(cmd.Context(), path)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to import catalog", err)
			}
			a.logger.Info("Catalog imported", "path", path, "products", n)
			return a.out.Success(importResult{Path: path, Products: n})
		},
	}
}

type catalogListing struct {
	Products   []internal.CatalogEntry `json:"products"`
	LastImport string                  `json:"lastImport,omitempty"`
}

func (l catalogListing) String() string {
	if len(l.Products) == 0 {
		return "catalog is empty"
	}
	var b strings.Builder
	if l.LastImport != "" {
		fmt.Fprintf(&b, "last import %s\n", l.LastImport)
	}
	for i, p := range l.Products {
		if i > 0 {
			b.WriteByte('\n')
		}
		sku := "-"
		if p.SKU != nil {
			sku = *p.SKU
		}
		fmt.Fprintf(&b, "%d\t%s\t%s\t%s", p.ID, p.Name, sku, p.Price)
	}
	return b.String()
}

// NewCatalogListCommand creates the catalog:list command.
func NewCatalogListCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "catalog:list",
		Short:         "List catalog products",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(rootOpts, cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			products, err := a.db.ListProducts(cmd.Context())
			if err != nil {
				return WrapExitError(ExitFailure, "failed to list products", err)
			}
			last, err := catalog.NewImportService(a.db).LastImport(cmd.Context())
			if err != nil {
				return WrapExitError(ExitFailure, "failed to read catalog metadata", err)
			}
			return a.out.Success(catalogListing{Products: products, LastImport: last})
		},
	}
}
