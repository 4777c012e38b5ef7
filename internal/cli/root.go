// Package cli implements the mailorder command line.
package cli

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"mailorder/internal/config"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"

	// LoadConfig overrides config.Load (for testing).
	LoadConfig func() (config.Config, error)
}

var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the mailorder CLI.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mailorder",
		Short: "Turn order emails into stored orders",
		Long: `mailorder reads customer order emails, finds catalog products and
their quantities in the message body, and stores the result as an order.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "debug logging")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(NewCatalogImportCommand(opts))
	cmd.AddCommand(NewCatalogListCommand(opts))
	cmd.AddCommand(NewOrderProcessCommand(opts))
	cmd.AddCommand(NewOrderShowCommand(opts))
	cmd.AddCommand(NewOrderLogsCommand(opts))
	cmd.AddCommand(NewOrderExportCommand(opts))
	cmd.AddCommand(NewMailFetchCommand(opts))
	cmd.AddCommand(NewMailProcessCommand(opts))
	cmd.AddCommand(NewMailListenCommand(opts))
	cmd.AddCommand(NewServeCommand(opts))

	return cmd
}
