package cli

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"mailorder/internal"
	"mailorder/internal/pipeline"
)

// OrderProcessOptions holds flags for the order:process command.
type OrderProcessOptions struct {
	*RootOptions
	Input  string
	Parser string
}

type processOutput struct {
	internal.ProcessResult
	TraceID     string               `json:"traceId"`
	Diagnostics internal.Diagnostics `json:"diagnostics"`
}

func (o processOutput) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "order %s (id=%d) items=%d total=%s special=%t trace=%s",
		o.OrderNumber, o.OrderID, o.ItemsCount, o.TotalAmount, o.HasSpecialRequest, o.TraceID)
	if o.Diagnostics.Empty() {
		return b.String()
	}
	for _, m := range o.Diagnostics.OverlappingMatches {
		fmt.Fprintf(&b, "\n  overlapping match ignored: %s at %d", m.ProductName, m.Start)
	}
	for _, name := range o.Diagnostics.DroppedProducts {
		fmt.Fprintf(&b, "\n  dropped product without quantity: %s", name)
	}
	for _, raw := range o.Diagnostics.UnusedQuantities {
		fmt.Fprintf(&b, "\n  unused quantity: %s", raw)
	}
	for _, u := range o.Diagnostics.Unmatched {
		if u.Suggestion != "" {
			fmt.Fprintf(&b, "\n  unmatched product: %s (did you mean %s?)", u.Name, u.Suggestion)
			continue
		}
		fmt.Fprintf(&b, "\n  unmatched product: %s", u.Name)
	}
	for _, item := range o.Diagnostics.InvalidQuantities {
		fmt.Fprintf(&b, "\n  invalid quantity for %s: %q", item.ProductName, item.QuantityRaw)
	}
	for _, w := range o.Diagnostics.Warnings {
		fmt.Fprintf(&b, "\n  warning: %s", w)
	}
	return b.String()
}

// NewOrderProcessCommand creates the order:process command.
func NewOrderProcessCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &OrderProcessOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "order:process",
		Short: "Create an order from tagged email markup",
		Long: `Run one tagged markup message through the order pipeline and store
the resulting order.

Example:
  mailorder order:process --input ./email.txt
  cat email.txt | mailorder order:process --input - --parser remote`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOrderProcess(opts, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Input, "input", "i", "", "markup file, or - for stdin (required)")
	cmd.Flags().StringVar(&opts.Parser, "parser", "", "order text parser (local|remote), defaults to PARSER_MODE")
	_ = cmd.MarkFlagRequired("input")

	return cmd
}

func runOrderProcess(opts *OrderProcessOptions, cmd *cobra.Command) error {
	a, err := openApp(opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	text, err := readInput(cmd, opts.Input)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read input", err)
	}
	processor, err := a.processor(opts.Parser)
	if err != nil {
		return err
	}

	res, err := processor.ProcessMarkup(cmd.Context(), string(text), nil)
	if err != nil {
		_ = a.out.Failure(err, res.TraceID)
		return pipelineExitError("failed to process order", err)
	}
	return a.out.SuccessWithTrace(processOutput{
		ProcessResult: res,
		TraceID:       res.TraceID,
		Diagnostics:   res.Diagnostics,
	}, res.TraceID)
}

type orderView internal.Order

func (o orderView) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "order %s (id=%d)\n", o.OrderNumber, o.ID)
	fmt.Fprintf(&b, "  customer: %s\n", o.CustomerEmail)
	fmt.Fprintf(&b, "  date:     %s\n", o.OrderDate)
	fmt.Fprintf(&b, "  status:   %s\n", o.Status)
	fmt.Fprintf(&b, "  subject:  %s\n", o.EmailSubject)
	fmt.Fprintf(&b, "  special:  %t\n", o.SpecialRequest)
	fmt.Fprintf(&b, "  total:    %s", o.TotalAmount)
	for _, item := range o.Items {
		fmt.Fprintf(&b, "\n  %3d x %s @ %s = %s", item.Quantity, item.ProductName, item.UnitPrice, item.Subtotal)
	}
	return b.String()
}

// NewOrderShowCommand creates the order:show command.
func NewOrderShowCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "order:show <id|order-number>",
		Short: "Show a stored order with its items",
		Example: `  mailorder order:show 12
  mailorder order:show ORD-01J9ZQ3C4W6V8Y0A2B4C6D8E0F`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(rootOpts, cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			var order *internal.Order
			if id, convErr := strconv.Atoi(args[0]); convErr == nil {
				order, err = a.db.GetOrder(cmd.Context(), id)
			} else {
				order, err = a.db.GetOrderByNumber(cmd.Context(), args[0])
			}
			if err != nil {
				return WrapExitError(ExitFailure, "failed to load order", err)
			}
			if order == nil {
				return NewExitError(ExitCommandError, fmt.Sprintf("order not found: %s", args[0]))
			}
			return a.out.Success(orderView(*order))
		},
	}
}

// OrderLogsOptions holds flags for the order:logs command.
type OrderLogsOptions struct {
	*RootOptions
	OrderID int
	Limit   int
}

type runListing []internal.RunRow

func (l runListing) String() string {
	if len(l) == 0 {
		return "no pipeline runs recorded"
	}
	var b strings.Builder
	for i, r := range l {
		if i > 0 {
			b.WriteByte('\n')
		}
		order := "-"
		if r.OrderID != nil {
			order = strconv.Itoa(*r.OrderID)
		}
		fmt.Fprintf(&b, "%s\t%s\torder=%s\toutcome=%s\ttotal=%.1fms", r.CreatedAt, r.TraceID, order, r.Outcome, r.Timings["totalMs"])
		if r.Error != "" {
			fmt.Fprintf(&b, "\terror=%s", r.Error)
		}
	}
	return b.String()
}

// NewOrderLogsCommand creates the order:logs command.
func NewOrderLogsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &OrderLogsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:           "order:logs",
		Short:         "List recorded pipeline runs, newest first",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(opts.RootOptions, cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			var orderID *int
			if cmd.Flags().Changed("order") {
				orderID = &opts.OrderID
			}
			runs, err := a.db.ListRuns(cmd.Context(), orderID, opts.Limit)
			if err != nil {
				return WrapExitError(ExitFailure, "failed to list runs", err)
			}
			return a.out.Success(runListing(runs))
		},
	}

	cmd.Flags().IntVar(&opts.OrderID, "order", 0, "only runs that created this order id")
	cmd.Flags().IntVar(&opts.Limit, "limit", 20, "maximum number of runs")

	return cmd
}

// OrderExportOptions holds flags for the order:export command.
type OrderExportOptions struct {
	*RootOptions
	Out   string
	Limit int
}

type exportResult struct {
	Path   string `json:"path"`
	Orders int    `json:"orders"`
}

func (r exportResult) String() string {
	return fmt.Sprintf("exported %d orders to %s", r.Orders, r.Path)
}

// NewOrderExportCommand creates the order:export command.
func NewOrderExportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &OrderExportOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:           "order:export",
		Short:         "Write the newest orders and their items to an xlsx workbook",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(opts.RootOptions, cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			out := opts.Out
			if strings.TrimSpace(out) == "" {
				out = filepath.Join(a.cfg.OutputDir, "orders.xlsx")
			}
			orders, err := pipeline.LoadOrdersForExport(cmd.Context(), a.db, opts.Limit)
			if err != nil {
				return WrapExitError(ExitFailure, "failed to load orders", err)
			}
			if err := pipeline.ExportOrdersToXLSX(orders, out); err != nil {
				return WrapExitError(ExitFailure, "failed to write workbook", err)
			}
			return a.out.Success(exportResult{Path: out, Orders: len(orders)})
		},
	}

	cmd.Flags().StringVarP(&opts.Out, "out", "o", "", "output xlsx path (default $OUTPUT_DIR/orders.xlsx)")
	cmd.Flags().IntVar(&opts.Limit, "limit", 100, "maximum number of orders")

	return cmd
}
