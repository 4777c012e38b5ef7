package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"mailorder/internal/connectors"
	"mailorder/internal/listener"
)

// MailFetchOptions holds flags for the mail:fetch command.
type MailFetchOptions struct {
	*RootOptions
	Provider string
	Label    string
	Max      int
}

type fetchOutput struct {
	Provider string `json:"provider"`
	Fetched  int    `json:"fetched"`
	Stored   int    `json:"stored"`
	Known    int    `json:"known"`
}

func (o fetchOutput) String() string {
	return fmt.Sprintf("mail fetch done provider=%s fetched=%d stored=%d known=%d", o.Provider, o.Fetched, o.Stored, o.Known)
}

// NewMailFetchCommand creates the mail:fetch command.
func NewMailFetchCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &MailFetchOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "mail:fetch",
		Short: "Download new messages from a mailbox",
		Long: `Download messages from a mailbox and store them for processing.

Providers:
  imap   IMAP server from IMAP_* settings
  gmail  Gmail API from GMAIL_* settings
  dir    a local directory of .eml files, given as --label

Example:
  mailorder mail:fetch --provider imap --label INBOX --max 20`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(opts.RootOptions, cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			provider := providerOr(opts.Provider, a.cfg.MailListenerProvider)
			conn, err := connectors.New(a.cfg, provider)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to create mail connector", err)
			}
			res, err := connectors.NewFetchService(a.db, a.cfg.RawMailDir, conn).FetchAndStore(cmd.Context(), opts.Label, opts.Max)
			if err != nil {
				return WrapExitError(ExitFailure, "failed to fetch mail", err)
			}
			a.logger.Info("Mail fetched", "provider", provider, "fetched", res.Fetched, "stored", res.Stored, "known", res.Known)
			return a.out.Success(fetchOutput{Provider: provider, Fetched: res.Fetched, Stored: res.Stored, Known: res.Known})
		},
	}

	cmd.Flags().StringVar(&opts.Provider, "provider", "", "imap|gmail|dir, defaults to MAIL_LISTENER_PROVIDER")
	cmd.Flags().StringVar(&opts.Label, "label", "INBOX", "mailbox, label, or directory")
	cmd.Flags().IntVar(&opts.Max, "max", 50, "maximum number of messages")

	return cmd
}

// MailProcessOptions holds flags for the mail:process command.
type MailProcessOptions struct {
	*RootOptions
	Provider  string
	MessageID string
	Limit     int
	Workers   int
	Parser    string
}

type batchOutput struct {
	Processed int `json:"processed"`
	Failed    int `json:"failed"`
}

func (o batchOutput) String() string {
	return fmt.Sprintf("processed pending emails processed=%d failed=%d", o.Processed, o.Failed)
}

// NewMailProcessCommand creates the mail:process command.
func NewMailProcessCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &MailProcessOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "mail:process",
		Short: "Create orders from fetched messages",
		Long: `Run fetched messages through the order pipeline.

With --message-id only that message is processed. Otherwise up to --limit
fetched messages are processed by --workers concurrent workers. A message
that fails is marked failed and does not stop the batch.

Example:
  mailorder mail:process --provider imap --limit 50 --workers 4
  mailorder mail:process --provider gmail --message-id 18c2f0a1b2c3d4e5`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMailProcess(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Provider, "provider", "", "only messages from this provider")
	cmd.Flags().StringVar(&opts.MessageID, "message-id", "", "process one stored message (requires --provider)")
	cmd.Flags().IntVar(&opts.Limit, "limit", 20, "maximum number of messages")
	cmd.Flags().IntVar(&opts.Workers, "workers", 4, "concurrent workers")
	cmd.Flags().StringVar(&opts.Parser, "parser", "", "order text parser (local|remote), defaults to PARSER_MODE")

	return cmd
}

func runMailProcess(opts *MailProcessOptions, cmd *cobra.Command) error {
	a, err := openApp(opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	processor, err := a.processor(opts.Parser)
	if err != nil {
		return err
	}

	if id := strings.TrimSpace(opts.MessageID); id != "" {
		if strings.TrimSpace(opts.Provider) == "" {
			return NewExitError(ExitCommandError, "--message-id requires --provider")
		}
		res, err := processor.ProcessByProviderMessageID(cmd.Context(), opts.Provider, id)
		if err != nil {
			_ = a.out.Failure(err, res.TraceID)
			return pipelineExitError("failed to process message", err)
		}
		return a.out.SuccessWithTrace(processOutput{ProcessResult: res, TraceID: res.TraceID, Diagnostics: res.Diagnostics}, res.TraceID)
	}

	res, err := processor.ProcessPending(cmd.Context(), opts.Limit, opts.Workers, opts.Provider)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to process pending messages", err)
	}
	return a.out.Success(batchOutput{Processed: res.Processed, Failed: res.Failed})
}

// MailListenOptions holds flags for the mail:listen command.
type MailListenOptions struct {
	*RootOptions
	Parser string
}

// NewMailListenCommand creates the mail:listen command.
func NewMailListenCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &MailListenOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "mail:listen",
		Short: "Poll the mailbox and process new messages until interrupted",
		Long: `Repeat fetch and process cycles on MAIL_LISTENER_INTERVAL until the
process receives SIGINT or SIGTERM. The mailbox and batch sizes come from the
MAIL_LISTENER_* settings.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(opts.RootOptions, cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			svc, err := newListener(a, opts.Parser)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Listening for order emails. Press Ctrl-C to stop.")
			if err := svc.Run(cmd.Context()); err != nil && !errors.Is(err, context.Canceled) {
				return WrapExitError(ExitFailure, "listener stopped", err)
			}
			a.logger.Info("Listener stopped")
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.Parser, "parser", "", "order text parser (local|remote), defaults to PARSER_MODE")

	return cmd
}

func newListener(a *app, parserMode string) (*listener.Service, error) {
	conn, err := connectors.New(a.cfg, a.cfg.MailListenerProvider)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to create mail connector", err)
	}
	processor, err := a.processor(parserMode)
	if err != nil {
		return nil, err
	}
	return listener.NewService(a.db, a.cfg, conn, processor, a.logger), nil
}

func providerOr(provider, fallback string) string {
	if p := strings.ToLower(strings.TrimSpace(provider)); p != "" {
		return p
	}
	return strings.ToLower(strings.TrimSpace(fallback))
}
