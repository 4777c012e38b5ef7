package cli

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"mailorder/internal/httpapi"
)

const shutdownTimeout = 10 * time.Second

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Addr   string
	Parser string
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the order pipeline over HTTP",
		Long: `Serve POST /process-email, POST /api/parser and GET /healthz.

Example:
  mailorder serve --addr :8080`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Addr, "addr", "", "listen address, defaults to :$PORT")
	cmd.Flags().StringVar(&opts.Parser, "parser", "", "order text parser (local|remote), defaults to PARSER_MODE")

	return cmd
}

func runServe(opts *ServeOptions, cmd *cobra.Command) error {
	a, err := openApp(opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	processor, err := a.processor(opts.Parser)
	if err != nil {
		return err
	}

	addr := opts.Addr
	if addr == "" {
		addr = net.JoinHostPort("", a.cfg.HTTPPort)
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           httpapi.NewHandler(processor, a.logger).Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx := cmd.Context()
	shutdownDone := make(chan struct{})
	stop := context.AfterFunc(ctx, func() {
		defer close(shutdownDone)
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			a.logger.Error("HTTP shutdown failed", "error", err)
		}
	})

	a.logger.Info("HTTP server listening", "addr", addr)
	err = srv.ListenAndServe()
	if !stop() {
		<-shutdownDone
	}
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return WrapExitError(ExitFailure, "http server failed", err)
	}
	a.logger.Info("HTTP server stopped")
	return nil
}
