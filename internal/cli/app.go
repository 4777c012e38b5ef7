package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"mailorder/internal/config"
	"mailorder/internal/logging"
	"mailorder/internal/pipeline"
	"mailorder/internal/remoteparser"
	"mailorder/internal/storage"
)

// app is the per-invocation wiring shared by the commands.
type app struct {
	cfg    config.Config
	db     *storage.DB
	logger *slog.Logger
	out    *OutputFormatter
}

func openApp(opts *RootOptions, cmd *cobra.Command) (*app, error) {
	load := opts.LoadConfig
	if load == nil {
		load = config.Load
	}
	cfg, err := load()
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load config", err)
	}
	if opts.Verbose {
		cfg.LogLevel = "debug"
	}
	logger := logging.Setup(cfg)

	db, err := storage.Open(cfg.DBPath)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	logger.Debug("Database ready", "path", cfg.DBPath)

	return &app{
		cfg:    cfg,
		db:     db,
		logger: logger,
		out:    &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()},
	}, nil
}

func (a *app) Close() {
	if err := a.db.Close(); err != nil {
		a.logger.Error("Error closing database", "error", err)
	}
}

// parser picks the order text parser; an empty mode means the configured one.
func (a *app) parser(mode string) (pipeline.OrderTextParser, error) {
	if strings.TrimSpace(mode) == "" {
		mode = a.cfg.ParserMode
	}
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case config.ParserLocal:
		return pipeline.LocalParser{}, nil
	case config.ParserRemote:
		if err := a.cfg.Require("PARSER_URL", a.cfg.ParserURL); err != nil {
			return nil, WrapExitError(ExitCommandError, "remote parser is not configured", err)
		}
		return remoteparser.NewClient(a.cfg), nil
	default:
		return nil, NewExitError(ExitCommandError, fmt.Sprintf("unsupported parser %q: must be local or remote", mode))
	}
}

func (a *app) processor(mode string) (*pipeline.ProcessingService, error) {
	parser, err := a.parser(mode)
	if err != nil {
		return nil, err
	}
	return pipeline.NewProcessingService(a.db, a.cfg, parser, a.logger), nil
}

// readInput reads a file, or stdin when input is "-".
func readInput(cmd *cobra.Command, input string) ([]byte, error) {
	if input == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	return os.ReadFile(input)
}
