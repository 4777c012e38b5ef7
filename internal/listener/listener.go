// Package listener polls a mailbox and feeds new messages to the order
// pipeline.
package listener

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"mailorder/internal"
	"mailorder/internal/config"
	"mailorder/internal/connectors"
	"mailorder/internal/pipeline"
	"mailorder/internal/storage"
)

type Service struct {
	db        *storage.DB
	cfg       config.Config
	provider  string
	fetcher   *connectors.FetchService
	processor *pipeline.ProcessingService
	logger    *slog.Logger
}

func NewService(db *storage.DB, cfg config.Config, connector connectors.MailConnector, processor *pipeline.ProcessingService, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	provider := strings.ToLower(strings.TrimSpace(cfg.MailListenerProvider))
	return &Service{
		db:        db,
		cfg:       cfg,
		provider:  provider,
		fetcher:   connectors.NewFetchService(db, cfg.RawMailDir, connector),
		processor: processor,
		logger:    logger.With("provider", provider),
	}
}

// Run repeats fetch and process cycles until ctx is done. A failed cycle is
// logged and retried on the next tick.
func (s *Service) Run(ctx context.Context) error {
	ticker := time.NewTicker(max(s.cfg.MailListenerInterval, time.Second))
	defer ticker.Stop()

	for {
		if _, err := s.RunCycle(ctx); err != nil && ctx.Err() == nil {
			s.logger.Error("Listener cycle failed", "error", err)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

type CycleResult struct {
	connectors.FetchResult
	pipeline.BatchResult
	Exported int
}

func (s *Service) RunCycle(ctx context.Context) (CycleResult, error) {
	var res CycleResult
	fetched, err := s.fetcher.FetchAndStore(ctx, s.cfg.MailListenerLabel, s.cfg.MailListenerFetchMax)
	res.FetchResult = fetched
	if err != nil {
		return res, fmt.Errorf("fetch: %w", err)
	}

	batch, err := s.processor.ProcessPending(ctx, s.cfg.MailListenerProcessBatch, s.cfg.MailListenerWorkers, s.provider)
	res.BatchResult = batch
	if err != nil {
		return res, fmt.Errorf("process: %w", err)
	}

	if s.cfg.MailListenerAutoExport {
		exported, err := s.exportProcessed(ctx)
		res.Exported = exported
		if err != nil {
			return res, fmt.Errorf("export: %w", err)
		}
	}

	s.logger.Info("Listener cycle done",
		"fetched", res.Fetched,
		"stored", res.Stored,
		"known", res.Known,
		"processed", res.Processed,
		"failed", res.Failed,
		"exported", res.Exported,
	)
	return res, nil
}

// exportProcessed writes one workbook per processed email of this provider
// and marks the email exported.
func (s *Service) exportProcessed(ctx context.Context) (int, error) {
	emails, err := s.db.ListEmailsByStatus(ctx, internal.EmailStatusProcessed, 200)
	if err != nil {
		return 0, err
	}

	exported := 0
	for _, email := range emails {
		if email.Provider != s.provider {
			continue
		}
		order, err := s.db.GetOrderByEmailID(ctx, email.ID)
		if err != nil {
			return exported, err
		}
		if order == nil {
			continue
		}
		filename := fmt.Sprintf("%d_%s.xlsx", email.ID, sanitizeMessageID(email.MessageID))
		outputPath := filepath.Join(s.cfg.OutputDir, "listener", filename)
		if err := pipeline.ExportOrdersToXLSX([]internal.Order{*order}, outputPath); err != nil {
			return exported, err
		}
		if err := s.db.UpdateEmailStatus(ctx, email.ID, internal.EmailStatusExported); err != nil {
			return exported, err
		}
		exported++
	}
	return exported, nil
}

func sanitizeMessageID(input string) string {
	repl := strings.NewReplacer("<", "_", ">", "_", ":", "_", "/", "_", "\\", "_", "|", "_", "?", "_", "*", "_", " ", "_", "@", "_")
	out := repl.Replace(input)
	if len(out) > 120 {
		out = out[:120]
	}
	return out
}
