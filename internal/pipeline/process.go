package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"mailorder/internal"
	"mailorder/internal/catalog"
	"mailorder/internal/config"
	"mailorder/internal/ids"
	"mailorder/internal/markup"
	"mailorder/internal/storage"
)

type ProcessingService struct {
	db           *storage.DB
	parser       OrderTextParser
	orderNumbers ids.Generator
	traceIDs     ids.Generator
	logger       *slog.Logger
	now          func() time.Time
}

func NewProcessingService(db *storage.DB, cfg config.Config, parser OrderTextParser, logger *slog.Logger) *ProcessingService {
	if logger == nil {
		logger = slog.Default()
	}
	return &ProcessingService{
		db:           db,
		parser:       parser,
		orderNumbers: ids.NewOrderNumbers(cfg.OrderNumberPrefix),
		traceIDs:     ids.TraceIDs{},
		logger:       logger,
		now:          time.Now,
	}
}

type Stats struct {
	Orders     int `json:"orders"`
	OrderItems int `json:"orderItems"`
}

// Stats counts stored orders and order lines.
func (s *ProcessingService) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	var err error
	if st.Orders, err = s.db.CountOrders(ctx); err != nil {
		return Stats{}, err
	}
	if st.OrderItems, err = s.db.CountOrderItems(ctx); err != nil {
		return Stats{}, err
	}
	return st, nil
}

// ProcessMarkup runs one tagged markup message through the pipeline and
// persists the resulting order. Either the order and all of its items are
// stored or nothing is. emailID links the order to a fetched email and may be
// nil.
func (s *ProcessingService) ProcessMarkup(ctx context.Context, text string, emailID *int) (internal.ProcessResult, error) {
	traceID := s.traceIDs.Next()
	start := time.Now()
	timings := map[string]float64{}
	logger := s.logger.With("traceId", traceID)

	res, diags, err := s.run(ctx, text, emailID, timings)
	timings["totalMs"] = msSince(start)
	res.TraceID = traceID
	res.Diagnostics = diags

	run := internal.RunRow{
		TraceID:     traceID,
		EmailID:     emailID,
		Outcome:     internal.ErrorKind(err),
		Timings:     timings,
		Diagnostics: diags,
	}
	if err != nil {
		run.Error = err.Error()
	} else {
		run.OrderID = &res.OrderID
	}
	// the run record outlives a canceled request
	if logErr := s.db.InsertRun(context.WithoutCancel(ctx), run); logErr != nil {
		logger.Warn("Could not record pipeline run", "error", logErr)
	}

	if err != nil {
		logger.Error("Order processing failed", "kind", internal.ErrorKind(err), "error", err)
		return res, err
	}

	logger.Info("Order created",
		"orderId", res.OrderID,
		"orderNumber", res.OrderNumber,
		"items", res.ItemsCount,
		"total", res.TotalAmount.String(),
		"specialRequest", res.HasSpecialRequest,
		"droppedProducts", len(diags.DroppedProducts),
		"unusedQuantities", len(diags.UnusedQuantities),
		"unmatched", len(diags.Unmatched),
		"overlapping", len(diags.OverlappingMatches),
	)
	return res, nil
}

func (s *ProcessingService) run(ctx context.Context, text string, emailID *int, timings map[string]float64) (internal.ProcessResult, internal.Diagnostics, error) {
	var diags internal.Diagnostics
	if strings.TrimSpace(text) == "" {
		return internal.ProcessResult{}, diags, fmt.Errorf("%w: empty email text", internal.ErrInvalidInput)
	}

	msg := markup.Parse(text)
	diags.Warnings = msg.Warnings

	cat, err := catalog.Load(ctx, s.db)
	if err != nil {
		return internal.ProcessResult{}, diags, fmt.Errorf("load catalog: %w: %w", internal.ErrPersistence, err)
	}

	var parsed internal.ParseResult
	if strings.TrimSpace(msg.Body) != "" {
		parseStart := time.Now()
		parsed, err = s.parser.Parse(ctx, cat.Names(), msg.Body)
		timings["parseMs"] = msSince(parseStart)
		if err != nil {
			return internal.ProcessResult{}, diags, fmt.Errorf("parse order text: %w", err)
		}
		diags = diags.Merge(parsed.Diagnostics)
	}

	special := DetectSpecialRequest(text)
	if parsed.Flag != nil {
		special = *parsed.Flag
	}

	rec := Reconcile(parsed.Items, cat, special)
	diags = diags.Merge(rec.Diagnostics)

	persistStart := time.Now()
	order, err := s.db.CreateOrder(ctx, internal.NewOrder{
		EmailID:        emailID,
		CustomerEmail:  msg.Metadata.From,
		OrderDate:      s.now(),
		TotalAmount:    rec.Total,
		SpecialRequest: rec.SpecialRequest,
		EmailSubject:   msg.Metadata.Subject,
		EmailContent:   text,
		Items:          rec.Items,
	}, s.orderNumbers.Next)
	timings["persistMs"] = msSince(persistStart)
	if err != nil {
		return internal.ProcessResult{}, diags, err
	}

	return internal.ProcessResult{
		OrderID:           order.ID,
		OrderNumber:       order.OrderNumber,
		ItemsCount:        len(order.Items),
		TotalAmount:       order.TotalAmount,
		HasSpecialRequest: order.SpecialRequest,
	}, diags, nil
}

func (s *ProcessingService) ProcessByProviderMessageID(ctx context.Context, provider, messageID string) (internal.ProcessResult, error) {
	email, err := s.db.MustEmailByProviderMessageID(ctx, provider, messageID)
	if err != nil {
		return internal.ProcessResult{}, err
	}
	return s.ProcessEmail(ctx, email)
}

// ProcessEmail converts a stored raw message to markup, runs the pipeline and
// moves the email to processed or failed.
func (s *ProcessingService) ProcessEmail(ctx context.Context, email internal.EmailRow) (internal.ProcessResult, error) {
	res, err := s.processEmail(ctx, email)
	status := internal.EmailStatusProcessed
	if err != nil {
		status = internal.EmailStatusFailed
	}
	if ctx.Err() == nil {
		if statusErr := s.db.UpdateEmailStatus(ctx, email.ID, status); statusErr != nil && err == nil {
			return res, statusErr
		}
	}
	return res, err
}

func (s *ProcessingService) processEmail(ctx context.Context, email internal.EmailRow) (internal.ProcessResult, error) {
	raw, err := os.ReadFile(email.RawRef)
	if err != nil {
		return internal.ProcessResult{}, fmt.Errorf("read raw email: %w", err)
	}
	env, err := markup.FromMIME(raw)
	if err != nil {
		return internal.ProcessResult{}, fmt.Errorf("%w: decode email %d: %w", internal.ErrInvalidInput, email.ID, err)
	}
	if env.Metadata.Subject == "" {
		env.Metadata.Subject = email.Subject
	}
	if env.Metadata.From == "" {
		env.Metadata.From = email.Sender
	}
	return s.ProcessMarkup(ctx, env.Markup(), &email.ID)
}

type BatchResult struct {
	Processed int
	Failed    int
}

// ProcessPending runs up to limit fetched emails through the pipeline with at
// most workers in flight. A failing email is marked failed and does not stop
// the batch; only cancellation of ctx does.
func (s *ProcessingService) ProcessPending(ctx context.Context, limit, workers int, provider string) (BatchResult, error) {
	pending, err := s.db.ListEmailsByStatus(ctx, internal.EmailStatusFetched, limit)
	if err != nil {
		return BatchResult{}, err
	}

	var processed, failed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(workers, 1))
	for _, email := range pending {
		if provider != "" && email.Provider != provider {
			continue
		}
		if gctx.Err() != nil {
			break
		}
		email := email
		g.Go(func() error {
			if _, err := s.ProcessEmail(gctx, email); err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				failed.Add(1)
				return nil
			}
			processed.Add(1)
			return nil
		})
	}
	err = g.Wait()
	return BatchResult{Processed: int(processed.Load()), Failed: int(failed.Load())}, err
}

func msSince(t time.Time) float64 {
	return float64(time.Since(t).Microseconds()) / 1000
}
