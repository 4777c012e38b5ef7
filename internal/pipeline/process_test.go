package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"mailorder/internal"
	"mailorder/internal/catalog"
	"mailorder/internal/config"
	"mailorder/internal/ids"
	"mailorder/internal/storage"
)

type stubParser struct {
	result internal.ParseResult
	err    error
	calls  int
}

func (p *stubParser) Parse(_ context.Context, _ []string, _ string) (internal.ParseResult, error) {
	p.calls++
	return p.result, p.err
}

func newTestService(t *testing.T, parser OrderTextParser) (*ProcessingService, *storage.DB) {
	t.Helper()
	db, err := storage.Open(filepath.Join(t.TempDir(), "app.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, db.UpsertProducts(context.Background(), []internal.CatalogEntry{
		{Name: earbuds, Price: 1000},
		{Name: bottle, Price: 2000},
	}))

	svc := NewProcessingService(db, config.Config{OrderNumberPrefix: "ORD-"}, parser, slog.New(slog.NewTextHandler(io.Discard, nil)))
	svc.orderNumbers = ids.NewSequence("ORD-")
	svc.now = func() time.Time { return time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC) }
	return svc, db
}

func markupFor(body string) string {
	return "@#Subject - Restock\n@#From - buyer@retail.example\n@#To- sales@maker.example\n@#Body- " + body
}

func TestProcessMarkupWithSpecialRequest(t *testing.T) {
	svc, db := newTestService(t, LocalParser{})
	ctx := context.Background()

	res, err := svc.ProcessMarkup(ctx, markupFor(earbuds+" 5 units "+bottle+" 2 pack special request"), nil)
	require.NoError(t, err)
	assert.Equal(t, "ORD-1", res.OrderNumber)
	assert.Equal(t, 2, res.ItemsCount)
	assert.Equal(t, internal.Money(9000), res.TotalAmount)
	assert.True(t, res.HasSpecialRequest)
	assert.NotEmpty(t, res.TraceID)

	order, err := db.GetOrder(ctx, res.OrderID)
	require.NoError(t, err)
	require.NotNil(t, order)
	assert.Equal(t, "buyer@retail.example", order.CustomerEmail)
	assert.Equal(t, "Restock", order.EmailSubject)
	assert.Equal(t, internal.OrderStatusPending, order.Status)
	assert.Equal(t, "2026-03-01T09:00:00Z", order.OrderDate)
	require.Len(t, order.Items, 2)
	assert.Equal(t, earbuds, order.Items[0].ProductName)
	assert.Equal(t, 5, order.Items[0].Quantity)
	assert.Equal(t, internal.Money(5000), order.Items[0].Subtotal)
	assert.Equal(t, bottle, order.Items[1].ProductName)
	assert.Equal(t, 2, order.Items[1].Quantity)
	assert.Equal(t, internal.Money(4000), order.Items[1].Subtotal)

	runs, err := db.ListRuns(ctx, &res.OrderID, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "ok", runs[0].Outcome)
	assert.Equal(t, res.TraceID, runs[0].TraceID)
	assert.Contains(t, runs[0].Timings, "totalMs")
}

func TestProcessMarkupWithoutSpecialRequest(t *testing.T) {
	svc, db := newTestService(t, LocalParser{})

	res, err := svc.ProcessMarkup(context.Background(), markupFor(earbuds+" 5 units "+bottle+" 2 pack"), nil)
	require.NoError(t, err)
	assert.Equal(t, 2, res.ItemsCount)
	assert.Equal(t, internal.Money(9000), res.TotalAmount)
	assert.False(t, res.HasSpecialRequest)

	items, err := db.CountOrderItems(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, items)
}

func TestProcessMarkupDropsProductWithoutQuantity(t *testing.T) {
	svc, _ := newTestService(t, LocalParser{})

	res, err := svc.ProcessMarkup(context.Background(), markupFor(earbuds+" 5 units "+bottle+" as usual"), nil)
	require.NoError(t, err)
	assert.Equal(t, 1, res.ItemsCount)
	assert.Equal(t, internal.Money(5000), res.TotalAmount)
	assert.Equal(t, []string{bottle}, res.Diagnostics.DroppedProducts)
}

func TestProcessMarkupWithoutBody(t *testing.T) {
	parser := &stubParser{}
	svc, _ := newTestService(t, parser)

	res, err := svc.ProcessMarkup(context.Background(), "@#Subject - Custom order\n@#From - buyer@retail.example", nil)
	require.NoError(t, err)
	assert.Zero(t, parser.calls)
	assert.Zero(t, res.ItemsCount)
	assert.Zero(t, res.TotalAmount)
	assert.True(t, res.HasSpecialRequest, "trigger phrase in the subject still counts")
	assert.Contains(t, res.Diagnostics.Warnings, "missing Body tag")
	assert.Contains(t, res.Diagnostics.Warnings, "missing To tag")
}

func TestProcessMarkupRejectsEmptyInput(t *testing.T) {
	svc, db := newTestService(t, LocalParser{})

	_, err := svc.ProcessMarkup(context.Background(), "  \n", nil)
	require.ErrorIs(t, err, internal.ErrInvalidInput)

	runs, err := db.ListRuns(context.Background(), nil, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "invalid_input", runs[0].Outcome)
}

func TestProcessMarkupParserFlagWins(t *testing.T) {
	flag := false
	parser := &stubParser{result: internal.ParseResult{
		Items: []internal.LineItem{{ProductName: earbuds, QuantityRaw: "3 units"}},
		Flag:  &flag,
	}}
	svc, _ := newTestService(t, parser)

	res, err := svc.ProcessMarkup(context.Background(), markupFor("special request: "+earbuds+" 3 units"), nil)
	require.NoError(t, err)
	assert.False(t, res.HasSpecialRequest)
	assert.Equal(t, internal.Money(3000), res.TotalAmount)
}

func TestProcessMarkupExternalFailurePersistsNothing(t *testing.T) {
	parser := &stubParser{err: fmt.Errorf("%w: parser returned 503", internal.ErrExternalService)}
	svc, db := newTestService(t, parser)
	ctx := context.Background()

	_, err := svc.ProcessMarkup(ctx, markupFor(earbuds+" 5 units"), nil)
	require.Error(t, err)
	assert.Equal(t, "external_service", internal.ErrorKind(err))

	n, err := db.CountOrders(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	runs, err := db.ListRuns(ctx, nil, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "external_service", runs[0].Outcome)
	assert.Nil(t, runs[0].OrderID)
}

func TestProcessMarkupPersistenceFailure(t *testing.T) {
	svc, db := newTestService(t, LocalParser{})
	require.NoError(t, db.Close())

	_, err := svc.ProcessMarkup(context.Background(), markupFor(earbuds+" 5 units"), nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, internal.ErrPersistence))
}

func TestProcessMarkupReportsUnmatchedNames(t *testing.T) {
	parser := &stubParser{result: internal.ParseResult{
		Items: []internal.LineItem{
			{ProductName: "Wireless Bluetooth Earbud Pro", QuantityRaw: "1 units"},
			{ProductName: bottle, QuantityRaw: "pack"},
		},
	}}
	svc, _ := newTestService(t, parser)

	res, err := svc.ProcessMarkup(context.Background(), markupFor("anything"), nil)
	require.NoError(t, err)
	assert.Zero(t, res.ItemsCount)
	require.Len(t, res.Diagnostics.Unmatched, 1)
	assert.Equal(t, earbuds, res.Diagnostics.Unmatched[0].Suggestion)
	require.Len(t, res.Diagnostics.InvalidQuantities, 1)
	assert.Equal(t, bottle, res.Diagnostics.InvalidQuantities[0].ProductName)
}

func TestReconcile(t *testing.T) {
	cat := catalog.New([]internal.CatalogEntry{
		{ID: 1, Name: earbuds, Price: 1000},
		{ID: 2, Name: bottle, Price: 2000},
	})

	rec := Reconcile([]internal.LineItem{
		{ProductName: earbuds, QuantityRaw: "5 units"},
		{ProductName: bottle, QuantityRaw: "2pack"},
		{ProductName: "Unknown Thing", QuantityRaw: "1 units"},
		{ProductName: earbuds, QuantityRaw: "0 units"},
	}, cat, true)

	require.Len(t, rec.Items, 2)
	assert.Equal(t, 2, rec.Items[1].Quantity)
	assert.Equal(t, internal.Money(9000), rec.Total)
	assert.True(t, rec.SpecialRequest)
	require.Len(t, rec.Diagnostics.Unmatched, 1)
	assert.Empty(t, rec.Diagnostics.Unmatched[0].Suggestion)
	assert.Len(t, rec.Diagnostics.InvalidQuantities, 1)
}

const rawEmail = "From: Buyer <buyer@retail.example>\r\n" +
	"To: sales@maker.example\r\n" +
	"Subject: Restock\r\n" +
	"Content-Type: text/plain; charset=utf-8\r\n" +
	"\r\n" +
	"Wireless Bluetooth Earbuds Pro 5 units\r\n" +
	"Stainless Steel Water Bottle 750mL 2 pack\r\n"

func TestProcessPending(t *testing.T) {
	svc, db := newTestService(t, LocalParser{})
	ctx := context.Background()
	dir := t.TempDir()

	for i, body := range []string{rawEmail, "not a mime message at all"} {
		path := filepath.Join(dir, fmt.Sprintf("m-%d.eml", i))
		require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
		_, err := db.UpsertEmail(ctx, "imap", fmt.Sprintf("m-%d", i), "Restock", "buyer@retail.example", "2026-03-01T00:00:00Z", "h", path, internal.EmailStatusFetched)
		require.NoError(t, err)
	}
	missing, err := db.UpsertEmail(ctx, "imap", "m-missing", "", "", "2026-03-02T00:00:00Z", "h", filepath.Join(dir, "gone.eml"), internal.EmailStatusFetched)
	require.NoError(t, err)

	res, err := svc.ProcessPending(ctx, 10, 2, "")
	require.NoError(t, err)
	assert.Equal(t, 3, res.Processed+res.Failed)
	assert.GreaterOrEqual(t, res.Processed, 1)

	first, err := db.MustEmailByProviderMessageID(ctx, "imap", "m-0")
	require.NoError(t, err)
	assert.Equal(t, internal.EmailStatusProcessed, first.Status)

	gone, err := db.MustEmailByProviderMessageID(ctx, "imap", missing.MessageID)
	require.NoError(t, err)
	assert.Equal(t, internal.EmailStatusFailed, gone.Status)

	orders, err := db.ListOrders(ctx, 10)
	require.NoError(t, err)
	var found bool
	for _, o := range orders {
		if o.EmailID != nil && *o.EmailID == first.ID {
			found = true
			assert.Equal(t, internal.Money(9000), o.TotalAmount)
			assert.Equal(t, "buyer@retail.example", o.CustomerEmail)
		}
	}
	assert.True(t, found)

	again, err := svc.ProcessPending(ctx, 10, 2, "")
	require.NoError(t, err)
	assert.Zero(t, again.Processed+again.Failed)
}

func TestExportOrdersToXLSX(t *testing.T) {
	svc, db := newTestService(t, LocalParser{})
	ctx := context.Background()
	_, err := svc.ProcessMarkup(ctx, markupFor(earbuds+" 5 units "+bottle+" 2 pack"), nil)
	require.NoError(t, err)

	orders, err := LoadOrdersForExport(ctx, db, 10)
	require.NoError(t, err)
	out := filepath.Join(t.TempDir(), "out", "orders.xlsx")
	require.NoError(t, ExportOrdersToXLSX(orders, out))

	f, err := excelize.OpenFile(out)
	require.NoError(t, err)
	defer f.Close()

	orderRows, err := f.GetRows(ordersSheet)
	require.NoError(t, err)
	require.Len(t, orderRows, 2)
	assert.Equal(t, "ORD-1", orderRows[1][1])

	itemRows, err := f.GetRows(itemsSheet)
	require.NoError(t, err)
	require.Len(t, itemRows, 3)
	assert.True(t, strings.HasPrefix(itemRows[1][2], "Wireless"))
}
