package storage

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mailorder/internal"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "app.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func seedProducts(t *testing.T, db *DB) []internal.CatalogEntry {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, db.UpsertProducts(ctx, []internal.CatalogEntry{
		{Name: "Wireless Bluetooth Earbuds Pro", Price: 1000},
		{Name: "Stainless Steel Water Bottle 750mL", Price: 2000},
	}))
	products, err := db.ListProducts(ctx)
	require.NoError(t, err)
	require.Len(t, products, 2)
	return products
}

func sequence(prefix string) func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("%s%d", prefix, n)
	}
}

func TestUpsertProductsUpdatesByName(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	seedProducts(t, db)

	sku := "WBE-PRO"
	require.NoError(t, db.UpsertProducts(ctx, []internal.CatalogEntry{
		{Name: "Wireless Bluetooth Earbuds Pro", SKU: &sku, Price: 1250},
	}))

	products, err := db.ListProducts(ctx)
	require.NoError(t, err)
	require.Len(t, products, 2)
	assert.Equal(t, "Wireless Bluetooth Earbuds Pro", products[0].Name)
	assert.Equal(t, internal.Money(1250), products[0].Price)
	require.NotNil(t, products[0].SKU)
	assert.Equal(t, "WBE-PRO", *products[0].SKU)
	assert.Nil(t, products[1].SKU)
}

func TestCreateOrderWritesOrderAndItems(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	products := seedProducts(t, db)

	order, err := db.CreateOrder(ctx, internal.NewOrder{
		CustomerEmail:  "buyer@example.com",
		OrderDate:      time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		TotalAmount:    9000,
		SpecialRequest: true,
		EmailSubject:   "Order",
		EmailContent:   "body",
		Items: []internal.ReconciledItem{
			{ProductID: products[0].ID, ProductName: products[0].Name, Quantity: 5, UnitPrice: 1000, Subtotal: 5000},
			{ProductID: products[1].ID, ProductName: products[1].Name, Quantity: 2, UnitPrice: 2000, Subtotal: 4000},
		},
	}, sequence("ORD-"))
	require.NoError(t, err)
	assert.Equal(t, "ORD-1", order.OrderNumber)
	assert.Equal(t, internal.OrderStatusPending, order.Status)
	assert.Len(t, order.Items, 2)

	stored, err := db.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, "2026-01-02T03:04:05Z", stored.OrderDate)
	assert.Equal(t, internal.Money(9000), stored.TotalAmount)
	assert.True(t, stored.SpecialRequest)
	require.Len(t, stored.Items, 2)
	assert.Equal(t, "Wireless Bluetooth Earbuds Pro", stored.Items[0].ProductName)
	assert.Equal(t, 5, stored.Items[0].Quantity)
	assert.Equal(t, internal.Money(4000), stored.Items[1].Subtotal)

	byNumber, err := db.GetOrderByNumber(ctx, "ORD-1")
	require.NoError(t, err)
	require.NotNil(t, byNumber)
	assert.Equal(t, order.ID, byNumber.ID)
}

func TestCreateOrderWithoutItems(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	order, err := db.CreateOrder(ctx, internal.NewOrder{
		CustomerEmail: "buyer@example.com",
		OrderDate:     time.Now(),
		EmailContent:  "nothing to order",
	}, sequence("ORD-"))
	require.NoError(t, err)
	assert.Empty(t, order.Items)

	n, err := db.CountOrders(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestCreateOrderRollsBackOnItemFailure(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	products := seedProducts(t, db)

	_, err := db.CreateOrder(ctx, internal.NewOrder{
		CustomerEmail: "buyer@example.com",
		OrderDate:     time.Now(),
		EmailContent:  "body",
		Items: []internal.ReconciledItem{
			{ProductID: products[0].ID, ProductName: products[0].Name, Quantity: 1, UnitPrice: 1000, Subtotal: 1000},
			{ProductID: 9999, ProductName: "ghost", Quantity: 1, UnitPrice: 1, Subtotal: 1},
		},
	}, sequence("ORD-"))
	require.Error(t, err)
	assert.ErrorIs(t, err, internal.ErrPersistence)

	orders, err := db.CountOrders(ctx)
	require.NoError(t, err)
	assert.Zero(t, orders)
	items, err := db.CountOrderItems(ctx)
	require.NoError(t, err)
	assert.Zero(t, items)
}

func TestCreateOrderRetriesOnDuplicateNumber(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	newOrder := internal.NewOrder{CustomerEmail: "a@example.com", OrderDate: time.Now(), EmailContent: "x"}

	first, err := db.CreateOrder(ctx, newOrder, func() string { return "ORD-A" })
	require.NoError(t, err)

	numbers := []string{"ORD-A", "ORD-B"}
	next := func() string {
		n := numbers[0]
		numbers = numbers[1:]
		return n
	}
	second, err := db.CreateOrder(ctx, newOrder, next)
	require.NoError(t, err)
	assert.Equal(t, "ORD-A", first.OrderNumber)
	assert.Equal(t, "ORD-B", second.OrderNumber)

	_, err = db.CreateOrder(ctx, newOrder, func() string { return "ORD-A" })
	require.Error(t, err)
	assert.ErrorIs(t, err, internal.ErrPersistence)
}

func TestRunsRoundTrip(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	order, err := db.CreateOrder(ctx, internal.NewOrder{CustomerEmail: "a@example.com", OrderDate: time.Now(), EmailContent: "x"}, sequence("ORD-"))
	require.NoError(t, err)

	require.NoError(t, db.InsertRun(ctx, internal.RunRow{
		TraceID: "trace-1",
		OrderID: &order.ID,
		Outcome: "ok",
		Timings: map[string]float64{"parse": 1.5},
		Diagnostics: internal.Diagnostics{
			DroppedProducts: []string{"Stainless Steel Water Bottle 750mL"},
		},
	}))
	require.NoError(t, db.InsertRun(ctx, internal.RunRow{TraceID: "trace-2", Outcome: "invalid_input", Error: "empty body"}))

	runs, err := db.ListRuns(ctx, &order.ID, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "trace-1", runs[0].TraceID)
	assert.Equal(t, 1.5, runs[0].Timings["parse"])
	assert.Equal(t, []string{"Stainless Steel Water Bottle 750mL"}, runs[0].Diagnostics.DroppedProducts)

	all, err := db.ListRuns(ctx, nil, 10)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "empty body", all[0].Error)
}

func TestEmailsAndMetadata(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	row, err := db.UpsertEmail(ctx, "imap", "m-1", "Order", "a@example.com", "2026-01-01T00:00:00Z", "h1", "/raw/m-1.eml", "fetched")
	require.NoError(t, err)
	assert.Equal(t, "fetched", row.Status)

	pending, err := db.ListEmailsByStatus(ctx, "fetched", 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	require.NoError(t, db.UpdateEmailStatus(ctx, row.ID, "processed"))
	got, err := db.MustEmailByProviderMessageID(ctx, "imap", "m-1")
	require.NoError(t, err)
	assert.Equal(t, "processed", got.Status)

	_, err = db.MustEmailByProviderMessageID(ctx, "imap", "missing")
	require.Error(t, err)

	v, err := db.GetMetadata(ctx, "k")
	require.NoError(t, err)
	assert.Nil(t, v)
	require.NoError(t, db.SetMetadata(ctx, "k", "v1"))
	require.NoError(t, db.SetMetadata(ctx, "k", "v2"))
	v, err = db.GetMetadata(ctx, "k")
	require.NoError(t, err)
	require.NotNil(t, v)
	assert.Equal(t, "v2", *v)
}
