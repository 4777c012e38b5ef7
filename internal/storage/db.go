package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"mailorder/internal"
)

// orderNumberAttempts bounds how often CreateOrder draws a new order number
// after a uniqueness violation.
const orderNumberAttempts = 3

type DB struct {
	conn *sql.DB
}

func Open(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	dsn := path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	// SQLite has a single writer; one connection keeps transactions from
	// tripping over SQLITE_BUSY.
	conn.SetMaxOpenConns(1)

	if _, err := conn.Exec(`PRAGMA journal_mode = WAL;`); err != nil {
		_ = conn.Close()
		return nil, err
	}

	db := &DB{conn: conn}
	if err := db.init(); err != nil {
		_ = conn.Close()
		return nil, err
	}

	return db, nil
}

func (d *DB) Close() error {
	return d.conn.Close()
}

func (d *DB) init() error {
	schema := `
CREATE TABLE IF NOT EXISTS products (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  name TEXT NOT NULL UNIQUE,
  sku TEXT,
  priceCents INTEGER NOT NULL CHECK (priceCents >= 0),
  createdAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  updatedAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS emails (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  provider TEXT NOT NULL,
  messageId TEXT NOT NULL,
  subject TEXT,
  sender TEXT,
  receivedAt TEXT,
  hash TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'fetched',
  rawRef TEXT NOT NULL,
  createdAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  updatedAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  UNIQUE(provider, messageId)
);

CREATE TABLE IF NOT EXISTS orders (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  orderNumber TEXT NOT NULL UNIQUE,
  emailId INTEGER,
  customerEmail TEXT NOT NULL,
  orderDate TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'pending',
  totalCents INTEGER NOT NULL,
  specialRequest INTEGER NOT NULL DEFAULT 0,
  emailSubject TEXT,
  emailContent TEXT NOT NULL,
  createdAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  FOREIGN KEY(emailId) REFERENCES emails(id)
);

CREATE TABLE IF NOT EXISTS order_items (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  orderId INTEGER NOT NULL,
  productId INTEGER NOT NULL,
  quantity INTEGER NOT NULL CHECK (quantity > 0),
  unitPriceCents INTEGER NOT NULL,
  subtotalCents INTEGER NOT NULL,
  FOREIGN KEY(orderId) REFERENCES orders(id),
  FOREIGN KEY(productId) REFERENCES products(id)
);
CREATE INDEX IF NOT EXISTS idx_order_items_orderId ON order_items(orderId);

CREATE TABLE IF NOT EXISTS runs (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  traceId TEXT NOT NULL,
  emailId INTEGER,
  orderId INTEGER,
  outcome TEXT NOT NULL,
  error TEXT,
  timingsJson TEXT NOT NULL,
  diagnosticsJson TEXT NOT NULL,
  createdAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  FOREIGN KEY(emailId) REFERENCES emails(id),
  FOREIGN KEY(orderId) REFERENCES orders(id)
);
CREATE INDEX IF NOT EXISTS idx_runs_orderId ON runs(orderId);

CREATE TABLE IF NOT EXISTS metadata (
  key TEXT PRIMARY KEY,
  value TEXT NOT NULL,
  updatedAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

	_, err := d.conn.Exec(schema)
	return err
}

func (d *DB) UpsertProducts(ctx context.Context, products []internal.CatalogEntry) error {
	tx, err := d.conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO products (name, sku, priceCents) VALUES (?, ?, ?)
ON CONFLICT(name) DO UPDATE SET
  sku=excluded.sku,
  priceCents=excluded.priceCents,
  updatedAt=CURRENT_TIMESTAMP
`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, p := range products {
		if _, err := stmt.ExecContext(ctx, p.Name, p.SKU, int64(p.Price)); err != nil {
			return fmt.Errorf("upsert product %q: %w", p.Name, err)
		}
	}

	return tx.Commit()
}

func (d *DB) ListProducts(ctx context.Context) ([]internal.CatalogEntry, error) {
	rows, err := d.conn.QueryContext(ctx, `SELECT id, name, sku, priceCents FROM products ORDER BY id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []internal.CatalogEntry
	for rows.Next() {
		var p internal.CatalogEntry
		var cents int64
		if err := rows.Scan(&p.ID, &p.Name, &p.SKU, &cents); err != nil {
			return nil, err
		}
		p.Price = internal.Money(cents)
		out = append(out, p)
	}

	return out, rows.Err()
}

// CreateOrder writes the order and all of its items in one transaction and
// returns the stored order. nextNumber supplies order numbers; a collision on
// the unique order number is retried with a fresh one. Any other failure
// rolls the whole write back.
func (d *DB) CreateOrder(ctx context.Context, o internal.NewOrder, nextNumber func() string) (internal.Order, error) {
	var lastErr error
	for attempt := 1; attempt <= orderNumberAttempts; attempt++ {
		order, err := d.createOrderTx(ctx, o, nextNumber())
		if err == nil {
			return order, nil
		}
		lastErr = err
		if !isUniqueViolation(err, "orders.orderNumber") {
			break
		}
	}
	return internal.Order{}, fmt.Errorf("create order: %w: %w", internal.ErrPersistence, lastErr)
}

func (d *DB) createOrderTx(ctx context.Context, o internal.NewOrder, orderNumber string) (internal.Order, error) {
	tx, err := d.conn.BeginTx(ctx, nil)
	if err != nil {
		return internal.Order{}, err
	}
	defer func() { _ = tx.Rollback() }()

	orderDate := o.OrderDate.UTC().Format(time.RFC3339)
	res, err := tx.ExecContext(ctx, `
INSERT INTO orders (orderNumber, emailId, customerEmail, orderDate, status, totalCents, specialRequest, emailSubject, emailContent)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
`, orderNumber, o.EmailID, o.CustomerEmail, orderDate, internal.OrderStatusPending, int64(o.TotalAmount), o.SpecialRequest, o.EmailSubject, o.EmailContent)
	if err != nil {
		return internal.Order{}, err
	}
	orderID, err := res.LastInsertId()
	if err != nil {
		return internal.Order{}, err
	}

	order := internal.Order{
		ID:             int(orderID),
		EmailID:        o.EmailID,
		OrderNumber:    orderNumber,
		CustomerEmail:  o.CustomerEmail,
		OrderDate:      orderDate,
		Status:         internal.OrderStatusPending,
		TotalAmount:    o.TotalAmount,
		SpecialRequest: o.SpecialRequest,
		EmailSubject:   o.EmailSubject,
		EmailContent:   o.EmailContent,
	}

	if len(o.Items) > 0 {
		stmt, err := tx.PrepareContext(ctx, `
INSERT INTO order_items (orderId, productId, quantity, unitPriceCents, subtotalCents)
VALUES (?, ?, ?, ?, ?)
`)
		if err != nil {
			return internal.Order{}, err
		}
		defer stmt.Close()

		for _, item := range o.Items {
			res, err := stmt.ExecContext(ctx, orderID, item.ProductID, item.Quantity, int64(item.UnitPrice), int64(item.Subtotal))
			if err != nil {
				return internal.Order{}, fmt.Errorf("insert item %q: %w", item.ProductName, err)
			}
			itemID, err := res.LastInsertId()
			if err != nil {
				return internal.Order{}, err
			}
			order.Items = append(order.Items, internal.OrderItem{
				ID:          int(itemID),
				OrderID:     int(orderID),
				ProductID:   item.ProductID,
				ProductName: item.ProductName,
				Quantity:    item.Quantity,
				UnitPrice:   item.UnitPrice,
				Subtotal:    item.Subtotal,
			})
		}
	}

	if err := tx.Commit(); err != nil {
		return internal.Order{}, err
	}
	return order, nil
}

func isUniqueViolation(err error, column string) bool {
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") && strings.Contains(msg, column)
}

const orderColumns = `id, emailId, orderNumber, customerEmail, orderDate, status, totalCents, specialRequest, COALESCE(emailSubject, ''), emailContent`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (internal.Order, error) {
	var o internal.Order
	var cents int64
	err := row.Scan(&o.ID, &o.EmailID, &o.OrderNumber, &o.CustomerEmail, &o.OrderDate, &o.Status, &cents, &o.SpecialRequest, &o.EmailSubject, &o.EmailContent)
	o.TotalAmount = internal.Money(cents)
	return o, err
}

// GetOrder returns the order with its items, or nil when it does not exist.
func (d *DB) GetOrder(ctx context.Context, id int) (*internal.Order, error) {
	order, err := scanOrder(d.conn.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	items, err := d.ListOrderItems(ctx, id)
	if err != nil {
		return nil, err
	}
	order.Items = items
	return &order, nil
}

func (d *DB) GetOrderByNumber(ctx context.Context, orderNumber string) (*internal.Order, error) {
	var id int
	err := d.conn.QueryRowContext(ctx, `SELECT id FROM orders WHERE orderNumber = ?`, orderNumber).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return d.GetOrder(ctx, id)
}

// GetOrderByEmailID returns the newest order created from the email, or nil.
func (d *DB) GetOrderByEmailID(ctx context.Context, emailID int) (*internal.Order, error) {
	var id int
	err := d.conn.QueryRowContext(ctx, `SELECT id FROM orders WHERE emailId = ? ORDER BY id DESC LIMIT 1`, emailID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return d.GetOrder(ctx, id)
}

// ListOrders returns the newest orders first, without items.
func (d *DB) ListOrders(ctx context.Context, limit int) ([]internal.Order, error) {
	rows, err := d.conn.QueryContext(ctx, `SELECT `+orderColumns+` FROM orders ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []internal.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (d *DB) ListOrderItems(ctx context.Context, orderID int) ([]internal.OrderItem, error) {
	rows, err := d.conn.QueryContext(ctx, `
SELECT i.id, i.orderId, i.productId, p.name, i.quantity, i.unitPriceCents, i.subtotalCents
FROM order_items i
JOIN products p ON p.id = i.productId
WHERE i.orderId = ?
ORDER BY i.id ASC
`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []internal.OrderItem
	for rows.Next() {
		var item internal.OrderItem
		var unit, subtotal int64
		if err := rows.Scan(&item.ID, &item.OrderID, &item.ProductID, &item.ProductName, &item.Quantity, &unit, &subtotal); err != nil {
			return nil, err
		}
		item.UnitPrice = internal.Money(unit)
		item.Subtotal = internal.Money(subtotal)
		out = append(out, item)
	}
	return out, rows.Err()
}

func (d *DB) CountOrders(ctx context.Context) (int, error) {
	var n int
	err := d.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM orders`).Scan(&n)
	return n, err
}

func (d *DB) CountOrderItems(ctx context.Context) (int, error) {
	var n int
	err := d.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM order_items`).Scan(&n)
	return n, err
}

func (d *DB) UpsertEmail(ctx context.Context, provider, messageID, subject, sender, receivedAt, hash, rawRef, status string) (internal.EmailRow, error) {
	_, err := d.conn.ExecContext(ctx, `
INSERT INTO emails (provider, messageId, subject, sender, receivedAt, hash, status, rawRef)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(provider, messageId) DO UPDATE SET
  subject=excluded.subject,
  sender=excluded.sender,
  receivedAt=excluded.receivedAt,
  hash=excluded.hash,
  rawRef=excluded.rawRef,
  updatedAt=CURRENT_TIMESTAMP
`, provider, messageID, subject, sender, receivedAt, hash, status, rawRef)
	if err != nil {
		return internal.EmailRow{}, err
	}

	row, err := d.GetEmailByProviderMessageID(ctx, provider, messageID)
	if err != nil {
		return internal.EmailRow{}, err
	}
	if row == nil {
		return internal.EmailRow{}, errors.New("failed to upsert email")
	}
	return *row, nil
}

const emailColumns = `id, provider, messageId, COALESCE(subject, ''), COALESCE(sender, ''), COALESCE(receivedAt, ''), hash, status, rawRef`

func scanEmail(row rowScanner) (internal.EmailRow, error) {
	var e internal.EmailRow
	err := row.Scan(&e.ID, &e.Provider, &e.MessageID, &e.Subject, &e.Sender, &e.ReceivedAt, &e.Hash, &e.Status, &e.RawRef)
	return e, err
}

func (d *DB) GetEmailByProviderMessageID(ctx context.Context, provider, messageID string) (*internal.EmailRow, error) {
	row, err := scanEmail(d.conn.QueryRowContext(ctx, `SELECT `+emailColumns+` FROM emails WHERE provider = ? AND messageId = ?`, provider, messageID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (d *DB) MustEmailByProviderMessageID(ctx context.Context, provider, messageID string) (internal.EmailRow, error) {
	row, err := d.GetEmailByProviderMessageID(ctx, provider, messageID)
	if err != nil {
		return internal.EmailRow{}, err
	}
	if row == nil {
		return internal.EmailRow{}, fmt.Errorf("email not found: provider=%s messageId=%s", provider, messageID)
	}
	return *row, nil
}

func (d *DB) ListEmailsByStatus(ctx context.Context, status string, limit int) ([]internal.EmailRow, error) {
	rows, err := d.conn.QueryContext(ctx, `SELECT `+emailColumns+` FROM emails WHERE status = ? ORDER BY receivedAt ASC, id ASC LIMIT ?`, status, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []internal.EmailRow
	for rows.Next() {
		row, err := scanEmail(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func (d *DB) UpdateEmailStatus(ctx context.Context, emailID int, status string) error {
	_, err := d.conn.ExecContext(ctx, `UPDATE emails SET status = ?, updatedAt = CURRENT_TIMESTAMP WHERE id = ?`, status, emailID)
	return err
}

func (d *DB) InsertRun(ctx context.Context, run internal.RunRow) error {
	timingsJSON, _ := json.Marshal(run.Timings)
	diagJSON, _ := json.Marshal(run.Diagnostics)
	var errText *string
	if run.Error != "" {
		errText = &run.Error
	}
	_, err := d.conn.ExecContext(ctx, `
INSERT INTO runs (traceId, emailId, orderId, outcome, error, timingsJson, diagnosticsJson)
VALUES (?, ?, ?, ?, ?, ?, ?)
`, run.TraceID, run.EmailID, run.OrderID, run.Outcome, errText, string(timingsJSON), string(diagJSON))
	return err
}

// ListRuns returns run records, newest first. A nil orderID lists all runs.
func (d *DB) ListRuns(ctx context.Context, orderID *int, limit int) ([]internal.RunRow, error) {
	query := `SELECT id, traceId, emailId, orderId, outcome, COALESCE(error, ''), timingsJson, diagnosticsJson, createdAt FROM runs`
	args := []any{}
	if orderID != nil {
		query += ` WHERE orderId = ?`
		args = append(args, *orderID)
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := d.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []internal.RunRow
	for rows.Next() {
		var r internal.RunRow
		var timingsJSON, diagJSON string
		if err := rows.Scan(&r.ID, &r.TraceID, &r.EmailID, &r.OrderID, &r.Outcome, &r.Error, &timingsJSON, &diagJSON, &r.CreatedAt); err != nil {
			return nil, err
		}
		_ = json.Unmarshal([]byte(timingsJSON), &r.Timings)
		_ = json.Unmarshal([]byte(diagJSON), &r.Diagnostics)
		out = append(out, r)
	}
	return out, rows.Err()
}

func (d *DB) SetMetadata(ctx context.Context, key, value string) error {
	_, err := d.conn.ExecContext(ctx, `
INSERT INTO metadata (key, value) VALUES (?, ?)
ON CONFLICT(key) DO UPDATE SET value = excluded.value, updatedAt = CURRENT_TIMESTAMP
`, key, value)
	return err
}

func (d *DB) GetMetadata(ctx context.Context, key string) (*string, error) {
	var value string
	err := d.conn.QueryRowContext(ctx, `SELECT value FROM metadata WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &value, nil
}
