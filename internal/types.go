package internal

import (
	"fmt"
	"math"
	"strconv"
	"time"
)

// Money is an amount in cents.
type Money int64

func MoneyFromFloat(v float64) Money {
	return Money(math.Round(v * 100))
}

func ParseMoney(s string) (Money, error) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("parse money %q: %w", s, err)
	}
	return MoneyFromFloat(f), nil
}

func (m Money) Times(qty int) Money {
	return m * Money(qty)
}

func (m Money) Float64() float64 {
	return float64(m) / 100
}

func (m Money) String() string {
	sign := ""
	v := int64(m)
	if v < 0 {
		sign = "-"
		v = -v
	}
	return fmt.Sprintf("%s%d.%02d", sign, v/100, v%100)
}

// MarshalJSON renders the amount as a JSON number with two decimals.
func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(m.String()), nil
}

func (m *Money) UnmarshalJSON(data []byte) error {
	parsed, err := ParseMoney(string(data))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

type CatalogEntry struct {
	ID    int     `json:"id" yaml:"-"`
	Name  string  `json:"name" yaml:"name"`
	SKU   *string `json:"sku,omitempty" yaml:"sku,omitempty"`
	Price Money   `json:"price" yaml:"-"`
}

// Metadata holds the header-like fields of a tagged markup message.
type Metadata struct {
	Subject string `json:"subject"`
	From    string `json:"from"`
	To      string `json:"to"`
}

// ProductMatch is one occurrence of a catalog name in the body text.
// Start and End are half-open byte offsets.
type ProductMatch struct {
	ProductName string `json:"productName"`
	Start       int    `json:"start"`
	End         int    `json:"end"`
}

func (m ProductMatch) Len() int { return m.End - m.Start }

type QuantityToken struct {
	Raw string `json:"raw"`
}

// LineItem is a parsed (product name, raw quantity) pair before catalog
// reconciliation.
type LineItem struct {
	ProductName string `json:"productName"`
	QuantityRaw string `json:"quantityRaw"`
}

// ParseResult is what an order text parser hands to the reconciler.
// Flag is nil when the parser did not report a special-request value.
type ParseResult struct {
	Items       []LineItem
	Flag        *bool
	Diagnostics Diagnostics
}

type UnmatchedProduct struct {
	Name       string  `json:"name"`
	Suggestion string  `json:"suggestion,omitempty"`
	Score      float64 `json:"score,omitempty"`
}

// Diagnostics records recoverable data loss of a pipeline run.
type Diagnostics struct {
	Warnings           []string           `json:"warnings,omitempty"`
	OverlappingMatches []ProductMatch     `json:"overlappingMatches,omitempty"`
	DroppedProducts    []string           `json:"droppedProducts,omitempty"`
	UnusedQuantities   []string           `json:"unusedQuantities,omitempty"`
	Unmatched          []UnmatchedProduct `json:"unmatched,omitempty"`
	InvalidQuantities  []LineItem         `json:"invalidQuantities,omitempty"`
}

// Merge returns a new Diagnostics holding the entries of both values.
func (d Diagnostics) Merge(other Diagnostics) Diagnostics {
	return Diagnostics{
		Warnings:           concat(d.Warnings, other.Warnings),
		OverlappingMatches: concat(d.OverlappingMatches, other.OverlappingMatches),
		DroppedProducts:    concat(d.DroppedProducts, other.DroppedProducts),
		UnusedQuantities:   concat(d.UnusedQuantities, other.UnusedQuantities),
		Unmatched:          concat(d.Unmatched, other.Unmatched),
		InvalidQuantities:  concat(d.InvalidQuantities, other.InvalidQuantities),
	}
}

func (d Diagnostics) Empty() bool {
	return len(d.Warnings) == 0 && len(d.OverlappingMatches) == 0 && len(d.DroppedProducts) == 0 &&
		len(d.UnusedQuantities) == 0 && len(d.Unmatched) == 0 && len(d.InvalidQuantities) == 0
}

func concat[T any](a, b []T) []T {
	if len(a) == 0 && len(b) == 0 {
		return nil
	}
	out := make([]T, 0, len(a)+len(b))
	out = append(out, a...)
	return append(out, b...)
}

type ReconciledItem struct {
	ProductID   int    `json:"productId"`
	ProductName string `json:"productName"`
	Quantity    int    `json:"quantity"`
	UnitPrice   Money  `json:"unitPrice"`
	Subtotal    Money  `json:"subtotal"`
}

const OrderStatusPending = "pending"

// NewOrder is the unit handed to the persister.
type NewOrder struct {
	EmailID        *int
	CustomerEmail  string
	OrderDate      time.Time
	TotalAmount    Money
	SpecialRequest bool
	EmailSubject   string
	EmailContent   string
	Items          []ReconciledItem
}

type OrderItem struct {
	ID          int    `json:"id"`
	OrderID     int    `json:"orderId"`
	ProductID   int    `json:"productId"`
	ProductName string `json:"productName"`
	Quantity    int    `json:"quantity"`
	UnitPrice   Money  `json:"unitPrice"`
	Subtotal    Money  `json:"subtotal"`
}

type Order struct {
	ID             int         `json:"id"`
	EmailID        *int        `json:"emailId,omitempty"`
	OrderNumber    string      `json:"orderNumber"`
	CustomerEmail  string      `json:"customerEmail"`
	OrderDate      string      `json:"orderDate"`
	Status         string      `json:"status"`
	TotalAmount    Money       `json:"totalAmount"`
	SpecialRequest bool        `json:"specialRequest"`
	EmailSubject   string      `json:"emailSubject"`
	EmailContent   string      `json:"emailContent"`
	Items          []OrderItem `json:"items,omitempty"`
}

// ProcessResult is the outbound shape of a successful pipeline run.
type ProcessResult struct {
	OrderID           int         `json:"orderId"`
	OrderNumber       string      `json:"orderNumber"`
	ItemsCount        int         `json:"itemsCount"`
	TotalAmount       Money       `json:"totalAmount"`
	HasSpecialRequest bool        `json:"hasSpecialRequest"`
	TraceID           string      `json:"-"`
	Diagnostics       Diagnostics `json:"-"`
}

type RunRow struct {
	ID          int                `json:"id"`
	TraceID     string             `json:"traceId"`
	EmailID     *int               `json:"emailId,omitempty"`
	OrderID     *int               `json:"orderId,omitempty"`
	Outcome     string             `json:"outcome"`
	Error       string             `json:"error,omitempty"`
	Timings     map[string]float64 `json:"timings"`
	Diagnostics Diagnostics        `json:"diagnostics"`
	CreatedAt   string             `json:"createdAt"`
}

const (
	EmailStatusFetched   = "fetched"
	EmailStatusProcessed = "processed"
	EmailStatusFailed    = "failed"
	EmailStatusExported  = "exported"
)

type EmailRow struct {
	ID         int
	Provider   string
	MessageID  string
	Subject    string
	Sender     string
	ReceivedAt string
	Hash       string
	Status     string
	RawRef     string
}

type FetchedMailMessage struct {
	Provider   string
	MessageID  string
	Subject    string
	From       string
	ReceivedAt string
	Raw        []byte
}
