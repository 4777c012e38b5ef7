package pipeline

import (
	"context"
	"os"
	"path/filepath"

	"github.com/xuri/excelize/v2"

	"mailorder/internal"
	"mailorder/internal/storage"
)

const (
	ordersSheet = "orders"
	itemsSheet  = "items"
)

// LoadOrdersForExport reads the newest orders with their items.
func LoadOrdersForExport(ctx context.Context, db *storage.DB, limit int) ([]internal.Order, error) {
	orders, err := db.ListOrders(ctx, limit)
	if err != nil {
		return nil, err
	}
	for i := range orders {
		items, err := db.ListOrderItems(ctx, orders[i].ID)
		if err != nil {
			return nil, err
		}
		orders[i].Items = items
	}
	return orders, nil
}

// ExportOrdersToXLSX writes one sheet of orders and one sheet of their items.
func ExportOrdersToXLSX(orders []internal.Order, outputPath string) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), ordersSheet); err != nil {
		return err
	}
	if _, err := f.NewSheet(itemsSheet); err != nil {
		return err
	}

	writeRow(f, ordersSheet, 1, "order_id", "order_number", "customer_email", "order_date", "status",
		"total_amount", "special_request", "email_subject", "items_count")
	writeRow(f, itemsSheet, 1, "order_number", "product_id", "product_name", "quantity", "unit_price", "subtotal")

	itemRow := 2
	for i, o := range orders {
		writeRow(f, ordersSheet, i+2, o.ID, o.OrderNumber, o.CustomerEmail, o.OrderDate, o.Status,
			o.TotalAmount.Float64(), o.SpecialRequest, o.EmailSubject, len(o.Items))
		for _, item := range o.Items {
			writeRow(f, itemsSheet, itemRow, o.OrderNumber, item.ProductID, item.ProductName, item.Quantity,
				item.UnitPrice.Float64(), item.Subtotal.Float64())
			itemRow++
		}
	}

	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return err
	}
	return f.SaveAs(outputPath)
}

func writeRow(f *excelize.File, sheet string, row int, values ...any) {
	for col, value := range values {
		cell, _ := excelize.CoordinatesToCellName(col+1, row)
		_ = f.SetCellValue(sheet, cell, value)
	}
}
