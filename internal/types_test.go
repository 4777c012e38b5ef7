package internal

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMoney(t *testing.T) {
	price := MoneyFromFloat(19.99)
	assert.Equal(t, Money(1999), price)
	assert.Equal(t, "59.97", price.Times(3).String())
	assert.Equal(t, "-0.05", Money(-5).String())

	blob, err := json.Marshal(struct {
		Total Money `json:"total"`
	}{Total: 9000})
	require.NoError(t, err)
	assert.JSONEq(t, `{"total": 90.00}`, string(blob))

	var back struct {
		Total Money `json:"total"`
	}
	require.NoError(t, json.Unmarshal(blob, &back))
	assert.Equal(t, Money(9000), back.Total)
}

func TestDiagnosticsMerge(t *testing.T) {
	a := Diagnostics{Warnings: []string{"missing To tag"}}
	b := Diagnostics{DroppedProducts: []string{"UV Water Purification System"}}
	merged := a.Merge(b)

	assert.Equal(t, []string{"missing To tag"}, merged.Warnings)
	assert.Equal(t, []string{"UV Water Purification System"}, merged.DroppedProducts)
	assert.False(t, merged.Empty())
	assert.True(t, Diagnostics{}.Merge(Diagnostics{}).Empty())
	assert.Len(t, a.DroppedProducts, 0)
}

func TestErrorKind(t *testing.T) {
	assert.Equal(t, "ok", ErrorKind(nil))
	assert.Equal(t, "external_service", ErrorKind(fmt.Errorf("parser: %w", ErrExternalService)))
	assert.Equal(t, "persistence", ErrorKind(fmt.Errorf("create order: %w", ErrPersistence)))
	assert.Equal(t, "canceled", ErrorKind(fmt.Errorf("run: %w", context.Canceled)))
	assert.Equal(t, "internal", ErrorKind(fmt.Errorf("boom")))
}
