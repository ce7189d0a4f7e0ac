package report

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mwpos/m/domain"
)

func sampleSale(items ...domain.SaleItem) domain.Sale {
	return domain.Sale{
		ID:            12,
		CustomerName:  "Walk-in Customer",
		OrderType:     domain.OrderTypeWalkIn,
		PaymentMethod: "cash",
		Status:        domain.StatusCompleted,
		TotalAmount:   decimal.NewFromInt(0),
		CreatedAt:     "2026-08-14 10:22:31",
		Items:         items,
	}
}

func TestProjectOneRowPerItem(t *testing.T) {
	sale := sampleSale(
		domain.SaleItem{ProductID: 1, ProductName: "Round Gallon Refill (5gal)", Quantity: 2, UnitPrice: decimal.NewFromInt(25), Subtotal: decimal.NewFromInt(50)},
		domain.SaleItem{ProductID: 2, ProductName: "Faucet Pump", Quantity: 1, UnitPrice: decimal.NewFromInt(120), Subtotal: decimal.NewFromInt(120)},
		domain.SaleItem{ProductID: 3, ProductName: "Slim Gallon Refill (5gal)", Quantity: 3, UnitPrice: decimal.NewFromInt(25), Subtotal: decimal.NewFromInt(75)},
	)

	rows := Project(sale)

	require.Len(t, rows, 3)
	for i, row := range rows {
		assert.Equal(t, "2026-08-14", row.Date)
		assert.Equal(t, "Walk-in Customer", row.Customer)
		assert.Equal(t, sale.Items[i].ProductName, row.Product)
		assert.Equal(t, sale.Items[i].Quantity, row.Quantity)
		assert.True(t, sale.Items[i].Subtotal.Equal(row.Amount))
		assert.Equal(t, "cash", row.PaymentMethod)
		assert.Equal(t, domain.StatusCompleted, row.Status)
	}
}

func TestProjectItemlessSaleYieldsSentinelRow(t *testing.T) {
	rows := Project(sampleSale())

	require.Len(t, rows, 1)
	row := rows[0]
	assert.Equal(t, NoItemsLabel, row.Product)
	assert.Equal(t, int64(0), row.Quantity)
	assert.True(t, row.Amount.IsZero())
	assert.Equal(t, "Walk-in Customer", row.Customer)
	assert.Equal(t, "2026-08-14", row.Date)
}

func TestProjectFallsBackOnUnknownProduct(t *testing.T) {
	sale := sampleSale(
		domain.SaleItem{ProductID: 9, ProductName: "", Quantity: 1, Subtotal: decimal.NewFromInt(25)},
	)

	rows := Project(sale)

	require.Len(t, rows, 1)
	assert.Equal(t, UnknownProductLabel, rows[0].Product)
}

func TestRecordMatchesHeadingOrder(t *testing.T) {
	row := Row{
		Date:          "2026-08-14",
		Customer:      "Maria Santos",
		Product:       "Faucet Pump",
		Quantity:      2,
		Amount:        decimal.RequireFromString("240.00"),
		PaymentMethod: "gcash",
		Status:        domain.StatusPending,
	}

	record := row.Record()

	require.Len(t, record, len(Headings()))
	assert.Equal(t, []string{"2026-08-14", "Maria Santos", "Faucet Pump", "2", "240.00", "gcash", "pending"}, record)
}

func TestProjectAllPreservesSaleOrder(t *testing.T) {
	first := sampleSale(
		domain.SaleItem{ProductID: 1, ProductName: "A", Quantity: 1, Subtotal: decimal.NewFromInt(10)},
		domain.SaleItem{ProductID: 2, ProductName: "B", Quantity: 1, Subtotal: decimal.NewFromInt(20)},
	)
	second := sampleSale() // itemless

	rows := ProjectAll([]domain.Sale{first, second})

	require.Len(t, rows, 3)
	assert.Equal(t, "A", rows[0].Product)
	assert.Equal(t, "B", rows[1].Product)
	assert.Equal(t, NoItemsLabel, rows[2].Product)
}

func TestHeadings(t *testing.T) {
	assert.Equal(t,
		[]string{"Date", "Customer", "Product", "Quantity", "Amount", "Payment Method", "Status"},
		Headings())
}
