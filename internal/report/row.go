package report

import (
	"strconv"

	"github.com/shopspring/decimal"

	"mwpos/m/domain"
)

// NoItemsLabel is the sentinel product name for a sale with no line items.
// An itemless sale still has to surface in reports, or it disappears from
// audits entirely.
const NoItemsLabel = "No items"

// UnknownProductLabel stands in when an item's product-name snapshot is empty.
const UnknownProductLabel = "Unknown Product"

// Headings is the fixed header row shared by every report channel.
func Headings() []string {
	return []string{"Date", "Customer", "Product", "Quantity", "Amount", "Payment Method", "Status"}
}

// Row is the channel-agnostic unit of report output: one per line item, or a
// single sentinel row for an itemless sale.
type Row struct {
	Date          string          `json:"date"`
	Customer      string          `json:"customer"`
	Product       string          `json:"product"`
	Quantity      int64           `json:"quantity"`
	Amount        decimal.Decimal `json:"amount"`
	PaymentMethod string          `json:"payment_method"`
	Status        string          `json:"status"`
}

// Record renders the row as strings in heading order.
func (r Row) Record() []string {
	return []string{
		r.Date,
		r.Customer,
		r.Product,
		strconv.FormatInt(r.Quantity, 10),
		r.Amount.StringFixed(2),
		r.PaymentMethod,
		r.Status,
	}
}

// Project flattens one sale into its report rows. Every channel must consume
// sales through this function; it is the only place that knows how a sale
// decomposes into rows.
func Project(s domain.Sale) []Row {
	if len(s.Items) == 0 {
		return []Row{{
			Date:          saleDate(s),
			Customer:      s.CustomerName,
			Product:       NoItemsLabel,
			Quantity:      0,
			Amount:        decimal.Zero,
			PaymentMethod: s.PaymentMethod,
			Status:        s.Status,
		}}
	}

	rows := make([]Row, 0, len(s.Items))
	for _, it := range s.Items {
		name := it.ProductName
		if name == "" {
			name = UnknownProductLabel
		}
		rows = append(rows, Row{
			Date:          saleDate(s),
			Customer:      s.CustomerName,
			Product:       name,
			Quantity:      it.Quantity,
			Amount:        it.Subtotal,
			PaymentMethod: s.PaymentMethod,
			Status:        s.Status,
		})
	}
	return rows
}

// ProjectAll flattens a result set in order.
func ProjectAll(sales []domain.Sale) []Row {
	rows := make([]Row, 0, len(sales))
	for _, s := range sales {
		rows = append(rows, Project(s)...)
	}
	return rows
}

// saleDate reduces the stored timestamp to its date part.
func saleDate(s domain.Sale) string {
	if len(s.CreatedAt) >= 10 {
		return s.CreatedAt[:10]
	}
	return s.CreatedAt
}
