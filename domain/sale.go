package domain

import "github.com/shopspring/decimal"

// Sale kinds. A walk-in sale carries a free-text customer name (possibly
// empty); a customer sale links a registered customer record. The two are
// mutually exclusive.
const (
	SaleKindWalkIn   = "walk-in"
	SaleKindCustomer = "customer"
)

// Sale statuses.
const (
	StatusPending   = "pending"
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
)

// Order types.
const (
	OrderTypeWalkIn   = "walk-in"
	OrderTypeDelivery = "delivery"
	OrderTypePickup   = "pickup"
)

type Sale struct {
	ID            int64           `db:"id" json:"id"`
	ReceiptNo     string          `db:"receipt_no" json:"receipt_no"`
	SaleKind      string          `db:"sale_kind" json:"sale_kind"`
	CustomerID    *int64          `db:"customer_id" json:"customer_id,omitempty"`
	CustomerName  string          `db:"customer_name" json:"customer_name"`
	OrderType     string          `db:"order_type" json:"order_type"`
	PaymentMethod string          `db:"payment_method" json:"payment_method"`
	Status        string          `db:"status" json:"status"`
	Notes         string          `db:"notes" json:"notes,omitempty"`
	TotalAmount   decimal.Decimal `db:"total_amount" json:"total_amount"`
	CreatedAt     string          `db:"created_at" json:"created_at"`
	Items         []SaleItem      `json:"items"`
}

// SaleItem is one order line. UnitPrice and ProductName are snapshots taken
// when the line was written; they never follow later catalog changes, so
// historical reports stay stable.
type SaleItem struct {
	ID          int64           `db:"id" json:"id"`
	SaleID      int64           `db:"sale_id" json:"sale_id"`
	ProductID   int64           `db:"product_id" json:"product_id"`
	ProductName string          `db:"product_name" json:"product_name"`
	Quantity    int64           `db:"quantity" json:"quantity"`
	UnitPrice   decimal.Decimal `db:"unit_price" json:"unit_price"`
	Subtotal    decimal.Decimal `db:"subtotal" json:"subtotal"`
}

// ValidOrderType reports whether t is a known order type.
func ValidOrderType(t string) bool {
	return t == OrderTypeWalkIn || t == OrderTypeDelivery || t == OrderTypePickup
}

// ValidStatus reports whether s is a known sale status.
func ValidStatus(s string) bool {
	return s == StatusPending || s == StatusCompleted || s == StatusCancelled
}
