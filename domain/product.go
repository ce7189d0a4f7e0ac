package domain

import "github.com/shopspring/decimal"

type Product struct {
	ID        int64           `db:"id" json:"id"`
	Name      string          `db:"name" json:"name"`
	Price     decimal.Decimal `db:"price" json:"price"`
	CreatedAt string          `db:"created_at" json:"created_at"`
}
