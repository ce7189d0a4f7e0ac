package report

import (
	"fmt"
	"time"

	"mwpos/m/domain"
)

// TypeAll matches every order type.
const TypeAll = "all"

// Filter narrows a sales report. Zero values leave the corresponding
// dimension unconstrained. The same filter drives the paginated view, both
// export channels and the grand total, so all of them always agree on which
// sales are in the report.
type Filter struct {
	Type      string `json:"type"`
	DateStart string `json:"date_start,omitempty"` // YYYY-MM-DD, inclusive
	DateEnd   string `json:"date_end,omitempty"`   // YYYY-MM-DD, inclusive
	ProductID int64  `json:"product_id,omitempty"` // 0 = any product
}

// Validate checks the filter fields. An empty Type is normalized to TypeAll
// by the caller before validation.
func (f Filter) Validate() error {
	if f.Type != TypeAll && !domain.ValidOrderType(f.Type) {
		return fmt.Errorf("unknown report type %q", f.Type)
	}
	for _, d := range []string{f.DateStart, f.DateEnd} {
		if d == "" {
			continue
		}
		if _, err := time.Parse("2006-01-02", d); err != nil {
			return fmt.Errorf("date %q must be in YYYY-MM-DD format", d)
		}
	}
	if f.ProductID < 0 {
		return fmt.Errorf("product_id must be positive")
	}
	return nil
}
