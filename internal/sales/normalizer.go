package sales

import (
	"errors"
	"sort"
)

// ErrNoItemsSelected is returned when a new sale would be recorded without a
// single line item.
var ErrNoItemsSelected = errors.New("please select at least one product")

// RawItem is one product entry exactly as the register UI submits it. The
// payload keys the items map by product id already; the id inside the value
// is authoritative.
type RawItem struct {
	ProductID int64 `json:"product_id"`
	Quantity  int64 `json:"quantity"`
}

// LineItem is a normalized order line: a product and a positive quantity.
type LineItem struct {
	ProductID int64
	Quantity  int64
}

// Normalize filters raw register input down to the lines worth persisting.
// Entries with a zero or negative quantity are dropped silently, never
// rejected. Entries referencing the same product are merged by summing their
// quantities. The result is ordered by product id so repeated submissions of
// the same cart normalize identically.
func Normalize(raw map[string]RawItem) []LineItem {
	byProduct := make(map[int64]int64, len(raw))
	for _, it := range raw {
		if it.Quantity <= 0 {
			continue
		}
		byProduct[it.ProductID] += it.Quantity
	}

	items := make([]LineItem, 0, len(byProduct))
	for id, qty := range byProduct {
		items = append(items, LineItem{ProductID: id, Quantity: qty})
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ProductID < items[j].ProductID })
	return items
}

// NormalizeForCreate applies the creation guard on top of Normalize: a new
// sale must carry at least one line. Updates deliberately skip this guard —
// emptying a sale before voiding it is legitimate.
func NormalizeForCreate(raw map[string]RawItem) ([]LineItem, error) {
	items := Normalize(raw)
	if len(items) == 0 {
		return nil, ErrNoItemsSelected
	}
	return items, nil
}
