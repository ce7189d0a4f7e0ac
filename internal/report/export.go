package report

import "mwpos/m/domain"

// SalesExport adapts a report result set to the document export descriptor
// consumed by the export package. Its rows come from the same projection as
// every other channel.
type SalesExport struct {
	sales []domain.Sale
}

func NewSalesExport(sales []domain.Sale) *SalesExport {
	return &SalesExport{sales: sales}
}

func (e *SalesExport) Title() string {
	return "Sales Report"
}

func (e *SalesExport) Headings() []string {
	return Headings()
}

func (e *SalesExport) Rows() [][]string {
	projected := ProjectAll(e.sales)
	rows := make([][]string, 0, len(projected))
	for _, r := range projected {
		rows = append(rows, r.Record())
	}
	return rows
}
