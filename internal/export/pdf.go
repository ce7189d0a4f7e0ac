package export

import (
	"io"

	"github.com/go-pdf/fpdf"
)

// writePDF renders the export as a landscape A4 table: title, heading row,
// then one table row per data row.
func writePDF(e Export, w io.Writer) error {
	pdf := fpdf.New("L", "mm", "A4", "")
	pdf.SetAutoPageBreak(true, 15)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 14)
	pdf.CellFormat(0, 10, e.Title(), "", 1, "L", false, 0, "")
	pdf.Ln(2)

	headings := e.Headings()
	widths := columnWidths(pdf, len(headings))

	pdf.SetFont("Helvetica", "B", 9)
	pdf.SetFillColor(230, 230, 230)
	for i, h := range headings {
		pdf.CellFormat(widths[i], 8, h, "1", 0, "L", true, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Helvetica", "", 9)
	for _, row := range e.Rows() {
		for i, cell := range row {
			if i >= len(widths) {
				break
			}
			pdf.CellFormat(widths[i], 7, cell, "1", 0, "L", false, 0, "")
		}
		pdf.Ln(-1)
	}

	return pdf.Output(w)
}

// columnWidths splits the printable width evenly across n columns.
func columnWidths(pdf *fpdf.Fpdf, n int) []float64 {
	pageW, _ := pdf.GetPageSize()
	left, _, right, _ := pdf.GetMargins()
	usable := pageW - left - right

	widths := make([]float64, n)
	for i := range widths {
		widths[i] = usable / float64(n)
	}
	return widths
}
