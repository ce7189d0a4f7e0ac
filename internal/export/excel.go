package export

import (
	"io"

	"github.com/xuri/excelize/v2"
)

// writeXLSX renders the export as a single-sheet workbook named after the
// export title, with the heading row on row 1.
func writeXLSX(e Export, w io.Writer) error {
	f := excelize.NewFile()
	defer f.Close()

	sheet := e.Title()
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return err
	}

	if err := f.SetSheetRow(sheet, "A1", rowPtr(e.Headings())); err != nil {
		return err
	}
	for i, row := range e.Rows() {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, rowPtr(row)); err != nil {
			return err
		}
	}

	return f.Write(w)
}

func rowPtr(cells []string) *[]interface{} {
	row := make([]interface{}, len(cells))
	for i, c := range cells {
		row[i] = c
	}
	return &row
}
