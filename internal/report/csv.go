package report

import (
	"encoding/csv"
	"io"

	"mwpos/m/domain"
)

// flushEvery bounds how many sales are buffered inside the csv writer before
// it is flushed to the destination.
const flushEvery = 200

// StreamCSV writes the report to w incrementally: the header first, then each
// sale's rows as they are projected. Nothing beyond the csv writer's line
// buffer is held in memory, so an unfiltered export of the full history stays
// flat no matter how large the result set is.
func StreamCSV(w io.Writer, sales []domain.Sale) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Headings()); err != nil {
		return err
	}
	for i, s := range sales {
		for _, row := range Project(s) {
			if err := cw.Write(row.Record()); err != nil {
				return err
			}
		}
		if (i+1)%flushEvery == 0 {
			cw.Flush()
			if err := cw.Error(); err != nil {
				return err
			}
		}
	}
	cw.Flush()
	return cw.Error()
}
