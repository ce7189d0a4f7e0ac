// Package export renders tabular documents for download. Renderers are
// selected by filename extension and all consume the same Export descriptor,
// so every format serializes the identical row data.
package export

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"path"
	"strconv"
)

// ErrRenderFailed marks a document renderer failure. Handlers recover it into
// a user-visible error the same way persistence failures are reported.
var ErrRenderFailed = errors.New("export render failed")

// Export describes a document handed to a renderer: a title, a fixed heading
// row and the data rows beneath it.
type Export interface {
	Title() string
	Headings() []string
	Rows() [][]string
}

// Download renders the export and writes it to w as a file attachment. The
// document is rendered into a buffer before any header is written, so a
// render failure leaves the response untouched and recoverable.
func Download(w http.ResponseWriter, e Export, filename string) error {
	var (
		buf         bytes.Buffer
		contentType string
		err         error
	)
	switch ext := path.Ext(filename); ext {
	case ".xlsx":
		contentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
		err = writeXLSX(e, &buf)
	case ".pdf":
		contentType = "application/pdf"
		err = writePDF(e, &buf)
	default:
		return fmt.Errorf("%w: unsupported format %q", ErrRenderFailed, ext)
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRenderFailed, err)
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	_, err = w.Write(buf.Bytes())
	return err
}
