// Package output turns a rendered document into the bytes persisted on disk.
package output

import (
	"fmt"
	"os"

	"github.com/spf13/afero"
	"github.com/use-agent/prerender/models"
)

// Format returns the bytes to persist for markup. When statusCode is set,
// the document is prefixed with a parseable status comment and a blank line.
func Format(markup string, statusCode *int) []byte {
	if statusCode == nil {
		return []byte(markup)
	}
	return []byte(fmt.Sprintf("<!-- http_status_code=%d -->\n\n%s", *statusCode, markup))
}

// Writer persists documents to a filesystem.
type Writer struct {
	fs   afero.Fs
	perm os.FileMode
}

// NewWriter returns a Writer on fs. A nil fs means the OS filesystem.
func NewWriter(fs afero.Fs) *Writer {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &Writer{fs: fs, perm: 0o644}
}

// Write replaces the file at path with data. The file is truncated and
// rewritten in place; the parent directory must exist.
func (w *Writer) Write(path string, data []byte) error {
	if err := afero.WriteFile(w.fs, path, data, w.perm); err != nil {
		return models.NewRenderError(
			models.ErrCodeWriteFailed,
			"Could not write content to "+path,
			err,
		)
	}
	return nil
}

// WriteOutcome formats a successful outcome and writes it to path.
func (w *Writer) WriteOutcome(path string, out *models.Outcome) error {
	return w.Write(path, Format(out.Markup, out.StatusCode))
}
