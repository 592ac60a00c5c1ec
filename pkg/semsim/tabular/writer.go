package tabular

import (
	"os"
	"path/filepath"

	"github.com/ukaji3/semsim-go/pkg/semsim/models"
	"github.com/xuri/excelize/v2"
)

// DefaultResultHeaders are the header labels of a freshly created result sheet.
var DefaultResultHeaders = []string{"reference", "candidate", "score"}

// BatchWriter persists batches of score records. Every Flush is an
// independent checkpoint; records are neither merged nor deduplicated.
type BatchWriter interface {
	Flush(batch []models.ScoreRecord) error
	// Path returns where the output resource is persisted.
	Path() string
}

// InPlaceWriter writes scores into an existing column of the input sheet.
type InPlaceWriter struct {
	f      *excelize.File
	sheet  string
	column int
	path   string
}

// NewInPlaceWriter resolves scoreColumn in the source header and returns a
// writer that saves the mutated workbook to path.
func NewInPlaceWriter(src *Source, scoreColumn, path string) (*InPlaceWriter, error) {
	col, err := src.ResolveColumn(scoreColumn)
	if err != nil {
		return nil, err
	}
	return &InPlaceWriter{
		f:      src.File(),
		sheet:  src.Sheet(),
		column: col,
		path:   path,
	}, nil
}

// Path returns the output path.
func (w *InPlaceWriter) Path() string { return w.path }

// Column returns the resolved 1-based score column.
func (w *InPlaceWriter) Column() int { return w.column }

// Flush writes each record at its own sheet row and saves the workbook.
func (w *InPlaceWriter) Flush(batch []models.ScoreRecord) error {
	for _, rec := range batch {
		cell, err := excelize.CoordinatesToCellName(w.column, rec.Row+1)
		if err != nil {
			return NewPersistenceError(w.path, len(batch), err)
		}
		if err := w.f.SetCellValue(w.sheet, cell, rec.Similarity); err != nil {
			return NewPersistenceError(w.path, len(batch), err)
		}
	}
	if err := save(w.f, w.path); err != nil {
		return NewPersistenceError(w.path, len(batch), err)
	}
	return nil
}

// ResultWriter writes scored rows into a new workbook with a fixed header.
type ResultWriter struct {
	f     *excelize.File
	sheet string
	next  int // next free sheet row
	path  string
}

// NewResultWriter creates an empty result workbook. Nothing is written to
// disk until the first Flush.
func NewResultWriter(path string, headers []string) (*ResultWriter, error) {
	if len(headers) == 0 {
		headers = DefaultResultHeaders
	}
	f := excelize.NewFile()
	sheet := f.GetSheetName(f.GetActiveSheetIndex())
	row := make([]interface{}, len(headers))
	for i, h := range headers {
		row[i] = h
	}
	if err := f.SetSheetRow(sheet, "A1", &row); err != nil {
		f.Close()
		return nil, err
	}
	return &ResultWriter{
		f:     f,
		sheet: sheet,
		next:  2,
		path:  path,
	}, nil
}

// Path returns the output path.
func (w *ResultWriter) Path() string { return w.path }

// Close releases the workbook.
func (w *ResultWriter) Close() error {
	return w.f.Close()
}

// Flush appends the records in order below the previously written rows and
// saves the workbook.
func (w *ResultWriter) Flush(batch []models.ScoreRecord) error {
	for _, rec := range batch {
		cell, err := excelize.CoordinatesToCellName(1, w.next)
		if err != nil {
			return NewPersistenceError(w.path, len(batch), err)
		}
		row := []interface{}{rec.Reference, rec.Candidate, rec.Similarity}
		if err := w.f.SetSheetRow(w.sheet, cell, &row); err != nil {
			return NewPersistenceError(w.path, len(batch), err)
		}
		w.next++
	}
	if err := save(w.f, w.path); err != nil {
		return NewPersistenceError(w.path, len(batch), err)
	}
	return nil
}

func save(f *excelize.File, path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return f.SaveAs(path)
}
