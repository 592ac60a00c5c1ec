// Package tabular reads paired text columns from xlsx sheets and writes scores back.
package tabular

import (
	"fmt"
	"io"
	"iter"

	"github.com/ukaji3/semsim-go/pkg/semsim/models"
	"github.com/xuri/excelize/v2"
)

// Cell is a single cell value read from a data row.
type Cell struct {
	Value string
	// Present is false when the cell is empty or beyond the end of its row.
	Present bool
}

// Source wraps one sheet of an input workbook.
type Source struct {
	f       *excelize.File
	sheet   string
	rows    [][]string
	columns map[string]int
}

// Open opens the workbook at path. An empty sheet selects the active sheet.
func Open(path, sheet string) (*Source, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, err
	}
	s, err := newSource(f, sheet)
	if err != nil {
		f.Close()
		return nil, err
	}
	return s, nil
}

// OpenReader reads a workbook from r. An empty sheet selects the active sheet.
func OpenReader(r io.Reader, sheet string) (*Source, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, err
	}
	s, err := newSource(f, sheet)
	if err != nil {
		f.Close()
		return nil, err
	}
	return s, nil
}

// NewSource wraps an already opened workbook. The caller keeps ownership of f.
func NewSource(f *excelize.File, sheet string) (*Source, error) {
	return newSource(f, sheet)
}

func newSource(f *excelize.File, sheet string) (*Source, error) {
	if sheet == "" {
		sheet = f.GetSheetName(f.GetActiveSheetIndex())
	}
	idx, err := f.GetSheetIndex(sheet)
	if err != nil {
		return nil, err
	}
	if idx < 0 {
		return nil, fmt.Errorf("sheet %q does not exist", sheet)
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheet, err)
	}
	return &Source{
		f:       f,
		sheet:   sheet,
		rows:    rows,
		columns: make(map[string]int),
	}, nil
}

// File returns the underlying workbook.
func (s *Source) File() *excelize.File {
	return s.f
}

// Sheet returns the sheet name the source reads from.
func (s *Source) Sheet() string {
	return s.sheet
}

// Close closes the underlying workbook.
func (s *Source) Close() error {
	return s.f.Close()
}

// Header returns the header row.
func (s *Source) Header() []string {
	if len(s.rows) == 0 {
		return nil
	}
	return s.rows[0]
}

// ResolveColumn returns the 1-based index of the first header cell equal to name.
func (s *Source) ResolveColumn(name string) (int, error) {
	if idx, ok := s.columns[name]; ok {
		return idx, nil
	}
	for i, cell := range s.Header() {
		if cell == name {
			s.columns[name] = i + 1
			return i + 1, nil
		}
	}
	return 0, &ColumnNotFoundError{Name: name, Sheet: s.sheet}
}

// ReadColumn returns the cells of a 1-based column for sheet rows 2..last.
func (s *Source) ReadColumn(index int) []Cell {
	if len(s.rows) < 2 {
		return nil
	}
	out := make([]Cell, 0, len(s.rows)-1)
	for _, row := range s.rows[1:] {
		out = append(out, cellAt(row, index))
	}
	return out
}

// Pairs zips the reference and candidate columns row by row.
//
// Iteration ends at the first row whose reference cell is empty; any rows
// after it are never yielded, even if they hold data.
func (s *Source) Pairs(refIndex, candIndex int) iter.Seq[models.RowPair] {
	return func(yield func(models.RowPair) bool) {
		if len(s.rows) < 2 {
			return
		}
		for i, row := range s.rows[1:] {
			ref := cellAt(row, refIndex)
			if !ref.Present {
				return
			}
			cand := cellAt(row, candIndex)
			pair := models.RowPair{
				Index:            i + 1,
				Reference:        ref.Value,
				Candidate:        cand.Value,
				CandidatePresent: cand.Present,
			}
			if !yield(pair) {
				return
			}
		}
	}
}

func cellAt(row []string, index int) Cell {
	i := index - 1
	if i < 0 || i >= len(row) || row[i] == "" {
		return Cell{}
	}
	return Cell{Value: row[i], Present: true}
}
