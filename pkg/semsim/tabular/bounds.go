package tabular

import (
	"fmt"

	"github.com/xuri/excelize/v2"
)

// Bounds is the bounding box of non-empty cells in a sheet (0-based, inclusive).
type Bounds struct {
	MinRow, MaxRow int
	MinCol, MaxCol int
	// NonEmpty is the number of non-empty cells inside the box.
	NonEmpty int
}

// Rows returns the number of rows spanned by the box.
func (b Bounds) Rows() int {
	if b.MinRow < 0 {
		return 0
	}
	return b.MaxRow - b.MinRow + 1
}

// Cols returns the number of columns spanned by the box.
func (b Bounds) Cols() int {
	if b.MinCol < 0 {
		return 0
	}
	return b.MaxCol - b.MinCol + 1
}

// Range returns the box in Excel range notation (e.g. "A1:C10").
func (b Bounds) Range() string {
	if b.MinRow < 0 {
		return ""
	}
	start, _ := excelize.CoordinatesToCellName(b.MinCol+1, b.MinRow+1)
	end, _ := excelize.CoordinatesToCellName(b.MaxCol+1, b.MaxRow+1)
	return fmt.Sprintf("%s:%s", start, end)
}

// Bounds returns the data bounds of the sheet.
func (s *Source) Bounds() Bounds {
	return findDataBounds(s.rows)
}

// Validate checks that the sheet holds a header plus at least one data row
// and at least two columns.
func (s *Source) Validate() error {
	b := s.Bounds()
	if b.MaxRow < 1 {
		return ErrNoDataRows
	}
	if b.Cols() < 2 {
		return ErrTooFewColumns
	}
	return nil
}

// findDataBounds finds the bounding box of non-empty cells.
func findDataBounds(rows [][]string) Bounds {
	b := Bounds{MinRow: -1, MaxRow: -1, MinCol: -1, MaxCol: -1}

	for rowIdx, row := range rows {
		for colIdx, cell := range row {
			if cell == "" {
				continue
			}
			b.NonEmpty++
			if b.MinRow < 0 || rowIdx < b.MinRow {
				b.MinRow = rowIdx
			}
			if rowIdx > b.MaxRow {
				b.MaxRow = rowIdx
			}
			if b.MinCol < 0 || colIdx < b.MinCol {
				b.MinCol = colIdx
			}
			if colIdx > b.MaxCol {
				b.MaxCol = colIdx
			}
		}
	}

	return b
}
