package tabular

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/xuri/excelize/v2"
)

// writeWorkbook saves rows to a temporary xlsx file. Nil cells are left empty.
func writeWorkbook(t *testing.T, rows [][]interface{}) string {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()

	for r, row := range rows {
		for c, v := range row {
			if v == nil {
				continue
			}
			cell, _ := excelize.CoordinatesToCellName(c+1, r+1)
			if err := f.SetCellValue("Sheet1", cell, v); err != nil {
				t.Fatalf("SetCellValue(%s): %v", cell, err)
			}
		}
	}

	path := filepath.Join(t.TempDir(), "input.xlsx")
	if err := f.SaveAs(path); err != nil {
		t.Fatalf("Failed to save test file: %v", err)
	}
	return path
}

func openSource(t *testing.T, rows [][]interface{}) *Source {
	t.Helper()
	src, err := Open(writeWorkbook(t, rows), "")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { src.Close() })
	return src
}

func TestResolveColumn(t *testing.T) {
	src := openSource(t, [][]interface{}{
		{"id", "reference", "candidate", "reference", "score"},
		{1, "a", "b", "c", nil},
	})

	tests := []struct {
		name     string
		expected int
	}{
		{"id", 1},
		{"reference", 2}, // first match wins
		{"candidate", 3},
		{"score", 5},
	}
	for _, tt := range tests {
		got, err := src.ResolveColumn(tt.name)
		if err != nil {
			t.Fatalf("ResolveColumn(%q) failed: %v", tt.name, err)
		}
		if got != tt.expected {
			t.Errorf("ResolveColumn(%q) = %d, expected %d", tt.name, got, tt.expected)
		}
	}
}

func TestResolveColumnNotFound(t *testing.T) {
	src := openSource(t, [][]interface{}{
		{"reference", "candidate"},
		{"a", "b"},
	})

	_, err := src.ResolveColumn("Reference")
	if !errors.Is(err, ErrColumnNotFound) {
		t.Fatalf("expected ErrColumnNotFound, got %v", err)
	}
	var cnf *ColumnNotFoundError
	if !errors.As(err, &cnf) {
		t.Fatalf("expected *ColumnNotFoundError, got %T", err)
	}
	if cnf.Name != "Reference" || cnf.Sheet != "Sheet1" {
		t.Errorf("unexpected error fields: %+v", cnf)
	}
}

func TestReadColumn(t *testing.T) {
	src := openSource(t, [][]interface{}{
		{"reference", "candidate"},
		{"a", "b"},
		{nil, "c"},
		{"d", nil},
	})

	cells := src.ReadColumn(1)
	if len(cells) != 3 {
		t.Fatalf("Expected 3 cells, got %d", len(cells))
	}
	if !cells[0].Present || cells[0].Value != "a" {
		t.Errorf("cells[0] = %+v, expected present 'a'", cells[0])
	}
	if cells[1].Present {
		t.Errorf("cells[1] = %+v, expected absent", cells[1])
	}
	if cells[2].Value != "d" {
		t.Errorf("cells[2] = %+v, expected 'd'", cells[2])
	}
}

func TestPairsStopsAtFirstEmptyReference(t *testing.T) {
	src := openSource(t, [][]interface{}{
		{"reference", "candidate"},
		{"r1", "c1"},
		{"r2", "c2"},
		{nil, "c3"},
		{"r4", "c4"},
		{"r5", "c5"},
	})

	var got []int
	for pair := range src.Pairs(1, 2) {
		got = append(got, pair.Index)
	}
	if len(got) != 2 || got[0] != 1 || got[1] != 2 {
		t.Errorf("Pairs yielded rows %v, expected [1 2]", got)
	}
}

func TestPairsMissingCandidate(t *testing.T) {
	src := openSource(t, [][]interface{}{
		{"reference", "candidate"},
		{"r1", nil},
		{"r2", "  c2 "},
	})

	var pairs []struct {
		present bool
		cand    string
		row     int
	}
	for pair := range src.Pairs(1, 2) {
		pairs = append(pairs, struct {
			present bool
			cand    string
			row     int
		}{pair.CandidatePresent, pair.Candidate, pair.SheetRow()})
	}
	if len(pairs) != 2 {
		t.Fatalf("Expected 2 pairs, got %d", len(pairs))
	}
	if pairs[0].present {
		t.Error("Expected first candidate to be absent")
	}
	if !pairs[1].present || pairs[1].cand != "  c2 " {
		t.Errorf("Expected raw candidate '  c2 ', got %q", pairs[1].cand)
	}
	if pairs[1].row != 3 {
		t.Errorf("Expected sheet row 3, got %d", pairs[1].row)
	}
}

func TestPairsEarlyBreak(t *testing.T) {
	src := openSource(t, [][]interface{}{
		{"reference", "candidate"},
		{"r1", "c1"},
		{"r2", "c2"},
	})

	n := 0
	for range src.Pairs(1, 2) {
		n++
		break
	}
	if n != 1 {
		t.Errorf("Expected 1 iteration, got %d", n)
	}
}

func TestOpenUnknownSheet(t *testing.T) {
	path := writeWorkbook(t, [][]interface{}{{"reference", "candidate"}})
	if _, err := Open(path, "Missing"); err == nil {
		t.Error("Expected error for unknown sheet")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name     string
		rows     [][]interface{}
		expected error
	}{
		{"header only", [][]interface{}{{"reference", "candidate"}}, ErrNoDataRows},
		{"single column", [][]interface{}{{"reference"}, {"a"}}, ErrTooFewColumns},
		{"ok", [][]interface{}{{"reference", "candidate"}, {"a", "b"}}, nil},
	}

	for _, tt := range tests {
		src := openSource(t, tt.rows)
		if err := src.Validate(); !errors.Is(err, tt.expected) {
			t.Errorf("%s: Validate() = %v, expected %v", tt.name, err, tt.expected)
		}
	}
}

func TestFindDataBounds(t *testing.T) {
	rows := [][]string{
		{"", "", ""},
		{"", "a", "b"},
		{"", "", "c"},
	}
	b := findDataBounds(rows)
	if b.MinRow != 1 || b.MaxRow != 2 || b.MinCol != 1 || b.MaxCol != 2 {
		t.Errorf("unexpected bounds %+v", b)
	}
	if b.NonEmpty != 3 {
		t.Errorf("Expected 3 non-empty cells, got %d", b.NonEmpty)
	}
	if r := b.Range(); r != "B2:C3" {
		t.Errorf("Range() = %q, expected %q", r, "B2:C3")
	}

	empty := findDataBounds(nil)
	if empty.Rows() != 0 || empty.Cols() != 0 || empty.Range() != "" {
		t.Errorf("unexpected bounds for empty sheet: %+v", empty)
	}
}

func TestCleanText(t *testing.T) {
	tests := []struct {
		input    string
		nfkc     bool
		expected string
	}{
		{"  hello \n", false, "hello"},
		{"\ufeffhello", false, "hello"},
		{"ＡＢＣ１２３", false, "ＡＢＣ１２３"},
		{"ＡＢＣ１２３", true, "ABC123"},
		{"   ", false, ""},
	}

	for _, tt := range tests {
		result := CleanText(tt.input, tt.nfkc)
		if result != tt.expected {
			t.Errorf("CleanText(%q, %v) = %q, expected %q", tt.input, tt.nfkc, result, tt.expected)
		}
	}
}
