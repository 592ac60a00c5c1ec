package tabular

import (
	"errors"
	"fmt"
)

// ErrColumnNotFound indicates that no header cell matches a requested column name.
var ErrColumnNotFound = errors.New("column not found")

// ErrNoDataRows indicates the sheet is empty or holds only a header row.
var ErrNoDataRows = errors.New("sheet is empty or has only a header row")

// ErrTooFewColumns indicates the sheet has fewer than two populated columns.
var ErrTooFewColumns = errors.New("sheet needs at least 2 columns")

// ColumnNotFoundError reports a header lookup failure.
type ColumnNotFoundError struct {
	Name  string
	Sheet string
}

func (e *ColumnNotFoundError) Error() string {
	return fmt.Sprintf("column %q not found in header row of sheet %q", e.Name, e.Sheet)
}

// Is lets errors.Is match ErrColumnNotFound.
func (e *ColumnNotFoundError) Is(target error) bool {
	return target == ErrColumnNotFound
}

// PersistenceError represents a failure to write or save a batch of scores.
type PersistenceError struct {
	Path string
	Rows int // number of records in the batch that was being flushed
	Err  error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist %d rows to %s: %v", e.Rows, e.Path, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// NewPersistenceError creates a new PersistenceError.
func NewPersistenceError(path string, rows int, err error) *PersistenceError {
	return &PersistenceError{
		Path: path,
		Rows: rows,
		Err:  err,
	}
}
