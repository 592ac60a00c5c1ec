package pipeline

import (
	"errors"
	"fmt"
)

// ErrMissingCandidate is reported for a row whose candidate cell is empty.
var ErrMissingCandidate = errors.New("candidate cell is empty")

// RowScoringError ties a row-level failure to its data row index.
type RowScoringError struct {
	Row int
	Err error
}

func (e *RowScoringError) Error() string {
	return fmt.Sprintf("row %d: %v", e.Row, e.Err)
}

func (e *RowScoringError) Unwrap() error {
	return e.Err
}
