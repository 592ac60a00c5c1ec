package semsim

import (
	"errors"
	"fmt"

	"github.com/ukaji3/semsim-go/pkg/semsim/pipeline"
	"github.com/ukaji3/semsim-go/pkg/semsim/similarity"
	"github.com/ukaji3/semsim-go/pkg/semsim/tabular"
)

// ErrNoValidData indicates that no row produced a score.
var ErrNoValidData = errors.New("no valid data")

// Errors re-exported from the component packages.
var (
	ErrColumnNotFound   = tabular.ErrColumnNotFound
	ErrNoDataRows       = tabular.ErrNoDataRows
	ErrTooFewColumns    = tabular.ErrTooFewColumns
	ErrMissingCandidate = pipeline.ErrMissingCandidate
)

type (
	ColumnNotFoundError = tabular.ColumnNotFoundError
	PersistenceError    = tabular.PersistenceError
	ScoringError        = similarity.ScoringError
	RowScoringError     = pipeline.RowScoringError
)

// Job stages reported by JobError.
const (
	StageOpen    = "open"
	StageResolve = "resolve"
	StageOutput  = "output"
	StageScore   = "score"
)

// JobError represents a failure of a scoring job.
type JobError struct {
	Stage string
	Err   error
}

func (e *JobError) Error() string {
	return fmt.Sprintf("scoring job failed at %s: %v", e.Stage, e.Err)
}

func (e *JobError) Unwrap() error {
	return e.Err
}

// NewJobError creates a new JobError.
func NewJobError(stage string, err error) *JobError {
	return &JobError{
		Stage: stage,
		Err:   err,
	}
}
