// Package semsim scores the semantic similarity of paired texts held in two
// columns of an xlsx workbook.
package semsim

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/ukaji3/semsim-go/pkg/semsim/models"
	"github.com/ukaji3/semsim-go/pkg/semsim/pipeline"
	"github.com/ukaji3/semsim-go/pkg/semsim/tabular"
)

// Mode selects where scores are written.
type Mode string

const (
	// ModeInPlace writes scores into an existing column of the input sheet.
	ModeInPlace Mode = "inplace"
	// ModeNew writes reference, candidate and score rows into a new workbook.
	ModeNew Mode = "new"
)

// Options configures a scoring job.
type Options struct {
	// Sheet is the worksheet to read. Empty selects the active sheet.
	Sheet string
	// ReferenceColumn is the header of the reference text column.
	ReferenceColumn string
	// CandidateColumn is the header of the candidate text column.
	CandidateColumn string
	// ScoreColumn is the header of the column receiving scores (ModeInPlace only).
	ScoreColumn string
	// Mode selects the output resource.
	Mode Mode
	// BatchSize is the number of scored rows between checkpoints.
	BatchSize int
	// OutputPath is where the artifact is saved.
	// If empty, ModeInPlace overwrites the input and ModeNew writes a
	// timestamped result file next to it.
	OutputPath string
	// ResultHeaders are the header labels of a ModeNew workbook.
	ResultHeaders []string
	// NormalizeNFKC applies NFKC normalisation before scoring.
	NormalizeNFKC bool
	// JobID identifies the job. If empty, one is generated.
	JobID string
	// OnProgress receives progress snapshots while the job runs.
	OnProgress func(models.Progress)
}

// DefaultOptions returns default scoring options.
func DefaultOptions() Options {
	return Options{
		ReferenceColumn: "reference",
		CandidateColumn: "candidate",
		ScoreColumn:     "score",
		Mode:            ModeNew,
		BatchSize:       pipeline.DefaultBatchSize,
	}
}

func (o *Options) normalize(inputPath, jobID string, now time.Time) error {
	d := DefaultOptions()
	if o.ReferenceColumn == "" {
		o.ReferenceColumn = d.ReferenceColumn
	}
	if o.CandidateColumn == "" {
		o.CandidateColumn = d.CandidateColumn
	}
	if o.ScoreColumn == "" {
		o.ScoreColumn = d.ScoreColumn
	}
	if o.Mode == "" {
		o.Mode = d.Mode
	}
	if o.BatchSize <= 0 {
		o.BatchSize = d.BatchSize
	}
	if len(o.ResultHeaders) == 0 {
		o.ResultHeaders = tabular.DefaultResultHeaders
	}
	switch o.Mode {
	case ModeInPlace:
		if o.OutputPath == "" {
			o.OutputPath = inputPath
		}
	case ModeNew:
		if o.OutputPath == "" {
			o.OutputPath = filepath.Join(filepath.Dir(inputPath), ResultFileName(now, jobID))
		}
	default:
		return fmt.Errorf("unknown mode %q", o.Mode)
	}
	return nil
}

// ResultFileName returns the artifact name result_<yyyymmddHHMMSS>_<id8>.xlsx.
func ResultFileName(now time.Time, jobID string) string {
	id := strings.ReplaceAll(jobID, "-", "")
	if len(id) > 8 {
		id = id[:8]
	}
	return fmt.Sprintf("result_%s_%s.xlsx", now.Format("20060102150405"), id)
}
