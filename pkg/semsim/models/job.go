package models

import "time"

// JobResult summarizes one finished (or aborted) scoring job.
type JobResult struct {
	// ID is the job identifier.
	ID string `json:"id"`
	// State is the final pipeline state (e.g. "done", "aborted").
	State string `json:"state"`
	// Scored is the number of rows that received a score.
	Scored int `json:"scored"`
	// Skipped is the number of rows skipped due to row-level failures.
	Skipped int `json:"skipped"`
	// Checkpoints is the number of flushes persisted during the job.
	Checkpoints int `json:"checkpoints"`
	// OutputPath is the path of the written artifact (empty if nothing was written).
	OutputPath string `json:"output_path,omitempty"`
	// Failures lists the skipped rows.
	Failures []RowFailure `json:"failures,omitempty"`
	// StartedAt is when the job started.
	StartedAt time.Time `json:"started_at"`
	// FinishedAt is when the job ended.
	FinishedAt time.Time `json:"finished_at"`
}

// Duration returns the wall time spent on the job.
func (r *JobResult) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// Progress is a snapshot of a running job.
type Progress struct {
	// State is the current pipeline state.
	State string `json:"state"`
	// Processed is the number of rows attempted so far.
	Processed int `json:"processed_rows"`
	// Scored is the number of rows scored so far.
	Scored int `json:"scored"`
	// Skipped is the number of rows skipped so far.
	Skipped int `json:"skipped"`
	// Checkpoints is the number of flushes persisted so far.
	Checkpoints int `json:"checkpoints"`
}
