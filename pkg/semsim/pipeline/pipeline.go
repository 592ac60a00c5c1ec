// Package pipeline drives a scoring job: it iterates row pairs, scores each
// one, isolates row-level failures and checkpoints results in batches.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"time"

	"github.com/charmbracelet/log"

	"github.com/ukaji3/semsim-go/pkg/semsim/logging"
	"github.com/ukaji3/semsim-go/pkg/semsim/models"
	"github.com/ukaji3/semsim-go/pkg/semsim/similarity"
	"github.com/ukaji3/semsim-go/pkg/semsim/tabular"
)

// DefaultBatchSize is the number of scored rows between checkpoints.
const DefaultBatchSize = 50

// Scorer scores one pair of texts.
type Scorer interface {
	Score(ctx context.Context, reference, candidate string) (float64, error)
}

// ColumnResolver maps a header name to a 1-based column index.
type ColumnResolver interface {
	ResolveColumn(name string) (int, error)
}

// Config configures a Pipeline.
type Config struct {
	// BatchSize is the checkpoint interval in scored rows.
	BatchSize int
	// NormalizeNFKC applies NFKC normalisation to both texts before scoring.
	NormalizeNFKC bool
	// Logger receives per-row and per-checkpoint events. Nil discards.
	Logger *log.Logger
	// OnProgress, if set, is called after every row and state change.
	OnProgress func(models.Progress)
}

// Pipeline runs a single scoring job. It is not safe for concurrent use.
type Pipeline struct {
	cfg    Config
	logger *log.Logger

	state    State
	result   models.JobResult
	batch    []models.ScoreRecord
	attempts int
}

// New creates a pipeline in the Initializing state.
func New(cfg Config) *Pipeline {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	return &Pipeline{
		cfg:    cfg,
		logger: logging.OrDiscard(cfg.Logger),
		state:  Initializing,
	}
}

// State returns the current state.
func (p *Pipeline) State() State { return p.state }

// Resolve looks up every name in r and returns the indices in order.
// The first failure is returned unchanged.
func Resolve(r ColumnResolver, names ...string) ([]int, error) {
	out := make([]int, len(names))
	for i, name := range names {
		idx, err := r.ResolveColumn(name)
		if err != nil {
			return nil, err
		}
		out[i] = idx
	}
	return out, nil
}

// Abort moves a pipeline that never started iterating to Aborted. A
// pipeline already in a terminal state is left unchanged.
func (p *Pipeline) Abort(err error) *models.JobResult {
	if p.state.Terminal() {
		return &p.result
	}
	p.result.StartedAt = time.Now()
	p.logger.Error("job aborted", "state", p.state, "err", err)
	p.transition(Aborted)
	p.result.FinishedAt = time.Now()
	return &p.result
}

// Run scores every pair produced by pairs and checkpoints through w.
//
// The returned result is always non-nil and carries the terminal state. A
// non-nil error means the job ended Aborted: a persistence failure, a
// cancelled context or an unexpected scorer error.
func (p *Pipeline) Run(ctx context.Context, pairs iter.Seq[models.RowPair], scorer Scorer, w tabular.BatchWriter) (*models.JobResult, error) {
	if p.state.Terminal() {
		return &p.result, fmt.Errorf("pipeline already run (state %s)", p.state)
	}
	p.result.StartedAt = time.Now()
	p.result.OutputPath = w.Path()
	p.transition(Iterating)

	err := p.iterate(ctx, pairs, scorer, w)
	if err == nil {
		p.transition(Finalizing)
		err = p.flush(w)
	}
	if err != nil {
		p.logger.Error("job aborted", "scored", p.result.Scored, "skipped", p.result.Skipped, "err", err)
		p.transition(Aborted)
	} else {
		p.transition(Done)
		p.logger.Info("job finished", "scored", p.result.Scored, "skipped", p.result.Skipped, "checkpoints", p.result.Checkpoints)
	}
	p.result.FinishedAt = time.Now()
	return &p.result, err
}

func (p *Pipeline) iterate(ctx context.Context, pairs iter.Seq[models.RowPair], scorer Scorer, w tabular.BatchWriter) error {
	for pair := range pairs {
		if err := ctx.Err(); err != nil {
			return p.stop(w, err)
		}

		p.attempts++
		rec, err := p.scoreRow(ctx, pair, scorer)
		switch {
		case err == nil:
			p.batch = append(p.batch, rec)
			p.result.Scored++
		case ctx.Err() != nil && errors.Is(err, ctx.Err()):
			return p.stop(w, ctx.Err())
		case isRowLevel(err):
			p.logger.Warn("row skipped", "row", pair.Index, "err", err)
			p.result.Skipped++
			p.result.Failures = append(p.result.Failures, models.RowFailure{Row: pair.Index, Error: err.Error()})
		default:
			return p.stop(w, &RowScoringError{Row: pair.Index, Err: err})
		}
		p.report()

		if err == nil && p.result.Scored%p.cfg.BatchSize == 0 {
			p.transition(Flushing)
			if err := p.flush(w); err != nil {
				return err
			}
			p.transition(Iterating)
		}
	}
	return nil
}

func (p *Pipeline) scoreRow(ctx context.Context, pair models.RowPair, scorer Scorer) (models.ScoreRecord, error) {
	if !pair.CandidatePresent {
		return models.ScoreRecord{}, ErrMissingCandidate
	}
	ref := tabular.CleanText(pair.Reference, p.cfg.NormalizeNFKC)
	cand := tabular.CleanText(pair.Candidate, p.cfg.NormalizeNFKC)
	score, err := scorer.Score(ctx, ref, cand)
	if err != nil {
		return models.ScoreRecord{}, err
	}
	p.logger.Debug("row scored", "row", pair.Index, "score", score)
	return models.ScoreRecord{Row: pair.Index, Similarity: score, Reference: ref, Candidate: cand}, nil
}

// stop persists the pending batch and returns cause.
func (p *Pipeline) stop(w tabular.BatchWriter, cause error) error {
	p.logger.Warn("stopping job, flushing pending rows", "pending", len(p.batch), "cause", cause)
	if err := p.flush(w); err != nil {
		return errors.Join(cause, err)
	}
	return cause
}

func (p *Pipeline) flush(w tabular.BatchWriter) error {
	if len(p.batch) == 0 {
		return nil
	}
	if err := w.Flush(p.batch); err != nil {
		return err
	}
	p.result.Checkpoints++
	p.logger.Info("checkpoint saved", "from_row", p.batch[0].Row, "rows", len(p.batch), "path", w.Path())
	p.batch = nil
	return nil
}

func (p *Pipeline) transition(s State) {
	p.state = s
	p.result.State = s.String()
	p.report()
}

func (p *Pipeline) report() {
	if p.cfg.OnProgress == nil {
		return
	}
	p.cfg.OnProgress(models.Progress{
		State:       p.state.String(),
		Processed:   p.attempts,
		Scored:      p.result.Scored,
		Skipped:     p.result.Skipped,
		Checkpoints: p.result.Checkpoints,
	})
}

func isRowLevel(err error) bool {
	var se *similarity.ScoringError
	return errors.As(err, &se) || errors.Is(err, ErrMissingCandidate)
}
