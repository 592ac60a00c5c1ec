package semsim

import (
	"context"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/ukaji3/semsim-go/pkg/semsim/embedding"
	"github.com/ukaji3/semsim-go/pkg/semsim/logging"
	"github.com/ukaji3/semsim-go/pkg/semsim/models"
	"github.com/ukaji3/semsim-go/pkg/semsim/pipeline"
	"github.com/ukaji3/semsim-go/pkg/semsim/similarity"
	"github.com/ukaji3/semsim-go/pkg/semsim/tabular"
)

// Score runs one scoring job over the workbook at inputPath.
//
// Columns are resolved before any output is created, so a missing column
// leaves no artifact behind. The returned result is non-nil whenever the
// input could be opened; errors are *JobError values wrapping the cause.
// A job that scores no row returns ErrNoValidData.
func Score(ctx context.Context, inputPath string, svc embedding.Service, opts Options, logger *log.Logger) (*models.JobResult, error) {
	logger = logging.OrDiscard(logger)

	jobID := opts.JobID
	if jobID == "" {
		jobID = uuid.NewString()
	}
	if err := opts.normalize(inputPath, jobID, time.Now()); err != nil {
		return nil, NewJobError(StageOpen, err)
	}
	logger = logger.With("job", jobID)

	src, err := tabular.Open(inputPath, opts.Sheet)
	if err != nil {
		return nil, NewJobError(StageOpen, err)
	}
	defer src.Close()

	p := pipeline.New(pipeline.Config{
		BatchSize:     opts.BatchSize,
		NormalizeNFKC: opts.NormalizeNFKC,
		Logger:        logger,
		OnProgress:    opts.OnProgress,
	})
	abort := func(stage string, err error) (*models.JobResult, error) {
		res := p.Abort(err)
		res.ID = jobID
		return res, NewJobError(stage, err)
	}

	cols, err := pipeline.Resolve(src, opts.ReferenceColumn, opts.CandidateColumn)
	if err != nil {
		return abort(StageResolve, err)
	}

	var w tabular.BatchWriter
	switch opts.Mode {
	case ModeInPlace:
		ipw, err := tabular.NewInPlaceWriter(src, opts.ScoreColumn, opts.OutputPath)
		if err != nil {
			return abort(StageResolve, err)
		}
		w = ipw
	default:
		rw, err := tabular.NewResultWriter(opts.OutputPath, opts.ResultHeaders)
		if err != nil {
			return abort(StageOutput, err)
		}
		defer rw.Close()
		w = rw
	}

	logger.Info("job started", "input", inputPath, "sheet", src.Sheet(), "mode", opts.Mode, "batch_size", opts.BatchSize)
	res, err := p.Run(ctx, src.Pairs(cols[0], cols[1]), similarity.NewScorer(svc), w)
	res.ID = jobID
	if res.Checkpoints == 0 {
		res.OutputPath = ""
	}
	if err != nil {
		return res, NewJobError(StageScore, err)
	}
	if res.Scored == 0 {
		return res, NewJobError(StageScore, ErrNoValidData)
	}
	return res, nil
}
