// Package server exposes scoring jobs over HTTP: workbook upload, result
// download, job history and progress.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"

	"github.com/ukaji3/semsim-go/pkg/semsim"
	"github.com/ukaji3/semsim-go/pkg/semsim/config"
	"github.com/ukaji3/semsim-go/pkg/semsim/embedding"
	"github.com/ukaji3/semsim-go/pkg/semsim/jobs"
	"github.com/ukaji3/semsim-go/pkg/semsim/logging"
	"github.com/ukaji3/semsim-go/pkg/semsim/models"
	"github.com/ukaji3/semsim-go/pkg/semsim/tabular"
)

// StatusClientClosedRequest is reported when the client goes away mid-job.
const StatusClientClosedRequest = 499

// Server handles scoring requests. Jobs run one at a time.
type Server struct {
	cfg       *config.Config
	svc       embedding.Service
	store     *jobs.Store // may be nil
	artifacts *Artifacts
	logger    *log.Logger

	jobMu sync.Mutex

	progressMu sync.Mutex
	progress   progressState
}

type progressState struct {
	JobID     string `json:"jobId,omitempty"`
	State     string `json:"state"`
	Processed int    `json:"processedRows"`
	Scored    int    `json:"scored"`
	Skipped   int    `json:"skipped"`
	Completed bool   `json:"completed"`
}

// ScoreResponse is the body of a successful upload.
type ScoreResponse struct {
	Status     string `json:"status"`
	Message    string `json:"message"`
	ResultFile string `json:"resultFile"`
	JobID      string `json:"jobId"`
	Scored     int    `json:"scored"`
	Skipped    int    `json:"skipped"`
}

// New creates a server. The upload directory is created and stale artifacts
// from earlier runs are removed. store may be nil to disable the job ledger.
func New(cfg *config.Config, svc embedding.Service, store *jobs.Store, logger *log.Logger) (*Server, error) {
	logger = logging.OrDiscard(logger)
	if err := os.MkdirAll(cfg.Server.UploadDir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	ttl := time.Duration(cfg.Server.ArtifactTTLMinutes) * time.Minute
	interval := time.Duration(cfg.Server.SweepIntervalMinutes) * time.Minute
	artifacts := NewArtifacts(cfg.Server.UploadDir, ttl, interval, logger)
	n, err := artifacts.Sweep(time.Now())
	if err != nil {
		logger.Warn("artifact sweep failed", "err", err)
	} else if n > 0 {
		logger.Info("removed stale artifacts", "count", n)
	}
	return &Server{
		cfg:       cfg,
		svc:       svc,
		store:     store,
		artifacts: artifacts,
		logger:    logger,
		progress:  progressState{State: "idle", Completed: true},
	}, nil
}

// Close stops background work.
func (s *Server) Close() {
	s.artifacts.Close()
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/calculate-ass", s.handleCalculate)
	mux.HandleFunc("GET /uploads/{name}", s.handleDownload)
	mux.HandleFunc("GET /api/jobs", s.handleJobs)
	mux.HandleFunc("GET /api/jobs/{id}", s.handleJob)
	mux.HandleFunc("GET /progress", s.handleProgress)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		JSONResponse(w, http.StatusOK, map[string]string{"status": "ok", "model": s.svc.Model()})
	})
	return mux
}

// ListenAndServe serves on the configured address until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Server.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", s.cfg.Server.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return nil
	}
}

func (s *Server) handleCalculate(w http.ResponseWriter, r *http.Request) {
	resp, err := s.calculate(w, r)
	if err != nil {
		s.logger.Warn("scoring request failed", "err", err)
		HandleError(w, err)
		return
	}
	JSONResponse(w, http.StatusOK, resp)
}

func (s *Server) calculate(w http.ResponseWriter, r *http.Request) (*ScoreResponse, error) {
	maxBytes := int64(s.cfg.Server.MaxUploadMB) << 20
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	if err := r.ParseMultipartForm(maxBytes); err != nil {
		return nil, badRequest("invalid upload: " + err.Error())
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		return nil, badRequest("no file uploaded")
	}
	defer file.Close()
	s.logger.Info("upload received", "file", header.Filename, "size", header.Size)

	if !strings.EqualFold(filepath.Ext(header.Filename), ".xlsx") {
		return nil, badRequest("only .xlsx files are supported")
	}

	jobID := uuid.NewString()
	inputPath := filepath.Join(s.cfg.Server.UploadDir, "upload_"+jobID+".xlsx")
	if err := saveUpload(file, inputPath); err != nil {
		return nil, err
	}
	defer os.Remove(inputPath)

	opts, err := s.jobOptions(r, inputPath)
	if err != nil {
		return nil, err
	}
	opts.JobID = jobID
	resultName := semsim.ResultFileName(time.Now(), jobID)
	opts.OutputPath = filepath.Join(s.cfg.Server.UploadDir, resultName)

	res, err := s.run(r.Context(), inputPath, opts)
	if err != nil {
		if rmErr := os.Remove(opts.OutputPath); rmErr != nil && !os.IsNotExist(rmErr) {
			s.logger.Warn("failed to remove partial result", "path", opts.OutputPath, "err", rmErr)
		}
		return nil, classify(err)
	}

	s.artifacts.Register(resultName)
	return &ScoreResponse{
		Status:     "success",
		Message:    "processing complete",
		ResultFile: "/uploads/" + resultName,
		JobID:      jobID,
		Scored:     res.Scored,
		Skipped:    res.Skipped,
	}, nil
}

// jobOptions builds job options from the config and form overrides, and
// checks the uploaded sheet has data. Column names not given in the form
// fall back to the configured names when present in the header, otherwise
// to the first two header cells.
func (s *Server) jobOptions(r *http.Request, inputPath string) (semsim.Options, error) {
	job := s.cfg.Job
	opts := semsim.Options{
		Sheet:         formValue(r, "sheet", job.Sheet),
		ScoreColumn:   formValue(r, "score", job.ScoreColumn),
		Mode:          semsim.Mode(formValue(r, "mode", job.Mode)),
		BatchSize:     job.BatchSize,
		ResultHeaders: job.ResultHeaders,
		NormalizeNFKC: job.NormalizeNFKC,
	}
	if opts.Mode != semsim.ModeInPlace && opts.Mode != semsim.ModeNew {
		return opts, badRequest(fmt.Sprintf("unknown mode %q", opts.Mode))
	}

	src, err := tabular.Open(inputPath, opts.Sheet)
	if err != nil {
		return opts, badRequest("cannot read workbook: " + err.Error())
	}
	defer src.Close()

	switch err := src.Validate(); {
	case errors.Is(err, tabular.ErrNoDataRows):
		return opts, badRequest("workbook is empty or has only a header row")
	case errors.Is(err, tabular.ErrTooFewColumns):
		return opts, badRequest("workbook needs at least 2 columns")
	case err != nil:
		return opts, badRequest(err.Error())
	}

	if opts.ReferenceColumn, err = pickColumn(src, r.FormValue("reference"), job.ReferenceColumn, 0); err != nil {
		return opts, err
	}
	if opts.CandidateColumn, err = pickColumn(src, r.FormValue("candidate"), job.CandidateColumn, 1); err != nil {
		return opts, err
	}
	return opts, nil
}

// pickColumn returns the form value, the configured name if the header has
// it, or the header cell at the 0-based position.
func pickColumn(src *tabular.Source, explicit, configured string, position int) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	if _, err := src.ResolveColumn(configured); err == nil {
		return configured, nil
	}
	if h := src.Header(); position < len(h) && h[position] != "" {
		return h[position], nil
	}
	cell, _ := excelize.CoordinatesToCellName(position+1, 1)
	return "", badRequest(fmt.Sprintf("column %q not found and header cell %s is empty", configured, cell))
}

func (s *Server) run(ctx context.Context, inputPath string, opts semsim.Options) (*models.JobResult, error) {
	s.jobMu.Lock()
	defer s.jobMu.Unlock()

	s.setProgress(progressState{JobID: opts.JobID, State: "initializing"})
	opts.OnProgress = func(p models.Progress) {
		s.setProgress(progressState{
			JobID:     opts.JobID,
			State:     p.State,
			Processed: p.Processed,
			Scored:    p.Scored,
			Skipped:   p.Skipped,
		})
	}

	if s.store != nil {
		if err := s.store.Begin(opts.JobID, filepath.Base(inputPath), string(opts.Mode), time.Now()); err != nil {
			s.logger.Warn("job ledger write failed", "err", err)
		}
	}

	res, err := semsim.Score(ctx, inputPath, s.svc, opts, s.logger)

	if res != nil && s.store != nil {
		if ferr := s.store.Finish(res, err); ferr != nil {
			s.logger.Warn("job ledger write failed", "err", ferr)
		}
	}

	final := progressState{JobID: opts.JobID, State: "aborted", Completed: true}
	if res != nil {
		final.State = res.State
		final.Processed = res.Scored + res.Skipped
		final.Scored = res.Scored
		final.Skipped = res.Skipped
	}
	s.setProgress(final)
	return res, err
}

func (s *Server) setProgress(p progressState) {
	s.progressMu.Lock()
	s.progress = p
	s.progressMu.Unlock()
}

func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	s.progressMu.Lock()
	p := s.progress
	s.progressMu.Unlock()
	JSONResponse(w, http.StatusOK, p)
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	path, ok := s.artifacts.Lookup(name)
	if !ok {
		JSONError(w, http.StatusNotFound, "file not found")
		return
	}
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	http.ServeFile(w, r, path)
}

func (s *Server) handleJobs(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		JSONError(w, http.StatusServiceUnavailable, "job ledger disabled")
		return
	}
	recs, err := s.store.Recent(20)
	if err != nil {
		HandleError(w, err)
		return
	}
	if recs == nil {
		recs = []jobs.Record{}
	}
	JSONResponse(w, http.StatusOK, recs)
}

func (s *Server) handleJob(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		JSONError(w, http.StatusServiceUnavailable, "job ledger disabled")
		return
	}
	rec, err := s.store.Get(r.PathValue("id"))
	if errors.Is(err, jobs.ErrNotFound) {
		JSONError(w, http.StatusNotFound, "job not found")
		return
	}
	if err != nil {
		HandleError(w, err)
		return
	}
	JSONResponse(w, http.StatusOK, rec)
}

// classify maps job errors onto client and server errors.
func classify(err error) error {
	switch {
	case errors.Is(err, context.Canceled):
		return &HTTPError{Code: StatusClientClosedRequest, Message: "request cancelled"}
	case errors.Is(err, context.DeadlineExceeded):
		return &HTTPError{Code: http.StatusRequestTimeout, Message: "request timed out"}
	case errors.Is(err, semsim.ErrNoValidData):
		return badRequest("no valid data in file")
	case errors.Is(err, semsim.ErrColumnNotFound):
		var cnf *semsim.ColumnNotFoundError
		if errors.As(err, &cnf) {
			return badRequest(fmt.Sprintf("column %q not found", cnf.Name))
		}
		return badRequest("column not found")
	}
	var je *semsim.JobError
	if errors.As(err, &je) && je.Stage == semsim.StageOpen {
		return badRequest(err.Error())
	}
	return &HTTPError{Code: http.StatusInternalServerError, Message: "error processing file: " + err.Error()}
}

func formValue(r *http.Request, key, def string) string {
	if v := strings.TrimSpace(r.FormValue(key)); v != "" {
		return v
	}
	return def
}

func saveUpload(src io.Reader, path string) error {
	dst, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("save upload: %w", err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return fmt.Errorf("save upload: %w", err)
	}
	return dst.Close()
}
