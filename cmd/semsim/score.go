package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/ukaji3/semsim-go/pkg/semsim"
	"github.com/ukaji3/semsim-go/pkg/semsim/embedding"
	"github.com/ukaji3/semsim-go/pkg/semsim/jobs"
	"github.com/ukaji3/semsim-go/pkg/semsim/models"
)

var (
	outputPath      string
	referenceColumn string
	candidateColumn string
	scoreColumn     string
	scoreMode       string
	batchSize       int
	sheetName       string
	jsonOutput      bool
	noLedger        bool
)

func newScoreCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "score [input.xlsx]",
		Short: "Score every row of a workbook",
		Args:  cobra.ExactArgs(1),
		RunE:  runScore,
	}
	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "Output file path (default: overwrite input in inplace mode, result_<ts>_<id>.xlsx under output_dir in new mode)")
	cmd.Flags().StringVar(&referenceColumn, "reference", "", "Reference column header")
	cmd.Flags().StringVar(&candidateColumn, "candidate", "", "Candidate column header")
	cmd.Flags().StringVar(&scoreColumn, "score-column", "", "Score column header (inplace mode)")
	cmd.Flags().StringVar(&scoreMode, "mode", "", "Output mode: inplace, new")
	cmd.Flags().IntVar(&batchSize, "batch-size", 0, "Rows scored between checkpoints")
	cmd.Flags().StringVar(&sheetName, "sheet", "", "Sheet to read (default: active sheet)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the job result as JSON")
	cmd.Flags().BoolVar(&noLedger, "no-ledger", false, "Do not record the job in the ledger")
	return cmd
}

func runScore(cmd *cobra.Command, args []string) error {
	inputPath := args[0]
	if _, err := os.Stat(inputPath); os.IsNotExist(err) {
		return fmt.Errorf("file not found: %s", inputPath)
	}

	cfg, logger, closer, err := setup(true)
	if err != nil {
		return err
	}
	defer closer.Close()

	job := cfg.Job
	opts := semsim.Options{
		Sheet:           firstNonEmpty(sheetName, job.Sheet),
		ReferenceColumn: firstNonEmpty(referenceColumn, job.ReferenceColumn),
		CandidateColumn: firstNonEmpty(candidateColumn, job.CandidateColumn),
		ScoreColumn:     firstNonEmpty(scoreColumn, job.ScoreColumn),
		Mode:            semsim.Mode(firstNonEmpty(scoreMode, job.Mode)),
		BatchSize:       job.BatchSize,
		OutputPath:      outputPath,
		ResultHeaders:   job.ResultHeaders,
		NormalizeNFKC:   job.NormalizeNFKC,
	}
	if batchSize > 0 {
		opts.BatchSize = batchSize
	}
	if opts.OutputPath == "" && opts.Mode == semsim.ModeNew {
		opts.JobID = uuid.NewString()
		opts.OutputPath = filepath.Join(job.OutputDir, semsim.ResultFileName(time.Now(), opts.JobID))
	}

	svc, err := embedding.New(cfg.Embedding)
	if err != nil {
		return fmt.Errorf("embedding backend: %w", err)
	}
	defer svc.Close()

	var store *jobs.Store
	if !noLedger {
		store, err = jobs.NewStore(cfg.Store.Path)
		if err != nil {
			logger.Warn("job ledger unavailable", "err", err)
			store = nil
		} else {
			defer store.Close()
		}
	}

	res, jobErr := semsim.Score(cmd.Context(), inputPath, svc, opts, logger)
	if store != nil && res != nil {
		record(logger, store, res, inputPath, string(opts.Mode), jobErr)
	}
	if res != nil {
		printResult(res)
	}
	if jobErr != nil {
		return fmt.Errorf("scoring failed: %w", jobErr)
	}
	return nil
}

func record(logger *log.Logger, store *jobs.Store, res *models.JobResult, input, mode string, jobErr error) {
	if err := store.Begin(res.ID, input, mode, res.StartedAt); err != nil {
		logger.Warn("job ledger write failed", "err", err)
		return
	}
	if err := store.Finish(res, jobErr); err != nil {
		logger.Warn("job ledger write failed", "err", err)
	}
}

func printResult(res *models.JobResult) {
	if jsonOutput {
		data, _ := json.MarshalIndent(res, "", "  ")
		fmt.Println(string(data))
		return
	}
	fmt.Printf("job %s: %s\n", res.ID, res.State)
	fmt.Printf("  scored:      %d\n", res.Scored)
	fmt.Printf("  skipped:     %d\n", res.Skipped)
	fmt.Printf("  checkpoints: %d\n", res.Checkpoints)
	if res.OutputPath != "" {
		fmt.Printf("  output:      %s\n", res.OutputPath)
	}
	fmt.Printf("  elapsed:     %s\n", res.Duration().Round(time.Millisecond))
	for _, f := range res.Failures {
		fmt.Printf("  row %d skipped: %s\n", f.Row, f.Error)
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
