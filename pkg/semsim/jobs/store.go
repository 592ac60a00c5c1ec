// Package jobs keeps a SQLite ledger of scoring jobs.
//
// Store is safe for concurrent use; the underlying sql.DB serializes access.
package jobs

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ukaji3/semsim-go/pkg/semsim/models"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when no job has the requested id.
var ErrNotFound = errors.New("job not found")

// Record is one ledger row.
type Record struct {
	ID          string    `json:"id"`
	Input       string    `json:"input"`
	Mode        string    `json:"mode"`
	State       string    `json:"state"`
	Scored      int       `json:"scored"`
	Skipped     int       `json:"skipped"`
	Checkpoints int       `json:"checkpoints"`
	OutputPath  string    `json:"output_path,omitempty"`
	Error       string    `json:"error,omitempty"`
	StartedAt   time.Time `json:"started_at"`
	FinishedAt  time.Time `json:"finished_at,omitzero"`
}

// Store persists job records.
type Store struct {
	db *sql.DB
}

// NewStore opens (or creates) the ledger at dbPath and applies migrations.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS jobs (
		id TEXT PRIMARY KEY,
		input TEXT NOT NULL,
		mode TEXT NOT NULL,
		state TEXT NOT NULL,
		scored INTEGER DEFAULT 0,
		skipped INTEGER DEFAULT 0,
		checkpoints INTEGER DEFAULT 0,
		output_path TEXT,
		error TEXT,
		started_at INTEGER NOT NULL,
		finished_at INTEGER
	);

	CREATE INDEX IF NOT EXISTS idx_jobs_started ON jobs(started_at DESC);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Begin records a job as running.
func (s *Store) Begin(id, input, mode string, startedAt time.Time) error {
	_, err := s.db.Exec(
		`INSERT INTO jobs (id, input, mode, state, started_at) VALUES (?, ?, ?, ?, ?)`,
		id, input, mode, "running", startedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert job %s: %w", id, err)
	}
	return nil
}

// Finish stores the outcome of a job started with Begin. jobErr may be nil.
func (s *Store) Finish(res *models.JobResult, jobErr error) error {
	var msg sql.NullString
	if jobErr != nil {
		msg = sql.NullString{String: jobErr.Error(), Valid: true}
	}
	finished := res.FinishedAt
	if finished.IsZero() {
		finished = time.Now()
	}
	r, err := s.db.Exec(
		`UPDATE jobs SET state = ?, scored = ?, skipped = ?, checkpoints = ?, output_path = ?, error = ?, finished_at = ?
		 WHERE id = ?`,
		res.State, res.Scored, res.Skipped, res.Checkpoints, res.OutputPath, msg, finished.UnixMilli(), res.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update job %s: %w", res.ID, err)
	}
	if n, _ := r.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, res.ID)
	}
	return nil
}

const selectColumns = `id, input, mode, state, scored, skipped, checkpoints, output_path, error, started_at, finished_at`

// Get returns the job with the given id.
func (s *Store) Get(id string) (*Record, error) {
	row := s.db.QueryRow(`SELECT `+selectColumns+` FROM jobs WHERE id = ?`, id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// Recent returns up to limit jobs, newest first.
func (s *Store) Recent(limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.Query(`SELECT `+selectColumns+` FROM jobs ORDER BY started_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query jobs: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(sc scanner) (*Record, error) {
	var (
		rec      Record
		output   sql.NullString
		errMsg   sql.NullString
		started  int64
		finished sql.NullInt64
	)
	if err := sc.Scan(&rec.ID, &rec.Input, &rec.Mode, &rec.State, &rec.Scored, &rec.Skipped,
		&rec.Checkpoints, &output, &errMsg, &started, &finished); err != nil {
		return nil, err
	}
	rec.OutputPath = output.String
	rec.Error = errMsg.String
	rec.StartedAt = time.UnixMilli(started)
	if finished.Valid {
		rec.FinishedAt = time.UnixMilli(finished.Int64)
	}
	return &rec, nil
}
