package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// RunKind pipeline that produced a run
type RunKind string

const (
	RunKindMatch RunKind = "match"
	RunKindMerge RunKind = "merge"
)

// RunStatus lifecycle of a run
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// ErrRunNotFound no run with the given id
var ErrRunNotFound = errors.New("run not found")

// Run one pipeline execution
type Run struct {
	ID           string     `json:"id"`
	Kind         RunKind    `json:"kind"`
	SourcePath   string     `json:"sourcePath"`
	TargetPath   string     `json:"targetPath"`
	Status       RunStatus  `json:"status"`
	TotalRows    int        `json:"totalRows"`
	MatchedRows  int        `json:"matchedRows"`
	NoMatchRows  int        `json:"noMatchRows"`
	ErrorRows    int        `json:"errorRows"`
	InsertedRows int        `json:"insertedRows"`
	UpdatedRows  int        `json:"updatedRows"`
	ErrorMessage string     `json:"errorMessage,omitempty"`
	StartedAt    time.Time  `json:"startedAt"`
	CompletedAt  *time.Time `json:"completedAt,omitempty"`
}

// RunCounts row tallies recorded when a run completes
type RunCounts struct {
	Total    int
	Matched  int
	NoMatch  int
	Errors   int
	Inserted int
	Updated  int
}

// CreateRun records a run as running and returns its id.
func (s *Store) CreateRun(kind RunKind, sourcePath, targetPath string) (string, error) {
	id := uuid.New().String()
	_, err := s.db.Exec(`
		INSERT INTO runs (id, kind, source_path, target_path, status, started_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, id, string(kind), sourcePath, targetPath, string(RunRunning), time.Now().UTC())
	if err != nil {
		return "", fmt.Errorf("failed to create run: %w", err)
	}
	return id, nil
}

// CompleteRun marks a run completed with its counts.
func (s *Store) CompleteRun(id string, counts RunCounts) error {
	return s.finishRun(id, RunCompleted, counts, "")
}

// FailRun marks a run failed.
func (s *Store) FailRun(id string, counts RunCounts, cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	return s.finishRun(id, RunFailed, counts, msg)
}

func (s *Store) finishRun(id string, status RunStatus, c RunCounts, errorMessage string) error {
	res, err := s.db.Exec(`
		UPDATE runs SET
			status = ?,
			total_rows = ?,
			matched_rows = ?,
			no_match_rows = ?,
			error_rows = ?,
			inserted_rows = ?,
			updated_rows = ?,
			error_message = ?,
			completed_at = ?
		WHERE id = ?
	`, string(status), c.Total, c.Matched, c.NoMatch, c.Errors, c.Inserted, c.Updated, errorMessage, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to update run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return nil
}

const runColumns = `
	id, kind, source_path, target_path, status,
	total_rows, matched_rows, no_match_rows, error_rows, inserted_rows, updated_rows,
	error_message, started_at, completed_at`

// GetRun returns one run by id.
func (s *Store) GetRun(id string) (*Run, error) {
	row := s.db.QueryRow(`SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return r, err
}

// ListRuns returns the most recent runs first; limit <= 0 means 20.
func (s *Store) ListRuns(limit int) ([]*Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.Query(`SELECT `+runColumns+` FROM runs ORDER BY rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	runs := make([]*Run, 0)
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// LastRun returns the most recent run, or nil when there is none.
func (s *Store) LastRun() (*Run, error) {
	runs, err := s.ListRuns(1)
	if err != nil || len(runs) == 0 {
		return nil, err
	}
	return runs[0], nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(sc scanner) (*Run, error) {
	var (
		r           Run
		kind        string
		status      string
		completedAt sql.NullTime
	)
	err := sc.Scan(
		&r.ID, &kind, &r.SourcePath, &r.TargetPath, &status,
		&r.TotalRows, &r.MatchedRows, &r.NoMatchRows, &r.ErrorRows, &r.InsertedRows, &r.UpdatedRows,
		&r.ErrorMessage, &r.StartedAt, &completedAt,
	)
	if err != nil {
		return nil, err
	}
	r.Kind = RunKind(kind)
	r.Status = RunStatus(status)
	if completedAt.Valid {
		t := completedAt.Time
		r.CompletedAt = &t
	}
	return &r, nil
}
