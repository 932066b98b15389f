package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/soypete/promptbench/pkg/evals"
)

// ErrRunNotFound is returned when a run ID has no archived results.
var ErrRunNotFound = errors.New("run not found")

// RunRecord is one archived run as listed by ListRuns.
type RunRecord struct {
	ID          string    `json:"id"`
	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at"`
	Provider    string    `json:"provider"`
	Model       string    `json:"model"`
	Offline     bool      `json:"offline"`
	PromptCount int       `json:"prompt_count"`
	BestScore   int       `json:"best_score"`
}

// RunStore archives completed runs.
type RunStore struct {
	db *DB
}

// NewRunStore creates a store on a migrated database.
func NewRunStore(db *DB) *RunStore {
	return &RunStore{db: db}
}

// SaveRun writes a run and its ranked results in one transaction.
func (s *RunStore) SaveRun(ctx context.Context, run *evals.Run) error {
	if run == nil || run.ID == "" {
		return errors.New("run has no ID")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, s.db.rebind(`
		INSERT INTO runs (id, started_at, completed_at, provider, model, offline, prompt_count)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`),
		run.ID,
		run.StartedAt.UTC(),
		run.CompletedAt.UTC(),
		run.Config.Provider,
		run.Config.Model,
		run.Config.Offline,
		len(run.Results),
	)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	insert := s.db.rebind(`
		INSERT INTO results (run_id, rank, position, prompt, artifact, score, diagnostics, source)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	for i, res := range run.Results {
		diagnostics, err := json.Marshal(res.Diagnostics)
		if err != nil {
			return fmt.Errorf("failed to marshal diagnostics: %w", err)
		}
		_, err = tx.ExecContext(ctx, insert,
			run.ID,
			i+1,
			res.Position,
			res.Prompt,
			res.Artifact,
			res.Score,
			string(diagnostics),
			string(res.Source),
		)
		if err != nil {
			return fmt.Errorf("failed to insert result %d: %w", i+1, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit run: %w", err)
	}
	return nil
}

// ListRuns returns the most recent runs first.
func (s *RunStore) ListRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx, s.db.rebind(`
		SELECT r.id, r.started_at, r.completed_at, r.provider, r.model, r.offline, r.prompt_count,
			COALESCE((SELECT MAX(score) FROM results WHERE run_id = r.id), 0)
		FROM runs r
		ORDER BY r.started_at DESC
		LIMIT ?
	`), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var records []RunRecord
	for rows.Next() {
		var rec RunRecord
		if err := rows.Scan(
			&rec.ID,
			&rec.StartedAt,
			&rec.CompletedAt,
			&rec.Provider,
			&rec.Model,
			&rec.Offline,
			&rec.PromptCount,
			&rec.BestScore,
		); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// GetRun returns one archived run's metadata.
func (s *RunStore) GetRun(ctx context.Context, runID string) (RunRecord, error) {
	var rec RunRecord
	err := s.db.QueryRowContext(ctx, s.db.rebind(`
		SELECT r.id, r.started_at, r.completed_at, r.provider, r.model, r.offline, r.prompt_count,
			COALESCE((SELECT MAX(score) FROM results WHERE run_id = r.id), 0)
		FROM runs r
		WHERE r.id = ?
	`), runID).Scan(
		&rec.ID,
		&rec.StartedAt,
		&rec.CompletedAt,
		&rec.Provider,
		&rec.Model,
		&rec.Offline,
		&rec.PromptCount,
		&rec.BestScore,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return rec, fmt.Errorf("%s: %w", runID, ErrRunNotFound)
	}
	if err != nil {
		return rec, fmt.Errorf("failed to get run: %w", err)
	}
	return rec, nil
}

// Results returns the stored ranking of a run, best first.
func (s *RunStore) Results(ctx context.Context, runID string) ([]evals.EvaluationResult, error) {
	rows, err := s.db.QueryContext(ctx, s.db.rebind(`
		SELECT position, prompt, artifact, score, diagnostics, source
		FROM results
		WHERE run_id = ?
		ORDER BY rank
	`), runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query results: %w", err)
	}
	defer rows.Close()

	var results []evals.EvaluationResult
	for rows.Next() {
		res, err := scanResult(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, res)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(results) == 0 {
		return nil, fmt.Errorf("%s: %w", runID, ErrRunNotFound)
	}
	return results, nil
}

func scanResult(rows *sql.Rows) (evals.EvaluationResult, error) {
	var (
		res         evals.EvaluationResult
		diagnostics string
		source      string
	)
	if err := rows.Scan(&res.Position, &res.Prompt, &res.Artifact, &res.Score, &diagnostics, &source); err != nil {
		return res, fmt.Errorf("failed to scan result: %w", err)
	}
	if err := json.Unmarshal([]byte(diagnostics), &res.Diagnostics); err != nil {
		return res, fmt.Errorf("failed to decode diagnostics: %w", err)
	}
	res.Source = evals.Source(source)
	return res, nil
}
