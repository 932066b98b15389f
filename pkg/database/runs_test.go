package database

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soypete/promptbench/pkg/evals"
)

func newTestStore(t *testing.T) *RunStore {
	t.Helper()
	ctx := context.Background()

	db, err := New(ctx, Config{Driver: "sqlite", DSN: filepath.Join(t.TempDir(), "runs.db")})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, db.Migrate(ctx))
	return NewRunStore(db)
}

func testRun(id string, started time.Time, scores ...int) *evals.Run {
	results := make([]evals.EvaluationResult, len(scores))
	for i, score := range scores {
		results[i] = evals.EvaluationResult{
			Prompt:      "prompt | " + id,
			Artifact:    "def parse_and_average(t):\n    return {}\n",
			Score:       score,
			Diagnostics: []string{"compiled", "incorrect result"},
			Position:    len(scores) - 1 - i,
			Source:      evals.SourceModel,
		}
	}
	return &evals.Run{
		ID:          id,
		StartedAt:   started,
		CompletedAt: started.Add(time.Minute),
		Config:      evals.RunConfig{Provider: "ollama", Model: "qwen2.5-coder"},
		Results:     results,
	}
}

func TestNewUnsupportedDriver(t *testing.T) {
	_, err := New(context.Background(), Config{Driver: "mysql", DSN: "x"})
	assert.Error(t, err)
}

func TestNewPostgresRequiresDSN(t *testing.T) {
	_, err := New(context.Background(), Config{Driver: "postgres"})
	assert.Error(t, err)
}

func TestMigrateIsIdempotent(t *testing.T) {
	ctx := context.Background()
	db, err := New(ctx, Config{Driver: "sqlite3", DSN: filepath.Join(t.TempDir(), "nested", "runs.db")})
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, db.Migrate(ctx))
	require.NoError(t, db.Migrate(ctx))

	for _, table := range []string{"runs", "results"} {
		var name string
		err := db.QueryRowContext(ctx, "SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?", table).Scan(&name)
		assert.NoError(t, err, "table %s", table)
	}
}

func TestRebind(t *testing.T) {
	pg := &DB{driver: "postgres"}
	assert.Equal(t, "SELECT * FROM t WHERE a = $1 AND b = $2", pg.rebind("SELECT * FROM t WHERE a = ? AND b = ?"))

	lite := &DB{driver: "sqlite3"}
	assert.Equal(t, "SELECT ?", lite.rebind("SELECT ?"))
}

func TestSaveRunAndResults(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	run := testRun("run-a", time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC), 4, 2, 0)
	run.Results[1].Source = evals.SourceFallback
	require.NoError(t, store.SaveRun(ctx, run))

	got, err := store.Results(ctx, "run-a")
	require.NoError(t, err)
	require.Len(t, got, 3)

	for i, res := range got {
		want := run.Results[i]
		assert.Equal(t, want.Score, res.Score)
		assert.Equal(t, want.Prompt, res.Prompt)
		assert.Equal(t, want.Artifact, res.Artifact)
		assert.Equal(t, want.Position, res.Position)
		assert.Equal(t, want.Diagnostics, res.Diagnostics)
		assert.Equal(t, want.Source, res.Source)
	}
}

func TestSaveRunDuplicateRollsBack(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	run := testRun("run-a", time.Now(), 3)
	require.NoError(t, store.SaveRun(ctx, run))
	assert.Error(t, store.SaveRun(ctx, run))

	got, err := store.Results(ctx, "run-a")
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestSaveRunWithoutID(t *testing.T) {
	store := newTestStore(t)
	assert.Error(t, store.SaveRun(context.Background(), &evals.Run{}))
}

func TestListRuns(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, store.SaveRun(ctx, testRun("old", base, 2, 1)))
	require.NoError(t, store.SaveRun(ctx, testRun("new", base.Add(time.Hour), 4, 3, 3)))
	require.NoError(t, store.SaveRun(ctx, testRun("empty", base.Add(-time.Hour))))

	records, err := store.ListRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, records, 3)

	assert.Equal(t, "new", records[0].ID)
	assert.Equal(t, 4, records[0].BestScore)
	assert.Equal(t, 3, records[0].PromptCount)
	assert.Equal(t, "qwen2.5-coder", records[0].Model)
	assert.True(t, records[0].StartedAt.Equal(base.Add(time.Hour)))

	assert.Equal(t, "old", records[1].ID)
	assert.Equal(t, 2, records[1].BestScore)

	assert.Equal(t, "empty", records[2].ID)
	assert.Equal(t, 0, records[2].BestScore)

	limited, err := store.ListRuns(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestResultsUnknownRun(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Results(context.Background(), "missing")
	assert.True(t, errors.Is(err, ErrRunNotFound))
}

func TestGetRun(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	started := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	run := testRun("run-a", started, 3, 1)
	run.Config.Offline = true
	require.NoError(t, store.SaveRun(ctx, run))

	rec, err := store.GetRun(ctx, "run-a")
	require.NoError(t, err)
	assert.Equal(t, "ollama", rec.Provider)
	assert.Equal(t, "qwen2.5-coder", rec.Model)
	assert.True(t, rec.Offline)
	assert.Equal(t, 2, rec.PromptCount)
	assert.Equal(t, 3, rec.BestScore)
	assert.True(t, rec.CompletedAt.Equal(started.Add(time.Minute)))

	_, err = store.GetRun(ctx, "missing")
	assert.True(t, errors.Is(err, ErrRunNotFound))
}
