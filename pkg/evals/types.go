// Package evals scores generated parse_and_average implementations, ranks
// the prompts that produced them, and writes the results.
package evals

import (
	"time"
)

// Symbol is the function every candidate must define.
const Symbol = "parse_and_average"

// DefaultLineThreshold is the most non-blank lines a concise candidate may have.
const DefaultLineThreshold = 20

// MaxScore is the score of a candidate that passes every stage.
const MaxScore = 4

// Diagnostic tags, in the order the stages can emit them.
const (
	TagCompiled        = "compiled"
	TagSyntaxError     = "syntax error"
	TagMissing         = Symbol + " missing"
	TagFunctionWorks   = "function works"
	TagIncorrectResult = "incorrect result"
	TagRuntimeError    = "runtime error"
	TagConcise         = "concise"
	TagTooLong         = "too long"
)

// Fixture is the input handed to the candidate and the mapping it must return.
type Fixture struct {
	Input    string             `json:"input"`
	Expected map[string]float64 `json:"expected"`
}

// DefaultFixture returns the CSV used to check every candidate.
func DefaultFixture() Fixture {
	return Fixture{
		Input:    "A,B\n1,2\n3,4\n",
		Expected: map[string]float64{"A": 2.0, "B": 3.0},
	}
}

// TaskDescription is sent to the generation service alongside each prompt.
const TaskDescription = "Generate Python code defining a function `parse_and_average` " +
	"that takes a CSV string with headers and returns a dictionary " +
	"of column averages."

// Source records where a candidate's text came from.
type Source string

const (
	SourceModel    Source = "model"
	SourceFallback Source = "fallback"
)

// EvaluationResult is the scored outcome for one prompt. It is built once
// by the Evaluator and never changed afterwards.
type EvaluationResult struct {
	Prompt      string        `json:"prompt"`
	Artifact    string        `json:"artifact"`
	Score       int           `json:"score"`
	Diagnostics []string      `json:"diagnostics"`
	Position    int           `json:"position"`
	Source      Source        `json:"source"`
	Duration    time.Duration `json:"duration"`
}

// LeaderboardRow is one line of the leaderboard table.
type LeaderboardRow struct {
	Rank    int    `json:"rank"`
	Score   int    `json:"score"`
	Preview string `json:"preview"`
}

// RunConfig summarises the settings a run used, for reports.
type RunConfig struct {
	Provider      string `json:"provider"`
	Model         string `json:"model"`
	Offline       bool   `json:"offline"`
	Runtime       string `json:"runtime"`
	TopN          int    `json:"top_n"`
	LineThreshold int    `json:"line_threshold"`
}

// Run is one complete pass over a prompt list.
type Run struct {
	ID          string             `json:"id"`
	StartedAt   time.Time          `json:"started_at"`
	CompletedAt time.Time          `json:"completed_at"`
	Config      RunConfig          `json:"config"`
	Fixture     Fixture            `json:"fixture"`
	Results     []EvaluationResult `json:"results"`
	Summary     *RunSummary        `json:"summary"`
}

// RunSummary contains aggregate statistics for a run.
type RunSummary struct {
	TotalPrompts int         `json:"total_prompts"`
	Fallbacks    int         `json:"fallbacks"`
	BestScore    int         `json:"best_score"`
	AvgScore     float64     `json:"avg_score"`
	ByScore      map[int]int `json:"by_score"`
	PerfectRate  float64     `json:"perfect_rate"`
}
