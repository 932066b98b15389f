package evals

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/soypete/promptbench/pkg/generate"
	"github.com/soypete/promptbench/pkg/metrics"
)

// Generator turns a prompt into candidate text. *generate.Generator
// satisfies it.
type Generator interface {
	Generate(ctx context.Context, prompt, task string) generate.GenerationResult
}

// ProgressCallback is called after each prompt is evaluated.
type ProgressCallback func(done, total int, result EvaluationResult)

// HarnessConfig configures a Harness.
type HarnessConfig struct {
	Generator Generator
	Evaluator *Evaluator
	// Reporter may be nil, in which case Run only returns the results.
	Reporter Reporter
	// RunConfig is copied into every Run for reporting.
	RunConfig RunConfig
	Logger    zerolog.Logger
}

// Harness orchestrates evaluation runs.
type Harness struct {
	generator Generator
	evaluator *Evaluator
	reporter  Reporter
	runConfig RunConfig
	logger    zerolog.Logger
	mu        sync.Mutex
	progress  ProgressCallback
}

// NewHarness creates a new evaluation harness.
func NewHarness(cfg HarnessConfig) (*Harness, error) {
	if cfg.Generator == nil {
		return nil, errors.New("harness requires a generator")
	}
	if cfg.Evaluator == nil {
		return nil, errors.New("harness requires an evaluator")
	}

	logger := cfg.Logger
	if logger.GetLevel() == zerolog.Disabled {
		logger = zerolog.Nop()
	}

	return &Harness{
		generator: cfg.Generator,
		evaluator: cfg.Evaluator,
		reporter:  cfg.Reporter,
		runConfig: cfg.RunConfig,
		logger:    logger,
	}, nil
}

// SetProgressCallback sets a callback for progress updates.
func (h *Harness) SetProgressCallback(cb ProgressCallback) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.progress = cb
}

// Run generates, evaluates and ranks every prompt in order, one at a
// time, then hands the ranked run to the reporter. A cancelled context
// aborts the run between prompts.
func (h *Harness) Run(ctx context.Context, prompts []string) (*Run, error) {
	if len(prompts) == 0 {
		return nil, ErrNoPrompts
	}

	run := &Run{
		ID:        uuid.NewString(),
		StartedAt: time.Now(),
		Config:    h.runConfig,
		Fixture:   h.evaluator.fixture,
	}
	logger := h.logger.With().Str("run_id", run.ID).Logger()
	logger.Info().Int("prompts", len(prompts)).Msg("starting run")

	results := make([]EvaluationResult, 0, len(prompts))
	for i, prompt := range prompts {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("run interrupted after %d of %d prompts: %w", i, len(prompts), err)
		}

		gen := h.generator.Generate(ctx, prompt, TaskDescription)
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("run interrupted after %d of %d prompts: %w", i, len(prompts), err)
		}
		source := SourceModel
		if gen.Kind == generate.KindFallback {
			source = SourceFallback
		}

		result := h.evaluator.Evaluate(ctx, Candidate{
			Prompt:   prompt,
			Artifact: gen.Text,
			Position: i,
			Source:   source,
		})
		// A cancelled sandbox run is not the candidate's fault.
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("run interrupted after %d of %d prompts: %w", i, len(prompts), err)
		}
		results = append(results, result)
		metrics.PromptsEvaluated.Inc()

		logger.Info().
			Int("position", i).
			Str("source", string(source)).
			Int("score", result.Score).
			Strs("diagnostics", result.Diagnostics).
			Dur("duration", result.Duration).
			Msg("prompt evaluated")

		h.mu.Lock()
		progress := h.progress
		h.mu.Unlock()
		if progress != nil {
			progress(i+1, len(prompts), result)
		}
	}

	run.Results = Rank(results)
	run.Summary = Summarize(run.Results)
	run.CompletedAt = time.Now()

	logger.Info().
		Int("best_score", run.Summary.BestScore).
		Float64("avg_score", run.Summary.AvgScore).
		Int("fallbacks", run.Summary.Fallbacks).
		Msg("run complete")

	if h.reporter != nil {
		if err := h.reporter.Report(run); err != nil {
			return run, fmt.Errorf("write reports: %w", err)
		}
	}

	return run, nil
}
