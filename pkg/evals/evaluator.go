package evals

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/soypete/promptbench/pkg/metrics"
	"github.com/soypete/promptbench/pkg/sandbox"
)

// Stage names used in spans and metrics.
const (
	stageParse       = "parse"
	stageLoad        = "load"
	stageCorrectness = "correctness"
	stageConciseness = "conciseness"
)

// EvaluatorConfig configures an Evaluator.
type EvaluatorConfig struct {
	Runner sandbox.Runner
	// Fixture defaults to DefaultFixture.
	Fixture Fixture
	// LineThreshold defaults to DefaultLineThreshold.
	LineThreshold int
	// ExecTimeout bounds each sandbox run. Zero means no limit.
	ExecTimeout time.Duration
	Logger      zerolog.Logger
}

// Evaluator scores candidates in four short-circuiting stages: static
// parse (+1), load, correctness (+2) and conciseness (+1).
type Evaluator struct {
	runner        sandbox.Runner
	fixture       Fixture
	lineThreshold int
	execTimeout   time.Duration
	tracer        trace.Tracer
	logger        zerolog.Logger
}

// NewEvaluator creates an evaluator. A nil Runner makes every candidate
// that parses fail at the load stage with a runtime error.
func NewEvaluator(cfg EvaluatorConfig) *Evaluator {
	fixture := cfg.Fixture
	if fixture.Expected == nil {
		fixture = DefaultFixture()
	}
	threshold := cfg.LineThreshold
	if threshold <= 0 {
		threshold = DefaultLineThreshold
	}
	runner := cfg.Runner
	if runner == nil {
		runner = sandbox.Unavailable("none", errors.New("no sandbox runner configured"))
	}
	logger := cfg.Logger
	if logger.GetLevel() == zerolog.Disabled {
		logger = zerolog.Nop()
	}

	return &Evaluator{
		runner:        runner,
		fixture:       fixture,
		lineThreshold: threshold,
		execTimeout:   cfg.ExecTimeout,
		tracer:        otel.Tracer("github.com/soypete/promptbench/pkg/evals"),
		logger:        logger,
	}
}

// Candidate is one prompt together with the text generated for it.
type Candidate struct {
	Prompt   string
	Artifact string
	Position int
	Source   Source
}

// Evaluate scores one candidate. Every fault, whether caused by the
// candidate or by the sandbox, ends up as a diagnostic tag.
func (e *Evaluator) Evaluate(ctx context.Context, c Candidate) EvaluationResult {
	start := time.Now()
	ctx, span := e.tracer.Start(ctx, "evals.evaluate", trace.WithAttributes(
		attribute.Int("prompt.position", c.Position),
		attribute.String("candidate.source", string(c.Source)),
	))
	defer span.End()

	v := e.score(ctx, c.Artifact)

	span.SetAttributes(
		attribute.Int("candidate.score", v.score),
		attribute.StringSlice("candidate.diagnostics", v.diagnostics),
	)
	metrics.CandidateScores.Observe(float64(v.score))

	return EvaluationResult{
		Prompt:      c.Prompt,
		Artifact:    c.Artifact,
		Score:       v.score,
		Diagnostics: v.diagnostics,
		Position:    c.Position,
		Source:      c.Source,
		Duration:    time.Since(start),
	}
}

type verdict struct {
	score       int
	diagnostics []string
}

func (v *verdict) record(stage string, points int, tag, detail string) {
	v.score += points
	if detail != "" {
		v.diagnostics = append(v.diagnostics, tag+": "+detail)
	} else {
		v.diagnostics = append(v.diagnostics, tag)
	}
	metrics.StageOutcomesTotal.WithLabelValues(stage, tag).Inc()
}

func (e *Evaluator) score(ctx context.Context, source string) verdict {
	var v verdict

	if err := e.parse(ctx, source); err != nil {
		v.record(stageParse, 0, TagSyntaxError, err.Error())
		return v
	}
	v.record(stageParse, 1, TagCompiled, "")

	out, err := e.load(ctx, source)
	if err != nil {
		v.record(stageLoad, 0, TagRuntimeError, err.Error())
		return v
	}

	switch out.Status {
	case sandbox.StatusSyntaxError:
		// The interpreter's compiler rejected what the grammar accepted.
		// Its verdict wins, so the candidate never parsed at all.
		v = verdict{}
		v.record(stageParse, 0, TagSyntaxError, out.Message)
		return v
	case sandbox.StatusLoadError:
		v.record(stageLoad, 0, TagRuntimeError, out.Message)
		return v
	case sandbox.StatusMissing:
		v.record(stageLoad, 0, TagMissing, "")
		return v
	case sandbox.StatusRuntimeError:
		v.record(stageCorrectness, 0, TagRuntimeError, out.Message)
		return v
	}

	if out.Equal {
		v.record(stageCorrectness, 2, TagFunctionWorks, "")
	} else {
		v.record(stageCorrectness, 0, TagIncorrectResult, "")
	}

	_, span := e.tracer.Start(ctx, "evals.conciseness")
	lines := CountLines(source)
	span.SetAttributes(attribute.Int("candidate.lines", lines))
	span.End()

	if lines <= e.lineThreshold {
		v.record(stageConciseness, 1, TagConcise, "")
	} else {
		v.record(stageConciseness, 0, TagTooLong, "")
	}
	return v
}

func (e *Evaluator) parse(ctx context.Context, source string) error {
	ctx, span := e.tracer.Start(ctx, "evals.parse")
	defer span.End()

	err := CheckSyntax(ctx, source)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

// load runs stages two and three in one fresh interpreter.
func (e *Evaluator) load(ctx context.Context, source string) (sandbox.Outcome, error) {
	ctx, span := e.tracer.Start(ctx, "evals.load", trace.WithAttributes(
		attribute.String("sandbox.runtime", e.runner.Name()),
	))
	defer span.End()

	out, err := e.runner.Run(ctx, sandbox.Request{
		Source:   source,
		Symbol:   Symbol,
		Input:    e.fixture.Input,
		Expected: e.fixture.Expected,
		Timeout:  e.execTimeout,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		e.logger.Error().Err(err).Str("runtime", e.runner.Name()).Msg("sandbox run failed")
		return sandbox.Outcome{}, err
	}

	metrics.SandboxDuration.WithLabelValues(e.runner.Name(), string(out.Status)).Observe(out.Duration.Seconds())
	span.SetAttributes(attribute.String("sandbox.status", string(out.Status)))

	e.logger.Debug().
		Str("status", string(out.Status)).
		Str("message", out.Message).
		Bool("equal", out.Equal).
		Dur("duration", out.Duration).
		Msg("sandbox outcome")

	return out, nil
}

// CountLines returns the number of lines that contain something other
// than whitespace.
func CountLines(source string) int {
	n := 0
	for _, line := range strings.FieldsFunc(source, func(r rune) bool { return r == '\n' || r == '\r' }) {
		if strings.TrimSpace(line) != "" {
			n++
		}
	}
	return n
}
