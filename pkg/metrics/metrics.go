package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// Registry holds every promptbench collector. It is separate from the
// default registry so a textfile dump contains only run metrics.
var Registry = prometheus.NewRegistry()

var (
	StageOutcomesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "promptbench_stage_outcomes_total",
			Help: "Evaluator stage outcomes by stage and diagnostic",
		},
		[]string{"stage", "outcome"},
	)

	GenerationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "promptbench_generations_total",
			Help: "Candidate generations by provider and source kind",
		},
		[]string{"provider", "kind"},
	)

	CandidateScores = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "promptbench_candidate_score",
			Help:    "Distribution of candidate scores",
			Buckets: []float64{0, 1, 2, 3, 4},
		},
	)

	SandboxDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "promptbench_sandbox_duration_seconds",
			Help:    "Wall time of one sandboxed load and invoke",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		},
		[]string{"runtime", "status"},
	)

	PromptsEvaluated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "promptbench_prompts_evaluated_total",
			Help: "Prompts taken through the full pipeline",
		},
	)
)

func init() {
	Registry.MustRegister(
		StageOutcomesTotal,
		GenerationsTotal,
		CandidateScores,
		SandboxDuration,
		PromptsEvaluated,
	)
}

// WriteTextfile dumps the registry in the Prometheus text format, for
// pickup by node_exporter's textfile collector.
func WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, Registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
