package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/soypete/promptbench/pkg/config"
	"github.com/soypete/promptbench/pkg/database"
	"github.com/soypete/promptbench/pkg/evals"
	"github.com/soypete/promptbench/pkg/generate"
	"github.com/soypete/promptbench/pkg/metrics"
	"github.com/soypete/promptbench/pkg/sandbox"
)

// metricsFile is written to the output directory after every run.
const metricsFile = "metrics.prom"

func runCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Generate, score and rank every prompt in a file",
		Long: `Run every prompt in the prompts file through the generator and the
evaluator, then write best_prompt_<k>.md for the top prompts and
prompt_leaderboard.md to the output directory.

Examples:
  # Score prompts with the OpenAI API (OPENAI_API_KEY must be set)
  promptbench run --prompts prompts.txt

  # Use a local Ollama model and run candidates in Docker
  promptbench run --provider ollama --model qwen2.5-coder:7b --runtime docker

  # No model at all: every prompt gets the reference implementation
  promptbench run --offline --format console`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPrompts(cmd, opts)
		},
	}

	cmd.Flags().String("prompts", "prompts.txt", "Prompts file, one prompt per line")
	cmd.Flags().StringP("output", "o", "results", "Output directory for results")
	cmd.Flags().IntP("top", "n", evals.DefaultTopN, "Number of best_prompt files to write")
	cmd.Flags().Bool("offline", false, "Skip the model and score the reference implementation")
	cmd.Flags().String("format", "md", "Extra report formats (json, console), comma separated; markdown is always written")
	addProviderFlags(cmd)
	addSandboxFlags(cmd)
	cmd.Flags().String("db-driver", "", "Archive the run in a database (sqlite, postgres)")
	cmd.Flags().String("db-dsn", "", "Database file or connection string")

	return cmd
}

func addProviderFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("provider", "p", "openai", "Model provider (openai, ollama, llama_cpp)")
	cmd.Flags().StringP("endpoint", "e", "", "Provider endpoint URL")
	cmd.Flags().StringP("model", "m", "gpt-3.5-turbo", "Model name")
	cmd.Flags().Float64("temperature", 0, "Model temperature")
	cmd.Flags().Int("max-tokens", 1024, "Max tokens per response")
}

func addSandboxFlags(cmd *cobra.Command) {
	cmd.Flags().String("runtime", "local", "Where candidates run (local, docker)")
	cmd.Flags().String("python", "python3", "Python interpreter for the local runtime")
	cmd.Flags().String("docker-image", "python:3.12-slim", "Image for the docker runtime")
	cmd.Flags().Duration("exec-timeout", 0, "Bound each candidate's execution (0 disables)")
	cmd.Flags().Int("line-threshold", evals.DefaultLineThreshold, "Most non-blank lines a concise candidate may have")
}

func runPrompts(cmd *cobra.Command, opts *options) error {
	ctx := cmd.Context()

	cfg, err := loadConfig(cmd, opts)
	if err != nil {
		return err
	}
	logger, err := newLogger(opts, cfg)
	if err != nil {
		return err
	}

	prompts, err := evals.LoadPrompts(cfg.PromptsFile)
	if err != nil {
		return err
	}

	generator, err := buildGenerator(cfg, logger)
	if err != nil {
		return err
	}

	runner := openRunner(cfg, logger)
	if closer, ok := runner.(io.Closer); ok {
		defer closer.Close()
	}

	formats, err := parseFormats(cmd)
	if err != nil {
		return err
	}

	harness, err := evals.NewHarness(evals.HarnessConfig{
		Generator: generator,
		Evaluator: evals.NewEvaluator(evals.EvaluatorConfig{
			Runner:        runner,
			LineThreshold: cfg.LineThreshold,
			ExecTimeout:   cfg.ExecTimeout,
			Logger:        logger,
		}),
		Reporter: buildReporters(formats, cfg, opts),
		RunConfig: evals.RunConfig{
			Provider:      cfg.Provider,
			Model:         cfg.Model,
			Offline:       generator.Offline(),
			Runtime:       runner.Name(),
			TopN:          cfg.TopN,
			LineThreshold: cfg.LineThreshold,
		},
		Logger: logger,
	})
	if err != nil {
		return fmt.Errorf("create harness: %w", err)
	}

	if opts.verbose {
		harness.SetProgressCallback(func(done, total int, result evals.EvaluationResult) {
			timestamp := time.Now().Format("15:04:05")
			fmt.Fprintf(opts.stdout, "[%s] %d/%d score %d: %s\n",
				timestamp, done, total, result.Score, strings.Join(result.Diagnostics, "; "))
		})
	}

	run, err := harness.Run(ctx, prompts)
	if err != nil {
		return err
	}

	if cfg.Database.Enabled() {
		if err := archiveRun(cmd, cfg, run); err != nil {
			return err
		}
		logger.Info().Str("run_id", run.ID).Str("driver", cfg.Database.Driver).Msg("run archived")
	}

	if err := os.MkdirAll(cfg.OutputDir, 0755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	if err := metrics.WriteTextfile(filepath.Join(cfg.OutputDir, metricsFile)); err != nil {
		return err
	}

	fmt.Fprintf(opts.stdout, "Results written to '%s'\n", cfg.OutputDir)
	return nil
}

// buildGenerator wires the configured live source. A missing OpenAI key
// is not fatal: the run proceeds with the reference implementation.
func buildGenerator(cfg *config.Config, logger zerolog.Logger) (*generate.Generator, error) {
	if cfg.Offline {
		return generate.NewGenerator(generate.GeneratorConfig{Logger: logger}), nil
	}

	source, err := generate.NewSource(generate.SourceConfig{
		Provider:    cfg.Provider,
		Endpoint:    cfg.Endpoint,
		Model:       cfg.Model,
		APIKey:      cfg.APIKey,
		Temperature: cfg.Temperature,
		MaxTokens:   cfg.MaxTokens,
		Logger:      logger,
	})
	switch {
	case errors.Is(err, generate.ErrMissingAPIKey):
		logger.Warn().Err(err).Msg("no API key, every prompt will use the fallback implementation")
		return generate.NewGenerator(generate.GeneratorConfig{Logger: logger}), nil
	case err != nil:
		return nil, err
	}

	return generate.NewGenerator(generate.GeneratorConfig{Live: source, Logger: logger}), nil
}

// openRunner never fails. If the runtime cannot be set up, every
// candidate that parses is tagged with the reason instead.
func openRunner(cfg *config.Config, logger zerolog.Logger) sandbox.Runner {
	runner, err := sandbox.Open(sandbox.Config{
		Runtime: cfg.Runtime,
		Local:   sandbox.LocalConfig{Python: cfg.Python, Logger: logger},
		Docker: sandbox.DockerConfig{
			Host:          cfg.DockerHost,
			Image:         cfg.DockerImage,
			MemoryLimitMB: cfg.MemoryLimitMB,
			CPUShares:     cfg.CPUShares,
			Logger:        logger,
		},
	})
	if err != nil {
		logger.Warn().Err(err).Str("runtime", cfg.Runtime).Msg("sandbox unavailable")
		return sandbox.Unavailable(cfg.Runtime, err)
	}
	return runner
}

func parseFormats(cmd *cobra.Command) ([]string, error) {
	raw, _ := cmd.Flags().GetString("format")

	var formats []string
	for _, f := range strings.Split(raw, ",") {
		f = strings.TrimSpace(f)
		switch f {
		case "":
			continue
		case "md", "json", "console":
			formats = append(formats, f)
		default:
			return nil, fmt.Errorf("unknown format: %s", f)
		}
	}
	return formats, nil
}

// buildReporters always writes the detail documents and the leaderboard.
// Other formats are written alongside them.
func buildReporters(formats []string, cfg *config.Config, opts *options) evals.Reporter {
	reporters := []evals.Reporter{
		evals.NewDetailReporter(cfg.OutputDir, cfg.TopN),
		evals.NewLeaderboardReporter(cfg.OutputDir),
	}
	for _, f := range formats {
		switch f {
		case "json":
			reporters = append(reporters, evals.NewJSONReporter(filepath.Join(cfg.OutputDir, evals.ResultsFile), true))
		case "console":
			reporters = append(reporters, evals.NewConsoleReporter(opts.stdout, opts.verbose))
		}
	}
	return evals.NewMultiReporter(reporters...)
}

func archiveRun(cmd *cobra.Command, cfg *config.Config, run *evals.Run) error {
	ctx := cmd.Context()

	db, err := database.New(ctx, database.Config{Driver: cfg.Database.Driver, DSN: cfg.Database.DSN})
	if err != nil {
		return fmt.Errorf("open run archive: %w", err)
	}
	defer db.Close()

	if err := db.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate run archive: %w", err)
	}
	if err := database.NewRunStore(db).SaveRun(ctx, run); err != nil {
		return fmt.Errorf("archive run: %w", err)
	}
	return nil
}
