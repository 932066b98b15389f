package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/soypete/promptbench/pkg/evals"
)

func checkCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check <file>",
		Short: "Score a single Python file",
		Long: `Score one candidate file with the same stages a run uses, without
generating anything.

Examples:
  promptbench check candidate.py
  promptbench check candidate.py --runtime docker --exec-timeout 10s`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return checkFile(cmd, opts, args[0])
		},
	}

	addSandboxFlags(cmd)
	return cmd
}

func checkFile(cmd *cobra.Command, opts *options, path string) error {
	cfg, err := loadConfig(cmd, opts)
	if err != nil {
		return err
	}
	logger, err := newLogger(opts, cfg)
	if err != nil {
		return err
	}

	source, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read candidate: %w", err)
	}

	runner := openRunner(cfg, logger)
	if closer, ok := runner.(io.Closer); ok {
		defer closer.Close()
	}

	evaluator := evals.NewEvaluator(evals.EvaluatorConfig{
		Runner:        runner,
		LineThreshold: cfg.LineThreshold,
		ExecTimeout:   cfg.ExecTimeout,
		Logger:        logger,
	})
	result := evaluator.Evaluate(cmd.Context(), evals.Candidate{Prompt: path, Artifact: string(source)})

	fmt.Fprintf(opts.stdout, "Score: %d/%d\n", result.Score, evals.MaxScore)
	fmt.Fprintf(opts.stdout, "Evaluation: %s\n", strings.Join(result.Diagnostics, "; "))
	return nil
}
