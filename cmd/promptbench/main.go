// promptbench ranks prompts by how well the code a model writes for them
// scores against a fixed CSV task.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/soypete/promptbench/pkg/config"
)

// options holds the flags shared by every subcommand.
type options struct {
	configFile string
	envFile    string
	verbose    bool
	logLevel   string
	logFormat  string

	stdout io.Writer
	stderr io.Writer
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(os.Stdout, os.Stderr).ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	opts := &options{stdout: stdout, stderr: stderr}

	rootCmd := &cobra.Command{
		Use:   "promptbench",
		Short: "Rank prompts by the quality of the code they produce",
		Long: `promptbench sends each prompt in a file to a code generation model,
scores the returned Python against a fixed CSV averaging task, and writes
the best prompts and a leaderboard to an output directory.

Candidates are scored in stages:
  +1  the code parses
  +2  parse_and_average returns the expected averages
  +1  the code is at most 20 non-blank lines

Models can be reached through the OpenAI API, Ollama or llama.cpp. With
--offline, or when generation fails, a built-in reference implementation
is scored instead.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)

	rootCmd.PersistentFlags().StringVarP(&opts.configFile, "config", "c", "", "Path to config file (YAML)")
	rootCmd.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "Path to a .env file to load")
	rootCmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&opts.logFormat, "log-format", "", "Log format (console, json)")

	rootCmd.AddCommand(runCmd(opts))
	rootCmd.AddCommand(checkCmd(opts))
	rootCmd.AddCommand(modelsCmd(opts))
	rootCmd.AddCommand(historyCmd(opts))

	return rootCmd
}

// loadConfig builds the effective configuration: defaults, then the config
// file, then the environment, then any flags the user set explicitly.
func loadConfig(cmd *cobra.Command, opts *options) (*config.Config, error) {
	if err := config.LoadDotEnv(opts.envFile); err != nil {
		return nil, err
	}

	cfg, err := config.Load(opts.configFile)
	if err != nil {
		return nil, err
	}

	env, err := config.ReadEnv(cmd.Context(), nil)
	if err != nil {
		return nil, err
	}
	cfg.ApplyEnv(env)

	if opts.logLevel != "" {
		cfg.LogLevel = opts.logLevel
	}
	if opts.logFormat != "" {
		cfg.LogFormat = opts.logFormat
	}
	applyFlags(cmd, cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyFlags copies every explicitly set flag the command defines onto cfg.
func applyFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	set := func(name string, apply func()) {
		if flags.Lookup(name) != nil && flags.Changed(name) {
			apply()
		}
	}

	set("prompts", func() { cfg.PromptsFile, _ = flags.GetString("prompts") })
	set("output", func() { cfg.OutputDir, _ = flags.GetString("output") })
	set("top", func() { cfg.TopN, _ = flags.GetInt("top") })
	set("offline", func() { cfg.Offline, _ = flags.GetBool("offline") })
	set("provider", func() { cfg.Provider, _ = flags.GetString("provider") })
	set("endpoint", func() { cfg.Endpoint, _ = flags.GetString("endpoint") })
	set("model", func() { cfg.Model, _ = flags.GetString("model") })
	set("temperature", func() { cfg.Temperature, _ = flags.GetFloat64("temperature") })
	set("max-tokens", func() { cfg.MaxTokens, _ = flags.GetInt("max-tokens") })
	set("runtime", func() { cfg.Runtime, _ = flags.GetString("runtime") })
	set("python", func() { cfg.Python, _ = flags.GetString("python") })
	set("docker-image", func() { cfg.DockerImage, _ = flags.GetString("docker-image") })
	set("exec-timeout", func() { cfg.ExecTimeout, _ = flags.GetDuration("exec-timeout") })
	set("line-threshold", func() { cfg.LineThreshold, _ = flags.GetInt("line-threshold") })
	set("db-driver", func() { cfg.Database.Driver, _ = flags.GetString("db-driver") })
	set("db-dsn", func() { cfg.Database.DSN, _ = flags.GetString("db-dsn") })
}

func newLogger(opts *options, cfg *config.Config) (zerolog.Logger, error) {
	return config.NewLogger(opts.stderr, cfg.LogLevel, cfg.LogFormat)
}
