package main

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/soypete/promptbench/pkg/database"
	"github.com/soypete/promptbench/pkg/evals"
)

func historyCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history [run-id]",
		Short: "Show archived runs",
		Long: `List runs archived with --db-driver, most recent first, or show the
ranking of one run.

Examples:
  promptbench history --db-driver sqlite --db-dsn runs.db
  promptbench history 3f2c7d9e-... --db-driver sqlite --db-dsn runs.db`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return showHistory(cmd, opts, args)
		},
	}

	cmd.Flags().Int("limit", 20, "Number of runs to list")
	cmd.Flags().String("db-driver", "", "Archive database driver (sqlite, postgres)")
	cmd.Flags().String("db-dsn", "", "Database file or connection string")

	return cmd
}

func showHistory(cmd *cobra.Command, opts *options, args []string) error {
	ctx := cmd.Context()

	cfg, err := loadConfig(cmd, opts)
	if err != nil {
		return err
	}
	if !cfg.Database.Enabled() {
		return errors.New("no run archive configured (set database.driver or --db-driver)")
	}

	db, err := database.New(ctx, database.Config{Driver: cfg.Database.Driver, DSN: cfg.Database.DSN})
	if err != nil {
		return fmt.Errorf("open run archive: %w", err)
	}
	defer db.Close()

	if err := db.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate run archive: %w", err)
	}
	store := database.NewRunStore(db)

	if len(args) == 1 {
		rec, err := store.GetRun(ctx, args[0])
		if err != nil {
			return err
		}
		results, err := store.Results(ctx, args[0])
		if err != nil {
			return err
		}
		run := &evals.Run{
			ID:          rec.ID,
			StartedAt:   rec.StartedAt,
			CompletedAt: rec.CompletedAt,
			Config: evals.RunConfig{
				Provider: rec.Provider,
				Model:    rec.Model,
				Offline:  rec.Offline,
			},
			Results: results,
			Summary: evals.Summarize(results),
		}
		return evals.NewConsoleReporter(opts.stdout, true).Report(run)
	}

	limit, _ := cmd.Flags().GetInt("limit")
	records, err := store.ListRuns(ctx, limit)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Fprintln(opts.stdout, "No archived runs.")
		return nil
	}

	table := evals.NewTable([]string{"Run", "Started", "Model", "Prompts", "Best"}, opts.stdout)
	for _, rec := range records {
		model := fmt.Sprintf("%s (%s)", rec.Model, rec.Provider)
		if rec.Offline {
			model = "offline"
		}
		if err := table.Append([]string{
			rec.ID,
			rec.StartedAt.Local().Format("2006-01-02 15:04"),
			model,
			strconv.Itoa(rec.PromptCount),
			strconv.Itoa(rec.BestScore),
		}); err != nil {
			return fmt.Errorf("append table row: %w", err)
		}
	}
	return table.Render()
}
