package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/soypete/promptbench/pkg/generate"
)

func modelsCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "models",
		Short: "List available models",
		Long: `List available models from an Ollama or llama.cpp server.

Examples:
  promptbench models --provider ollama
  promptbench models --provider llama_cpp --endpoint http://localhost:8080`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return listModels(cmd, opts)
		},
	}

	cmd.Flags().StringP("provider", "p", "ollama", "Model provider (ollama, llama_cpp)")
	cmd.Flags().StringP("endpoint", "e", "", "Provider endpoint URL")

	return cmd
}

func listModels(cmd *cobra.Command, opts *options) error {
	provider, _ := cmd.Flags().GetString("provider")
	endpoint, _ := cmd.Flags().GetString("endpoint")

	source, err := generate.NewSource(generate.SourceConfig{Provider: provider, Endpoint: endpoint})
	if err != nil {
		return err
	}
	lister, ok := source.(generate.ModelLister)
	if !ok {
		return fmt.Errorf("provider %s cannot list models", provider)
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	models, err := lister.ListModels(ctx)
	if err != nil {
		return fmt.Errorf("list models: %w", err)
	}

	fmt.Fprintf(opts.stdout, "Available models (%s):\n\n", source.Name())
	for _, m := range models {
		fmt.Fprintf(opts.stdout, "  - %s\n", m.Name)
	}

	return nil
}
