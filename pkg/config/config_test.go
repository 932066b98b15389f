package config

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sethvargo/go-envconfig"
)

func TestLoad(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		wantErr  bool
		validate func(*testing.T, *Config)
	}{
		{
			name: "offline local run",
			content: `
prompts_file: meta/prompts.txt
output_dir: out
offline: true
`,
			validate: func(t *testing.T, c *Config) {
				if c.PromptsFile != "meta/prompts.txt" {
					t.Errorf("PromptsFile = %v, want meta/prompts.txt", c.PromptsFile)
				}
				if !c.Offline {
					t.Error("Offline should be true")
				}
				// Check defaults were kept
				if c.TopN != 3 {
					t.Errorf("TopN = %v, want 3", c.TopN)
				}
				if c.LineThreshold != 20 {
					t.Errorf("LineThreshold = %v, want 20", c.LineThreshold)
				}
				if c.ExecTimeout != 0 {
					t.Errorf("ExecTimeout = %v, want 0", c.ExecTimeout)
				}
			},
		},
		{
			name: "ollama with docker runtime",
			content: `
provider: ollama
endpoint: http://gpu-box:11434
model: qwen2.5-coder:7b
runtime: docker
exec_timeout: 15s
database:
  driver: sqlite
  dsn: runs.db
`,
			validate: func(t *testing.T, c *Config) {
				if c.Provider != "ollama" {
					t.Errorf("Provider = %v, want ollama", c.Provider)
				}
				if c.Runtime != "docker" {
					t.Errorf("Runtime = %v, want docker", c.Runtime)
				}
				if c.ExecTimeout != 15*time.Second {
					t.Errorf("ExecTimeout = %v, want 15s", c.ExecTimeout)
				}
				if !c.Database.Enabled() || c.Database.DSN != "runs.db" {
					t.Errorf("Database = %+v", c.Database)
				}
				if c.DockerImage != "python:3.12-slim" {
					t.Errorf("DockerImage = %v, want default", c.DockerImage)
				}
			},
		},
		{
			name:    "invalid YAML",
			content: "top_n: [",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "promptbench.yaml")
			if err := os.WriteFile(path, []byte(tt.content), 0644); err != nil {
				t.Fatal(err)
			}

			cfg, err := Load(path)
			if tt.wantErr {
				if err == nil {
					t.Error("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}
			if err := cfg.Validate(); err != nil {
				t.Fatalf("Validate() error = %v", err)
			}
			tt.validate(t, cfg)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestLoadEmptyPath(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantMsg string
	}{
		{"unknown provider", func(c *Config) { c.Provider = "bard" }, "Provider must be one of"},
		{"unknown runtime", func(c *Config) { c.Runtime = "wasm" }, "Runtime must be one of"},
		{"zero top n", func(c *Config) { c.TopN = 0 }, "TopN must be at least 1"},
		{"docker without image", func(c *Config) { c.Runtime = "docker"; c.DockerImage = "" }, "DockerImage is required"},
		{"driver without dsn", func(c *Config) { c.Database.Driver = "postgres" }, "Database.DSN is required"},
		{"unknown driver", func(c *Config) { c.Database.Driver = "mysql"; c.Database.DSN = "x" }, "Database.Driver must be one of"},
		{"negative timeout", func(c *Config) { c.ExecTimeout = -time.Second }, "ExecTimeout must be at least"},
		{"bad log level", func(c *Config) { c.LogLevel = "verbose" }, "LogLevel must be one of"},
		{"bad endpoint", func(c *Config) { c.Endpoint = "not a url" }, "Endpoint must be a URL"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("error %q does not contain %q", err, tt.wantMsg)
			}
		})
	}
}

func TestReadEnvAndApply(t *testing.T) {
	env, err := ReadEnv(context.Background(), envconfig.MapLookuper(map[string]string{
		"OPENAI_API_KEY":           "sk-test",
		"OPENAI_BASE_URL":          "http://proxy:8000/v1",
		"PROMPTBENCH_DATABASE_DSN": "postgres://localhost/promptbench",
	}))
	if err != nil {
		t.Fatalf("ReadEnv() error = %v", err)
	}

	cfg := Default()
	cfg.ApplyEnv(env)

	if cfg.APIKey != "sk-test" {
		t.Errorf("APIKey = %q", cfg.APIKey)
	}
	if cfg.Endpoint != "http://proxy:8000/v1" {
		t.Errorf("Endpoint = %q", cfg.Endpoint)
	}
	if cfg.Database.DSN != "postgres://localhost/promptbench" {
		t.Errorf("Database.DSN = %q", cfg.Database.DSN)
	}

	// File values win.
	cfg = Default()
	cfg.Endpoint = "http://file:1/v1"
	cfg.ApplyEnv(env)
	if cfg.Endpoint != "http://file:1/v1" {
		t.Errorf("Endpoint = %q, file value should win", cfg.Endpoint)
	}
}

func TestLoadDotEnv(t *testing.T) {
	if err := LoadDotEnv(filepath.Join(t.TempDir(), ".env")); err != nil {
		t.Errorf("missing .env should not be an error: %v", err)
	}

	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("PROMPTBENCH_TEST_DOTENV=loaded\n"), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("PROMPTBENCH_TEST_DOTENV", "")
	os.Unsetenv("PROMPTBENCH_TEST_DOTENV")

	if err := LoadDotEnv(path); err != nil {
		t.Fatalf("LoadDotEnv() error = %v", err)
	}
	if got := os.Getenv("PROMPTBENCH_TEST_DOTENV"); got != "loaded" {
		t.Errorf("PROMPTBENCH_TEST_DOTENV = %q, want loaded", got)
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewLogger(&buf, "warn", "json")
	if err != nil {
		t.Fatalf("NewLogger() error = %v", err)
	}

	logger.Info().Msg("hidden")
	logger.Warn().Msg("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Error("info line should be filtered at warn level")
	}
	if !strings.Contains(out, `"message":"shown"`) {
		t.Errorf("expected JSON warn line, got %q", out)
	}

	if _, err := NewLogger(&buf, "loud", "json"); err == nil {
		t.Error("expected error for unknown level")
	}
}
