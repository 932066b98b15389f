package config

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/sethvargo/go-envconfig"
	"gopkg.in/yaml.v3"
)

// Config represents the promptbench configuration
type Config struct {
	PromptsFile string `yaml:"prompts_file" validate:"required"`
	OutputDir   string `yaml:"output_dir" validate:"required"`
	TopN        int    `yaml:"top_n" validate:"min=1"`
	Offline     bool   `yaml:"offline"`

	Provider    string  `yaml:"provider" validate:"oneof=openai ollama llama_cpp llamacpp"`
	Endpoint    string  `yaml:"endpoint" validate:"omitempty,url"`
	Model       string  `yaml:"model"`
	APIKey      string  `yaml:"-"`
	Temperature float64 `yaml:"temperature" validate:"gte=0,lte=2"`
	MaxTokens   int     `yaml:"max_tokens" validate:"gte=0"`

	Runtime       string        `yaml:"runtime" validate:"oneof=local docker"`
	Python        string        `yaml:"python" validate:"required_if=Runtime local"`
	DockerImage   string        `yaml:"docker_image" validate:"required_if=Runtime docker"`
	DockerHost    string        `yaml:"docker_host"`
	MemoryLimitMB int64         `yaml:"memory_limit_mb" validate:"gte=0"`
	CPUShares     int64         `yaml:"cpu_shares" validate:"gte=0"`
	ExecTimeout   time.Duration `yaml:"exec_timeout" validate:"gte=0"`
	LineThreshold int           `yaml:"line_threshold" validate:"min=1"`

	Database DatabaseConfig `yaml:"database"`

	LogLevel  string `yaml:"log_level" validate:"oneof=debug info warn error"`
	LogFormat string `yaml:"log_format" validate:"oneof=console json"`
}

// DatabaseConfig configures the optional run archive.
type DatabaseConfig struct {
	// Driver is empty when the archive is disabled.
	Driver string `yaml:"driver" validate:"omitempty,oneof=sqlite sqlite3 postgres"`
	DSN    string `yaml:"dsn" validate:"required_with=Driver"`
}

// Enabled reports whether runs should be archived.
func (d DatabaseConfig) Enabled() bool {
	return d.Driver != ""
}

// Env holds settings read from the process environment.
type Env struct {
	OpenAIAPIKey  string `env:"OPENAI_API_KEY"`
	OpenAIBaseURL string `env:"OPENAI_BASE_URL"`
	DatabaseDSN   string `env:"PROMPTBENCH_DATABASE_DSN"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		PromptsFile:   "prompts.txt",
		OutputDir:     "results",
		TopN:          3,
		Provider:      "openai",
		Model:         "gpt-3.5-turbo",
		Temperature:   0,
		MaxTokens:     1024,
		Runtime:       "local",
		Python:        "python3",
		DockerImage:   "python:3.12-slim",
		MemoryLimitMB: 256,
		CPUShares:     512,
		LineThreshold: 20,
		LogLevel:      "info",
		LogFormat:     "console",
	}
}

// Load reads a YAML file over the defaults. An empty path returns the
// defaults. The result is not validated; call Validate after applying
// environment and flag overrides.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config YAML: %w", err)
	}

	return cfg, nil
}

// LoadDotEnv loads variables from a .env file into the process
// environment. A missing file is not an error.
func LoadDotEnv(path string) error {
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// ReadEnv decodes Env using lookuper, or the process environment when
// lookuper is nil.
func ReadEnv(ctx context.Context, lookuper envconfig.Lookuper) (Env, error) {
	var env Env
	if lookuper == nil {
		lookuper = envconfig.OsLookuper()
	}
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   &env,
		Lookuper: lookuper,
	}); err != nil {
		return Env{}, fmt.Errorf("read environment: %w", err)
	}
	return env, nil
}

// ApplyEnv copies secrets and endpoint overrides from env. Values already
// set in the file win over OPENAI_BASE_URL and PROMPTBENCH_DATABASE_DSN.
func (c *Config) ApplyEnv(env Env) {
	c.APIKey = env.OpenAIAPIKey
	if c.Endpoint == "" && c.Provider == "openai" {
		c.Endpoint = env.OpenAIBaseURL
	}
	if c.Database.DSN == "" {
		c.Database.DSN = env.DatabaseDSN
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate validates the configuration
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("validate config: %w", err)
	}

	msgs := make([]string, len(verrs))
	for i, fe := range verrs {
		msgs[i] = describeFieldError(fe)
	}
	return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
}

func describeFieldError(fe validator.FieldError) string {
	field := fe.Namespace()
	if i := strings.IndexByte(field, '.'); i >= 0 {
		field = field[i+1:]
	}
	switch fe.Tag() {
	case "required", "required_if", "required_with":
		return fmt.Sprintf("%s is required", field)
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s], got %q", field, fe.Param(), fmt.Sprint(fe.Value()))
	case "min", "gte":
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "lte":
		return fmt.Sprintf("%s must be at most %s", field, fe.Param())
	case "url":
		return fmt.Sprintf("%s must be a URL", field)
	default:
		return fmt.Sprintf("%s failed %s", field, fe.Tag())
	}
}

// NewLogger builds the run logger. Console output is human readable;
// json emits one object per line.
func NewLogger(w io.Writer, level, format string) (zerolog.Logger, error) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return zerolog.Nop(), fmt.Errorf("parse log level: %w", err)
	}

	if format == "console" {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}
	}
	return zerolog.New(w).Level(lvl).With().Timestamp().Logger(), nil
}
