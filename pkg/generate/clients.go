package generate

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// ErrUnknownProvider is returned by NewSource for an unsupported provider.
var ErrUnknownProvider = errors.New("unknown provider")

// ModelLister is implemented by sources whose server can enumerate models.
type ModelLister interface {
	ListModels(ctx context.Context) ([]ModelInfo, error)
}

// ModelInfo contains information about a model.
type ModelInfo struct {
	Name       string `json:"name"`
	Size       int64  `json:"size,omitempty"`
	ModifiedAt string `json:"modified_at,omitempty"`
}

// Message represents a chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func chatMessages(prompt, task string) []Message {
	return []Message{
		{Role: "system", Content: task},
		{Role: "user", Content: prompt},
	}
}

// ClientConfig configures the HTTP model sources.
type ClientConfig struct {
	Endpoint    string
	Model       string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
	Logger      zerolog.Logger
}

func (c ClientConfig) httpClient() *http.Client {
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	return &http.Client{Timeout: timeout}
}

func (c ClientConfig) logger() zerolog.Logger {
	if c.Logger.GetLevel() == zerolog.Disabled {
		return zerolog.Nop()
	}
	return c.Logger
}

// OllamaSource generates candidates through an Ollama server.
type OllamaSource struct {
	endpoint   string
	cfg        ClientConfig
	httpClient *http.Client
	logger     zerolog.Logger
}

// NewOllamaSource creates a new Ollama source.
func NewOllamaSource(cfg ClientConfig) *OllamaSource {
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = "http://localhost:11434"
	}
	return &OllamaSource{
		endpoint:   endpoint,
		cfg:        cfg,
		httpClient: cfg.httpClient(),
		logger:     cfg.logger(),
	}
}

func (s *OllamaSource) Name() string {
	return "ollama"
}

func (s *OllamaSource) Generate(ctx context.Context, prompt, task string) (string, error) {
	options := map[string]interface{}{
		"temperature": s.cfg.Temperature,
	}
	if s.cfg.MaxTokens > 0 {
		options["num_predict"] = s.cfg.MaxTokens
	}

	body, err := json.Marshal(map[string]interface{}{
		"model":    s.cfg.Model,
		"messages": chatMessages(prompt, task),
		"stream":   false,
		"options":  options,
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	resp, err := postJSON(ctx, s.httpClient, s.endpoint+"/api/chat", body)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("ollama error (status %d): %s", resp.StatusCode, string(respBody))
	}

	var ollamaResp struct {
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		Model           string `json:"model"`
		PromptEvalCount int    `json:"prompt_eval_count"`
		EvalCount       int    `json:"eval_count"`
		DoneReason      string `json:"done_reason"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&ollamaResp); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}

	s.logger.Debug().
		Str("model", ollamaResp.Model).
		Int("total_tokens", ollamaResp.PromptEvalCount+ollamaResp.EvalCount).
		Str("done_reason", ollamaResp.DoneReason).
		Msg("ollama completion")

	return ollamaResp.Message.Content, nil
}

// ListModels returns the models installed on the Ollama server.
func (s *OllamaSource) ListModels(ctx context.Context) ([]ModelInfo, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, s.endpoint+"/api/tags", nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := s.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("ollama error (status %d): %s", resp.StatusCode, string(respBody))
	}

	var ollamaResp struct {
		Models []ModelInfo `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&ollamaResp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	return ollamaResp.Models, nil
}

// LlamaCppSource generates candidates through a llama.cpp server's
// OpenAI-compatible API.
type LlamaCppSource struct {
	endpoint   string
	cfg        ClientConfig
	httpClient *http.Client
	logger     zerolog.Logger
}

// NewLlamaCppSource creates a new llama.cpp source.
func NewLlamaCppSource(cfg ClientConfig) *LlamaCppSource {
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = "http://localhost:8080"
	}
	return &LlamaCppSource{
		endpoint:   endpoint,
		cfg:        cfg,
		httpClient: cfg.httpClient(),
		logger:     cfg.logger(),
	}
}

func (s *LlamaCppSource) Name() string {
	return "llama_cpp"
}

func (s *LlamaCppSource) Generate(ctx context.Context, prompt, task string) (string, error) {
	req := map[string]interface{}{
		"model":       s.cfg.Model,
		"messages":    chatMessages(prompt, task),
		"stream":      false,
		"temperature": s.cfg.Temperature,
	}
	if s.cfg.MaxTokens > 0 {
		req["max_tokens"] = s.cfg.MaxTokens
	}

	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	resp, err := postJSON(ctx, s.httpClient, s.endpoint+"/v1/chat/completions", body)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("llama.cpp error (status %d): %s", resp.StatusCode, string(respBody))
	}

	var openaiResp struct {
		Model   string `json:"model"`
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
			FinishReason string `json:"finish_reason"`
		} `json:"choices"`
		Usage struct {
			TotalTokens int `json:"total_tokens"`
		} `json:"usage"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&openaiResp); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if len(openaiResp.Choices) == 0 {
		return "", errors.New("no choices returned from llama.cpp")
	}

	s.logger.Debug().
		Str("model", openaiResp.Model).
		Int("total_tokens", openaiResp.Usage.TotalTokens).
		Str("finish_reason", openaiResp.Choices[0].FinishReason).
		Msg("llama.cpp completion")

	return openaiResp.Choices[0].Message.Content, nil
}

// ListModels returns the models the server reports. Servers without
// /v1/models fall back to the configured model name.
func (s *LlamaCppSource) ListModels(ctx context.Context) ([]ModelInfo, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, s.endpoint+"/v1/models", nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := s.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	fallback := []ModelInfo{{Name: "default"}}
	if s.cfg.Model != "" {
		fallback = []ModelInfo{{Name: s.cfg.Model}}
	}

	if resp.StatusCode != http.StatusOK {
		return fallback, nil
	}

	var modelsResp struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&modelsResp); err != nil {
		if s.cfg.Model != "" {
			return fallback, nil
		}
		return nil, fmt.Errorf("decode response: %w", err)
	}

	models := make([]ModelInfo, len(modelsResp.Data))
	for i, m := range modelsResp.Data {
		models[i] = ModelInfo{Name: m.ID}
	}
	return models, nil
}

func postJSON(ctx context.Context, client *http.Client, url string, body []byte) (*http.Response, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	return resp, nil
}

// SourceConfig selects and configures a live source.
type SourceConfig struct {
	Provider    string
	Endpoint    string
	Model       string
	APIKey      string
	Temperature float64
	MaxTokens   int
	Logger      zerolog.Logger
}

// NewSource creates a live Source based on provider type.
func NewSource(cfg SourceConfig) (Source, error) {
	switch cfg.Provider {
	case "openai":
		return NewOpenAISource(OpenAIConfig{
			APIKey:      cfg.APIKey,
			BaseURL:     cfg.Endpoint,
			Model:       cfg.Model,
			MaxTokens:   cfg.MaxTokens,
			Temperature: float32(cfg.Temperature),
			Logger:      cfg.Logger,
		})
	case "ollama":
		return NewOllamaSource(clientConfig(cfg)), nil
	case "llama_cpp", "llamacpp":
		return NewLlamaCppSource(clientConfig(cfg)), nil
	default:
		return nil, fmt.Errorf("%w: %s (supported: openai, ollama, llama_cpp)", ErrUnknownProvider, cfg.Provider)
	}
}

func clientConfig(cfg SourceConfig) ClientConfig {
	return ClientConfig{
		Endpoint:    cfg.Endpoint,
		Model:       cfg.Model,
		Temperature: cfg.Temperature,
		MaxTokens:   cfg.MaxTokens,
		Logger:      cfg.Logger,
	}
}
