package generate

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestNewSource(t *testing.T) {
	tests := []struct {
		provider  string
		apiKey    string
		expectErr error
	}{
		{"ollama", "", nil},
		{"llama_cpp", "", nil},
		{"llamacpp", "", nil},
		{"openai", "sk-test", nil},
		{"openai", "", ErrMissingAPIKey},
		{"unknown", "", ErrUnknownProvider},
	}

	for _, tt := range tests {
		t.Run(tt.provider+"/"+tt.apiKey, func(t *testing.T) {
			source, err := NewSource(SourceConfig{
				Provider: tt.provider,
				Endpoint: "http://localhost:8080",
				Model:    "test-model",
				APIKey:   tt.apiKey,
			})
			if tt.expectErr != nil {
				if !errors.Is(err, tt.expectErr) {
					t.Errorf("expected %v, got %v", tt.expectErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if source == nil {
				t.Fatal("expected non-nil source")
			}
		})
	}
}

func TestOllamaSource_Generate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if r.Method != http.MethodPost {
			t.Errorf("unexpected method: %s", r.Method)
		}

		var req struct {
			Model    string    `json:"model"`
			Messages []Message `json:"messages"`
			Stream   bool      `json:"stream"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("failed to decode request: %v", err)
		}
		if req.Model != "test-model" {
			t.Errorf("unexpected model: %v", req.Model)
		}
		if len(req.Messages) != 2 || req.Messages[0].Role != "system" || req.Messages[1].Content != "be brief" {
			t.Errorf("unexpected messages: %+v", req.Messages)
		}

		resp := map[string]interface{}{
			"message": map[string]interface{}{
				"role":    "assistant",
				"content": "def parse_and_average(t): pass",
			},
			"model":       "test-model",
			"done":        true,
			"done_reason": "stop",
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	source := NewOllamaSource(ClientConfig{Endpoint: server.URL, Model: "test-model"})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	text, err := source.Generate(ctx, "be brief", "write code")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "def parse_and_average(t): pass" {
		t.Errorf("unexpected content: %s", text)
	}
}

func TestOllamaSource_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer server.Close()

	source := NewOllamaSource(ClientConfig{Endpoint: server.URL, Model: "missing"})

	if _, err := source.Generate(context.Background(), "p", "t"); err == nil {
		t.Error("expected error for 404 response")
	}
}

func TestOllamaSource_ListModels(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/tags" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}

		resp := map[string]interface{}{
			"models": []map[string]interface{}{
				{"name": "llama3:8b", "size": 4000000000},
				{"name": "codellama:13b", "size": 7000000000},
			},
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	source := NewOllamaSource(ClientConfig{Endpoint: server.URL})

	models, err := source.ListModels(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(models) != 2 {
		t.Fatalf("expected 2 models, got %d", len(models))
	}
	if models[0].Name != "llama3:8b" {
		t.Errorf("unexpected model name: %s", models[0].Name)
	}
	if models[1].Size != 7000000000 {
		t.Errorf("unexpected model size: %d", models[1].Size)
	}
}

func TestLlamaCppSource_Generate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}

		resp := map[string]interface{}{
			"model": "qwen",
			"choices": []map[string]interface{}{
				{
					"index":         0,
					"message":       map[string]interface{}{"role": "assistant", "content": "print(1)"},
					"finish_reason": "stop",
				},
			},
			"usage": map[string]interface{}{"total_tokens": 12},
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	source := NewLlamaCppSource(ClientConfig{Endpoint: server.URL, Model: "qwen"})

	text, err := source.Generate(context.Background(), "p", "t")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "print(1)" {
		t.Errorf("unexpected content: %s", text)
	}
}

func TestLlamaCppSource_NoChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"choices": []}`))
	}))
	defer server.Close()

	source := NewLlamaCppSource(ClientConfig{Endpoint: server.URL})

	if _, err := source.Generate(context.Background(), "p", "t"); err == nil {
		t.Error("expected error for empty choices")
	}
}

func TestLlamaCppSource_ListModelsFallback(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	source := NewLlamaCppSource(ClientConfig{Endpoint: server.URL, Model: "my-model"})

	models, err := source.ListModels(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(models) != 1 || models[0].Name != "my-model" {
		t.Errorf("expected configured model as fallback, got %+v", models)
	}
}

func TestOpenAISource_Generate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Errorf("unexpected authorization header: %q", got)
		}

		var req struct {
			Model    string    `json:"model"`
			Messages []Message `json:"messages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("failed to decode request: %v", err)
		}
		if req.Messages[0].Role != "system" || req.Messages[0].Content != "the task" {
			t.Errorf("unexpected system message: %+v", req.Messages[0])
		}

		resp := map[string]interface{}{
			"id":     "chatcmpl-1",
			"object": "chat.completion",
			"model":  req.Model,
			"choices": []map[string]interface{}{
				{
					"index":         0,
					"message":       map[string]interface{}{"role": "assistant", "content": "x = 1"},
					"finish_reason": "stop",
				},
			},
			"usage": map[string]interface{}{"prompt_tokens": 5, "completion_tokens": 3, "total_tokens": 8},
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	source, err := NewOpenAISource(OpenAIConfig{APIKey: "sk-test", BaseURL: server.URL + "/v1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	text, err := source.Generate(context.Background(), "the prompt", "the task")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "x = 1" {
		t.Errorf("unexpected content: %s", text)
	}
}

func TestOpenAISource_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error": {"message": "bad key", "type": "invalid_request_error"}}`))
	}))
	defer server.Close()

	source, err := NewOpenAISource(OpenAIConfig{APIKey: "sk-bad", BaseURL: server.URL + "/v1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := source.Generate(context.Background(), "p", "t"); err == nil {
		t.Error("expected error for 401 response")
	}
}
