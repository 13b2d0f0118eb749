package llm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"agentgate/internal/domain"
	"agentgate/internal/infra/config"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func okResponse(content string) openaiResponse {
	return openaiResponse{
		ID:    "chatcmpl-123",
		Model: "gpt-4o-mini",
		Choices: []openaiChoice{{
			Message:      openaiMessage{Role: "assistant", Content: content},
			FinishReason: "stop",
		}},
		Usage:   openaiUsage{PromptTokens: 10, CompletionTokens: 8, TotalTokens: 18},
		Created: 1700000000,
	}
}

func TestOpenAIProviderChat(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("unexpected auth: %s", r.Header.Get("Authorization"))
		}
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("unexpected content-type: %s", r.Header.Get("Content-Type"))
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(okResponse("Hello! How can I help?"))
	}))
	defer server.Close()

	provider := NewOpenAIProvider(config.ProviderConfig{
		Name:    "test",
		BaseURL: server.URL,
		APIKey:  "test-key",
		Model:   "gpt-4o-mini",
	}, newTestLogger())

	resp, err := provider.Chat(context.Background(), domain.ChatRequest{
		Messages: []domain.Message{{Role: domain.RoleUser, Content: "Hello"}},
	})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if resp.Message.Content != "Hello! How can I help?" {
		t.Errorf("Content = %q, want %q", resp.Message.Content, "Hello! How can I help?")
	}
	if resp.Message.Role != domain.RoleAssistant {
		t.Errorf("Role = %q, want assistant", resp.Message.Role)
	}
	if resp.Usage.TotalTokens != 18 {
		t.Errorf("TotalTokens = %d, want 18", resp.Usage.TotalTokens)
	}
	if !resp.CreatedAt.Equal(time.Unix(1700000000, 0)) {
		t.Errorf("CreatedAt = %v", resp.CreatedAt)
	}
	if provider.Name() != "test" {
		t.Errorf("Name = %q", provider.Name())
	}
}

func TestOpenAIProviderSendsResponseFormat(t *testing.T) {
	var got openaiRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		json.NewEncoder(w).Encode(okResponse(`{"is_flagged": false, "reasoning": "polite"}`))
	}))
	defer server.Close()

	provider := NewOpenAIProvider(config.ProviderConfig{Name: "test", BaseURL: server.URL, Model: "default-model"}, newTestLogger())
	schema := json.RawMessage(`{"type":"object","properties":{"is_flagged":{"type":"boolean"}},"required":["is_flagged"]}`)

	_, err := provider.Chat(context.Background(), domain.ChatRequest{
		Messages: []domain.Message{
			{Role: domain.RoleSystem, Content: "Check the message."},
			{Role: domain.RoleUser, Content: "Hello"},
		},
		ResponseFormat: &domain.ResponseFormat{Name: "message_check", Schema: schema, Strict: true},
	})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}

	if got.Model != "default-model" {
		t.Errorf("Model = %q, want provider default", got.Model)
	}
	if len(got.Messages) != 2 || got.Messages[0].Role != "system" {
		t.Errorf("Messages = %+v", got.Messages)
	}
	if got.ResponseFormat == nil || got.ResponseFormat.Type != "json_schema" {
		t.Fatalf("ResponseFormat = %+v", got.ResponseFormat)
	}
	js := got.ResponseFormat.JSONSchema
	if js == nil || js.Name != "message_check" || !js.Strict {
		t.Fatalf("JSONSchema = %+v", js)
	}
	var decoded map[string]any
	if err := json.Unmarshal(js.Schema, &decoded); err != nil || decoded["type"] != "object" {
		t.Errorf("Schema = %s", js.Schema)
	}
}

func TestOpenAIProviderOmitsResponseFormatForText(t *testing.T) {
	var raw map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&raw)
		json.NewEncoder(w).Encode(okResponse("hi"))
	}))
	defer server.Close()

	provider := NewOpenAIProvider(config.ProviderConfig{Name: "test", BaseURL: server.URL}, newTestLogger())
	if _, err := provider.Chat(context.Background(), domain.ChatRequest{
		Model:    "explicit",
		Messages: []domain.Message{{Role: domain.RoleUser, Content: "Hello"}},
	}); err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if _, ok := raw["response_format"]; ok {
		t.Error("response_format should be omitted for free text")
	}
	if raw["model"] != "explicit" {
		t.Errorf("model = %v, want explicit", raw["model"])
	}
}

func TestOpenAIProviderErrors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr error
	}{
		{"server error", http.StatusBadGateway, `{"error":"bad gateway"}`, domain.ErrUpstreamUnavailable},
		{"rate limited", http.StatusTooManyRequests, `{"error":"slow down"}`, domain.ErrRateLimit},
		{"unauthorized", http.StatusUnauthorized, `{"error":"bad key"}`, domain.ErrAuthInvalid},
		{"bad request", http.StatusBadRequest, `{"error":"bad schema"}`, domain.ErrProviderError},
		{"no choices", http.StatusOK, `{"id":"x","choices":[]}`, domain.ErrProviderError},
		{"garbage", http.StatusOK, `not json`, domain.ErrProviderError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				io.WriteString(w, tt.body)
			}))
			defer server.Close()

			provider := NewOpenAIProvider(config.ProviderConfig{Name: "test", BaseURL: server.URL}, newTestLogger())
			_, err := provider.Chat(context.Background(), domain.ChatRequest{
				Messages: []domain.Message{{Role: domain.RoleUser, Content: "Hello"}},
			})
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("err = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestOpenAIProviderConnectionRefused(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	provider := NewOpenAIProvider(config.ProviderConfig{Name: "test", BaseURL: url}, newTestLogger())
	_, err := provider.Chat(context.Background(), domain.ChatRequest{
		Messages: []domain.Message{{Role: domain.RoleUser, Content: "Hello"}},
	})
	if !errors.Is(err, domain.ErrUpstreamUnavailable) {
		t.Errorf("err = %v, want ErrUpstreamUnavailable", err)
	}
}

func TestOpenAIProviderHonoursContext(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer server.Close()

	provider := NewOpenAIProvider(config.ProviderConfig{Name: "test", BaseURL: server.URL}, newTestLogger())
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, err := provider.Chat(ctx, domain.ChatRequest{Messages: []domain.Message{{Role: domain.RoleUser, Content: "Hello"}}})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want deadline exceeded", err)
	}
}

func TestCompatibleProviderDefaults(t *testing.T) {
	gem := NewGeminiProvider(config.ProviderConfig{Name: "gemini", APIKey: "k"}, nil)
	if gem.inner.baseURL != geminiDefaultBaseURL {
		t.Errorf("gemini baseURL = %q", gem.inner.baseURL)
	}
	if gem.inner.model != geminiDefaultModel {
		t.Errorf("gemini model = %q", gem.inner.model)
	}

	or := NewOpenRouterProvider(config.ProviderConfig{Name: "openrouter"}, nil)
	if or.inner.baseURL != "https://openrouter.ai/api/v1" {
		t.Errorf("openrouter baseURL = %q", or.inner.baseURL)
	}

	ol := NewOllamaProvider(config.ProviderConfig{Name: "ollama", APIKey: "ignored"}, nil)
	if ol.inner.baseURL != "http://localhost:11434/v1" {
		t.Errorf("ollama baseURL = %q", ol.inner.baseURL)
	}
	if ol.inner.apiKey != "" {
		t.Error("ollama must not send an API key")
	}
}

func TestGeminiProviderChat(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer gem-key" {
			t.Errorf("unexpected auth: %s", r.Header.Get("Authorization"))
		}
		var req openaiRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.Model != geminiDefaultModel {
			t.Errorf("model = %q", req.Model)
		}
		json.NewEncoder(w).Encode(okResponse("hi from gemini"))
	}))
	defer server.Close()

	p := NewGeminiProvider(config.ProviderConfig{Name: "gemini", BaseURL: server.URL, APIKey: "gem-key"}, newTestLogger())
	resp, err := p.Chat(context.Background(), domain.ChatRequest{Messages: []domain.Message{{Role: domain.RoleUser, Content: "Hello"}}})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if resp.Message.Content != "hi from gemini" {
		t.Errorf("Content = %q", resp.Message.Content)
	}
	if p.Name() != "gemini" {
		t.Errorf("Name = %q", p.Name())
	}
}

func TestOpenRouterProviderHeaders(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Title") != "agentgate" {
			t.Errorf("X-Title = %q", r.Header.Get("X-Title"))
		}
		if r.Header.Get("HTTP-Referer") == "" {
			t.Error("HTTP-Referer missing")
		}
		json.NewEncoder(w).Encode(okResponse("ok"))
	}))
	defer server.Close()

	p := NewOpenRouterProvider(config.ProviderConfig{Name: "openrouter", BaseURL: server.URL, APIKey: "k"}, newTestLogger())
	if _, err := p.Chat(context.Background(), domain.ChatRequest{Messages: []domain.Message{{Role: domain.RoleUser, Content: "x"}}}); err != nil {
		t.Fatalf("Chat: %v", err)
	}
}

func TestOllamaProvider(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/":
			io.WriteString(w, "Ollama is running")
		case "/v1/chat/completions":
			if r.Header.Get("Authorization") != "" {
				t.Errorf("unexpected auth header %q", r.Header.Get("Authorization"))
			}
			json.NewEncoder(w).Encode(okResponse("local answer"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	p := NewOllamaProvider(config.ProviderConfig{Name: "ollama", BaseURL: server.URL, Model: "llama3"}, newTestLogger())
	if err := p.Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}
	resp, err := p.Chat(context.Background(), domain.ChatRequest{Messages: []domain.Message{{Role: domain.RoleUser, Content: "x"}}})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if resp.Message.Content != "local answer" {
		t.Errorf("Content = %q", resp.Message.Content)
	}
}

func TestOllamaPingUnreachable(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	p := NewOllamaProvider(config.ProviderConfig{Name: "ollama", BaseURL: url}, newTestLogger())
	if err := p.Ping(context.Background()); !errors.Is(err, domain.ErrUpstreamUnavailable) {
		t.Errorf("Ping = %v, want ErrUpstreamUnavailable", err)
	}
}
