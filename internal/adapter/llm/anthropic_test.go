package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"agentgate/internal/domain"
	"agentgate/internal/infra/config"
)

func newAnthropicServer(t *testing.T, got *anthropicRequest, resp anthropicResponse) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if r.Header.Get("x-api-key") != "ant-key" {
			t.Errorf("x-api-key = %q", r.Header.Get("x-api-key"))
		}
		if r.Header.Get("anthropic-version") != defaultAnthropicVersion {
			t.Errorf("anthropic-version = %q", r.Header.Get("anthropic-version"))
		}
		if got != nil {
			if err := json.NewDecoder(r.Body).Decode(got); err != nil {
				t.Errorf("decode request: %v", err)
			}
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
}

func TestAnthropicProviderChat(t *testing.T) {
	var got anthropicRequest
	server := newAnthropicServer(t, &got, anthropicResponse{
		ID:      "msg_1",
		Model:   "claude-test",
		Role:    "assistant",
		Content: []anthropicContent{{Type: "text", Text: "Hello! "}, {Type: "text", Text: "How can I help?"}},
		Usage:   anthropicUsage{InputTokens: 12, OutputTokens: 6},
	})
	defer server.Close()

	provider := NewAnthropicProvider(config.ProviderConfig{
		Name:    "claude",
		BaseURL: server.URL,
		APIKey:  "ant-key",
		Model:   "claude-test",
	}, newTestLogger())

	resp, err := provider.Chat(context.Background(), domain.ChatRequest{
		Messages: []domain.Message{
			{Role: domain.RoleSystem, Content: "You are a support agent."},
			{Role: domain.RoleUser, Content: "Hello"},
			{Role: domain.RoleUser, Content: "Anyone there?"},
		},
	})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if resp.Message.Content != "Hello! How can I help?" {
		t.Errorf("Content = %q", resp.Message.Content)
	}
	if resp.Usage.TotalTokens != 18 {
		t.Errorf("TotalTokens = %d, want 18", resp.Usage.TotalTokens)
	}
	if provider.Name() != "claude" {
		t.Errorf("Name = %q", provider.Name())
	}

	if got.System != "You are a support agent." {
		t.Errorf("System = %q", got.System)
	}
	if len(got.Messages) != 2 || got.Messages[1].Content[0].Text != "Anyone there?" {
		t.Errorf("Messages = %+v", got.Messages)
	}
	if got.MaxTokens != defaultAnthropicMaxTokens {
		t.Errorf("MaxTokens = %d", got.MaxTokens)
	}
	if got.Model != "claude-test" {
		t.Errorf("Model = %q, want provider default", got.Model)
	}
	if len(got.Tools) != 0 || got.ToolChoice != nil {
		t.Errorf("free-text request sent tools: %+v", got.Tools)
	}
}

func TestAnthropicProviderForcesSchemaTool(t *testing.T) {
	var got anthropicRequest
	server := newAnthropicServer(t, &got, anthropicResponse{
		ID:    "msg_2",
		Model: "claude-test",
		Content: []anthropicContent{
			{Type: "text", Text: "Checking."},
			{Type: "tool_use", ID: "toolu_1", Name: "message_check", Input: json.RawMessage(`{"is_flagged":true,"reasoning":"profanity"}`)},
		},
		StopReason: "tool_use",
	})
	defer server.Close()

	provider := NewAnthropicProvider(config.ProviderConfig{Name: "claude", BaseURL: server.URL, APIKey: "ant-key"}, newTestLogger())
	schema := json.RawMessage(`{"type":"object","properties":{"is_flagged":{"type":"boolean"},"reasoning":{"type":"string"}},"required":["is_flagged","reasoning"],"additionalProperties":false}`)

	resp, err := provider.Chat(context.Background(), domain.ChatRequest{
		Model:          "claude-override",
		Messages:       []domain.Message{{Role: domain.RoleUser, Content: "This damn thing"}},
		ResponseFormat: &domain.ResponseFormat{Name: "message_check", Schema: schema, Strict: true},
	})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if resp.Message.Content != `{"is_flagged":true,"reasoning":"profanity"}` {
		t.Errorf("Content = %q, want tool input", resp.Message.Content)
	}

	if got.Model != "claude-override" {
		t.Errorf("Model = %q", got.Model)
	}
	if len(got.Tools) != 1 || got.Tools[0].Name != "message_check" {
		t.Fatalf("Tools = %+v", got.Tools)
	}
	if string(got.Tools[0].InputSchema) != string(schema) {
		t.Errorf("InputSchema = %s", got.Tools[0].InputSchema)
	}
	if got.ToolChoice == nil || got.ToolChoice.Type != "tool" || got.ToolChoice.Name != "message_check" {
		t.Errorf("ToolChoice = %+v", got.ToolChoice)
	}
}

func TestAnthropicProviderStructuredWithoutToolUse(t *testing.T) {
	server := newAnthropicServer(t, nil, anthropicResponse{
		Content: []anthropicContent{{Type: "text", Text: "I cannot answer that."}},
	})
	defer server.Close()

	provider := NewAnthropicProvider(config.ProviderConfig{Name: "claude", BaseURL: server.URL, APIKey: "ant-key"}, newTestLogger())
	resp, err := provider.Chat(context.Background(), domain.ChatRequest{
		Messages:       []domain.Message{{Role: domain.RoleUser, Content: "hi"}},
		ResponseFormat: &domain.ResponseFormat{Name: "answer", Schema: json.RawMessage(`{"type":"object"}`)},
	})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if resp.Message.Content != "I cannot answer that." {
		t.Errorf("Content = %q, want text passed through for decoding", resp.Message.Content)
	}
}

func TestAnthropicProviderErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   error
	}{
		{"unauthorized", http.StatusUnauthorized, domain.ErrAuthInvalid},
		{"overloaded", 529, domain.ErrUpstreamUnavailable},
		{"rate limited", http.StatusTooManyRequests, domain.ErrRateLimit},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(`{"type":"error"}`))
			}))
			defer server.Close()

			provider := NewAnthropicProvider(config.ProviderConfig{Name: "claude", BaseURL: server.URL, APIKey: "ant-key"}, newTestLogger())
			_, err := provider.Chat(context.Background(), domain.ChatRequest{
				Messages: []domain.Message{{Role: domain.RoleUser, Content: "hi"}},
			})
			if !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
}
