package llm

import (
	"context"
	"log/slog"
	"strings"

	"agentgate/internal/domain"
	"agentgate/internal/infra/config"
)

var _ domain.LLMProvider = (*GeminiProvider)(nil)

// Gemini defaults for its OpenAI-compatible endpoint.
const (
	geminiDefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta/openai"
	geminiDefaultModel   = "gemini-2.0-flash"
)

// GeminiProvider talks to Google Gemini through its OpenAI-compatible
// chat completions endpoint, which also honours json_schema response formats.
type GeminiProvider struct {
	inner *OpenAIProvider
}

// NewGeminiProvider creates a provider for the Google Gemini API.
func NewGeminiProvider(cfg config.ProviderConfig, logger *slog.Logger) *GeminiProvider {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = geminiDefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = geminiDefaultModel
	}
	return &GeminiProvider{inner: newOpenAICompatible(cfg, baseURL, NewHTTPClient(cfg), logger)}
}

// Chat implements domain.LLMProvider.
func (p *GeminiProvider) Chat(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	return p.inner.Chat(ctx, req)
}

// Name implements domain.LLMProvider.
func (p *GeminiProvider) Name() string { return p.inner.Name() }
