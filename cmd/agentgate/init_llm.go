package main

import (
	"fmt"
	"log/slog"

	"agentgate/internal/adapter/llm"
	"agentgate/internal/domain"
	"agentgate/internal/infra/config"
)

// LLMComponents holds all LLM-related components
type LLMComponents struct {
	Registry   *llm.Registry
	DefaultLLM domain.LLMProvider
}

// initLLM initializes LLM providers, registry, failover and the shared rate limit.
func initLLM(cfg *config.Config, log *slog.Logger) (*LLMComponents, error) {
	registry := llm.NewRegistry()

	cbCfg := cfg.LLM.CircuitBreaker
	for _, pc := range cfg.LLM.Providers {
		provider, err := createLLMProvider(pc, log)
		if err != nil {
			return nil, fmt.Errorf("llm provider %s: %w", pc.Name, err)
		}

		// Per-provider breaker, so a failover target keeps its own state.
		if cbCfg.Enabled {
			provider = llm.NewCircuitBreakerProvider(provider, llm.CircuitBreakerConfig{
				MaxFailures: cbCfg.MaxFailures,
				Timeout:     cbCfg.Timeout,
				Interval:    cbCfg.Interval,
			}, log)
		}

		if err := registry.Register(provider); err != nil {
			return nil, fmt.Errorf("llm provider %s: %w", pc.Name, err)
		}
	}

	if cbCfg.Enabled {
		log.Info("llm circuit breaker enabled",
			"max_failures", cbCfg.MaxFailures,
			"timeout", cbCfg.Timeout,
			"interval", cbCfg.Interval,
		)
	}

	defaultLLM, err := registry.Get(cfg.LLM.DefaultProvider)
	if err != nil {
		return nil, fmt.Errorf("default llm provider: %w", err)
	}

	if cfg.LLM.Failover.Enabled && len(cfg.LLM.Failover.Fallbacks) > 0 {
		var fallbacks []domain.LLMProvider
		for _, name := range cfg.LLM.Failover.Fallbacks {
			fb, err := registry.Get(name)
			if err != nil {
				return nil, fmt.Errorf("failover provider %s: %w", name, err)
			}
			fallbacks = append(fallbacks, fb)
		}
		defaultLLM = llm.NewFailoverProvider(defaultLLM, fallbacks, log)
		log.Info("model failover enabled", "fallbacks", cfg.LLM.Failover.Fallbacks)
	}

	if rl := cfg.LLM.RateLimit; rl.Enabled && rl.RequestsPerMinute > 0 {
		defaultLLM = llm.NewRateLimitedProvider(defaultLLM, rl.RequestsPerMinute, rl.Burst)
		log.Info("llm rate limit enabled", "requests_per_minute", rl.RequestsPerMinute, "burst", rl.Burst)
	}

	return &LLMComponents{
		Registry:   registry,
		DefaultLLM: defaultLLM,
	}, nil
}

func createLLMProvider(pc config.ProviderConfig, log *slog.Logger) (domain.LLMProvider, error) {
	switch pc.Type {
	case "openai", "":
		return llm.NewOpenAIProvider(pc, log), nil
	case "gemini":
		return llm.NewGeminiProvider(pc, log), nil
	case "openrouter":
		return llm.NewOpenRouterProvider(pc, log), nil
	case "ollama":
		return llm.NewOllamaProvider(pc, log), nil
	case "anthropic":
		return llm.NewAnthropicProvider(pc, log), nil
	default:
		return nil, fmt.Errorf("unknown provider type: %s", pc.Type)
	}
}

// defaultModel reports the model of the default provider, for display.
func defaultModel(cfg *config.Config) string {
	for _, p := range cfg.LLM.Providers {
		if p.Name == cfg.LLM.DefaultProvider {
			if p.Model != "" {
				return p.Model
			}
			return p.Type
		}
	}
	return cfg.LLM.DefaultProvider
}
