package config

import (
	"fmt"
	"net"
	"strings"
)

// ValidationError accumulates config validation errors.
type ValidationError struct {
	Errors []string
}

func (v *ValidationError) Error() string {
	return "config validation failed:\n  - " + strings.Join(v.Errors, "\n  - ")
}

// HasErrors reports whether any validation errors have been recorded.
func (v *ValidationError) HasErrors() bool {
	return len(v.Errors) > 0
}

// Add records a formatted validation error.
func (v *ValidationError) Add(format string, args ...any) {
	v.Errors = append(v.Errors, fmt.Sprintf(format, args...))
}

// Validate checks cfg for structural correctness. It returns a *ValidationError
// when one or more problems are found, allowing callers to inspect all issues.
func Validate(cfg *Config) error {
	ve := &ValidationError{}
	validateLLM(cfg, ve)
	validateRunner(cfg, ve)
	validateLogger(cfg, ve)
	validateTracer(cfg, ve)
	validateGateway(cfg, ve)
	validateAgents(cfg, ve)
	if ve.HasErrors() {
		return ve
	}
	return nil
}

var validProviderTypes = map[string]bool{
	"openai":     true,
	"gemini":     true,
	"openrouter": true,
	"ollama":     true,
	"anthropic":  true,
}

func validateLLM(cfg *Config, ve *ValidationError) {
	if cfg.LLM.DefaultProvider == "" {
		ve.Add("llm.default_provider must not be empty")
	}

	seen := make(map[string]bool)
	foundDefault := false
	for i, p := range cfg.LLM.Providers {
		if p.Name == "" {
			ve.Add("llm.providers[%d].name must not be empty", i)
			continue
		}
		if seen[p.Name] {
			ve.Add("llm.providers[%d]: duplicate provider name %q", i, p.Name)
		}
		seen[p.Name] = true

		if p.Type != "" && !validProviderTypes[p.Type] {
			ve.Add("llm.providers[%d].type %q is invalid (want: openai, gemini, openrouter, ollama, anthropic)", i, p.Type)
		}
		if p.APIKey == "" && p.Type != "ollama" {
			hint := "AGENTGATE_LLM_PROVIDER_" + envName(p.Name) + "_API_KEY"
			if name, ok := vendorKeyEnv[p.Type]; ok {
				hint += " or " + name
			}
			ve.Add("llm.providers[%d] (%s): api_key is empty (set via %s)", i, p.Name, hint)
		}
		if p.Name == cfg.LLM.DefaultProvider {
			foundDefault = true
		}
	}

	if !foundDefault && cfg.LLM.DefaultProvider != "" {
		ve.Add("llm.default_provider %q does not match any configured provider", cfg.LLM.DefaultProvider)
	}

	if cfg.LLM.Failover.Enabled {
		if len(cfg.LLM.Failover.Fallbacks) == 0 {
			ve.Add("llm.failover.fallbacks must not be empty when failover is enabled")
		}
		for _, name := range cfg.LLM.Failover.Fallbacks {
			if !seen[name] {
				ve.Add("llm.failover.fallbacks: unknown provider %q", name)
			}
		}
	}
	if cfg.LLM.CircuitBreaker.Enabled && cfg.LLM.CircuitBreaker.MaxFailures == 0 {
		ve.Add("llm.circuit_breaker.max_failures must be > 0 when enabled")
	}
	if cfg.LLM.RateLimit.Enabled && cfg.LLM.RateLimit.RequestsPerMinute <= 0 {
		ve.Add("llm.rate_limit.requests_per_minute must be > 0 when enabled")
	}
}

func validateRunner(cfg *Config, ve *ValidationError) {
	if cfg.Runner.CallTimeout <= 0 {
		ve.Add("runner.call_timeout must be > 0")
	}
	if cfg.Runner.MaxParallelGuardrails < 0 {
		ve.Add("runner.max_parallel_guardrails must be >= 0")
	}
	if cfg.Runner.MaxHandoffDepth < 0 {
		ve.Add("runner.max_handoff_depth must be >= 0")
	}
}

var (
	validLogLevels  = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	validLogFormats = map[string]bool{"text": true, "json": true}
	validExporters  = map[string]bool{"": true, "noop": true, "stdout": true}
)

func validateLogger(cfg *Config, ve *ValidationError) {
	if !validLogLevels[strings.ToLower(cfg.Logger.Level)] {
		ve.Add("logger.level %q is invalid (want: debug, info, warn, error)", cfg.Logger.Level)
	}
	if !validLogFormats[cfg.Logger.Format] {
		ve.Add("logger.format %q is invalid (want: text, json)", cfg.Logger.Format)
	}
}

func validateTracer(cfg *Config, ve *ValidationError) {
	if cfg.Tracer.Enabled && !validExporters[cfg.Tracer.Exporter] {
		ve.Add("tracer.exporter %q is invalid (want: noop, stdout)", cfg.Tracer.Exporter)
	}
}

func validateGateway(cfg *Config, ve *ValidationError) {
	if !cfg.Gateway.Enabled {
		return
	}
	if cfg.Gateway.Addr == "" {
		ve.Add("gateway.addr is required when gateway is enabled")
	} else if _, _, err := net.SplitHostPort(cfg.Gateway.Addr); err != nil {
		ve.Add("gateway.addr %q is not a valid host:port", cfg.Gateway.Addr)
	}

	switch cfg.Gateway.Auth.Type {
	case "":
	case "static":
		if len(cfg.Gateway.Auth.Tokens) == 0 {
			ve.Add("gateway.auth.tokens must not be empty for static auth")
		}
		for i, tok := range cfg.Gateway.Auth.Tokens {
			if tok.Token == "" {
				ve.Add("gateway.auth.tokens[%d].token must not be empty", i)
			}
		}
	default:
		ve.Add("gateway.auth.type %q is invalid (want: static)", cfg.Gateway.Auth.Type)
	}

	if cfg.Gateway.RateLimit.RequestsPerMinute < 0 || cfg.Gateway.RateLimit.Burst < 0 {
		ve.Add("gateway.rate_limit values must be >= 0")
	}
}

func validateAgents(cfg *Config, ve *ValidationError) {
	names := make(map[string]bool, len(cfg.Agents))
	for i, a := range cfg.Agents {
		name := strings.TrimSpace(a.Name)
		if name == "" {
			ve.Add("agents[%d].name must not be empty", i)
			continue
		}
		if names[name] {
			ve.Add("agents[%d]: duplicate agent name %q", i, name)
		}
		names[name] = true
	}

	for i, a := range cfg.Agents {
		where := fmt.Sprintf("agents[%d] (%s)", i, a.Name)

		if s := a.OutputSchema; s != nil {
			if len(s.Fields) == 0 && s.JSONSchema == "" {
				ve.Add("%s: output_schema needs fields or json_schema", where)
			}
			if len(s.Fields) > 0 && s.JSONSchema != "" {
				ve.Add("%s: output_schema sets both fields and json_schema", where)
			}
		}

		for _, h := range a.Handoffs {
			switch {
			case h == a.Name:
				ve.Add("%s: cannot hand off to itself", where)
			case !names[h]:
				ve.Add("%s: unknown handoff target %q", where, h)
			}
		}

		check := func(kind string, gs []GuardrailConfig) {
			for j, g := range gs {
				gw := fmt.Sprintf("%s.%s_guardrails[%d]", where, kind, j)
				switch {
				case g.Agent == "":
					ve.Add("%s: agent must not be empty", gw)
				case g.Agent == a.Name:
					ve.Add("%s: agent cannot guard itself", gw)
				case !names[g.Agent]:
					ve.Add("%s: unknown check agent %q", gw, g.Agent)
				}
				if g.TripwireField == "" {
					ve.Add("%s: tripwire_field must not be empty", gw)
				}
			}
		}
		check("input", a.InputGuardrails)
		check("output", a.OutputGuardrails)
	}
}
