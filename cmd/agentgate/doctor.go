package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"agentgate/internal/adapter/llm"
	"agentgate/internal/adapter/schema"
	"agentgate/internal/infra/config"
)

// CheckStatus represents the result of a health check.
type CheckStatus string

const (
	StatusPass CheckStatus = "PASS"
	StatusWarn CheckStatus = "WARN"
	StatusFail CheckStatus = "FAIL"
)

// CheckResult holds the outcome of a single health check.
type CheckResult struct {
	Name    string
	Status  CheckStatus
	Message string
	Fix     string // optional fix suggestion
}

// Check is a named health check function.
type Check struct {
	Name string
	Fn   func(cfg *config.Config) CheckResult
}

// runDoctor executes all health checks and reports results.
func runDoctor(cfgPath string) error {
	// Try to load config; some checks work without it.
	cfg, cfgErr := config.Load(cfgPath)

	checks := []Check{
		{Name: "Config file", Fn: checkConfigFile(cfgPath, cfgErr)},
		{Name: "Agent catalog", Fn: checkCatalog},
		{Name: "LLM API key", Fn: checkLLMAPIKey},
		{Name: "LLM connectivity", Fn: checkLLMConnectivity},
		{Name: "Gateway", Fn: checkGateway},
	}

	fmt.Println("agentgate doctor")
	fmt.Println(strings.Repeat("=", 50))
	fmt.Println()

	results := make([]CheckResult, 0, len(checks))
	for _, check := range checks {
		result := check.Fn(cfg)
		result.Name = check.Name
		results = append(results, result)

		fmt.Printf("  %s %s: %s\n", statusIcon(result.Status), result.Name, result.Message)
		if result.Fix != "" {
			fmt.Printf("      Fix: %s\n", result.Fix)
		}
	}

	pass, warn, fail := tally(results)
	fmt.Println()
	fmt.Println(strings.Repeat("-", 50))
	fmt.Printf("Results: %d passed, %d warnings, %d failed\n", pass, warn, fail)

	if fail > 0 {
		fmt.Println("\nFix the FAIL issues above to ensure agentgate runs correctly.")
		return fmt.Errorf("%d check(s) failed", fail)
	}
	if warn > 0 {
		fmt.Println("\nagentgate should work, but consider addressing the warnings.")
	} else {
		fmt.Println("\nAll checks passed! agentgate is ready to run.")
	}
	return nil
}

func tally(results []CheckResult) (pass, warn, fail int) {
	for _, r := range results {
		switch r.Status {
		case StatusPass:
			pass++
		case StatusWarn:
			warn++
		case StatusFail:
			fail++
		}
	}
	return pass, warn, fail
}

func statusIcon(s CheckStatus) string {
	switch s {
	case StatusPass:
		return "[PASS]"
	case StatusWarn:
		return "[WARN]"
	case StatusFail:
		return "[FAIL]"
	default:
		return "[????]"
	}
}

func notLoaded() CheckResult {
	return CheckResult{
		Status:  StatusFail,
		Message: "cannot check, config not loaded",
	}
}

// checkConfigFile returns a check that verifies the config file exists and parses correctly.
func checkConfigFile(cfgPath string, cfgErr error) func(*config.Config) CheckResult {
	return func(_ *config.Config) CheckResult {
		if cfgErr != nil {
			return CheckResult{
				Status:  StatusFail,
				Message: fmt.Sprintf("config error: %v", cfgErr),
				Fix:     "Check " + cfgPath + " against agentgate.example.yaml",
			}
		}

		if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
			return CheckResult{
				Status:  StatusWarn,
				Message: fmt.Sprintf("no config file at %s, using defaults and environment", cfgPath),
				Fix:     "Copy agentgate.example.yaml to " + cfgPath,
			}
		}

		return CheckResult{
			Status:  StatusPass,
			Message: fmt.Sprintf("config loaded from %s", cfgPath),
		}
	}
}

// checkCatalog builds the agent catalog so reference errors surface early.
func checkCatalog(cfg *config.Config) CheckResult {
	if cfg == nil {
		return notLoaded()
	}
	if len(cfg.Agents) == 0 {
		return CheckResult{
			Status:  StatusWarn,
			Message: "no agents configured",
			Fix:     "Declare agents under the agents: section",
		}
	}
	catalog, err := buildCatalog(cfg, schema.NewValidator())
	if err != nil {
		return CheckResult{Status: StatusFail, Message: err.Error()}
	}

	var routers int
	for _, name := range catalog.Names() {
		if a, _ := catalog.Get(name); a.IsRouter() {
			routers++
		}
	}
	return CheckResult{
		Status:  StatusPass,
		Message: fmt.Sprintf("%d agent(s), %d router(s)", catalog.Len(), routers),
	}
}

// checkLLMAPIKey verifies every hosted provider has an API key configured.
func checkLLMAPIKey(cfg *config.Config) CheckResult {
	if cfg == nil {
		return notLoaded()
	}

	if len(cfg.LLM.Providers) == 0 {
		return CheckResult{
			Status:  StatusFail,
			Message: "no LLM providers configured",
			Fix:     "Add at least one provider under llm.providers",
		}
	}

	var withKey, withoutKey []string
	for _, p := range cfg.LLM.Providers {
		switch {
		case p.Type == "ollama":
			// local, no key
		case p.APIKey != "":
			withKey = append(withKey, p.Name)
		default:
			withoutKey = append(withoutKey, p.Name)
		}
	}

	if len(withoutKey) > 0 {
		return CheckResult{
			Status:  StatusFail,
			Message: fmt.Sprintf("missing API keys for: %s", strings.Join(withoutKey, ", ")),
			Fix:     "Set GEMINI_API_KEY or AGENTGATE_LLM_PROVIDER_<NAME>_API_KEY",
		}
	}
	if len(withKey) == 0 {
		return CheckResult{Status: StatusPass, Message: "only local providers configured"}
	}
	return CheckResult{
		Status:  StatusPass,
		Message: fmt.Sprintf("API keys configured for: %s", strings.Join(withKey, ", ")),
	}
}

// checkLLMConnectivity tests if the default LLM provider is reachable.
func checkLLMConnectivity(cfg *config.Config) CheckResult {
	if cfg == nil {
		return notLoaded()
	}

	var provider *config.ProviderConfig
	for i := range cfg.LLM.Providers {
		if cfg.LLM.Providers[i].Name == cfg.LLM.DefaultProvider {
			provider = &cfg.LLM.Providers[i]
			break
		}
	}
	if provider == nil {
		return CheckResult{
			Status:  StatusFail,
			Message: fmt.Sprintf("default provider %q not found in config", cfg.LLM.DefaultProvider),
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	start := time.Now()

	if provider.Type == "ollama" {
		if err := llm.NewOllamaProvider(*provider, nil).Ping(ctx); err != nil {
			return CheckResult{
				Status:  StatusFail,
				Message: err.Error(),
				Fix:     "Start Ollama or fix the provider base_url",
			}
		}
		return CheckResult{
			Status:  StatusPass,
			Message: fmt.Sprintf("%s reachable (latency: %dms)", provider.Name, time.Since(start).Milliseconds()),
		}
	}

	if provider.APIKey == "" {
		return CheckResult{
			Status:  StatusWarn,
			Message: "skipped, no API key for default provider",
		}
	}

	endpoint := providerEndpoint(provider)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return CheckResult{
			Status:  StatusFail,
			Message: fmt.Sprintf("failed to create request: %v", err),
		}
	}
	if provider.Type == "anthropic" {
		req.Header.Set("x-api-key", provider.APIKey)
		req.Header.Set("anthropic-version", "2023-06-01")
	} else {
		req.Header.Set("Authorization", "Bearer "+provider.APIKey)
	}

	resp, err := llm.NewHTTPClient(*provider).Do(req)
	latency := time.Since(start)
	if err != nil {
		return CheckResult{
			Status:  StatusFail,
			Message: fmt.Sprintf("cannot reach %s: %v", endpoint, err),
			Fix:     "Check your internet connection and firewall settings",
		}
	}
	resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return CheckResult{
			Status:  StatusFail,
			Message: fmt.Sprintf("%s rejected the API key (HTTP %d)", provider.Name, resp.StatusCode),
			Fix:     "Check the API key for " + provider.Name,
		}
	case resp.StatusCode >= 400:
		return CheckResult{
			Status:  StatusWarn,
			Message: fmt.Sprintf("%s answered HTTP %d (latency: %dms)", provider.Name, resp.StatusCode, latency.Milliseconds()),
		}
	}
	return CheckResult{
		Status:  StatusPass,
		Message: fmt.Sprintf("%s reachable (latency: %dms)", provider.Name, latency.Milliseconds()),
	}
}

// providerEndpoint returns the model listing URL of an OpenAI-compatible provider.
func providerEndpoint(p *config.ProviderConfig) string {
	if p.Type == "anthropic" {
		base := strings.TrimRight(p.BaseURL, "/")
		if base == "" {
			base = "https://api.anthropic.com"
		}
		return base + "/v1/models"
	}
	if p.BaseURL != "" {
		return strings.TrimRight(p.BaseURL, "/") + "/models"
	}
	switch p.Type {
	case "gemini":
		return "https://generativelanguage.googleapis.com/v1beta/openai/models"
	case "openrouter":
		return "https://openrouter.ai/api/v1/models"
	default:
		return "https://api.openai.com/v1/models"
	}
}

// checkGateway warns when the gateway would accept unauthenticated clients.
func checkGateway(cfg *config.Config) CheckResult {
	if cfg == nil {
		return notLoaded()
	}
	gw := cfg.Gateway
	if gw.Auth.Type == "static" && len(gw.Auth.Tokens) > 0 {
		return CheckResult{
			Status:  StatusPass,
			Message: fmt.Sprintf("%s with %d token(s)", gw.Addr, len(gw.Auth.Tokens)),
		}
	}
	if strings.HasPrefix(gw.Addr, "127.0.0.1:") || strings.HasPrefix(gw.Addr, "localhost:") {
		return CheckResult{
			Status:  StatusPass,
			Message: fmt.Sprintf("%s without auth (loopback only)", gw.Addr),
		}
	}
	return CheckResult{
		Status:  StatusWarn,
		Message: fmt.Sprintf("%s accepts unauthenticated clients", gw.Addr),
		Fix:     "Set gateway.auth.type: static with tokens, or AGENTGATE_GATEWAY_TOKENS",
	}
}
