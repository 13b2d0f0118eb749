package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentgate/internal/adapter/gateway"
	"agentgate/internal/adapter/llm"
	"agentgate/internal/adapter/schema"
	"agentgate/internal/domain"
	"agentgate/internal/infra/config"
)

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func exampleAgents() []config.AgentConfig {
	return []config.AgentConfig{
		{
			Name:         "Message Check",
			Instructions: "Flag abusive messages.",
			OutputSchema: &config.SchemaConfig{Fields: map[string]string{
				"is_flagged": "boolean",
				"reasoning":  "string",
			}},
		},
		{
			Name:            "Support",
			Instructions:    "Help customers.",
			InputGuardrails: []config.GuardrailConfig{{Agent: "Message Check", TripwireField: "is_flagged"}},
		},
		{Name: "Math Tutor", Instructions: "Explain math.", HandoffDescription: "math questions"},
		{Name: "History Tutor", Instructions: "Explain history.", HandoffDescription: "history questions"},
		{
			Name:         "Triage Agent",
			Instructions: "Route the question.",
			Handoffs:     []string{"Math Tutor", "History Tutor"},
		},
	}
}

func TestAgentDefinitions(t *testing.T) {
	defs := agentDefinitions(exampleAgents())
	require.Len(t, defs, 5)

	check := defs[0]
	require.NotNil(t, check.Schema)
	assert.Equal(t, "boolean", check.Schema.Fields["is_flagged"])

	support := defs[1]
	assert.Nil(t, support.Schema)
	require.Len(t, support.InputGuardrails, 1)
	assert.Equal(t, "Message Check", support.InputGuardrails[0].Agent)
	assert.Equal(t, "is_flagged", support.InputGuardrails[0].TripwireField)
	assert.Nil(t, support.OutputGuardrails)

	assert.Equal(t, []string{"Math Tutor", "History Tutor"}, defs[4].Handoffs)
}

func TestBuildCatalogFromConfig(t *testing.T) {
	catalog, err := buildCatalog(&config.Config{Agents: exampleAgents()}, schema.NewValidator())
	require.NoError(t, err)
	assert.Equal(t, 5, catalog.Len())

	triage, err := catalog.Get("Triage Agent")
	require.NoError(t, err)
	assert.True(t, triage.IsRouter())

	support, err := catalog.Get("Support")
	require.NoError(t, err)
	gs := support.GuardrailsOf(domain.GuardrailInput)
	require.Len(t, gs, 1)
	assert.Equal(t, "Message Check", gs[0].Name())
}

func TestCreateLLMProvider(t *testing.T) {
	for _, typ := range []string{"", "openai", "gemini", "openrouter", "ollama", "anthropic"} {
		p, err := createLLMProvider(config.ProviderConfig{Name: "p-" + typ, Type: typ, APIKey: "k"}, nil)
		require.NoError(t, err, typ)
		assert.Equal(t, "p-"+typ, p.Name())
	}

	_, err := createLLMProvider(config.ProviderConfig{Name: "x", Type: "bedrock"}, nil)
	assert.ErrorContains(t, err, "unknown provider type")
}

func TestInitLLM(t *testing.T) {
	cfg := config.Defaults()
	cfg.LLM.DefaultProvider = "main"
	cfg.LLM.Providers = []config.ProviderConfig{
		{Name: "main", Type: "gemini", APIKey: "k"},
		{Name: "backup", Type: "openai", APIKey: "k"},
	}
	cfg.LLM.Failover = config.FailoverConfig{Enabled: true, Fallbacks: []string{"backup"}}
	cfg.LLM.RateLimit = config.RateLimitConfig{Enabled: true, RequestsPerMinute: 60, Burst: 5}

	comps, err := initLLM(cfg, discard())
	require.NoError(t, err)
	assert.Equal(t, []string{"backup", "main"}, comps.Registry.List())
	assert.Equal(t, "main+failover", comps.DefaultLLM.Name())
	assert.IsType(t, &llm.RateLimitedProvider{}, comps.DefaultLLM)

	main, err := comps.Registry.Get("main")
	require.NoError(t, err)
	assert.IsType(t, &llm.CircuitBreakerProvider{}, main)
}

func TestInitLLM_UnknownFallback(t *testing.T) {
	cfg := config.Defaults()
	cfg.LLM.DefaultProvider = "main"
	cfg.LLM.Providers = []config.ProviderConfig{{Name: "main", Type: "openai", APIKey: "k"}}
	cfg.LLM.Failover = config.FailoverConfig{Enabled: true, Fallbacks: []string{"ghost"}}

	_, err := initLLM(cfg, discard())
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrProviderNotFound)
}

func TestGatewayAuth(t *testing.T) {
	assert.IsType(t, gateway.OpenAuth{}, gatewayAuth(config.AuthConfig{}))
	assert.IsType(t, gateway.OpenAuth{}, gatewayAuth(config.AuthConfig{Type: "static"}))

	auth := gatewayAuth(config.AuthConfig{
		Type:   "static",
		Tokens: []config.TokenConfig{{Token: "secret", Name: "ci"}},
	})
	client, err := auth.Authenticate("secret")
	require.NoError(t, err)
	assert.Equal(t, "ci", client.Name)

	_, err = auth.Authenticate("wrong")
	assert.ErrorIs(t, err, domain.ErrAuthInvalid)
}

func TestExitFor(t *testing.T) {
	assert.NoError(t, exitFor(domain.Completed{}))
	assert.Equal(t, errExit(2), exitFor(domain.Blocked{}))
	assert.Equal(t, errExit(1), exitFor(domain.NewFailed("id", domain.ErrInvalidRoute)))
}

// fakeCompletions answers guardrail checks with a clean verdict and every
// other call with a greeting.
func fakeCompletions(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ResponseFormat *struct {
				JSONSchema struct {
					Name string `json:"name"`
				} `json:"json_schema"`
			} `json:"response_format"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		content := "Hello! How can I help?"
		if req.ResponseFormat != nil {
			content = `{"is_flagged":false,"reasoning":"polite"}`
		}
		body, _ := json.Marshal(map[string]any{
			"choices": []any{map[string]any{
				"message":       map[string]string{"role": "assistant", "content": content},
				"finish_reason": "stop",
			}},
		})
		w.Header().Set("Content-Type", "application/json")
		w.Write(body)
	}))
}

func writeConfig(t *testing.T, baseURL string) string {
	t.Helper()
	var b strings.Builder
	fmt.Fprintf(&b, "llm:\n  default_provider: main\n  providers:\n")
	fmt.Fprintf(&b, "    - name: main\n      type: openai\n      base_url: %s\n      api_key: test\n", baseURL)
	b.WriteString(`logger:
  level: error
agents:
  - name: Message Check
    instructions: Flag abusive messages.
    output_schema:
      fields:
        is_flagged: boolean
        reasoning: string
  - name: Support
    instructions: Help customers.
    input_guardrails:
      - agent: Message Check
        tripwire_field: is_flagged
`)
	path := filepath.Join(t.TempDir(), "agentgate.yaml")
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0600))
	return path
}

func TestNewAppRunsInvocation(t *testing.T) {
	srv := fakeCompletions(t)
	defer srv.Close()

	a, err := newApp(context.Background(), &CLI{Config: writeConfig(t, srv.URL)})
	require.NoError(t, err)
	defer a.Close()

	support, err := a.catalog.Get("Support")
	require.NoError(t, err)

	rc := domain.NewRunContext(nil)
	res := a.runner.Run(context.Background(), domain.InvocationRequest{
		Agent:   support,
		Input:   domain.TextInput("Hello"),
		Context: rc,
	})
	done, ok := res.(domain.Completed)
	require.True(t, ok, "result = %#v", res)
	assert.Equal(t, "Hello! How can I help?", done.Output.Text)

	_, ok = rc.Get("guardrail.Message Check")
	assert.True(t, ok, "guardrail verdict not recorded")
}

func TestNewAppRejectsBrokenCatalog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agentgate.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`llm:
  default_provider: main
  providers:
    - name: main
      type: openai
      api_key: test
agents:
  - name: Support
    instructions: Help.
    handoffs: [Nobody]
`), 0600))

	_, err := newApp(context.Background(), &CLI{Config: path})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Nobody")
}

func TestBuildCatalogCompilesSchemas(t *testing.T) {
	cfg := &config.Config{Agents: []config.AgentConfig{{
		Name:         "Ticket Parser",
		Instructions: "Extract the ticket code.",
		OutputSchema: &config.SchemaConfig{
			JSONSchema: `{"type":"object","properties":{"code":{"type":"string","pattern":"("}},"required":["code"],"additionalProperties":false}`,
		},
	}}}

	_, err := buildCatalog(cfg, schema.NewValidator())
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInvalidDescriptor)
	assert.Contains(t, err.Error(), "Ticket Parser")
}
