package usecase

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"agentgate/internal/adapter/schema"
	"agentgate/internal/domain"
)

// reply is one scripted model answer.
type reply struct {
	content string
	err     error
	delay   time.Duration
}

// scriptedLLM answers by matching the system prompt against registered
// prefixes, so call order does not matter for parallel guardrails.
type scriptedLLM struct {
	mu      sync.Mutex
	replies map[string]reply
	calls   []domain.ChatRequest
}

func newScriptedLLM() *scriptedLLM {
	return &scriptedLLM{replies: make(map[string]reply)}
}

func (s *scriptedLLM) on(prefix, content string) *scriptedLLM {
	s.replies[prefix] = reply{content: content}
	return s
}

func (s *scriptedLLM) onReply(prefix string, r reply) *scriptedLLM {
	s.replies[prefix] = r
	return s
}

func (s *scriptedLLM) Chat(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	s.mu.Lock()
	s.calls = append(s.calls, req)
	r, ok := s.lookup(systemPrompt(req))
	s.mu.Unlock()

	if !ok {
		return nil, fmt.Errorf("unexpected prompt %q", truncate(systemPrompt(req), 60))
	}
	if r.delay > 0 {
		select {
		case <-time.After(r.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if r.err != nil {
		return nil, r.err
	}
	return &domain.ChatResponse{
		ID:      "resp",
		Model:   "scripted",
		Message: domain.Message{Role: domain.RoleAssistant, Content: r.content},
	}, nil
}

func (s *scriptedLLM) Name() string { return "scripted" }

// lookup picks the longest registered prefix of prompt.
func (s *scriptedLLM) lookup(prompt string) (reply, bool) {
	best, found := "", false
	for prefix := range s.replies {
		if strings.HasPrefix(prompt, prefix) && len(prefix) >= len(best) {
			best, found = prefix, true
		}
	}
	return s.replies[best], found
}

// callsTo returns the requests whose system prompt starts with prefix, in call order.
func (s *scriptedLLM) callsTo(prefix string) []domain.ChatRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.ChatRequest
	for _, c := range s.calls {
		if strings.HasPrefix(systemPrompt(c), prefix) {
			out = append(out, c)
		}
	}
	return out
}

func (s *scriptedLLM) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

func systemPrompt(req domain.ChatRequest) string {
	if len(req.Messages) > 0 && req.Messages[0].Role == domain.RoleSystem {
		return req.Messages[0].Content
	}
	return ""
}

func userText(req domain.ChatRequest) string {
	var parts []string
	for _, m := range req.Messages {
		if m.Role == domain.RoleUser {
			parts = append(parts, m.Content)
		}
	}
	return strings.Join(parts, "\n")
}

// recordingMetrics captures everything reported to Metrics.
type recordingMetrics struct {
	mu          sync.Mutex
	invocations []string
	checks      []string
	handoffs    []string
}

func (m *recordingMetrics) InvocationFinished(agent, outcome string, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.invocations = append(m.invocations, agent+":"+outcome)
}

func (m *recordingMetrics) GuardrailChecked(name string, kind domain.GuardrailKind, result string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checks = append(m.checks, fmt.Sprintf("%s/%s:%s", kind, name, result))
}

func (m *recordingMetrics) HandoffTaken(from, to string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handoffs = append(m.handoffs, from+"->"+to)
}

// --- Fixtures ---

const (
	churnPrompt    = "Identify if the user message indicates a potential customer churn risk."
	flagPrompt     = "Check if the user message contains offensive language."
	homeworkPrompt = "Check if the user is asking about homework."
	supportPrompt  = "You are a customer support agent. You help customers with their questions."
	triagePrompt   = "You determine which agent to use based on the user's homework question."
	mathPrompt     = "You provide help with math problems. Explain your reasoning at each step and include examples."
	historyPrompt  = "You provide assistance with historical queries. Explain important events and context clearly."
)

func newTestGenerator(llm domain.LLMProvider) *Generator {
	return NewGenerator(llm, schema.NewValidator(), 2*time.Second, nil)
}

func fieldSchema(t *testing.T, name string, fields map[string]string) *domain.OutputSchema {
	t.Helper()
	s, err := domain.NewFieldSchema(name, fields)
	require.NoError(t, err)
	return s
}

func newAgent(t *testing.T, opts domain.AgentOptions) *domain.AgentDescriptor {
	t.Helper()
	a, err := domain.NewAgentDescriptor(opts)
	require.NoError(t, err)
	return a
}

// newCheckGuardrail builds a guardrail whose check agent replies with a
// {<field>: bool, reasoning: string} object.
func newCheckGuardrail(t *testing.T, kind domain.GuardrailKind, name, prompt, field string) *domain.GuardrailSpec {
	t.Helper()
	check := newAgent(t, domain.AgentOptions{
		Name:         name,
		Instructions: prompt,
		OutputSchema: fieldSchema(t, strings.ReplaceAll(strings.ToLower(name), " ", "_"), map[string]string{
			field:       "boolean",
			"reasoning": "string",
		}),
	})
	g, err := domain.NewGuardrailSpec(domain.GuardrailOptions{
		Kind:          kind,
		CheckAgent:    check,
		TripwireField: field,
	})
	require.NoError(t, err)
	return g
}

func verdictJSON(field string, tripped bool, reasoning string) string {
	return fmt.Sprintf(`{%q: %t, "reasoning": %q}`, field, tripped, reasoning)
}

func routeJSON(target, reasoning string) string {
	return fmt.Sprintf(`{"target": %q, "reasoning": %q}`, target, reasoning)
}

// tutors builds the triage scenario: a router with Math and History tutors.
func tutors(t *testing.T, guardrails ...*domain.GuardrailSpec) (triage, math, history *domain.AgentDescriptor) {
	t.Helper()
	math = newAgent(t, domain.AgentOptions{
		Name:               "Math Tutor",
		Instructions:       mathPrompt,
		HandoffDescription: "Specialist agent for math questions",
	})
	history = newAgent(t, domain.AgentOptions{
		Name:               "History Tutor",
		Instructions:       historyPrompt,
		HandoffDescription: "Specialist agent for historical questions",
	})
	triage = newAgent(t, domain.AgentOptions{
		Name:         "Triage Agent",
		Instructions: triagePrompt,
		Handoffs:     []*domain.AgentDescriptor{math, history},
		Guardrails:   guardrails,
	})
	return triage, math, history
}
