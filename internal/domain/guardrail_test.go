package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func checkAgent(t *testing.T, name, tripwire string) *AgentDescriptor {
	t.Helper()
	s, err := NewFieldSchema(name+"_output", map[string]string{
		tripwire:    "boolean",
		"reasoning": "string",
	})
	require.NoError(t, err)
	return mustAgent(t, AgentOptions{Name: name, Instructions: "Check the message.", OutputSchema: s})
}

func mustGuardrail(t *testing.T, opts GuardrailOptions) *GuardrailSpec {
	t.Helper()
	g, err := NewGuardrailSpec(opts)
	require.NoError(t, err)
	return g
}

func TestNewGuardrailSpecDefaults(t *testing.T) {
	check := checkAgent(t, "Churn Detection Agent", "is_churn_risk")
	g := mustGuardrail(t, GuardrailOptions{
		Kind:          GuardrailInput,
		CheckAgent:    check,
		TripwireField: "is_churn_risk",
	})

	assert.Equal(t, "Churn Detection Agent", g.Name())
	assert.Equal(t, GuardrailInput, g.Kind())
	assert.Equal(t, DefaultReasoningField, g.ReasoningField())
	assert.Same(t, check, g.CheckAgent())
}

func TestNewGuardrailSpecRejects(t *testing.T) {
	check := checkAgent(t, "Check", "is_flagged")
	freeText := mustAgent(t, AgentOptions{Name: "Free"})
	withString, err := NewFieldSchema("s", map[string]string{"flag": "string"})
	require.NoError(t, err)
	stringFlag := mustAgent(t, AgentOptions{Name: "StringFlag", OutputSchema: withString})
	router := mustAgent(t, AgentOptions{Name: "Router", OutputSchema: withString, Handoffs: []*AgentDescriptor{freeText}})

	tests := []struct {
		name string
		opts GuardrailOptions
	}{
		{"bad kind", GuardrailOptions{Kind: "both", CheckAgent: check, TripwireField: "is_flagged"}},
		{"nil agent", GuardrailOptions{Kind: GuardrailInput, TripwireField: "is_flagged"}},
		{"no schema", GuardrailOptions{Kind: GuardrailInput, CheckAgent: freeText, TripwireField: "is_flagged"}},
		{"router check", GuardrailOptions{Kind: GuardrailInput, CheckAgent: router, TripwireField: "flag"}},
		{"empty field", GuardrailOptions{Kind: GuardrailInput, CheckAgent: check}},
		{"unknown field", GuardrailOptions{Kind: GuardrailInput, CheckAgent: check, TripwireField: "is_homework"}},
		{"non boolean field", GuardrailOptions{Kind: GuardrailOutput, CheckAgent: stringFlag, TripwireField: "flag"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewGuardrailSpec(tt.opts)
			assert.ErrorIs(t, err, ErrInvalidGuardrail)
		})
	}
}

func TestGuardrailVerdictReasoning(t *testing.T) {
	check := checkAgent(t, "Check", "is_flagged")
	g := mustGuardrail(t, GuardrailOptions{Kind: GuardrailInput, CheckAgent: check, TripwireField: "is_flagged"})
	custom := mustGuardrail(t, GuardrailOptions{
		Kind: GuardrailInput, CheckAgent: check, TripwireField: "is_flagged", ReasoningField: "why",
	})

	v := GuardrailVerdict{Tripped: true, Info: map[string]any{"is_flagged": true, "reasoning": "profanity"}}
	assert.Equal(t, "profanity", v.Reasoning(g))
	assert.Equal(t, "", v.Reasoning(custom))
}
