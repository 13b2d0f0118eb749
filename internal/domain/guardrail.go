package domain

import (
	"fmt"
	"strings"
)

// GuardrailKind says whether a guardrail gates the input or the output.
type GuardrailKind string

const (
	GuardrailInput  GuardrailKind = "input"
	GuardrailOutput GuardrailKind = "output"
)

// DefaultReasoningField is the check output field reported when a guardrail trips.
const DefaultReasoningField = "reasoning"

// GuardrailOptions are the construction parameters for a GuardrailSpec.
type GuardrailOptions struct {
	Kind           GuardrailKind
	Name           string // defaults to the check agent's name
	CheckAgent     *AgentDescriptor
	TripwireField  string
	ReasoningField string // defaults to DefaultReasoningField
}

// GuardrailSpec is a declarative gate: a check agent whose structured verdict
// carries a boolean tripwire field.
type GuardrailSpec struct {
	kind           GuardrailKind
	name           string
	checkAgent     *AgentDescriptor
	tripwireField  string
	reasoningField string
}

// NewGuardrailSpec validates opts and returns a spec.
func NewGuardrailSpec(opts GuardrailOptions) (*GuardrailSpec, error) {
	if opts.Kind != GuardrailInput && opts.Kind != GuardrailOutput {
		return nil, NewDomainError("NewGuardrailSpec", ErrInvalidGuardrail,
			fmt.Sprintf("unknown kind %q", opts.Kind))
	}
	if opts.CheckAgent == nil {
		return nil, NewDomainError("NewGuardrailSpec", ErrInvalidGuardrail, "check agent is nil")
	}
	check := opts.CheckAgent
	if check.IsRouter() {
		return nil, NewDomainError("NewGuardrailSpec", ErrInvalidGuardrail,
			fmt.Sprintf("check agent %q must not have handoff targets", check.Name()))
	}
	schema := check.OutputSchema()
	if schema == nil {
		return nil, NewDomainError("NewGuardrailSpec", ErrInvalidGuardrail,
			fmt.Sprintf("check agent %q has no output schema", check.Name()))
	}

	field := strings.TrimSpace(opts.TripwireField)
	if field == "" {
		return nil, NewDomainError("NewGuardrailSpec", ErrInvalidGuardrail, "tripwire field is empty")
	}
	typ, ok := schema.PropertyType(field)
	if !ok {
		return nil, NewDomainError("NewGuardrailSpec", ErrInvalidGuardrail,
			fmt.Sprintf("tripwire field %q not in schema %q", field, schema.Name()))
	}
	if typ != "boolean" {
		return nil, NewDomainError("NewGuardrailSpec", ErrInvalidGuardrail,
			fmt.Sprintf("tripwire field %q is %q, want boolean", field, typ))
	}

	name := strings.TrimSpace(opts.Name)
	if name == "" {
		name = check.Name()
	}
	reasoning := strings.TrimSpace(opts.ReasoningField)
	if reasoning == "" {
		reasoning = DefaultReasoningField
	}

	return &GuardrailSpec{
		kind:           opts.Kind,
		name:           name,
		checkAgent:     check,
		tripwireField:  field,
		reasoningField: reasoning,
	}, nil
}

func (g *GuardrailSpec) Kind() GuardrailKind          { return g.kind }
func (g *GuardrailSpec) Name() string                 { return g.name }
func (g *GuardrailSpec) CheckAgent() *AgentDescriptor { return g.checkAgent }
func (g *GuardrailSpec) TripwireField() string        { return g.tripwireField }
func (g *GuardrailSpec) ReasoningField() string       { return g.reasoningField }

// GuardrailVerdict is the decoded outcome of one guardrail check.
type GuardrailVerdict struct {
	Tripped bool
	Info    map[string]any
}

// Reasoning returns the text at the spec's reasoning field, if present.
func (v GuardrailVerdict) Reasoning(spec *GuardrailSpec) string {
	if s, ok := v.Info[spec.reasoningField].(string); ok {
		return s
	}
	return ""
}
