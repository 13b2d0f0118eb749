package domain

import (
	"fmt"
	"strings"
)

// AgentOptions are the construction parameters for an AgentDescriptor.
type AgentOptions struct {
	Name               string
	Instructions       string
	HandoffDescription string
	Model              string
	OutputSchema       *OutputSchema
	Guardrails         []*GuardrailSpec
	Handoffs           []*AgentDescriptor
}

// AgentDescriptor is immutable agent configuration. An agent with handoff
// targets never generates output itself; it only routes.
type AgentDescriptor struct {
	name               string
	instructions       string
	handoffDescription string
	model              string
	outputSchema       *OutputSchema
	guardrails         []*GuardrailSpec
	handoffs           []*AgentDescriptor
}

// NewAgentDescriptor validates opts and returns a descriptor.
func NewAgentDescriptor(opts AgentOptions) (*AgentDescriptor, error) {
	name := strings.TrimSpace(opts.Name)
	if name == "" {
		return nil, NewDomainError("NewAgentDescriptor", ErrInvalidDescriptor, "name must not be empty")
	}

	seen := make(map[string]bool, len(opts.Handoffs))
	for i, target := range opts.Handoffs {
		if target == nil {
			return nil, NewDomainError("NewAgentDescriptor", ErrInvalidDescriptor,
				fmt.Sprintf("agent %q: handoff %d is nil", name, i))
		}
		if target.name == name {
			return nil, NewDomainError("NewAgentDescriptor", ErrInvalidDescriptor,
				fmt.Sprintf("agent %q: cannot hand off to itself", name))
		}
		if seen[target.name] {
			return nil, NewDomainError("NewAgentDescriptor", ErrInvalidDescriptor,
				fmt.Sprintf("agent %q: duplicate handoff target %q", name, target.name))
		}
		seen[target.name] = true
		if target.reaches(name) {
			return nil, NewDomainError("NewAgentDescriptor", ErrInvalidDescriptor,
				fmt.Sprintf("agent %q: handoff cycle through %q", name, target.name))
		}
	}

	for i, g := range opts.Guardrails {
		if g == nil {
			return nil, NewDomainError("NewAgentDescriptor", ErrInvalidDescriptor,
				fmt.Sprintf("agent %q: guardrail %d is nil", name, i))
		}
	}

	return &AgentDescriptor{
		name:               name,
		instructions:       opts.Instructions,
		handoffDescription: opts.HandoffDescription,
		model:              opts.Model,
		outputSchema:       opts.OutputSchema,
		guardrails:         append([]*GuardrailSpec(nil), opts.Guardrails...),
		handoffs:           append([]*AgentDescriptor(nil), opts.Handoffs...),
	}, nil
}

// reaches reports whether name appears anywhere in a's handoff tree.
func (a *AgentDescriptor) reaches(name string) bool {
	for _, t := range a.handoffs {
		if t.name == name || t.reaches(name) {
			return true
		}
	}
	return false
}

func (a *AgentDescriptor) Name() string               { return a.name }
func (a *AgentDescriptor) Instructions() string       { return a.instructions }
func (a *AgentDescriptor) HandoffDescription() string { return a.handoffDescription }
func (a *AgentDescriptor) Model() string              { return a.model }

// OutputSchema returns the structured output schema, or nil for free text.
func (a *AgentDescriptor) OutputSchema() *OutputSchema { return a.outputSchema }

// Guardrails returns all guardrails in declared order.
func (a *AgentDescriptor) Guardrails() []*GuardrailSpec {
	return append([]*GuardrailSpec(nil), a.guardrails...)
}

// GuardrailsOf returns the guardrails of the given kind in declared order.
func (a *AgentDescriptor) GuardrailsOf(kind GuardrailKind) []*GuardrailSpec {
	var out []*GuardrailSpec
	for _, g := range a.guardrails {
		if g.kind == kind {
			out = append(out, g)
		}
	}
	return out
}

// Handoffs returns the handoff targets in declared order.
func (a *AgentDescriptor) Handoffs() []*AgentDescriptor {
	return append([]*AgentDescriptor(nil), a.handoffs...)
}

// IsRouter reports whether the agent delegates to handoff targets.
func (a *AgentDescriptor) IsRouter() bool { return len(a.handoffs) > 0 }

// Handoff looks up a handoff target by exact name.
func (a *AgentDescriptor) Handoff(name string) (*AgentDescriptor, bool) {
	for _, t := range a.handoffs {
		if t.name == name {
			return t, true
		}
	}
	return nil, false
}

// HandoffDepth returns the longest handoff chain below a.
func (a *AgentDescriptor) HandoffDepth() int {
	depth := 0
	for _, t := range a.handoffs {
		if d := t.HandoffDepth() + 1; d > depth {
			depth = d
		}
	}
	return depth
}

func (a *AgentDescriptor) String() string { return a.name }
