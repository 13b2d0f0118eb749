package gateway

import (
	"net/http"

	"agentgate/internal/domain"
)

// ResultView is the JSON shape of an invocation result. Outcome selects
// which of the remaining fields are set.
type ResultView struct {
	ID      string         `json:"id"`
	Outcome domain.Outcome `json:"outcome"`

	// completed
	Agent  string         `json:"agent,omitempty"`
	Path   []string       `json:"path,omitempty"`
	Output *domain.Output `json:"output,omitempty"`

	// blocked
	Guardrail     string               `json:"guardrail,omitempty"`
	GuardrailKind domain.GuardrailKind `json:"guardrail_kind,omitempty"`
	Reasoning     string               `json:"reasoning,omitempty"`
	Info          map[string]any       `json:"info,omitempty"`

	// failed
	FailureKind domain.FailureKind `json:"failure_kind,omitempty"`
	Error       string             `json:"error,omitempty"`
	Code        domain.ErrorCode   `json:"code,omitempty"`
}

// NewResultView flattens res for the wire.
func NewResultView(res domain.InvocationResult) ResultView {
	v := ResultView{ID: res.ID(), Outcome: res.Outcome()}
	switch r := res.(type) {
	case domain.Completed:
		out := r.Output
		v.Agent = r.Agent
		v.Path = r.Path
		v.Output = &out
	case domain.Blocked:
		if r.Guardrail != nil {
			v.Guardrail = r.Guardrail.Name()
			v.GuardrailKind = r.Guardrail.Kind()
		}
		v.Reasoning = r.Reasoning
		v.Info = r.Info
	case domain.Failed:
		v.FailureKind = r.Kind
		v.Error = r.Message
		v.Code = domain.ErrorCodeOf(r.Err)
	}
	return v
}

// statusFor maps a result to an HTTP status. Guardrail blocks are a normal
// answer, not a client error.
func statusFor(res domain.InvocationResult) int {
	f, ok := res.(domain.Failed)
	if !ok {
		return http.StatusOK
	}
	switch f.Kind {
	case domain.FailureInvalidRequest:
		return http.StatusBadRequest
	case domain.FailureInvalidRoute, domain.FailureDecode:
		return http.StatusBadGateway
	default:
		return http.StatusServiceUnavailable
	}
}

// AgentView describes one catalog entry.
type AgentView struct {
	Name               string   `json:"name"`
	HandoffDescription string   `json:"handoff_description,omitempty"`
	Model              string   `json:"model,omitempty"`
	Router             bool     `json:"router"`
	Handoffs           []string `json:"handoffs,omitempty"`
	Schema             string   `json:"schema,omitempty"`
	InputGuardrails    []string `json:"input_guardrails,omitempty"`
	OutputGuardrails   []string `json:"output_guardrails,omitempty"`
}

// NewAgentView summarises a descriptor without its instructions.
func NewAgentView(a *domain.AgentDescriptor) AgentView {
	v := AgentView{
		Name:               a.Name(),
		HandoffDescription: a.HandoffDescription(),
		Model:              a.Model(),
		Router:             a.IsRouter(),
	}
	for _, h := range a.Handoffs() {
		v.Handoffs = append(v.Handoffs, h.Name())
	}
	if s := a.OutputSchema(); s != nil {
		v.Schema = s.Name()
	}
	for _, g := range a.GuardrailsOf(domain.GuardrailInput) {
		v.InputGuardrails = append(v.InputGuardrails, g.Name())
	}
	for _, g := range a.GuardrailsOf(domain.GuardrailOutput) {
		v.OutputGuardrails = append(v.OutputGuardrails, g.Name())
	}
	return v
}
