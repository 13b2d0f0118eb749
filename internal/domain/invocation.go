package domain

import (
	"encoding/json"
	"strings"
	"sync"
)

// Input is the user payload of an invocation: one string or an ordered
// sequence of strings. Each item becomes one user message.
type Input struct {
	items []string
}

// TextInput wraps a single string.
func TextInput(s string) Input { return Input{items: []string{s}} }

// ItemsInput wraps an ordered sequence of strings.
func ItemsInput(items ...string) Input {
	return Input{items: append([]string(nil), items...)}
}

// Items returns the input items in order.
func (in Input) Items() []string { return append([]string(nil), in.items...) }

// IsEmpty reports whether the input carries no non-blank text.
func (in Input) IsEmpty() bool {
	for _, s := range in.items {
		if strings.TrimSpace(s) != "" {
			return false
		}
	}
	return true
}

// Text joins the items with newlines.
func (in Input) Text() string { return strings.Join(in.items, "\n") }

// MarshalJSON encodes a single item as a string and several as an array.
func (in Input) MarshalJSON() ([]byte, error) {
	if len(in.items) == 1 {
		return json.Marshal(in.items[0])
	}
	return json.Marshal(in.Items())
}

// UnmarshalJSON accepts either a string or an array of strings.
func (in *Input) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		in.items = []string{s}
		return nil
	}
	var items []string
	if err := json.Unmarshal(data, &items); err != nil {
		return NewDomainError("Input.UnmarshalJSON", ErrInvalidRequest, "input must be a string or an array of strings")
	}
	in.items = items
	return nil
}

// RunContext is the opaque key/value bag that lives for one invocation.
// Guardrails of the same phase may run concurrently, so access is locked.
type RunContext struct {
	mu     sync.RWMutex
	values map[string]any
}

// NewRunContext returns a bag seeded with a copy of values.
func NewRunContext(values map[string]any) *RunContext {
	rc := &RunContext{values: make(map[string]any, len(values))}
	for k, v := range values {
		rc.values[k] = v
	}
	return rc
}

// Get returns the value stored under key.
func (rc *RunContext) Get(key string) (any, bool) {
	if rc == nil {
		return nil, false
	}
	rc.mu.RLock()
	defer rc.mu.RUnlock()
	v, ok := rc.values[key]
	return v, ok
}

// Set stores value under key. A zero RunContext is ready to use; Set on a
// nil bag is a no-op.
func (rc *RunContext) Set(key string, value any) {
	if rc == nil {
		return
	}
	rc.mu.Lock()
	defer rc.mu.Unlock()
	if rc.values == nil {
		rc.values = make(map[string]any)
	}
	rc.values[key] = value
}

// Snapshot returns a shallow copy of the bag.
func (rc *RunContext) Snapshot() map[string]any {
	if rc == nil {
		return nil
	}
	rc.mu.RLock()
	defer rc.mu.RUnlock()
	out := make(map[string]any, len(rc.values))
	for k, v := range rc.values {
		out[k] = v
	}
	return out
}

// InvocationRequest is one single-turn call against an agent.
type InvocationRequest struct {
	Agent   *AgentDescriptor
	Input   Input
	Context *RunContext
}

// Output is the result of one generation. Structured is set only when the
// generating agent declared an output schema.
type Output struct {
	Text       string         `json:"text"`
	Structured map[string]any `json:"structured,omitempty"`
}

// PayloadText renders the output as text for output guardrail checks.
func (o Output) PayloadText() string {
	if o.Structured == nil {
		return o.Text
	}
	b, err := json.Marshal(o.Structured)
	if err != nil {
		return o.Text
	}
	return string(b)
}

// Outcome names the terminal state of an invocation.
type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomeBlocked   Outcome = "blocked"
	OutcomeFailed    Outcome = "failed"
)

// FailureKind classifies a Failed result.
type FailureKind string

const (
	FailureInvalidRoute        FailureKind = "invalid_route"
	FailureDecode              FailureKind = "decode_failure"
	FailureUpstreamUnavailable FailureKind = "upstream_unavailable"
	FailureInvalidRequest      FailureKind = "invalid_request"
)

// InvocationResult is the sealed union Completed | Blocked | Failed.
// Callers type-switch on the concrete value.
type InvocationResult interface {
	Outcome() Outcome
	ID() string
	isInvocationResult()
}

// Completed carries the decoded output of the agent that served the request.
type Completed struct {
	InvocationID string
	Agent        string
	Path         []string // agents visited, entry first
	Output       Output
}

// Blocked reports the guardrail that tripped and its reasoning text.
type Blocked struct {
	InvocationID string
	Guardrail    *GuardrailSpec
	Reasoning    string
	Info         map[string]any
}

// Failed reports a terminal error.
type Failed struct {
	InvocationID string
	Kind         FailureKind
	Message      string
	Err          error
}

func (Completed) Outcome() Outcome { return OutcomeCompleted }
func (Blocked) Outcome() Outcome   { return OutcomeBlocked }
func (Failed) Outcome() Outcome    { return OutcomeFailed }

func (c Completed) ID() string { return c.InvocationID }
func (b Blocked) ID() string   { return b.InvocationID }
func (f Failed) ID() string    { return f.InvocationID }

func (Completed) isInvocationResult() {}
func (Blocked) isInvocationResult()   {}
func (Failed) isInvocationResult()    {}

// Unwrap exposes the underlying error chain to errors.Is.
func (f Failed) Unwrap() error { return f.Err }

func (f Failed) Error() string { return string(f.Kind) + ": " + f.Message }

// NewFailed builds a Failed result classified from err.
func NewFailed(id string, err error) Failed {
	return Failed{
		InvocationID: id,
		Kind:         KindOf(err),
		Message:      err.Error(),
		Err:          err,
	}
}
