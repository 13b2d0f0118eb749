package usecase

import (
	"time"

	"agentgate/internal/domain"
)

// Guardrail check results reported to Metrics.
const (
	CheckPassed  = "passed"
	CheckTripped = "tripped"
	CheckError   = "error"
)

// Metrics receives invocation counters. Implementations must be safe for
// concurrent use.
type Metrics interface {
	InvocationFinished(agent string, outcome string, elapsed time.Duration)
	GuardrailChecked(guardrail string, kind domain.GuardrailKind, result string)
	HandoffTaken(from, to string)
}

type noopMetrics struct{}

func (noopMetrics) InvocationFinished(string, string, time.Duration)      {}
func (noopMetrics) GuardrailChecked(string, domain.GuardrailKind, string) {}
func (noopMetrics) HandoffTaken(string, string)                           {}
