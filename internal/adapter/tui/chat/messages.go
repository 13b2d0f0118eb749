// Package chat implements the interactive Bubble Tea prompt for one agent.
package chat

import "agentgate/internal/domain"

// ResultMsg carries a finished invocation back to the model.
// Gen identifies the request so results of cancelled requests are discarded.
type ResultMsg struct {
	Result domain.InvocationResult
	Gen    uint64
}
