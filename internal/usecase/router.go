package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel/trace"

	"agentgate/internal/domain"
	"agentgate/internal/infra/tracer"
)

// routeSchema is the structured reply of a routing decision. target is a free
// string; Route checks it against the handoff set.
var routeSchema = mustOutputSchema("handoff_decision", `{
	"type": "object",
	"properties": {
		"target": {"type": "string", "description": "Exact name of the agent that should handle the request"},
		"reasoning": {"type": "string", "description": "Why this agent was chosen"}
	},
	"required": ["target", "reasoning"],
	"additionalProperties": false
}`)

func mustOutputSchema(name, raw string) *domain.OutputSchema {
	s, err := domain.NewOutputSchema(name, []byte(raw))
	if err != nil {
		panic(err)
	}
	return s
}

// Router picks a handoff target with one structured model call.
type Router struct {
	gen      *Generator
	maxDepth int
	metrics  Metrics
	logger   *slog.Logger
}

// NewRouter creates a router. maxDepth bounds Resolve; <= 0 means the
// descriptor graph alone bounds it.
func NewRouter(gen *Generator, maxDepth int, metrics Metrics, logger *slog.Logger) *Router {
	if metrics == nil {
		metrics = noopMetrics{}
	}
	if logger == nil {
		logger = discardLogger()
	}
	return &Router{gen: gen, maxDepth: maxDepth, metrics: metrics, logger: logger}
}

// Route returns the agent that should serve input. An agent without handoff
// targets is returned unchanged and no model call is made.
func (r *Router) Route(ctx context.Context, agent *domain.AgentDescriptor, input domain.Input) (*domain.AgentDescriptor, error) {
	if !agent.IsRouter() {
		return agent, nil
	}

	ctx, span := tracer.StartSpan(ctx, "router.route",
		trace.WithAttributes(
			tracer.StringAttr("agent.name", agent.Name()),
			tracer.IntAttr("handoff.targets", len(agent.Handoffs())),
		),
	)
	defer span.End()

	out, err := r.gen.run(ctx, generation{
		agent:        agent.Name(),
		instructions: routingInstructions(agent),
		model:        agent.Model(),
		schema:       routeSchema,
		input:        input,
	})
	if err != nil {
		err = domain.WrapOp("Router.Route", err)
		tracer.RecordError(span, err)
		return nil, err
	}

	name, _ := out.Structured["target"].(string)
	name = strings.TrimSpace(name)
	target, ok := agent.Handoff(name)
	if !ok {
		err := domain.NewDomainError("Router.Route", domain.ErrInvalidRoute,
			fmt.Sprintf("agent %q selected unknown target %q", agent.Name(), name))
		tracer.RecordError(span, err)
		return nil, err
	}

	reasoning, _ := out.Structured["reasoning"].(string)
	r.logger.Debug("handoff selected",
		"from", agent.Name(),
		"to", target.Name(),
		"reasoning", truncate(reasoning, 200),
	)
	r.metrics.HandoffTaken(agent.Name(), target.Name())
	span.SetAttributes(tracer.StringAttr("handoff.target", target.Name()))
	tracer.SetOK(span)
	return target, nil
}

// Resolve routes repeatedly until it reaches an agent without handoff targets.
// It returns that agent and the names visited, entry first.
func (r *Router) Resolve(ctx context.Context, agent *domain.AgentDescriptor, input domain.Input) (*domain.AgentDescriptor, []string, error) {
	path := []string{agent.Name()}
	current := agent
	for hops := 0; current.IsRouter(); hops++ {
		if r.maxDepth > 0 && hops >= r.maxDepth {
			return nil, path, domain.NewDomainError("Router.Resolve", domain.ErrInvalidRoute,
				fmt.Sprintf("handoff chain from %q exceeds depth %d", agent.Name(), r.maxDepth))
		}
		next, err := r.Route(ctx, current, input)
		if err != nil {
			return nil, path, err
		}
		path = append(path, next.Name())
		current = next
	}
	return current, path, nil
}

// routingInstructions appends the handoff catalogue to the agent's own
// instructions.
func routingInstructions(agent *domain.AgentDescriptor) string {
	var b strings.Builder
	if s := strings.TrimSpace(agent.Instructions()); s != "" {
		b.WriteString(s)
		b.WriteString("\n\n")
	}
	b.WriteString("Hand this request off to exactly one of the agents below. ")
	b.WriteString("Set \"target\" to the agent's exact name and explain the choice in \"reasoning\".\n\nAgents:\n")
	for _, t := range agent.Handoffs() {
		b.WriteString("- ")
		b.WriteString(t.Name())
		if d := strings.TrimSpace(t.HandoffDescription()); d != "" {
			b.WriteString(": ")
			b.WriteString(d)
		}
		b.WriteString("\n")
	}
	return b.String()
}
