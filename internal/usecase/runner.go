package usecase

import (
	"context"
	"crypto/rand"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel/trace"

	"agentgate/internal/domain"
	"agentgate/internal/infra/tracer"
)

// RunnerConfig holds the invocation limits.
type RunnerConfig struct {
	CallTimeout           time.Duration // per nested model call
	ParallelGuardrails    bool
	MaxParallelGuardrails int
	MaxHandoffDepth       int
}

// RunnerDeps holds the dependencies for creating a Runner.
type RunnerDeps struct {
	LLM       domain.LLMProvider
	Validator SchemaValidator
	Metrics   Metrics
	Logger    *slog.Logger
	Config    RunnerConfig
}

// Runner drives one single-turn invocation through input guardrails,
// handoff routing, generation and output guardrails.
type Runner struct {
	gen       *Generator
	router    *Router
	evaluator *Evaluator
	metrics   Metrics
	logger    *slog.Logger
}

// NewRunner wires a runner from deps.
func NewRunner(deps RunnerDeps) *Runner {
	if deps.Logger == nil {
		deps.Logger = discardLogger()
	}
	if deps.Metrics == nil {
		deps.Metrics = noopMetrics{}
	}
	if deps.Config.CallTimeout <= 0 {
		deps.Config.CallTimeout = 60 * time.Second
	}

	gen := NewGenerator(deps.LLM, deps.Validator, deps.Config.CallTimeout, deps.Logger)
	return &Runner{
		gen:    gen,
		router: NewRouter(gen, deps.Config.MaxHandoffDepth, deps.Metrics, deps.Logger),
		evaluator: NewEvaluator(gen, EvaluatorConfig{
			Parallel:    deps.Config.ParallelGuardrails,
			MaxParallel: deps.Config.MaxParallelGuardrails,
		}, deps.Metrics, deps.Logger),
		metrics: deps.Metrics,
		logger:  deps.Logger,
	}
}

// Run executes req and always returns exactly one of Completed, Blocked or
// Failed. Tripwires and errors never escape as Go errors.
func (r *Runner) Run(ctx context.Context, req domain.InvocationRequest) domain.InvocationResult {
	start := time.Now()
	id := newInvocationID(start)

	entry := ""
	if req.Agent != nil {
		entry = req.Agent.Name()
	}
	ctx, span := tracer.StartSpan(ctx, "runner.run",
		trace.WithAttributes(
			tracer.StringAttr("invocation.id", id),
			tracer.StringAttr("agent.name", entry),
		),
	)
	defer span.End()

	logger := r.logger.With("invocation_id", id, "agent", entry)
	result := r.run(ctx, id, req, logger)
	elapsed := time.Since(start)

	label := string(result.Outcome())
	switch res := result.(type) {
	case domain.Completed:
		logger.Info("invocation completed", "served_by", res.Agent, "path", res.Path, "duration", elapsed)
		tracer.SetOK(span)
	case domain.Blocked:
		logger.Info("invocation blocked",
			"guardrail", res.Guardrail.Name(),
			"kind", res.Guardrail.Kind(),
			"reasoning", truncate(res.Reasoning, 200),
			"duration", elapsed,
		)
		span.SetAttributes(tracer.StringAttr("guardrail.name", res.Guardrail.Name()))
		tracer.SetOK(span)
	case domain.Failed:
		label = string(res.Kind)
		logger.Warn("invocation failed",
			"kind", res.Kind,
			"code", domain.ErrorCodeOf(res.Err),
			"error", res.Message,
			"duration", elapsed,
		)
		tracer.RecordError(span, res)
	}
	span.SetAttributes(tracer.StringAttr("invocation.outcome", label))
	r.metrics.InvocationFinished(entry, label, elapsed)
	return result
}

func (r *Runner) run(ctx context.Context, id string, req domain.InvocationRequest, logger *slog.Logger) domain.InvocationResult {
	if req.Agent == nil {
		return domain.NewFailed(id, domain.NewDomainError("Runner.Run", domain.ErrInvalidRequest, "agent is required"))
	}
	if req.Input.IsEmpty() {
		return domain.NewFailed(id, domain.NewDomainError("Runner.Run", domain.ErrInvalidRequest, "input is empty"))
	}

	rc := req.Context
	if rc == nil {
		rc = domain.NewRunContext(nil)
	}

	var trip *Trip
	err := r.phase(ctx, "input_guardrails", func(ctx context.Context) error {
		var err error
		trip, err = r.evaluator.EvaluateAll(ctx, req.Agent.GuardrailsOf(domain.GuardrailInput), req.Input, rc)
		return err
	})
	if err != nil {
		return domain.NewFailed(id, err)
	}
	if trip != nil {
		return blocked(id, trip)
	}

	var (
		target *domain.AgentDescriptor
		path   []string
	)
	err = r.phase(ctx, "routing", func(ctx context.Context) error {
		var err error
		target, path, err = r.router.Resolve(ctx, req.Agent, req.Input)
		return err
	})
	if err != nil {
		return domain.NewFailed(id, err)
	}
	if target != req.Agent {
		logger.Debug("request handed off", "path", path)
	}

	var out domain.Output
	err = r.phase(ctx, "generation", func(ctx context.Context) error {
		var err error
		out, err = r.gen.Generate(ctx, target, req.Input)
		return err
	})
	if err != nil {
		return domain.NewFailed(id, err)
	}

	err = r.phase(ctx, "output_guardrails", func(ctx context.Context) error {
		var err error
		trip, err = r.evaluator.EvaluateAll(ctx, target.GuardrailsOf(domain.GuardrailOutput), domain.TextInput(out.PayloadText()), rc)
		return err
	})
	if err != nil {
		return domain.NewFailed(id, err)
	}
	if trip != nil {
		return blocked(id, trip)
	}

	return domain.Completed{
		InvocationID: id,
		Agent:        target.Name(),
		Path:         path,
		Output:       out,
	}
}

// phase runs fn inside its own span.
func (r *Runner) phase(ctx context.Context, name string, fn func(context.Context) error) error {
	ctx, span := tracer.StartSpan(ctx, "runner."+name)
	defer span.End()
	if err := fn(ctx); err != nil {
		tracer.RecordError(span, err)
		return err
	}
	tracer.SetOK(span)
	return nil
}

func blocked(id string, trip *Trip) domain.Blocked {
	return domain.Blocked{
		InvocationID: id,
		Guardrail:    trip.Spec,
		Reasoning:    trip.Verdict.Reasoning(trip.Spec),
		Info:         trip.Verdict.Info,
	}
}

func newInvocationID(t time.Time) string {
	return ulid.MustNew(ulid.Timestamp(t), rand.Reader).String()
}
