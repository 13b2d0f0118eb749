package usecase

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"agentgate/internal/domain"
	"agentgate/internal/infra/tracer"
)

// EvaluatorConfig controls how a guardrail phase is evaluated.
type EvaluatorConfig struct {
	Parallel    bool // run every check of a phase concurrently
	MaxParallel int  // concurrency bound in parallel mode; <= 0 means unbounded
}

// Evaluator runs guardrail check agents and reads their tripwire field.
type Evaluator struct {
	gen     *Generator
	config  EvaluatorConfig
	metrics Metrics
	logger  *slog.Logger
}

// NewEvaluator creates a guardrail evaluator.
func NewEvaluator(gen *Generator, cfg EvaluatorConfig, metrics Metrics, logger *slog.Logger) *Evaluator {
	if metrics == nil {
		metrics = noopMetrics{}
	}
	if logger == nil {
		logger = discardLogger()
	}
	return &Evaluator{gen: gen, config: cfg, metrics: metrics, logger: logger}
}

// Trip identifies the guardrail that stopped a phase.
type Trip struct {
	Spec    *domain.GuardrailSpec
	Verdict domain.GuardrailVerdict
}

// Evaluate runs one guardrail check against input. The check agent sees the
// same user messages the generating agent does. A reply that does not
// carry a boolean tripwire is a decode failure, never a pass.
func (e *Evaluator) Evaluate(ctx context.Context, spec *domain.GuardrailSpec, input domain.Input, rc *domain.RunContext) (domain.GuardrailVerdict, error) {
	ctx, span := tracer.StartSpan(ctx, "guardrail.check",
		trace.WithAttributes(
			tracer.StringAttr("guardrail.name", spec.Name()),
			tracer.StringAttr("guardrail.kind", string(spec.Kind())),
		),
	)
	defer span.End()

	verdict, err := e.evaluate(ctx, spec, input)
	switch {
	case err != nil:
		e.metrics.GuardrailChecked(spec.Name(), spec.Kind(), CheckError)
		tracer.RecordError(span, err)
		return domain.GuardrailVerdict{}, err
	case verdict.Tripped:
		e.metrics.GuardrailChecked(spec.Name(), spec.Kind(), CheckTripped)
	default:
		e.metrics.GuardrailChecked(spec.Name(), spec.Kind(), CheckPassed)
	}

	if rc != nil {
		rc.Set("guardrail."+spec.Name(), verdict.Info)
	}
	e.logger.Debug("guardrail evaluated",
		"guardrail", spec.Name(),
		"kind", spec.Kind(),
		"tripped", verdict.Tripped,
	)
	span.SetAttributes(tracer.BoolAttr("guardrail.tripped", verdict.Tripped))
	tracer.SetOK(span)
	return verdict, nil
}

func (e *Evaluator) evaluate(ctx context.Context, spec *domain.GuardrailSpec, input domain.Input) (domain.GuardrailVerdict, error) {
	op := fmt.Sprintf("guardrail %q", spec.Name())
	out, err := e.gen.Generate(ctx, spec.CheckAgent(), input)
	if err != nil {
		return domain.GuardrailVerdict{}, domain.WrapOp(op, err)
	}

	raw, ok := out.Structured[spec.TripwireField()]
	if !ok {
		return domain.GuardrailVerdict{}, domain.NewDomainError(op, domain.ErrDecodeFailure,
			fmt.Sprintf("tripwire field %q missing", spec.TripwireField()))
	}
	tripped, ok := raw.(bool)
	if !ok {
		return domain.GuardrailVerdict{}, domain.NewDomainError(op, domain.ErrDecodeFailure,
			fmt.Sprintf("tripwire field %q is %T, want bool", spec.TripwireField(), raw))
	}
	return domain.GuardrailVerdict{Tripped: tripped, Info: out.Structured}, nil
}

// EvaluateAll runs a guardrail phase and returns the first trip in declared
// order, or nil when every check passed. The first error in declared order
// aborts the phase.
func (e *Evaluator) EvaluateAll(ctx context.Context, specs []*domain.GuardrailSpec, input domain.Input, rc *domain.RunContext) (*Trip, error) {
	if len(specs) == 0 {
		return nil, nil
	}
	if e.config.Parallel && len(specs) > 1 {
		return e.evaluateParallel(ctx, specs, input, rc)
	}

	for _, spec := range specs {
		verdict, err := e.Evaluate(ctx, spec, input, rc)
		if err != nil {
			return nil, err
		}
		if verdict.Tripped {
			return &Trip{Spec: spec, Verdict: verdict}, nil
		}
	}
	return nil, nil
}

type checkResult struct {
	verdict domain.GuardrailVerdict
	err     error
}

// evaluateParallel runs all checks and then scans results in declared order,
// so the outcome matches sequential evaluation whenever a check fails or trips.
func (e *Evaluator) evaluateParallel(ctx context.Context, specs []*domain.GuardrailSpec, input domain.Input, rc *domain.RunContext) (*Trip, error) {
	results := make([]checkResult, len(specs))

	var g errgroup.Group
	if e.config.MaxParallel > 0 {
		g.SetLimit(e.config.MaxParallel)
	}
	for i, spec := range specs {
		g.Go(func() error {
			v, err := e.Evaluate(ctx, spec, input, rc)
			results[i] = checkResult{verdict: v, err: err}
			return nil
		})
	}
	_ = g.Wait() // workers record their error in results

	for i, r := range results {
		if r.err != nil {
			return nil, r.err
		}
		if r.verdict.Tripped {
			return &Trip{Spec: specs[i], Verdict: r.verdict}, nil
		}
	}
	return nil, nil
}
