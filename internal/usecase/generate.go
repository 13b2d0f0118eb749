package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"

	"agentgate/internal/domain"
	"agentgate/internal/infra/tracer"
)

// SchemaValidator validates a decoded JSON value against an output schema.
type SchemaValidator interface {
	Validate(s *domain.OutputSchema, value any) error
}

// discardLogger returns a no-op logger for components created without one.
func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// codeFenceRe matches markdown code fences wrapping JSON.
var codeFenceRe = regexp.MustCompile(`(?si)^` + "```" + `(?:json)?\s*(.*?)\s*` + "```" + `$`)

// Generator runs one single-turn model call and decodes the reply.
type Generator struct {
	llm       domain.LLMProvider
	validator SchemaValidator
	timeout   time.Duration
	logger    *slog.Logger
}

// NewGenerator creates a generator. A zero timeout leaves the caller's deadline in charge.
func NewGenerator(llm domain.LLMProvider, validator SchemaValidator, timeout time.Duration, logger *slog.Logger) *Generator {
	if logger == nil {
		logger = discardLogger()
	}
	return &Generator{llm: llm, validator: validator, timeout: timeout, logger: logger}
}

// generation is one prompt sent to the model.
type generation struct {
	agent        string
	instructions string
	model        string
	schema       *domain.OutputSchema
	input        domain.Input
}

// Generate runs agent against input. When the agent declares an output
// schema the reply must be a JSON object matching it.
func (g *Generator) Generate(ctx context.Context, agent *domain.AgentDescriptor, input domain.Input) (domain.Output, error) {
	return g.run(ctx, generation{
		agent:        agent.Name(),
		instructions: agent.Instructions(),
		model:        agent.Model(),
		schema:       agent.OutputSchema(),
		input:        input,
	})
}

func (g *Generator) run(ctx context.Context, gen generation) (domain.Output, error) {
	ctx, span := tracer.StartSpan(ctx, "generator.chat",
		trace.WithAttributes(
			tracer.StringAttr("agent.name", gen.agent),
			tracer.StringAttr("llm.provider", g.llm.Name()),
		),
	)
	defer span.End()

	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	req := buildChatRequest(gen)
	start := time.Now()
	resp, err := g.llm.Chat(ctx, req)
	if err != nil {
		err = domain.Upstream(fmt.Sprintf("generate %q", gen.agent), err)
		tracer.RecordError(span, err)
		return domain.Output{}, err
	}
	g.logger.Debug("generation completed",
		"agent", gen.agent,
		"model", resp.Model,
		"duration", time.Since(start),
		"structured", gen.schema != nil,
	)

	content := resp.Message.Content
	if gen.schema == nil {
		tracer.SetOK(span)
		return domain.Output{Text: content}, nil
	}

	obj, err := g.decode(gen.schema, content)
	if err != nil {
		err = domain.WrapOp(fmt.Sprintf("generate %q", gen.agent), err)
		tracer.RecordError(span, err)
		return domain.Output{}, err
	}
	tracer.SetOK(span)
	return domain.Output{Text: content, Structured: obj}, nil
}

func buildChatRequest(gen generation) domain.ChatRequest {
	msgs := make([]domain.Message, 0, len(gen.input.Items())+1)
	if gen.instructions != "" {
		msgs = append(msgs, domain.Message{Role: domain.RoleSystem, Content: gen.instructions})
	}
	for _, item := range gen.input.Items() {
		msgs = append(msgs, domain.Message{Role: domain.RoleUser, Content: item})
	}

	req := domain.ChatRequest{Model: gen.model, Messages: msgs}
	if gen.schema != nil {
		req.ResponseFormat = &domain.ResponseFormat{
			Name:   gen.schema.Name(),
			Schema: gen.schema.Raw(),
			Strict: true,
		}
	}
	return req
}

// decode parses content as a JSON object and validates it against s.
func (g *Generator) decode(s *domain.OutputSchema, content string) (map[string]any, error) {
	text := stripCodeFences(content)
	if text == "" {
		return nil, domain.NewDomainError("Generator.decode", domain.ErrDecodeFailure, "empty reply")
	}

	var v any
	if err := json.Unmarshal([]byte(text), &v); err != nil {
		return nil, domain.NewDomainError("Generator.decode", domain.ErrDecodeFailure,
			fmt.Sprintf("reply is not JSON: %v (got: %s)", err, truncate(text, 200)))
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, domain.NewDomainError("Generator.decode", domain.ErrDecodeFailure,
			fmt.Sprintf("reply is not a JSON object (got: %s)", truncate(text, 200)))
	}

	if g.validator != nil {
		if err := g.validator.Validate(s, obj); err != nil {
			if !errors.Is(err, domain.ErrDecodeFailure) && !errors.Is(err, domain.ErrInvalidDescriptor) {
				err = fmt.Errorf("%w: %w", domain.ErrDecodeFailure, err)
			}
			return nil, err
		}
	}
	return obj, nil
}

// stripCodeFences removes a surrounding markdown code fence, if any.
func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if m := codeFenceRe.FindStringSubmatch(s); len(m) > 1 {
		return strings.TrimSpace(m[1])
	}
	return s
}

// truncate shortens a string to maxLen bytes on a clean UTF-8 boundary,
// appending "..." if truncated.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	end := 0
	for i := range s {
		if i > maxLen {
			break
		}
		end = i
	}
	return s[:end] + "..."
}
