package usecase

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"agentgate/internal/domain"
)

// AgentDefinition is the declarative form of one agent, as read from config.
type AgentDefinition struct {
	Name               string
	Instructions       string
	HandoffDescription string
	Model              string
	Schema             *SchemaDefinition
	InputGuardrails    []GuardrailDefinition
	OutputGuardrails   []GuardrailDefinition
	Handoffs           []string
}

// SchemaDefinition declares an output schema as a field map or raw JSON Schema.
type SchemaDefinition struct {
	Name       string
	Fields     map[string]string
	JSONSchema string
}

// GuardrailDefinition attaches the named check agent as a guardrail.
type GuardrailDefinition struct {
	Name           string
	Agent          string
	TripwireField  string
	ReasoningField string
}

// Catalog is the set of immutable agent descriptors built at start-up.
type Catalog struct {
	agents map[string]*domain.AgentDescriptor
	names  []string
}

// BuildCatalog resolves definitions by name. Check agents and handoff targets
// are built before the agents that reference them; unknown names and cycles
// are reported together.
func BuildCatalog(defs []AgentDefinition) (*Catalog, error) {
	defs = append([]AgentDefinition(nil), defs...)
	byName := make(map[string]*AgentDefinition, len(defs))
	var errs []error
	for i := range defs {
		d := &defs[i]
		d.Name = strings.TrimSpace(d.Name)
		if d.Name == "" {
			errs = append(errs, fmt.Errorf("agent %d: name is empty", i))
			continue
		}
		if _, dup := byName[d.Name]; dup {
			errs = append(errs, fmt.Errorf("agent %q: defined twice", d.Name))
			continue
		}
		byName[d.Name] = d
	}
	if len(errs) > 0 {
		return nil, domain.NewDomainError("BuildCatalog", domain.ErrInvalidDescriptor, errors.Join(errs...).Error())
	}

	b := &catalogBuilder{
		defs:     byName,
		built:    make(map[string]*domain.AgentDescriptor, len(defs)),
		visiting: make(map[string]bool),
	}
	for _, d := range defs {
		if b.failed[d.Name] {
			continue // reported through the agent that referenced it
		}
		if _, err := b.build(d.Name); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	names := make([]string, 0, len(b.built))
	for name := range b.built {
		names = append(names, name)
	}
	sort.Strings(names)
	return &Catalog{agents: b.built, names: names}, nil
}

type catalogBuilder struct {
	defs     map[string]*AgentDefinition
	built    map[string]*domain.AgentDescriptor
	visiting map[string]bool
	failed   map[string]bool
}

func (b *catalogBuilder) build(name string) (*domain.AgentDescriptor, error) {
	if a, ok := b.built[name]; ok {
		return a, nil
	}
	if b.failed[name] {
		return nil, fmt.Errorf("agent %q: %w", name, errAlreadyReported)
	}
	d, ok := b.defs[name]
	if !ok {
		return nil, domain.NewDomainError("BuildCatalog", domain.ErrAgentNotFound, fmt.Sprintf("agent %q is not defined", name))
	}
	if b.visiting[name] {
		return nil, domain.NewDomainError("BuildCatalog", domain.ErrInvalidDescriptor, fmt.Sprintf("agent %q is part of a reference cycle", name))
	}
	b.visiting[name] = true
	defer delete(b.visiting, name)

	a, err := b.assemble(d)
	if err != nil {
		if b.failed == nil {
			b.failed = make(map[string]bool)
		}
		b.failed[name] = true
		return nil, err
	}
	b.built[name] = a
	return a, nil
}

// errAlreadyReported marks a dependency whose own error was returned earlier.
var errAlreadyReported = errors.New("dependency failed")

func (b *catalogBuilder) assemble(d *AgentDefinition) (*domain.AgentDescriptor, error) {
	opts := domain.AgentOptions{
		Name:               d.Name,
		Instructions:       d.Instructions,
		HandoffDescription: d.HandoffDescription,
		Model:              d.Model,
	}

	if d.Schema != nil {
		s, err := buildSchema(d.Name, d.Schema)
		if err != nil {
			return nil, err
		}
		opts.OutputSchema = s
	}

	for _, target := range d.Handoffs {
		t, err := b.build(target)
		if err != nil {
			return nil, wrapRef(d.Name, "handoff", target, err)
		}
		opts.Handoffs = append(opts.Handoffs, t)
	}

	add := func(kind domain.GuardrailKind, defs []GuardrailDefinition) error {
		for _, gd := range defs {
			check, err := b.build(gd.Agent)
			if err != nil {
				return wrapRef(d.Name, string(kind)+" guardrail", gd.Agent, err)
			}
			g, err := domain.NewGuardrailSpec(domain.GuardrailOptions{
				Kind:           kind,
				Name:           gd.Name,
				CheckAgent:     check,
				TripwireField:  gd.TripwireField,
				ReasoningField: gd.ReasoningField,
			})
			if err != nil {
				return fmt.Errorf("agent %q: %w", d.Name, err)
			}
			opts.Guardrails = append(opts.Guardrails, g)
		}
		return nil
	}
	if err := add(domain.GuardrailInput, d.InputGuardrails); err != nil {
		return nil, err
	}
	if err := add(domain.GuardrailOutput, d.OutputGuardrails); err != nil {
		return nil, err
	}

	return domain.NewAgentDescriptor(opts)
}

func wrapRef(agent, what, target string, err error) error {
	return fmt.Errorf("agent %q %s %q: %w", agent, what, target, err)
}

func buildSchema(agent string, sd *SchemaDefinition) (*domain.OutputSchema, error) {
	name := sd.Name
	if name == "" {
		name = schemaName(agent)
	}
	switch {
	case sd.JSONSchema != "":
		return domain.NewOutputSchema(name, []byte(sd.JSONSchema))
	default:
		return domain.NewFieldSchema(name, sd.Fields)
	}
}

// schemaName derives a provider-safe schema name from an agent name.
func schemaName(agent string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(agent) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return strings.Trim(b.String(), "_") + "_output"
}

// Get returns the descriptor named name.
func (c *Catalog) Get(name string) (*domain.AgentDescriptor, error) {
	a, ok := c.agents[name]
	if !ok {
		return nil, domain.NewDomainError("Catalog.Get", domain.ErrAgentNotFound, fmt.Sprintf("agent %q", name))
	}
	return a, nil
}

// Names returns all agent names, sorted.
func (c *Catalog) Names() []string {
	return append([]string(nil), c.names...)
}

// SchemaCompiler compiles an output schema ahead of the first model call.
type SchemaCompiler interface {
	Compile(s *domain.OutputSchema) error
}

// CompileSchemas compiles every declared output schema so a schema the
// validator cannot use is reported at start-up, not on the first reply.
func (c *Catalog) CompileSchemas(compiler SchemaCompiler) error {
	var errs []error
	for _, name := range c.names {
		s := c.agents[name].OutputSchema()
		if s == nil {
			continue
		}
		if err := compiler.Compile(s); err != nil {
			errs = append(errs, fmt.Errorf("agent %q: %w", name, err))
		}
	}
	if len(errs) > 0 {
		return domain.NewDomainError("Catalog.CompileSchemas", domain.ErrInvalidDescriptor, errors.Join(errs...).Error())
	}
	return nil
}

// Len returns the number of agents.
func (c *Catalog) Len() int { return len(c.names) }
