package main

import (
	"context"
	"fmt"
	"log/slog"

	"agentgate/internal/adapter/schema"
	"agentgate/internal/infra/config"
	"agentgate/internal/infra/logger"
	"agentgate/internal/infra/metrics"
	"agentgate/internal/infra/tracer"
	"agentgate/internal/usecase"
)

// app is the wired runtime shared by run, chat and serve.
type app struct {
	cfg     *config.Config
	log     *slog.Logger
	catalog *usecase.Catalog
	llm     *LLMComponents
	metrics *metrics.Recorder
	runner  *usecase.Runner

	closers []func(context.Context) error
}

// loadConfig reads the config file and applies global CLI overrides.
func loadConfig(cli *CLI) (*config.Config, error) {
	if err := config.LoadEnvFiles("."); err != nil {
		return nil, err
	}
	cfg, err := config.Load(cli.Config)
	if err != nil {
		return nil, err
	}
	if cli.LogLevel != "" {
		cfg.Logger.Level = cli.LogLevel
	}
	return cfg, nil
}

// newApp wires logger, tracer, providers, catalog, metrics and runner.
func newApp(ctx context.Context, cli *CLI) (*app, error) {
	cfg, err := loadConfig(cli)
	if err != nil {
		return nil, err
	}

	log, closeLog, err := logger.New(cfg.Logger)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, log: log}
	a.closers = append(a.closers, func(context.Context) error { return closeLog() })

	shutdownTracer, err := tracer.Setup(ctx, cfg.Tracer)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("tracer: %w", err)
	}
	a.closers = append(a.closers, shutdownTracer)

	validator := schema.NewValidator()
	a.catalog, err = buildCatalog(cfg, validator)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.llm, err = initLLM(cfg, log)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.metrics = metrics.NewRecorder()
	a.runner = usecase.NewRunner(usecase.RunnerDeps{
		LLM:       a.llm.DefaultLLM,
		Validator: validator,
		Metrics:   a.metrics,
		Logger:    log,
		Config: usecase.RunnerConfig{
			CallTimeout:           cfg.Runner.CallTimeout,
			ParallelGuardrails:    cfg.Runner.ParallelGuardrails,
			MaxParallelGuardrails: cfg.Runner.MaxParallelGuardrails,
			MaxHandoffDepth:       cfg.Runner.MaxHandoffDepth,
		},
	})

	log.Debug("agentgate ready",
		"agents", a.catalog.Len(),
		"providers", a.llm.Registry.List(),
		"default_provider", cfg.LLM.DefaultProvider,
	)
	return a, nil
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() {
	ctx := context.Background()
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil && a.log != nil {
			a.log.Warn("shutdown", "error", err)
		}
	}
	a.closers = nil
}

func buildCatalog(cfg *config.Config, validator *schema.Validator) (*usecase.Catalog, error) {
	catalog, err := usecase.BuildCatalog(agentDefinitions(cfg.Agents))
	if err != nil {
		return nil, fmt.Errorf("agent catalog: %w", err)
	}
	if err := catalog.CompileSchemas(validator); err != nil {
		return nil, fmt.Errorf("agent catalog: %w", err)
	}
	return catalog, nil
}

// agentDefinitions maps the agents config section onto catalog definitions.
func agentDefinitions(agents []config.AgentConfig) []usecase.AgentDefinition {
	defs := make([]usecase.AgentDefinition, 0, len(agents))
	for _, ac := range agents {
		def := usecase.AgentDefinition{
			Name:               ac.Name,
			Instructions:       ac.Instructions,
			HandoffDescription: ac.HandoffDescription,
			Model:              ac.Model,
			InputGuardrails:    guardrailDefinitions(ac.InputGuardrails),
			OutputGuardrails:   guardrailDefinitions(ac.OutputGuardrails),
			Handoffs:           append([]string(nil), ac.Handoffs...),
		}
		if s := ac.OutputSchema; s != nil {
			def.Schema = &usecase.SchemaDefinition{
				Name:       s.Name,
				Fields:     s.Fields,
				JSONSchema: s.JSONSchema,
			}
		}
		defs = append(defs, def)
	}
	return defs
}

func guardrailDefinitions(gs []config.GuardrailConfig) []usecase.GuardrailDefinition {
	if len(gs) == 0 {
		return nil
	}
	out := make([]usecase.GuardrailDefinition, len(gs))
	for i, g := range gs {
		out[i] = usecase.GuardrailDefinition{
			Name:           g.Name,
			Agent:          g.Agent,
			TripwireField:  g.TripwireField,
			ReasoningField: g.ReasoningField,
		}
	}
	return out
}
