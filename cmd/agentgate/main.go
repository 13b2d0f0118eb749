// Command agentgate runs guarded, routed single-turn agent invocations.
//
// Usage:
//
//	agentgate run --agent "Triage Agent" "what is 4 + 4 - 2?"
//	agentgate chat --agent Support
//	agentgate serve --config agentgate.yaml
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"runtime/debug"
	"strings"
	"syscall"

	"github.com/alecthomas/kong"
	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/term"

	"agentgate/internal/adapter/gateway"
	"agentgate/internal/adapter/schema"
	"agentgate/internal/adapter/tui/chat"
	"agentgate/internal/adapter/tui/components"
	"agentgate/internal/adapter/tui/uxerror"
	"agentgate/internal/domain"
	"agentgate/internal/infra/config"
	"agentgate/internal/infra/middleware"
)

// CLI defines the command-line interface.
type CLI struct {
	Run      RunCmd      `cmd:"" help:"Run one invocation and print the result."`
	Chat     ChatCmd     `cmd:"" help:"Chat with an agent, one invocation per prompt."`
	Serve    ServeCmd    `cmd:"" help:"Start the HTTP/WebSocket gateway."`
	Agents   AgentsCmd   `cmd:"" help:"List the agent catalog."`
	Validate ValidateCmd `cmd:"" help:"Validate the configuration file."`
	Encrypt  EncryptCmd  `cmd:"" help:"Encrypt a secret for use in the config file."`
	Doctor   DoctorCmd   `cmd:"" help:"Check configuration and provider connectivity."`
	Version  VersionCmd  `cmd:"" help:"Show version information."`

	Config   string `short:"c" help:"Path to config file." type:"path" default:"agentgate.yaml" env:"AGENTGATE_CONFIG"`
	LogLevel string `help:"Log level (debug, info, warn, error)."`
}

// errExit reports a non-zero exit without printing anything further.
type errExit int

func (e errExit) Error() string { return fmt.Sprintf("exit status %d", int(e)) }

// VersionCmd shows version information.
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	fmt.Printf("agentgate version %s\n", version())
	return nil
}

func version() string {
	if info, ok := debug.ReadBuildInfo(); ok {
		if info.Main.Version != "(devel)" && info.Main.Version != "" {
			return info.Main.Version
		}
	}
	return "dev"
}

// RunCmd performs a single invocation.
type RunCmd struct {
	Agent   string            `short:"a" required:"" help:"Entry agent name."`
	JSON    bool              `name:"json" help:"Print the result as JSON."`
	Items   bool              `help:"Send each argument as a separate user message."`
	Context map[string]string `short:"x" help:"Context values (key=value)."`
	Input   []string          `arg:"" help:"Input text."`
}

func (c *RunCmd) Run(cli *CLI) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cli)
	if err != nil {
		return err
	}
	defer a.Close()

	agent, err := a.catalog.Get(c.Agent)
	if err != nil {
		return err
	}

	input := domain.TextInput(strings.Join(c.Input, " "))
	if c.Items {
		input = domain.ItemsInput(c.Input...)
	}
	values := make(map[string]any, len(c.Context))
	for k, v := range c.Context {
		values[k] = v
	}

	res := a.runner.Run(ctx, domain.InvocationRequest{
		Agent:   agent,
		Input:   input,
		Context: domain.NewRunContext(values),
	})

	if c.JSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(gateway.NewResultView(res)); err != nil {
			return err
		}
	} else {
		fmt.Print(components.RenderResult(res, terminalWidth()))
	}
	return exitFor(res)
}

// exitFor maps an outcome to the process exit status: 0 completed,
// 2 blocked, 1 failed.
func exitFor(res domain.InvocationResult) error {
	switch res.Outcome() {
	case domain.OutcomeBlocked:
		return errExit(2)
	case domain.OutcomeFailed:
		return errExit(1)
	default:
		return nil
	}
}

func terminalWidth() int {
	if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 0 {
		return w
	}
	return 80
}

// ChatCmd starts the interactive prompt.
type ChatCmd struct {
	Agent string `short:"a" required:"" help:"Agent to chat with."`
}

func (c *ChatCmd) Run(cli *CLI) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cli)
	if err != nil {
		return err
	}
	defer a.Close()

	agent, err := a.catalog.Get(c.Agent)
	if err != nil {
		return err
	}
	model := agent.Model()
	if model == "" {
		model = defaultModel(a.cfg)
	}

	invoke := func(ctx context.Context, input string) domain.InvocationResult {
		return a.runner.Run(ctx, domain.InvocationRequest{
			Agent:   agent,
			Input:   domain.TextInput(input),
			Context: domain.NewRunContext(nil),
		})
	}

	p := tea.NewProgram(chat.NewChatModel(chat.ChatModelDeps{
		Invoke:    invoke,
		AgentName: agent.Name(),
		ModelName: model,
		Logger:    a.log,
	}), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err = p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}

// ServeCmd runs the gateway until interrupted.
type ServeCmd struct {
	Addr string `help:"Listen address (overrides gateway.addr)."`
}

func (c *ServeCmd) Run(cli *CLI) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cli)
	if err != nil {
		return err
	}
	defer a.Close()

	gw := a.cfg.Gateway
	addr := gw.Addr
	if c.Addr != "" {
		addr = c.Addr
	}

	srv := gateway.NewServer(a.catalog, a.runner, gateway.Options{
		Addr: addr,
		Auth: gatewayAuth(gw.Auth),
		RateLimit: middleware.RateLimitConfig{
			RequestsPerMin: gw.RateLimit.RequestsPerMinute,
			BurstSize:      gw.RateLimit.Burst,
		},
		AllowedOrigins: gw.AllowedOrigins,
		Metrics:        a.metrics.Handler(),
		Logger:         a.log,
	})

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start(ctx) }()

	select {
	case <-srv.Ready():
		fmt.Printf("agentgate gateway listening on http://%s\n", srv.BoundAddr())
		fmt.Printf("   Agents:  %d (GET /v1/agents)\n", a.catalog.Len())
		fmt.Printf("   Health:  http://%s/healthz\n", srv.BoundAddr())
		fmt.Printf("   Metrics: http://%s/metrics\n", srv.BoundAddr())
	case err := <-errCh:
		return err
	}

	select {
	case <-ctx.Done():
		a.log.Info("shutting down gateway")
		return <-errCh
	case err := <-errCh:
		return err
	}
}

// gatewayAuth builds the authenticator for the configured auth type.
func gatewayAuth(cfg config.AuthConfig) gateway.Authenticator {
	if cfg.Type != "static" || len(cfg.Tokens) == 0 {
		return gateway.OpenAuth{}
	}
	entries := make([]gateway.TokenEntry, len(cfg.Tokens))
	for i, t := range cfg.Tokens {
		entries[i] = gateway.TokenEntry{Token: t.Token, Name: t.Name}
	}
	return gateway.NewStaticTokenAuth(entries)
}

// AgentsCmd prints the agent catalog.
type AgentsCmd struct {
	JSON bool `name:"json" help:"Print the catalog as JSON."`
}

func (c *AgentsCmd) Run(cli *CLI) error {
	cfg, err := loadConfig(cli)
	if err != nil {
		return err
	}
	catalog, err := buildCatalog(cfg, schema.NewValidator())
	if err != nil {
		return err
	}

	views := make([]gateway.AgentView, 0, catalog.Len())
	for _, name := range catalog.Names() {
		agent, _ := catalog.Get(name)
		views = append(views, gateway.NewAgentView(agent))
	}

	if c.JSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(views)
	}

	if len(views) == 0 {
		fmt.Println("No agents configured.")
		return nil
	}
	fmt.Println("Agents:")
	for _, v := range views {
		fmt.Printf("  - %s", v.Name)
		if v.HandoffDescription != "" {
			fmt.Printf(": %s", v.HandoffDescription)
		}
		fmt.Println()
		if v.Router {
			fmt.Printf("      routes to: %s\n", strings.Join(v.Handoffs, ", "))
		}
		if v.Schema != "" {
			fmt.Printf("      output:    %s\n", v.Schema)
		}
		if len(v.InputGuardrails) > 0 {
			fmt.Printf("      input guardrails:  %s\n", strings.Join(v.InputGuardrails, ", "))
		}
		if len(v.OutputGuardrails) > 0 {
			fmt.Printf("      output guardrails: %s\n", strings.Join(v.OutputGuardrails, ", "))
		}
	}
	return nil
}

// ValidateCmd checks the config file and the catalog it declares.
type ValidateCmd struct{}

func (c *ValidateCmd) Run(cli *CLI) error {
	cfg, err := loadConfig(cli)
	if err != nil {
		return err
	}
	catalog, err := buildCatalog(cfg, schema.NewValidator())
	if err != nil {
		return err
	}
	fmt.Printf("Configuration is valid (%d agents, default provider %s)\n",
		catalog.Len(), cfg.LLM.DefaultProvider)
	return nil
}

// EncryptCmd prints an enc: value for the config file.
type EncryptCmd struct {
	Value string `arg:"" help:"Plaintext secret."`
}

func (c *EncryptCmd) Run() error {
	passphrase := os.Getenv(configKeyEnv)
	if passphrase == "" {
		return fmt.Errorf("%s must be set to encrypt secrets", configKeyEnv)
	}
	enc, err := config.EncryptValue(c.Value, passphrase)
	if err != nil {
		return err
	}
	fmt.Println(enc)
	return nil
}

// configKeyEnv holds the passphrase for enc: secrets.
const configKeyEnv = "AGENTGATE_CONFIG_KEY"

// DoctorCmd runs the health checks.
type DoctorCmd struct{}

func (c *DoctorCmd) Run(cli *CLI) error {
	_ = config.LoadEnvFiles(".")
	return runDoctor(cli.Config)
}

func main() {
	cli := CLI{}
	ctx := kong.Parse(&cli,
		kong.Name("agentgate"),
		kong.Description("Guarded, routed single-turn agent invocations."),
		kong.UsageOnError(),
	)

	err := ctx.Run(&cli)
	var code errExit
	if errors.As(err, &code) {
		os.Exit(int(code))
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, uxerror.Humanize(err).Render())
		os.Exit(1)
	}
}
