package config

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/crypto/argon2"
	"gopkg.in/yaml.v3"
)

// DefaultPath is the config file read when no path is given.
const DefaultPath = "agentgate.yaml"

// Config is the top-level application configuration.
type Config struct {
	LLM      LLMConfig     `yaml:"llm"`
	Runner   RunnerConfig  `yaml:"runner"`
	Logger   LoggerConfig  `yaml:"logger"`
	Tracer   TracerConfig  `yaml:"tracer"`
	Gateway  GatewayConfig `yaml:"gateway"`
	Agents   []AgentConfig `yaml:"agents"`
	Includes []string      `yaml:"includes,omitempty"`
}

// LLMConfig holds LLM provider settings.
type LLMConfig struct {
	DefaultProvider string               `yaml:"default_provider"`
	Providers       []ProviderConfig     `yaml:"providers"`
	Failover        FailoverConfig       `yaml:"failover"`
	CircuitBreaker  CircuitBreakerConfig `yaml:"circuit_breaker"`
	RateLimit       RateLimitConfig      `yaml:"rate_limit"`
}

// FailoverConfig holds model failover settings.
type FailoverConfig struct {
	Enabled   bool     `yaml:"enabled"`
	Fallbacks []string `yaml:"fallbacks"`
}

// CircuitBreakerConfig holds circuit breaker settings for LLM providers.
type CircuitBreakerConfig struct {
	Enabled     bool          `yaml:"enabled"`
	MaxFailures uint32        `yaml:"max_failures"`
	Timeout     time.Duration `yaml:"timeout"`
	Interval    time.Duration `yaml:"interval"`
}

// RateLimitConfig caps outbound model calls across all invocations.
type RateLimitConfig struct {
	Enabled           bool `yaml:"enabled"`
	RequestsPerMinute int  `yaml:"requests_per_minute"`
	Burst             int  `yaml:"burst"`
}

// PoolConfig holds HTTP connection pool settings for LLM providers.
type PoolConfig struct {
	MaxIdleConns        int           `yaml:"max_idle_conns"`
	MaxIdleConnsPerHost int           `yaml:"max_idle_conns_per_host"`
	MaxConnsPerHost     int           `yaml:"max_conns_per_host"`
	IdleConnTimeout     time.Duration `yaml:"idle_conn_timeout"`
}

// ProviderConfig holds settings for a single LLM provider.
type ProviderConfig struct {
	Name        string        `yaml:"name"`
	Type        string        `yaml:"type"` // openai, gemini, openrouter, ollama, anthropic
	BaseURL     string        `yaml:"base_url"`
	APIKey      string        `yaml:"api_key"`
	Model       string        `yaml:"model"`
	ConnTimeout time.Duration `yaml:"conn_timeout"`
	RespTimeout time.Duration `yaml:"resp_timeout"`
	Pool        PoolConfig    `yaml:"pool"`
}

// RunnerConfig holds invocation limits.
type RunnerConfig struct {
	CallTimeout           time.Duration `yaml:"call_timeout"`
	ParallelGuardrails    bool          `yaml:"parallel_guardrails"`
	MaxParallelGuardrails int           `yaml:"max_parallel_guardrails"`
	MaxHandoffDepth       int           `yaml:"max_handoff_depth"`
}

// LoggerConfig holds logging settings.
type LoggerConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// TracerConfig holds tracing settings.
type TracerConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Exporter string `yaml:"exporter"`
	Endpoint string `yaml:"endpoint"`
}

// GatewayConfig holds HTTP/WebSocket gateway settings.
type GatewayConfig struct {
	Enabled        bool                   `yaml:"enabled"`
	Addr           string                 `yaml:"addr"`
	Auth           AuthConfig             `yaml:"auth"`
	RateLimit      GatewayRateLimitConfig `yaml:"rate_limit"`
	AllowedOrigins []string               `yaml:"allowed_origins,omitempty"`
}

// AuthConfig holds gateway authentication settings.
type AuthConfig struct {
	Type   string        `yaml:"type"` // "static" or ""
	Tokens []TokenConfig `yaml:"tokens,omitempty"`
}

// TokenConfig holds a single gateway auth token.
type TokenConfig struct {
	Token string `yaml:"token"`
	Name  string `yaml:"name"`
}

// GatewayRateLimitConfig is the per-client request budget of the gateway.
type GatewayRateLimitConfig struct {
	RequestsPerMinute int `yaml:"requests_per_minute"`
	Burst             int `yaml:"burst"`
}

// AgentConfig declares one agent of the catalog.
type AgentConfig struct {
	Name               string            `yaml:"name"`
	Instructions       string            `yaml:"instructions"`
	HandoffDescription string            `yaml:"handoff_description,omitempty"`
	Model              string            `yaml:"model,omitempty"`
	OutputSchema       *SchemaConfig     `yaml:"output_schema,omitempty"`
	InputGuardrails    []GuardrailConfig `yaml:"input_guardrails,omitempty"`
	OutputGuardrails   []GuardrailConfig `yaml:"output_guardrails,omitempty"`
	Handoffs           []string          `yaml:"handoffs,omitempty"`
}

// SchemaConfig declares a structured output schema either as a flat
// field -> JSON type map or as a raw JSON Schema document.
type SchemaConfig struct {
	Name       string            `yaml:"name"`
	Fields     map[string]string `yaml:"fields,omitempty"`
	JSONSchema string            `yaml:"json_schema,omitempty"`
}

// GuardrailConfig attaches a check agent to an agent.
type GuardrailConfig struct {
	Name           string `yaml:"name,omitempty"`
	Agent          string `yaml:"agent"`
	TripwireField  string `yaml:"tripwire_field"`
	ReasoningField string `yaml:"reasoning_field,omitempty"`
}

// Defaults returns a Config with sensible defaults.
func Defaults() *Config {
	return &Config{
		LLM: LLMConfig{
			DefaultProvider: "gemini",
			CircuitBreaker: CircuitBreakerConfig{
				Enabled:     true,
				MaxFailures: 5,
				Timeout:     30 * time.Second,
				Interval:    60 * time.Second,
			},
			RateLimit: RateLimitConfig{
				Enabled:           false,
				RequestsPerMinute: 60,
				Burst:             10,
			},
		},
		Runner: RunnerConfig{
			CallTimeout:           60 * time.Second,
			ParallelGuardrails:    false,
			MaxParallelGuardrails: 4,
			MaxHandoffDepth:       8,
		},
		Logger: LoggerConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
		Tracer: TracerConfig{
			Enabled:  false,
			Exporter: "noop",
		},
		Gateway: GatewayConfig{
			Enabled: false,
			Addr:    "127.0.0.1:8080",
			RateLimit: GatewayRateLimitConfig{
				RequestsPerMinute: 60,
				Burst:             10,
			},
		},
	}
}

// Load reads a YAML config file, applies env var overrides, and decrypts secrets.
// A missing file yields the defaults plus env overrides.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return finish(cfg)
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}

	if err := validatePermissions(absPath); err != nil {
		return nil, err
	}

	data = ExpandEnv(data)

	// First pass: unmarshal to get the includes list.
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if len(cfg.Includes) > 0 {
		own := cfg.Agents
		cfg.Agents = nil

		visited := map[string]bool{absPath: true}
		if err := processIncludes(cfg, filepath.Dir(absPath), visited, 0); err != nil {
			return nil, err
		}
		included := cfg.Agents

		// Second pass: re-unmarshal main config so it takes precedence over includes.
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config (second pass): %w", err)
		}
		cfg.Includes = nil
		cfg.Agents = append(included, own...)
	}

	return finish(cfg)
}

func finish(cfg *Config) (*Config, error) {
	ApplyEnvOverrides(cfg)

	if passphrase := os.Getenv("AGENTGATE_CONFIG_KEY"); passphrase != "" {
		if err := decryptSecrets(cfg, passphrase); err != nil {
			return nil, fmt.Errorf("decrypt secrets: %w", err)
		}
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadEnvFiles loads .env.local then .env from dir. Variables already set in
// the process environment are never overwritten.
func LoadEnvFiles(dir string) error {
	for _, name := range []string{".env.local", ".env"} {
		file := filepath.Join(dir, name)
		if err := godotenv.Load(file); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("load %s: %w", file, err)
		}
	}
	return nil
}

// envRefRe matches ${VAR} and ${VAR:-default}.
var envRefRe = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-([^}]*))?\}`)

// ExpandEnv replaces ${VAR} and ${VAR:-default} references in raw config
// text. Bare $VAR is left alone so prompts may contain dollar signs.
func ExpandEnv(data []byte) []byte {
	return envRefRe.ReplaceAllFunc(data, func(m []byte) []byte {
		sub := envRefRe.FindSubmatch(m)
		if v, ok := os.LookupEnv(string(sub[1])); ok && v != "" {
			return []byte(v)
		}
		return sub[2]
	})
}

// vendorKeyEnv names the conventional API key variable of each provider type.
var vendorKeyEnv = map[string]string{
	"gemini":     "GEMINI_API_KEY",
	"openai":     "OPENAI_API_KEY",
	"openrouter": "OPENROUTER_API_KEY",
	"anthropic":  "ANTHROPIC_API_KEY",
}

// ApplyEnvOverrides maps AGENTGATE_* env vars to config fields.
func ApplyEnvOverrides(cfg *Config) {
	if v := os.Getenv("AGENTGATE_LLM_DEFAULT_PROVIDER"); v != "" {
		cfg.LLM.DefaultProvider = v
	}
	if v := os.Getenv("AGENTGATE_LOGGER_LEVEL"); v != "" {
		cfg.Logger.Level = v
	}
	if v := os.Getenv("AGENTGATE_LOGGER_FORMAT"); v != "" {
		cfg.Logger.Format = v
	}
	if v := os.Getenv("AGENTGATE_TRACER_ENABLED"); v == "true" {
		cfg.Tracer.Enabled = true
	}
	if v := os.Getenv("AGENTGATE_TRACER_EXPORTER"); v != "" {
		cfg.Tracer.Exporter = v
	}
	if v := os.Getenv("AGENTGATE_RUNNER_CALL_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.Runner.CallTimeout = d
		}
	}
	if v := os.Getenv("AGENTGATE_RUNNER_PARALLEL_GUARDRAILS"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Runner.ParallelGuardrails = b
		}
	}
	if v := os.Getenv("AGENTGATE_GATEWAY_ENABLED"); v == "true" {
		cfg.Gateway.Enabled = true
	}
	if v := os.Getenv("AGENTGATE_GATEWAY_ADDR"); v != "" {
		cfg.Gateway.Addr = v
	}
	if v := os.Getenv("AGENTGATE_GATEWAY_TOKENS"); v != "" {
		cfg.Gateway.Auth.Type = "static"
		for i, tok := range splitAndTrim(v, ",") {
			if tok == "" {
				continue
			}
			cfg.Gateway.Auth.Tokens = append(cfg.Gateway.Auth.Tokens, TokenConfig{
				Token: tok,
				Name:  fmt.Sprintf("env-%d", i),
			})
		}
	}

	// A bare default provider of a known type needs no providers section.
	if len(cfg.LLM.Providers) == 0 && validProviderTypes[cfg.LLM.DefaultProvider] {
		cfg.LLM.Providers = []ProviderConfig{{
			Name: cfg.LLM.DefaultProvider,
			Type: cfg.LLM.DefaultProvider,
		}}
	}

	// Per-provider overrides: AGENTGATE_LLM_PROVIDER_<NAME>_{API_KEY,MODEL,BASE_URL}
	for i := range cfg.LLM.Providers {
		p := &cfg.LLM.Providers[i]
		prefix := "AGENTGATE_LLM_PROVIDER_" + envName(p.Name) + "_"
		if v := os.Getenv(prefix + "API_KEY"); v != "" {
			p.APIKey = v
		}
		if v := os.Getenv(prefix + "MODEL"); v != "" {
			p.Model = v
		}
		if v := os.Getenv(prefix + "BASE_URL"); v != "" {
			p.BaseURL = v
		}
		if p.APIKey == "" {
			if name, ok := vendorKeyEnv[p.Type]; ok {
				p.APIKey = os.Getenv(name)
			}
		}
	}
}

// envName upper-cases a provider name and replaces characters that are not
// valid in env var names.
func envName(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r - 'a' + 'A'
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		default:
			return '_'
		}
	}, name)
}

// splitAndTrim splits s by sep and trims whitespace from each element.
func splitAndTrim(s, sep string) []string {
	parts := strings.Split(s, sep)
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

// decryptSecrets finds "enc:..." values in provider API keys and gateway
// tokens and decrypts them.
func decryptSecrets(cfg *Config, passphrase string) error {
	for i := range cfg.LLM.Providers {
		p := &cfg.LLM.Providers[i]
		if strings.HasPrefix(p.APIKey, "enc:") {
			decrypted, err := DecryptValue(strings.TrimPrefix(p.APIKey, "enc:"), passphrase)
			if err != nil {
				return fmt.Errorf("provider %s api_key: %w", p.Name, err)
			}
			p.APIKey = decrypted
		}
	}

	for i := range cfg.Gateway.Auth.Tokens {
		tok := &cfg.Gateway.Auth.Tokens[i]
		if strings.HasPrefix(tok.Token, "enc:") {
			decrypted, err := DecryptValue(strings.TrimPrefix(tok.Token, "enc:"), passphrase)
			if err != nil {
				return fmt.Errorf("gateway auth token %s: %w", tok.Name, err)
			}
			tok.Token = decrypted
		}
	}

	return nil
}

// EncryptValue encrypts a plaintext value with AES-256-GCM using a passphrase.
func EncryptValue(plaintext, passphrase string) (string, error) {
	salt := make([]byte, 16)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}

	key := deriveKey(passphrase, salt)
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("create gcm: %w", err)
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}

	ciphertext := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	// Format: hex(salt) + ":" + hex(nonce+ciphertext)
	return hex.EncodeToString(salt) + ":" + hex.EncodeToString(ciphertext), nil
}

// DecryptValue decrypts an AES-256-GCM encrypted value.
func DecryptValue(encrypted, passphrase string) (string, error) {
	parts := strings.SplitN(encrypted, ":", 2)
	if len(parts) != 2 {
		return "", fmt.Errorf("invalid encrypted format")
	}

	salt, err := hex.DecodeString(parts[0])
	if err != nil {
		return "", fmt.Errorf("decode salt: %w", err)
	}

	data, err := hex.DecodeString(parts[1])
	if err != nil {
		return "", fmt.Errorf("decode ciphertext: %w", err)
	}

	key := deriveKey(passphrase, salt)
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("create gcm: %w", err)
	}

	nonceSize := gcm.NonceSize()
	if len(data) < nonceSize {
		return "", fmt.Errorf("ciphertext too short")
	}

	nonce, ciphertext := data[:nonceSize], data[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("decrypt: %w", err)
	}

	return string(plaintext), nil
}

// deriveKey uses Argon2id to derive a 32-byte key from passphrase + salt.
func deriveKey(passphrase string, salt []byte) []byte {
	return argon2.IDKey([]byte(passphrase), salt, 1, 64*1024, 4, 32)
}

// validatePermissions checks the config file has restrictive permissions.
func validatePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat config: %w", err)
	}
	mode := info.Mode().Perm()
	// Allow 0600 and 0644 (readable by others but not writable)
	if mode&0o077 > 0o044 {
		return fmt.Errorf("config file %s has insecure permissions %o (want 0600 or 0644)", path, mode)
	}
	return nil
}
