package engine

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"github.com/germanamz/shrub/pkg/assembler"
	"github.com/germanamz/shrub/pkg/registry"
)

// DefaultSystemPrompt is the system turn sent ahead of the prompt.
const DefaultSystemPrompt = "Answer in one sentence"

// DefaultPrompt asks for an Uxntal program that prints a shrub.
//
//go:embed prompt.md
var DefaultPrompt string

//go:embed config.schema.json
var configSchema string

// Config is the top-level configuration. Every field is optional; see
// Default for what an empty file means.
type Config struct {
	SystemPrompt   string           `yaml:"system_prompt"`
	Prompt         string           `yaml:"prompt"`
	Providers      []ProviderConfig `yaml:"providers"`
	Assembler      AssemblerConfig  `yaml:"assembler"`
	OutputDir      string           `yaml:"output_dir"`
	Stream         *bool            `yaml:"stream"`
	MaxRetries     int              `yaml:"max_retries"`     // Max retries on 429 (default 3).
	BaseDelay      string           `yaml:"base_delay"`      // Initial backoff delay as a duration string (e.g. "1s", "500ms").
	RequestTimeout string           `yaml:"request_timeout"` // HTTP timeout per call; empty keeps the adapter default.
}

// ProviderConfig is one provider entry. Only Model is required.
type ProviderConfig struct {
	Model         string  `yaml:"model"`
	CredentialEnv string  `yaml:"credential_env"`
	Kind          string  `yaml:"kind"`
	BaseURL       string  `yaml:"base_url"`
	MaxTokens     int     `yaml:"max_tokens"`
	Temperature   float64 `yaml:"temperature"`
}

// AssemblerConfig selects the external assembler.
type AssemblerConfig struct {
	Command string   `yaml:"command"`
	Args    []string `yaml:"args"`
	Timeout string   `yaml:"timeout"`
}

// Default returns the built-in configuration: the default provider table,
// prompts and uxnasm.
func Default() Config {
	cfg := Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.SystemPrompt == "" {
		c.SystemPrompt = DefaultSystemPrompt
	}
	if c.Prompt == "" {
		c.Prompt = DefaultPrompt
	}
	// An explicit empty list stays empty; only an absent one takes the table.
	if c.Providers == nil {
		for _, e := range registry.Default() {
			c.Providers = append(c.Providers, ProviderConfig{Model: e.Model, CredentialEnv: e.CredentialEnv})
		}
	}
	if c.Assembler.Command == "" {
		c.Assembler.Command = assembler.DefaultProgram
	}
}

// LoadConfig reads a YAML file and returns a validated Config with defaults
// applied. Environment variables referenced as ${VAR} or $VAR are expanded
// before parsing; references to unset variables are left as written so
// Uxntal text such as "$8" in a prompt survives.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is caller-provided configuration, not user input
	if err != nil {
		return Config{}, fmt.Errorf("engine: load config: %w", err)
	}

	return ParseConfig(data)
}

// ParseConfig is LoadConfig for in-memory YAML.
func ParseConfig(data []byte) (Config, error) {
	expanded := []byte(expandEnv(string(data)))

	if err := checkSchema(expanded); err != nil {
		return Config{}, err
	}

	var cfg Config
	if err := yaml.Unmarshal(expanded, &cfg); err != nil {
		return Config{}, fmt.Errorf("engine: parse config: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func expandEnv(s string) string {
	return os.Expand(s, func(key string) string {
		if v, ok := os.LookupEnv(key); ok {
			return v
		}
		return "$" + key
	})
}

// checkSchema validates the document against the embedded JSON Schema. YAML
// is decoded generically and re-encoded as JSON so the validator sees JSON
// types.
func checkSchema(data []byte) error {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("engine: parse config: %w", err)
	}
	if doc == nil {
		doc = map[string]any{}
	}

	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("engine: parse config: %w", err)
	}

	var value any
	if err := json.Unmarshal(raw, &value); err != nil {
		return fmt.Errorf("engine: parse config: %w", err)
	}

	schema, err := compileConfigSchema()
	if err != nil {
		return fmt.Errorf("engine: config schema: %w", err)
	}

	if err := schema.Validate(value); err != nil {
		return fmt.Errorf("engine: config: %w", err)
	}

	return nil
}

func compileConfigSchema() (*jsonschema.Schema, error) {
	c := jsonschema.NewCompiler()
	if err := c.AddResource("config.schema.json", bytes.NewReader([]byte(configSchema))); err != nil {
		return nil, err
	}
	return c.Compile("config.schema.json")
}

// Validate checks the semantic rules the schema cannot express.
func (c Config) Validate() error {
	models := make(map[string]struct{}, len(c.Providers))
	for _, p := range c.Providers {
		if p.Model == "" {
			return fmt.Errorf("engine: config: provider model is required")
		}
		if _, dup := models[p.Model]; dup {
			return fmt.Errorf("engine: config: duplicate provider model %q", p.Model)
		}
		models[p.Model] = struct{}{}

		if p.Kind != "" && !registry.Kind(p.Kind).Valid() {
			return fmt.Errorf("engine: config: provider %q: unknown kind %q", p.Model, p.Kind)
		}
	}

	if c.MaxRetries < 0 {
		return fmt.Errorf("engine: config: max_retries must not be negative")
	}

	for name, v := range map[string]string{
		"base_delay":        c.BaseDelay,
		"request_timeout":   c.RequestTimeout,
		"assembler.timeout": c.Assembler.Timeout,
	} {
		if _, err := parseDuration(v); err != nil {
			return fmt.Errorf("engine: config: invalid %s %q: %w", name, v, err)
		}
	}

	return nil
}

func parseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, errors.New("must not be negative")
	}
	return d, nil
}

// StreamEnabled reports whether the streaming replay runs (default true).
func (c Config) StreamEnabled() bool {
	return c.Stream == nil || *c.Stream
}

// Entries converts the provider list to registry entries, in order.
func (c Config) Entries() []registry.Entry {
	out := make([]registry.Entry, 0, len(c.Providers))
	for _, p := range c.Providers {
		out = append(out, registry.Entry{
			Model:         p.Model,
			CredentialEnv: p.CredentialEnv,
			Kind:          registry.Kind(p.Kind),
			BaseURL:       p.BaseURL,
			MaxTokens:     p.MaxTokens,
			Temperature:   p.Temperature,
		})
	}
	return out
}

// NewAssembler builds the configured external assembler.
func (c Config) NewAssembler() *assembler.Command {
	timeout, _ := parseDuration(c.Assembler.Timeout)
	return &assembler.Command{
		Program: c.Assembler.Command,
		Args:    c.Assembler.Args,
		Timeout: timeout,
	}
}
