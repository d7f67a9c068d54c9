package engine

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/germanamz/shrub/pkg/gate"
	"github.com/germanamz/shrub/pkg/modeladapter"
	"github.com/germanamz/shrub/pkg/providers/anthropic"
	"github.com/germanamz/shrub/pkg/providers/gemini"
	"github.com/germanamz/shrub/pkg/providers/ollama"
	"github.com/germanamz/shrub/pkg/providers/openai"
	"github.com/germanamz/shrub/pkg/registry"
)

// ProviderSpec is everything a factory needs to build an executor.
type ProviderSpec struct {
	Entry   registry.Entry
	Kind    registry.Kind
	Model   string // Wire model name, namespace removed.
	BaseURL string
	Path    string
	APIKey  string       //nolint:gosec // resolved credential, never logged
	Client  *http.Client // Nil uses the adapter default.
}

// ProviderFactory creates an Executor for a wire protocol.
type ProviderFactory func(spec ProviderSpec) (modeladapter.Executor, error)

var (
	factoryMu   sync.RWMutex
	factories   = map[registry.Protocol]ProviderFactory{}
	defaultsReg sync.Once
)

func ensureDefaults() {
	defaultsReg.Do(func() {
		factories[registry.ProtocolOpenAI] = newOpenAI
		factories[registry.ProtocolAnthropic] = newAnthropic
		factories[registry.ProtocolGemini] = newGemini
		factories[registry.ProtocolOllama] = newOllama
	})
}

// RegisterProvider registers a factory for a protocol, replacing any existing
// one.
func RegisterProvider(p registry.Protocol, factory ProviderFactory) {
	ensureDefaults()

	factoryMu.Lock()
	defer factoryMu.Unlock()

	factories[p] = factory
}

func getFactory(p registry.Protocol) (ProviderFactory, bool) {
	ensureDefaults()

	factoryMu.RLock()
	defer factoryMu.RUnlock()

	f, ok := factories[p]
	return f, ok
}

func newOpenAI(spec ProviderSpec) (modeladapter.Executor, error) {
	a := openai.New(spec.BaseURL, spec.APIKey, spec.Model)
	if spec.Path != "" {
		a.Path = spec.Path
	}
	tune(&a.ModelAdapter, spec)

	return a, nil
}

func newAnthropic(spec ProviderSpec) (modeladapter.Executor, error) {
	a := anthropic.New(spec.BaseURL, spec.APIKey, spec.Model)
	tune(&a.ModelAdapter, spec)

	return a, nil
}

func newGemini(spec ProviderSpec) (modeladapter.Executor, error) {
	a := gemini.New(spec.BaseURL, spec.APIKey, spec.Model)
	tune(&a.ModelAdapter, spec)

	return a, nil
}

func newOllama(spec ProviderSpec) (modeladapter.Executor, error) {
	a := ollama.New(spec.BaseURL, spec.Model)
	tune(&a.ModelAdapter, spec)

	return a, nil
}

// tune applies per-entry overrides on top of the adapter defaults.
func tune(a *modeladapter.ModelAdapter, spec ProviderSpec) {
	e := spec.Entry
	if spec.Client != nil {
		a.Client = spec.Client
	}
	if e.MaxTokens > 0 {
		a.MaxTokens = e.MaxTokens
	}
	if e.Temperature > 0 {
		a.Temperature = e.Temperature
	}
}

// BuildOpts controls how executors are wrapped.
type BuildOpts struct {
	Lookup         gate.LookupFunc // Credential source; defaults to gate.Env.
	MaxRetries     int
	BaseDelay      time.Duration
	RequestTimeout time.Duration // Zero keeps the adapter's default client.
}

// ResolveSpec works out kind, wire model, endpoint and credential for e.
// An entry without its own CredentialEnv falls back to the kind's
// conventional variable for the key value; gating is unaffected.
func ResolveSpec(e registry.Entry, lookup gate.LookupFunc) (ProviderSpec, registry.KindSpec, error) {
	if lookup == nil {
		lookup = gate.Env
	}

	kind, model := e.Resolve()

	ks, ok := registry.Spec(kind)
	if !ok {
		return ProviderSpec{Entry: e, Kind: kind}, ks, fmt.Errorf("engine: unknown provider kind %q", kind)
	}

	spec := ProviderSpec{
		Entry:   e,
		Kind:    kind,
		Model:   model,
		BaseURL: e.BaseURL,
		Path:    ks.Path,
		APIKey:  gate.Credential(e, lookup),
	}

	if spec.BaseURL == "" {
		spec.BaseURL = ks.DefaultBaseURL
	}

	if spec.APIKey == "" && e.CredentialEnv == "" && ks.CredentialEnv != "" {
		spec.APIKey, _ = lookup(ks.CredentialEnv)
	}

	return spec, ks, nil
}

// BuildExecutor creates the executor for e using the factory registered for
// its kind's protocol, wrapped with 429 retry. The resolved kind is returned
// even on error so callers can report it.
func BuildExecutor(e registry.Entry, opts BuildOpts) (registry.Kind, modeladapter.Executor, error) {
	spec, ks, err := ResolveSpec(e, opts.Lookup)
	if err != nil {
		return spec.Kind, nil, err
	}

	if opts.RequestTimeout > 0 {
		spec.Client = &http.Client{Timeout: opts.RequestTimeout}
	}

	factory, ok := getFactory(ks.Protocol)
	if !ok {
		return spec.Kind, nil, fmt.Errorf("engine: no factory for protocol %q", ks.Protocol)
	}

	ex, err := factory(spec)
	if err != nil {
		return spec.Kind, nil, fmt.Errorf("engine: provider %q: %w", e.Model, err)
	}

	return spec.Kind, modeladapter.NewRetryingExecutor(ex, modeladapter.RetryOpts{
		MaxRetries: opts.MaxRetries,
		BaseDelay:  opts.BaseDelay,
	}), nil
}
