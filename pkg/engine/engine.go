package engine

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/oklog/ulid/v2"

	"github.com/germanamz/shrub/pkg/assembler"
	"github.com/germanamz/shrub/pkg/chats/chat"
	"github.com/germanamz/shrub/pkg/gate"
	"github.com/germanamz/shrub/pkg/harness"
	"github.com/germanamz/shrub/pkg/registry"
	"github.com/germanamz/shrub/pkg/validate"
)

// Options are the per-run settings that do not come from the config file.
type Options struct {
	Lookup    gate.LookupFunc     // Credential source; defaults to gate.Env.
	Patterns  []string            // Model globs; empty runs every entry.
	Notices   io.Writer           // Skip notices; nil discards.
	Printer   *harness.Printer    // Transcript sink; nil discards.
	Logger    *slog.Logger        // Nil discards.
	RunID     string              // Defaults to a fresh ULID.
	NoStream  bool                // Disable the streaming replay regardless of config.
	OutputDir string              // Overrides output_dir.
	Assembler assembler.Assembler // Overrides the configured command.
}

// Engine wires configuration into a ready-to-run harness.
type Engine struct {
	cfg     Config
	runID   string
	harness *harness.Harness
}

// New validates cfg, filters and gates its providers, and builds an executor
// for each one that passed. A provider whose executor cannot be built is kept
// with the error recorded, so it is reported rather than silently dropped.
func New(cfg Config, opts Options) (*Engine, error) {
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	log := opts.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}

	runID := opts.RunID
	if runID == "" {
		runID = ulid.Make().String()
	}
	log = log.With("run_id", runID)

	entries, err := registry.Filter(cfg.Entries(), opts.Patterns)
	if err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}

	g := gate.Gate{Lookup: opts.Lookup, Notices: opts.Notices, Logger: log}
	gated := g.Providers(entries)

	baseDelay, _ := parseDuration(cfg.BaseDelay)
	timeout, _ := parseDuration(cfg.RequestTimeout)
	buildOpts := BuildOpts{
		Lookup:         opts.Lookup,
		MaxRetries:     cfg.MaxRetries,
		BaseDelay:      baseDelay,
		RequestTimeout: timeout,
	}

	providers := make([]harness.Provider, 0, len(gated))
	for _, e := range gated {
		kind, ex, err := BuildExecutor(e, buildOpts)
		if err != nil {
			log.Warn("provider build failed", "model", e.Model, "error", err)
		}
		providers = append(providers, harness.Provider{Entry: e, Kind: kind, Executor: ex, Err: err})
	}

	asm := opts.Assembler
	if asm == nil {
		asm = cfg.NewAssembler()
	}

	var artifacts *harness.Artifacts
	outDir := cfg.OutputDir
	if opts.OutputDir != "" {
		outDir = opts.OutputDir
	}
	if outDir != "" {
		artifacts = &harness.Artifacts{Root: outDir, RunID: runID}
	}

	log.Debug("engine ready", "entries", len(entries), "gated", len(gated))

	return &Engine{
		cfg:   cfg,
		runID: runID,
		harness: &harness.Harness{
			Providers: providers,
			Chat:      chat.Request(cfg.SystemPrompt, cfg.Prompt),
			Validator: validate.New(asm, log),
			Printer:   opts.Printer,
			Logger:    log,
			Stream:    cfg.StreamEnabled() && !opts.NoStream,
			Artifacts: artifacts,
			RunID:     runID,
		},
	}, nil
}

// RunID identifies this run in logs and artifact paths.
func (e *Engine) RunID() string { return e.runID }

// Config returns the effective configuration.
func (e *Engine) Config() Config { return e.cfg }

// Providers returns the gated providers in run order.
func (e *Engine) Providers() []harness.Provider {
	out := make([]harness.Provider, len(e.harness.Providers))
	copy(out, e.harness.Providers)
	return out
}

// Run executes the batch. Provider faults are reported, never returned.
func (e *Engine) Run(ctx context.Context) []harness.Report {
	return e.harness.Run(ctx)
}
