// Command shrub sends one Uxntal generation request to every configured model
// provider, validates the program recovered from each reply with an external
// assembler, and replays the request in streaming mode for display.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/lipgloss"

	"github.com/germanamz/shrub/pkg/engine"
	"github.com/germanamz/shrub/pkg/harness"
)

type options struct {
	configPath string
	models     string
	noStream   bool
	pretty     bool
	verbose    bool
	noColor    bool
	outDir     string
}

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: shrub [flags]\n\nFlags:\n")
		flag.PrintDefaults()
	}

	var opts options
	flag.StringVar(&opts.configPath, "config", "", "path to configuration file (default: shrub.yaml if present, else built-in defaults)")
	envFile := flag.String("env", ".env", "path to .env file (ignored if missing)")
	flag.StringVar(&opts.models, "models", "", "comma-separated model globs to run (e.g. 'gpt-*,**/qwen*')")
	flag.BoolVar(&opts.noStream, "no-stream", false, "skip the streaming replay")
	flag.BoolVar(&opts.pretty, "pretty", false, "render the question as markdown")
	flag.BoolVar(&opts.verbose, "verbose", false, "debug logging and inner/outer candidate diffs")
	flag.BoolVar(&opts.noColor, "no-color", false, "disable colored transcript markers")
	flag.StringVar(&opts.outDir, "out", "", "directory for answers, candidates and a run summary")
	flag.Parse()

	if err := loadDotEnv(*envFile); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	if err := run(opts, os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// run loads configuration and executes the batch. Only configuration and
// flag problems are returned; provider faults are part of the transcript.
func run(opts options, stdout, stderr io.Writer) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := loadConfig(resolveConfigPath(opts.configPath))
	if err != nil {
		return err
	}

	level := slog.LevelInfo
	if opts.verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))

	printer := harness.NewPrinter(stdout, harness.PrinterOpts{
		Color:   !opts.noColor && colorEnabled(stdout),
		Pretty:  opts.pretty,
		Dark:    opts.pretty && lipgloss.HasDarkBackground(),
		Verbose: opts.verbose,
	})

	eng, err := engine.New(cfg, engine.Options{
		Patterns:  splitPatterns(opts.models),
		Notices:   stdout,
		Printer:   printer,
		Logger:    logger,
		NoStream:  opts.noStream,
		OutputDir: opts.outDir,
	})
	if err != nil {
		return err
	}

	logger.Info("run started", "run_id", eng.RunID(), "providers", len(eng.Providers()))

	reports := eng.Run(ctx)
	printer.Summary(reports)

	return nil
}
