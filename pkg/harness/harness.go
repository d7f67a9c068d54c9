// Package harness drives the batch: for each provider it executes the shared
// request once, prints the reply, validates every candidate recovered from
// it, then replays the request in streaming mode for display. Providers run
// one at a time and a failing provider never stops the batch.
package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/germanamz/shrub/pkg/chats/chat"
	"github.com/germanamz/shrub/pkg/chats/message"
	"github.com/germanamz/shrub/pkg/chats/role"
	"github.com/germanamz/shrub/pkg/extract"
	"github.com/germanamz/shrub/pkg/modeladapter"
	"github.com/germanamz/shrub/pkg/modeladapter/usage"
	"github.com/germanamz/shrub/pkg/registry"
	"github.com/germanamz/shrub/pkg/validate"
)

// Provider is one gated entry ready to run. Err records a failure to build
// its executor; such a provider is reported as errored without being called.
type Provider struct {
	Entry    registry.Entry
	Kind     registry.Kind
	Executor modeladapter.Executor
	Err      error
}

// Report is the local result of one provider's iteration.
type Report struct {
	Entry     registry.Entry
	Kind      registry.Kind
	Answer    string
	Answered  bool // False when the reply had no text (or the call failed).
	Outcomes  []validate.Outcome
	Err       error // Single-shot execution fault.
	StreamErr error // Streaming replay fault.
	Usage     usage.TokenCount
	Elapsed   time.Duration
}

// Preferred returns the outcome to use downstream; see validate.Preferred.
func (r Report) Preferred() (validate.Outcome, bool) {
	return validate.Preferred(r.Outcomes)
}

// Harness runs the batch.
type Harness struct {
	Providers []Provider
	Chat      *chat.Chat
	Validator *validate.Validator
	Printer   *Printer
	Logger    *slog.Logger
	Stream    bool       // Replay the request in streaming mode.
	Artifacts *Artifacts // Optional.
	RunID     string
}

func (h *Harness) log() *slog.Logger {
	if h.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return h.Logger
}

// question returns the text of the last user turn.
func (h *Harness) question() string {
	var q string
	for _, m := range h.Chat.Messages() {
		if m.Role == role.User {
			q = m.TextContent()
		}
	}
	return q
}

// Run processes every provider in order and returns one report per provider.
// It stops early only when ctx is cancelled. Zero providers means no output.
func (h *Harness) Run(ctx context.Context) []Report {
	if h.Printer == nil {
		h.Printer = NewPrinter(io.Discard, PrinterOpts{})
	}
	if h.Validator == nil {
		h.Validator = &validate.Validator{}
	}
	if h.Chat == nil {
		h.Chat = chat.New()
	}

	log := h.log()
	if h.RunID != "" {
		log = log.With("run_id", h.RunID)
	}

	reports := make([]Report, 0, len(h.Providers))
	for _, p := range h.Providers {
		if ctx.Err() != nil {
			log.Warn("batch interrupted", "error", ctx.Err())
			break
		}

		reports = append(reports, h.runOne(ctx, log.With("model", p.Entry.Model, "kind", p.Kind), p))
	}

	if h.Artifacts != nil && len(reports) > 0 {
		if path, err := h.Artifacts.WriteSummary(reports); err != nil {
			log.Warn("writing summary failed", "error", err)
		} else {
			log.Debug("summary written", "path", path)
		}
	}

	return reports
}

func (h *Harness) runOne(ctx context.Context, log *slog.Logger, p Provider) Report {
	start := time.Now()
	r := Report{Entry: p.Entry, Kind: p.Kind}

	h.Printer.Header(p.Entry.Model, string(p.Kind))
	h.Printer.Question(h.question())
	h.Printer.AnswerHeading()

	if p.Err != nil {
		r.Err = p.Err
	} else if p.Executor == nil {
		r.Err = errors.New("no executor")
	}

	if r.Err != nil {
		log.Error("provider unavailable", "error", r.Err)
		h.Printer.ProviderError(r.Err)
		r.Elapsed = time.Since(start)
		return r
	}

	h.singleShot(ctx, log, p, &r)

	// A provider that failed the single-shot call is not replayed.
	if h.Stream && r.Err == nil {
		h.replay(ctx, log, p, &r)
	}

	r.Elapsed = time.Since(start)
	log.Info("provider done", "answered", r.Answered, "elapsed", r.Elapsed)

	return r
}

func (h *Harness) singleShot(ctx context.Context, log *slog.Logger, p Provider, r *Report) {
	reply, err := h.complete(ctx, p.Executor)
	if err != nil {
		r.Err = err
		log.Error("provider errored", "error", err)
		h.Printer.ProviderError(err)
		return
	}

	if ur, ok := p.Executor.(modeladapter.UsageReporter); ok {
		if tc, ok := ur.UsageTracker().Last(); ok {
			r.Usage = tc
		}
	}

	r.Answer, r.Answered = reply.FirstText()
	h.Printer.Answer(r.Answer, r.Answered)

	if !r.Answered {
		log.Info("no text answer")
		h.Printer.NoText()
		return
	}

	if h.Artifacts != nil {
		if _, err := h.Artifacts.WriteAnswer(p.Entry.Model, r.Answer); err != nil {
			log.Warn("writing answer failed", "error", err)
		}
	}

	candidates := extract.Candidates(r.Answer)
	for _, c := range candidates {
		h.Printer.Candidate(c)

		o := h.Validator.Validate(ctx, c)
		h.Printer.Outcome(o)
		log.Info("candidate validated", "origin", c.Origin, "result", o.Result, "digest", o.Digest)

		r.Outcomes = append(r.Outcomes, o)

		if h.Artifacts != nil {
			if _, err := h.Artifacts.WriteCandidate(p.Entry.Model, o); err != nil {
				log.Warn("writing candidate failed", "error", err)
			}
		}
	}

	if len(candidates) == 2 { //nolint:mnd // inner + outer
		h.Printer.Diff(candidates[0].Source, candidates[1].Source)
	}
}

// complete calls the executor and converts a panic into an error so a broken
// adapter is reported like any other fault.
func (h *Harness) complete(ctx context.Context, ex modeladapter.Executor) (reply message.Message, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("executor panicked: %v", rec)
		}
	}()
	return ex.Complete(ctx, h.Chat)
}

func (h *Harness) replay(ctx context.Context, log *slog.Logger, p Provider, r *Report) {
	h.Printer.StreamHeading()

	err := h.stream(ctx, p.Executor)
	if err != nil {
		r.StreamErr = err
		log.Warn("streaming errored", "error", err)
	}

	h.Printer.StreamEnd(err)
}

func (h *Harness) stream(ctx context.Context, ex modeladapter.Executor) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("executor panicked: %v", rec)
		}
	}()

	s, err := ex.Stream(ctx, h.Chat)
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()

	for {
		frag, err := s.Recv()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		h.Printer.Fragment(frag)
	}
}
