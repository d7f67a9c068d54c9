// Package validate classifies candidate source by running it through an
// assembler.
package validate

import (
	"context"
	"encoding/hex"
	"fmt"
	"log/slog"

	"github.com/zeebo/blake3"

	"github.com/germanamz/shrub/pkg/assembler"
	"github.com/germanamz/shrub/pkg/extract"
)

// Result is the verdict for one candidate.
type Result int

const (
	Assembled Result = iota
	Failed
)

func (r Result) String() string {
	switch r {
	case Assembled:
		return "assembled"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Outcome pairs a candidate with its verdict. Detail is the assembler's
// message, unmodified, when Result is Failed.
type Outcome struct {
	Candidate extract.Candidate
	Result    Result
	Detail    string
	Digest    string // Short blake3 hex of Candidate.Source.
}

// OK reports whether the candidate assembled.
func (o Outcome) OK() bool { return o.Result == Assembled }

const digestBytes = 6

// Digest returns a short, stable blake3 hex fingerprint of source.
func Digest(source string) string {
	sum := blake3.Sum256([]byte(source))
	return hex.EncodeToString(sum[:digestBytes])
}

// Validator runs candidates through an Assembler. It never retries and never
// alters the candidate.
type Validator struct {
	Assembler assembler.Assembler
	Logger    *slog.Logger
}

// New creates a Validator.
func New(a assembler.Assembler, logger *slog.Logger) *Validator {
	return &Validator{Assembler: a, Logger: logger}
}

func (v *Validator) log() *slog.Logger {
	if v.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return v.Logger
}

// Validate assembles c with no origin tag. Every failure, including a panic
// inside the assembler, is returned as a Failed outcome.
func (v *Validator) Validate(ctx context.Context, c extract.Candidate) (out Outcome) {
	out = Outcome{Candidate: c, Digest: Digest(c.Source)}

	defer func() {
		if r := recover(); r != nil {
			out.Result = Failed
			out.Detail = fmt.Sprintf("assembler panicked: %v", r)
			v.log().Error("assembler panicked", "origin", c.Origin, "digest", out.Digest, "panic", r)
		}
	}()

	if v.Assembler == nil {
		out.Result = Failed
		out.Detail = "no assembler configured"
		return out
	}

	if err := v.Assembler.Assemble(ctx, c.Source, ""); err != nil {
		out.Result = Failed
		out.Detail = err.Error()
		v.log().Debug("candidate failed", "origin", c.Origin, "digest", out.Digest, "error", err)
		return out
	}

	out.Result = Assembled
	v.log().Debug("candidate assembled", "origin", c.Origin, "digest", out.Digest)

	return out
}

// All validates every candidate in order.
func (v *Validator) All(ctx context.Context, cs []extract.Candidate) []Outcome {
	out := make([]Outcome, 0, len(cs))
	for _, c := range cs {
		out = append(out, v.Validate(ctx, c))
	}
	return out
}

// Preferred picks the outcome to treat as the answer: the outer candidate if
// it assembled, otherwise the inner candidate if it assembled. It reports
// false when nothing assembled.
func Preferred(outcomes []Outcome) (Outcome, bool) {
	for _, origin := range []extract.Origin{extract.Outer, extract.Inner} {
		for _, o := range outcomes {
			if o.Candidate.Origin == origin && o.OK() {
				return o, true
			}
		}
	}
	return Outcome{}, false
}
