package harness

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/glamour"
	glamourstyles "github.com/charmbracelet/glamour/styles"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"
	"github.com/pmezard/go-difflib/difflib"

	"github.com/germanamz/shrub/pkg/extract"
	"github.com/germanamz/shrub/pkg/modeladapter"
	"github.com/germanamz/shrub/pkg/validate"
)

// Transcript markers.
const (
	NoAnswer       = "NO ANSWER"
	NoTextToVerify = "No text answer to extract TAL code from."
	AssembledOK    = "TAL code assembled successfully."
)

var (
	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("6")) // cyan
	sectionStyle = lipgloss.NewStyle().Bold(true)
	okStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("2")) // green
	errStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("1")) // red
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("8")) // gray
)

// PrinterOpts configures a Printer.
type PrinterOpts struct {
	Color   bool // Style headings and verdicts with ANSI colors.
	Pretty  bool // Render the question as markdown.
	Dark    bool // Use the dark markdown style (with Pretty).
	Verbose bool // Show a diff between inner and outer candidates.
	Width   int  // Wrap width for markdown; default 100.
}

// Printer writes the line-oriented transcript. The text between markers is
// written verbatim; only markers are styled.
type Printer struct {
	w    io.Writer
	opts PrinterOpts
	md   *glamour.TermRenderer
}

// NewPrinter creates a Printer writing to w.
func NewPrinter(w io.Writer, opts PrinterOpts) *Printer {
	if opts.Width <= 0 {
		opts.Width = 100
	}

	p := &Printer{w: w, opts: opts}

	if opts.Pretty {
		style := glamourstyles.LightStyleConfig
		if opts.Dark {
			style = glamourstyles.DarkStyleConfig
		}

		r, err := glamour.NewTermRenderer(
			glamour.WithStyles(style),
			glamour.WithWordWrap(opts.Width),
		)
		if err == nil {
			p.md = r
		}
	}

	return p
}

func (p *Printer) style(s lipgloss.Style, text string) string {
	if !p.opts.Color {
		return text
	}
	return s.Render(text)
}

func (p *Printer) println(text string) {
	_, _ = fmt.Fprintln(p.w, text)
}

// Header opens a provider's section.
func (p *Printer) Header(model, kind string) {
	p.println("")
	p.println(p.style(headerStyle, fmt.Sprintf("===== MODEL: %s (%s) =====", model, kind)))
}

// Question prints the user prompt.
func (p *Printer) Question(q string) {
	p.println("")
	p.println(p.style(sectionStyle, "--- Question:"))
	p.println(p.renderMarkdown(q))
}

func (p *Printer) renderMarkdown(text string) string {
	if p.md == nil {
		return text
	}

	out, err := p.md.Render(text)
	if err != nil {
		return text
	}

	return strings.TrimRight(out, "\n")
}

// AnswerHeading opens the single-shot answer.
func (p *Printer) AnswerHeading() {
	p.println("")
	p.println(p.style(sectionStyle, "--- Answer:"))
}

// Answer prints the raw answer verbatim, or the no-answer marker.
func (p *Printer) Answer(text string, ok bool) {
	if !ok {
		p.println(p.style(dimStyle, NoAnswer))
		return
	}
	p.println(text)
}

// ProviderError reports a fault from the chat executor. A rejected
// credential is labelled as such.
func (p *Printer) ProviderError(err error) {
	if modeladapter.IsAuthError(err) {
		p.println(p.style(errStyle, fmt.Sprintf("Provider errored (unauthenticated): %v", err)))
		return
	}
	p.println(p.style(errStyle, fmt.Sprintf("Provider errored: %v", err)))
}

// NoText reports that nothing could be extracted.
func (p *Printer) NoText() {
	p.println(p.style(dimStyle, NoTextToVerify))
}

// Candidate prints one extracted candidate.
func (p *Printer) Candidate(c extract.Candidate) {
	p.println("")
	p.println(p.style(sectionStyle, fmt.Sprintf("--- Extracted TAL Code (%s):", c.Origin)))
	p.println(c.Source)
}

// Outcome prints a candidate's verdict.
func (p *Printer) Outcome(o validate.Outcome) {
	if o.OK() {
		p.println(p.style(okStyle, AssembledOK))
		return
	}
	p.println(p.style(errStyle, "Error assembling TAL code: "+o.Detail))
}

// Diff prints a unified diff between the inner and outer candidates when
// verbose output is on and they differ.
func (p *Printer) Diff(inner, outer string) {
	if !p.opts.Verbose || inner == outer {
		return
	}

	diff, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(inner),
		B:        difflib.SplitLines(outer),
		FromFile: "inner",
		ToFile:   "outer",
		Context:  3, //nolint:mnd // conventional unified context
	})
	if err != nil || diff == "" {
		return
	}

	p.println("")
	p.println(p.style(sectionStyle, "--- Candidate diff:"))
	_, _ = io.WriteString(p.w, p.style(dimStyle, diff))
}

// StreamHeading opens the streaming replay.
func (p *Printer) StreamHeading() {
	p.println("")
	p.println(p.style(sectionStyle, "--- Answer: (streaming)"))
}

// Fragment writes a streamed fragment as it arrives.
func (p *Printer) Fragment(s string) {
	_, _ = io.WriteString(p.w, s)
}

// StreamEnd closes the streaming replay, reporting err if the stream failed.
func (p *Printer) StreamEnd(err error) {
	p.println("")
	if err != nil {
		p.println(p.style(errStyle, fmt.Sprintf("Streaming errored: %v", err)))
	}
}

// Summary prints one row per report after the batch.
func (p *Printer) Summary(reports []Report) {
	if len(reports) == 0 {
		return
	}

	header := []string{"MODEL", "KIND", "ANSWER", "INNER", "OUTER", "TOKENS"}
	rows := [][]string{header}
	for _, r := range reports {
		rows = append(rows, summaryRow(r))
	}

	widths := make([]int, len(header))
	for _, row := range rows {
		for i, cell := range row {
			widths[i] = max(widths[i], runewidth.StringWidth(cell))
		}
	}

	p.println("")
	p.println(p.style(headerStyle, "===== SUMMARY ====="))
	for i, row := range rows {
		var b strings.Builder
		for j, cell := range row {
			if j > 0 {
				b.WriteString("  ")
			}
			if j == len(row)-1 {
				b.WriteString(cell)
				continue
			}
			b.WriteString(runewidth.FillRight(cell, widths[j]))
		}

		line := strings.TrimRight(b.String(), " ")
		if i == 0 {
			line = p.style(sectionStyle, line)
		}
		p.println(line)
	}
}

func summaryRow(r Report) []string {
	answer := "yes"
	switch {
	case modeladapter.IsAuthError(r.Err):
		answer = "unauth"
	case r.Err != nil:
		answer = "error"
	case !r.Answered:
		answer = "none"
	}

	inner, outer := "-", "-"
	for _, o := range r.Outcomes {
		switch o.Candidate.Origin {
		case extract.Inner:
			inner = o.Result.String()
		case extract.Outer:
			outer = o.Result.String()
		}
	}

	tokens := "-"
	if r.Usage.Total() > 0 {
		tokens = r.Usage.String()
	}

	return []string{r.Entry.Model, string(r.Kind), answer, inner, outer, tokens}
}
