package harness

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/germanamz/shrub/pkg/validate"
)

// Artifacts persists a run's answers and candidates under Root/RunID.
// Nothing in the batch depends on what is written here.
type Artifacts struct {
	Root  string
	RunID string
}

// Dir returns the run directory.
func (a *Artifacts) Dir() string {
	return filepath.Join(a.Root, a.RunID)
}

func (a *Artifacts) ensureDir() error {
	if err := os.MkdirAll(a.Dir(), 0o750); err != nil { //nolint:mnd // run directory
		return fmt.Errorf("artifacts: %w", err)
	}
	return nil
}

func (a *Artifacts) write(name, data string) (string, error) {
	if err := a.ensureDir(); err != nil {
		return "", err
	}

	path := filepath.Join(a.Dir(), name)
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil { //nolint:mnd // artifact file
		return "", fmt.Errorf("artifacts: %w", err)
	}

	return path, nil
}

// WriteAnswer stores a raw answer as <model-slug>.answer.md.
func (a *Artifacts) WriteAnswer(model, text string) (string, error) {
	return a.write(Slug(model)+".answer.md", text)
}

// WriteCandidate stores a candidate as <model-slug>.<origin>.<digest>.tal.
func (a *Artifacts) WriteCandidate(model string, o validate.Outcome) (string, error) {
	name := fmt.Sprintf("%s.%s.%s.tal", Slug(model), o.Candidate.Origin, o.Digest)
	return a.write(name, o.Candidate.Source)
}

type summaryFile struct {
	RunID     string         `yaml:"run_id"`
	Providers []summaryEntry `yaml:"providers"`
}

type summaryEntry struct {
	Model      string           `yaml:"model"`
	Kind       string           `yaml:"kind"`
	Answered   bool             `yaml:"answered"`
	Error      string           `yaml:"error,omitempty"`
	StreamErr  string           `yaml:"stream_error,omitempty"`
	Candidates []summaryOutcome `yaml:"candidates,omitempty"`
	Preferred  string           `yaml:"preferred,omitempty"`
	InTokens   int              `yaml:"input_tokens,omitempty"`
	OutTokens  int              `yaml:"output_tokens,omitempty"`
}

type summaryOutcome struct {
	Origin string `yaml:"origin"`
	Result string `yaml:"result"`
	Digest string `yaml:"digest"`
	Detail string `yaml:"detail,omitempty"`
}

// WriteSummary stores summary.yaml describing every report.
func (a *Artifacts) WriteSummary(reports []Report) (string, error) {
	sf := summaryFile{RunID: a.RunID}

	for _, r := range reports {
		e := summaryEntry{
			Model:     r.Entry.Model,
			Kind:      string(r.Kind),
			Answered:  r.Answered,
			InTokens:  r.Usage.InputTokens,
			OutTokens: r.Usage.OutputTokens,
		}
		if r.Err != nil {
			e.Error = r.Err.Error()
		}
		if r.StreamErr != nil {
			e.StreamErr = r.StreamErr.Error()
		}
		for _, o := range r.Outcomes {
			e.Candidates = append(e.Candidates, summaryOutcome{
				Origin: o.Candidate.Origin.String(),
				Result: o.Result.String(),
				Digest: o.Digest,
				Detail: o.Detail,
			})
		}
		if pref, ok := r.Preferred(); ok {
			e.Preferred = pref.Candidate.Origin.String()
		}
		sf.Providers = append(sf.Providers, e)
	}

	data, err := yaml.Marshal(sf)
	if err != nil {
		return "", fmt.Errorf("artifacts: %w", err)
	}

	return a.write("summary.yaml", string(data))
}

// Slug turns a model identifier into a file-name-safe string:
// "together::openai/gpt-oss-20b" becomes "together-openai-gpt-oss-20b".
func Slug(model string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(model) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '.', r == '_':
			b.WriteRune(r)
			dash = false
		default:
			if !dash && b.Len() > 0 {
				b.WriteByte('-')
				dash = true
			}
		}
	}
	return strings.TrimRight(b.String(), "-")
}
