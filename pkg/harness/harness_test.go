package harness

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/germanamz/shrub/pkg/assembler"
	"github.com/germanamz/shrub/pkg/chats/chat"
	"github.com/germanamz/shrub/pkg/chats/content"
	"github.com/germanamz/shrub/pkg/chats/message"
	"github.com/germanamz/shrub/pkg/chats/role"
	"github.com/germanamz/shrub/pkg/extract"
	"github.com/germanamz/shrub/pkg/gate"
	"github.com/germanamz/shrub/pkg/modeladapter"
	"github.com/germanamz/shrub/pkg/modeladapter/usage"
	"github.com/germanamz/shrub/pkg/registry"
	"github.com/germanamz/shrub/pkg/validate"
)

// --- fakes ---

type fakeStream struct {
	frags []string
	err   error
	pos   int
}

func (s *fakeStream) Recv() (string, error) {
	if s.pos < len(s.frags) {
		s.pos++
		return s.frags[s.pos-1], nil
	}
	if s.err != nil {
		return "", s.err
	}
	return "", io.EOF
}

func (s *fakeStream) Close() error { return nil }

type fakeExecutor struct {
	reply     message.Message
	err       error
	panicMsg  string
	frags     []string
	streamErr error // returned from Recv after the fragments
	openErr   error // returned from Stream
	tokens    usage.TokenCount

	completeChats []*chat.Chat
	streamChats   []*chat.Chat
	tracker       usage.Tracker
}

func (f *fakeExecutor) Complete(_ context.Context, c *chat.Chat) (message.Message, error) {
	f.completeChats = append(f.completeChats, c)
	if f.panicMsg != "" {
		panic(f.panicMsg)
	}
	f.tracker.Add(f.tokens)
	return f.reply, f.err
}

func (f *fakeExecutor) Stream(_ context.Context, c *chat.Chat) (modeladapter.Stream, error) {
	f.streamChats = append(f.streamChats, c)
	if f.openErr != nil {
		return nil, f.openErr
	}
	return &fakeStream{frags: f.frags, err: f.streamErr}, nil
}

func (f *fakeExecutor) UsageTracker() *usage.Tracker { return &f.tracker }

func answer(text string) message.Message {
	return message.NewText(role.Assistant, text)
}

// countingAssembler accepts only "GOOD" and counts calls.
type countingAssembler struct{ calls int }

func (a *countingAssembler) Assemble(_ context.Context, source, _ string) error {
	a.calls++
	if source == "GOOD" {
		return nil
	}
	return &assembler.Error{Detail: "Unknown token: " + strings.Fields(source + " x")[0]}
}

func newHarness(out io.Writer, asm assembler.Assembler, providers ...Provider) *Harness {
	return &Harness{
		Providers: providers,
		Chat:      chat.Request("Answer in one sentence", "make a shrub"),
		Validator: validate.New(asm, nil),
		Printer:   NewPrinter(out, PrinterOpts{}),
		Stream:    true,
	}
}

// --- tests ---

func TestRun_EndToEndScenario(t *testing.T) {
	entries := []registry.Entry{
		{Model: "modelA", CredentialEnv: "KEY_A"},
		{Model: "modelB"},
	}

	var out bytes.Buffer
	g := gate.Gate{Lookup: gate.MapLookup(nil), Notices: &out}
	gated := g.Providers(entries)
	require.Len(t, gated, 1)

	exB := &fakeExecutor{
		reply: answer("Sure! ```uxntal\nGOOD\n``` Hope that helps."),
		frags: []string{"GO", "OD"},
	}
	asm := &countingAssembler{}
	h := newHarness(&out, asm, Provider{Entry: gated[0], Kind: registry.Ollama, Executor: exB})

	reports := h.Run(context.Background())

	require.Len(t, reports, 1)
	r := reports[0]
	assert.Equal(t, "modelB", r.Entry.Model)
	assert.True(t, r.Answered)
	assert.NoError(t, r.Err)
	assert.NoError(t, r.StreamErr)
	require.Len(t, r.Outcomes, 2)
	assert.Equal(t, extract.Inner, r.Outcomes[0].Candidate.Origin)
	assert.Equal(t, validate.Assembled, r.Outcomes[0].Result)
	assert.Equal(t, extract.Outer, r.Outcomes[1].Candidate.Origin)
	assert.Equal(t, validate.Failed, r.Outcomes[1].Result)
	assert.Equal(t, 2, asm.calls)

	pref, ok := r.Preferred()
	require.True(t, ok)
	assert.Equal(t, extract.Inner, pref.Candidate.Origin)

	text := out.String()
	assert.True(t, strings.HasPrefix(text, "===== Skipping model: modelA (env var not set: KEY_A)\n"))
	assert.Contains(t, text, "===== MODEL: modelB (ollama) =====")
	assert.Contains(t, text, "--- Question:\nmake a shrub\n")
	assert.Contains(t, text, "--- Answer:\nSure! ```uxntal\nGOOD\n``` Hope that helps.\n")
	assert.Contains(t, text, "--- Extracted TAL Code (inner):\nGOOD\nTAL code assembled successfully.\n")
	assert.Contains(t, text, "--- Extracted TAL Code (outer):\nSure!")
	assert.Contains(t, text, "Error assembling TAL code: Unknown token: Sure!\n")
	assert.Contains(t, text, "--- Answer: (streaming)\nGOOD\n")

	// Inner candidate is printed and validated before the outer one.
	assert.Less(t, strings.Index(text, "(inner)"), strings.Index(text, "(outer)"))
}

func TestRun_SameRequestForEveryCall(t *testing.T) {
	a := &fakeExecutor{reply: answer("GOOD")}
	b := &fakeExecutor{reply: answer("GOOD")}

	h := newHarness(io.Discard, &countingAssembler{},
		Provider{Entry: registry.Entry{Model: "a"}, Executor: a},
		Provider{Entry: registry.Entry{Model: "b"}, Executor: b},
	)

	h.Run(context.Background())

	for _, f := range []*fakeExecutor{a, b} {
		require.Len(t, f.completeChats, 1)
		require.Len(t, f.streamChats, 1)
		assert.Same(t, h.Chat, f.completeChats[0])
		assert.Same(t, h.Chat, f.streamChats[0])
	}
	assert.Equal(t, 2, h.Chat.Len(), "request is not mutated")
}

func TestRun_NoAnswerSkipsValidation(t *testing.T) {
	var out bytes.Buffer
	asm := &countingAssembler{}
	ex := &fakeExecutor{reply: message.New(role.Assistant, content.Reasoning{Text: "thinking only"})}

	h := newHarness(&out, asm, Provider{Entry: registry.Entry{Model: "m"}, Executor: ex})
	reports := h.Run(context.Background())

	require.Len(t, reports, 1)
	assert.False(t, reports[0].Answered)
	assert.Empty(t, reports[0].Outcomes)
	assert.Zero(t, asm.calls)
	assert.Contains(t, out.String(), "--- Answer:\nNO ANSWER\nNo text answer to extract TAL code from.\n")
	assert.Contains(t, out.String(), "--- Answer: (streaming)")
}

func TestRun_ExecutorFaultIsIsolated(t *testing.T) {
	var out bytes.Buffer
	bad := &fakeExecutor{err: &modeladapter.StatusError{StatusCode: 500, Body: "upstream down"}}
	good := &fakeExecutor{reply: answer("GOOD")}

	h := newHarness(&out, &countingAssembler{},
		Provider{Entry: registry.Entry{Model: "bad"}, Executor: bad},
		Provider{Entry: registry.Entry{Model: "good"}, Executor: good},
	)

	reports := h.Run(context.Background())

	require.Len(t, reports, 2)

	var se *modeladapter.StatusError
	require.ErrorAs(t, reports[0].Err, &se)
	assert.Equal(t, 500, se.StatusCode)
	assert.False(t, reports[0].Answered)
	assert.Empty(t, reports[0].Outcomes)
	assert.Contains(t, out.String(), "Provider errored: ")

	assert.NoError(t, reports[1].Err)
	require.Len(t, reports[1].Outcomes, 1)
	assert.Equal(t, validate.Assembled, reports[1].Outcomes[0].Result)
}

func TestRun_ExecutorPanicIsIsolated(t *testing.T) {
	ex := &fakeExecutor{panicMsg: "nil map"}
	next := &fakeExecutor{reply: answer("GOOD")}

	h := newHarness(io.Discard, &countingAssembler{},
		Provider{Entry: registry.Entry{Model: "p"}, Executor: ex},
		Provider{Entry: registry.Entry{Model: "n"}, Executor: next},
	)

	var reports []Report
	require.NotPanics(t, func() { reports = h.Run(context.Background()) })

	require.Len(t, reports, 2)
	require.Error(t, reports[0].Err)
	assert.Contains(t, reports[0].Err.Error(), "executor panicked: nil map")
	assert.True(t, reports[1].Answered)
}

func TestRun_BuildErrorRecorded(t *testing.T) {
	var out bytes.Buffer
	h := newHarness(&out, &countingAssembler{},
		Provider{Entry: registry.Entry{Model: "x"}, Kind: "mystery", Err: errors.New("unknown kind \"mystery\"")},
		Provider{Entry: registry.Entry{Model: "y"}},
	)

	reports := h.Run(context.Background())

	require.Len(t, reports, 2)
	assert.EqualError(t, reports[0].Err, "unknown kind \"mystery\"")
	assert.EqualError(t, reports[1].Err, "no executor")
	assert.Contains(t, out.String(), "===== MODEL: x (mystery) =====")
	assert.NotContains(t, out.String(), "(streaming)")
}

func TestRun_StreamFaultIsIsolated(t *testing.T) {
	var out bytes.Buffer
	broken := &fakeExecutor{reply: answer("GOOD"), frags: []string{"par"}, streamErr: errors.New("connection reset")}
	unopened := &fakeExecutor{reply: answer("GOOD"), openErr: errors.New("stream refused")}
	fine := &fakeExecutor{reply: answer("GOOD"), frags: []string{"ok"}}

	h := newHarness(&out, &countingAssembler{},
		Provider{Entry: registry.Entry{Model: "broken"}, Executor: broken},
		Provider{Entry: registry.Entry{Model: "unopened"}, Executor: unopened},
		Provider{Entry: registry.Entry{Model: "fine"}, Executor: fine},
	)

	reports := h.Run(context.Background())

	require.Len(t, reports, 3)
	assert.EqualError(t, reports[0].StreamErr, "connection reset")
	assert.EqualError(t, reports[1].StreamErr, "stream refused")
	assert.NoError(t, reports[2].StreamErr)
	assert.NoError(t, reports[0].Err, "stream faults do not affect the single-shot result")

	text := out.String()
	assert.Contains(t, text, "par\nStreaming errored: connection reset\n")
	assert.Contains(t, text, "Streaming errored: stream refused\n")
}

func TestRun_StreamDisabled(t *testing.T) {
	var out bytes.Buffer
	ex := &fakeExecutor{reply: answer("GOOD")}

	h := newHarness(&out, &countingAssembler{}, Provider{Entry: registry.Entry{Model: "m"}, Executor: ex})
	h.Stream = false
	h.Run(context.Background())

	assert.Empty(t, ex.streamChats)
	assert.NotContains(t, out.String(), "(streaming)")
}

func TestRun_EmptyProviderList(t *testing.T) {
	var out bytes.Buffer
	h := newHarness(&out, &countingAssembler{})

	reports := h.Run(context.Background())

	assert.Empty(t, reports)
	assert.Empty(t, out.String())
}

func TestRun_CancelledContextStops(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ex := &fakeExecutor{reply: answer("GOOD")}
	h := newHarness(io.Discard, &countingAssembler{}, Provider{Entry: registry.Entry{Model: "m"}, Executor: ex})

	assert.Empty(t, h.Run(ctx))
	assert.Empty(t, ex.completeChats)
}

func TestRun_RecordsUsage(t *testing.T) {
	ex := &fakeExecutor{reply: answer("GOOD"), tokens: usage.TokenCount{InputTokens: 12, OutputTokens: 34}}
	h := newHarness(io.Discard, &countingAssembler{}, Provider{Entry: registry.Entry{Model: "m"}, Executor: ex})

	reports := h.Run(context.Background())

	require.Len(t, reports, 1)
	assert.Equal(t, usage.TokenCount{InputTokens: 12, OutputTokens: 34}, reports[0].Usage)
}

func TestRun_NilCollaboratorsDefault(t *testing.T) {
	ex := &fakeExecutor{reply: answer("GOOD")}
	h := &Harness{Providers: []Provider{{Entry: registry.Entry{Model: "m"}, Executor: ex}}}

	var reports []Report
	require.NotPanics(t, func() { reports = h.Run(context.Background()) })

	require.Len(t, reports, 1)
	require.Len(t, reports[0].Outcomes, 1)
	assert.Equal(t, "no assembler configured", reports[0].Outcomes[0].Detail)
}

func TestRun_WritesArtifacts(t *testing.T) {
	root := t.TempDir()
	ex := &fakeExecutor{reply: answer("Sure! ```uxntal\nGOOD\n``` Hope that helps.")}

	h := newHarness(io.Discard, &countingAssembler{},
		Provider{Entry: registry.Entry{Model: "together::openai/gpt-oss-20b"}, Kind: registry.Together, Executor: ex},
		Provider{Entry: registry.Entry{Model: "down"}, Err: errors.New("offline")},
	)
	h.RunID = "01J0000000000000000000TEST"
	h.Artifacts = &Artifacts{Root: root, RunID: h.RunID}

	h.Run(context.Background())

	dir := filepath.Join(root, h.RunID)

	raw, err := os.ReadFile(filepath.Join(dir, "together-openai-gpt-oss-20b.answer.md"))
	require.NoError(t, err)
	assert.Equal(t, "Sure! ```uxntal\nGOOD\n``` Hope that helps.", string(raw))

	inner, err := os.ReadFile(filepath.Join(dir, "together-openai-gpt-oss-20b.inner."+validate.Digest("GOOD")+".tal"))
	require.NoError(t, err)
	assert.Equal(t, "GOOD", string(inner))

	data, err := os.ReadFile(filepath.Join(dir, "summary.yaml"))
	require.NoError(t, err)

	var sf summaryFile
	require.NoError(t, yaml.Unmarshal(data, &sf))
	assert.Equal(t, h.RunID, sf.RunID)
	require.Len(t, sf.Providers, 2)
	assert.Equal(t, "together", sf.Providers[0].Kind)
	assert.Equal(t, "inner", sf.Providers[0].Preferred)
	require.Len(t, sf.Providers[0].Candidates, 2)
	assert.Equal(t, "failed", sf.Providers[0].Candidates[1].Result)
	assert.Equal(t, "offline", sf.Providers[1].Error)
}

func TestRun_FaultedProviderNotReplayed(t *testing.T) {
	ex := &fakeExecutor{err: errors.New("boom")}
	h := newHarness(io.Discard, &countingAssembler{}, Provider{Entry: registry.Entry{Model: "m"}, Executor: ex})

	h.Run(context.Background())

	assert.Empty(t, ex.streamChats)
}

func TestRun_EmptyReplyIsNotAnError(t *testing.T) {
	var out bytes.Buffer
	ex := &fakeExecutor{reply: message.New(role.Assistant)}

	h := newHarness(&out, &countingAssembler{}, Provider{Entry: registry.Entry{Model: "m"}, Executor: ex})
	reports := h.Run(context.Background())

	require.Len(t, reports, 1)
	require.NoError(t, reports[0].Err)
	assert.False(t, reports[0].Answered)
	assert.Len(t, ex.streamChats, 1)
	assert.Contains(t, out.String(), "--- Answer:\nNO ANSWER\n"+NoTextToVerify+"\n")
	assert.NotContains(t, out.String(), "Provider errored")
}
