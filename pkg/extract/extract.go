// Package extract recovers candidate Uxntal source from a free-form model
// reply.
//
// Two candidates may come out of one reply. The outer candidate is the whole
// trimmed reply with a leading language-tagged fence and a trailing bare fence
// removed. The inner candidate is the body of the first "```uxntal" fence found
// anywhere in the reply, which isolates a program wrapped in prose. Both are
// kept and validated independently.
package extract

import "strings"

const (
	fence     = "```"
	openerTal = "```tal"
	openerUxn = "```uxntal"
)

// Origin tells which framing produced a candidate.
type Origin int

const (
	Outer Origin = iota // The whole reply, outer fence stripped.
	Inner               // The body of an embedded "```uxntal" fence.
)

func (o Origin) String() string {
	switch o {
	case Inner:
		return "inner"
	case Outer:
		return "outer"
	default:
		return "unknown"
	}
}

// Candidate is one piece of source text recovered from a reply.
type Candidate struct {
	Origin Origin
	Source string
}

// StripOuter trims s, removes a leading "```uxntal" or "```tal" opener and a
// trailing "```" closer, then trims again. Text without fences comes back
// trimmed and otherwise unchanged. StripOuter(StripOuter(s)) == StripOuter(s)
// for replies whose body does not itself begin or end with a fence; a doubly
// fenced reply loses only one layer per call.
func StripOuter(s string) string {
	s = strings.TrimSpace(s)

	switch {
	case strings.HasPrefix(s, openerUxn):
		s = s[len(openerUxn):]
	case strings.HasPrefix(s, openerTal):
		s = s[len(openerTal):]
	}

	s = strings.TrimSuffix(s, fence)

	return strings.TrimSpace(s)
}

// InnerBody returns the body of the first "```uxntal" fence in s, trimmed. It
// reports false when there is no such opener or the opener is never closed.
func InnerBody(s string) (string, bool) {
	s = strings.TrimSpace(s)

	_, rest, ok := strings.Cut(s, openerUxn)
	if !ok {
		return "", false
	}

	body, _, ok := strings.Cut(rest, fence)
	if !ok {
		return "", false
	}

	return strings.TrimSpace(body), true
}

// Candidates returns the candidates for a reply: the inner candidate first
// when one exists, then always the outer candidate.
func Candidates(text string) []Candidate {
	out := make([]Candidate, 0, 2) //nolint:mnd // inner + outer
	if body, ok := InnerBody(text); ok {
		out = append(out, Candidate{Origin: Inner, Source: body})
	}

	return append(out, Candidate{Origin: Outer, Source: StripOuter(text)})
}
