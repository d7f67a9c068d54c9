// Package gate filters the provider table down to the entries whose
// credential is available.
package gate

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/germanamz/shrub/pkg/registry"
)

// LookupFunc reports whether a named variable is set and returns its value.
// Its signature matches os.LookupEnv.
type LookupFunc func(key string) (string, bool)

// Env looks variables up in the process environment.
var Env LookupFunc = os.LookupEnv

// MapLookup returns a LookupFunc backed by m. Keys absent from m are unset.
func MapLookup(m map[string]string) LookupFunc {
	return func(key string) (string, bool) {
		v, ok := m[key]
		return v, ok
	}
}

// Allowed reports whether e may run: it needs no credential, or the
// credential variable is set. The value itself is irrelevant; a variable set
// to the empty string counts as present.
func Allowed(e registry.Entry, lookup LookupFunc) bool {
	if e.CredentialEnv == "" {
		return true
	}
	_, ok := lookup(e.CredentialEnv)
	return ok
}

// Gate applies Allowed to a provider table and reports what it skipped.
type Gate struct {
	Lookup  LookupFunc   // Defaults to Env.
	Notices io.Writer    // Receives one human-readable line per skipped entry; nil discards.
	Logger  *slog.Logger // Nil discards.
}

// Providers returns the allowed entries in their original order. Every
// excluded entry produces a skip notice naming the model and the missing
// variable. An empty result is valid.
func (g *Gate) Providers(entries []registry.Entry) []registry.Entry {
	lookup := g.Lookup
	if lookup == nil {
		lookup = Env
	}

	log := g.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}

	var out []registry.Entry
	for _, e := range entries {
		if Allowed(e, lookup) {
			out = append(out, e)
			continue
		}

		if g.Notices != nil {
			_, _ = fmt.Fprintln(g.Notices, SkipNotice(e))
		}
		log.Info("skipping model", "model", e.Model, "env", e.CredentialEnv)
	}

	return out
}

// SkipNotice is the transcript line for a gated-out entry.
func SkipNotice(e registry.Entry) string {
	return fmt.Sprintf("===== Skipping model: %s (env var not set: %s)", e.Model, e.CredentialEnv)
}

// Credential returns the value of e's credential variable, or "" when e needs
// none or it is unset.
func Credential(e registry.Entry, lookup LookupFunc) string {
	if e.CredentialEnv == "" {
		return ""
	}
	v, _ := lookup(e.CredentialEnv)
	return v
}
