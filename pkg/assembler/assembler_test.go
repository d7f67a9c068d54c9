package assembler

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// script writes an executable shell script and returns its path.
func script(t *testing.T, body string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "fakeasm")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755)) //nolint:gosec // test helper

	return path
}

func TestFunc(t *testing.T) {
	var gotSource, gotOrigin string
	a := Func(func(_ context.Context, source, origin string) error {
		gotSource, gotOrigin = source, origin
		return nil
	})

	require.NoError(t, a.Assemble(context.Background(), "|0100 BRK", ""))
	assert.Equal(t, "|0100 BRK", gotSource)
	assert.Empty(t, gotOrigin)
}

func TestError(t *testing.T) {
	var err error = &Error{Detail: "Unknown token: foo"}
	assert.Equal(t, "Unknown token: foo", err.Error())

	var ae *Error
	assert.True(t, errors.As(err, &ae))
}

func TestCommand_Success(t *testing.T) {
	c := &Command{Program: script(t, `cp "$1" "$2"`)}

	rom, err := c.Build(context.Background(), "|0100 BRK", "")

	require.NoError(t, err)
	assert.Equal(t, "|0100 BRK", string(rom))
	assert.NoError(t, c.Assemble(context.Background(), "|0100 BRK", "outer"))
}

func TestCommand_FailureCarriesOutput(t *testing.T) {
	c := &Command{Program: script(t, `echo "Assembling $1"; echo "Unknown token: foo" >&2; exit 1`)}

	err := c.Assemble(context.Background(), "foo", "")

	var ae *Error
	require.ErrorAs(t, err, &ae)
	assert.Contains(t, ae.Detail, "Assembling")
	assert.Contains(t, ae.Detail, "Unknown token: foo")
}

func TestCommand_FailureWithoutOutput(t *testing.T) {
	c := &Command{Program: script(t, `exit 3`)}

	err := c.Assemble(context.Background(), "foo", "")

	var ae *Error
	require.ErrorAs(t, err, &ae)
	assert.Contains(t, ae.Detail, "exit status 3")
}

func TestCommand_MissingBinary(t *testing.T) {
	c := &Command{Program: filepath.Join(t.TempDir(), "no-such-uxnasm")}

	err := c.Assemble(context.Background(), "|0100 BRK", "")

	var ae *Error
	require.ErrorAs(t, err, &ae)
	assert.Contains(t, ae.Detail, "assembler not available")
}

func TestCommand_NoROMProduced(t *testing.T) {
	c := &Command{Program: script(t, `exit 0`)}

	_, err := c.Build(context.Background(), "|0100 BRK", "")

	var ae *Error
	require.ErrorAs(t, err, &ae)
	assert.Contains(t, ae.Detail, "no rom")
}

func TestCommand_Timeout(t *testing.T) {
	c := &Command{Program: script(t, `exec sleep 5`), Timeout: 50 * time.Millisecond}

	err := c.Assemble(context.Background(), "|0100 BRK", "")

	var ae *Error
	require.ErrorAs(t, err, &ae)
	assert.Contains(t, ae.Detail, "timed out")
}

func TestCommand_ArgsPlaceholders(t *testing.T) {
	c := &Command{
		Program: script(t, `cp "$2" "$4"`),
		Args:    []string{"-i", InPlaceholder, "-o", OutPlaceholder},
	}

	rom, err := c.Build(context.Background(), "SRC", "inner")

	require.NoError(t, err)
	assert.Equal(t, "SRC", string(rom))
}

func TestCommand_ScratchFilesNamedByOrigin(t *testing.T) {
	c := &Command{Program: script(t, `basename "$1" > "$2"`)}

	rom, err := c.Build(context.Background(), "SRC", "gpt-4o-mini/inner")

	require.NoError(t, err)
	assert.Equal(t, "gpt-4o-mini_inner.tal\n", string(rom))
}

func TestCommand_Defaults(t *testing.T) {
	c := &Command{}

	assert.Equal(t, DefaultProgram, c.program())
	assert.Equal(t, DefaultTimeout, c.timeout())
	assert.Equal(t, []string{"a.tal", "a.rom"}, c.args("a.tal", "a.rom"))
}
