package assembler

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	osexec "os/exec"
	"path/filepath"
	"strings"
	"time"
)

// Defaults for Command.
const (
	DefaultProgram = "uxnasm"
	DefaultTimeout = 30 * time.Second
)

// Placeholders substituted in Command.Args.
const (
	InPlaceholder  = "{in}"
	OutPlaceholder = "{out}"
)

var _ Assembler = (*Command)(nil)

// Command runs an external assembler on a temporary copy of the source.
// The zero value runs "uxnasm {in} {out}" with DefaultTimeout.
type Command struct {
	Program string        // Executable name or path. Default DefaultProgram.
	Args    []string      // Arguments; {in} and {out} are replaced by the source and ROM paths.
	Timeout time.Duration // Per-invocation limit. Default DefaultTimeout.
	TempDir string        // Parent for scratch directories; "" uses os.TempDir.
}

func (c *Command) program() string {
	if c.Program == "" {
		return DefaultProgram
	}
	return c.Program
}

func (c *Command) timeout() time.Duration {
	if c.Timeout <= 0 {
		return DefaultTimeout
	}
	return c.Timeout
}

func (c *Command) args(in, out string) []string {
	if len(c.Args) == 0 {
		return []string{in, out}
	}

	args := make([]string, len(c.Args))
	for i, a := range c.Args {
		a = strings.ReplaceAll(a, InPlaceholder, in)
		args[i] = strings.ReplaceAll(a, OutPlaceholder, out)
	}
	return args
}

// Assemble implements Assembler.
func (c *Command) Assemble(ctx context.Context, source, origin string) error {
	_, err := c.Build(ctx, source, origin)
	return err
}

// Build assembles source and returns the produced ROM. Failures reported by
// the assembler come back as *Error whose Detail is the tool's output.
func (c *Command) Build(ctx context.Context, source, origin string) ([]byte, error) {
	prog, err := osexec.LookPath(c.program())
	if err != nil {
		return nil, &Error{Detail: fmt.Sprintf("assembler not available: %v", err)}
	}

	dir, err := os.MkdirTemp(c.TempDir, "shrub-asm-")
	if err != nil {
		return nil, fmt.Errorf("assembler: scratch dir: %w", err)
	}
	defer os.RemoveAll(dir) //nolint:errcheck // best-effort cleanup

	name := fileName(origin)
	in := filepath.Join(dir, name+".tal")
	out := filepath.Join(dir, name+".rom")

	if err := os.WriteFile(in, []byte(source), 0o600); err != nil { //nolint:mnd // owner-only scratch file
		return nil, fmt.Errorf("assembler: write source: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout())
	defer cancel()

	cmd := osexec.CommandContext(ctx, prog, c.args(in, out)...) //nolint:gosec // program comes from local config
	cmd.Dir = dir
	cmd.WaitDelay = time.Second

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()

	var output strings.Builder
	if stdout.Len() > 0 {
		output.WriteString(strings.TrimSpace(stdout.String()))
	}

	if stderr.Len() > 0 {
		if output.Len() > 0 {
			output.WriteString("\n")
		}

		output.WriteString(strings.TrimSpace(stderr.String()))
	}

	if runErr != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, &Error{Detail: fmt.Sprintf("assembler timed out after %s", c.timeout())}
		}

		detail := output.String()
		if detail == "" {
			detail = runErr.Error()
		}

		return nil, &Error{Detail: detail}
	}

	rom, err := os.ReadFile(out)
	if err != nil {
		return nil, &Error{Detail: fmt.Sprintf("assembler produced no rom: %s", strings.TrimSpace(output.String()))}
	}

	return rom, nil
}

// fileName turns an origin tag into a safe base name.
func fileName(origin string) string {
	if origin == "" {
		return "candidate"
	}

	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			return r
		default:
			return '_'
		}
	}, origin)
}
