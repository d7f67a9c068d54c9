// Package assembler defines the capability shrub validates candidates with
// and a Command implementation that shells out to an external Uxntal
// assembler such as uxnasm.
package assembler

import "context"

// Assembler assembles Uxntal source. Origin is an optional name for the
// source (used in diagnostics and temp file names); "" means absent. A nil
// error means the source assembled.
type Assembler interface {
	Assemble(ctx context.Context, source, origin string) error
}

// Func adapts a plain function to Assembler.
type Func func(ctx context.Context, source, origin string) error

// Assemble calls f.
func (f Func) Assemble(ctx context.Context, source, origin string) error {
	return f(ctx, source, origin)
}

// Error carries the assembler's diagnostic.
type Error struct {
	Detail string
}

func (e *Error) Error() string { return e.Detail }
