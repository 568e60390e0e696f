package proptest

import (
	"io"

	"github.com/seleniaproject/proptest/internal/hooks"
)

// NewWriterHooks builds a HookSet that writes one-line diagnostics to w
// for run boundaries and counterexamples, returning Continue from every
// callback. It is plumbing for a caller's own reporter, not a reporter
// itself — output formatting is this module's concern only insofar as it
// hands a caller something to build on.
func NewWriterHooks(w io.Writer) HookSet {
	return hooks.NewWriterTable(w)
}
