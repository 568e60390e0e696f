package proptest

import "github.com/seleniaproject/proptest/internal/engine"

// TypeInfo is a typed generator: it knows how to draw a T from a
// BitReader and, optionally, how to free, hash, print, or explicitly
// shrink one. Leaving Autoshrink.Enable false and Shrink nil produces a
// generator with no shrinking at all, which is a legitimate choice for
// types with no meaningful smaller form.
type TypeInfo[T any] struct {
	// Name labels this argument in hook-reported diagnostics.
	Name string
	// Alloc draws one value of T from r. Returning a non-Pass verdict
	// aborts the current trial without calling the property; during
	// shrinking, VerdictSkip abandons only that shrink attempt and
	// VerdictError ends the run with an error.
	Alloc func(r BitReader, env any) (T, Verdict)
	// Free releases resources Alloc acquired, if any.
	Free func(v T)
	// Hash returns a content hash for deduplication; ok false falls back
	// to hashing the value's underlying bit-pool bytes.
	Hash func(v T) (hash uint64, ok bool)
	// Print renders v for counterexample reporting.
	Print func(v T) string
	// Shrink proposes a strictly smaller T; ok false means no smaller
	// value remains. Mutually exclusive with Autoshrink.Enable.
	Shrink func(v T) (smaller T, ok bool)
	// Autoshrink enables bit-pool mutation shrinking for this argument
	// instead of an explicit Shrink function.
	Autoshrink AutoshrinkConfig
	// Env is opaque data threaded through to Alloc unchanged.
	Env any
}

func (ti TypeInfo[T]) toArgSpec() engine.ArgSpec {
	spec := engine.ArgSpec{
		Name: ti.Name,
		Alloc: func(r BitReader, env any) engine.GenResult {
			v, verdict := ti.Alloc(r, env)

			return engine.GenResult{Value: v, Verdict: verdict}
		},
		Autoshrink: ti.Autoshrink,
		Env:        ti.Env,
	}

	if ti.Free != nil {
		spec.Free = func(v any) { ti.Free(v.(T)) }
	}

	if ti.Hash != nil {
		spec.Hash = func(v any) (uint64, bool) { return ti.Hash(v.(T)) }
	}

	if ti.Print != nil {
		spec.Print = func(v any) string { return ti.Print(v.(T)) }
	}

	if ti.Shrink != nil {
		spec.Shrink = func(v any) (any, bool) {
			smaller, ok := ti.Shrink(v.(T))

			return smaller, ok
		}
	}

	return spec
}
