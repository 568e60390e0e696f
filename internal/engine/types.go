// Package engine holds the type-erased representation the scheduler and
// shrink engine operate on (spec §9: "Tagged union for argument storage").
// The public generic API at the module root adapts typed
// TypeInfo[T]/Property[N] values into these shapes and back; nothing in
// this package is generic, because the engine genuinely needs to hold a
// heterogeneous tuple of arguments of different types in one trial.
package engine

import (
	"github.com/seleniaproject/proptest/internal/bitstream"
	"github.com/seleniaproject/proptest/internal/hooks"
)

// Verdict is what a property or generator reports for one trial.
type Verdict int

const (
	VerdictPass Verdict = iota
	VerdictFail
	VerdictSkip
	VerdictError
)

// GenResult is what ArgSpec.Alloc returns: the freshly built instance (as
// `any`) plus a verdict. Only VerdictPass carries a usable instance;
// VerdictSkip/VerdictError abort generation for this trial.
type GenResult struct {
	Value   any
	Verdict Verdict
}

// AutoshrinkConfig mirrors spec §6's `autoshrink{enable, pool_size,
// print_mode, max_failed_shrinks}` configuration record.
type AutoshrinkConfig struct {
	Enable           bool
	PoolSizeBits     uint64
	PrintMode        PrintMode
	MaxFailedShrinks int
}

// PrintMode controls how autoshrink renders a candidate instance for
// reporting; values beyond "default" are left to the caller's print hook.
type PrintMode int

const (
	PrintDefault PrintMode = iota
	PrintVerbose
)

// ArgSpec is one argument's type-erased generator record (spec §6
// `type_info[0..N-1]`): {alloc, free?, hash?, print?, shrink?,
// autoshrink, env}.
type ArgSpec struct {
	Name string

	// Alloc is required: draws from r and builds a fresh instance.
	Alloc func(r bitstream.BitReader, env any) GenResult

	// Free releases any resources the instance holds; optional.
	Free func(v any)

	// Hash produces a dedup key for v; optional. Autoshrink generators
	// without one fall back to a hash of the consumed pool bits (spec
	// §4.6).
	Hash func(v any) (uint64, bool)

	// Print renders v for reporting; optional.
	Print func(v any) string

	// Shrink is an explicit shrink function for a *basic* (non-autoshrink)
	// argument; mutually exclusive with Autoshrink.Enable (spec §6: a
	// configuration error to set both).
	Shrink func(v any) (any, bool)

	Autoshrink AutoshrinkConfig
	Env        any
}

// IsAutoshrink reports whether this argument is generated through the
// bit-pool autoshrink path rather than a basic explicit-shrink path.
func (a ArgSpec) IsAutoshrink() bool { return a.Autoshrink.Enable }

// PropertyFunc is the type-erased predicate: one call per trial, arguments
// in declared order.
type PropertyFunc func(args []any) Verdict

// ForkConfig mirrors spec §6's `fork{enable, timeout_ms, signal,
// exit_timeout_ms}`.
type ForkConfig struct {
	Enable        bool
	TimeoutMS     int
	Signal        int
	ExitTimeoutMS int
}

// RunConfig is the immutable configuration of one run (spec §3 "Run").
type RunConfig struct {
	Name     string
	Args     []ArgSpec
	Property PropertyFunc
	// PropertyArity is the number of arguments Property expects. Zero
	// skips the check; set to len(Args) by a well-formed caller. A
	// mismatch is spec §7's "arity/function mismatch" configuration
	// error, validated alongside the other ArgSpec checks.
	PropertyArity int
	Trials        int
	Seed          uint64
	AlwaysSeeds   []uint64
	Fork          ForkConfig
	Hooks         hooks.Table
}

// ResultCode is the run entry point's final disposition (spec §6).
type ResultCode int

const (
	ResultOK ResultCode = iota
	ResultFail
	ResultSkip
	ResultError
	ResultErrorMemory
)

func (r ResultCode) String() string {
	switch r {
	case ResultOK:
		return "ok"
	case ResultFail:
		return "fail"
	case ResultSkip:
		return "skip"
	case ResultError:
		return "error"
	case ResultErrorMemory:
		return "error_memory"
	default:
		return "unknown"
	}
}

// Counters tallies trial outcomes over a run.
type Counters struct {
	Trials     uint64
	Passes     uint64
	Failures   uint64
	Skips      uint64
	Duplicates uint64
	Errors     uint64
}

// RunResult is what the scheduler returns to the public API layer.
type RunResult struct {
	Code           ResultCode
	Counters       Counters
	Counterexample []any
	Err            error
}
