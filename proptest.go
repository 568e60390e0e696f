// Package proptest is a bit-pool-driven property test engine: it runs a
// property against randomly (and, on failure, automatically) generated
// arguments, shrinking any counterexample toward a minimal reproduction.
//
// The generic entry points (Check1 through Check7) adapt ordinary typed
// generator and property functions into the engine's type-erased core —
// internal/engine, internal/scheduler, internal/shrinkengine — which holds
// a trial's heterogeneous argument tuple behind capability records
// (alloc/free/hash/print/shrink) rather than through generics, since Go
// cannot express a tuple of differently-typed arguments directly.
package proptest

import (
	"context"

	"github.com/seleniaproject/proptest/internal/bitstream"
	"github.com/seleniaproject/proptest/internal/engine"
	"github.com/seleniaproject/proptest/internal/hooks"
	"github.com/seleniaproject/proptest/internal/scheduler"
)

// Verdict is what a generator or property reports for one trial.
type Verdict = engine.Verdict

const (
	VerdictPass  = engine.VerdictPass
	VerdictFail  = engine.VerdictFail
	VerdictSkip  = engine.VerdictSkip
	VerdictError = engine.VerdictError
)

// ResultCode is a run's final disposition.
type ResultCode = engine.ResultCode

const (
	ResultOK          = engine.ResultOK
	ResultFail        = engine.ResultFail
	ResultSkip        = engine.ResultSkip
	ResultError       = engine.ResultError
	ResultErrorMemory = engine.ResultErrorMemory
)

// Counters tallies trial outcomes over a run.
type Counters = engine.Counters

// Result is what a Check call returns.
type Result = engine.RunResult

// BitReader is the contract a generator's Alloc function draws from. The
// engine hands it either a fresh PRNG-backed buffer or, during
// autoshrink's replay passes, a mutated bit pool — a generator never
// needs to know which.
type BitReader = bitstream.BitReader

// AutoshrinkConfig enables and tunes bit-pool-driven shrinking for one
// generator (spec §6 `type_info[i].autoshrink`).
type AutoshrinkConfig = engine.AutoshrinkConfig

// ForkConfig enables and tunes per-trial process isolation (spec §6
// `fork`). Signal is a raw signal number (0 keeps the package default).
type ForkConfig = engine.ForkConfig

// Outcome is the value every hook callback returns.
type Outcome = hooks.Outcome

const (
	Continue   = hooks.Continue
	Halt       = hooks.Halt
	Repeat     = hooks.Repeat
	RepeatOnce = hooks.RepeatOnce
	Error      = hooks.Error
)

// TrialOutcome mirrors the per-trial result codes surfaced to hooks.
type TrialOutcome = hooks.TrialOutcome

const (
	TrialPass      = hooks.TrialPass
	TrialFail      = hooks.TrialFail
	TrialSkip      = hooks.TrialSkip
	TrialDuplicate = hooks.TrialDuplicate
	TrialError     = hooks.TrialError
)

// Envelope and the ten *Data structs carry context into a hook callback;
// see HookSet's field comments for when each fires.
type (
	Envelope            = hooks.Envelope
	PreRunData          = hooks.PreRunData
	PostRunData         = hooks.PostRunData
	PreGenArgsData      = hooks.PreGenArgsData
	PreTrialData        = hooks.PreTrialData
	PostForkData        = hooks.PostForkData
	PostTrialData       = hooks.PostTrialData
	CounterexampleData  = hooks.CounterexampleData
	PreShrinkData       = hooks.PreShrinkData
	PostShrinkData      = hooks.PostShrinkData
	PostShrinkTrialData = hooks.PostShrinkTrialData
)

// HookSet is the record of ten optional observer callbacks (spec §4.8). A
// nil field behaves as Continue.
type HookSet = hooks.Table

// DefaultTrials is the trial count a zero-value Config.Trials resolves to.
const DefaultTrials = 100

// DefaultSeed is the run seed a zero-value Config.Seed resolves to. Spec
// §6 leaves the exact constant unspecified ("default: a fixed constant");
// this module picks the natural Go zero value, matching the
// zero-means-default idiom used throughout the engine's own internal
// Config types (e.g. internal/isolate.Config.normalize()).
const DefaultSeed uint64 = 0

// Config is the run-level configuration shared by every Check call.
type Config struct {
	// Name labels the property in hook-reported diagnostics.
	Name string
	// Ctx bounds the run; defaults to context.Background() when nil.
	Ctx context.Context
	// Trials is the total number of trials to run, AlwaysSeeds trials
	// included; zero resolves to DefaultTrials.
	Trials int
	// Seed is the run seed; zero resolves to DefaultSeed.
	Seed uint64
	// AlwaysSeeds run before the normal trial sequence (spec §4.6).
	AlwaysSeeds []uint64
	Fork        ForkConfig
	Hooks       HookSet
}

// DefaultConfig returns a Config with every field at its documented
// default, the recommended starting point for building one up.
func DefaultConfig() Config {
	return Config{Trials: DefaultTrials, Seed: DefaultSeed}
}

func (c Config) context() context.Context {
	if c.Ctx != nil {
		return c.Ctx
	}

	return context.Background()
}

func (c Config) trials() int {
	if c.Trials <= 0 {
		return DefaultTrials
	}

	return c.Trials
}

func runConfig(c Config, args []engine.ArgSpec, property engine.PropertyFunc) engine.RunConfig {
	return engine.RunConfig{
		Name:          c.Name,
		Args:          args,
		Property:      property,
		PropertyArity: len(args),
		Trials:        c.trials(),
		Seed:          c.Seed,
		AlwaysSeeds:   c.AlwaysSeeds,
		Fork:          c.Fork,
		Hooks:         c.Hooks,
	}
}

func check(c Config, args []engine.ArgSpec, property engine.PropertyFunc) Result {
	return scheduler.Run(c.context(), runConfig(c, args, property))
}
