// Package hooks implements the typed observer protocol of spec §4.8: ten
// named callback points, a shared envelope of run-level context, and a
// small enumerated return code that the trial scheduler and shrink engine
// interpret to decide whether to continue, halt, repeat, or abort fatally.
package hooks

import "github.com/seleniaproject/proptest/internal/ptesterr"

// Outcome is the value every hook callback returns.
type Outcome int

const (
	// Continue proceeds with the run as normal.
	Continue Outcome = iota
	// Halt stops the trial loop cleanly; already-recorded counters stand.
	Halt
	// Repeat re-invokes the property under the same arguments (post-trial
	// and post-shrink-trial hooks only) and keeps looping afterward.
	Repeat
	// RepeatOnce re-invokes the property exactly once more, then proceeds
	// as Continue.
	RepeatOnce
	// Error aborts the run fatally.
	Error
)

func (o Outcome) String() string {
	switch o {
	case Continue:
		return "continue"
	case Halt:
		return "halt"
	case Repeat:
		return "repeat"
	case RepeatOnce:
		return "repeat-once"
	case Error:
		return "error"
	default:
		return "unknown"
	}
}

// Valid reports whether o is one of the five defined outcomes. Spec §4.8:
// "Unknown return codes are fatal" — callers should treat !Valid() as
// Error.
func (o Outcome) Valid() bool {
	return o >= Continue && o <= Error
}

// Envelope carries the context every hook callback receives: the property
// under test, the run seed, and the counters accumulated so far in this
// run (spec §4.8: "property name, run seed, counters-so-far").
type Envelope struct {
	PropertyName string
	RunSeed      uint64

	Trials     uint64
	Passes     uint64
	Failures   uint64
	Skips      uint64
	Duplicates uint64
	Errors     uint64
}

// PreRunData carries nothing beyond the envelope.
type PreRunData struct{}

// PostRunData reports the final disposition of the run.
type PostRunData struct {
	Failed bool
}

// PreGenArgsData identifies which trial is about to generate arguments.
type PreGenArgsData struct {
	TrialIndex int
	TrialSeed  uint64
}

// PreTrialData fires once arguments are generated, before the property
// runs.
type PreTrialData struct {
	TrialIndex int
	Args       []any
}

// PostForkData fires on the child side immediately after a fork, before
// the property runs in isolation (spec §4.7).
type PostForkData struct {
	TrialIndex int
}

// TrialOutcome mirrors the per-trial result codes of spec §4.3/§4.6.
type TrialOutcome int

const (
	TrialPass TrialOutcome = iota
	TrialFail
	TrialSkip
	TrialDuplicate
	TrialError
)

// PostTrialData reports how a trial concluded.
type PostTrialData struct {
	TrialIndex int
	Outcome    TrialOutcome
	Args       []any
}

// CounterexampleData carries the final, fully-shrunk failing arguments.
type CounterexampleData struct {
	TrialIndex int
	Args       []any
}

// PreShrinkData identifies the argument and attempt about to be tried.
type PreShrinkData struct {
	ArgIndex int
	Attempt  int
}

// PostShrinkData reports whether the shrink attempt produced a usable
// candidate instance.
type PostShrinkData struct {
	ArgIndex int
	Attempt  int
	Produced bool
}

// PostShrinkTrialData reports the outcome of running the property against
// a shrink candidate.
type PostShrinkTrialData struct {
	ArgIndex int
	Attempt  int
	Outcome  TrialOutcome
}

// Table is the record of ten optional callbacks (spec §3: "hooks: the ten
// observer slots of §4.8"). A nil slot behaves as Continue.
type Table struct {
	PreRun          func(Envelope, PreRunData) Outcome
	PostRun         func(Envelope, PostRunData) Outcome
	PreGenArgs      func(Envelope, PreGenArgsData) Outcome
	PreTrial        func(Envelope, PreTrialData) Outcome
	PostFork        func(Envelope, PostForkData) Outcome
	PostTrial       func(Envelope, PostTrialData) Outcome
	Counterexample  func(Envelope, CounterexampleData) Outcome
	PreShrink       func(Envelope, PreShrinkData) Outcome
	PostShrink      func(Envelope, PostShrinkData) Outcome
	PostShrinkTrial func(Envelope, PostShrinkTrialData) Outcome
}

func resolve(o Outcome) (Outcome, error) {
	if !o.Valid() {
		return Error, ptesterr.HookFailed("unknown outcome code")
	}

	return o, nil
}

// InvokePreRun calls the PreRun hook, defaulting to Continue when unset.
func (t Table) InvokePreRun(env Envelope, data PreRunData) (Outcome, error) {
	if t.PreRun == nil {
		return Continue, nil
	}

	return resolve(t.PreRun(env, data))
}

// InvokePostRun calls the PostRun hook, defaulting to Continue when unset.
func (t Table) InvokePostRun(env Envelope, data PostRunData) (Outcome, error) {
	if t.PostRun == nil {
		return Continue, nil
	}

	return resolve(t.PostRun(env, data))
}

// InvokePreGenArgs calls the PreGenArgs hook, defaulting to Continue.
func (t Table) InvokePreGenArgs(env Envelope, data PreGenArgsData) (Outcome, error) {
	if t.PreGenArgs == nil {
		return Continue, nil
	}

	return resolve(t.PreGenArgs(env, data))
}

// InvokePreTrial calls the PreTrial hook, defaulting to Continue.
func (t Table) InvokePreTrial(env Envelope, data PreTrialData) (Outcome, error) {
	if t.PreTrial == nil {
		return Continue, nil
	}

	return resolve(t.PreTrial(env, data))
}

// InvokePostFork calls the PostFork hook, defaulting to Continue.
func (t Table) InvokePostFork(env Envelope, data PostForkData) (Outcome, error) {
	if t.PostFork == nil {
		return Continue, nil
	}

	return resolve(t.PostFork(env, data))
}

// InvokePostTrial calls the PostTrial hook, defaulting to Continue. Only
// this hook and InvokePostShrinkTrial may validly return Repeat/RepeatOnce.
func (t Table) InvokePostTrial(env Envelope, data PostTrialData) (Outcome, error) {
	if t.PostTrial == nil {
		return Continue, nil
	}

	return resolve(t.PostTrial(env, data))
}

// InvokeCounterexample calls the Counterexample hook, defaulting to
// Continue.
func (t Table) InvokeCounterexample(env Envelope, data CounterexampleData) (Outcome, error) {
	if t.Counterexample == nil {
		return Continue, nil
	}

	return resolve(t.Counterexample(env, data))
}

// InvokePreShrink calls the PreShrink hook, defaulting to Continue.
func (t Table) InvokePreShrink(env Envelope, data PreShrinkData) (Outcome, error) {
	if t.PreShrink == nil {
		return Continue, nil
	}

	return resolve(t.PreShrink(env, data))
}

// InvokePostShrink calls the PostShrink hook, defaulting to Continue.
func (t Table) InvokePostShrink(env Envelope, data PostShrinkData) (Outcome, error) {
	if t.PostShrink == nil {
		return Continue, nil
	}

	return resolve(t.PostShrink(env, data))
}

// InvokePostShrinkTrial calls the PostShrinkTrial hook, defaulting to
// Continue.
func (t Table) InvokePostShrinkTrial(env Envelope, data PostShrinkTrialData) (Outcome, error) {
	if t.PostShrinkTrial == nil {
		return Continue, nil
	}

	return resolve(t.PostShrinkTrial(env, data))
}
