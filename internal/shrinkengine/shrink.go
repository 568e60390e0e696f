// Package shrinkengine implements the breadth-first, greedy, per-argument
// shrink loop of spec §4.5: for a failing trial, iterate arguments
// left-to-right, repeatedly mutating each argument's bit pool and
// re-running generation and the property, keeping any mutation that still
// fails, until every argument reaches a local minimum in one full pass.
package shrinkengine

import (
	"fmt"

	"github.com/seleniaproject/proptest/internal/autoshrink"
	"github.com/seleniaproject/proptest/internal/bitpool"
	"github.com/seleniaproject/proptest/internal/bitstream"
	"github.com/seleniaproject/proptest/internal/bloom"
	"github.com/seleniaproject/proptest/internal/engine"
	"github.com/seleniaproject/proptest/internal/hash"
	"github.com/seleniaproject/proptest/internal/hooks"
	"github.com/seleniaproject/proptest/internal/ptesterr"
)

// DefaultMaxFailedShrinks is the default τ budget for one argument (spec
// §6 `autoshrink.max_failed_shrinks`, §4.5 step 9).
const DefaultMaxFailedShrinks = 100

// ArgState is the live per-argument state carried into the shrink loop:
// its spec, current instance, and — for autoshrink arguments — the bit
// pool and model that produced it. Basic arguments (Pool == nil) are
// shrunk through their own explicit Spec.Shrink function instead.
type ArgState struct {
	Spec  engine.ArgSpec
	Value any
	Pool  *bitpool.Pool
	Model *autoshrink.Model
}

// Engine drives the shrink loop for one failing trial.
type Engine struct {
	Dedup    *bloom.Filter
	Hooks    hooks.Table
	Env      hooks.Envelope
	ModelRNG bitstream.Source
}

// Run shrinks states in place, returning the final (possibly improved)
// states once no argument can be shrunk further in a full pass (spec
// §4.5: "Stop permanently when every argument reaches a local minimum in
// one pass").
func (e *Engine) Run(states []ArgState, property engine.PropertyFunc) ([]ArgState, error) {
	for {
		progressed := false

		for i := range states {
			ok, err := e.shrinkArgument(states, i, property)
			if err != nil {
				return states, err
			}

			if ok {
				progressed = true
			}
		}

		if !progressed {
			return states, nil
		}
	}
}

func (e *Engine) shrinkArgument(states []ArgState, idx int, property engine.PropertyFunc) (bool, error) {
	st := &states[idx]

	if st.Pool == nil || st.Model == nil {
		return e.shrinkBasicArgument(states, idx, property)
	}

	maxAttempts := st.Spec.Autoshrink.MaxFailedShrinks
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxFailedShrinks
	}

	anyCommit := false

	for attempt := 0; attempt < maxAttempts; attempt++ {
		preOut, err := e.Hooks.InvokePreShrink(e.Env, hooks.PreShrinkData{ArgIndex: idx, Attempt: attempt})
		if err != nil {
			return anyCommit, err
		}

		if preOut == hooks.Halt {
			return anyCommit, nil
		}

		outcome := autoshrink.Apply(st.Model, e.ModelRNG, st.Pool)

		candidateVal, genVerdict, allocErr := callAlloc(st.Spec, outcome.Pool)
		if allocErr != nil {
			return anyCommit, allocErr
		}

		postOut, err := e.Hooks.InvokePostShrink(e.Env, hooks.PostShrinkData{
			ArgIndex: idx, Attempt: attempt, Produced: genVerdict == engine.VerdictPass,
		})
		if err != nil {
			return anyCommit, err
		}

		if postOut == hooks.Halt {
			return anyCommit, nil
		}

		switch genVerdict {
		case engine.VerdictSkip:
			continue // dead end for this attempt; try the next one
		case engine.VerdictError:
			return anyCommit, ptesterr.GeneratorFailed(idx, "shrink candidate generation failed")
		}

		if e.Dedup != nil {
			key := e.tupleHash(states, idx, candidateVal, outcome.Pool)
			if e.Dedup.MarkSeen(key) {
				continue
			}
		}

		trialArgs := snapshotValues(states)
		trialArgs[idx] = candidateVal

		verdict := property(trialArgs)

		// Repeat re-runs the property and asks the hook again; RepeatOnce
		// re-runs it once, then the hook's next answer is final.
		for repeatedOnce := false; ; {
			shrinkTrialOut, err := e.Hooks.InvokePostShrinkTrial(e.Env, hooks.PostShrinkTrialData{
				ArgIndex: idx, Attempt: attempt, Outcome: toTrialOutcome(verdict),
			})
			if err != nil {
				return anyCommit, err
			}

			if repeatedOnce || (shrinkTrialOut != hooks.Repeat && shrinkTrialOut != hooks.RepeatOnce) {
				break
			}

			repeatedOnce = shrinkTrialOut == hooks.RepeatOnce
			verdict = property(trialArgs)
		}

		switch verdict {
		case engine.VerdictFail:
			st.Model.CommitReward(outcome.Tactic)
			st.Model.OutcomeReward(outcome.Tactic, outcome.Changed, true)
			st.Pool = outcome.Pool
			st.Value = candidateVal
			anyCommit = true
			attempt = -1 // loop from τ=0 on the same argument (spec §4.5 step 7)
		case engine.VerdictError:
			return anyCommit, ptesterr.HookFailed("property error during shrink")
		default: // pass or skip: revert
			st.Model.OutcomeReward(outcome.Tactic, outcome.Changed, false)
		}
	}

	return anyCommit, nil
}

// shrinkBasicArgument repeatedly applies a basic argument's explicit
// shrink function while the property keeps failing.
func (e *Engine) shrinkBasicArgument(states []ArgState, idx int, property engine.PropertyFunc) (bool, error) {
	st := &states[idx]
	if st.Spec.Shrink == nil {
		return false, nil
	}

	anyCommit := false

	for attempts := 0; attempts < DefaultMaxFailedShrinks; {
		next, ok := st.Spec.Shrink(st.Value)
		if !ok {
			break
		}

		trialArgs := snapshotValues(states)
		trialArgs[idx] = next

		if property(trialArgs) == engine.VerdictFail {
			st.Value = next
			anyCommit = true
			attempts = 0

			continue
		}

		attempts++
	}

	return anyCommit, nil
}

// callAlloc invokes spec.Alloc, converting a recovered panic (most
// commonly an out-of-memory makeslice/makemap failure) into an
// allocation-failure error rather than crashing the run, per spec §7's
// "any memory acquisition failure" clause. Unlike a generator error
// outcome, an allocation failure is fatal to the whole run even during
// shrinking (spec §7 ranks it more severe than a generator error).
func callAlloc(spec engine.ArgSpec, r bitstream.BitReader) (val any, verdict engine.Verdict, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = ptesterr.AllocationFailure(fmt.Sprintf("generator %q panicked: %v", spec.Name, rec))
		}
	}()

	res := spec.Alloc(r, spec.Env)

	return res.Value, res.Verdict, nil
}

func snapshotValues(states []ArgState) []any {
	out := make([]any, len(states))
	for i, st := range states {
		out[i] = st.Value
	}

	return out
}

func toTrialOutcome(v engine.Verdict) hooks.TrialOutcome {
	switch v {
	case engine.VerdictFail:
		return hooks.TrialFail
	case engine.VerdictSkip:
		return hooks.TrialSkip
	case engine.VerdictError:
		return hooks.TrialError
	default:
		return hooks.TrialPass
	}
}

// ArgHash computes the dedup-key contribution of one argument: the
// user-supplied hash if present, else a hash of the consumed portion of
// its bit pool (spec §4.6). Shared by the scheduler, which folds every
// argument's hash into the same tuple key this package uses for shrink
// candidates.
func ArgHash(spec engine.ArgSpec, value any, pool *bitpool.Pool) uint64 {
	if spec.Hash != nil {
		if h, ok := spec.Hash(value); ok {
			return h
		}
	}

	if pool != nil {
		buf := pool.RawBytes()
		consumedBytes := (pool.Consumed() + 7) / 8

		if consumedBytes > uint64(len(buf)) {
			consumedBytes = uint64(len(buf))
		}

		return hash.Bytes(buf[:consumedBytes])
	}

	return 0
}

func (e *Engine) tupleHash(states []ArgState, idx int, candidateVal any, candidatePool *bitpool.Pool) uint64 {
	hs := make([]uint64, len(states))

	for i, st := range states {
		if i == idx {
			hs[i] = ArgHash(st.Spec, candidateVal, candidatePool)
		} else {
			hs[i] = ArgHash(st.Spec, st.Value, st.Pool)
		}
	}

	return hash.Uint64s(hs...)
}
