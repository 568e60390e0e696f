// Package scheduler implements the trial scheduler of spec §4.6: the
// pre-run/trial-loop/post-run state machine, trial-seed derivation,
// per-trial argument generation, duplicate suppression, and the handoff
// into the shrink engine on failure.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"syscall"
	"time"

	"github.com/seleniaproject/proptest/internal/autoshrink"
	"github.com/seleniaproject/proptest/internal/bitpool"
	"github.com/seleniaproject/proptest/internal/bitstream"
	"github.com/seleniaproject/proptest/internal/bloom"
	"github.com/seleniaproject/proptest/internal/engine"
	"github.com/seleniaproject/proptest/internal/hash"
	"github.com/seleniaproject/proptest/internal/hooks"
	"github.com/seleniaproject/proptest/internal/isolate"
	"github.com/seleniaproject/proptest/internal/ptesterr"
	"github.com/seleniaproject/proptest/internal/shrinkengine"
)

// trialSeedEnv and trialIndexEnv carry the one trial a forked child must
// reproduce: the scheduler re-execs the current binary, and the child
// branch of Run (gated by isolate.IsChild()) regenerates the identical
// arguments from trialSeedEnv before calling the property directly,
// exactly reproducing what the parent would have computed in-process.
const (
	trialSeedEnv  = "PROPTEST_TRIAL_SEED"
	trialIndexEnv = "PROPTEST_TRIAL_INDEX"
)

// Run executes cfg.Trials trials (plus any always_seeds) against
// cfg.Property, returning the final disposition. When the current process
// was re-exec'd as an isolated trial child (isolate.IsChild()), Run instead
// regenerates the one trial named by the environment and reports its
// result through the isolation pipe, never returning normally.
func Run(ctx context.Context, cfg engine.RunConfig) engine.RunResult {
	if isolate.IsChild() {
		runIsolatedChild(cfg)
		// runIsolatedChild always calls os.Exit; unreachable.
		return engine.RunResult{Code: engine.ResultError}
	}

	if err := validate(cfg); err != nil {
		return engine.RunResult{Code: engine.ResultError, Err: err}
	}

	env := hooks.Envelope{PropertyName: cfg.Name, RunSeed: cfg.Seed}

	var counterexample []any

	if out, err := cfg.Hooks.InvokePreRun(env, hooks.PreRunData{}); err != nil || out == hooks.Halt {
		return finish(cfg, env, counterexample, false, err)
	}

	dedup := bloom.New(bloom.Options{})
	seedSrc := bitstream.NewPCGSource(cfg.Seed)

	failed := false

	for i := 0; i < cfg.Trials; i++ {
		trialSeed := nextTrialSeed(cfg, seedSrc, i)

		env.Trials++

		preGenOut, err := cfg.Hooks.InvokePreGenArgs(env, hooks.PreGenArgsData{TrialIndex: i, TrialSeed: trialSeed})
		if err != nil {
			return finish(cfg, env, counterexample, failed, err)
		}

		if preGenOut == hooks.Halt {
			break
		}

		trial, genErr := generateTrial(cfg, trialSeed)
		if genErr != nil {
			return finish(cfg, env, counterexample, failed, genErr)
		}

		if trial.verdict == engine.VerdictError {
			env.Errors++
			if _, err := cfg.Hooks.InvokePostTrial(env, hooks.PostTrialData{TrialIndex: i, Outcome: hooks.TrialError}); err != nil {
				return finish(cfg, env, counterexample, true, err)
			}

			continue
		}

		if trial.verdict == engine.VerdictSkip {
			env.Skips++
			if _, err := cfg.Hooks.InvokePostTrial(env, hooks.PostTrialData{TrialIndex: i, Outcome: hooks.TrialSkip}); err != nil {
				return finish(cfg, env, counterexample, failed, err)
			}

			continue
		}

		preTrialOut, err := cfg.Hooks.InvokePreTrial(env, hooks.PreTrialData{TrialIndex: i, Args: trial.values})
		if err != nil {
			return finish(cfg, env, counterexample, failed, err)
		}

		if preTrialOut == hooks.Halt {
			break
		}

		if dedup.MarkSeen(tupleHash(trial.states)) {
			env.Duplicates++
			if _, err := cfg.Hooks.InvokePostTrial(env, hooks.PostTrialData{TrialIndex: i, Outcome: hooks.TrialDuplicate}); err != nil {
				return finish(cfg, env, counterexample, failed, err)
			}

			continue
		}

		verdict, err := runProperty(ctx, cfg, trialSeed, i, trial.values)
		if err != nil {
			return finish(cfg, env, counterexample, true, err)
		}

		postOut, postErr := invokePostTrialWithRepeat(cfg, env, i, &verdict, trial.values)
		if postErr != nil {
			return finish(cfg, env, counterexample, failed || verdict == engine.VerdictFail, postErr)
		}

		switch verdict {
		case engine.VerdictPass:
			env.Passes++
		case engine.VerdictSkip:
			env.Skips++
		case engine.VerdictFail:
			env.Failures++
			failed = true

			final, shrinkErr := shrinkFailure(cfg, env, trial.states)
			if shrinkErr != nil {
				return finish(cfg, env, counterexample, true, shrinkErr)
			}

			counterexample = final

			if _, err := cfg.Hooks.InvokeCounterexample(env, hooks.CounterexampleData{TrialIndex: i, Args: final}); err != nil {
				return finish(cfg, env, counterexample, true, err)
			}
		}

		if postOut == hooks.Halt {
			break
		}
	}

	return finish(cfg, env, counterexample, failed, nil)
}

// finish invokes the post-run hook (spec §4.6: "pre-run hook -> trial
// loop -> post-run hook") and builds the run's final result. It is the
// single exit point of Run, so every return path — including early
// halts and fatal errors from the trial loop — is guaranteed to report
// the run's end to observers exactly once.
func finish(cfg engine.RunConfig, env hooks.Envelope, counterexample []any, failed bool, err error) engine.RunResult {
	postOut, postErr := cfg.Hooks.InvokePostRun(env, hooks.PostRunData{Failed: failed})

	switch {
	case err == nil && postErr != nil:
		err = postErr
	case err == nil && postOut == hooks.Error:
		err = ptesterr.HookFailed("post_run")
	}

	code := engine.ResultOK

	switch {
	case err != nil:
		code = engine.ResultError

		var perr *ptesterr.Error
		if errors.As(err, &perr) && perr.Category == ptesterr.CategoryAllocation {
			code = engine.ResultErrorMemory
		}
	case failed:
		code = engine.ResultFail
	case env.Passes == 0:
		code = engine.ResultSkip
	}

	return engine.RunResult{
		Code: code,
		Counters: engine.Counters{
			Trials:     env.Trials,
			Passes:     env.Passes,
			Failures:   env.Failures,
			Skips:      env.Skips,
			Duplicates: env.Duplicates,
			Errors:     env.Errors,
		},
		Counterexample: counterexample,
		Err:            err,
	}
}

func validate(cfg engine.RunConfig) error {
	if cfg.Property == nil {
		return ptesterr.New(ptesterr.CategoryConfig, "MISSING_PROPERTY", "run config has no property function", nil)
	}

	if cfg.PropertyArity != 0 && cfg.PropertyArity != len(cfg.Args) {
		return ptesterr.ArityMismatch(cfg.PropertyArity, len(cfg.Args))
	}

	for i, a := range cfg.Args {
		if a.Alloc == nil {
			return ptesterr.MissingAlloc(i)
		}

		if a.Shrink != nil && a.Autoshrink.Enable {
			return ptesterr.ConflictingShrink(i)
		}
	}

	return nil
}

// nextTrialSeed implements spec §4.6's trial-seed derivation: always_seeds
// first, then run_seed exactly once, then PRNG-derived thereafter.
func nextTrialSeed(cfg engine.RunConfig, seedSrc bitstream.Source, i int) uint64 {
	switch {
	case i < len(cfg.AlwaysSeeds):
		return cfg.AlwaysSeeds[i]
	case i == len(cfg.AlwaysSeeds):
		seedSrc.Reseed(cfg.Seed)

		return cfg.Seed
	default:
		return seedSrc.Next64()
	}
}

// generatedTrial is the per-trial generation result: argument values ready
// to hand to the property, plus their live pool/model state for shrinking.
type generatedTrial struct {
	values  []any
	states  []shrinkengine.ArgState
	verdict engine.Verdict
}

// generateTrial reseeds a fresh bitstream.Source from trialSeed and
// generates every argument in order (spec §4.6: "for each argument, if its
// generator is marked autoshrink, allocate a fresh model+pool"). It
// returns early, without generating remaining arguments, on the first
// skip/error verdict.
func generateTrial(cfg engine.RunConfig, trialSeed uint64) (generatedTrial, error) {
	trialSrc := bitstream.NewPCGSource(trialSeed)

	values := make([]any, len(cfg.Args))
	states := make([]shrinkengine.ArgState, len(cfg.Args))

	for i, spec := range cfg.Args {
		var (
			reader bitstream.BitReader
			pool   *bitpool.Pool
			model  *autoshrink.Model
		)

		if spec.IsAutoshrink() {
			poolBits := spec.Autoshrink.PoolSizeBits
			if poolBits == 0 {
				poolBits = bitpool.DefaultPoolBits
			}

			pool = bitpool.New(trialSrc, poolBits)
			modelSeed := hash.Uint64s(trialSeed, uint64(i))
			model = autoshrink.NewModel(bitstream.NewPCGSource(modelSeed))
			reader = pool
		} else {
			reader = bitstream.NewBuffer(trialSrc)
		}

		res, err := safeAlloc(spec, reader)
		if err != nil {
			return generatedTrial{}, err
		}

		if res.Verdict != engine.VerdictPass {
			return generatedTrial{verdict: res.Verdict}, nil
		}

		values[i] = res.Value
		states[i] = shrinkengine.ArgState{Spec: spec, Value: res.Value, Pool: pool, Model: model}
	}

	return generatedTrial{values: values, states: states, verdict: engine.VerdictPass}, nil
}

// safeAlloc calls spec.Alloc, converting a recovered panic (most commonly
// an out-of-memory makeslice/makemap failure from a generator that
// over-asks for size) into an allocation-failure error instead of
// crashing the whole run, per spec §7's "any memory acquisition failure"
// clause.
func safeAlloc(spec engine.ArgSpec, r bitstream.BitReader) (result engine.GenResult, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = ptesterr.AllocationFailure(fmt.Sprintf("generator %q panicked: %v", spec.Name, rec))
		}
	}()

	return spec.Alloc(r, spec.Env), nil
}

func tupleHash(states []shrinkengine.ArgState) uint64 {
	hs := make([]uint64, len(states))
	for i, st := range states {
		hs[i] = shrinkengine.ArgHash(st.Spec, st.Value, st.Pool)
	}

	return hash.Uint64s(hs...)
}

// invokePostTrialWithRepeat calls the post-trial hook, honoring `repeat`
// (re-invoke the property under the same arguments and ask again,
// indefinitely) and `repeat-once` (re-invoke exactly once more, then
// return whatever the hook answers next) per spec §4.8. *verdict is
// updated in place to whichever property call's outcome is final.
func invokePostTrialWithRepeat(cfg engine.RunConfig, env hooks.Envelope, i int, verdict *engine.Verdict, values []any) (hooks.Outcome, error) {
	for {
		out, err := cfg.Hooks.InvokePostTrial(env, hooks.PostTrialData{
			TrialIndex: i, Outcome: toTrialOutcome(*verdict), Args: values,
		})
		if err != nil {
			return hooks.Error, err
		}

		switch out {
		case hooks.Repeat:
			*verdict = cfg.Property(values)
		case hooks.RepeatOnce:
			*verdict = cfg.Property(values)

			return cfg.Hooks.InvokePostTrial(env, hooks.PostTrialData{
				TrialIndex: i, Outcome: toTrialOutcome(*verdict), Args: values,
			})
		default:
			return out, nil
		}
	}
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

// runProperty invokes the property directly, or — when fork mode is
// enabled — through an isolated re-exec'd child that regenerates the same
// trial deterministically from trialSeed (spec §4.7).
func runProperty(ctx context.Context, cfg engine.RunConfig, trialSeed uint64, trialIndex int, values []any) (engine.Verdict, error) {
	if !cfg.Fork.Enable {
		return cfg.Property(values), nil
	}

	isoCfg := isolate.Config{
		PollTimeout: time.Duration(cfg.Fork.TimeoutMS) * time.Millisecond,
		ExitTimeout: time.Duration(cfg.Fork.ExitTimeoutMS) * time.Millisecond,
		ExtraEnv: []string{
			trialSeedEnv + "=" + strconv.FormatUint(trialSeed, 10),
			trialIndexEnv + "=" + strconv.Itoa(trialIndex),
		},
	}

	if cfg.Fork.Signal != 0 {
		isoCfg.Signal = signalFromInt(cfg.Fork.Signal)
	}

	result, err := isolate.Run(ctx, isoCfg, []string{os.Args[0]})
	if err != nil {
		return engine.VerdictError, err
	}

	return verdictFromIsolateResult(result), nil
}

func verdictFromIsolateResult(r isolate.Result) engine.Verdict {
	switch r {
	case isolate.ResultPass:
		return engine.VerdictPass
	case isolate.ResultSkip:
		return engine.VerdictSkip
	case isolate.ResultError:
		return engine.VerdictError
	default:
		return engine.VerdictFail
	}
}

// shrinkFailure hands a failing trial's argument states to the shrink
// engine and returns the final (possibly improved) argument values.
func shrinkFailure(cfg engine.RunConfig, env hooks.Envelope, states []shrinkengine.ArgState) ([]any, error) {
	eng := &shrinkengine.Engine{
		Dedup:    bloom.New(bloom.Options{}),
		Hooks:    cfg.Hooks,
		Env:      env,
		ModelRNG: bitstream.NewPCGSource(env.RunSeed),
	}

	final, err := eng.Run(states, cfg.Property)
	if err != nil {
		return nil, err
	}

	out := make([]any, len(final))
	for i, st := range final {
		out[i] = st.Value
	}

	return out, nil
}

func signalFromInt(sig int) os.Signal {
	return syscall.Signal(sig)
}

// runIsolatedChild regenerates the single trial named by trialSeedEnv and
// reports its verdict through the isolation pipe. It always terminates the
// process.
func runIsolatedChild(cfg engine.RunConfig) {
	seed, _ := strconv.ParseUint(os.Getenv(trialSeedEnv), 10, 64)
	trialIndex, _ := strconv.Atoi(os.Getenv(trialIndexEnv))

	trial, err := generateTrial(cfg, seed)

	var verdict engine.Verdict

	switch {
	case err != nil:
		verdict = engine.VerdictError
	case trial.verdict != engine.VerdictPass:
		verdict = trial.verdict
	default:
		if _, hookErr := cfg.Hooks.InvokePostFork(hooks.Envelope{PropertyName: cfg.Name, RunSeed: cfg.Seed},
			hooks.PostForkData{TrialIndex: trialIndex}); hookErr != nil {
			verdict = engine.VerdictError
		} else {
			verdict = cfg.Property(trial.values)
		}
	}

	_ = isolate.RunChild(func() isolate.Result {
		switch verdict {
		case engine.VerdictFail:
			return isolate.ResultFail
		case engine.VerdictSkip:
			return isolate.ResultSkip
		case engine.VerdictError:
			return isolate.ResultError
		default:
			return isolate.ResultPass
		}
	})

	os.Exit(0)
}
