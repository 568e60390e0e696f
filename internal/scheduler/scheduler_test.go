package scheduler_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/seleniaproject/proptest/internal/bitstream"
	"github.com/seleniaproject/proptest/internal/engine"
	"github.com/seleniaproject/proptest/internal/scheduler"
	"github.com/seleniaproject/proptest/internal/testkit/assert"
)

func byteArgSpec() engine.ArgSpec {
	return engine.ArgSpec{
		Name: "x",
		Alloc: func(r bitstream.BitReader, env any) engine.GenResult {
			return engine.GenResult{Value: byte(r.ReadBits(8)), Verdict: engine.VerdictPass}
		},
		Autoshrink: engine.AutoshrinkConfig{Enable: true},
	}
}

// wideArgSpec draws a full 64-bit value. Its dedup key (the consumed pool
// bytes, with no user Hash) spans a 2^64 space rather than byteArgSpec's
// 2^8, which keeps trial counts exact in tests that assert a fixed
// Passes/Skips count: with only 256 distinct byte values, a few dozen
// trials hit a dedup collision with near certainty, and a deduped trial
// never reaches the property at all.
func wideArgSpec() engine.ArgSpec {
	return engine.ArgSpec{
		Name: "x",
		Alloc: func(r bitstream.BitReader, env any) engine.GenResult {
			return engine.GenResult{Value: r.ReadBits(64), Verdict: engine.VerdictPass}
		},
		Autoshrink: engine.AutoshrinkConfig{Enable: true},
	}
}

// TestScheduler_S1_ShrinksCounterexampleToFortyTwo mirrors spec §8 scenario
// S1: p(x: uint8) = x < 42, run seed 0x0123456789abcdef, trials 100 — the
// run must fail and the reported counterexample must be exactly 42.
func TestScheduler_S1_ShrinksCounterexampleToFortyTwo(t *testing.T) {
	cfg := engine.RunConfig{
		Name:   "lt42",
		Args:   []engine.ArgSpec{byteArgSpec()},
		Trials: 100,
		Seed:   0x0123456789abcdef,
		Property: func(args []any) engine.Verdict {
			if args[0].(byte) < 42 {
				return engine.VerdictPass
			}

			return engine.VerdictFail
		},
	}

	result := scheduler.Run(context.Background(), cfg)

	assert.Equal(t, engine.ResultFail, result.Code)
	assert.True(t, result.Counters.Failures >= 1)
	assert.Len(t, result.Counterexample, 1)

	final := result.Counterexample[0].(byte)
	assert.Equal(t, byte(42), final, "counterexample must shrink to exactly 42")
}

// TestScheduler_S3_AllPassPropertyReportsOK mirrors spec §8 scenario S3.
func TestScheduler_S3_AllPassPropertyReportsOK(t *testing.T) {
	cfg := engine.RunConfig{
		Name:   "alwaysTrue",
		Args:   []engine.ArgSpec{wideArgSpec()},
		Trials: 50,
		Seed:   1,
		Property: func(args []any) engine.Verdict {
			return engine.VerdictPass
		},
	}

	result := scheduler.Run(context.Background(), cfg)

	assert.Equal(t, engine.ResultOK, result.Code)
	assert.Equal(t, uint64(50), result.Counters.Passes)
	assert.Equal(t, uint64(0), result.Counters.Failures)
	assert.Equal(t, uint64(0), result.Counters.Skips)
	assert.Equal(t, uint64(0), result.Counters.Duplicates)
}

// TestScheduler_S4_AlwaysSkipReportsSkip mirrors spec §8 scenario S4.
func TestScheduler_S4_AlwaysSkipReportsSkip(t *testing.T) {
	cfg := engine.RunConfig{
		Name:   "alwaysSkip",
		Args:   []engine.ArgSpec{wideArgSpec()},
		Trials: 7,
		Seed:   2,
		Property: func(args []any) engine.Verdict {
			return engine.VerdictSkip
		},
	}

	result := scheduler.Run(context.Background(), cfg)

	assert.Equal(t, engine.ResultSkip, result.Code)
	assert.Equal(t, uint64(7), result.Counters.Skips)
}

// bytesArgSpec generates a short byte slice: a 3-bit count (0-7) followed
// by that many 8-bit draws, the smallest self-describing variable-length
// autoshrink generator that can exercise the drop tactic.
func bytesArgSpec() engine.ArgSpec {
	return engine.ArgSpec{
		Name: "s",
		Alloc: func(r bitstream.BitReader, env any) engine.GenResult {
			n := int(r.ReadBits(3))
			out := make([]byte, n)

			for i := range out {
				out[i] = byte(r.ReadBits(8))
			}

			return engine.GenResult{Value: out, Verdict: engine.VerdictPass}
		},
		Autoshrink: engine.AutoshrinkConfig{Enable: true},
	}
}

// TestScheduler_S2_ShrinksByteSliceContainingA mirrors spec §8 scenario S2:
// a property that fails whenever the generated bytes contain 'A'. Rather
// than asserting the exact shrunk value (which depends on the autoshrink
// model's tactic choices), this checks the invariant the shrink engine
// guarantees structurally: the reported counterexample still fails.
func TestScheduler_S2_ShrinksByteSliceContainingA(t *testing.T) {
	cfg := engine.RunConfig{
		Name:   "noA",
		Args:   []engine.ArgSpec{bytesArgSpec()},
		Trials: 200,
		Seed:   0xA5A5A5A5,
		Property: func(args []any) engine.Verdict {
			if bytes.Contains(args[0].([]byte), []byte{'A'}) {
				return engine.VerdictFail
			}

			return engine.VerdictPass
		},
	}

	result := scheduler.Run(context.Background(), cfg)
	if result.Code != engine.ResultFail {
		t.Skip("seed never drew an 'A' byte within the trial budget; not a bug in the engine")
	}

	final := result.Counterexample[0].([]byte)
	assert.True(t, bytes.Contains(final, []byte{'A'}), "shrunk counterexample must still fail the property")
}

// TestScheduler_DedupSuppressesRepeatedAlwaysSeeds verifies spec §4.6's
// duplicate-suppression rule: running the same always_seed twice counts
// exactly one duplicate.
func TestScheduler_DedupSuppressesRepeatedAlwaysSeeds(t *testing.T) {
	cfg := engine.RunConfig{
		Name:        "dedup",
		Args:        []engine.ArgSpec{byteArgSpec()},
		Trials:      2,
		Seed:        3,
		AlwaysSeeds: []uint64{99, 99},
		Property: func(args []any) engine.Verdict {
			return engine.VerdictPass
		},
	}

	result := scheduler.Run(context.Background(), cfg)

	assert.Equal(t, uint64(1), result.Counters.Passes)
	assert.Equal(t, uint64(1), result.Counters.Duplicates)
}

// TestScheduler_ConfigurationErrorsReturnErrorWithoutTrials verifies spec
// §7's configuration-error handling: a missing alloc callback is reported
// as a fatal error before any trial runs.
func TestScheduler_ConfigurationErrorsReturnErrorWithoutTrials(t *testing.T) {
	cfg := engine.RunConfig{
		Name:   "badconfig",
		Args:   []engine.ArgSpec{{Name: "x"}}, // no Alloc
		Trials: 10,
		Property: func(args []any) engine.Verdict {
			return engine.VerdictPass
		},
	}

	result := scheduler.Run(context.Background(), cfg)

	assert.Equal(t, engine.ResultError, result.Code)
	assert.Error(t, result.Err)
	assert.Equal(t, uint64(0), result.Counters.Trials)
}

// TestScheduler_ArityMismatchReturnsErrorWithoutTrials verifies spec §7's
// "arity/function mismatch" configuration error: a RunConfig whose
// declared PropertyArity disagrees with the number of supplied Args is
// rejected before any trial runs, the same way a missing alloc is.
func TestScheduler_ArityMismatchReturnsErrorWithoutTrials(t *testing.T) {
	cfg := engine.RunConfig{
		Name:          "aritymismatch",
		Args:          []engine.ArgSpec{byteArgSpec()},
		PropertyArity: 2,
		Trials:        10,
		Property: func(args []any) engine.Verdict {
			return engine.VerdictPass
		},
	}

	result := scheduler.Run(context.Background(), cfg)

	assert.Equal(t, engine.ResultError, result.Code)
	assert.Error(t, result.Err)
	assert.Equal(t, uint64(0), result.Counters.Trials)
}

// TestScheduler_DeterministicAcrossRuns verifies spec §8's determinism
// property: two runs with identical configuration produce identical
// result codes and pass/fail counters.
func TestScheduler_DeterministicAcrossRuns(t *testing.T) {
	newCfg := func() engine.RunConfig {
		return engine.RunConfig{
			Name:   "det",
			Args:   []engine.ArgSpec{byteArgSpec()},
			Trials: 30,
			Seed:   0xfeedface,
			Property: func(args []any) engine.Verdict {
				if args[0].(byte) < 100 {
					return engine.VerdictPass
				}

				return engine.VerdictFail
			},
		}
	}

	r1 := scheduler.Run(context.Background(), newCfg())
	r2 := scheduler.Run(context.Background(), newCfg())

	assert.Equal(t, r1.Code, r2.Code)
	assert.Equal(t, r1.Counters.Passes, r2.Counters.Passes)
	assert.Equal(t, r1.Counters.Failures, r2.Counters.Failures)
}
