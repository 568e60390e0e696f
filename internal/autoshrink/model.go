// Package autoshrink implements the weighted mutation-tactic model and the
// five bit-pool mutation tactics that drive shrinking (spec §4.4).
//
// The model tracks one 8-bit weight per tactic, draws a tactic (and a
// separate drop-vs-mutate decision) for each shrink attempt, and adjusts
// weights from feedback reported by the shrink engine after each trial.
package autoshrink

import (
	"math/bits"

	"github.com/seleniaproject/proptest/internal/bitstream"
)

// Tactic identifies one of the five mutation strategies.
type Tactic int

const (
	TacticDrop Tactic = iota
	TacticShift
	TacticMask
	TacticSwap
	TacticSub

	numTactics
)

func (t Tactic) String() string {
	switch t {
	case TacticDrop:
		return "drop"
	case TacticShift:
		return "shift"
	case TacticMask:
		return "mask"
	case TacticSwap:
		return "swap"
	case TacticSub:
		return "sub"
	default:
		return "unknown"
	}
}

// Weight bounds (spec §3: "drop weight in [0x10, 0xA0], the others in
// [0x08, 0x80]").
const (
	dropWeightMin = 0x10
	dropWeightMax = 0xA0

	otherWeightMin = 0x08
	otherWeightMax = 0x80
)

func boundsFor(t Tactic) (min, max int32) {
	if t == TacticDrop {
		return dropWeightMin, dropWeightMax
	}

	return otherWeightMin, otherWeightMax
}

// Model holds the per-tactic weights and the bookkeeping needed to decide
// and then score one shrink attempt.
type Model struct {
	weights [numTactics]int32
	rng     bitstream.Source

	// forced overrides the next Choose call; test-only (spec §4.4: "A
	// test-only override bypasses both draws"), confirmed unused by any
	// production code path.
	forced       bool
	forcedDrop   bool
	forcedTactic Tactic
}

// NewModel creates a model with every tactic at the midpoint of its range.
func NewModel(rng bitstream.Source) *Model {
	m := &Model{rng: rng}

	for t := Tactic(0); t < numTactics; t++ {
		min, max := boundsFor(t)
		m.weights[t] = (min + max) / 2
	}

	return m
}

// ForceNext overrides the next Choose call to return exactly (tactic, drop),
// bypassing both weighted draws. Exists solely so tests can drive a
// specific tactic deterministically; no production code path calls it.
func (m *Model) ForceNext(tactic Tactic, drop bool) {
	m.forced = true
	m.forcedTactic = tactic
	m.forcedDrop = drop
}

// Weight returns the current weight for a tactic.
func (m *Model) Weight(t Tactic) int32 { return m.weights[t] }

// Choose picks a tactic and a drop-vs-mutate decision for the next shrink
// attempt (spec §4.4 paragraph 1). requestCount clamps how eagerly drop is
// favoured once a pool holds few requests.
func (m *Model) Choose(requestCount int) (tactic Tactic, drop bool) {
	if m.forced {
		m.forced = false

		return m.forcedTactic, m.forcedDrop
	}

	mutate := m.drawMutateTactic()
	drop = m.drawDropDecision(requestCount)

	if drop {
		return TacticDrop, true
	}

	return mutate, false
}

// drawMutateTactic draws among shift/mask/swap/sub, weighted by their
// current weights (spec: "sum of the non-drop weights").
func (m *Model) drawMutateTactic() Tactic {
	var sum int32
	for t := TacticShift; t < numTactics; t++ {
		sum += m.weights[t]
	}

	if sum <= 0 {
		return TacticShift
	}

	draw := int32(m.rng.Next64() % uint64(sum))

	var acc int32
	for t := TacticShift; t < numTactics; t++ {
		acc += m.weights[t]
		if draw < acc {
			return t
		}
	}

	return TacticSub
}

// drawDropDecision draws independently, scaled against the drop weight and
// clamped to 8x the current request count (spec: "an independent draw,
// scaled against the drop weight, additionally clamped to 8x the current
// request count").
func (m *Model) drawDropDecision(requestCount int) bool {
	threshold := m.weights[TacticDrop]

	if bound := int32(requestCount) * 8; requestCount > 0 && threshold > bound {
		threshold = bound
	}

	if threshold <= 0 {
		return false
	}

	draw := int32(m.rng.Next64() % 0x100)

	return draw < threshold
}

// Reward nudges a tactic's weight by delta, clamped to its bounds.
func (m *Model) Reward(t Tactic, delta int32) {
	min, max := boundsFor(t)

	w := m.weights[t] + delta
	if w < min {
		w = min
	}

	if w > max {
		w = max
	}

	m.weights[t] = w
}

// CommitReward applies the engine's +3 "this mutation was committed"
// reward (spec §4.5 step 7).
func (m *Model) CommitReward(t Tactic) { m.Reward(t, 3) }

// OutcomeReward applies the engine's ±8 post-outcome adjustment (spec
// §4.5 step 8, §4.4 "Feedback"): tactics that changed bits and led to a
// failing trial are rewarded; tactics tried that made no change and the
// trial still passed are de-emphasised.
func (m *Model) OutcomeReward(t Tactic, changed bool, failed bool) {
	if changed && failed {
		m.Reward(t, 8)

		return
	}

	if !changed && !failed {
		m.Reward(t, -8)
	}
}

// changeBudget computes how many effective mutations a pass should attempt
// (spec §4.4: "1 + popcount(random(k)) effective changes, where k grows
// with log2(request_count)"), clamped down for small pools so the budget
// never exceeds the number of requests available to mutate.
func changeBudget(rng bitstream.Source, requestCount int) int {
	if requestCount <= 0 {
		return 1
	}

	k := bits.Len(uint(requestCount))
	if k < 1 {
		k = 1
	}

	if k > 64 {
		k = 64
	}

	draw := rng.Next64() & ((uint64(1) << uint(k)) - 1)
	budget := 1 + bits.OnesCount64(draw)

	if requestCount < budget {
		budget = requestCount
	}

	return budget
}

// maxRetriesFor bounds the number of no-op draws a mutation pass tolerates
// before giving up (spec: "up to 10x that many retries to account for
// no-op draws").
func maxRetriesFor(budget int) int { return budget * 10 }
