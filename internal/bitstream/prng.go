// Package bitstream provides the deterministic 64-bit random source and the
// bit-width-addressable buffer built on top of it (spec §4.1).
//
// The PRNG is treated as a black box by the rest of the engine: reseed from
// a 64-bit value, then produce 64 bits at a time. Spec §1 explicitly
// excludes the choice of algorithm from the core's scope ("any
// well-distributed 64-bit deterministic PRNG suffices — the engine only
// depends on the reset-from-seed contract"); like the teacher
// (`internal/testrunner/prop`, `internal/testrunner/fuzz`), this reaches for
// the standard library instead of a third-party CSPRNG.
package bitstream

import "math/rand/v2"

// Source is the minimal contract the rest of the engine depends on: reset
// from a 64-bit seed, then produce 64 bits at a time. Any implementation
// satisfying the reset-from-seed replay contract (testable property 2 in
// spec §8) is interchangeable.
type Source interface {
	// Reseed resets the stream so that the sequence of Next64 calls that
	// follows is a pure function of seed, on any platform.
	Reseed(seed uint64)
	// Next64 produces the next 64 bits of the stream.
	Next64() uint64
}

// PCGSource is the default Source, backed by math/rand/v2's PCG generator.
// PCG is deterministic given its seed pair and produces a 64-bit stream
// directly, which matches the engine's per-call width exactly.
type PCGSource struct {
	seed uint64
	pcg  *rand.PCG
}

// NewPCGSource creates a Source reseeded to the given 64-bit value.
func NewPCGSource(seed uint64) *PCGSource {
	s := &PCGSource{}
	s.Reseed(seed)

	return s
}

// Reseed implements Source. PCG takes two 64-bit seed words; deriving the
// second deterministically from the first keeps the public contract a
// single 64-bit seed while still giving the generator its full state.
func (s *PCGSource) Reseed(seed uint64) {
	s.seed = seed
	s.pcg = rand.NewPCG(seed, seed^0x9E3779B97F4A7C15)
}

// Next64 implements Source.
func (s *PCGSource) Next64() uint64 {
	return s.pcg.Uint64()
}

// Seed returns the seed this source was last reseeded with.
func (s *PCGSource) Seed() uint64 { return s.seed }
