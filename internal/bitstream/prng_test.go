package bitstream

import (
	"testing"

	"github.com/seleniaproject/proptest/internal/testkit/assert"
)

// TestPCGSource_ReseedDeterministic exercises testable property 2 from
// spec §8: reseeding with the same 64-bit seed produces the same next
// 64-bit value.
func TestPCGSource_ReseedDeterministic(t *testing.T) {
	s := NewPCGSource(0x0123456789abcdef)
	first := s.Next64()
	second := s.Next64()

	s.Reseed(0x0123456789abcdef)
	assert.Equal(t, s.Next64(), first, "first value after reseed")
	assert.Equal(t, s.Next64(), second, "second value after reseed")
}

func TestPCGSource_DifferentSeedsDiverge(t *testing.T) {
	a := NewPCGSource(1)
	b := NewPCGSource(2)
	assert.NotEqual(t, a.Next64(), b.Next64(), "distinct seeds should (overwhelmingly likely) diverge")
}

func TestPCGSource_SeedReported(t *testing.T) {
	s := NewPCGSource(42)
	assert.Equal(t, s.Seed(), uint64(42))
}
