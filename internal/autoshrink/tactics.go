package autoshrink

import (
	"github.com/seleniaproject/proptest/internal/bitpool"
	"github.com/seleniaproject/proptest/internal/bitstream"
)

// maxWordBits bounds the in-place tactics (shift, mask, swap, sub) to the
// leading 64 bits of a request: a simplification against the sub-range
// handling described for very wide (>64-bit) requests, traded for a
// considerably simpler and still-correct implementation. Requests at or
// under this width are handled exactly.
const maxWordBits = 64

// Outcome is the result of one full mutation pass: the candidate pool,
// which tactic produced it, and whether anything actually changed.
type Outcome struct {
	Pool    *bitpool.Pool
	Tactic  Tactic
	Dropped bool
	Changed bool
}

// Apply produces one shrink candidate from orig: it asks the model to
// choose a tactic (or a drop), runs the corresponding mutation pass against
// a clone of orig, truncates trailing zero bytes, tightens the limit, and
// resets the clone for replay (spec §4.5 steps 2-3).
func Apply(model *Model, rng bitstream.Source, orig *bitpool.Pool) Outcome {
	tactic, drop := model.Choose(orig.RequestCount())
	candidate := orig.Clone()

	consumedBefore := orig.Consumed()

	var changed bool
	if drop {
		changed = dropPass(rng, candidate)
	} else {
		changed = mutatePass(rng, candidate, tactic)
	}

	candidate.TruncateTrailingZeroBytes()
	tightenLimit(candidate, consumedBefore)
	candidate.ResetForReplay()

	return Outcome{Pool: candidate, Tactic: tactic, Dropped: drop, Changed: changed}
}

// tightenLimit applies "limit is tightened to consumed + (filled -
// consumed)/2" (spec §4.4), using the consumed cursor as it stood when the
// candidate was produced (before ResetForReplay zeroes it).
func tightenLimit(p *bitpool.Pool, consumedBefore uint64) {
	filled := p.Filled()
	if filled <= consumedBefore {
		return
	}

	p.SetLimit(consumedBefore + (filled-consumedBefore)/2)
}

// mutatePass performs a budgeted number of effective in-place changes
// using the chosen tactic, retrying no-op draws up to the configured
// budget (spec §4.4 "A mutation pass performs 1 + popcount(...)").
func mutatePass(rng bitstream.Source, p *bitpool.Pool, tactic Tactic) bool {
	n := p.RequestCount()
	if n == 0 {
		return false
	}

	budget := changeBudget(rng, n)
	retries := maxRetriesFor(budget)

	applied := 0
	changed := false

	for applied < budget && retries > 0 {
		idx := int(rng.Next64() % uint64(n))

		var ok bool
		switch tactic {
		case TacticShift:
			ok = shiftOne(rng, p, idx)
		case TacticMask:
			ok = maskOne(rng, p, idx)
		case TacticSwap:
			ok = swapOne(rng, p, idx)
		case TacticSub:
			ok = subOne(rng, p, idx)
		default:
			ok = false
		}

		if ok {
			applied++
			changed = true
		} else {
			retries--
		}
	}

	return changed
}

func wordWidth(w uint64) uint8 {
	if w > maxWordBits {
		return maxWordBits
	}

	return uint8(w)
}

func widthMask(w uint8) uint64 {
	if w >= 64 {
		return ^uint64(0)
	}

	return (uint64(1) << w) - 1
}

// shiftOne right-shifts a request's payload by 1-4 positions (spec §4.4
// "Shift").
func shiftOne(rng bitstream.Source, p *bitpool.Pool, idx int) bool {
	width := wordWidth(p.RequestWidth(idx))
	if width == 0 {
		return false
	}

	offset := p.RequestOffset(idx)
	v := p.ReadBitsAt(offset, width)

	amount := 1 + rng.Next64()%4
	nv := v >> amount

	if nv == v {
		return false
	}

	p.WriteBitsAt(offset, width, nv)

	return true
}

// maskOne ANDs a request's payload with a random mask built from two
// independent draws OR'd together, then forces at least one bit clear
// (spec §4.4 "Mask").
func maskOne(rng bitstream.Source, p *bitpool.Pool, idx int) bool {
	width := wordWidth(p.RequestWidth(idx))
	if width == 0 {
		return false
	}

	offset := p.RequestOffset(idx)
	v := p.ReadBitsAt(offset, width)

	wm := widthMask(width)
	mask := (rng.Next64() | rng.Next64()) & wm

	clearBit := rng.Next64() % uint64(width)
	mask &^= uint64(1) << clearBit

	nv := v & mask
	if nv == v {
		return false
	}

	p.WriteBitsAt(offset, width, nv)

	return true
}

// subOne subtracts a positive amount, modulo the current value, from a
// request's payload (spec §4.4 "Sub").
func subOne(rng bitstream.Source, p *bitpool.Pool, idx int) bool {
	width := wordWidth(p.RequestWidth(idx))
	if width == 0 {
		return false
	}

	offset := p.RequestOffset(idx)
	v := p.ReadBitsAt(offset, width)

	if v == 0 {
		return false
	}

	amount := uint64(1) + rng.Next64()%v
	nv := v - amount

	if nv == v {
		nv = v - 1
	}

	p.WriteBitsAt(offset, width, nv)

	return true
}

// swapOne finds a later request of the same width whose value is strictly
// smaller, and exchanges the two (spec §4.4 "Swap", small-request case;
// the large-request sub-range variant is covered by the maxWordBits
// simplification noted above).
func swapOne(rng bitstream.Source, p *bitpool.Pool, idx int) bool {
	_ = rng

	n := p.RequestCount()
	width := wordWidth(p.RequestWidth(idx))

	if width == 0 {
		return false
	}

	offset := p.RequestOffset(idx)
	v := p.ReadBitsAt(offset, width)

	for j := idx + 1; j < n; j++ {
		if p.RequestWidth(j) != p.RequestWidth(idx) {
			continue
		}

		otherOffset := p.RequestOffset(j)
		ov := p.ReadBitsAt(otherOffset, width)

		if ov >= v {
			continue
		}

		p.WriteBitsAt(offset, width, ov)
		p.WriteBitsAt(otherOffset, width, v)

		return true
	}

	return false
}

// dropPass removes a random subset of requests from the buffer (always
// including one pre-selected pivot index, each other request independently
// with probability ~1/32), compacting the survivors into a fresh buffer
// (spec §4.4 "Drop"). The destination filled is the surviving bit count.
func dropPass(rng bitstream.Source, p *bitpool.Pool) bool {
	n := p.RequestCount()
	if n == 0 {
		return false
	}

	type span struct{ offset, width uint64 }

	spans := make([]span, n)
	for i := 0; i < n; i++ {
		spans[i] = span{offset: p.RequestOffset(i), width: p.RequestWidth(i)}
	}

	pivot := int(rng.Next64() % uint64(n))

	keep := make([]bool, n)

	anyDropped := false

	for i := 0; i < n; i++ {
		drop := i == pivot
		if !drop {
			drop = rng.Next64()%32 == 0
		}

		keep[i] = !drop
		if drop {
			anyDropped = true
		}
	}

	if !anyDropped {
		return false
	}

	var survivingBits uint64
	for i, s := range spans {
		if keep[i] {
			survivingBits += s.width
		}
	}

	newBuf := make([]byte, (survivingBits+7)/8+8) // padded for 64-bit chunk writes
	src := p.RawBytes()

	var writeOffset uint64

	for i, s := range spans {
		if !keep[i] {
			continue
		}

		bitpool.CopyBits(newBuf, writeOffset, src, s.offset, s.width)
		writeOffset += s.width
	}

	p.Rebuild(newBuf, survivingBits)

	return true
}
