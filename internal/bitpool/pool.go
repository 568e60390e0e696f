// Package bitpool implements the bit pool (spec §3, §4.2): a recorded,
// re-playable log of random-bit requests used during a generation pass,
// which is mutated by the autoshrink subsystem to drive shrinking.
//
// A Pool satisfies bitstream.BitReader, so generator code draws from a Pool
// exactly the way it draws from a plain bitstream.Buffer — the "generator
// interface" of spec §4.3 never needs to know which one it has.
package bitpool

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/seleniaproject/proptest/internal/bitstream"
)

// Pool is the central object of the core: a packed byte buffer, a
// consumed/filled/limit cursor triple, and the ordered list of requests
// made against it during a generation pass.
type Pool struct {
	buf []byte // packed bytes; bit 0 of buf[0] is the first bit (little-endian)

	consumed uint64 // bits already delivered to the generator
	filled   uint64 // bits materialised from the PRNG so far
	limit    uint64 // once consumed reaches limit, reads return zero

	unbounded bool // true until SetLimit/TruncateTrailingZeroBytes is called

	requests   []uint64 // bit width of each request, in order
	index      []uint64 // prefix-sum offsets; lazily built
	indexDirty bool

	generation uint64

	src bitstream.Source // nil for frozen (shrink-derived) pools
}

// DefaultPoolBits is the default initial allocation, matching the
// original_source reference's DEF_POOL_SIZE in spirit (a modest multiple of
// 64 bits that most generation passes never need to grow beyond).
const DefaultPoolBits = 64 * 8

// New creates a live pool that lazily fills from src as the generator
// consumes bits, growing without bound until explicitly limited.
func New(src bitstream.Source, initialBits uint64) *Pool {
	if initialBits == 0 {
		initialBits = DefaultPoolBits
	}

	p := &Pool{src: src, unbounded: true}
	p.ensureCapacityBits(initialBits)
	p.limit = p.capacityBits()

	return p
}

// Consumed returns the number of bits already delivered to the generator.
func (p *Pool) Consumed() uint64 { return p.consumed }

// Filled returns the number of bits materialised from the PRNG so far.
func (p *Pool) Filled() uint64 { return p.filled }

// Limit returns the current limit; reads beyond it return zero bits.
func (p *Pool) Limit() uint64 { return p.limit }

// Generation returns the shrink generation counter (carried over by Clone,
// incremented by ResetForReplay).
func (p *Pool) Generation() uint64 { return p.generation }

// RequestCount returns the number of recorded requests.
func (p *Pool) RequestCount() int { return len(p.requests) }

// RequestWidth returns the bit width of request i.
func (p *Pool) RequestWidth(i int) uint64 { return p.requests[i] }

// RequestOffset returns the bit offset of request i's payload, building the
// prefix-sum index lazily on first access (spec §4.2 "Build-index").
func (p *Pool) RequestOffset(i int) uint64 {
	p.BuildIndex()

	return p.index[i]
}

// BuildIndex computes the prefix-sum array over the request list if it is
// stale. Idempotent and cheap to call repeatedly.
func (p *Pool) BuildIndex() {
	if !p.indexDirty && len(p.index) == len(p.requests) {
		return
	}

	p.index = make([]uint64, len(p.requests))

	var off uint64
	for i, w := range p.requests {
		p.index[i] = off
		off += w
	}

	p.indexDirty = false
}

// capacityBits returns the buffer's capacity in bits.
func (p *Pool) capacityBits() uint64 { return uint64(len(p.buf)) * 8 }

func ceilTo64(bits uint64) uint64 { return (bits + 63) / 64 * 64 }

// ensureCapacityBits grows the backing buffer (zero-filled) so it can hold
// at least `bits` bits, aligned to a multiple of 64 bits (spec §3). If the
// pool is still unbounded, the limit grows to track the new capacity.
func (p *Pool) ensureCapacityBits(bits uint64) {
	capBits := ceilTo64(bits)
	capBytes := int(capBits / 8)

	if len(p.buf) < capBytes {
		grown := make([]byte, capBytes)
		copy(grown, p.buf)
		p.buf = grown
	}

	if p.unbounded && p.limit < p.capacityBits() {
		p.limit = p.capacityBits()
	}
}

// ensureFilled extends the materialised PRNG tail by 64-bit chunks until
// at least `target` bits are filled (spec §4.2: "lazily... up to
// consumed + n"). Frozen pools (src == nil) zero-extend instead, which is
// the mechanism that makes a shrunk/truncated pool read as zero beyond
// what was actually recorded.
func (p *Pool) ensureFilled(target uint64) {
	if target <= p.filled {
		return
	}

	aligned := ceilTo64(target)
	p.ensureCapacityBits(aligned)

	for p.filled < aligned {
		var chunk uint64
		if p.src != nil {
			chunk = p.src.Next64()
		}

		binary.LittleEndian.PutUint64(p.buf[p.filled/8:], chunk)
		p.filled += 64
	}
}

// appendRequestBits is the shared implementation behind ReadBits and
// ReadBulk (spec §4.2 "Append-request-bits").
func (p *Pool) appendRequestBits(n uint64, saveRequest bool) uint64 {
	if n == 0 {
		return 0
	}

	if p.consumed == p.limit {
		// Do not extend the request list; the pool has been exhausted.
		return 0
	}

	if p.consumed+n > p.limit {
		n = p.limit - p.consumed
	}

	if n == 0 {
		return 0
	}

	p.ensureFilled(p.consumed + n)

	v := p.readBitsAtInternal(p.consumed, n)
	p.consumed += n

	if saveRequest {
		p.requests = append(p.requests, n)
		p.indexDirty = true
	}

	return v
}

// ReadBits implements bitstream.BitReader for widths up to 64 bits.
func (p *Pool) ReadBits(n uint8) uint64 {
	return p.appendRequestBits(uint64(n), true)
}

// ReadBulk implements bitstream.BitReader for widths above 64 bits. The
// whole bulk draw is recorded as a single request (spec: "each request is a
// bit-count recording one call the generator made"), even though servicing
// it may span many 64-bit PRNG fills.
func (p *Pool) ReadBulk(dst []byte, nbits uint64) {
	for i := range dst {
		dst[i] = 0
	}

	if nbits == 0 {
		return
	}

	if p.consumed == p.limit {
		return
	}

	avail := nbits
	if p.consumed+avail > p.limit {
		avail = p.limit - p.consumed
	}

	if avail == 0 {
		return
	}

	p.ensureFilled(p.consumed + avail)
	copyBits(dst, 0, p.buf, p.consumed, avail)
	p.consumed += avail
	p.requests = append(p.requests, avail)
	p.indexDirty = true
}

// readBitsAtInternal reads up to 64 bits at an arbitrary bit offset,
// little-endian (bit 0 = LSB), without bounds-extending the buffer.
func (p *Pool) readBitsAtInternal(offset, size uint64) uint64 {
	var v uint64

	for i := uint64(0); i < size; i++ {
		bitPos := offset + i
		byteIdx := bitPos / 8

		if int(byteIdx) >= len(p.buf) {
			break
		}

		if p.buf[byteIdx]&(1<<(bitPos%8)) != 0 {
			v |= 1 << i
		}
	}

	return v
}

// ReadBitsAt reads size bits (1..64) at the given bit offset. Used
// exclusively by mutation tactics (spec §4.2).
func (p *Pool) ReadBitsAt(offset uint64, size uint8) uint64 {
	return p.readBitsAtInternal(offset, uint64(size))
}

// WriteBitsAt writes the low `size` bits of v at the given bit offset,
// growing the buffer if needed. Used exclusively by mutation tactics.
func (p *Pool) WriteBitsAt(offset uint64, size uint8, v uint64) {
	p.ensureCapacityBits(offset + uint64(size))

	for i := uint8(0); i < size; i++ {
		bitPos := offset + uint64(i)
		byteIdx := bitPos / 8
		bitIdx := bitPos % 8

		if (v>>i)&1 != 0 {
			p.buf[byteIdx] |= 1 << bitIdx
		} else {
			p.buf[byteIdx] &^= 1 << bitIdx
		}
	}
}

// RawBytes exposes the packed buffer directly. The autoshrink tactics
// package uses this to restructure bit layout (e.g. compacting a buffer
// after dropping a request) in ways the offset-based accessors cannot
// express, and the shrink engine reads it to hash a pool's consumed bytes
// for dedup; bit-level edits should use ReadBitsAt/WriteBitsAt.
func (p *Pool) RawBytes() []byte { return p.buf }

// Rebuild replaces the pool's buffer content wholesale and resets the
// filled/consumed/limit cursors to match, used by mutation tactics that
// restructure the bit layout rather than edit bits in place.
func (p *Pool) Rebuild(data []byte, filledBits uint64) {
	p.buf = data
	p.filled = filledBits

	if p.consumed > filledBits {
		p.consumed = filledBits
	}

	if p.limit > filledBits {
		p.limit = filledBits
	}

	p.unbounded = false
}

// CopyBits copies nbits bits from src (starting at srcOffset) into dst
// (starting at dstOffset), little-endian bit layout on both sides. Exported
// for the autoshrink tactics package, which builds replacement buffers
// request by request.
func CopyBits(dst []byte, dstOffset uint64, src []byte, srcOffset, nbits uint64) {
	copyBits(dst, dstOffset, src, srcOffset, nbits)
}

// copyBits copies nbits bits from src (starting at srcOffset) into dst
// (starting at dstOffset), little-endian bit layout on both sides.
func copyBits(dst []byte, dstOffset uint64, src []byte, srcOffset, nbits uint64) {
	for i := uint64(0); i < nbits; i++ {
		sBit := srcOffset + i
		sByte := sBit / 8

		if int(sByte) >= len(src) {
			continue
		}

		if src[sByte]&(1<<(sBit%8)) == 0 {
			continue
		}

		dBit := dstOffset + i
		dst[dBit/8] |= 1 << (dBit % 8)
	}
}

// SetLimit fixes the limit explicitly and marks the pool bounded, so future
// capacity growth no longer raises it automatically. Used by the autoshrink
// mutation tactics (spec §4.4: "After mutation, limit is tightened").
func (p *Pool) SetLimit(bits uint64) {
	p.limit = bits
	p.unbounded = false
}

// TruncateTrailingZeroBytes shrinks `filled` to the byte past the last
// non-zero byte and clamps `limit` to the result (spec §4.2). This is the
// first operation applied to every candidate pool before it reaches the
// generator: fewer materialised bits signals a simpler instance. Applying
// it twice in a row is a no-op (testable property 8).
func (p *Pool) TruncateTrailingZeroBytes() {
	byteLen := (p.filled + 7) / 8

	last := -1

	for i := int64(byteLen) - 1; i >= 0; i-- {
		if p.buf[i] != 0 {
			last = int(i)

			break
		}
	}

	if last >= 0 {
		p.filled = uint64(last+1) * 8
	} else {
		p.filled = 0
	}

	if p.limit > p.filled {
		p.limit = p.filled
	}

	p.unbounded = false
}

// ResetForReplay rewinds consumed to zero and clears the request list, so
// the pool can be handed to a generator again from the start, recording a
// fresh request list as it replays (spec §4.5 step 4). Buffer content,
// filled, and limit are left untouched; the generation counter advances.
func (p *Pool) ResetForReplay() {
	p.consumed = 0
	p.requests = p.requests[:0]
	p.index = nil
	p.indexDirty = true
	p.generation++
}

// Clone returns a frozen (no live PRNG source) deep copy suitable as a
// mutation scratch pad: independent buffer and request list, same cursor
// state as the receiver.
func (p *Pool) Clone() *Pool {
	buf := make([]byte, len(p.buf))
	copy(buf, p.buf)

	reqs := make([]uint64, len(p.requests))
	copy(reqs, p.requests)

	return &Pool{
		buf:        buf,
		consumed:   p.consumed,
		filled:     p.filled,
		limit:      p.limit,
		unbounded:  false,
		requests:   reqs,
		generation: p.generation,
		src:        nil,
	}
}

// DumpOptions controls which optional sections Dump renders.
type DumpOptions struct {
	IncludeRaw      bool
	IncludeRequests bool
}

// Dump writes the bit-pool debugging format described in spec §6: a header
// with generation/request-count/consumed/limit, then (in order) the
// optional raw byte buffer in 16-byte hex rows with a trailing
// `xx/n`-style remainder, then the optional per-request listing (small
// requests as decimal + hex, large requests as a hex-byte block).
func (p *Pool) Dump(w io.Writer, opts DumpOptions) error {
	if _, err := fmt.Fprintf(w, "generation=%d requests=%d consumed=%d limit=%d\n",
		p.generation, len(p.requests), p.consumed, p.limit); err != nil {
		return err
	}

	if opts.IncludeRaw {
		if err := dumpRawBytes(w, p.buf, p.filled); err != nil {
			return err
		}
	}

	if opts.IncludeRequests {
		if err := p.dumpRequests(w); err != nil {
			return err
		}
	}

	return nil
}

func dumpRawBytes(w io.Writer, buf []byte, filledBits uint64) error {
	fullBytes := int(filledBits / 8)
	remainderBits := int(filledBits % 8)

	for row := 0; row*16 < fullBytes; row++ {
		start := row * 16
		end := start + 16

		if end > fullBytes {
			end = fullBytes
		}

		for i := start; i < end; i++ {
			if _, err := fmt.Fprintf(w, "%02x", buf[i]); err != nil {
				return err
			}
		}

		if _, err := fmt.Fprintln(w); err != nil {
			return err
		}
	}

	if remainderBits > 0 && fullBytes < len(buf) {
		if _, err := fmt.Fprintf(w, "%02x/%d\n", buf[fullBytes], remainderBits); err != nil {
			return err
		}
	}

	return nil
}

func (p *Pool) dumpRequests(w io.Writer) error {
	p.BuildIndex()

	for i, width := range p.requests {
		offset := p.index[i]

		if width <= 64 {
			v := p.ReadBitsAt(offset, uint8(width))
			if _, err := fmt.Fprintf(w, "req[%d] width=%d value=%d (0x%x)\n", i, width, v, v); err != nil {
				return err
			}

			continue
		}

		if _, err := fmt.Fprintf(w, "req[%d] width=%d (large)\n", i, width); err != nil {
			return err
		}

		byteLen := int((width + 7) / 8)
		scratch := make([]byte, byteLen)
		copyBits(scratch, 0, p.buf, offset, width)

		for row := 0; row*16 < byteLen; row++ {
			start := row * 16
			end := start + 16

			if end > byteLen {
				end = byteLen
			}

			for j := start; j < end; j++ {
				if _, err := fmt.Fprintf(w, "%02x", scratch[j]); err != nil {
					return err
				}
			}

			if _, err := fmt.Fprintln(w); err != nil {
				return err
			}
		}
	}

	return nil
}

var _ bitstream.BitReader = (*Pool)(nil)
