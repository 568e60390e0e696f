// Package bloom implements the engine's approximate-membership "have I seen
// this tuple?" check (spec §3): a two-level dynamic Bloom filter used by the
// trial scheduler to suppress duplicate argument tuples (spec §4.6).
//
// Two levels: a fixed array of 2^K top blocks selected by the high bits of
// the lookup key, and within each top block a linked chain of bit arrays
// that grows (doubling) whenever the current head array looks saturated.
// Lookups OR across the whole chain for a top block, so growth never loses
// previously recorded entries; false positives are permitted (testable
// property 7), false negatives are not.
package bloom

import "math/bits"

const (
	// DefaultTopBits is the default number of bits used to select a top
	// block (2^9 = 512 top blocks).
	DefaultTopBits = 9
	// DefaultMinBits is the default base-2 logarithm of the size, in
	// bits, of a freshly allocated chain node (2^9 = 512 bits).
	DefaultMinBits = 9
	// DefaultHashesPerBlock is the number of bit positions set/checked
	// per entry within a single chain node.
	DefaultHashesPerBlock = 4
)

// Filter is a two-level dynamic Bloom filter.
type Filter struct {
	topBits    uint
	minBits    uint
	numHashes  int
	top        []*node
}

// node is one bit array in a top block's chain.
type node struct {
	bits []byte
	nbit uint64 // capacity in bits; always a power of two
	next *node
}

// Options configures a Filter. Zero values fall back to the defaults.
type Options struct {
	TopBits        uint
	MinBits        uint
	HashesPerBlock int
}

// New creates a Filter with the given options (or spec defaults: 9 top
// bits, 9 minimum per-filter bits, 4 hashes per block).
func New(opts Options) *Filter {
	if opts.TopBits == 0 {
		opts.TopBits = DefaultTopBits
	}

	if opts.MinBits == 0 {
		opts.MinBits = DefaultMinBits
	}

	if opts.HashesPerBlock == 0 {
		opts.HashesPerBlock = DefaultHashesPerBlock
	}

	return &Filter{
		topBits:   opts.TopBits,
		minBits:   opts.MinBits,
		numHashes: opts.HashesPerBlock,
		top:       make([]*node, uint64(1)<<opts.TopBits),
	}
}

func newNode(nbit uint64) *node {
	return &node{bits: make([]byte, (nbit+7)/8), nbit: nbit}
}

// topIndex selects the top block for a 64-bit key using its high bits.
func (f *Filter) topIndex(key uint64) uint64 {
	if f.topBits == 0 {
		return 0
	}

	return key >> (64 - f.topBits)
}

// positions derives numHashes bit positions within a node of the given
// capacity, mixing the key with an index-dependent multiplier (a cheap
// stand-in for independent hash functions; good enough for an approximate
// membership check whose false-positive rate is not load-bearing here).
func (f *Filter) positions(key uint64, nbit uint64) []uint64 {
	pos := make([]uint64, f.numHashes)

	h := key
	for i := 0; i < f.numHashes; i++ {
		h = splitmix64(h + uint64(i)*0x9E3779B97F4A7C15)
		pos[i] = h % nbit
	}

	return pos
}

func splitmix64(x uint64) uint64 {
	x += 0x9E3779B97F4A7C15
	x = (x ^ (x >> 30)) * 0xBF58476D1CE4E5B9
	x = (x ^ (x >> 27)) * 0x94D049BB133111EB
	x ^= x >> 31

	return x
}

func (n *node) allSet(pos []uint64) bool {
	for _, p := range pos {
		if n.bits[p/8]&(1<<(p%8)) == 0 {
			return false
		}
	}

	return true
}

func (n *node) setAll(pos []uint64) {
	for _, p := range pos {
		n.bits[p/8] |= 1 << (p % 8)
	}
}

// markAndReport sets every bit in pos, reporting whether any of them was
// not already set beforehand.
func (n *node) markAndReport(pos []uint64) bool {
	anyNew := false

	for _, p := range pos {
		if n.bits[p/8]&(1<<(p%8)) == 0 {
			anyNew = true
		}

		n.bits[p/8] |= 1 << (p % 8)
	}

	return anyNew
}

// Lookup reports whether key has (very likely, or certainly) been marked
// before, without mutating the filter.
func (f *Filter) Lookup(key uint64) bool {
	idx := f.topIndex(key)
	for n := f.top[idx]; n != nil; n = n.next {
		if n.allSet(f.positions(key, n.nbit)) {
			return true
		}
	}

	return false
}

// MarkSeen reports whether key had already been marked, and records it as
// seen for future lookups. The front (head) filter for key's top block is
// always marked, regardless of whether key was already present anywhere
// in the chain (mirroring the reference bloom filter's "only mark in the
// front filter" rule). When marking the front filter sets no new bit —
// every one of this entry's positions was already set there — and at
// least half of that front filter's bits are set, it is considered
// saturated, and a fresh, doubled-capacity filter is prepended ahead of
// it, so later distinct entries land in a less saturated filter while the
// old one remains valid for existing lookups. Re-marking a key that a
// sparse front filter already holds does not grow the chain.
func (f *Filter) MarkSeen(key uint64) bool {
	idx := f.topIndex(key)
	seen := f.Lookup(key)

	head := f.top[idx]
	if head == nil {
		head = newNode(uint64(1) << f.minBits)
		f.top[idx] = head
	}

	anyNew := head.markAndReport(f.positions(key, head.nbit))

	var setBits uint64
	for _, b := range head.bits {
		setBits += uint64(bits.OnesCount8(b))
	}

	if !anyNew && setBits*2 >= head.nbit {
		grown := newNode(head.nbit * 2)
		grown.next = head
		grown.setAll(f.positions(key, grown.nbit))
		f.top[idx] = grown
	}

	return seen
}
