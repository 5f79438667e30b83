// Copyright 2021, The biokit Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE.md file.

package bwt

import "github.com/biokit/sufsort/packed"

// Radix keys are 32-bit words. The high bits hold the next
// symbolsPerWord symbols of a suffix, most significant first; the low
// dollarBits hold the clamped position of the terminator within the
// word's span, or dollarMask if the terminator lies strictly beyond it.
// Unsigned comparison of keys therefore matches lexicographic order with
// the terminator ordered below every symbol.
const (
	wordBits   = 32
	dollarBits = 4
	dollarMask = 1<<dollarBits - 1
)

// symbolsPerWord returns how many symbols one radix word carries.
func symbolsPerWord(symbolBits uint) uint32 {
	return uint32((wordBits - dollarBits) / symbolBits)
}

// radixExtractor produces the radix key of a suffix at a given word
// depth. Implementations exist for single strings, string sets, and the
// index-array views the block sorter operates on.
type radixExtractor interface {
	// extract returns the key of suffix id at word depth w.
	extract(id uint32, w uint32) uint32
}

// textRadices extracts radix keys from the suffixes of a single string.
// The terminator sits at position n.
type textRadices struct {
	text *packed.Stream
	n    uint32
	bits uint
	spw  uint32
}

func newTextRadices(text *packed.Stream) textRadices {
	return textRadices{
		text: text,
		n:    uint32(text.Len()),
		bits: text.SymbolBits(),
		spw:  symbolsPerWord(text.SymbolBits()),
	}
}

func (r textRadices) extract(p uint32, w uint32) uint32 {
	return extractKey(r.text, uint64(r.n), uint64(p)+uint64(w)*uint64(r.spw), r.bits, r.spw)
}

// extractKey builds one radix word from the symbols at [base, base+spw)
// of a string whose terminator is at stream position n. Offsets are
// 64-bit so that concatenated string sets larger than 4 Gi symbols work.
func extractKey(text *packed.Stream, n, base uint64, bits uint, spw uint32) uint32 {
	var key uint32
	dollar := uint32(dollarMask)
	for j := uint32(0); j < spw; j++ {
		pos := base + uint64(j)
		if pos >= n {
			if pos == n {
				dollar = j
			}
			break
		}
		key |= text.Get(int(pos)) << (wordBits - (uint(j)+1)*bits)
	}
	if dollar == dollarMask && base > n {
		// The suffix ended before this word; all symbol bits stay zero
		// and the field pins the key to the minimum.
		dollar = 0
	}
	return key | dollar
}

// bucketer maps suffixes to their leading-radix bucket. A bucket key is
// the first prefixSyms symbols followed by a dollarBits field holding the
// distance to the terminator when it falls inside the prefix, or
// dollarMask when it does not. Buckets with an unsaturated field hold
// suffixes that are fully determined by the bucket itself.
type bucketer struct {
	bits       uint   // bucketing width K: 16, 20 or 24
	symBits    uint   // symbol width
	prefixSyms uint32 // symbols contributing to the bucket
}

func newBucketer(bucketBits, symbolBits uint) bucketer {
	return bucketer{
		bits:       bucketBits,
		symBits:    symbolBits,
		prefixSyms: uint32((bucketBits - dollarBits) / symbolBits),
	}
}

// count returns the size of the bucket space.
func (b bucketer) count() int { return 1 << b.bits }

// bucketOf returns the bucket of the suffix starting at position p of a
// string whose terminator is at position n. The get callback resolves
// symbols.
func (b bucketer) bucketOf(p, n uint32, get func(uint32) uint32) uint32 {
	var radix uint32
	for j := uint32(0); j < b.prefixSyms && p+j < n; j++ {
		radix |= get(p+j) << ((b.prefixSyms - j - 1) * uint32(b.symBits))
	}
	field := uint32(dollarMask)
	if d := n - p; d < b.prefixSyms {
		field = d
	}
	return radix<<dollarBits | field
}

// isShort reports whether bucket holds only suffixes whose terminator
// lies inside the leading radix; such buckets never need deep sorting.
func (b bucketer) isShort(bucket uint32) bool {
	return bucket&dollarMask != dollarMask
}
