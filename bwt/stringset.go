// Copyright 2021, The biokit Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE.md file.

package bwt

import "github.com/biokit/sufsort/packed"

// StringSet is a packed, concatenated set of strings. The symbols of all
// strings are stored back to back without separators; per-string
// terminators are synthesized by the engine at the string boundaries.
// The set is read-only once construction starts.
type StringSet struct {
	symbols *packed.Stream
	offsets []uint64 // len Count()+1; offsets[k] is the start of string k
}

// NewStringSet returns an empty set with the given symbol width.
func NewStringSet(symbolBits uint, bigEndian bool) *StringSet {
	return &StringSet{
		symbols: packed.New(symbolBits, bigEndian),
		offsets: []uint64{0},
	}
}

// Append adds one string to the set, one symbol per input byte.
func (s *StringSet) Append(read []byte) {
	s.symbols.AppendBytes(read)
	s.offsets = append(s.offsets, uint64(s.symbols.Len()))
}

// Count returns the number of strings in the set.
func (s *StringSet) Count() int { return len(s.offsets) - 1 }

// Len returns the length of string k.
func (s *StringSet) Len(k uint32) uint32 {
	return uint32(s.offsets[k+1] - s.offsets[k])
}

// Get returns symbol p of string k.
func (s *StringSet) Get(k, p uint32) uint32 {
	return s.symbols.Get(int(s.offsets[k] + uint64(p)))
}

// SymbolBits returns the symbol width of the set.
func (s *StringSet) SymbolBits() uint { return s.symbols.SymbolBits() }

// NumSuffixes returns the number of non-empty suffixes in the set, which
// equals the total symbol count.
func (s *StringSet) NumSuffixes() uint64 { return uint64(s.symbols.Len()) }

// SuffixID identifies one suffix of a string set: string index and
// offset within that string.
type SuffixID struct {
	String uint32
	Pos    uint32
}

// setRadices extracts radix keys from suffixes of a string set. The ids
// handed to the block sorter index into the sufs slice.
type setRadices struct {
	set  *StringSet
	sufs []SuffixID
	bits uint
	spw  uint32
}

func newSetRadices(set *StringSet, sufs []SuffixID) setRadices {
	return setRadices{
		set:  set,
		sufs: sufs,
		bits: set.SymbolBits(),
		spw:  symbolsPerWord(set.SymbolBits()),
	}
}

func (r setRadices) extract(id, w uint32) uint32 {
	s := r.sufs[id]
	start := r.set.offsets[s.String]
	end := r.set.offsets[s.String+1]
	base := start + uint64(s.Pos) + uint64(w)*uint64(r.spw)
	return extractKey(r.set.symbols, end, base, r.bits, r.spw)
}
