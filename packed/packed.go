// Copyright 2021, The biokit Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE.md file.

// Package packed implements fixed-width symbol streams stored in 32-bit
// words. A stream holds symbols of 2, 4 or 8 bits each; the bit position
// of a symbol within its word is determined by the stream's endianness
// and is stable across runs.
//
// In a little-endian stream, symbol i%SymbolsPerWord occupies the
// lowest-order free bits of its word; in a big-endian stream it occupies
// the highest-order free bits. The little-endian, 2-bit layout is the one
// used for DNA on disk.
package packed

import "fmt"

// Error is the wrapper type for errors specific to this library.
type Error string

func (e Error) Error() string { return "packed: " + string(e) }

const wordBits = 32

// Stream is a sequence of fixed-width symbols packed into uint32 words.
// The zero value is an empty little-endian stream and is not usable until
// the symbol width is set; use New.
type Stream struct {
	words     []uint32
	n         int  // number of symbols
	bits      uint // symbol width in bits: 2, 4 or 8
	bigEndian bool
}

// New returns an empty stream of the given symbol width.
// New panics if bits is not one of 2, 4 or 8.
func New(bits uint, bigEndian bool) *Stream {
	switch bits {
	case 2, 4, 8:
	default:
		panic(fmt.Sprintf("packed: invalid symbol width: %d", bits))
	}
	return &Stream{bits: bits, bigEndian: bigEndian}
}

// NewSize is like New, but pre-sizes the stream to hold n symbols,
// all initially zero.
func NewSize(bits uint, bigEndian bool, n int) *Stream {
	s := New(bits, bigEndian)
	s.words = make([]uint32, (n*int(bits)+wordBits-1)/wordBits)
	s.n = n
	return s
}

// FromBytes returns a stream holding the given symbols, one input byte per
// symbol. Symbols must fit the width; high bits are masked off.
func FromBytes(bits uint, bigEndian bool, syms []byte) *Stream {
	s := NewSize(bits, bigEndian, len(syms))
	for i, v := range syms {
		s.Set(i, uint32(v))
	}
	return s
}

// Len returns the number of symbols in the stream.
func (s *Stream) Len() int { return s.n }

// SymbolBits returns the symbol width in bits.
func (s *Stream) SymbolBits() uint { return s.bits }

// BigEndian reports whether symbols fill words from the high-order end.
func (s *Stream) BigEndian() bool { return s.bigEndian }

// Words returns the underlying word storage. The final word may be
// partially occupied; unused bits are zero.
func (s *Stream) Words() []uint32 { return s.words }

// shift returns the bit offset of symbol i within its word.
func (s *Stream) shift(i int) uint {
	spw := wordBits / s.bits
	j := uint(i) % spw
	if s.bigEndian {
		return wordBits - s.bits - j*s.bits
	}
	return j * s.bits
}

// Get returns symbol i. It is the caller's responsibility to keep
// i within [0, Len()); the engine layered on top synthesizes its own
// out-of-range semantics.
func (s *Stream) Get(i int) uint32 {
	w := s.words[uint(i)/(wordBits/s.bits)]
	return (w >> s.shift(i)) & (1<<s.bits - 1)
}

// Set stores symbol v at position i, masking v to the symbol width.
func (s *Stream) Set(i int, v uint32) {
	sh := s.shift(i)
	mask := uint32(1<<s.bits-1) << sh
	w := &s.words[uint(i)/(wordBits/s.bits)]
	*w = *w&^mask | (v<<sh)&mask
}

// Append adds one symbol to the end of the stream.
func (s *Stream) Append(v uint32) {
	spw := int(wordBits / s.bits)
	if s.n%spw == 0 {
		s.words = append(s.words, 0)
	}
	s.n++
	s.Set(s.n-1, v)
}

// AppendBytes appends one symbol per input byte.
func (s *Stream) AppendBytes(syms []byte) {
	for _, v := range syms {
		s.Append(uint32(v))
	}
}

// Pack writes the symbols src into dst starting at symbol offset off.
// The destination must already span the written range. A non-aligned
// offset is handled by read-modify-writing the first partially occupied
// word, then writing whole words, then a possibly partial trailing word.
func Pack(dst *Stream, off int, src []byte) {
	if off+len(src) > dst.n {
		panic("packed: Pack out of range")
	}
	spw := int(wordBits / dst.bits)

	// Head: fill the remainder of a partially occupied word.
	i := 0
	if r := off % spw; r != 0 {
		for ; i < len(src) && (off+i)%spw != 0; i++ {
			dst.Set(off+i, uint32(src[i]))
		}
	}

	// Body: whole words.
	for ; len(src)-i >= spw; i += spw {
		var w uint32
		for j := 0; j < spw; j++ {
			sh := dst.shift(off + i + j)
			w |= (uint32(src[i+j]) & (1<<dst.bits - 1)) << sh
		}
		dst.words[uint(off+i)/uint(spw)] = w
	}

	// Tail: partial trailing word.
	for ; i < len(src); i++ {
		dst.Set(off+i, uint32(src[i]))
	}
}

// Bytes unpacks the whole stream into one byte per symbol.
func (s *Stream) Bytes() []byte {
	out := make([]byte, s.n)
	for i := range out {
		out[i] = byte(s.Get(i))
	}
	return out
}

// Range calls fn for each symbol in [i, j), in order, stopping early if
// fn returns false.
func (s *Stream) Range(i, j int, fn func(sym uint32) bool) {
	for ; i < j; i++ {
		if !fn(s.Get(i)) {
			return
		}
	}
}

// DNA alphabet codes for the 2-bit packing.
const (
	BaseA = 0
	BaseC = 1
	BaseG = 2
	BaseT = 3
)

var baseToCode = func() (t [256]int8) {
	for i := range t {
		t[i] = -1
	}
	t['A'], t['a'] = BaseA, BaseA
	t['C'], t['c'] = BaseC, BaseC
	t['G'], t['g'] = BaseG, BaseG
	t['T'], t['t'] = BaseT, BaseT
	t['N'], t['n'] = BaseA, BaseA // ambiguity codes collapse to A
	return t
}()

var codeToBase = [4]byte{'A', 'C', 'G', 'T'}

// EncodeDNA converts an ASCII base to its 2-bit code.
// Ambiguity codes map to A; the second result is false for bytes that are
// not nucleotide codes at all.
func EncodeDNA(b byte) (uint32, bool) {
	c := baseToCode[b]
	if c < 0 {
		return 0, false
	}
	return uint32(c), true
}

// DecodeDNA converts a 2-bit code back to its ASCII base.
func DecodeDNA(c uint32) byte { return codeToBase[c&3] }
