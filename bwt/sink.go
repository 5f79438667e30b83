// Copyright 2021, The biokit Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE.md file.

package bwt

import (
	"encoding/binary"
	"hash/crc32"
	"io"

	"github.com/dsnet/golib/hashutil"

	"github.com/biokit/sufsort/packed"
)

// Dollar is the terminator token in an emitted symbol stream. It is
// never encoded by the packed stream layer; sinks translate it according
// to their format.
const Dollar uint16 = 0x100

// SetSink receives the BWT symbols of a string-set job, in destination
// slot order, and appends them to the underlying stream. The suffixes
// that produced a batch are passed alongside when available (nil during
// the leading per-string phase); sinks that retain positional data may
// use them. Flush writes any trailing partial state.
type SetSink interface {
	Process(symbols []uint16, suffixes []SuffixID) error
	Flush() error
}

// crcState accumulates a checksum of the canonical byte rendering of the
// emitted symbols. Batches are hashed independently and combined, so the
// value is the same whether the batches arrive one at a time or staged
// by parallel workers.
type crcState struct {
	crc uint32
	n   int64
}

func (c *crcState) add(b []byte) {
	if len(b) == 0 {
		return
	}
	bc := crc32.ChecksumIEEE(b)
	c.crc = hashutil.CombineCRC32(crc32.IEEE, c.crc, bc, int64(len(b)))
	c.n += int64(len(b))
}

// symbolByte renders one symbol as its canonical ASCII byte.
func symbolByte(sym uint16, symbolBits uint) byte {
	if sym == Dollar {
		return '$'
	}
	if symbolBits == 2 {
		return packed.DecodeDNA(uint32(sym))
	}
	return byte(sym)
}

// ASCIISink writes one byte per symbol: the nucleotide letters for 2-bit
// streams, the raw symbol value otherwise, and '$' for terminators.
type ASCIISink struct {
	w    io.Writer
	bits uint
	buf  []byte
	crc  crcState
}

func NewASCIISink(w io.Writer, symbolBits uint) *ASCIISink {
	return &ASCIISink{w: w, bits: symbolBits}
}

func (s *ASCIISink) Process(symbols []uint16, suffixes []SuffixID) error {
	if cap(s.buf) < len(symbols) {
		s.buf = make([]byte, len(symbols))
	}
	buf := s.buf[:len(symbols)]
	for i, sym := range symbols {
		buf[i] = symbolByte(sym, s.bits)
	}
	s.crc.add(buf)
	_, err := s.w.Write(buf)
	return err
}

func (s *ASCIISink) Flush() error { return nil }

// Count returns the number of symbols written.
func (s *ASCIISink) Count() int64 { return s.crc.n }

// Checksum returns the CRC-32 of the canonical rendering of the stream.
func (s *ASCIISink) Checksum() uint32 { return s.crc.crc }

// PackedSink packs symbols into little-endian uint32 words of 2 or 4
// bits per symbol. In the 2-bit format the terminator has no code: its
// slot is written as 0 and its position travels in the primary map. In
// the 4-bit format the terminator is encoded in-stream as the value 4.
//
// The sink keeps an internal bit offset and writes whole words only once
// a full group of symbols has accumulated; Flush writes the trailing
// partial word.
type PackedSink struct {
	w       io.Writer
	bits    uint
	cur     uint32
	nfill   uint
	buf     []byte
	scratch []byte
	crc     crcState
	count   int64
}

func NewPackedSink(w io.Writer, symbolBits uint) *PackedSink {
	if symbolBits != 2 && symbolBits != 4 {
		panic("bwt: packed sink supports 2- or 4-bit symbols")
	}
	return &PackedSink{w: w, bits: symbolBits}
}

func (s *PackedSink) Process(symbols []uint16, suffixes []SuffixID) error {
	if cap(s.scratch) < len(symbols) {
		s.scratch = make([]byte, len(symbols))
	}
	canon := s.scratch[:len(symbols)]
	s.buf = s.buf[:0]
	for i, sym := range symbols {
		canon[i] = symbolByte(sym, s.bits)
		v := uint32(sym)
		if sym == Dollar {
			if s.bits == 2 {
				v = 0
			} else {
				v = 4
			}
		}
		s.cur |= (v & (1<<s.bits - 1)) << s.nfill
		s.nfill += s.bits
		if s.nfill == 32 {
			s.buf = binary.LittleEndian.AppendUint32(s.buf, s.cur)
			s.cur, s.nfill = 0, 0
		}
	}
	s.crc.add(canon)
	s.count += int64(len(symbols))
	if len(s.buf) == 0 {
		return nil
	}
	_, err := s.w.Write(s.buf)
	return err
}

func (s *PackedSink) Flush() error {
	if s.nfill == 0 {
		return nil
	}
	var word [4]byte
	binary.LittleEndian.PutUint32(word[:], s.cur)
	s.cur, s.nfill = 0, 0
	_, err := s.w.Write(word[:])
	return err
}

// Count returns the number of symbols written.
func (s *PackedSink) Count() int64 { return s.count }

// Checksum returns the CRC-32 of the canonical rendering of the stream.
func (s *PackedSink) Checksum() uint32 { return s.crc.crc }

// DiscardSink consumes symbols without producing output; it exists for
// measurement runs.
type DiscardSink struct {
	count int64
}

func (s *DiscardSink) Process(symbols []uint16, suffixes []SuffixID) error {
	s.count += int64(len(symbols))
	return nil
}

func (s *DiscardSink) Flush() error { return nil }

// Count returns the number of symbols consumed.
func (s *DiscardSink) Count() int64 { return s.count }

// MemorySetSink retains the emitted symbols in memory, terminator tokens
// included. It is the reference sink for tests and small inputs.
type MemorySetSink struct {
	Symbols []uint16
}

func (s *MemorySetSink) Process(symbols []uint16, suffixes []SuffixID) error {
	s.Symbols = append(s.Symbols, symbols...)
	return nil
}

func (s *MemorySetSink) Flush() error { return nil }
