// Copyright 2021, The biokit Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE.md file.

package bwt

import "github.com/biokit/sufsort/packed"

// SuffixHandler receives the sorted suffixes of a single string, one
// contiguous batch at a time and in output order.
type SuffixHandler interface {
	// ProcessBatch consumes the next contiguous run of sorted suffix
	// positions.
	ProcessBatch(suffixes []uint32) error

	// ProcessScattered consumes a sparse set of suffixes together with
	// their destination slots, overwriting previously output slots. The
	// blockwise sorter in this package resolves every tie through the
	// sampler and delivers all suffixes through ProcessBatch; this path
	// serves callers that resolve delayed suffixes themselves.
	ProcessScattered(suffixes, slots []uint32) error
}

// StringSink receives the BWT symbols of a single-string job. Process
// appends in destination-slot order; Rewrite and Reread give the
// orchestrator access to previously written slots, which it needs to
// resolve scattered suffixes and to excise the terminator at the end of
// the job.
type StringSink interface {
	Process(symbols []byte) error
	Rewrite(slot uint64, symbols []byte) error
	Reread(slot uint64, dst []byte) error
	Truncate(n uint64) error
	Flush() error
}

// MemorySink is a StringSink backed by a byte slice.
type MemorySink struct {
	buf []byte
}

func (s *MemorySink) Process(symbols []byte) error {
	s.buf = append(s.buf, symbols...)
	return nil
}

func (s *MemorySink) Rewrite(slot uint64, symbols []byte) error {
	copy(s.buf[slot:], symbols)
	return nil
}

func (s *MemorySink) Reread(slot uint64, dst []byte) error {
	copy(dst, s.buf[slot:])
	return nil
}

func (s *MemorySink) Truncate(n uint64) error {
	s.buf = s.buf[:n]
	return nil
}

func (s *MemorySink) Flush() error { return nil }

// Bytes returns the symbols written so far.
func (s *MemorySink) Bytes() []byte { return s.buf }

const nullPrimary = ^uint32(0)

// dollarRemovalBlock is the chunk size used when shifting the tail of
// the output over the excised terminator.
const dollarRemovalBlock = 32 << 20

// StringBWTHandler turns sorted suffixes into BWT symbols. The symbol
// for a suffix starting at p is the one preceding it, text[p-1]; the
// whole-string suffix p == 0 contributes the terminator, whose slot is
// recorded as the primary. Construction emits the first symbol of the
// transform, text[n-1], which precedes the implicit empty suffix.
type StringBWTHandler struct {
	text    *packed.Stream
	n       uint32
	sink    StringSink
	primary uint32
	nOutput uint64
	block   []byte
}

func NewStringBWTHandler(text *packed.Stream, sink StringSink) (*StringBWTHandler, error) {
	h := &StringBWTHandler{
		text:    text,
		n:       uint32(text.Len()),
		sink:    sink,
		primary: nullPrimary,
	}
	if h.n > 0 {
		if err := sink.Process([]byte{byte(text.Get(int(h.n - 1)))}); err != nil {
			return nil, sinkErr(err)
		}
	}
	return h, nil
}

func (h *StringBWTHandler) symbols(suffixes []uint32) []byte {
	if cap(h.block) < len(suffixes) {
		h.block = make([]byte, len(suffixes))
	}
	buf := h.block[:len(suffixes)]
	for i, p := range suffixes {
		if p == 0 {
			buf[i] = 0 // stands in for the terminator; excised later
		} else {
			buf[i] = byte(h.text.Get(int(p - 1)))
		}
	}
	return buf
}

func (h *StringBWTHandler) ProcessBatch(suffixes []uint32) error {
	buf := h.symbols(suffixes)
	for i, p := range suffixes {
		if p == 0 {
			h.primary = uint32(h.nOutput) + uint32(i) + 1 // +1 for the implicit empty suffix
		}
	}
	if err := h.sink.Process(buf); err != nil {
		return sinkErr(err)
	}
	h.nOutput += uint64(len(suffixes))
	return nil
}

func (h *StringBWTHandler) ProcessScattered(suffixes, slots []uint32) error {
	buf := h.symbols(suffixes)
	for i, p := range suffixes {
		if p == 0 {
			h.primary = slots[i] + 1
		}
		if err := h.sink.Rewrite(uint64(slots[i])+1, buf[i:i+1]); err != nil {
			return sinkErr(err)
		}
	}
	return nil
}

// Primary returns the slot of the terminator. It is only meaningful once
// every suffix has been processed.
func (h *StringBWTHandler) Primary() uint32 { return h.primary }

// RemoveDollar excises the terminator from the emitted stream by
// shifting every symbol after it one slot left, in fixed-size chunks
// through the sink's reread/rewrite capability, and truncating the
// stream to n symbols.
func (h *StringBWTHandler) RemoveDollar() error {
	if h.n == 0 {
		return nil
	}
	buf := make([]byte, 0)
	for blockBegin := uint64(h.primary); blockBegin < uint64(h.n); blockBegin += dollarRemovalBlock {
		blockEnd := blockBegin + dollarRemovalBlock
		if blockEnd > uint64(h.n) {
			blockEnd = uint64(h.n)
		}
		if cap(buf) < int(blockEnd-blockBegin) {
			buf = make([]byte, blockEnd-blockBegin)
		}
		buf = buf[:blockEnd-blockBegin]
		if err := h.sink.Reread(blockBegin+1, buf); err != nil {
			return sinkErr(err)
		}
		if err := h.sink.Rewrite(blockBegin, buf); err != nil {
			return sinkErr(err)
		}
	}
	return sinkErr(h.sink.Truncate(uint64(h.n)))
}

// StringSSAHandler retains a sampled suffix array: every mod-th slot of
// the sorted order, mod a power of two. Slot 0 is the implicit empty
// suffix and records ^uint32(0).
type StringSSAHandler struct {
	mod     uint32
	nOutput uint64
	out     []uint32
}

// NewStringSSAHandler samples into out, which must hold
// (n+mod)/mod entries for a string of length n.
func NewStringSSAHandler(mod uint32, out []uint32) *StringSSAHandler {
	if mod == 0 || mod&(mod-1) != 0 {
		panic("bwt: SSA sampling must be a power of two")
	}
	h := &StringSSAHandler{mod: mod, nOutput: 1, out: out}
	out[0] = ^uint32(0)
	return h
}

func (h *StringSSAHandler) ProcessBatch(suffixes []uint32) error {
	for i, p := range suffixes {
		slot := h.nOutput + uint64(i)
		if slot&uint64(h.mod-1) == 0 {
			h.out[slot/uint64(h.mod)] = p
		}
	}
	h.nOutput += uint64(len(suffixes))
	return nil
}

func (h *StringSSAHandler) ProcessScattered(suffixes, slots []uint32) error {
	for i, p := range suffixes {
		slot := uint64(slots[i]) + 1
		if slot&uint64(h.mod-1) == 0 {
			h.out[slot/uint64(h.mod)] = p
		}
	}
	return nil
}

// StringBWTSSAHandler retains both the BWT and a sampled suffix array.
type StringBWTSSAHandler struct {
	BWT *StringBWTHandler
	SSA *StringSSAHandler
}

func (h *StringBWTSSAHandler) ProcessBatch(suffixes []uint32) error {
	if err := h.BWT.ProcessBatch(suffixes); err != nil {
		return err
	}
	return h.SSA.ProcessBatch(suffixes)
}

func (h *StringBWTSSAHandler) ProcessScattered(suffixes, slots []uint32) error {
	if err := h.BWT.ProcessScattered(suffixes, slots); err != nil {
		return err
	}
	return h.SSA.ProcessScattered(suffixes, slots)
}
