// Copyright 2021, The biokit Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE.md file.

// Package bwt implements blockwise suffix sorting and Burrows-Wheeler
// transform construction for very large texts and string sets.
//
// Two entry points form the core. BWT sorts all suffixes of a single
// string under a bounded working set, using a difference-cover sampler to
// break ties between suffixes with long common prefixes, and emits the
// transform plus the position of the implicit terminator. SetBWT sorts
// the suffixes of a concatenated set of short strings with an out-of-core
// pipeline that streams chunks of the set through a bounded inner working
// set, emitting the transform and a map of the per-string terminator
// positions.
package bwt

import (
	"fmt"
)

// Error is the wrapper type for errors specific to this library.
type Error string

func (e Error) Error() string { return "bwt: " + string(e) }

var (
	// ErrInputFormat reports a malformed input record. It surfaces at
	// ingest only; the engine itself never produces it.
	ErrInputFormat error = Error("malformed input record")

	// ErrMemoryBudget reports that a single bucket exceeds the configured
	// inner working-set budget at the widest bucketing width.
	ErrMemoryBudget error = Error("memory budget exceeded")

	// ErrBufferOverflow reports that a fixed-capacity scratch structure
	// would be exceeded. It indicates a tuning bug and is fatal.
	ErrBufferOverflow error = Error("scratch buffer overflow")

	// ErrConstructionLimit reports that the difference-cover sampler
	// exceeded its recursion safety limit.
	ErrConstructionLimit error = Error("sampler recursion limit exceeded")

	// ErrCancelled reports cooperative cancellation.
	ErrCancelled error = Error("construction cancelled")

	// ErrSink reports that the output stream failed to accept bytes.
	ErrSink error = Error("output sink failure")
)

// BudgetError reports the bucket that exceeded the inner working-set
// budget after the bucketing-width escalation table was exhausted.
// It unwraps to ErrMemoryBudget.
type BudgetError struct {
	Bucket    uint32 // offending bucket index
	Size      uint32 // number of suffixes in the bucket
	MinDevice uint64 // smallest DeviceMemory, in bytes, that would fit it
}

func (e *BudgetError) Error() string {
	return fmt.Sprintf("bwt: bucket %d contains %d suffixes: please raise the device memory limit to at least %d MB",
		e.Bucket, e.Size, e.MinDevice>>20)
}

func (e *BudgetError) Unwrap() error { return ErrMemoryBudget }

// SinkError wraps a failure of the underlying output stream.
// It unwraps to both ErrSink and the cause.
type SinkError struct {
	Err error
}

func (e *SinkError) Error() string   { return "bwt: sink: " + e.Err.Error() }
func (e *SinkError) Unwrap() []error { return []error{ErrSink, e.Err} }

func sinkErr(err error) error {
	if err == nil {
		return nil
	}
	return &SinkError{Err: err}
}

// Default working-set envelopes.
const (
	DefaultHostMemory   = 8 << 30
	DefaultDeviceMemory = 2 << 30
)

// BWTParams configures a construction job.
//
// The two memory fields bound the two pipeline stages: HostMemory caps
// the outer scratch (it sizes super-blocks, the units collected from the
// input per pass), DeviceMemory caps the inner sorter scratch (it sizes
// sub-blocks, the units sorted at once). Zero values select the defaults.
type BWTParams struct {
	HostMemory   uint64
	DeviceMemory uint64

	// Verbosity gates Logf on a 0..6 scale: a message reaches Logf only
	// when its level does not exceed Verbosity. The engine logs progress
	// at levels 2 through 5.
	Verbosity int

	// Logf receives progress messages. A nil Logf discards them.
	Logf func(level int, format string, args ...interface{})
}

func (p *BWTParams) hostMemory() uint64 {
	if p == nil || p.HostMemory == 0 {
		return DefaultHostMemory
	}
	return p.HostMemory
}

func (p *BWTParams) deviceMemory() uint64 {
	if p == nil || p.DeviceMemory == 0 {
		return DefaultDeviceMemory
	}
	return p.DeviceMemory
}

// superBlockCap returns the outer working-set cap in suffixes: each
// collected suffix costs 8 bytes of host scratch, and 128 MiB are left
// for the bucket counters.
func (p *BWTParams) superBlockCap() int {
	hm := p.hostMemory()
	const reserve = 128 << 20
	if hm <= reserve {
		return 1 << 16
	}
	return int((hm - reserve) / 8)
}

// blockCap returns the inner sorter capacity in suffixes: each sorted
// suffix costs 32 bytes of sorter scratch.
func (p *BWTParams) blockCap() int {
	c := p.deviceMemory() / 32
	if c < 1 {
		c = 1
	}
	const max = 1 << 31
	if c > max {
		c = max
	}
	return int(c)
}

func (p *BWTParams) logf(level int, format string, args ...interface{}) {
	if p == nil || p.Logf == nil || level > p.Verbosity {
		return
	}
	p.Logf(level, format, args...)
}

// minDeviceFor returns the recommended minimum inner budget for a bucket
// of the given size, rounded up to whole mebi-suffixes.
func minDeviceFor(size uint32) uint64 {
	mi := (uint64(size) + (1 << 20) - 1) >> 20
	return mi << 20 * 32
}
