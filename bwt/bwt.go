// Copyright 2021, The biokit Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE.md file.

package bwt

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/biokit/sufsort/packed"
)

// bucketingWidths is the escalation table for the leading-radix
// partition: wider bucketing makes every bucket smaller at the price of
// a larger histogram.
var bucketingWidths = [...]uint{16, 20, 24}

// BWT computes the Burrows-Wheeler transform of text followed by its
// implicit terminator, streaming the symbols to sink, and returns the
// position the terminator would occupy. The terminator itself is excised
// from the stream: exactly text.Len() symbols are emitted, and
// re-inserting it at the returned position recovers the transform of the
// terminated string.
//
// The job works blockwise under the params working-set budgets and is
// cancelled, between blocks, when ctx is done.
func BWT(ctx context.Context, text *packed.Stream, sink StringSink, params *BWTParams) (uint32, error) {
	if text.Len() == 0 {
		return 0, sinkErr(sink.Flush())
	}
	dcs, err := buildDCS(text, params)
	if err != nil {
		return 0, err
	}
	h, err := NewStringBWTHandler(text, sink)
	if err != nil {
		return 0, err
	}
	if err := blockwiseSuffixSort(ctx, text, h, dcs, params); err != nil {
		return 0, err
	}
	params.logf(4, "bwt: primary at %d", h.Primary())
	if err := h.RemoveDollar(); err != nil {
		return 0, err
	}
	if err := sink.Flush(); err != nil {
		return 0, sinkErr(err)
	}
	return h.Primary(), nil
}

// BWTWithSSA is BWT retaining a sampled suffix array alongside the
// transform: every mod-th entry of the suffix array of the terminated
// string, mod a power of two. ssa must hold (text.Len()+mod)/mod
// entries; entry 0 is the implicit empty suffix and reads ^uint32(0).
func BWTWithSSA(ctx context.Context, text *packed.Stream, sink StringSink, mod uint32, ssa []uint32, params *BWTParams) (uint32, error) {
	if text.Len() == 0 {
		if len(ssa) > 0 {
			ssa[0] = ^uint32(0)
		}
		return 0, sinkErr(sink.Flush())
	}
	dcs, err := buildDCS(text, params)
	if err != nil {
		return 0, err
	}
	bh, err := NewStringBWTHandler(text, sink)
	if err != nil {
		return 0, err
	}
	h := &StringBWTSSAHandler{BWT: bh, SSA: NewStringSSAHandler(mod, ssa)}
	if err := blockwiseSuffixSort(ctx, text, h, dcs, params); err != nil {
		return 0, err
	}
	if err := bh.RemoveDollar(); err != nil {
		return 0, err
	}
	if err := sink.Flush(); err != nil {
		return 0, sinkErr(err)
	}
	return bh.Primary(), nil
}

// BlockwiseSuffixSort sorts all suffixes of text and hands them to
// handler in output order. It is the handler-level entry underlying BWT;
// SA consumers can use it with their own handler.
func BlockwiseSuffixSort(ctx context.Context, text *packed.Stream, handler SuffixHandler, params *BWTParams) error {
	if text.Len() == 0 {
		return nil
	}
	dcs, err := buildDCS(text, params)
	if err != nil {
		return err
	}
	return blockwiseSuffixSort(ctx, text, handler, dcs, params)
}

func cancelled(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ErrCancelled
	default:
		return nil
	}
}

// blockwiseSuffixSort partitions the suffixes of text by leading radix,
// sorts each bucket with the block sorter and the sampler, and feeds the
// handler bucket by bucket in output order.
func blockwiseSuffixSort(ctx context.Context, text *packed.Stream, h SuffixHandler, dcs *DCS, params *BWTParams) error {
	n := uint32(text.Len())
	get := func(i uint32) uint32 { return text.Get(int(i)) }
	blockCap := params.blockCap()

	// Choose the bucketing width: the largest bucket that still needs
	// sorting must fit the block sorter.
	var bk bucketer
	var hist []uint32
	var maxBucket, maxIdx uint32
	fits := false
	for _, k := range bucketingWidths {
		bk = newBucketer(k, text.SymbolBits())
		hist = countBuckets(text, bk)
		maxBucket, maxIdx = 0, 0
		for b, c := range hist {
			if !bk.isShort(uint32(b)) && c > maxBucket {
				maxBucket, maxIdx = c, uint32(b)
			}
		}
		if int(maxBucket) <= blockCap {
			fits = true
			break
		}
		params.logf(2, "bwt: %d-bit bucketing overflows (bucket %d holds %d suffixes); escalating", k, maxIdx, maxBucket)
	}
	if !fits {
		return &BudgetError{Bucket: maxIdx, Size: maxBucket, MinDevice: minDeviceFor(maxBucket)}
	}
	params.logf(3, "bwt: %d-bit bucketing, largest bucket %d", bk.bits, maxBucket)

	ex := newTextRadices(text)
	maxWords := int((dcs.v + ex.spw - 1) / ex.spw)

	superCap := params.superBlockCap()
	if superCap > int(n) {
		superCap = int(n)
	}
	collect := make([]uint32, superCap)

	workers := runtime.GOMAXPROCS(0)
	if workers > 4 {
		workers = 4
	}
	sorters := make([]*blockSorter, workers)
	for i := range sorters {
		sorters[i] = newBlockSorter(int(maxBucket))
	}

	numBuckets := uint32(len(hist))
	for bucketBegin := uint32(0); bucketBegin < numBuckets; {
		if err := cancelled(ctx); err != nil {
			return err
		}

		// Grow the super-block while it fits the host buffer.
		bucketEnd := bucketBegin
		size := 0
		for bucketEnd < numBuckets && size+int(hist[bucketEnd]) <= superCap {
			size += int(hist[bucketEnd])
			bucketEnd++
		}
		if bucketEnd == bucketBegin {
			return ErrBufferOverflow
		}

		// Collect the super-block's suffixes, grouped by bucket.
		cursor := make([]uint32, bucketEnd-bucketBegin+1)
		var sum uint32
		for b := bucketBegin; b < bucketEnd; b++ {
			cursor[b-bucketBegin] = sum
			sum += hist[b]
		}
		cursor[bucketEnd-bucketBegin] = sum
		starts := append([]uint32(nil), cursor...)
		for p := uint32(0); p < n; p++ {
			if b := bk.bucketOf(p, n, get); b >= bucketBegin && b < bucketEnd {
				collect[cursor[b-bucketBegin]] = p
				cursor[b-bucketBegin]++
			}
		}

		// Sort every bucket of the super-block; the segments are
		// disjoint, so the workers sort in place.
		type seg struct{ lo, hi uint32 }
		var segs []seg
		for b := bucketBegin; b < bucketEnd; b++ {
			lo, hi := starts[b-bucketBegin], starts[b-bucketBegin+1]
			if hi-lo > 1 {
				segs = append(segs, seg{lo, hi})
			}
		}
		g, _ := errgroup.WithContext(ctx)
		for w := 0; w < workers; w++ {
			w := w
			g.Go(func() error {
				for i := w; i < len(segs); i += workers {
					s := segs[i]
					if _, err := sorters[w].sort(collect[s.lo:s.hi], ex, maxWords, dcs); err != nil {
						return err
					}
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}

		// Emit the batches in destination order.
		if err := h.ProcessBatch(collect[:sum]); err != nil {
			return err
		}
		bucketBegin = bucketEnd
	}
	return nil
}

// countBuckets builds the leading-radix histogram of all suffixes.
func countBuckets(text *packed.Stream, bk bucketer) []uint32 {
	n := uint32(text.Len())
	get := func(i uint32) uint32 { return text.Get(int(i)) }

	workers := runtime.GOMAXPROCS(0)
	if workers > 4 {
		workers = 4
	}
	if n < 1<<16 || bk.count() >= 1<<22 {
		workers = 1 // keep the per-worker counter arrays within the reserve
	}
	local := make([][]uint32, workers)
	var g errgroup.Group
	chunk := (n + uint32(workers) - 1) / uint32(workers)
	for w := 0; w < workers; w++ {
		w := w
		g.Go(func() error {
			h := make([]uint32, bk.count())
			lo, hi := uint32(w)*chunk, uint32(w+1)*chunk
			if hi > n {
				hi = n
			}
			for p := lo; p < hi; p++ {
				h[bk.bucketOf(p, n, get)]++
			}
			local[w] = h
			return nil
		})
	}
	g.Wait()

	hist := local[0]
	for _, h := range local[1:] {
		for i, c := range h {
			hist[i] += c
		}
	}
	return hist
}
