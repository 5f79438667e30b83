// Copyright 2021, The biokit Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE.md file.

package bwt

import (
	"context"
	"errors"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// PrimaryEntry locates one string's terminator token in the emitted
// stream.
type PrimaryEntry struct {
	Position uint64
	String   uint32
}

// PrimaryMap is the sorted sequence of terminator positions of a
// string-set transform, one entry per input string, ascending in
// Position.
type PrimaryMap []PrimaryEntry

// largeBucketError reports a bucket exceeding the inner budget; it stays
// internal to the escalation loop.
type largeBucketError struct {
	bucket uint32
	size   uint32
}

func (e *largeBucketError) Error() string { return "bwt: bucket exceeds block capacity" }

// SetBWT computes the Burrows-Wheeler transform of the string set,
// streaming symbols to sink, and returns the primary map. Exactly
// set.NumSuffixes()+set.Count() symbols are emitted, terminator tokens
// included.
//
// The bucketing width starts at 16 bits and escalates to 20 and 24 when
// the largest bucket exceeds the inner working-set budget; once the
// table is exhausted the job fails with a BudgetError naming the
// offending bucket.
func SetBWT(ctx context.Context, set *StringSet, sink SetSink, params *BWTParams) (PrimaryMap, error) {
	for i, k := range bucketingWidths {
		pm, err := enactSetBWT(ctx, set, sink, k, params)
		var lb *largeBucketError
		if errors.As(err, &lb) {
			if i+1 < len(bucketingWidths) {
				params.logf(2, "setbwt: %d-bit bucketing overflows (bucket %d holds %d suffixes); escalating", k, lb.bucket, lb.size)
				continue
			}
			return nil, &BudgetError{Bucket: lb.bucket, Size: lb.size, MinDevice: minDeviceFor(lb.size)}
		}
		return pm, err
	}
	panic("bwt: escalation table exhausted") // unreachable
}

func enactSetBWT(ctx context.Context, set *StringSet, sink SetSink, bucketBits uint, params *BWTParams) (PrimaryMap, error) {
	m := uint32(set.Count())
	bz := newSetBucketizer(set, bucketBits)
	blockCap := params.blockCap()
	superCap := params.superBlockCap()

	if err := cancelled(ctx); err != nil {
		return nil, err
	}

	// Counting pass and budget check. Nothing is emitted until the
	// bucketing width is known to fit, so an escalation retry starts
	// from a clean sink.
	hist := bz.count()
	var maxSize, maxIdx uint32
	for b, c := range hist {
		if !bz.bk.isShort(uint32(b)) && c > maxSize {
			maxSize, maxIdx = c, uint32(b)
		}
	}
	if int(maxSize) > blockCap {
		return nil, &largeBucketError{bucket: maxIdx, size: maxSize}
	}
	params.logf(3, "setbwt: %d-bit bucketing, %d strings, largest bucket %d", bucketBits, m, maxSize)

	// Destination offsets. Slots [0, m) belong to the per-string phase;
	// bucketed suffixes follow.
	offsets := make([]uint64, len(hist))
	total := uint64(m)
	for b, c := range hist {
		offsets[b] = total
		total += uint64(c)
	}

	pm := make(PrimaryMap, 0, m)

	// Per-string phase: one symbol per input string, the predecessor of
	// that string's terminator, in string-index order. Empty strings
	// contribute their terminator directly.
	batchCap := blockCap / 4
	if batchCap < 1 {
		batchCap = 1
	}
	symbols := make([]uint16, 0, batchCap)
	for k := uint32(0); k < m; k++ {
		if n := set.Len(k); n == 0 {
			pm = append(pm, PrimaryEntry{Position: uint64(k), String: k})
			symbols = append(symbols, Dollar)
		} else {
			symbols = append(symbols, uint16(set.Get(k, n-1)))
		}
		if len(symbols) == cap(symbols) || k == m-1 {
			if err := sink.Process(symbols, nil); err != nil {
				return nil, sinkErr(err)
			}
			symbols = symbols[:0]
		}
	}

	// The scratchpads shrink when the largest sub-bucket allows it.
	const optimalBlock = 32 << 20
	if int(maxSize) <= optimalBlock && blockCap > optimalBlock {
		blockCap = optimalBlock
	}

	hostCap := superCap
	if total-uint64(m) < uint64(hostCap) {
		hostCap = int(total - uint64(m))
	}
	hostBuf := make([]SuffixID, hostCap)

	workers := runtime.GOMAXPROCS(0)
	if workers > 4 {
		workers = 4
	}

	slot := uint64(m)
	numBuckets := uint32(len(hist))
	for bBegin := uint32(0); bBegin < numBuckets; {
		if err := cancelled(ctx); err != nil {
			return nil, err
		}

		// A single bucket larger than the host buffer is tolerable only
		// when it is a short-string bucket, which can stream straight to
		// the sink without being materialized.
		if int(hist[bBegin]) > hostCap {
			if !bz.bk.isShort(bBegin) {
				return nil, ErrBufferOverflow
			}
			if err := bz.emitBucketDirect(bBegin, sink, &pm, &slot); err != nil {
				return nil, err
			}
			bBegin++
			continue
		}

		// Grow the super-block while it fits the host buffer.
		bEnd := bBegin
		size := 0
		for bEnd < numBuckets && int(hist[bEnd]) <= hostCap-size {
			size += int(hist[bEnd])
			bEnd++
		}

		count, maxLen := bz.collect(bBegin, bEnd, offsets, slot, hostBuf)
		if count == 0 {
			bBegin = bEnd
			continue
		}
		spw := symbolsPerWord(set.SymbolBits())
		maxWords := int(maxLen/spw) + 1

		// Partition the collected suffixes into sub-blocks: short
		// buckets pass through unsorted, runs of long buckets group up
		// to the block capacity.
		type subBlock struct {
			lo, hi int
			sort   bool
			ids    []uint32
		}
		var subs []subBlock
		pos := 0
		b := bBegin
		for b < bEnd {
			if hist[b] == 0 {
				b++
				continue
			}
			if bz.bk.isShort(b) {
				subs = append(subs, subBlock{lo: pos, hi: pos + int(hist[b])})
				pos += int(hist[b])
				b++
				continue
			}
			groupSize := 0
			for b < bEnd && !bz.bk.isShort(b) && groupSize+int(hist[b]) <= blockCap {
				groupSize += int(hist[b])
				b++
			}
			subs = append(subs, subBlock{lo: pos, hi: pos + groupSize, sort: true})
			pos += groupSize
		}

		// Sort the sub-blocks across the worker pool; the host buffer
		// segments are disjoint. Radix only: any suffixes still tied
		// after maxWords are identical strings and keep their stable
		// collection order.
		maxSub := 0
		for _, s := range subs {
			if s.sort && s.hi-s.lo > maxSub {
				maxSub = s.hi - s.lo
			}
		}
		g, _ := errgroup.WithContext(ctx)
		for w := 0; w < workers; w++ {
			w := w
			g.Go(func() error {
				var sorter *blockSorter
				for i := w; i < len(subs); i += workers {
					s := &subs[i]
					if !s.sort {
						continue
					}
					seg := hostBuf[s.lo:s.hi]
					ids := make([]uint32, len(seg))
					for j := range ids {
						ids[j] = uint32(j)
					}
					if sorter == nil {
						sorter = newBlockSorter(maxSub)
					}
					ex := newSetRadices(set, seg)
					if _, err := sorter.sort(ids, ex, maxWords, nil); err != nil {
						return err
					}
					s.ids = ids
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}

		// Emit in destination order, gathering each sub-block's symbols
		// from its sorted (or pass-through) suffixes.
		outSyms := make([]uint16, 0, maxSub)
		outSufs := make([]SuffixID, 0, maxSub)
		for _, s := range subs {
			seg := hostBuf[s.lo:s.hi]
			outSyms, outSufs = outSyms[:0], outSufs[:0]
			if s.sort {
				for _, id := range s.ids {
					suf := seg[id]
					outSyms = append(outSyms, setBWTSymbol(set, suf.String, suf.Pos, &pm, slot))
					outSufs = append(outSufs, suf)
					slot++
				}
			} else {
				for _, suf := range seg {
					outSyms = append(outSyms, setBWTSymbol(set, suf.String, suf.Pos, &pm, slot))
					outSufs = append(outSufs, suf)
					slot++
				}
			}
			if err := sink.Process(outSyms, outSufs); err != nil {
				return nil, sinkErr(err)
			}
		}
		bBegin = bEnd
	}

	if err := sink.Flush(); err != nil {
		return nil, sinkErr(err)
	}
	params.logf(4, "setbwt: %d symbols emitted, %d terminators", slot, len(pm))
	return pm, nil
}
