// Copyright 2021, The biokit Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE.md file.

package bwt

import (
	"runtime"

	"golang.org/x/sync/errgroup"
)

// chunkStrings is the number of strings streamed per chunk through the
// bounded inner working set.
const chunkStrings = 128 * 1024

// setBucketizer streams chunks of a string set and produces per-bucket
// suffix lists. A counting pass over the whole set builds the global
// bucket histogram; collecting passes then re-stream the chunks for each
// super-block of buckets and scatter the matching suffixes to the host
// buffer through per-bucket running offsets.
type setBucketizer struct {
	set *StringSet
	bk  bucketer
}

func newSetBucketizer(set *StringSet, bucketBits uint) *setBucketizer {
	return &setBucketizer{set: set, bk: newBucketer(bucketBits, set.SymbolBits())}
}

func (bz *setBucketizer) numChunks() uint32 {
	return (uint32(bz.set.Count()) + chunkStrings - 1) / chunkStrings
}

func (bz *setBucketizer) chunkRange(chunk uint32) (lo, hi uint32) {
	lo = chunk * chunkStrings
	hi = lo + chunkStrings
	if m := uint32(bz.set.Count()); hi > m {
		hi = m
	}
	return lo, hi
}

// bucketOf returns the bucket of suffix (k, p).
func (bz *setBucketizer) bucketOf(k, p uint32) uint32 {
	n := bz.set.Len(k)
	return bz.bk.bucketOf(p, n, func(j uint32) uint32 { return bz.set.Get(k, j) })
}

// count runs the counting pass: every chunk's contributions are counted
// into a local histogram and merged into the global one by addition.
func (bz *setBucketizer) count() []uint32 {
	chunks := bz.numChunks()
	workers := runtime.GOMAXPROCS(0)
	if workers > 4 {
		workers = 4
	}
	if chunks < 2 || bz.bk.count() >= 1<<22 {
		workers = 1
	}
	if uint32(workers) > chunks && chunks > 0 {
		workers = int(chunks)
	}

	local := make([][]uint32, workers)
	var g errgroup.Group
	for w := 0; w < workers; w++ {
		w := w
		g.Go(func() error {
			hist := make([]uint32, bz.bk.count())
			for chunk := uint32(w); chunk < chunks; chunk += uint32(workers) {
				lo, hi := bz.chunkRange(chunk)
				for k := lo; k < hi; k++ {
					n := bz.set.Len(k)
					for p := uint32(0); p < n; p++ {
						hist[bz.bucketOf(k, p)]++
					}
				}
			}
			local[w] = hist
			return nil
		})
	}
	g.Wait()

	if workers == 0 {
		return make([]uint32, bz.bk.count())
	}
	hist := local[0]
	for _, h := range local[1:] {
		for i, c := range h {
			hist[i] += c
		}
	}
	return hist
}

// collect re-streams every chunk and materializes the suffixes whose
// bucket falls in [bLo, bHi), scattering them into out through the
// per-bucket running offsets. base is the global slot of out[0]. The
// offsets advance as suffixes are dispatched, so a later super-block
// continues where the previous one stopped. It returns the number of
// suffixes collected and the longest suffix seen.
func (bz *setBucketizer) collect(bLo, bHi uint32, offsets []uint64, base uint64, out []SuffixID) (int, uint32) {
	collected := 0
	maxLen := uint32(0)
	m := uint32(bz.set.Count())
	for k := uint32(0); k < m; k++ {
		n := bz.set.Len(k)
		for p := uint32(0); p < n; p++ {
			b := bz.bucketOf(k, p)
			if b < bLo || b >= bHi {
				continue
			}
			slot := offsets[b]
			offsets[b]++
			out[slot-base] = SuffixID{String: k, Pos: p}
			collected++
			if n-p > maxLen {
				maxLen = n - p
			}
		}
	}
	return collected, maxLen
}

// emitBucketDirect streams one short-string bucket straight to the sink,
// chunk by chunk, without materializing it: the suffixes of such a
// bucket are fully ordered by the bucket itself, so their predecessor
// symbols are emitted in collection order.
func (bz *setBucketizer) emitBucketDirect(bucket uint32, sink SetSink, pm *PrimaryMap, slot *uint64) error {
	m := uint32(bz.set.Count())
	batch := make([]uint16, 0, 1<<16)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := sink.Process(batch, nil); err != nil {
			return sinkErr(err)
		}
		batch = batch[:0]
		return nil
	}
	for k := uint32(0); k < m; k++ {
		n := bz.set.Len(k)
		for p := uint32(0); p < n; p++ {
			if bz.bucketOf(k, p) != bucket {
				continue
			}
			batch = append(batch, setBWTSymbol(bz.set, k, p, pm, *slot))
			*slot++
			if len(batch) == cap(batch) {
				if err := flush(); err != nil {
					return err
				}
			}
		}
	}
	return flush()
}

// setBWTSymbol returns the BWT symbol of suffix (k, p): the symbol
// preceding it, or the terminator token for whole-string suffixes, in
// which case the primary map records the slot.
func setBWTSymbol(set *StringSet, k, p uint32, pm *PrimaryMap, slot uint64) uint16 {
	if p == 0 {
		*pm = append(*pm, PrimaryEntry{Position: slot, String: k})
		return Dollar
	}
	return uint16(set.Get(k, p-1))
}
