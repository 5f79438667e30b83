// Copyright 2021, The biokit Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE.md file.

package bwt

import "sort"

// blockSorter sorts one bounded batch of suffixes by radix words.
// It performs what is essentially an LSD radix sort on the suffixes,
// word by word: for each word depth, from the deepest down to the first,
// it extracts the keys and stable-sorts the (key, index) pairs. The
// stability of every pass preserves the order established by the deeper
// passes, so groups equal at one depth stay ordered by the depths already
// processed.
type blockSorter struct {
	capacity int
	keys     []uint32
	tmpKeys  []uint32
	tmpIDs   []uint32
	count    []uint32 // 1 << 16 counters shared by both passes
}

// tieRange identifies a run [Lo, Hi) of indexes whose suffixes remain
// tied after the sorted word depth.
type tieRange struct {
	Lo, Hi int
}

// smallSortThreshold is the batch size below which the comparison path
// beats the counting passes.
const smallSortThreshold = 1 << 10

func newBlockSorter(capacity int) *blockSorter {
	return &blockSorter{
		capacity: capacity,
		keys:     make([]uint32, capacity),
		tmpKeys:  make([]uint32, capacity),
		tmpIDs:   make([]uint32, capacity),
		count:    make([]uint32, 1<<16),
	}
}

// sort permutes ids into sorted order with respect to the first maxWords
// radix words of each suffix. If dcs is non-nil, groups still tied after
// maxWords are resolved through the sampler and the returned delay list
// is empty; otherwise the tied ranges are returned for the caller to
// resolve or to leave in their stable pre-pass order.
func (s *blockSorter) sort(ids []uint32, ex radixExtractor, maxWords int, dcs *DCS) ([]tieRange, error) {
	n := len(ids)
	if n > s.capacity {
		return nil, ErrBufferOverflow
	}
	if n < 2 {
		return nil, nil
	}

	// Small batches skip the counting passes: a stable comparison sort
	// over the same word keys produces the identical permutation without
	// paying the per-pass counter scans.
	if n < smallSortThreshold {
		sort.SliceStable(ids, func(i, j int) bool {
			for w := uint32(0); w < uint32(maxWords); w++ {
				ka, kb := ex.extract(ids[i], w), ex.extract(ids[j], w)
				if ka != kb {
					return ka < kb
				}
			}
			return false
		})
	} else {
		keys := s.keys[:n]
		for w := maxWords - 1; w >= 0; w-- {
			for i, id := range ids {
				keys[i] = ex.extract(id, uint32(w))
			}
			s.radixPass(keys, ids, 0)
			s.radixPass(keys, ids, 16)
		}
	}

	ties := s.findTies(ids, ex, maxWords)
	if dcs == nil {
		return ties, nil
	}
	for _, t := range ties {
		grp := ids[t.Lo:t.Hi]
		sort.Slice(grp, func(i, j int) bool {
			return dcs.Compare(grp[i], grp[j]) < 0
		})
	}
	return nil, nil
}

// radixPass stable-sorts the (key, id) pairs by the 16 key bits starting
// at the given shift.
func (s *blockSorter) radixPass(keys, ids []uint32, shift uint) {
	n := len(keys)
	count := s.count[:1<<16]
	for i := range count {
		count[i] = 0
	}
	for _, k := range keys {
		count[k>>shift&0xffff]++
	}
	var sum uint32
	for i, c := range count {
		count[i] = sum
		sum += c
	}
	tmpKeys, tmpIDs := s.tmpKeys[:n], s.tmpIDs[:n]
	for i, k := range keys {
		j := count[k>>shift&0xffff]
		count[k>>shift&0xffff]++
		tmpKeys[j] = k
		tmpIDs[j] = ids[i]
	}
	copy(keys, tmpKeys)
	copy(ids, tmpIDs)
}

// findTies scans the sorted ids for runs whose suffixes agree on every
// extracted word.
func (s *blockSorter) findTies(ids []uint32, ex radixExtractor, maxWords int) []tieRange {
	var ties []tieRange
	lo := 0
	for i := 1; i <= len(ids); i++ {
		if i < len(ids) && equalWords(ids[i-1], ids[i], ex, maxWords) {
			continue
		}
		if i-lo > 1 {
			ties = append(ties, tieRange{Lo: lo, Hi: i})
		}
		lo = i
	}
	return ties
}

func equalWords(a, b uint32, ex radixExtractor, maxWords int) bool {
	for w := uint32(0); w < uint32(maxWords); w++ {
		if ex.extract(a, w) != ex.extract(b, w) {
			return false
		}
	}
	return true
}
