// Copyright 2021, The biokit Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE.md file.

package bwt

import (
	"math/bits"

	"github.com/biokit/sufsort/bwt/internal/sais"
	"github.com/biokit/sufsort/packed"
)

// DCS is a difference cover sampler over a single string: a periodic
// sample of suffix positions whose ranks, once computed, give a
// constant-time total order on arbitrary suffixes. For any two positions
// p and q there is a shift delta < v such that both p+delta and q+delta
// are sampled; Compare walks at most delta symbols and then consults the
// sample ranks.
//
// The cover D of Z_v is generated with the r-squared construction
// (v = r*r, D = {0..r-1} union {0, r, ..., (r-1)r}), which covers every
// difference: d = a*r+b is the difference of a multiple of r and an
// element of {0..r-1}.
type DCS struct {
	text *packed.Stream
	n    uint32 // string length; the terminator sits at n

	v       uint32   // period
	cover   []uint32 // sorted residues of D
	witness []uint32 // per difference d, a y with y and (y+d) mod v in D

	resRank  []uint32 // residue -> index into cover, or ^0
	groupOff []uint32 // per cover residue, offset into ranks
	ranks    []uint32 // rank per sample, grouped by residue
}

// dcsPeriod picks the sampling period from the string length: longer
// strings get a sparser sample at the price of longer walks per
// comparison.
func dcsPeriod(n uint32) uint32 {
	switch {
	case n < 1<<20:
		return 64
	case n < 1<<26:
		return 256
	default:
		return 1024
	}
}

// buildDCS constructs and ranks the sample for text. The sampled
// sub-problem is solved by sorting the sample's leading windows with the
// block sorter, naming them, and, when names collide, suffix-sorting the
// reduced name string; reductions beyond ceil(log2 n)+2 levels fail with
// ErrConstructionLimit.
func buildDCS(text *packed.Stream, params *BWTParams) (*DCS, error) {
	n := uint32(text.Len())
	v := dcsPeriod(n)
	r := uint32(1)
	for r*r < v {
		r++
	}

	d := &DCS{text: text, n: n, v: v}

	// Build the cover and its membership.
	inD := make([]bool, v)
	for i := uint32(0); i < r; i++ {
		inD[i] = true
		inD[i*r] = true
	}
	d.resRank = make([]uint32, v)
	for i := range d.resRank {
		d.resRank[i] = ^uint32(0)
	}
	for res := uint32(0); res < v; res++ {
		if inD[res] {
			d.resRank[res] = uint32(len(d.cover))
			d.cover = append(d.cover, res)
		}
	}

	// For every difference, record a witness y in D with y+d also in D.
	d.witness = make([]uint32, v)
	for diff := uint32(0); diff < v; diff++ {
		found := false
		for _, y := range d.cover {
			if inD[(y+diff)%v] {
				d.witness[diff] = y
				found = true
				break
			}
		}
		if !found {
			panic("bwt: difference cover does not cover") // unreachable by construction
		}
	}

	// Enumerate the sample, grouped by residue. The domain extends v
	// positions past the terminator so that p+delta is always sampled
	// for p < n.
	limit := n + v
	d.groupOff = make([]uint32, len(d.cover)+1)
	var samples []uint32
	for gi, res := range d.cover {
		d.groupOff[gi] = uint32(len(samples))
		for x := res; x < limit; x += v {
			samples = append(samples, x)
		}
	}
	d.groupOff[len(d.cover)] = uint32(len(samples))

	params.logf(5, "dcs: period %d, %d samples", v, len(samples))

	if err := d.rankSamples(samples, params); err != nil {
		return nil, err
	}
	return d, nil
}

// rankSamples computes the rank of every sample, in sample-suffix order.
func (d *DCS) rankSamples(samples []uint32, params *BWTParams) error {
	m := len(samples)
	d.ranks = make([]uint32, m)
	if m == 0 {
		return nil
	}

	// Sort the samples by their leading v symbols.
	ex := newTextRadices(d.text)
	maxWords := int((d.v + ex.spw - 1) / ex.spw)
	sorted := make([]uint32, m)
	copy(sorted, samples)
	sorter := newBlockSorter(m)
	ties, err := sorter.sort(sorted, ex, maxWords, nil)
	if err != nil {
		return err
	}

	// Assign names: tied samples share one.
	sameAsPrev := make([]bool, m)
	for _, t := range ties {
		for i := t.Lo + 1; i < t.Hi; i++ {
			sameAsPrev[i] = true
		}
	}
	names := make([]int32, m) // indexed like samples (grouped by residue)
	numNames := 0
	for i, x := range sorted {
		if !sameAsPrev[i] {
			numNames++
		}
		names[d.sampleIndex(x)] = int32(numNames)
	}

	if numNames == m {
		// Every window is unique: the window order is the suffix order.
		for i, x := range sorted {
			d.ranks[d.sampleIndex(x)] = uint32(i)
		}
		return nil
	}

	// Reduced problem: the name string, one name per sample in residue
	// group order, groups separated by 1, terminated by the unique
	// sentinel 0. Names occupy 2..numNames+1.
	ng := len(d.groupOff) - 1
	T1 := make([]int32, 0, m+ng)
	idxOf := make([]int32, 0, m+ng) // sample index per string position, -1 for separators
	for gi := 0; gi < ng; gi++ {
		for j := d.groupOff[gi]; j < d.groupOff[gi+1]; j++ {
			T1 = append(T1, names[j]+1)
			idxOf = append(idxOf, int32(j))
		}
		if gi < ng-1 {
			T1 = append(T1, 1)
			idxOf = append(idxOf, -1)
		}
	}
	T1 = append(T1, 0)
	idxOf = append(idxOf, -1)

	SA1 := make([]int32, len(T1))
	maxDepth := bits.Len32(d.n-1) + 2 // ceil(log2 n) + 2
	if err := sais.ComputeSA(T1, SA1, numNames+2, maxDepth); err != nil {
		return ErrConstructionLimit
	}

	rank := uint32(0)
	for _, si := range SA1 {
		if j := idxOf[si]; j >= 0 {
			d.ranks[j] = rank
			rank++
		}
	}
	return nil
}

// sampleIndex maps a sampled position to its slot in the rank array.
func (d *DCS) sampleIndex(x uint32) uint32 {
	res := x % d.v
	return d.groupOff[d.resRank[res]] + (x-res)/d.v
}

// Period returns the sampling period v.
func (d *DCS) Period() uint32 { return d.v }

// Compare returns the order of the suffixes starting at p and q: a
// negative value if suffix p sorts first, positive if suffix q does, and
// zero only when p == q. Positions beyond n-1 read as the terminator,
// which orders below every symbol.
func (d *DCS) Compare(p, q uint32) int {
	if p == q {
		return 0
	}
	dd := (q%d.v + d.v - p%d.v) % d.v
	delta := (d.witness[dd] + d.v - p%d.v) % d.v

	for i := uint32(0); i < delta; i++ {
		pa, qa := p+i, q+i
		pd, qd := pa >= d.n, qa >= d.n
		if pd || qd {
			if pd && qd {
				// Both suffixes exhausted at the same offset; impossible
				// for distinct p and q, but order by position for safety.
				return int(q) - int(p)
			}
			if pd {
				return -1
			}
			return 1
		}
		sa, sb := d.text.Get(int(pa)), d.text.Get(int(qa))
		if sa != sb {
			return int(sa) - int(sb)
		}
	}
	ra := d.ranks[d.sampleIndex(p+delta)]
	rb := d.ranks[d.sampleIndex(q+delta)]
	return int(ra) - int(rb)
}
