// Copyright 2021, The biokit Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE.md file.

package bwt

import (
	"testing"

	"github.com/biokit/sufsort/internal/testutil"
	"github.com/biokit/sufsort/packed"
)

// naiveSuffixCompare orders suffixes by symbols, with the terminator at
// position n below every symbol.
func naiveSuffixCompare(text *packed.Stream, p, q uint32) int {
	n := uint32(text.Len())
	for {
		pd, qd := p >= n, q >= n
		switch {
		case pd && qd:
			return 0
		case pd:
			return -1
		case qd:
			return 1
		}
		a, b := text.Get(int(p)), text.Get(int(q))
		if a != b {
			return int(a) - int(b)
		}
		p++
		q++
	}
}

func sign(v int) int {
	switch {
	case v < 0:
		return -1
	case v > 0:
		return 1
	}
	return 0
}

// TestDCSCoverProperty verifies that the r-squared construction covers
// every difference for each period in the table.
func TestDCSCoverProperty(t *testing.T) {
	for _, v := range []uint32{64, 256, 1024} {
		r := uint32(1)
		for r*r < v {
			r++
		}
		inD := make([]bool, v)
		for i := uint32(0); i < r; i++ {
			inD[i] = true
			inD[i*r] = true
		}
		for diff := uint32(0); diff < v; diff++ {
			found := false
			for y := uint32(0); y < v && !found; y++ {
				found = inD[y] && inD[(y+diff)%v]
			}
			if !found {
				t.Errorf("period %d, difference %d not covered", v, diff)
			}
		}
	}
}

// TestDCSWitnesses verifies the built witness table against the cover.
func TestDCSWitnesses(t *testing.T) {
	rand := testutil.NewRand(3)
	text := packed.FromBytes(2, false, rand.DNA(100))
	d, err := buildDCS(text, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	inD := make([]bool, d.v)
	for _, res := range d.cover {
		inD[res] = true
	}
	for diff := uint32(0); diff < d.v; diff++ {
		y := d.witness[diff]
		if !inD[y] || !inD[(y+diff)%d.v] {
			t.Errorf("witness %d for difference %d not in cover", y, diff)
		}
	}
}

func TestDCSCompare(t *testing.T) {
	rand := testutil.NewRand(4)
	vectors := []struct {
		name string
		bits uint
		syms []byte
	}{
		{"randomDNA", 2, rand.DNA(5000)},
		{"allEqual", 2, make([]byte, 2000)},
		{"alternating", 8, alternating(3000)},
		{"random8bit", 8, rand.Symbols(3000, 256)},
		{"tiny", 2, rand.DNA(3)},
	}

	for _, v := range vectors {
		text := packed.FromBytes(v.bits, false, v.syms)
		d, err := buildDCS(text, nil)
		if err != nil {
			t.Errorf("%s: unexpected error: %v", v.name, err)
			continue
		}
		n := uint32(len(v.syms))
		check := func(p, q uint32) {
			got := sign(d.Compare(p, q))
			want := sign(naiveSuffixCompare(text, p, q))
			if got != want {
				t.Fatalf("%s: Compare(%d, %d) = %d, want %d", v.name, p, q, got, want)
			}
		}
		for i := 0; i < 3000 && n > 0; i++ {
			check(uint32(rand.Intn(int(n))), uint32(rand.Intn(int(n))))
		}
		// Long-overlap pairs stress the walk-then-rank path.
		for p := uint32(0); p+1 < n && p < 200; p++ {
			check(p, p+1)
		}
	}
}

func alternating(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte('a' + i%2)
	}
	return b
}
