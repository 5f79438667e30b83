// Copyright 2021, The biokit Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE.md file.

package bwt

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sort"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/biokit/sufsort/internal/testutil"
)

func buildSet(bits uint, strs ...[]byte) *StringSet {
	set := NewStringSet(bits, false)
	for _, s := range strs {
		set.Append(s)
	}
	return set
}

func dnaSet(strs ...string) *StringSet {
	set := NewStringSet(2, false)
	for _, s := range strs {
		codes := make([]byte, len(s))
		for i := range s {
			codes[i] = byte(map[byte]byte{'A': 0, 'C': 1, 'G': 2, 'T': 3}[s[i]])
		}
		set.Append(codes)
	}
	return set
}

// naiveSetBWT sorts every suffix of the set by comparison, terminators
// smallest and ties broken by string index, and reads off the preceding
// symbols.
func naiveSetBWT(strs [][]byte) ([]uint16, PrimaryMap) {
	type suf struct{ k, p int }
	var sufs []suf
	for k, s := range strs {
		for p := 0; p <= len(s); p++ {
			sufs = append(sufs, suf{k, p})
		}
	}
	sort.SliceStable(sufs, func(i, j int) bool {
		a, b := sufs[i], sufs[j]
		sa, sb := strs[a.k], strs[b.k]
		for d := 0; ; d++ {
			ad, bd := a.p+d >= len(sa), b.p+d >= len(sb)
			if ad || bd {
				if ad && bd {
					return a.k < b.k
				}
				return ad
			}
			if sa[a.p+d] != sb[b.p+d] {
				return sa[a.p+d] < sb[b.p+d]
			}
		}
	})

	var out []uint16
	var pm PrimaryMap
	for i, s := range sufs {
		str := strs[s.k]
		switch {
		case s.p == len(str) && s.p == 0: // empty string's empty suffix
			pm = append(pm, PrimaryEntry{Position: uint64(i), String: uint32(s.k)})
			out = append(out, Dollar)
		case s.p == len(str):
			out = append(out, uint16(str[len(str)-1]))
		case s.p == 0:
			pm = append(pm, PrimaryEntry{Position: uint64(i), String: uint32(s.k)})
			out = append(out, Dollar)
		default:
			out = append(out, uint16(str[s.p-1]))
		}
	}
	return out, pm
}

func runSetBWT(t *testing.T, set *StringSet, params *BWTParams) ([]uint16, PrimaryMap) {
	t.Helper()
	var sink MemorySetSink
	pm, err := SetBWT(context.Background(), set, &sink, params)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return sink.Symbols, pm
}

func TestSetBWTVector(t *testing.T) {
	// S = {"AC", "GT"}: the sorted suffixes are the two empties, then
	// AC$ < C$ < GT$ < T$, giving the stream CT$A$G.
	set := dnaSet("AC", "GT")
	symbols, pm := runSetBWT(t, set, nil)

	want := []uint16{1, 3, Dollar, 0, Dollar, 2} // C T $ A $ G
	if diff := cmp.Diff(want, symbols); diff != "" {
		t.Errorf("symbols mismatch (-want +got):\n%s", diff)
	}
	wantPM := PrimaryMap{{Position: 2, String: 0}, {Position: 4, String: 1}}
	if diff := cmp.Diff(wantPM, pm); diff != "" {
		t.Errorf("primary map mismatch (-want +got):\n%s", diff)
	}
}

func TestSetBWTOracle(t *testing.T) {
	rand := testutil.NewRand(12)
	vectors := []struct {
		name string
		strs [][]byte
	}{
		{"twoShort", [][]byte{{0, 1}, {2, 3}}},
		{"withEmpty", [][]byte{{1, 2, 3}, nil, {1, 2, 3}, {0}}},
		{"identical", [][]byte{{0, 0, 1}, {0, 0, 1}, {0, 0, 1}}},
		{"prefixes", [][]byte{{0, 1, 2}, {0, 1}, {0}, nil}},
	}
	for i := 0; i < 3; i++ {
		var strs [][]byte
		for j := 0; j < 50; j++ {
			strs = append(strs, rand.DNA(1+rand.Intn(20)))
		}
		vectors = append(vectors, struct {
			name string
			strs [][]byte
		}{"random", strs})
	}

	for _, v := range vectors {
		set := buildSet(2, v.strs...)
		symbols, pm := runSetBWT(t, set, nil)
		wantSyms, wantPM := naiveSetBWT(v.strs)
		if diff := cmp.Diff(wantSyms, symbols); diff != "" {
			t.Errorf("%s: symbols mismatch (-want +got):\n%s", v.name, diff)
		}
		if diff := cmp.Diff(wantPM, pm); diff != "" {
			t.Errorf("%s: primary map mismatch (-want +got):\n%s", v.name, diff)
		}
	}
}

func TestSetBWTInvariants(t *testing.T) {
	rand := testutil.NewRand(13)
	var strs [][]byte
	total := 0
	for j := 0; j < 1000; j++ {
		s := rand.DNA(100)
		strs = append(strs, s)
		total += len(s)
	}
	set := buildSet(2, strs...)
	symbols, pm := runSetBWT(t, set, nil)

	if len(symbols) != total+len(strs) {
		t.Errorf("emitted %d symbols, want %d", len(symbols), total+len(strs))
	}
	if len(pm) != len(strs) {
		t.Fatalf("primary map holds %d entries, want %d", len(pm), len(strs))
	}
	seen := make(map[uint32]bool)
	for i, e := range pm {
		if i > 0 && e.Position <= pm[i-1].Position {
			t.Errorf("primary map not strictly increasing at %d", i)
		}
		if seen[e.String] {
			t.Errorf("string %d appears twice in the primary map", e.String)
		}
		seen[e.String] = true
		if symbols[e.Position] != Dollar {
			t.Errorf("primary map entry %d does not point at a terminator", i)
		}
	}

	// Round trip through the standard inversion.
	back := InvertSet(symbols, pm)
	for k, s := range strs {
		if !bytes.Equal(back[k], s) {
			t.Fatalf("string %d does not round trip", k)
		}
	}
}

func TestSetBWTDeterminism(t *testing.T) {
	rand := testutil.NewRand(14)
	var strs [][]byte
	for j := 0; j < 200; j++ {
		strs = append(strs, rand.DNA(1+rand.Intn(50)))
	}
	set := buildSet(2, strs...)
	s1, pm1 := runSetBWT(t, set, nil)
	s2, pm2 := runSetBWT(t, set, nil)
	if !cmp.Equal(s1, s2) || !cmp.Equal(pm1, pm2) {
		t.Errorf("two runs over identical input diverge")
	}
}

// TestSetBWTEscalation forces the 16-bit bucketing over the inner
// budget: sixteen strings sharing a six-symbol prefix collide into one
// bucket at 16 bits but split at 20.
func TestSetBWTEscalation(t *testing.T) {
	var strs [][]byte
	for a := byte(0); a < 4; a++ {
		for b := byte(0); b < 4; b++ {
			strs = append(strs, []byte{0, 0, 0, 0, 0, 0, a, b, 1, 2, 3})
		}
	}
	set := buildSet(2, strs...)

	var logged []string
	params := &BWTParams{
		DeviceMemory: 32 * 8, // room for 8 suffixes per block
		Verbosity:    6,
		Logf: func(level int, format string, args ...interface{}) {
			logged = append(logged, format)
		},
	}
	symbols, pm := runSetBWT(t, set, params)

	escalated := false
	for _, msg := range logged {
		if strings.Contains(msg, "escalating") {
			escalated = true
		}
	}
	if !escalated {
		t.Errorf("16-bit bucketing unexpectedly fit the budget")
	}

	// The escalated run must match the un-escalated reference.
	wantSyms, wantPM := runSetBWT(t, set, nil)
	if diff := cmp.Diff(wantSyms, symbols); diff != "" {
		t.Errorf("escalated symbols mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(wantPM, pm); diff != "" {
		t.Errorf("escalated primary map mismatch (-want +got):\n%s", diff)
	}
}

func TestSetBWTBudgetExhausted(t *testing.T) {
	// Seventeen identical strings collide into one bucket at every
	// width.
	var strs [][]byte
	for i := 0; i < 17; i++ {
		strs = append(strs, make([]byte, 12))
	}
	set := buildSet(2, strs...)
	var sink MemorySetSink
	params := &BWTParams{DeviceMemory: 32 * 8}
	_, err := SetBWT(context.Background(), set, &sink, params)
	if !errors.Is(err, ErrMemoryBudget) {
		t.Fatalf("got %v, want %v", err, ErrMemoryBudget)
	}
	var be *BudgetError
	if !errors.As(err, &be) || be.Size < 17 {
		t.Fatalf("budget error missing counters: %v", err)
	}
	if len(sink.Symbols) != 0 {
		t.Errorf("sink received %d symbols before the failure surfaced", len(sink.Symbols))
	}
}

// TestSetBWTShortBucketDirect drives the streaming path for a
// short-string bucket too large for the host buffer: tens of thousands
// of identical three-symbol strings, never routed through the sorter.
func TestSetBWTShortBucketDirect(t *testing.T) {
	var strs [][]byte
	for i := 0; i < 70000; i++ {
		strs = append(strs, []byte{0, 1, 2})
	}
	set := buildSet(2, strs...)
	params := &BWTParams{HostMemory: 1} // floors the host buffer at 64Ki suffixes
	symbols, pm := runSetBWT(t, set, params)

	wantSyms, wantPM := naiveSetBWT(strs)
	if !cmp.Equal(wantSyms, symbols) {
		t.Errorf("direct-emit stream mismatch")
	}
	if !cmp.Equal(wantPM, pm) {
		t.Errorf("direct-emit primary map mismatch")
	}
}

func TestSetBWTSinkError(t *testing.T) {
	rand := testutil.NewRand(15)
	var strs [][]byte
	for j := 0; j < 100; j++ {
		strs = append(strs, rand.DNA(30))
	}
	set := buildSet(2, strs...)
	cause := errors.New("pipe closed")
	sink := NewASCIISink(&testutil.BuggyWriter{W: io.Discard, N: 50, Err: cause}, 2)
	_, err := SetBWT(context.Background(), set, sink, nil)
	if !errors.Is(err, ErrSink) || !errors.Is(err, cause) {
		t.Errorf("got %v, want sink failure carrying its cause", err)
	}
}

func TestSetBWTCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	set := dnaSet("ACGT", "TGCA")
	var sink MemorySetSink
	if _, err := SetBWT(ctx, set, &sink, nil); !errors.Is(err, ErrCancelled) {
		t.Errorf("got %v, want %v", err, ErrCancelled)
	}
}

func TestSetBWTEmptySet(t *testing.T) {
	set := NewStringSet(2, false)
	symbols, pm := runSetBWT(t, set, nil)
	if len(symbols) != 0 || len(pm) != 0 {
		t.Errorf("empty set emitted %d symbols, %d primaries", len(symbols), len(pm))
	}
}
