// Copyright 2021, The biokit Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE.md file.

package bwtio

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/klauspost/compress/gzip"

	"github.com/biokit/sufsort/bwt"
)

func TestBWTRoundTrip(t *testing.T) {
	dir := t.TempDir()
	symbols := []uint16{1, 3, bwt.Dollar, 0, bwt.Dollar, 2} // C T $ A $ G

	vectors := []struct {
		file    string
		dollars bool // format preserves terminator tokens on read
	}{
		{"out.txt", true},
		{"out.txt.gz", true},
		{"out.txt.bgz", true},
		{"out.txt.xz", true},
		{"out.bwt", false},
		{"out.bwt.gz", false},
		{"out.bwt4", true},
		{"out.bwt4.xz", true},
	}

	for _, v := range vectors {
		path := filepath.Join(dir, v.file)
		if err := WriteBWT(path, symbols, 2, 6); err != nil {
			t.Errorf("%s: write: %v", v.file, err)
			continue
		}
		got, err := ReadBWT(path, 2, len(symbols))
		if err != nil {
			t.Errorf("%s: read: %v", v.file, err)
			continue
		}
		want := symbols
		if !v.dollars {
			// The 2-bit form has no terminator code; those slots read
			// back as symbol 0 and their positions live in the primary
			// map.
			want = append([]uint16(nil), symbols...)
			for i, s := range want {
				if s == bwt.Dollar {
					want[i] = 0
				}
			}
		}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("%s: round trip mismatch (-want +got):\n%s", v.file, diff)
		}
	}
}

func TestASCIIRendering(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.txt")
	if err := WriteBWT(path, []uint16{1, 3, bwt.Dollar, 0, bwt.Dollar, 2}, 2, 6); err != nil {
		t.Fatalf("write: %v", err)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(raw) != "CT$A$G" {
		t.Errorf("ascii form = %q, want %q", raw, "CT$A$G")
	}
}

func TestPackedLayout(t *testing.T) {
	// 2-bit little-endian within a 32-bit word: the first symbol sits in
	// the low bits.
	dir := t.TempDir()
	path := filepath.Join(dir, "out.bwt")
	if err := WriteBWT(path, []uint16{0, 1, 2, 3}, 2, 6); err != nil {
		t.Fatalf("write: %v", err)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	want := []byte{0b11_10_01_00, 0, 0, 0}
	if !bytes.Equal(raw, want) {
		t.Errorf("packed form = %08b, want %08b", raw, want)
	}
}

func TestPrimaryMapRoundTrip(t *testing.T) {
	dir := t.TempDir()
	pm := bwt.PrimaryMap{
		{Position: 2, String: 0},
		{Position: 4, String: 1},
		{Position: 1 << 40, String: 12345},
	}
	for _, v := range []struct {
		file   string
		binary bool
	}{
		{"map.pri", false},
		{"map.pri.gz", false},
		{"map.pri", true},
		{"map.pri.bgz", true},
	} {
		path := filepath.Join(dir, v.file)
		if err := WritePrimaryMap(path, pm, v.binary, 6); err != nil {
			t.Errorf("%s binary=%v: write: %v", v.file, v.binary, err)
			continue
		}
		got, err := ReadPrimaryMap(path)
		if err != nil {
			t.Errorf("%s binary=%v: read: %v", v.file, v.binary, err)
			continue
		}
		if diff := cmp.Diff(pm, got); diff != "" {
			t.Errorf("%s binary=%v: mismatch (-want +got):\n%s", v.file, v.binary, diff)
		}
	}
}

func TestPrimaryMapForms(t *testing.T) {
	dir := t.TempDir()
	pm := bwt.PrimaryMap{{Position: 7, String: 3}}

	path := filepath.Join(dir, "a.pri")
	if err := WritePrimaryMap(path, pm, false, 6); err != nil {
		t.Fatalf("write ascii: %v", err)
	}
	raw, _ := os.ReadFile(path)
	if string(raw) != "#PRI\n7 3\n" {
		t.Errorf("ascii form = %q", raw)
	}

	path = filepath.Join(dir, "b.pri")
	if err := WritePrimaryMap(path, pm, true, 6); err != nil {
		t.Fatalf("write binary: %v", err)
	}
	raw, _ = os.ReadFile(path)
	want := append([]byte("PRIB"), 7, 0, 0, 0, 0, 0, 0, 0, 3, 0, 0, 0)
	if !bytes.Equal(raw, want) {
		t.Errorf("binary form = %v, want %v", raw, want)
	}
}

func TestOpenTXT(t *testing.T) {
	dir := t.TempDir()

	plain := filepath.Join(dir, "reads.txt")
	os.WriteFile(plain, []byte("ACGT\nTTTT\n\nGG\n"), 0666)

	gz := filepath.Join(dir, "reads.txt.gz")
	f, _ := os.Create(gz)
	zw := gzip.NewWriter(f)
	zw.Write([]byte("ACGT\nTTTT\nGG\n"))
	zw.Close()
	f.Close()

	for _, path := range []string{plain, gz} {
		r, err := OpenTXT(path)
		if err != nil {
			t.Fatalf("%s: open: %v", path, err)
		}
		var reads []string
		for {
			b, err := r.NextBatch(2, 0)
			if err == io.EOF {
				break
			}
			if err != nil {
				t.Fatalf("%s: next: %v", path, err)
			}
			for _, rd := range b.Reads {
				reads = append(reads, string(rd))
			}
		}
		r.Close()
		if diff := cmp.Diff([]string{"ACGT", "TTTT", "GG"}, reads); diff != "" {
			t.Errorf("%s: reads mismatch (-want +got):\n%s", path, diff)
		}
	}
}

func TestAppendRead(t *testing.T) {
	set := bwt.NewStringSet(2, false)
	err := AppendRead(set, []byte("ACGT"), Forward|Reverse|ForwardComplement|ReverseComplement)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if set.Count() != 4 {
		t.Fatalf("set holds %d strings, want 4", set.Count())
	}
	wants := [][]byte{
		{0, 1, 2, 3}, // forward ACGT
		{3, 2, 1, 0}, // forward complement TGCA
		{3, 2, 1, 0}, // reverse TGCA
		{0, 1, 2, 3}, // reverse complement ACGT
	}
	for k, want := range wants {
		got := make([]byte, set.Len(uint32(k)))
		for p := range got {
			got[p] = byte(set.Get(uint32(k), uint32(p)))
		}
		if !bytes.Equal(got, want) {
			t.Errorf("string %d = %v, want %v", k, got, want)
		}
	}

	if err := AppendRead(set, []byte("AC!T"), Forward); err == nil {
		t.Errorf("invalid byte unexpectedly accepted")
	}
}
