// Copyright 2021, The biokit Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE.md file.

package bwtio

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/gzip"

	"github.com/biokit/sufsort/bwt"
	"github.com/biokit/sufsort/packed"
)

// Batch is one pull of read records from an input stream. Quality
// scores, when the source format carries them, are dropped before the
// batch is formed; the engine consumes symbols only.
type Batch struct {
	Reads [][]byte // ASCII bases
}

// Reader pulls batches of read records. NextBatch returns io.EOF once
// the stream is exhausted. FASTA/FASTQ readers live outside this module
// and implement the same interface.
type Reader interface {
	// NextBatch returns up to maxReads records totalling at most maxBps
	// bases. Limits of zero or below are unbounded.
	NextBatch(maxReads, maxBps int) (*Batch, error)
	Close() error
}

// txtReader reads one record per line from a plain or gzipped text
// file.
type txtReader struct {
	br *bufio.Reader
	cs []io.Closer
}

// OpenTXT opens a .txt or .txt.gz read file.
func OpenTXT(path string) (Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	r := &txtReader{cs: []io.Closer{f}}
	if strings.HasSuffix(path, ".gz") {
		zr, err := gzip.NewReader(f)
		if err != nil {
			f.Close()
			return nil, err
		}
		r.cs = append([]io.Closer{zr}, r.cs...)
		r.br = bufio.NewReader(zr)
	} else {
		r.br = bufio.NewReader(f)
	}
	return r, nil
}

func (r *txtReader) NextBatch(maxReads, maxBps int) (*Batch, error) {
	b := &Batch{}
	bps := 0
	for maxReads <= 0 || len(b.Reads) < maxReads {
		line, err := r.br.ReadBytes('\n')
		line = bytes.TrimRight(line, "\r\n")
		if len(line) > 0 {
			b.Reads = append(b.Reads, line)
			bps += len(line)
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if maxBps > 0 && bps >= maxBps {
			break
		}
	}
	if len(b.Reads) == 0 {
		return nil, io.EOF
	}
	return b, nil
}

func (r *txtReader) Close() error {
	var first error
	for _, c := range r.cs {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Flags selects which orientations of each read enter the string set.
// The engine itself performs none of these transforms; the set it
// receives is already expanded.
type Flags uint

const (
	Forward Flags = 1 << iota
	Reverse
	ForwardComplement
	ReverseComplement
)

// AppendRead encodes one ASCII read and appends the requested
// orientations to the set. Bytes that are not nucleotide codes fail
// with ErrInputFormat.
func AppendRead(set *bwt.StringSet, read []byte, flags Flags) error {
	codes := make([]byte, len(read))
	for i, b := range read {
		c, ok := packed.EncodeDNA(b)
		if !ok {
			return fmt.Errorf("%w: byte %q in read", bwt.ErrInputFormat, b)
		}
		codes[i] = byte(c)
	}
	if flags&Forward != 0 {
		set.Append(codes)
	}
	if flags&ForwardComplement != 0 {
		set.Append(complemented(codes))
	}
	if flags&Reverse != 0 {
		set.Append(reversed(codes))
	}
	if flags&ReverseComplement != 0 {
		set.Append(reversed(complemented(codes)))
	}
	return nil
}

// BuildSet drains a reader into a 2-bit string set with the requested
// orientations. The whole set is buffered in memory; the collect passes
// of the engine re-stream it as often as they need to.
func BuildSet(r Reader, flags Flags) (*bwt.StringSet, error) {
	set := bwt.NewStringSet(2, false)
	for {
		batch, err := r.NextBatch(1<<20, 1<<28)
		if err == io.EOF {
			return set, nil
		}
		if err != nil {
			return nil, err
		}
		for _, read := range batch.Reads {
			if err := AppendRead(set, read, flags); err != nil {
				return nil, err
			}
		}
	}
}

func reversed(codes []byte) []byte {
	out := make([]byte, len(codes))
	for i, c := range codes {
		out[len(codes)-1-i] = c
	}
	return out
}

func complemented(codes []byte) []byte {
	out := make([]byte, len(codes))
	for i, c := range codes {
		out[i] = 3 - c
	}
	return out
}
