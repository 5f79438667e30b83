// Copyright 2021, The biokit Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE.md file.

// Package bwtio reads and writes the on-disk forms of a Burrows-Wheeler
// transform and its primary map. The format is chosen by file extension:
//
//	.txt   ASCII, one symbol per byte, '$' for terminators
//	.bwt   2-bit packed, little-endian within 32-bit words; terminator
//	       positions travel in the primary map
//	.bwt4  4-bit packed; the terminator is encoded in-stream as 4
//	.pri   primary map, ASCII ("#PRI" header) or binary ("PRIB" magic)
//
// Any of the above may carry a trailing .gz (gzip), .bgz (bgzf) or .xz
// compression extension.
package bwtio

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/biogo/hts/bgzf"
	"github.com/klauspost/compress/gzip"
	"github.com/ulikunitz/xz"

	"github.com/biokit/sufsort/bwt"
	"github.com/biokit/sufsort/packed"
)

// Error is the wrapper type for errors specific to this library.
type Error string

func (e Error) Error() string { return "bwtio: " + string(e) }

var (
	ErrFormat = Error("unrecognized file format")
)

type kind int

const (
	kindASCII kind = iota
	kind2Bit
	kind4Bit
	kindPrimary
)

type compression int

const (
	compressNone compression = iota
	compressGzip
	compressBgzf
	compressXZ
)

// splitExt resolves a path into its payload kind and compression layer.
func splitExt(path string) (kind, compression, error) {
	comp := compressNone
	switch {
	case strings.HasSuffix(path, ".gz"):
		comp, path = compressGzip, strings.TrimSuffix(path, ".gz")
	case strings.HasSuffix(path, ".bgz"):
		comp, path = compressBgzf, strings.TrimSuffix(path, ".bgz")
	case strings.HasSuffix(path, ".xz"):
		comp, path = compressXZ, strings.TrimSuffix(path, ".xz")
	}
	switch {
	case strings.HasSuffix(path, ".txt"):
		return kindASCII, comp, nil
	case strings.HasSuffix(path, ".bwt4"):
		return kind4Bit, comp, nil
	case strings.HasSuffix(path, ".bwt"):
		return kind2Bit, comp, nil
	case strings.HasSuffix(path, ".pri"), strings.HasSuffix(path, ".prib"):
		return kindPrimary, comp, nil
	}
	return 0, 0, fmt.Errorf("%w: %q", ErrFormat, path)
}

// stackedWriter closes the compression layer before the file beneath it.
type stackedWriter struct {
	io.Writer
	closers []io.Closer
}

func (w *stackedWriter) Close() error {
	var first error
	for _, c := range w.closers {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func newWriter(path string, comp compression, level int) (*stackedWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	sw := &stackedWriter{Writer: f, closers: []io.Closer{f}}
	switch comp {
	case compressGzip:
		zw, err := gzip.NewWriterLevel(f, level)
		if err != nil {
			f.Close()
			return nil, err
		}
		sw.Writer = zw
		sw.closers = append([]io.Closer{zw}, sw.closers...)
	case compressBgzf:
		zw, err := bgzf.NewWriterLevel(f, level, 1)
		if err != nil {
			f.Close()
			return nil, err
		}
		sw.Writer = zw
		sw.closers = append([]io.Closer{zw}, sw.closers...)
	case compressXZ:
		zw, err := xz.NewWriter(f)
		if err != nil {
			f.Close()
			return nil, err
		}
		sw.Writer = zw
		sw.closers = append([]io.Closer{zw}, sw.closers...)
	}
	return sw, nil
}

func newReader(path string, comp compression) (io.Reader, io.Closer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	switch comp {
	case compressGzip:
		zr, err := gzip.NewReader(f)
		if err != nil {
			f.Close()
			return nil, nil, err
		}
		return zr, f, nil
	case compressBgzf:
		zr, err := bgzf.NewReader(f, 0)
		if err != nil {
			f.Close()
			return nil, nil, err
		}
		return zr, f, nil
	case compressXZ:
		zr, err := xz.NewReader(bufio.NewReader(f))
		if err != nil {
			f.Close()
			return nil, nil, err
		}
		return zr, f, nil
	}
	return f, f, nil
}

// NewBWTWriter opens path for writing and returns a sink encoding the
// format selected by the path's extension. level applies to the
// compression layer, if any. The caller must Flush the sink (the
// orchestrators do) and then Close the returned closer.
func NewBWTWriter(path string, symbolBits uint, level int) (bwt.SetSink, io.Closer, error) {
	k, comp, err := splitExt(path)
	if err != nil {
		return nil, nil, err
	}
	if k == kindPrimary {
		return nil, nil, fmt.Errorf("%w: %q is a primary map path", ErrFormat, path)
	}
	w, err := newWriter(path, comp, level)
	if err != nil {
		return nil, nil, err
	}
	switch k {
	case kindASCII:
		return bwt.NewASCIISink(w, symbolBits), w, nil
	case kind2Bit:
		return bwt.NewPackedSink(w, 2), w, nil
	default:
		return bwt.NewPackedSink(w, 4), w, nil
	}
}

// WriteBWT writes an emitted symbol stream (terminator tokens included)
// to path in the format selected by its extension.
func WriteBWT(path string, symbols []uint16, symbolBits uint, level int) error {
	sink, c, err := NewBWTWriter(path, symbolBits, level)
	if err != nil {
		return err
	}
	if err := sink.Process(symbols, nil); err != nil {
		c.Close()
		return err
	}
	if err := sink.Flush(); err != nil {
		c.Close()
		return err
	}
	return c.Close()
}

// ReadBWT reads back a symbol stream of n symbols. For the ASCII form n
// may be negative, meaning all of the file; the packed forms need it to
// discard the trailing partial word. The 2-bit form has no terminator
// code, so its terminator slots read back as symbol 0.
func ReadBWT(path string, symbolBits uint, n int) ([]uint16, error) {
	k, comp, err := splitExt(path)
	if err != nil {
		return nil, err
	}
	r, c, err := newReader(path, comp)
	if err != nil {
		return nil, err
	}
	defer c.Close()
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	switch k {
	case kindASCII:
		if n < 0 {
			n = len(raw)
		}
		out := make([]uint16, n)
		for i := 0; i < n; i++ {
			b := raw[i]
			switch {
			case b == '$':
				out[i] = bwt.Dollar
			case symbolBits == 2:
				code, ok := packed.EncodeDNA(b)
				if !ok {
					return nil, fmt.Errorf("%w: byte %q", Error("invalid symbol"), b)
				}
				out[i] = uint16(code)
			default:
				out[i] = uint16(b)
			}
		}
		return out, nil

	case kind2Bit, kind4Bit:
		bits := uint(2)
		if k == kind4Bit {
			bits = 4
		}
		if n < 0 {
			n = len(raw) * 8 / int(bits)
		}
		out := make([]uint16, n)
		for i := 0; i < n; i++ {
			bit := uint(i) * bits
			word := binary.LittleEndian.Uint32(raw[bit/32*4:])
			v := word >> (bit % 32) & (1<<bits - 1)
			if k == kind4Bit && v == 4 {
				out[i] = bwt.Dollar
			} else {
				out[i] = uint16(v)
			}
		}
		return out, nil
	}
	return nil, fmt.Errorf("%w: %q holds a primary map", ErrFormat, path)
}

// WritePrimaryMap writes the primary map to path: binary when asBinary
// is set, the ASCII form otherwise.
func WritePrimaryMap(path string, pm bwt.PrimaryMap, asBinary bool, level int) error {
	k, comp, err := splitExt(path)
	if err != nil {
		return err
	}
	if k != kindPrimary {
		return fmt.Errorf("%w: %q is not a primary map path", ErrFormat, path)
	}
	w, err := newWriter(path, comp, level)
	if err != nil {
		return err
	}
	bw := bufio.NewWriter(w)
	if asBinary {
		bw.WriteString("PRIB")
		var rec [12]byte
		for _, e := range pm {
			binary.LittleEndian.PutUint64(rec[0:], e.Position)
			binary.LittleEndian.PutUint32(rec[8:], e.String)
			bw.Write(rec[:])
		}
	} else {
		bw.WriteString("#PRI\n")
		for _, e := range pm {
			fmt.Fprintf(bw, "%d %d\n", e.Position, e.String)
		}
	}
	if err := bw.Flush(); err != nil {
		w.Close()
		return err
	}
	return w.Close()
}

// ReadPrimaryMap reads either primary map form, sniffing the 4-byte
// header.
func ReadPrimaryMap(path string) (bwt.PrimaryMap, error) {
	_, comp, err := splitExt(path)
	if err != nil {
		return nil, err
	}
	r, c, err := newReader(path, comp)
	if err != nil {
		return nil, err
	}
	defer c.Close()
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	if len(raw) < 4 {
		return nil, fmt.Errorf("%w: truncated primary map", ErrFormat)
	}

	var pm bwt.PrimaryMap
	switch string(raw[:4]) {
	case "PRIB":
		body := raw[4:]
		if len(body)%12 != 0 {
			return nil, fmt.Errorf("%w: truncated primary record", ErrFormat)
		}
		for i := 0; i < len(body); i += 12 {
			pm = append(pm, bwt.PrimaryEntry{
				Position: binary.LittleEndian.Uint64(body[i:]),
				String:   binary.LittleEndian.Uint32(body[i+8:]),
			})
		}
	case "#PRI":
		for _, line := range strings.Split(string(raw), "\n") {
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			var e bwt.PrimaryEntry
			if _, err := fmt.Sscanf(line, "%d %d", &e.Position, &e.String); err != nil {
				return nil, fmt.Errorf("%w: bad primary line %q", ErrFormat, line)
			}
			pm = append(pm, e)
		}
	default:
		return nil, fmt.Errorf("%w: bad primary map header", ErrFormat)
	}
	return pm, nil
}
