// Copyright 2021, The biokit Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE.md file.

// nvsetbwt builds the Burrows-Wheeler transform of a set of short reads.
//
// Example usage:
//	$ nvsetbwt -v 4 --cpu-memory 8192 --gpu-memory 2048 reads.txt reads.bwt
//
// The input is a plain or gzipped text file with one read per line; the
// output format follows the output extension (.txt, .bwt, .bwt4, each
// optionally .gz, .bgz or .xz). The primary map lands beside the output
// with a .pri extension. Both the forward and reverse orientation of
// every read are indexed unless skipped.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/dsnet/golib/strconv"

	"github.com/biokit/sufsort/bwt"
	"github.com/biokit/sufsort/bwtio"
)

func usage() {
	fmt.Fprintf(os.Stderr, "usage: nvsetbwt [options] <input> <output>\n")
	flag.PrintDefaults()
	os.Exit(2)
}

// parseMemory accepts a bare number of MiB or a prefixed byte size such
// as 8GiB.
func parseMemory(s string) (uint64, error) {
	v, err := strconv.ParsePrefix(s, strconv.AutoParse)
	if err != nil {
		return 0, err
	}
	if c := s[len(s)-1]; c >= '0' && c <= '9' {
		return uint64(v) << 20, nil
	}
	return uint64(v), nil
}

func main() {
	var (
		verbosity   int
		cpuMemory   string
		gpuMemory   string
		compression string
		skipForward bool
		skipReverse bool
	)
	flag.IntVar(&verbosity, "v", 1, "verbosity level (0..6)")
	flag.IntVar(&verbosity, "verbosity", 1, "verbosity level (0..6)")
	flag.StringVar(&cpuMemory, "cpu-memory", "8192", "outer working-set cap, in MiB or a prefixed size")
	flag.StringVar(&gpuMemory, "gpu-memory", "2048", "inner working-set cap, in MiB or a prefixed size")
	flag.StringVar(&compression, "c", "6", "compression level (1..9, R suffix tolerated)")
	flag.StringVar(&compression, "compression", "6", "compression level (1..9, R suffix tolerated)")
	flag.BoolVar(&skipForward, "F", false, "do not index the forward orientation")
	flag.BoolVar(&skipForward, "skip-forward", false, "do not index the forward orientation")
	flag.BoolVar(&skipReverse, "R", false, "do not index the reverse orientation")
	flag.BoolVar(&skipReverse, "skip-reverse", false, "do not index the reverse orientation")
	flag.Usage = usage
	flag.Parse()
	if flag.NArg() != 2 {
		usage()
	}
	input, output := flag.Arg(0), flag.Arg(1)

	if err := run(input, output, verbosity, cpuMemory, gpuMemory, compression, skipForward, skipReverse); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(input, output string, verbosity int, cpuMemory, gpuMemory, compression string, skipForward, skipReverse bool) error {
	hostMem, err := parseMemory(cpuMemory)
	if err != nil {
		return fmt.Errorf("bad --cpu-memory value %q: %v", cpuMemory, err)
	}
	deviceMem, err := parseMemory(gpuMemory)
	if err != nil {
		return fmt.Errorf("bad --gpu-memory value %q: %v", gpuMemory, err)
	}
	level := 6
	if n, err := fmt.Sscanf(strings.TrimSuffix(compression, "R"), "%d", &level); n != 1 || err != nil || level < 1 || level > 9 {
		return fmt.Errorf("bad -c value %q", compression)
	}

	logf := func(level int, format string, args ...interface{}) {
		if level <= verbosity {
			fmt.Fprintf(os.Stderr, format+"\n", args...)
		}
	}
	params := &bwt.BWTParams{
		HostMemory:   hostMem,
		DeviceMemory: deviceMem,
		Verbosity:    verbosity,
		Logf:         logf,
	}

	flags := bwtio.Flags(0)
	if !skipForward {
		flags |= bwtio.Forward
	}
	if !skipReverse {
		flags |= bwtio.Reverse
	}
	if flags == 0 {
		return fmt.Errorf("nothing to do: both orientations skipped")
	}

	r, err := bwtio.OpenTXT(input)
	if err != nil {
		return err
	}
	set, err := bwtio.BuildSet(r, flags)
	r.Close()
	if err != nil {
		return err
	}
	logf(1, "%d strings, %d symbols", set.Count(), set.NumSuffixes())

	sink, closer, err := bwtio.NewBWTWriter(output, set.SymbolBits(), level)
	if err != nil {
		return err
	}
	pm, err := bwt.SetBWT(context.Background(), set, sink, params)
	if err != nil {
		closer.Close()
		return err
	}
	if err := closer.Close(); err != nil {
		return err
	}
	if cs, ok := sink.(interface{ Checksum() uint32 }); ok && verbosity >= 5 {
		logf(5, "stream crc32 %08x", cs.Checksum())
	}

	if err := bwtio.WritePrimaryMap(priPath(output), pm, false, level); err != nil {
		return err
	}
	logf(1, "%d terminators mapped", len(pm))
	return nil
}

// priPath derives the primary map path from the output path:
// reads.bwt.gz becomes reads.pri.
func priPath(output string) string {
	for _, ext := range []string{".gz", ".bgz", ".xz"} {
		output = strings.TrimSuffix(output, ext)
	}
	for _, ext := range []string{".txt", ".bwt4", ".bwt"} {
		if strings.HasSuffix(output, ext) {
			return strings.TrimSuffix(output, ext) + ".pri"
		}
	}
	return output + ".pri"
}
