// Copyright 2021, The biokit Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE.md file.

package bwt

// The inversion here is the standard LF-mapping walk: the first column
// of the sorted rotation matrix is recovered by counting symbols, and
// stepping from a row to the row of its left-rotation repeatedly reads
// the text backwards.

// Invert reconstructs the text from a single-string transform as emitted
// by BWT: n symbols with the terminator excised, plus the primary
// position it would occupy.
func Invert(bwtSyms []byte, primary uint32) []byte {
	n := len(bwtSyms)
	if n == 0 {
		return nil
	}

	// Re-insert the terminator at the primary position. Row indexes
	// below refer to this n+1 symbol stream.
	L := make([]int, n+1)
	for i, r := 0, 0; r < n+1; r++ {
		if r == int(primary) {
			L[r] = -1
			continue
		}
		L[r] = int(bwtSyms[i])
		i++
	}

	// First-column start of every symbol; the terminator owns row 0.
	var c [257]int
	for _, v := range L {
		c[v+1]++
	}
	var sum int
	for i, v := range c {
		sum += v
		c[i] = sum - v
	}

	// lf[r] is the row of the suffix one position to the left of row
	// r's suffix.
	lf := make([]int, n+1)
	for r, v := range L {
		lf[r] = c[v+1]
		c[v+1]++
	}

	// Row 0 is the empty suffix; walking LF from it reads the text
	// right to left.
	out := make([]byte, n)
	r := 0
	for i := n - 1; i >= 0; i-- {
		out[i] = byte(L[r])
		r = lf[r]
	}
	return out
}

// InvertSet reconstructs the string set from a string-set transform:
// the emitted symbol stream, terminator tokens included, and its primary
// map. Strings come back indexed as in the original set.
func InvertSet(symbols []uint16, pm PrimaryMap) [][]byte {
	m := len(pm)
	n := len(symbols)

	// First-column starts: the m terminators occupy rows [0, m), one
	// per string in string-index order, followed by the symbols.
	var c [257]int
	for _, v := range symbols {
		if v != Dollar {
			c[v+1]++
		}
	}
	c[0] = m
	var sum int
	for i, v := range c {
		sum += v
		c[i] = sum - v
	}

	lf := make([]int, n)
	for r, v := range symbols {
		if v == Dollar {
			continue // walks stop at terminators
		}
		lf[r] = c[v+1]
		c[v+1]++
	}

	// Row k is the empty suffix of string k; walk each one back to its
	// terminator, which the primary map names.
	stringAt := make(map[int]uint32, m)
	for _, e := range pm {
		stringAt[int(e.Position)] = e.String
	}
	out := make([][]byte, m)
	for k := 0; k < m; k++ {
		var rev []byte
		r := k
		for symbols[r] != Dollar {
			rev = append(rev, byte(symbols[r]))
			r = lf[r]
		}
		s := make([]byte, len(rev))
		for i, v := range rev {
			s[len(rev)-1-i] = v
		}
		out[stringAt[r]] = s
	}
	return out
}
