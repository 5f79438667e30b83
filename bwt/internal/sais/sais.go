// Copyright 2021, The biokit Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE.md file.

// Package sais implements a linear time suffix array algorithm over
// integer alphabets, following the Suffix Array by Induced Sorting
// (SA-IS) methodology by Nong, Zhang, and Chan.
//
// References:
//	https://sites.google.com/site/yuta256/sais
//	https://ge-nong.googlecode.com/files/Two%20Efficient%20Algorithms%20for%20Linear%20Time%20Suffix%20Array%20Construction.pdf
package sais

// Error is the wrapper type for errors specific to this library.
type Error string

func (e Error) Error() string { return "sais: " + string(e) }

// ErrDepthLimit reports that the reduction recursion exceeded the
// caller's safety limit.
var ErrDepthLimit error = Error("recursion depth limit exceeded")

// ComputeSA computes the suffix array of T over the alphabet [0, k) and
// places the result in SA. Both slices must be the same length, and T
// must end with a unique, minimal sentinel symbol (conventionally 0).
// maxDepth bounds the number of problem reductions; exceeding it returns
// ErrDepthLimit.
func ComputeSA(T, SA []int32, k, maxDepth int) error {
	if len(SA) != len(T) {
		panic("sais: mismatching sizes")
	}
	return computeSA(T, SA, k, maxDepth)
}

func computeSA(T, SA []int32, k, depth int) error {
	n := len(T)
	if depth < 0 {
		return ErrDepthLimit
	}
	switch n {
	case 0:
		return nil
	case 1:
		SA[0] = 0
		return nil
	}

	// Classify suffix types: position i is S-type if its suffix is
	// smaller than the next one. The sentinel at n-1 is S-type.
	isS := make([]bool, n)
	isS[n-1] = true
	for i := n - 2; i >= 0; i-- {
		isS[i] = T[i] < T[i+1] || (T[i] == T[i+1] && isS[i+1])
	}
	isLMS := func(i int) bool { return i > 0 && isS[i] && !isS[i-1] }

	C := make([]int32, k)
	B := make([]int32, k)
	for _, c := range T {
		C[c]++
	}

	// Stage 1: sort the LMS substrings by placing each LMS position at
	// the end of its bucket and induce-sorting once.
	for i := range SA {
		SA[i] = -1
	}
	bucketEnds(C, B)
	numLMS := 0
	for i := 1; i < n; i++ {
		if isLMS(i) {
			B[T[i]]--
			SA[B[T[i]]] = int32(i)
			numLMS++
		}
	}
	induce(T, SA, C, B, isS)

	// Compact the LMS positions, now sorted by LMS substring, into the
	// front of SA.
	m := 0
	for i := 0; i < n; i++ {
		if isLMS(int(SA[i])) {
			SA[m] = SA[i]
			m++
		}
	}

	// Name the LMS substrings in sorted order; equal substrings share a
	// name. Names are parked at SA[m+pos/2], which is collision free
	// because LMS positions are at least two apart.
	for i := m; i < n; i++ {
		SA[i] = -1
	}
	names := 0
	prev := -1
	for i := 0; i < m; i++ {
		pos := int(SA[i])
		if prev < 0 || !lmsEqual(T, prev, pos, isLMS, n) {
			names++
			prev = pos
		}
		SA[m+pos/2] = int32(names - 1)
	}

	// Gather the LMS positions in text order.
	pos1 := make([]int32, m)
	j := 0
	for i := 1; i < n; i++ {
		if isLMS(i) {
			pos1[j] = int32(i)
			j++
		}
	}

	// Stage 2: order the LMS suffixes. When every LMS substring is
	// unique their suffix order matches the substring order already in
	// hand; otherwise solve the reduced problem recursively.
	ordered := make([]int32, m)
	if names < m {
		T1 := make([]int32, m)
		for i, p := range pos1 {
			T1[i] = SA[m+int(p)/2]
		}
		SA1 := make([]int32, m)
		if err := computeSA(T1, SA1, names, depth-1); err != nil {
			return err
		}
		for i, r := range SA1 {
			ordered[i] = pos1[r]
		}
	} else {
		copy(ordered, SA[:m])
	}

	// Stage 3: place the sorted LMS suffixes at their bucket ends and
	// induce the rest of the suffix array from them.
	for i := range SA {
		SA[i] = -1
	}
	bucketEnds(C, B)
	for i := m - 1; i >= 0; i-- {
		p := ordered[i]
		B[T[p]]--
		SA[B[T[p]]] = p
	}
	induce(T, SA, C, B, isS)
	return nil
}

// lmsEqual reports whether the LMS substrings starting at a and b are
// identical.
func lmsEqual(T []int32, a, b int, isLMS func(int) bool, n int) bool {
	for d := 0; ; d++ {
		if a+d >= n || b+d >= n {
			return false // only the sentinel substring reaches the end
		}
		aEnd := d > 0 && isLMS(a+d)
		bEnd := d > 0 && isLMS(b+d)
		if aEnd && bEnd {
			return true
		}
		if aEnd != bEnd || T[a+d] != T[b+d] {
			return false
		}
	}
}

// bucketEnds stores into B[c] one past the final index of the bucket for
// symbol c.
func bucketEnds(C, B []int32) {
	var total int32
	for i, c := range C {
		total += c
		B[i] = total
	}
}

// induce fills SA from the seeded LMS entries: one left-to-right scan
// placing L-type predecessors at bucket fronts, then one right-to-left
// scan placing S-type predecessors at bucket ends.
func induce(T, SA, C, B []int32, isS []bool) {
	var total int32
	for i, c := range C {
		B[i] = total
		total += c
	}
	for i := 0; i < len(SA); i++ {
		if SA[i] > 0 {
			if j := SA[i] - 1; !isS[j] {
				SA[B[T[j]]] = j
				B[T[j]]++
			}
		}
	}
	bucketEnds(C, B)
	for i := len(SA) - 1; i >= 0; i-- {
		if SA[i] > 0 {
			if j := SA[i] - 1; isS[j] {
				B[T[j]]--
				SA[B[T[j]]] = j
			}
		}
	}
}
