// Copyright 2021, The biokit Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE.md file.

package bwt

import (
	"context"
	"testing"

	"github.com/biokit/sufsort/internal/testutil"
	"github.com/biokit/sufsort/packed"
)

func BenchmarkBWT(b *testing.B) {
	rand := testutil.NewRand(100)
	text := packed.FromBytes(2, false, rand.DNA(1 << 20))
	b.SetBytes(1 << 20)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		var sink MemorySink
		if _, err := BWT(context.Background(), text, &sink, nil); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkSetBWT(b *testing.B) {
	rand := testutil.NewRand(101)
	set := NewStringSet(2, false)
	for i := 0; i < 10000; i++ {
		set.Append(rand.DNA(100))
	}
	b.SetBytes(1000000)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		var sink DiscardSink
		if _, err := SetBWT(context.Background(), set, &sink, nil); err != nil {
			b.Fatal(err)
		}
	}
}
