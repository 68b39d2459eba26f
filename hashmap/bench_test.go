// Copyright 2024 The Cockroach Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package hashmap

import (
	"fmt"
	"io"
	"strconv"
	"testing"

	"github.com/aclements/go-perfevent/perfbench"
)

func BenchmarkMapGetHit(b *testing.B) {
	b.Run("impl=runtimeMap", benchSizes(benchmarkRuntimeMapGetHit))
	b.Run("impl=chainedMap", benchSizes(benchmarkChainedMapGetHit))
}

func BenchmarkMapGetMiss(b *testing.B) {
	b.Run("impl=runtimeMap", benchSizes(benchmarkRuntimeMapGetMiss))
	b.Run("impl=chainedMap", benchSizes(benchmarkChainedMapGetMiss))
}

func BenchmarkMapPutGrow(b *testing.B) {
	b.Run("impl=runtimeMap", benchSizes(benchmarkRuntimeMapPutGrow))
	b.Run("impl=chainedMap", benchSizes(benchmarkChainedMapPutGrow))
}

func BenchmarkMapIter(b *testing.B) {
	b.Run("impl=runtimeMap", benchSizes(benchmarkRuntimeMapIter))
	b.Run("impl=chainedMap", benchSizes(benchmarkChainedMapIter))
}

func benchSizes(f func(b *testing.B, n int)) func(*testing.B) {
	var cases = []int{
		16,
		128,
		1024,
		8192,
		1 << 16,
	}
	return func(b *testing.B) {
		for _, n := range cases {
			b.Run("len="+strconv.Itoa(n), func(b *testing.B) { f(b, n) })
		}
	}
}

func genKeys(start, end int) []string {
	keys := make([]string, end-start)
	for i := range keys {
		keys[i] = strconv.Itoa(start + i)
	}
	return keys
}

func benchmarkRuntimeMapGetHit(b *testing.B, n int) {
	m := make(map[string]string, n)
	keys := genKeys(0, n)
	for _, k := range keys {
		m[k] = k
	}
	cs := perfbench.Open(b)
	b.ResetTimer()
	var v string
	for i := 0; i < b.N; i++ {
		v = m[keys[i&(n-1)]]
	}
	b.StopTimer()
	cs.Stop()
	fmt.Fprint(io.Discard, v)
}

func benchmarkChainedMapGetHit(b *testing.B, n int) {
	m := New[string, string](stringType, nil)
	defer m.Close()
	keys := genKeys(0, n)
	for _, k := range keys {
		_ = m.Add(k, k)
	}
	cs := perfbench.Open(b)
	b.ResetTimer()
	var ok bool
	for i := 0; i < b.N; i++ {
		_, ok = m.Get(keys[i&(n-1)])
	}
	b.StopTimer()
	cs.Stop()
	fmt.Fprint(io.Discard, ok)
}

func benchmarkRuntimeMapGetMiss(b *testing.B, n int) {
	m := make(map[string]string, n)
	for _, k := range genKeys(0, n) {
		m[k] = k
	}
	misses := genKeys(n, 2*n)
	cs := perfbench.Open(b)
	b.ResetTimer()
	var ok bool
	for i := 0; i < b.N; i++ {
		_, ok = m[misses[i&(n-1)]]
	}
	b.StopTimer()
	cs.Stop()
	fmt.Fprint(io.Discard, ok)
}

func benchmarkChainedMapGetMiss(b *testing.B, n int) {
	m := New[string, string](stringType, nil)
	defer m.Close()
	for _, k := range genKeys(0, n) {
		_ = m.Add(k, k)
	}
	misses := genKeys(n, 2*n)
	cs := perfbench.Open(b)
	b.ResetTimer()
	var ok bool
	for i := 0; i < b.N; i++ {
		_, ok = m.Get(misses[i&(n-1)])
	}
	b.StopTimer()
	cs.Stop()
	fmt.Fprint(io.Discard, ok)
}

func benchmarkRuntimeMapPutGrow(b *testing.B, n int) {
	keys := genKeys(0, n)
	cs := perfbench.Open(b)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		m := make(map[string]string)
		for _, k := range keys {
			m[k] = k
		}
	}
	b.StopTimer()
	cs.Stop()
}

func benchmarkChainedMapPutGrow(b *testing.B, n int) {
	keys := genKeys(0, n)
	cs := perfbench.Open(b)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		m := New[string, string](stringType, nil)
		for _, k := range keys {
			_ = m.Add(k, k)
		}
		m.Close()
	}
	b.StopTimer()
	cs.Stop()
}

func benchmarkRuntimeMapIter(b *testing.B, n int) {
	m := make(map[string]string, n)
	for _, k := range genKeys(0, n) {
		m[k] = k
	}
	cs := perfbench.Open(b)
	b.ResetTimer()
	var last string
	for i := 0; i < b.N; i++ {
		for k := range m {
			last = k
		}
	}
	b.StopTimer()
	cs.Stop()
	fmt.Fprint(io.Discard, last)
}

func benchmarkChainedMapIter(b *testing.B, n int) {
	m := New[string, string](stringType, nil)
	defer m.Close()
	for _, k := range genKeys(0, n) {
		_ = m.Add(k, k)
	}
	cs := perfbench.Open(b)
	b.ResetTimer()
	var last string
	for i := 0; i < b.N; i++ {
		it := m.Iter()
		for e := it.Next(); e != nil; e = it.Next() {
			last = e.Key()
		}
	}
	b.StopTimer()
	cs.Stop()
	fmt.Fprint(io.Discard, last)
}
