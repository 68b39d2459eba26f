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

// option provides an interface to do work on a Table while it is being
// created.
type option[K comparable, V any] interface {
	apply(t *Table[K, V])
}

// Allocator specifies an interface for allocating and releasing the
// bucket array of a Table. The default allocator utilizes Go's builtin
// make() and allows the GC to reclaim memory.
//
// Allocation never fails: running out of memory aborts the process (the
// Go runtime's behavior for make). Custom allocators must uphold the
// same contract and never return a short or nil slice.
//
// If the allocator is manually managing memory then Table.Close must be
// called in order to ensure the final bucket array is freed.
type Allocator[K comparable, V any] interface {
	// AllocBuckets should return a slice equivalent to
	// make([]*Entry[K,V], n).
	AllocBuckets(n int) []*Entry[K, V]

	// FreeBuckets can optionally release the memory associated with the
	// supplied slice that is guaranteed to have been allocated by
	// AllocBuckets.
	FreeBuckets(v []*Entry[K, V])
}

type defaultAllocator[K comparable, V any] struct{}

func (defaultAllocator[K, V]) AllocBuckets(n int) []*Entry[K, V] {
	return make([]*Entry[K, V], n)
}

func (defaultAllocator[K, V]) FreeBuckets(v []*Entry[K, V]) {
}

type allocatorOption[K comparable, V any] struct {
	allocator Allocator[K, V]
}

func (op allocatorOption[K, V]) apply(t *Table[K, V]) {
	t.alloc = op.allocator
}

// WithAllocator is an option to specify the Allocator to use for a
// Table[K,V].
func WithAllocator[K comparable, V any](allocator Allocator[K, V]) option[K, V] {
	return allocatorOption[K, V]{allocator}
}
