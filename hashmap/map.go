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

// Package hashmap implements a generic chained hash table with pluggable
// per-type behavior.
//
// # Layout
//
// A Table[K,V] is an array of bucket heads. Collisions are resolved by
// chaining: each bucket holds a singly-linked list of entries whose keys
// hash to the bucket's index. The bucket array length is always a power
// of two so that the bucket for a hash can be computed as hash&(size-1)
// rather than with a modulo.
//
// The table starts with zero capacity and is sized lazily to MinSize on
// the first insert. When every bucket is in use on average (used == size)
// the next insert doubles the array and rehashes every entry into it in a
// single stop-the-world pass. The table never shrinks on its own; Resize
// compacts it back to the smallest power of two that fits the current
// entry count.
//
// # Type descriptors
//
// A Table is parameterized by a Type descriptor supplying the hash
// function and, optionally, duplication, comparison, and destruction
// behavior for keys and values. Absent callbacks fall back to raw value
// copies, == comparison, and no-op destruction. The descriptor plus an
// opaque context value take the place of a global dispatch table: two
// tables of the same Go type may carry entirely different policies.
//
// A Table is NOT goroutine-safe.
package hashmap

import (
	"errors"
	"fmt"
	"math/rand"
	"strings"
)

// MinSize is the minimum non-zero capacity of a Table. An empty table is
// sized to MinSize on its first insert.
const MinSize = 4

// maxSize bounds Expand requests the way the bucket math can represent.
const maxSize = 1 << 62

var (
	// ErrKeyExists is returned by Add when an entry with an equal key is
	// already present.
	ErrKeyExists = errors.New("hashmap: key already exists")
	// ErrNotFound is returned by Delete and Unlink when no entry matches.
	ErrNotFound = errors.New("hashmap: key not found")
	// ErrCapacity is returned by Expand when the requested capacity is
	// smaller than the current entry count.
	ErrCapacity = errors.New("hashmap: capacity below entry count")
)

// Type describes the per-key/per-value behavior of a Table. Hash is
// required; every other callback is optional. Optional callbacks receive
// the opaque context value the Table was created with.
//
// When KeyDup or ValDup is nil the table stores the caller's value
// as-is (a raw copy of the Go value). When KeyCompare is nil keys are
// compared with ==. When KeyDestroy or ValDestroy is nil discarding a
// payload is a no-op and the Go garbage collector reclaims it.
type Type[K comparable, V any] struct {
	Hash       func(key K) uint64
	KeyDup     func(ctx any, key K) K
	ValDup     func(ctx any, value V) V
	KeyCompare func(ctx any, a, b K) bool
	KeyDestroy func(ctx any, key K)
	ValDestroy func(ctx any, value V)
}

// Entry is a single key/value pair in a Table. Entries are owned by the
// table; the pointers handed out by Find, iteration, and RandomEntry stay
// valid until the entry is deleted or the table is cleared.
type Entry[K comparable, V any] struct {
	key   K
	value V
	next  *Entry[K, V]
}

// Key returns the entry's key.
func (e *Entry[K, V]) Key() K { return e.key }

// Value returns the entry's value.
func (e *Entry[K, V]) Value() V { return e.value }

// Table is a chained hash table from keys to values with Add, Replace,
// Find, Delete, Expand, iteration, and uniform random sampling.
//
// A Table is NOT goroutine-safe.
type Table[K comparable, V any] struct {
	typ *Type[K, V]
	ctx any
	// The allocator used for the bucket array. Entries themselves are
	// ordinary heap allocations.
	alloc Allocator[K, V]
	// buckets is nil until the first insert. len(buckets) is always a
	// power of two and mask is len(buckets)-1.
	buckets []*Entry[K, V]
	mask    uint64
	used    uint64
}

// New constructs an empty Table with the given type descriptor and opaque
// context. The table has zero capacity until the first insert. New panics
// if typ or typ.Hash is nil.
func New[K comparable, V any](typ *Type[K, V], ctx any, options ...option[K, V]) *Table[K, V] {
	if typ == nil || typ.Hash == nil {
		panic("hashmap: Type.Hash is required")
	}
	t := &Table[K, V]{
		typ:   typ,
		ctx:   ctx,
		alloc: defaultAllocator[K, V]{},
	}
	for _, op := range options {
		op.apply(t)
	}
	return t
}

// Len returns the number of entries in the table.
func (t *Table[K, V]) Len() uint64 { return t.used }

// Cap returns the current bucket array size (a power of two, or zero for
// a table that has never held an entry).
func (t *Table[K, V]) Cap() uint64 { return uint64(len(t.buckets)) }

func (t *Table[K, V]) dupKey(key K) K {
	if t.typ.KeyDup != nil {
		return t.typ.KeyDup(t.ctx, key)
	}
	return key
}

func (t *Table[K, V]) dupValue(value V) V {
	if t.typ.ValDup != nil {
		return t.typ.ValDup(t.ctx, value)
	}
	return value
}

func (t *Table[K, V]) equalKeys(a, b K) bool {
	if t.typ.KeyCompare != nil {
		return t.typ.KeyCompare(t.ctx, a, b)
	}
	return a == b
}

func (t *Table[K, V]) destroyKey(key K) {
	if t.typ.KeyDestroy != nil {
		t.typ.KeyDestroy(t.ctx, key)
	}
}

func (t *Table[K, V]) destroyValue(value V) {
	if t.typ.ValDestroy != nil {
		t.typ.ValDestroy(t.ctx, value)
	}
}

// Add inserts a new entry, returning ErrKeyExists without mutating the
// table if an entry with an equal key is already present. The key and
// value are stored via the Type's dup policy and the entry is linked at
// the head of its bucket chain.
func (t *Table[K, V]) Add(key K, value V) error {
	i, ok := t.insertIndex(key)
	if !ok {
		return ErrKeyExists
	}
	e := &Entry[K, V]{next: t.buckets[i]}
	e.key = t.dupKey(key)
	e.value = t.dupValue(value)
	t.buckets[i] = e
	t.used++
	t.checkInvariants()
	return nil
}

// Replace upserts: it inserts the entry if the key is absent and reports
// true, or overwrites the existing entry's value and reports false. On
// overwrite the new value is set via the dup policy before the old value
// is destroyed, so replacing a value with itself (or something sharing
// its referenced state) is safe.
func (t *Table[K, V]) Replace(key K, value V) (inserted bool) {
	if t.Add(key, value) == nil {
		return true
	}
	e := t.Find(key)
	old := e.value
	e.value = t.dupValue(value)
	t.destroyValue(old)
	return false
}

// Find returns the entry for key, or nil if no entry matches.
func (t *Table[K, V]) Find(key K) *Entry[K, V] {
	if len(t.buckets) == 0 {
		return nil
	}
	for e := t.buckets[t.typ.Hash(key)&t.mask]; e != nil; e = e.next {
		if t.equalKeys(key, e.key) {
			return e
		}
	}
	return nil
}

// Get retrieves the value for key, returning ok=false if the key is not
// present.
func (t *Table[K, V]) Get(key K) (value V, ok bool) {
	if e := t.Find(key); e != nil {
		return e.value, true
	}
	return value, false
}

// Delete removes the entry for key and runs the key and value
// destructors. It returns ErrNotFound if no entry matches.
func (t *Table[K, V]) Delete(key K) error {
	return t.remove(key, true)
}

// Unlink removes the entry for key without running destructors, letting
// the caller retain ownership of the payloads (for instance to relocate
// them into another table). It returns ErrNotFound if no entry matches.
func (t *Table[K, V]) Unlink(key K) error {
	return t.remove(key, false)
}

func (t *Table[K, V]) remove(key K, destroy bool) error {
	if len(t.buckets) == 0 {
		return ErrNotFound
	}
	i := t.typ.Hash(key) & t.mask
	var prev *Entry[K, V]
	for e := t.buckets[i]; e != nil; e = e.next {
		if t.equalKeys(key, e.key) {
			if prev != nil {
				prev.next = e.next
			} else {
				t.buckets[i] = e.next
			}
			if destroy {
				t.destroyKey(e.key)
				t.destroyValue(e.value)
			}
			e.next = nil
			t.used--
			t.checkInvariants()
			return nil
		}
		prev = e
	}
	return ErrNotFound
}

// insertIndex grows the table if needed and returns the bucket index a
// new entry for key belongs in, or ok=false if the key is already
// present.
func (t *Table[K, V]) insertIndex(key K) (i uint64, ok bool) {
	t.expandIfNeeded()
	i = t.typ.Hash(key) & t.mask
	for e := t.buckets[i]; e != nil; e = e.next {
		if t.equalKeys(key, e.key) {
			return 0, false
		}
	}
	return i, true
}

func (t *Table[K, V]) expandIfNeeded() {
	if len(t.buckets) == 0 {
		t.grow(MinSize)
	} else if t.used == uint64(len(t.buckets)) {
		t.grow(2 * uint64(len(t.buckets)))
	}
}

// Expand (re)sizes the bucket array to the smallest power of two that is
// >= max(n, MinSize), rehashing every entry into it. It returns
// ErrCapacity without mutating the table if n is smaller than the current
// entry count. Bucket-chain order is NOT preserved across a rehash:
// entries are prepended into their new chains in iteration order.
func (t *Table[K, V]) Expand(n uint64) error {
	if n < t.used {
		return ErrCapacity
	}
	t.grow(n)
	return nil
}

// Resize compacts the bucket array to the smallest power of two that
// holds the current entries, but never below MinSize.
func (t *Table[K, V]) Resize() {
	n := t.used
	if n < MinSize {
		n = MinSize
	}
	t.grow(n)
}

// grow rebuilds the bucket array at the next power of two >= n. The
// caller has verified n >= used.
func (t *Table[K, V]) grow(n uint64) {
	size := nextPower(n)
	buckets := t.alloc.AllocBuckets(int(size))
	mask := size - 1

	for i := 0; i < len(t.buckets); i++ {
		for e := t.buckets[i]; e != nil; {
			next := e.next
			// Recompute the index under the new mask and prepend.
			j := t.typ.Hash(e.key) & mask
			e.next = buckets[j]
			buckets[j] = e
			e = next
		}
	}

	if t.buckets != nil {
		t.alloc.FreeBuckets(t.buckets)
	}
	t.buckets = buckets
	t.mask = mask
	t.checkInvariants()
}

func nextPower(n uint64) uint64 {
	if n >= maxSize {
		return maxSize
	}
	i := uint64(MinSize)
	for i < n {
		i *= 2
	}
	return i
}

// Clear removes every entry, running destructors, and releases the
// bucket array back to the allocator. The table is reusable afterwards
// and will size itself lazily again on the next insert.
func (t *Table[K, V]) Clear() {
	for i := 0; i < len(t.buckets) && t.used > 0; i++ {
		for e := t.buckets[i]; e != nil; {
			next := e.next
			t.destroyKey(e.key)
			t.destroyValue(e.value)
			e.next = nil
			t.used--
			e = next
		}
		t.buckets[i] = nil
	}
	if t.buckets != nil {
		t.alloc.FreeBuckets(t.buckets)
	}
	t.buckets = nil
	t.mask = 0
}

// Close clears the table and releases its allocator. It is invalid to
// use a Table after it has been closed, though Close itself is
// idempotent.
func (t *Table[K, V]) Close() {
	if t.alloc == nil {
		return
	}
	t.Clear()
	t.alloc = nil
}

// Iterator walks a Table bucket by bucket in ascending index order, then
// chain order within a bucket. It is single-direction and not
// restartable; obtain a fresh Iterator to walk again.
//
// Deleting the entry most recently returned by Next is safe: the next
// pointer is captured before the entry is yielded. Any other mutation of
// the table during iteration is undefined behavior.
type Iterator[K comparable, V any] struct {
	t     *Table[K, V]
	index int
	entry *Entry[K, V]
	next  *Entry[K, V]
}

// Iter returns an Iterator positioned before the first entry.
func (t *Table[K, V]) Iter() Iterator[K, V] {
	return Iterator[K, V]{t: t, index: -1}
}

// Next returns the next entry, or nil when the iteration is done.
func (it *Iterator[K, V]) Next() *Entry[K, V] {
	for {
		if it.entry == nil {
			it.index++
			if it.index >= len(it.t.buckets) {
				return nil
			}
			it.entry = it.t.buckets[it.index]
		} else {
			it.entry = it.next
		}
		if it.entry != nil {
			// Save next now; the caller may delete the entry we yield.
			it.next = it.entry.next
			return it.entry
		}
	}
}

// All calls yield sequentially for each entry in the table, stopping
// early if yield returns false. It carries the same mutation contract as
// Iterator.
func (t *Table[K, V]) All(yield func(e *Entry[K, V]) bool) {
	it := t.Iter()
	for e := it.Next(); e != nil; e = it.Next() {
		if !yield(e) {
			return
		}
	}
}

// RandomEntry returns a uniformly random entry, or nil if the table is
// empty. It rejection-samples until it hits a non-empty bucket, counts
// that bucket's chain, and re-walks to a uniformly chosen offset.
func (t *Table[K, V]) RandomEntry(rng *rand.Rand) *Entry[K, V] {
	if t.used == 0 {
		return nil
	}
	var e *Entry[K, V]
	for e == nil {
		e = t.buckets[rng.Uint64()&t.mask]
	}
	n := 0
	for f := e; f != nil; f = f.next {
		n++
	}
	for j := rng.Intn(n); j > 0; j-- {
		e = e.next
	}
	return e
}

func (t *Table[K, V]) checkInvariants() {
	if invariants {
		size := uint64(len(t.buckets))
		if size != 0 && size&(size-1) != 0 {
			panic(fmt.Sprintf("invariant failed: size %d is not a power of two\n%s", size, t.debugString()))
		}
		if size != 0 && t.mask != size-1 {
			panic(fmt.Sprintf("invariant failed: mask %d != size-1 %d\n%s", t.mask, size-1, t.debugString()))
		}
		var used uint64
		for i := range t.buckets {
			for e := t.buckets[i]; e != nil; e = e.next {
				used++
				if j := t.typ.Hash(e.key) & t.mask; j != uint64(i) {
					panic(fmt.Sprintf("invariant failed: entry %v in bucket %d, belongs in bucket %d\n%s",
						e.key, i, j, t.debugString()))
				}
				if t.Find(e.key) == nil {
					panic(fmt.Sprintf("invariant failed: entry %v not findable\n%s", e.key, t.debugString()))
				}
			}
		}
		if used != t.used {
			panic(fmt.Sprintf("invariant failed: found %d entries, but used count is %d\n%s",
				used, t.used, t.debugString()))
		}
	}
}

func (t *Table[K, V]) debugString() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "size=%d  used=%d\n", len(t.buckets), t.used)
	var slots, maxChain uint64
	for i := range t.buckets {
		var chain uint64
		for e := t.buckets[i]; e != nil; e = e.next {
			chain++
		}
		if chain > 0 {
			slots++
		}
		if chain > maxChain {
			maxChain = chain
		}
	}
	fmt.Fprintf(&buf, "non-empty buckets=%d  max chain=%d\n", slots, maxChain)
	for i := range t.buckets {
		if t.buckets[i] == nil {
			continue
		}
		fmt.Fprintf(&buf, "  %4d:", i)
		for e := t.buckets[i]; e != nil; e = e.next {
			fmt.Fprintf(&buf, " %v", e.key)
		}
		fmt.Fprintf(&buf, "\n")
	}
	return buf.String()
}
