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

package bytemap

// option provides an interface for passing options to New.
type option interface {
	apply(m *Map)
}

// Allocator specifies an interface for allocating and releasing the
// Map's buffer. Allocation must never fail: for allocators wrapping
// manually managed memory, an out-of-memory condition must terminate
// the process rather than return a short or nil buffer.
type Allocator interface {
	// Alloc returns a buffer of n bytes.
	Alloc(n int) []byte
	// Realloc returns a buffer of n bytes holding the contents of b,
	// either growing b in place or relocating it.
	Realloc(b []byte, n int) []byte
	// Free releases a buffer obtained from Alloc or Realloc.
	Free(b []byte)
}

type defaultAllocator struct{}

func (defaultAllocator) Alloc(n int) []byte {
	return make([]byte, n)
}

func (defaultAllocator) Realloc(b []byte, n int) []byte {
	if n <= cap(b) {
		return b[:n]
	}
	t := make([]byte, n)
	copy(t, b)
	return t
}

func (defaultAllocator) Free(b []byte) {}

type allocatorOption struct {
	alloc Allocator
}

func (o allocatorOption) apply(m *Map) {
	m.alloc = o.alloc
}

// WithAllocator specifies the Allocator the Map's buffer is obtained
// from, overriding the default Go allocator.
func WithAllocator(alloc Allocator) option {
	return allocatorOption{alloc: alloc}
}
