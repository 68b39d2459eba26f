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

import "github.com/cespare/xxhash/v2"

// Built-in hash strategies. A Type's Hash callback can use any of these,
// a combination, or something entirely different; they are reference
// implementations, not an exhaustive menu.

// HashUint32 mixes a 32-bit integer key through Thomas Wang's avalanche
// function so that nearby keys land in unrelated buckets.
func HashUint32(key uint32) uint64 {
	key += ^(key << 15)
	key ^= key >> 10
	key += key << 3
	key ^= key >> 6
	key += ^(key << 11)
	key ^= key >> 16
	return uint64(key)
}

// HashIdentity returns the key unchanged. Only suitable for integer keys
// that are already uniformly distributed.
func HashIdentity(key uint32) uint64 {
	return uint64(key)
}

// HashBytes is the classic multiplicative string hash (Bernstein):
// starting from 5381, hash = hash*33 + byte, in 32-bit arithmetic.
func HashBytes(b []byte) uint64 {
	h := uint32(5381)
	for _, c := range b {
		h = ((h << 5) + h) + uint32(c) // hash*33 + c
	}
	return uint64(h)
}

// HashString is HashBytes over the bytes of s.
func HashString(s string) uint64 {
	h := uint32(5381)
	for i := 0; i < len(s); i++ {
		h = ((h << 5) + h) + uint32(s[i])
	}
	return uint64(h)
}

// HashBytesXX hashes b with xxhash. Preferred over HashBytes for long
// keys, where the full 64-bit spread matters.
func HashBytesXX(b []byte) uint64 {
	return xxhash.Sum64(b)
}

// HashStringXX hashes s with xxhash without copying it.
func HashStringXX(s string) uint64 {
	return xxhash.Sum64String(s)
}
