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

// Package bytemap implements an ordered byte-string to byte-string map
// serialized into a single contiguous, self-describing buffer. Lookups
// are O(n) in the number of entries; the point of the structure is
// memory density over a small number of entries, where a hash table's
// per-entry overhead dominates its payload.
//
// # Layout
//
// The buffer for the map "foo" => "bar", "hello" => "world" is:
//
//	00 | 03 "foo" 03 00 "bar" | 05 "hello" 05 00 "world" | ff
//
// The first byte is the status byte; bit 0x01 is set when the buffer
// contains free blocks (it is fragmented). A live entry is
//
//	<len(klen)> <key> <len(vlen)> <free:u8> <value> <padding...>
//
// where <free> counts the trailing padding bytes left behind by an
// in-place value overwrite. A length field is a single byte for lengths
// below 253, or the byte 253 followed by a native-endian uint32 for
// larger lengths. The bytes 254 and 255 never appear as single-byte
// lengths: 255 terminates the buffer and 254 starts a free block,
//
//	fe <len(blockLen)> <padding...>
//
// whose length counts the whole block, marker and length field
// included. Free blocks are reused first-fit on insert but never
// coalesced or compacted.
//
// # Ownership
//
// A Map buffer has a single exclusive owner. Every mutating call
// consumes the handle it is invoked on and returns a new, possibly
// relocated one:
//
//	m := bytemap.New()
//	m, _ = m.Set([]byte("foo"), []byte("bar"))
//	m, _ = m.Delete([]byte("foo"))
//
// Using a handle after a later mutating call has superseded it would be
// a use-after-free in disguise; every operation asserts the handle is
// current and panics on stale use.
//
// A Map is NOT goroutine-safe.
package bytemap

import (
	"bytes"
	"fmt"
	"strings"
)

// Map is a handle to an encoded buffer. The zero value is not usable;
// obtain a Map from New.
type Map struct {
	data  []byte
	alloc Allocator
	// seq is shared by every handle descended from the same New call and
	// counts mutations; a handle is current while rev == *seq.
	seq *uint32
	rev uint32
}

// New constructs an empty Map: a 2-byte buffer holding the status byte
// and the end marker.
func New(options ...option) Map {
	m := Map{
		alloc: defaultAllocator{},
		seq:   new(uint32),
	}
	for _, op := range options {
		op.apply(&m)
	}
	m.data = m.alloc.Alloc(2)
	m.data[0] = 0
	m.data[1] = endMark
	return m
}

// check panics if this handle has been superseded by a mutating call.
func (m Map) check() {
	if m.seq == nil {
		panic("bytemap: use of zero-value Map; obtain one from New")
	}
	if *m.seq != m.rev {
		panic("bytemap: use of a stale Map handle after a mutating call")
	}
}

// move invalidates every outstanding handle and returns the new sole
// owner of data.
func (m Map) move(data []byte) Map {
	*m.seq++
	return Map{data: data, alloc: m.alloc, seq: m.seq, rev: *m.seq}
}

// Set associates key with value, creating the key if it does not already
// exist, and reports whether an existing entry was updated. The handle
// it is invoked on is consumed; only the returned handle may be used
// afterwards.
func (m Map) Set(key, value []byte) (Map, bool) {
	m.check()
	data, updated := set(m.data, m.alloc, key, value)
	checkBuffer(data)
	return m.move(data), updated
}

// set works on the raw buffer so that the relocation path can recurse
// without handle bookkeeping.
func set(data []byte, alloc Allocator, key, value []byte) ([]byte, bool) {
	reqLen := requiredLength(len(key), len(value))
	pos, freeOff, freeLen := lookup(data, key, reqLen)

	var p, blockLen int
	update := false
	switch {
	case pos < 0 && freeOff < 0:
		// Key not found and no free block is big enough: grow the buffer
		// by exactly the room the new entry needs and append it in front
		// of the end marker.
		old := len(data)
		data = alloc.Realloc(data, old+reqLen)
		data[old+reqLen-1] = endMark
		p, blockLen = old-1, reqLen
	case pos < 0:
		// Key not found; reuse the first free block seen that fits.
		p, blockLen = freeOff, freeLen
	default:
		update = true
		blockLen = rawEntryLength(data, pos)
		if blockLen < reqLen {
			// No room to grow in place: turn the whole old entry into
			// one free block and insert from scratch. The fresh insert
			// may land in an earlier free block or at the end.
			data[pos] = freeMark
			putLength(data[pos+1:], blockLen)
			data[0] |= statusFragmented
			data, _ = set(data, alloc, key, value)
			return data, true
		}
		p = pos
	}

	// Leftover space beyond a few bytes becomes a standalone free block
	// rather than trailing value padding, to keep the buffer dense.
	empty := blockLen - reqLen
	vfree := 0
	if empty > maxValueFree {
		e := p + reqLen
		data[e] = freeMark
		putLength(data[e+1:], empty)
		data[0] |= statusFragmented
	} else {
		vfree = empty
	}

	p += putLength(data[p:], len(key))
	copy(data[p:], key)
	p += len(key)
	p += putLength(data[p:], len(value))
	data[p] = byte(vfree)
	p++
	copy(data[p:], value)
	return data, update
}

// Delete removes key, marking its whole entry as one free block, and
// reports whether the key was present. The buffer never shrinks and
// adjacent free blocks are not coalesced. The handle it is invoked on is
// consumed.
func (m Map) Delete(key []byte) (Map, bool) {
	m.check()
	pos, _, _ := lookup(m.data, key, 0)
	if pos < 0 {
		return m.move(m.data), false
	}
	span := rawEntryLength(m.data, pos)
	m.data[pos] = freeMark
	putLength(m.data[pos+1:], span)
	m.data[0] |= statusFragmented
	checkBuffer(m.data)
	return m.move(m.data), true
}

// Get returns the value associated with key. The returned slice aliases
// the buffer and is only valid until the next mutating call.
func (m Map) Get(key []byte) (value []byte, ok bool) {
	m.check()
	pos, _, _ := lookup(m.data, key, 0)
	if pos < 0 {
		return nil, false
	}
	p := pos + rawKeyLength(m.data, pos)
	n := readLength(m.data[p:])
	p += lengthSize(n) + 1 // +1 skips the free byte
	return m.data[p : p+n : p+n], true
}

// Exists reports whether key is present.
func (m Map) Exists(key []byte) bool {
	m.check()
	pos, _, _ := lookup(m.data, key, 0)
	return pos >= 0
}

// Len returns the number of live entries. It is a full O(n) walk of the
// buffer; nothing caches the count.
func (m Map) Len() int {
	n := 0
	m.All(func(_, _ []byte) bool {
		n++
		return true
	})
	return n
}

// Bytes returns the encoded buffer itself, which is the structure's
// bit-exact wire format. The slice aliases the Map's storage and is only
// valid until the next mutating call.
func (m Map) Bytes() []byte {
	m.check()
	return m.data
}

// Close releases the buffer back to the allocator and invalidates the
// handle. It is only needed with allocators that manage memory manually.
func (m Map) Close() {
	m.check()
	*m.seq++
	m.alloc.Free(m.data)
}

// lookup scans the buffer once from the start. It returns the offset of
// the entry matching key, or -1 if the key is not present. When reqFree
// is non-zero the same pass remembers the first free block of at least
// reqFree bytes (first-fit, deliberately not best-fit); freeOff is -1
// when no suitable block was seen. The combined pass exists because the
// key's presence is unknown in advance: a second scan to find free space
// after a miss would double the documented O(n) cost.
//
// Walking over a free block also sets the fragmented status bit.
func lookup(data []byte, key []byte, reqFree int) (pos, freeOff, freeLen int) {
	freeOff = -1
	p := 1
	for data[p] != endMark {
		if data[p] == freeMark {
			l := readLength(data[p+1:])
			if reqFree > 0 && freeOff < 0 && l >= reqFree {
				freeOff, freeLen = p, l
			}
			p += l
			data[0] |= statusFragmented
			continue
		}
		l := readLength(data[p:])
		h := lengthSize(l)
		if l == len(key) && bytes.Equal(data[p+h:p+h+l], key) {
			return p, freeOff, freeLen
		}
		// Skip the key, then the whole value span.
		p += h + l
		p += rawValueLength(data, p)
	}
	return -1, freeOff, freeLen
}

// Iterator walks the live entries of a Map in buffer order, skipping
// free blocks. It is forward-only and single-pass; obtain a fresh one
// from Iter to walk again. An Iterator is invalidated, like any other
// handle, by a mutating call on its Map.
type Iterator struct {
	m   Map
	off int
}

// Iter returns an Iterator positioned before the first entry.
func (m Map) Iter() *Iterator {
	m.check()
	return &Iterator{m: m, off: 1}
}

// Next returns the next key/value pair, or ok=false when the iteration
// is done. The returned slices alias the buffer.
func (it *Iterator) Next() (key, value []byte, ok bool) {
	it.m.check()
	data := it.m.data
	p := it.off
	for data[p] == freeMark {
		p += readLength(data[p+1:])
	}
	if data[p] == endMark {
		it.off = p
		return nil, nil, false
	}
	klen := readLength(data[p:])
	h := lengthSize(klen)
	key = data[p+h : p+h+klen : p+h+klen]
	p += h + klen
	vlen := readLength(data[p:])
	h = lengthSize(vlen)
	free := int(data[p+h])
	value = data[p+h+1 : p+h+1+vlen : p+h+1+vlen]
	p += h + 1 + vlen + free
	it.off = p
	return key, value, true
}

// All calls yield sequentially for each live entry in buffer order,
// stopping early if yield returns false.
func (m Map) All(yield func(key, value []byte) bool) {
	it := m.Iter()
	for k, v, ok := it.Next(); ok; k, v, ok = it.Next() {
		if !yield(k, v) {
			return
		}
	}
}

// checkBuffer verifies that walking the buffer's spans lands exactly on
// a single end marker at the last byte.
func checkBuffer(data []byte) {
	if invariants {
		p := 1
		for p < len(data) && data[p] != endMark {
			if data[p] == freeMark {
				p += readLength(data[p+1:])
			} else {
				p += rawEntryLength(data, p)
			}
		}
		if p != len(data)-1 {
			panic(fmt.Sprintf("invariant failed: buffer of %d bytes terminates at offset %d\n%s",
				len(data), p, debugString(data)))
		}
	}
}

func debugString(data []byte) string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "status=%02x len=%d\n", data[0], len(data))
	p := 1
	for p < len(data) {
		switch data[p] {
		case endMark:
			fmt.Fprintf(&buf, "  %4d: end\n", p)
			p = len(data)
		case freeMark:
			l := readLength(data[p+1:])
			fmt.Fprintf(&buf, "  %4d: free block of %d bytes\n", p, l)
			p += l
		default:
			klen := readLength(data[p:])
			h := lengthSize(klen)
			key := data[p+h : p+h+klen]
			q := p + h + klen
			vlen := readLength(data[q:])
			h = lengthSize(vlen)
			free := int(data[q+h])
			value := data[q+h+1 : q+h+1+vlen]
			fmt.Fprintf(&buf, "  %4d: %q => %q (free=%d)\n", p, key, value, free)
			p = q + h + 1 + vlen + free
		}
	}
	return buf.String()
}
