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

import "encoding/binary"

const (
	// bigLen is the first single-byte length that does not fit the
	// 1-byte encoding. Lengths >= bigLen are encoded as the bigLen
	// marker followed by a native-endian uint32 (5 bytes total). The
	// byte values freeMark and endMark are reserved and never appear as
	// single-byte lengths.
	bigLen   = 253
	freeMark = 0xfe // first byte of a free block
	endMark  = 0xff // terminates the buffer

	// statusFragmented is set in the status byte whenever the buffer
	// contains at least one free block.
	statusFragmented = 0x01

	// maxValueFree bounds the trailing free padding kept inline after a
	// value. Larger leftovers become standalone free blocks.
	maxValueFree = 5
)

// lengthSize returns the number of bytes needed to encode the length n.
func lengthSize(n int) int {
	if n < bigLen {
		return 1
	}
	return 1 + 4
}

// putLength encodes n at the start of b and returns the encoded size.
// Lengths must fit a uint32.
func putLength(b []byte, n int) int {
	if n < bigLen {
		b[0] = byte(n)
		return 1
	}
	b[0] = bigLen
	binary.NativeEndian.PutUint32(b[1:], uint32(n))
	return 1 + 4
}

// readLength decodes a length at the start of b. It is the exact inverse
// of putLength and must only be called at a length field of a well-formed
// buffer.
func readLength(b []byte) int {
	if b[0] < bigLen {
		return int(b[0])
	}
	return int(binary.NativeEndian.Uint32(b[1:]))
}

// requiredLength returns the encoded size of a fresh entry for a key of
// klen bytes and a value of vlen bytes: both length fields, the free
// byte, and the payloads, with no trailing padding.
func requiredLength(klen, vlen int) int {
	n := klen + vlen + 3
	if klen >= bigLen {
		n += 4
	}
	if vlen >= bigLen {
		n += 4
	}
	return n
}

// rawKeyLength returns the total encoded size of the key starting at
// off: its length field plus the key bytes.
func rawKeyLength(data []byte, off int) int {
	n := readLength(data[off:])
	return lengthSize(n) + n
}

// rawValueLength returns the total encoded size of the value starting at
// off: its length field, the free byte, the value bytes, and the
// trailing free padding.
func rawValueLength(data []byte, off int) int {
	n := readLength(data[off:])
	h := lengthSize(n)
	return h + 1 + n + int(data[off+h])
}

// rawEntryLength returns the total encoded size of the live entry
// starting at off (key + value + trailing padding).
func rawEntryLength(data []byte, off int) int {
	k := rawKeyLength(data, off)
	return k + rawValueLength(data, off+k)
}
