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

import (
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLengthCodec(t *testing.T) {
	for _, n := range []int{0, 1, 100, 252, 253, 254, 300, 65536, math.MaxUint32} {
		t.Run(fmt.Sprint(n), func(t *testing.T) {
			var b [5]byte
			size := putLength(b[:], n)
			require.Equal(t, lengthSize(n), size)
			if n < 253 {
				require.Equal(t, 1, size)
				require.EqualValues(t, n, b[0])
			} else {
				require.Equal(t, 5, size)
				require.EqualValues(t, 253, b[0])
			}
			require.Equal(t, n, readLength(b[:]))
		})
	}
}

func TestRequiredLength(t *testing.T) {
	// Both length fields single-byte: lengths + two length bytes + free
	// byte.
	require.Equal(t, 9, requiredLength(3, 3))
	require.Equal(t, 3, requiredLength(0, 0))
	// Each length at or above 253 costs four extra bytes.
	require.Equal(t, 253+3+3+4, requiredLength(253, 3))
	require.Equal(t, 3+253+3+4, requiredLength(3, 253))
	require.Equal(t, 253+253+3+8, requiredLength(253, 253))
}

func TestRawLengths(t *testing.T) {
	// 03 "foo" 05 02 "hello" xx xx: a live entry with two bytes of
	// trailing padding.
	data := []byte{3, 'f', 'o', 'o', 5, 2, 'h', 'e', 'l', 'l', 'o', 0, 0}
	require.Equal(t, 4, rawKeyLength(data, 0))
	require.Equal(t, 9, rawValueLength(data, 4))
	require.Equal(t, 13, rawEntryLength(data, 0))
}
