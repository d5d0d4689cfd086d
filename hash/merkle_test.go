// Copyright 2024 The Talaria Authors
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

package hash

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// An empty chunk set yields the domain-separated empty root, not the zero
// hash.
func TestMerkleRootEmpty(t *testing.T) {
	assert.Equal(t, EmptySequenceRoot(), SequenceRoot(nil))
	assert.Equal(t, EmptyTaxonomyRoot(), TaxonomyRoot(nil))
}

// A single-chunk set yields that chunk's own hash, with no combining step.
func TestMerkleRootSingleton(t *testing.T) {
	h := Of([]byte("only"))
	assert.Equal(t, h, SequenceRoot([]Hash{h}))
}

// Given sorted distinct hashes h1 < h2 < h3, the root is
// SHA-256(SHA-256(h1||h2) || SHA-256(h3||h3)): the odd tail pairs with
// itself rather than being promoted unchanged.
func TestMerkleRootThreeChunks(t *testing.T) {
	h1 := Hash{0x01}
	h2 := Hash{0x02}
	h3 := Hash{0x03}

	var buf12 [ByteLen * 2]byte
	copy(buf12[:ByteLen], h1[:])
	copy(buf12[ByteLen:], h2[:])
	left := Of(buf12[:])

	var buf33 [ByteLen * 2]byte
	copy(buf33[:ByteLen], h3[:])
	copy(buf33[ByteLen:], h3[:])
	right := Of(buf33[:])

	var bufRoot [ByteLen * 2]byte
	copy(bufRoot[:ByteLen], left[:])
	copy(bufRoot[ByteLen:], right[:])
	want := Of(bufRoot[:])

	got := SequenceRoot([]Hash{h3, h1, h2})
	assert.Equal(t, want, got)
}

func TestMerkleRootOrderIndependent(t *testing.T) {
	a := Of([]byte("a"))
	b := Of([]byte("b"))
	c := Of([]byte("c"))
	r1 := SequenceRoot([]Hash{a, b, c})
	r2 := SequenceRoot([]Hash{c, a, b})
	assert.Equal(t, r1, r2)
}

func TestMerkleRootDedupes(t *testing.T) {
	a := Of([]byte("a"))
	b := Of([]byte("b"))
	r1 := SequenceRoot([]Hash{a, b})
	r2 := SequenceRoot([]Hash{a, b, a})
	assert.Equal(t, r1, r2)
}
