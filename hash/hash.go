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

// Package hash defines the fixed-size content identifier used throughout
// talaria: a SHA-256 digest over a canonical byte string. Every durable
// record in the system - canonical sequences, chunks, manifests, taxonomy
// snapshots - is addressed by one of these.
package hash

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"

	"github.com/pkg/errors"
)

// ByteLen is the width of a Hash: a raw SHA-256 digest.
const ByteLen = sha256.Size

// Hash is a content identifier. Equality is byte equality; ordering is
// lexicographic on the underlying bytes.
type Hash [ByteLen]byte

// Empty is the zero-valued Hash, distinct from any hash of real content.
var Empty Hash

// Of computes the Hash of b. This is the only place in the module allowed
// to call crypto/sha256 directly on behalf of identity computation; every
// other package goes through here.
func Of(b []byte) Hash {
	return Hash(sha256.Sum256(b))
}

// New builds a Hash from a raw 32-byte slice, erroring if the length is
// wrong. Use this when deserializing a hash that arrived over the wire.
func New(b []byte) (Hash, error) {
	var h Hash
	if len(b) != ByteLen {
		return h, errors.Errorf("hash: invalid length %d, want %d", len(b), ByteLen)
	}
	copy(h[:], b)
	return h, nil
}

// Parse decodes a lowercase hex string into a Hash. It panics on malformed
// input, mirroring dolt's own Parse helper: callers that might see
// untrusted input should use ParseSafe instead.
func Parse(s string) Hash {
	h, err := ParseSafe(s)
	if err != nil {
		panic(err)
	}
	return h
}

// ParseSafe decodes a lowercase hex string into a Hash, returning an error
// instead of panicking on malformed input.
func ParseSafe(s string) (Hash, error) {
	if len(s) != ByteLen*2 {
		return Hash{}, errors.Errorf("hash: invalid hex length %d", len(s))
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return Hash{}, errors.Wrap(err, "hash: invalid hex")
	}
	return New(b)
}

// String renders the hash as lowercase hex.
func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// IsEmpty reports whether h is the zero hash.
func (h Hash) IsEmpty() bool {
	return h == Empty
}

// Less implements the lexicographic byte ordering used for sorted chunk
// indices and Merkle tree construction.
func (h Hash) Less(other Hash) bool {
	for i := range h {
		if h[i] != other[i] {
			return h[i] < other[i]
		}
	}
	return false
}

// Compare returns -1, 0 or 1, consistent with Less/Equals.
func (h Hash) Compare(other Hash) int {
	for i := range h {
		if h[i] != other[i] {
			if h[i] < other[i] {
				return -1
			}
			return 1
		}
	}
	return 0
}

// Equals reports byte equality.
func (h Hash) Equals(other Hash) bool {
	return h == other
}

// HashSlice is a sortable, deduplicable slice of Hash, mirroring the
// teacher's own HashSlice type in go/store/hash.
type HashSlice []Hash

func (hs HashSlice) Len() int           { return len(hs) }
func (hs HashSlice) Less(i, j int) bool { return hs[i].Less(hs[j]) }
func (hs HashSlice) Swap(i, j int)      { hs[i], hs[j] = hs[j], hs[i] }

// Equals reports whether two slices contain the same hashes in the same
// order.
func (hs HashSlice) Equals(other HashSlice) bool {
	if len(hs) != len(other) {
		return false
	}
	for i := range hs {
		if !hs[i].Equals(other[i]) {
			return false
		}
	}
	return true
}

// SortedUnique returns a new, sorted slice with adjacent duplicates
// removed. Used by the Merkle root and taxonomy-root computations, both of
// which require a deterministic, deduplicated leaf ordering.
func SortedUnique(hs []Hash) HashSlice {
	out := make(HashSlice, len(hs))
	copy(out, hs)
	sort.Sort(out)
	if len(out) == 0 {
		return out
	}
	dst := 1
	for src := 1; src < len(out); src++ {
		if !out[src].Equals(out[dst-1]) {
			out[dst] = out[src]
			dst++
		}
	}
	return out[:dst]
}
