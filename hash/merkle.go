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

// EmptySequenceRootSeed and EmptyTaxonomyRootSeed are the domain-separation
// constants fixed by the design for empty Merkle forests: SHA-256 of these
// literal strings, not the zero hash.
const (
	EmptySequenceRootSeed = "EMPTY_SEQUENCE_ROOT"
	EmptyTaxonomyRootSeed = "EMPTY_TAXONOMY_ROOT"
)

// EmptySequenceRoot returns SHA-256("EMPTY_SEQUENCE_ROOT").
func EmptySequenceRoot() Hash { return Of([]byte(EmptySequenceRootSeed)) }

// EmptyTaxonomyRoot returns SHA-256("EMPTY_TAXONOMY_ROOT").
func EmptyTaxonomyRoot() Hash { return Of([]byte(EmptyTaxonomyRootSeed)) }

// MerkleRoot computes a bit-exact Merkle root over leaves:
// pair lexicographically-sorted, deduplicated hashes; combine adjacent pairs
// with SHA-256(left||right); duplicate the odd tail: SHA-256(last||last).
// emptySeed selects the domain-separated constant used when leaves is empty.
func MerkleRoot(leaves []Hash, emptySeed string) Hash {
	sorted := SortedUnique(leaves)
	if len(sorted) == 0 {
		return Of([]byte(emptySeed))
	}
	level := make([]Hash, len(sorted))
	copy(level, sorted)
	for len(level) > 1 {
		next := make([]Hash, 0, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			var buf [ByteLen * 2]byte
			copy(buf[:ByteLen], level[i][:])
			if i+1 < len(level) {
				copy(buf[ByteLen:], level[i+1][:])
			} else {
				copy(buf[ByteLen:], level[i][:])
			}
			next = append(next, Of(buf[:]))
		}
		level = next
	}
	return level[0]
}

// SequenceRoot computes a Merkle root over a manifest's sorted chunk hashes.
func SequenceRoot(chunkHashes []Hash) Hash {
	return MerkleRoot(chunkHashes, EmptySequenceRootSeed)
}

// TaxonomyRoot computes a Merkle root over the distinct sorted taxonomy
// version hashes referenced by a manifest's chunks. dolt's own
// get_taxonomy_root left this ambiguous (it folded a single manifest-level
// hash into a one-element tree rather than collecting per-chunk taxonomy
// versions); the natural reading - a real Merkle tree over every distinct
// taxonomy-version hash a manifest's chunks reference - is the one
// implemented here.
func TaxonomyRoot(taxonomyVersionHashes []Hash) Hash {
	return MerkleRoot(taxonomyVersionHashes, EmptyTaxonomyRootSeed)
}
