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

package talmodel

import "time"

// ClassificationTag tags the variant of Classification.
type ClassificationTag int

const (
	ClassificationFull ClassificationTag = iota
	ClassificationDelta
	ClassificationIndex
	ClassificationMetadata
)

// Classification is a tagged union: a chunk is either a Full
// chunk (embeds its own sequence bytes), a Delta chunk (references a
// parent and carries a compression ratio), an Index chunk, or a Metadata
// chunk.
type Classification struct {
	Tag        ClassificationTag `msgpack:"tag"`
	ParentHash [32]byte          `msgpack:"parent_hash,omitempty"`
	Ratio      float64           `msgpack:"ratio,omitempty"`
}

func FullClassification() Classification {
	return Classification{Tag: ClassificationFull}
}

func DeltaClassification(parent [32]byte, ratio float64) Classification {
	return Classification{Tag: ClassificationDelta, ParentHash: parent, Ratio: ratio}
}

func IndexClassification() Classification    { return Classification{Tag: ClassificationIndex} }
func MetadataClassification() Classification { return Classification{Tag: ClassificationMetadata} }

// SequenceRef is a reference to one canonical sequence embedded in a Full
// chunk's body, ordered by the chunker's canonicalization pass.
type SequenceRef struct {
	CanonicalHash [32]byte `msgpack:"canonical_hash"`
	TaxonID       TaxonId  `msgpack:"taxon_id"`
	Length        int      `msgpack:"length"`
}

// Chunk is a taxonomy-coherent grouping of sequences, content-addressed by
// SHA-256 of its canonical serialization.
type Chunk struct {
	Hash                 [32]byte        `msgpack:"hash"`
	TaxonIDs             []TaxonId       `msgpack:"taxon_ids"`
	SequenceCount        int             `msgpack:"sequence_count"`
	UncompressedSize     int64           `msgpack:"uncompressed_size"`
	CompressedSize       *int64          `msgpack:"compressed_size,omitempty"`
	CreatedAt            time.Time       `msgpack:"created_at"`
	TaxonomyVersionHash   [32]byte        `msgpack:"taxonomy_version_hash"`
	SequenceVersionHash  [32]byte        `msgpack:"sequence_version_hash"`
	Classification       Classification  `msgpack:"classification"`
	SequenceRefs         []SequenceRef   `msgpack:"sequence_refs,omitempty"`
}

// CanonicalBody is the deterministic serialization subject to hashing: the
// sorted sequence refs, sorted taxon ids, counts and versions. It
// deliberately excludes Hash itself and CreatedAt (which would make the
// hash non-deterministic across re-chunking runs with the same logical
// content but different wall-clock times).
type CanonicalBody struct {
	SequenceRefs        []SequenceRef  `msgpack:"sequence_refs"`
	TaxonIDs            []TaxonId      `msgpack:"taxon_ids"`
	SequenceCount       int            `msgpack:"sequence_count"`
	UncompressedSize    int64          `msgpack:"uncompressed_size"`
	TaxonomyVersionHash [32]byte       `msgpack:"taxonomy_version_hash"`
	SequenceVersionHash [32]byte       `msgpack:"sequence_version_hash"`
	Classification      Classification `msgpack:"classification"`
}

// Body extracts the canonical, hash-relevant body of c.
func (c Chunk) Body() CanonicalBody {
	return CanonicalBody{
		SequenceRefs:        c.SequenceRefs,
		TaxonIDs:            c.TaxonIDs,
		SequenceCount:       c.SequenceCount,
		UncompressedSize:    c.UncompressedSize,
		TaxonomyVersionHash: c.TaxonomyVersionHash,
		SequenceVersionHash: c.SequenceVersionHash,
		Classification:      c.Classification,
	}
}

// DeltaOpTag tags the variant of a DeltaOp.
type DeltaOpTag int

const (
	OpCopy DeltaOpTag = iota
	OpInsert
	OpSubstitute
	OpDelete
)

// DeltaOp is one edit operation in a DeltaRecord's op list.
type DeltaOp struct {
	Tag      DeltaOpTag `msgpack:"tag"`
	RefStart int        `msgpack:"ref_start,omitempty"`
	Len      int        `msgpack:"len,omitempty"`
	Bytes    []byte     `msgpack:"bytes,omitempty"`
	RefPos   int        `msgpack:"ref_pos,omitempty"`
	Byte     byte       `msgpack:"byte,omitempty"`
}

func Copy(refStart, length int) DeltaOp { return DeltaOp{Tag: OpCopy, RefStart: refStart, Len: length} }
func Insert(b []byte) DeltaOp           { return DeltaOp{Tag: OpInsert, Bytes: b} }
func Substitute(refPos int, b byte) DeltaOp {
	return DeltaOp{Tag: OpSubstitute, RefPos: refPos, Byte: b}
}
func Delete(refPos int) DeltaOp { return DeltaOp{Tag: OpDelete, RefPos: refPos} }

// DeltaRecord describes how to reconstruct ChildID's bytes from
// ReferenceID's bytes by applying Ops in order. Applying Ops to
// reference.bytes must yield exactly child.bytes.
type DeltaRecord struct {
	ReferenceID [32]byte  `msgpack:"reference_id"`
	ChildID     [32]byte  `msgpack:"child_id"`
	Ops         []DeltaOp `msgpack:"ops"`
}

// Apply reconstructs the child bytes by applying r.Ops to reference in
// order.
func (r DeltaRecord) Apply(reference []byte) []byte {
	var out []byte
	for _, op := range r.Ops {
		switch op.Tag {
		case OpCopy:
			out = append(out, reference[op.RefStart:op.RefStart+op.Len]...)
		case OpInsert:
			out = append(out, op.Bytes...)
		case OpSubstitute:
			out = append(out, op.Byte)
		case OpDelete:
			// Deletion consumes a reference byte and emits nothing.
		}
	}
	return out
}
