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

// ChunkMetadata is one entry in a Manifest's chunk_index: enough to locate
// and verify a chunk without loading its body.
type ChunkMetadata struct {
	Hash                [32]byte       `msgpack:"hash"`
	TaxonIDs            []TaxonId      `msgpack:"taxon_ids"`
	SequenceCount       int            `msgpack:"sequence_count"`
	UncompressedSize    int64          `msgpack:"uncompressed_size"`
	CompressedSize      *int64         `msgpack:"compressed_size,omitempty"`
	TaxonomyVersionHash [32]byte       `msgpack:"taxonomy_version_hash"`
	SequenceVersionHash [32]byte       `msgpack:"sequence_version_hash"`
	Classification      Classification `msgpack:"classification"`
}

// ChunkMetadataOf builds the ChunkMetadata projection of a full Chunk.
func ChunkMetadataOf(c Chunk) ChunkMetadata {
	return ChunkMetadata{
		Hash:                c.Hash,
		TaxonIDs:            c.TaxonIDs,
		SequenceCount:       c.SequenceCount,
		UncompressedSize:    c.UncompressedSize,
		CompressedSize:      c.CompressedSize,
		TaxonomyVersionHash: c.TaxonomyVersionHash,
		SequenceVersionHash: c.SequenceVersionHash,
		Classification:      c.Classification,
	}
}

// Manifest is the per-database, per-sequence-time-point record: an
// ordered, deterministic chunk index plus the two aggregate Merkle roots
// derived from it.
type Manifest struct {
	VersionTag      time.Time       `msgpack:"version_tag"`
	CreatedAt       time.Time       `msgpack:"created_at"`
	SourceDatabase  string          `msgpack:"source_database"`
	ChunkIndex      []ChunkMetadata `msgpack:"chunk_index"`
	SequenceRoot    [32]byte        `msgpack:"sequence_root"`
	TaxonomyRoot    [32]byte        `msgpack:"taxonomy_root"`
	PreviousVersion *time.Time      `msgpack:"previous_version,omitempty"`
	ETag            *string         `msgpack:"etag,omitempty"`
}
