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

package chunker

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bfowle/talaria-sub008/hash"
	"github.com/bfowle/talaria-sub008/taxonomy"
)

func buildTestIndex() *taxonomy.Index {
	ix := taxonomy.New()
	ix.Load([]taxonomy.TaxonRecord{
		{TaxonID: 1, Parent: 1, Name: "root"},
		{TaxonID: 2, Parent: 1, Name: "Bacteria"},
		{TaxonID: 562, Parent: 2, Name: "Escherichia coli"},
		{TaxonID: 1280, Parent: 2, Name: "Staphylococcus aureus"},
	}, nil, nil)
	return ix
}

func seqInput(seed byte, taxon taxonomy.TaxonId, length int64) Input {
	var h hash.Hash
	h[0] = seed
	return Input{CanonicalHash: h, TaxonID: taxon, Length: length}
}

func TestChunkDeterministicOrdering(t *testing.T) {
	ix := buildTestIndex()
	cfg := DefaultConfig()
	cfg.TargetChunkSizeBytes = 1 << 30 // large enough not to trigger a close mid-batch

	c1 := New(cfg, ix, hash.Hash{1}, hash.Hash{2})
	c2 := New(cfg, ix, hash.Hash{1}, hash.Hash{2})

	in := []Input{
		seqInput(3, 562, 100),
		seqInput(1, 562, 100),
		seqInput(2, 1280, 100),
	}
	reversed := []Input{in[2], in[0], in[1]}

	c1.Chunk(in)
	closed1 := c1.Close()
	c2.Chunk(reversed)
	closed2 := c2.Close()

	require.Equal(t, len(closed1), len(closed2))
	var hashes1, hashes2 []hash.Hash
	for _, c := range closed1 {
		hashes1 = append(hashes1, hash.Hash(c.Hash))
	}
	for _, c := range closed2 {
		hashes2 = append(hashes2, hash.Hash(c.Hash))
	}
	assert.ElementsMatch(t, hashes1, hashes2)
}

func TestChunkFoldsDuplicateCanonicalHashes(t *testing.T) {
	ix := buildTestIndex()
	cfg := DefaultConfig()
	c := New(cfg, ix, hash.Hash{}, hash.Hash{})

	dup := seqInput(9, 562, 50)
	c.Chunk([]Input{dup, dup, dup})
	closed := c.Close()

	require.Len(t, closed, 1)
	assert.Equal(t, 1, closed[0].SequenceCount)
}

func TestChunkClosesOnTargetSize(t *testing.T) {
	ix := buildTestIndex()
	cfg := DefaultConfig()
	cfg.TargetChunkSizeBytes = 100
	cfg.MaxChunkSizeBytes = 1000
	c := New(cfg, ix, hash.Hash{}, hash.Hash{})

	closed := c.Chunk([]Input{
		seqInput(1, 562, 60),
		seqInput(2, 562, 60),
	})
	require.Len(t, closed, 1, "the bucket should close as soon as it reaches the target size")
	assert.Equal(t, int64(120), closed[0].UncompressedSize)
	assert.Equal(t, 2, closed[0].SequenceCount)

	tail := c.Close()
	assert.Len(t, tail, 0, "nothing left open after the bucket closed mid-batch")
}

func TestChunkOversizedSequenceBecomesSingleton(t *testing.T) {
	ix := buildTestIndex()
	cfg := DefaultConfig()
	cfg.TargetChunkSizeBytes = 100
	cfg.MaxChunkSizeBytes = 200
	c := New(cfg, ix, hash.Hash{}, hash.Hash{})

	closed := c.Chunk([]Input{seqInput(1, 562, 500)})
	require.Len(t, closed, 1)
	assert.Equal(t, 1, closed[0].SequenceCount)
	assert.Equal(t, int64(500), closed[0].UncompressedSize)
}

func TestUnclassifiedTaxonAlwaysOwnBucket(t *testing.T) {
	ix := buildTestIndex()
	cfg := DefaultConfig()
	c := New(cfg, ix, hash.Hash{}, hash.Hash{})

	c.Chunk([]Input{
		seqInput(1, 0, 10),
		seqInput(2, 562, 10),
	})
	closed := c.Close()
	require.Len(t, closed, 2)
	for _, ch := range closed {
		if len(ch.TaxonIDs) == 1 && ch.TaxonIDs[0] == 0 {
			assert.Equal(t, 1, ch.SequenceCount)
			return
		}
	}
	t.Fatal("expected a chunk containing only the unclassified taxon")
}

func TestCloseSplitsTailMergeOnTaxonomicCoherence(t *testing.T) {
	ix := buildTestIndex()
	cfg := DefaultConfig()
	cfg.MinSequencesPerChunk = 5 // forces both small per-taxon buckets into the shared tail
	cfg.TaxonomicCoherence = 0.9
	c := New(cfg, ix, hash.Hash{}, hash.Hash{})

	c.Chunk([]Input{
		seqInput(1, 562, 10),
		seqInput(2, 1280, 10),
	})
	closed := c.Close()
	// The merged tail is 50/50 across two taxa, well under the 0.9
	// coherence floor, so it must split back out by taxon.
	require.Len(t, closed, 2)
	for _, ch := range closed {
		assert.Len(t, ch.TaxonIDs, 1)
	}
}

func TestCanonicalizeRewritesMergedTaxonBeforeBucketing(t *testing.T) {
	ix := taxonomy.New()
	ix.Load([]taxonomy.TaxonRecord{
		{TaxonID: 1, Parent: 1, Name: "root"},
		{TaxonID: 562, Parent: 1, Name: "Escherichia coli"},
	}, map[taxonomy.TaxonId]taxonomy.TaxonId{9999: 562}, nil)

	cfg := DefaultConfig()
	c := New(cfg, ix, hash.Hash{}, hash.Hash{})
	c.Chunk([]Input{
		seqInput(1, 9999, 10),
		seqInput(2, 562, 10),
	})
	closed := c.Close()
	require.Len(t, closed, 1)
	assert.Equal(t, []taxonomy.TaxonId{562}, closed[0].TaxonIDs)
}

func TestClosedAccumulatesAcrossBatches(t *testing.T) {
	ix := buildTestIndex()
	cfg := DefaultConfig()
	cfg.TargetChunkSizeBytes = 10
	cfg.MaxChunkSizeBytes = 20
	c := New(cfg, ix, hash.Hash{}, hash.Hash{})

	c.Chunk([]Input{seqInput(1, 562, 15)})
	c.Chunk([]Input{seqInput(2, 1280, 15)})
	c.Close()

	assert.Len(t, c.Closed(), 2)
}
