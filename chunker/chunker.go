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

// Package chunker implements the streaming, taxonomy-aware partitioner
// that groups an unbounded sequence feed into size- and taxon-bounded
// Chunks with deterministic, bit-identical hashes given the same input,
// configuration, and taxonomy snapshot.
package chunker

import (
	"sort"

	"github.com/bfowle/talaria-sub008/container"
	"github.com/bfowle/talaria-sub008/hash"
	"github.com/bfowle/talaria-sub008/talmodel"
	"github.com/bfowle/talaria-sub008/taxonomy"
)

// Strategy is how a special taxon's sequences are bucketed.
type Strategy int

const (
	StrategyDefault Strategy = iota
	StrategyOwnChunks
	StrategyMergeWithSiblings
)

// SpecialTaxon overrides the default bucketing behavior for one taxon.
type SpecialTaxon struct {
	Taxon    taxonomy.TaxonId
	Strategy Strategy
}

// Config configures a Chunker run.
type Config struct {
	TargetChunkSizeBytes int64
	MaxChunkSizeBytes    int64
	MinSequencesPerChunk int
	TaxonomicCoherence   float64
	SpecialTaxa          []SpecialTaxon
}

// DefaultConfig matches the reference defaults: ~10 MiB target, a hard cap
// double that, no minimum batch size, and 80% coherence.
func DefaultConfig() Config {
	return Config{
		TargetChunkSizeBytes: 10 << 20,
		MaxChunkSizeBytes:    20 << 20,
		MinSequencesPerChunk: 1,
		TaxonomicCoherence:   0.8,
	}
}

// Input is one sequence handed to the chunker.
type Input struct {
	CanonicalHash hash.Hash
	TaxonID       taxonomy.TaxonId
	Length        int64
}

// bucketState accumulates sequences for one open chunk.
type bucketState struct {
	key       taxonomy.TaxonId
	refs      []talmodel.SequenceRef
	taxonSize map[taxonomy.TaxonId]int64
	size      int64
}

func newBucket(key taxonomy.TaxonId) *bucketState {
	return &bucketState{key: key, taxonSize: map[taxonomy.TaxonId]int64{}}
}

func (b *bucketState) add(in Input) {
	b.refs = append(b.refs, talmodel.SequenceRef{
		CanonicalHash: in.CanonicalHash,
		TaxonID:       in.TaxonID,
		Length:        int(in.Length),
	})
	b.taxonSize[in.TaxonID] += in.Length
	b.size += in.Length
}

// dominantFraction returns the largest single-taxon share of b's bytes.
func (b *bucketState) dominantFraction() float64 {
	if b.size == 0 {
		return 1
	}
	var max int64
	for _, sz := range b.taxonSize {
		if sz > max {
			max = sz
		}
	}
	return float64(max) / float64(b.size)
}

// Chunker runs one streaming chunking pass. It is not safe for concurrent
// use by multiple goroutines - the reference usage is one Chunker per
// ingest operation.
type Chunker struct {
	cfg     Config
	tax     *taxonomy.Index
	special map[taxonomy.TaxonId]Strategy

	buckets map[taxonomy.TaxonId]*bucketState
	closed  []talmodel.Chunk

	taxonomyVersionHash hash.Hash
	sequenceVersionHash hash.Hash
}

// New builds a Chunker. taxonomyVersionHash and sequenceVersionHash are
// stamped onto every chunk this run closes.
func New(cfg Config, tax *taxonomy.Index, taxonomyVersionHash, sequenceVersionHash hash.Hash) *Chunker {
	special := map[taxonomy.TaxonId]Strategy{}
	for _, s := range cfg.SpecialTaxa {
		special[s.Taxon] = s.Strategy
	}
	return &Chunker{
		cfg:                 cfg,
		tax:                 tax,
		special:             special,
		buckets:             map[taxonomy.TaxonId]*bucketState{},
		taxonomyVersionHash: taxonomyVersionHash,
		sequenceVersionHash: sequenceVersionHash,
	}
}

// Chunk canonicalizes and folds a batch of inputs, then feeds each into
// the chunker in stable (taxon_id, canonical_hash) order. Closed chunks
// accumulate in Chunker.Closed; call Close at end-of-stream to flush
// whatever remains open.
func (c *Chunker) Chunk(inputs []Input) []talmodel.Chunk {
	canon := canonicalizeAndFold(inputs)
	var justClosed []talmodel.Chunk
	for _, in := range canon {
		in.TaxonID = c.tax.Canonicalize(in.TaxonID)
		b := c.bucketFor(in)
		if in.Length >= c.cfg.MaxChunkSizeBytes {
			justClosed = append(justClosed, c.closeSingleton(in)...)
			continue
		}
		b.add(in)
		if b.size >= c.cfg.TargetChunkSizeBytes || b.size+in.Length > c.cfg.MaxChunkSizeBytes {
			delete(c.buckets, b.key)
			justClosed = append(justClosed, c.closeBucket(b)...)
		}
	}
	c.closed = append(c.closed, justClosed...)
	return justClosed
}

// closeSingleton handles a single oversized sequence: it becomes its own
// chunk regardless of MaxChunkSizeBytes.
func (c *Chunker) closeSingleton(in Input) []talmodel.Chunk {
	b := newBucket(in.TaxonID)
	b.add(in)
	return c.closeBucket(b)
}

// canonicalizeAndFold stable-sorts by (taxon_id, canonical_hash) and folds
// duplicate (taxon, hash) pairs into one entry.
func canonicalizeAndFold(inputs []Input) []Input {
	sorted := make([]Input, len(inputs))
	copy(sorted, inputs)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].TaxonID != sorted[j].TaxonID {
			return sorted[i].TaxonID < sorted[j].TaxonID
		}
		return sorted[i].CanonicalHash.Less(sorted[j].CanonicalHash)
	})
	out := sorted[:0:0]
	for i, in := range sorted {
		if i > 0 && in.TaxonID == sorted[i-1].TaxonID && in.CanonicalHash.Equals(sorted[i-1].CanonicalHash) {
			continue
		}
		out = append(out, in)
	}
	return out
}

// bucketFor resolves the open bucket a sequence belongs to: taxon 0 always
// gets its own bucket; an OwnChunks special taxon forces one too;
// everything else buckets under its taxon id directly (a single flat
// level is sufficient since coherence splitting happens on close, not on
// ancestor walk depth).
func (c *Chunker) bucketFor(in Input) *bucketState {
	key := in.TaxonID
	if key != 0 {
		if strat, ok := c.special[key]; ok && strat == StrategyOwnChunks {
			key = in.TaxonID
		}
	}
	b, ok := c.buckets[key]
	if !ok {
		b = newBucket(key)
		c.buckets[key] = b
	}
	return b
}

// closeBucket finalizes a bucket into one or more Chunks, splitting by
// taxon first if coherence would otherwise fall below TaxonomicCoherence.
func (c *Chunker) closeBucket(b *bucketState) []talmodel.Chunk {
	if b.dominantFraction() >= c.cfg.TaxonomicCoherence || len(b.taxonSize) <= 1 {
		return []talmodel.Chunk{c.buildChunk(b.refs)}
	}
	byTaxon := map[taxonomy.TaxonId][]talmodel.SequenceRef{}
	for _, ref := range b.refs {
		byTaxon[ref.TaxonID] = append(byTaxon[ref.TaxonID], ref)
	}
	taxa := make([]taxonomy.TaxonId, 0, len(byTaxon))
	for t := range byTaxon {
		taxa = append(taxa, t)
	}
	sort.Slice(taxa, func(i, j int) bool { return taxa[i] < taxa[j] })
	var out []talmodel.Chunk
	for _, t := range taxa {
		out = append(out, c.buildChunk(byTaxon[t]))
	}
	return out
}

// buildChunk computes the canonical body, hashes it, and returns the
// closed Chunk.
func (c *Chunker) buildChunk(refs []talmodel.SequenceRef) talmodel.Chunk {
	sorted := make([]talmodel.SequenceRef, len(refs))
	copy(sorted, refs)
	sort.Slice(sorted, func(i, j int) bool {
		hi, hj := hash.Hash(sorted[i].CanonicalHash), hash.Hash(sorted[j].CanonicalHash)
		return hi.Less(hj)
	})

	taxonSet := map[taxonomy.TaxonId]struct{}{}
	var size int64
	for _, r := range sorted {
		taxonSet[r.TaxonID] = struct{}{}
		size += int64(r.Length)
	}
	taxonIDs := make([]talmodel.TaxonId, 0, len(taxonSet))
	for t := range taxonSet {
		taxonIDs = append(taxonIDs, t)
	}
	sort.Slice(taxonIDs, func(i, j int) bool { return taxonIDs[i] < taxonIDs[j] })

	chunk := talmodel.Chunk{
		TaxonIDs:            taxonIDs,
		SequenceCount:       len(sorted),
		UncompressedSize:    size,
		TaxonomyVersionHash: c.taxonomyVersionHash,
		SequenceVersionHash: c.sequenceVersionHash,
		Classification:      talmodel.FullClassification(),
		SequenceRefs:        sorted,
	}
	body := chunk.Body()
	encoded, err := container.Encode(body)
	if err != nil {
		panic(err) // msgpack encoding of a plain struct never fails
	}
	chunk.Hash = container.Compute(encoded)
	return chunk
}

// Close flushes every bucket that has reached MinSequencesPerChunk.
// Smaller residues are merged into one cross-taxon tail bucket, which then
// goes through the same TaxonomicCoherence check as any other bucket via
// closeBucket - a merged tail dominated by one taxon stays a single chunk,
// a genuinely mixed one splits back out by taxon.
func (c *Chunker) Close() []talmodel.Chunk {
	keys := make([]taxonomy.TaxonId, 0, len(c.buckets))
	for k := range c.buckets {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	tail := newBucket(0)
	var justClosed []talmodel.Chunk
	for _, k := range keys {
		b := c.buckets[k]
		if len(b.refs) >= c.cfg.MinSequencesPerChunk {
			justClosed = append(justClosed, c.closeBucket(b)...)
		} else {
			for _, ref := range b.refs {
				tail.add(Input{CanonicalHash: hash.Hash(ref.CanonicalHash), TaxonID: ref.TaxonID, Length: int64(ref.Length)})
			}
		}
	}
	if len(tail.refs) > 0 {
		justClosed = append(justClosed, c.closeBucket(tail)...)
	}
	c.buckets = map[taxonomy.TaxonId]*bucketState{}
	c.closed = append(c.closed, justClosed...)
	return justClosed
}

// Closed returns every chunk this Chunker has closed so far, across all
// Chunk and Close calls.
func (c *Chunker) Closed() []talmodel.Chunk {
	return c.closed
}
