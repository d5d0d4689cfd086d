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

package reduction

import (
	"sort"

	"github.com/bfowle/talaria-sub008/container"
	"github.com/bfowle/talaria-sub008/hash"
	"github.com/bfowle/talaria-sub008/talerr"
	"github.com/bfowle/talaria-sub008/talmodel"
)

// Stats summarizes one reduction run.
type Stats struct {
	OriginalSize      int64
	ReducedSize       int64
	Ratio             float64
	ReferenceCount    int
	ChildCount        int
	DiscardedCount    int
	AvgDeltasPerChild float64
}

// ReductionManifest is the content-addressed output of a reduction run: a
// set of reference chunk hashes, a child->delta index, and the stats that
// justify (or rule out) using this profile for an alignment tool.
type ReductionManifest struct {
	ProfileName          string                  `msgpack:"profile_name"`
	SourceManifestHash   hash.Hash               `msgpack:"source_manifest_hash"`
	SourceDatabase       string                  `msgpack:"source_database"`
	Parameters           Config                  `msgpack:"parameters"`
	ReferenceChunkHashes []hash.Hash             `msgpack:"reference_chunk_hashes"`
	DeltaChunkHashes     []hash.Hash             `msgpack:"delta_chunk_hashes"`
	Deltas               []talmodel.DeltaRecord  `msgpack:"deltas"`
	ChildToDelta         map[hash.Hash]hash.Hash `msgpack:"child_to_delta"`
	Stats                Stats                   `msgpack:"stats"`
}

// Hash computes this manifest's own content address, since it is itself
// stored as a content-addressed chunk.
func (rm ReductionManifest) Hash() (hash.Hash, error) {
	encoded, err := container.Encode(rm)
	if err != nil {
		return hash.Hash{}, talerr.New(talerr.Integrity, "reduction", err)
	}
	return container.Compute(encoded), nil
}

// Run selects references, computes deltas for every child against its
// best-matching reference (the reference with the highest k-mer
// similarity), and assembles the ReductionManifest.
func Run(profileName string, sourceManifestHash hash.Hash, sourceDatabase string, seqs []Sequence, selCfg Config, alignCfg AlignConfig) (ReductionManifest, error) {
	sel := Select(seqs, selCfg)

	refByHash := map[hash.Hash][]byte{}
	refSigs := make([]kmerSignature, len(sel.References))
	for i, r := range sel.References {
		refByHash[r.Hash] = r.Bytes
		refSigs[i] = kmerSignatureOf(r.Bytes)
	}

	var deltas []talmodel.DeltaRecord
	childToDelta := map[hash.Hash]hash.Hash{}
	var originalSize, reducedSize int64
	for _, r := range sel.References {
		originalSize += int64(len(r.Bytes))
		reducedSize += int64(len(r.Bytes))
	}

	var totalOps int
	for _, c := range sel.Children {
		originalSize += int64(len(c.Bytes))
		best := bestReference(c, sel.References, refSigs)
		ops := Delta(refByHash[best], c.Bytes, alignCfg)
		rec := talmodel.DeltaRecord{ReferenceID: [32]byte(best), ChildID: [32]byte(c.Hash), Ops: ops}
		deltas = append(deltas, rec)

		encoded, err := container.Encode(rec)
		if err != nil {
			return ReductionManifest{}, talerr.New(talerr.Integrity, "reduction", err).WithHash(c.Hash)
		}
		deltaHash := container.Compute(encoded)
		childToDelta[c.Hash] = deltaHash
		reducedSize += int64(len(encoded))
		totalOps += len(ops)
	}

	refHashes := make([]hash.Hash, len(sel.References))
	for i, r := range sel.References {
		refHashes[i] = r.Hash
	}
	sort.Slice(refHashes, func(i, j int) bool { return refHashes[i].Less(refHashes[j]) })

	deltaHashes := make([]hash.Hash, 0, len(childToDelta))
	for _, h := range childToDelta {
		deltaHashes = append(deltaHashes, h)
	}
	sort.Slice(deltaHashes, func(i, j int) bool { return deltaHashes[i].Less(deltaHashes[j]) })

	stats := Stats{
		OriginalSize:   originalSize,
		ReducedSize:    reducedSize,
		ReferenceCount: len(sel.References),
		ChildCount:     len(sel.Children),
		DiscardedCount: len(sel.Discarded),
	}
	if originalSize > 0 {
		stats.Ratio = float64(stats.ReducedSize) / float64(stats.OriginalSize)
	}
	if len(sel.Children) > 0 {
		stats.AvgDeltasPerChild = float64(totalOps) / float64(len(sel.Children))
	}

	return ReductionManifest{
		ProfileName:          profileName,
		SourceManifestHash:   sourceManifestHash,
		SourceDatabase:       sourceDatabase,
		Parameters:           selCfg,
		ReferenceChunkHashes: refHashes,
		DeltaChunkHashes:     deltaHashes,
		Deltas:               deltas,
		ChildToDelta:         childToDelta,
		Stats:                stats,
	}, nil
}

func bestReference(child Sequence, refs []Sequence, refSigs []kmerSignature) hash.Hash {
	childSig := kmerSignatureOf(child.Bytes)
	bestIdx := 0
	bestScore := -1.0
	for i, sig := range refSigs {
		s := jaccard(childSig, sig)
		if s > bestScore || (s == bestScore && refs[i].Hash.Less(refs[bestIdx].Hash)) {
			bestScore = s
			bestIdx = i
		}
	}
	return refs[bestIdx].Hash
}

// Reconstruct recovers child's original bytes from rm, verifying the
// result hashes to originalCanonicalHash as the final integrity check.
func Reconstruct(rm ReductionManifest, originalCanonicalHash hash.Hash, referenceBytes map[hash.Hash][]byte) ([]byte, error) {
	var rec talmodel.DeltaRecord
	found := false
	for _, d := range rm.Deltas {
		if hash.Hash(d.ChildID).Equals(originalCanonicalHash) {
			rec = d
			found = true
			break
		}
	}
	if !found {
		return nil, talerr.New(talerr.NotFound, "reduction", errNoDeltaRecord).WithHash(originalCanonicalHash)
	}

	ref, ok := referenceBytes[hash.Hash(rec.ReferenceID)]
	if !ok {
		return nil, talerr.New(talerr.Integrity, "reduction", errMissingReference).WithHash(hash.Hash(rec.ReferenceID))
	}

	reconstructed := rec.Apply(ref)
	if got := hash.Of(reconstructed); !got.Equals(originalCanonicalHash) {
		return nil, talerr.New(talerr.Integrity, "reduction", errReconstructionMismatch).WithHash(originalCanonicalHash)
	}
	return reconstructed, nil
}
