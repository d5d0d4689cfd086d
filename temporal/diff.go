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

package temporal

import (
	"time"

	"github.com/pkg/errors"

	"github.com/bfowle/talaria-sub008/hash"
	"github.com/bfowle/talaria-sub008/talmodel"
)

var (
	errNoSequenceManifest = errors.New("temporal: no sequence manifest registered at or before the requested time")
	errNoTaxonomyManifest = errors.New("temporal: no taxonomy manifest registered at or before the requested time")
)

// ChunkLookup resolves a manifest hash to the taxon ids its chunks carry,
// keyed by chunk hash. Callers (the manifest/chunk-store layers) supply
// this so the temporal index itself never needs direct storage access.
type ChunkLookup func(manifestHash hash.Hash) (map[hash.Hash][]talmodel.TaxonId, error)

// CoordinateDiff reports what changed between two coordinates: which
// chunk hashes appeared, which disappeared, and which chunks kept the
// same hash but now carry a different taxon_ids set (a reclassification).
type CoordinateDiff struct {
	SequencesAdded            []hash.Hash
	SequencesRemoved          []hash.Hash
	TaxonomicReclassifications []hash.Hash
}

// Diff compares two coordinates' resolved manifests via lookup.
func Diff(c1, c2 Coordinate, lookup ChunkLookup) (CoordinateDiff, error) {
	before, err := lookup(c1.SequenceManifestHash)
	if err != nil {
		return CoordinateDiff{}, err
	}
	after, err := lookup(c2.SequenceManifestHash)
	if err != nil {
		return CoordinateDiff{}, err
	}

	var d CoordinateDiff
	for h, taxa := range after {
		prevTaxa, existed := before[h]
		if !existed {
			d.SequencesAdded = append(d.SequencesAdded, h)
			continue
		}
		if !taxonSetsEqual(prevTaxa, taxa) {
			d.TaxonomicReclassifications = append(d.TaxonomicReclassifications, h)
		}
	}
	for h := range before {
		if _, ok := after[h]; !ok {
			d.SequencesRemoved = append(d.SequencesRemoved, h)
		}
	}
	return d, nil
}

func taxonSetsEqual(a, b []talmodel.TaxonId) bool {
	if len(a) != len(b) {
		return false
	}
	set := map[talmodel.TaxonId]struct{}{}
	for _, t := range a {
		set[t] = struct{}{}
	}
	for _, t := range b {
		if _, ok := set[t]; !ok {
			return false
		}
	}
	return true
}

// RetroactiveReclassification registers a new taxonomy manifest at tFix
// and a new sequence-time point synthesized from the union of every
// source sequence manifest already known, WITHOUT mutating any existing
// manifest. The caller supplies synthesizedSequenceManifestHash (computed
// by the manifest layer from that union) since the temporal index itself
// does not merge chunk indexes.
func (ix *Index) RetroactiveReclassification(tFix time.Time, newTaxonomyManifestHash hash.Hash, synthesizedAt time.Time, synthesizedSequenceManifestHash hash.Hash) {
	ix.RegisterTaxonomyManifest(tFix, newTaxonomyManifestHash)
	ix.RegisterSequenceManifest(synthesizedAt, synthesizedSequenceManifestHash)
}
