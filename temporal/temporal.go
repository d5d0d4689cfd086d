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

// Package temporal maintains the two orthogonal timelines a database
// moves along - sequence-time (when a sequence became known) and
// taxonomy-time (what classification was in force) - and resolves
// (t_seq, t_tax) coordinates to manifest snapshots. The index is
// append-only: a historical manifest is never rewritten, so a snapshot at
// a coordinate in the past stays reproducible bit-for-bit as long as the
// underlying chunks remain in the store.
package temporal

import (
	"sort"
	"time"

	"github.com/bfowle/talaria-sub008/hash"
	"github.com/bfowle/talaria-sub008/talerr"
)

// point is one (timestamp -> manifest hash) entry on an axis.
type point struct {
	at   time.Time
	hash hash.Hash
}

// axis is an ordered, append-only timeline.
type axis struct {
	points []point // kept sorted by at, ascending
}

func (a *axis) append(at time.Time, h hash.Hash) {
	a.points = append(a.points, point{at: at, hash: h})
	sort.Slice(a.points, func(i, j int) bool { return a.points[i].at.Before(a.points[j].at) })
}

// at returns the latest point with at <= t, located by binary search over
// the axis's sorted points rather than a linear scan.
func (a *axis) at(t time.Time) (hash.Hash, bool) {
	idx := sort.Search(len(a.points), func(i int) bool { return a.points[i].at.After(t) })
	if idx == 0 {
		return hash.Hash{}, false
	}
	return a.points[idx-1].hash, true
}

func (a *axis) timestamps() []time.Time {
	ts := make([]time.Time, len(a.points))
	for i, p := range a.points {
		ts[i] = p.at
	}
	return ts
}

// Index is the bi-temporal coordinate store: two independent axes, one
// per timeline.
type Index struct {
	sequenceAxis axis
	taxonomyAxis axis
}

// New builds an empty Index.
func New() *Index {
	return &Index{}
}

// RegisterSequenceManifest records a new point on the sequence-time axis.
func (ix *Index) RegisterSequenceManifest(at time.Time, manifestHash hash.Hash) {
	ix.sequenceAxis.append(at, manifestHash)
}

// RegisterTaxonomyManifest records a new point on the taxonomy-time axis.
func (ix *Index) RegisterTaxonomyManifest(at time.Time, manifestHash hash.Hash) {
	ix.taxonomyAxis.append(at, manifestHash)
}

// Coordinate is a resolved (t_seq, t_tax) point: the manifest hash in
// force on each axis at that moment.
type Coordinate struct {
	TSeq, TTax             time.Time
	SequenceManifestHash   hash.Hash
	TaxonomyManifestHash   hash.Hash
}

// Snapshot is what QueryAt returns: the resolved coordinate plus the
// caller hands off to the manifest/chunk layers from here.
type Snapshot struct {
	Coordinate Coordinate
}

// QueryAt resolves (tSeq, tTax) to the latest sequence manifest with
// created_at <= tSeq and the latest taxonomy manifest with created_at <=
// tTax, independently.
func (ix *Index) QueryAt(tSeq, tTax time.Time) (Snapshot, error) {
	seqHash, ok := ix.sequenceAxis.at(tSeq)
	if !ok {
		return Snapshot{}, talerr.New(talerr.NotFound, "temporal", errNoSequenceManifest)
	}
	taxHash, ok := ix.taxonomyAxis.at(tTax)
	if !ok {
		return Snapshot{}, talerr.New(talerr.NotFound, "temporal", errNoTaxonomyManifest)
	}
	return Snapshot{Coordinate: Coordinate{
		TSeq: tSeq, TTax: tTax,
		SequenceManifestHash: seqHash,
		TaxonomyManifestHash: taxHash,
	}}, nil
}

// AvailableCoordinates returns every (t_seq, t_tax) pair actually
// registered - the cross product of the two axes' own timestamps, not
// every coordinate ever queried.
func (ix *Index) AvailableCoordinates() []Coordinate {
	var out []Coordinate
	for _, tSeq := range ix.sequenceAxis.timestamps() {
		for _, tTax := range ix.taxonomyAxis.timestamps() {
			seqHash, _ := ix.sequenceAxis.at(tSeq)
			taxHash, _ := ix.taxonomyAxis.at(tTax)
			out = append(out, Coordinate{TSeq: tSeq, TTax: tTax, SequenceManifestHash: seqHash, TaxonomyManifestHash: taxHash})
		}
	}
	return out
}
