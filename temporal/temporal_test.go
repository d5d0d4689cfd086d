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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bfowle/talaria-sub008/hash"
	"github.com/bfowle/talaria-sub008/talmodel"
)

func day(n int) time.Time {
	return time.Date(2026, 1, n, 0, 0, 0, 0, time.UTC)
}

func TestQueryAtResolvesLatestAtOrBeforeEachAxis(t *testing.T) {
	ix := New()
	seq1, seq2 := hash.Of([]byte("seq1")), hash.Of([]byte("seq2"))
	tax1, tax2 := hash.Of([]byte("tax1")), hash.Of([]byte("tax2"))
	ix.RegisterSequenceManifest(day(1), seq1)
	ix.RegisterSequenceManifest(day(10), seq2)
	ix.RegisterTaxonomyManifest(day(1), tax1)
	ix.RegisterTaxonomyManifest(day(10), tax2)

	snap, err := ix.QueryAt(day(5), day(5))
	require.NoError(t, err)
	assert.Equal(t, seq1, snap.Coordinate.SequenceManifestHash)
	assert.Equal(t, tax1, snap.Coordinate.TaxonomyManifestHash)

	snap, err = ix.QueryAt(day(15), day(15))
	require.NoError(t, err)
	assert.Equal(t, seq2, snap.Coordinate.SequenceManifestHash)
	assert.Equal(t, tax2, snap.Coordinate.TaxonomyManifestHash)
}

func TestQueryAtBeforeAnyRegistrationErrors(t *testing.T) {
	ix := New()
	ix.RegisterSequenceManifest(day(10), hash.Of([]byte("seq")))
	ix.RegisterTaxonomyManifest(day(10), hash.Of([]byte("tax")))

	_, err := ix.QueryAt(day(1), day(1))
	assert.Error(t, err)
}

func TestAvailableCoordinatesIsCrossProductOfAxisPoints(t *testing.T) {
	ix := New()
	ix.RegisterSequenceManifest(day(1), hash.Of([]byte("s1")))
	ix.RegisterSequenceManifest(day(2), hash.Of([]byte("s2")))
	ix.RegisterTaxonomyManifest(day(1), hash.Of([]byte("t1")))

	coords := ix.AvailableCoordinates()
	assert.Len(t, coords, 2)
}

func TestIndependentAxesDoNotInterfere(t *testing.T) {
	ix := New()
	ix.RegisterSequenceManifest(day(1), hash.Of([]byte("seq-only")))
	// No taxonomy manifest registered at all.
	_, err := ix.QueryAt(day(5), day(5))
	assert.Error(t, err, "an unpopulated taxonomy axis must fail the query rather than silently resolve")
}

func TestDiffDetectsAddedRemovedAndReclassified(t *testing.T) {
	hAdded := hash.Of([]byte("added"))
	hRemoved := hash.Of([]byte("removed"))
	hReclassified := hash.Of([]byte("reclassified"))
	hUnchanged := hash.Of([]byte("unchanged"))

	before := map[hash.Hash][]talmodel.TaxonId{
		hRemoved:      {562},
		hReclassified: {562},
		hUnchanged:    {562},
	}
	after := map[hash.Hash][]talmodel.TaxonId{
		hAdded:        {1280},
		hReclassified: {1280},
		hUnchanged:    {562},
	}

	lookup := func(h hash.Hash) (map[hash.Hash][]talmodel.TaxonId, error) {
		if h == hash.Of([]byte("before")) {
			return before, nil
		}
		return after, nil
	}

	d, err := Diff(
		Coordinate{SequenceManifestHash: hash.Of([]byte("before"))},
		Coordinate{SequenceManifestHash: hash.Of([]byte("after"))},
		lookup,
	)
	require.NoError(t, err)
	assert.ElementsMatch(t, []hash.Hash{hAdded}, d.SequencesAdded)
	assert.ElementsMatch(t, []hash.Hash{hRemoved}, d.SequencesRemoved)
	assert.ElementsMatch(t, []hash.Hash{hReclassified}, d.TaxonomicReclassifications)
}

func TestRetroactiveReclassificationDoesNotMutateHistory(t *testing.T) {
	ix := New()
	originalTax := hash.Of([]byte("tax-v1"))
	originalSeq := hash.Of([]byte("seq-v1"))
	ix.RegisterTaxonomyManifest(day(1), originalTax)
	ix.RegisterSequenceManifest(day(1), originalSeq)

	fixedTax := hash.Of([]byte("tax-fixed"))
	synthesizedSeq := hash.Of([]byte("seq-synthesized"))
	ix.RetroactiveReclassification(day(5), fixedTax, day(5), synthesizedSeq)

	// The original coordinate is still reproducible exactly as it was.
	snap, err := ix.QueryAt(day(1), day(1))
	require.NoError(t, err)
	assert.Equal(t, originalSeq, snap.Coordinate.SequenceManifestHash)
	assert.Equal(t, originalTax, snap.Coordinate.TaxonomyManifestHash)

	// The new coordinate reflects the fix.
	snap, err = ix.QueryAt(day(5), day(5))
	require.NoError(t, err)
	assert.Equal(t, synthesizedSeq, snap.Coordinate.SequenceManifestHash)
	assert.Equal(t, fixedTax, snap.Coordinate.TaxonomyManifestHash)
}
