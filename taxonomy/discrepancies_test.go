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

package taxonomy

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/bfowle/talaria-sub008/hash"
)

func TestDetectDiscrepancies(t *testing.T) {
	ix := buildTestIndex()

	h1 := hash.Of([]byte("seq1"))
	h2 := hash.Of([]byte("seq2"))
	h3 := hash.Of([]byte("seq3"))
	h4 := hash.Of([]byte("seq4"))

	assignments := []Assignment{
		{SequenceHash: h1, DeclaredTaxon: 562},  // valid, no discrepancy
		{SequenceHash: h2, DeclaredTaxon: 0},    // unclassified, never flagged
		{SequenceHash: h3, DeclaredTaxon: 7777}, // deleted
		{SequenceHash: h4, DeclaredTaxon: 42424242}, // not in the tree at all
	}

	got := ix.DetectDiscrepancies(assignments)
	assert.Len(t, got, 2)

	byHash := map[hash.Hash]Discrepancy{}
	for _, d := range got {
		byHash[d.SequenceHash] = d
	}
	assert.Equal(t, DiscrepancyDeletedTaxon, byHash[h3].Kind)
	assert.Equal(t, DiscrepancyUnknownTaxon, byHash[h4].Kind)
}

func TestDetectDiscrepanciesUnresolvedMerge(t *testing.T) {
	ix := New()
	ix.Load([]TaxonRecord{
		{TaxonID: 1, Parent: 1, Name: "root", Rank: RankNoRank},
	}, map[TaxonId]TaxonId{100: 200}, nil) // 100 merges into 200, which has no record

	got := ix.DetectDiscrepancies([]Assignment{{SequenceHash: hash.Of([]byte("x")), DeclaredTaxon: 100}})
	assert.Len(t, got, 1)
	assert.Equal(t, DiscrepancyUnresolvedMerge, got[0].Kind)
}
