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

import "github.com/bfowle/talaria-sub008/hash"

// DiscrepancyKind classifies why a declared taxon assignment doesn't line
// up cleanly with the loaded taxonomy tree.
type DiscrepancyKind int

const (
	// DiscrepancyUnknownTaxon: the declared id doesn't appear anywhere in
	// the loaded taxonomy dump.
	DiscrepancyUnknownTaxon DiscrepancyKind = iota
	// DiscrepancyDeletedTaxon: the declared id is in delnodes.dmp.
	DiscrepancyDeletedTaxon
	// DiscrepancyUnresolvedMerge: the declared id was merged into another
	// id that itself has no record (a broken merge chain).
	DiscrepancyUnresolvedMerge
)

func (k DiscrepancyKind) String() string {
	switch k {
	case DiscrepancyUnknownTaxon:
		return "unknown_taxon"
	case DiscrepancyDeletedTaxon:
		return "deleted_taxon"
	case DiscrepancyUnresolvedMerge:
		return "unresolved_merge"
	default:
		return "unknown"
	}
}

// Discrepancy is one sequence whose declared taxon assignment doesn't
// resolve cleanly against the current taxonomy index.
type Discrepancy struct {
	SequenceHash  hash.Hash
	DeclaredTaxon TaxonId
	Kind          DiscrepancyKind
}

// Assignment is a sequence's declared taxon, as recorded at ingest time.
type Assignment struct {
	SequenceHash  hash.Hash
	DeclaredTaxon TaxonId
}

// DetectDiscrepancies walks assignments and reports every one whose
// declared taxon is unknown, deleted, or merges into a dead end. A
// sequence with TaxonUnclassified is never flagged: an absent
// classification isn't a discrepancy, a wrong one is.
func (ix *Index) DetectDiscrepancies(assignments []Assignment) []Discrepancy {
	var out []Discrepancy
	for _, a := range assignments {
		if a.DeclaredTaxon == 0 {
			continue
		}
		if ix.IsDeleted(a.DeclaredTaxon) {
			out = append(out, Discrepancy{a.SequenceHash, a.DeclaredTaxon, DiscrepancyDeletedTaxon})
			continue
		}
		if _, ok := ix.parent[a.DeclaredTaxon]; ok {
			continue
		}
		resolved := ix.Canonicalize(a.DeclaredTaxon)
		if _, ok := ix.parent[resolved]; ok {
			continue
		}
		if resolved != a.DeclaredTaxon {
			out = append(out, Discrepancy{a.SequenceHash, a.DeclaredTaxon, DiscrepancyUnresolvedMerge})
			continue
		}
		out = append(out, Discrepancy{a.SequenceHash, a.DeclaredTaxon, DiscrepancyUnknownTaxon})
	}
	return out
}
