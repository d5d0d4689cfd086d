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

// Package taxonomy implements the in-memory taxonomy index :
// a parent/child tree loaded from NCBI-style taxonomy dump records, rank
// and name lookups, and the boolean filter language used to select
// taxonomic subsets.
package taxonomy

import (
	"strings"

	"github.com/bfowle/talaria-sub008/talmodel"
)

// TaxonId is talmodel.TaxonId, aliased so this package's signatures read
// naturally without forcing every caller to import talmodel too.
type TaxonId = talmodel.TaxonId

// Rank is talmodel.Rank.
type Rank = talmodel.Rank

// TaxonRecord is the tuple the (out-of-scope) NCBI taxonomy dump loader
// produces; Index.Load consumes a stream of these.
type TaxonRecord struct {
	TaxonID TaxonId
	Parent  TaxonId
	Name    string
	Rank    Rank
}

// wellKnownAliases are common shorthand names for frequently-filtered
// taxa; ResolveName falls back to these after failing an exact name
// match.
var wellKnownAliases = map[string]TaxonId{
	"bacteria": 2,
	"archaea":  2157,
	"eukaryota": 2759,
	"viruses":  10239,
	"human":    9606,
	"e. coli":  562,
	"e.coli":   562,
	"ecoli":    562,
}

// Index is the loaded, queryable taxonomy tree.
type Index struct {
	parent   map[TaxonId]TaxonId
	children map[TaxonId]map[TaxonId]struct{}
	names    map[TaxonId]string
	byName   map[string]TaxonId
	rank     map[TaxonId]Rank
	merged   map[TaxonId]TaxonId
	deleted  map[TaxonId]struct{}
}

// New builds an empty Index; use Load to populate it from dump records.
func New() *Index {
	return &Index{
		parent:   map[TaxonId]TaxonId{},
		children: map[TaxonId]map[TaxonId]struct{}{},
		names:    map[TaxonId]string{},
		byName:   map[string]TaxonId{},
		rank:     map[TaxonId]Rank{},
		merged:   map[TaxonId]TaxonId{},
		deleted:  map[TaxonId]struct{}{},
	}
}

// Load populates the index from parsed taxonomy dump records. The root
// taxon maps to itself. merged and deleted record the NCBI merged.dmp and
// delnodes.dmp tables respectively.
func (ix *Index) Load(records []TaxonRecord, merged map[TaxonId]TaxonId, deleted []TaxonId) {
	for _, r := range records {
		ix.parent[r.TaxonID] = r.Parent
		if ix.children[r.Parent] == nil {
			ix.children[r.Parent] = map[TaxonId]struct{}{}
		}
		ix.children[r.Parent][r.TaxonID] = struct{}{}
		ix.names[r.TaxonID] = r.Name
		ix.byName[strings.ToLower(r.Name)] = r.TaxonID
		ix.rank[r.TaxonID] = r.Rank
	}
	for old, new := range merged {
		ix.merged[old] = new
	}
	for _, d := range deleted {
		ix.deleted[d] = struct{}{}
	}
}

// Lineage returns the path from root to t, inclusive, root first.
func (ix *Index) Lineage(t TaxonId) []TaxonId {
	t = ix.Canonicalize(t)
	var path []TaxonId
	seen := map[TaxonId]bool{}
	for {
		path = append([]TaxonId{t}, path...)
		if seen[t] {
			break // cycle guard; well-formed dumps never hit this
		}
		seen[t] = true
		parent, ok := ix.parent[t]
		if !ok || parent == t {
			break
		}
		t = parent
	}
	return path
}

// IsAncestor reports whether a is an ancestor of (or equal to) d.
func (ix *Index) IsAncestor(a, d TaxonId) bool {
	a = ix.Canonicalize(a)
	d = ix.Canonicalize(d)
	for {
		if a == d {
			return true
		}
		parent, ok := ix.parent[d]
		if !ok || parent == d {
			return false
		}
		d = parent
	}
}

// Descendants returns every taxon in the subtree rooted at t, including t
// itself, via depth-first traversal of the children map.
func (ix *Index) Descendants(t TaxonId) []TaxonId {
	t = ix.Canonicalize(t)
	var out []TaxonId
	var walk func(TaxonId)
	walk = func(cur TaxonId) {
		out = append(out, cur)
		for child := range ix.children[cur] {
			if child != cur { // the root is recorded as its own child
				walk(child)
			}
		}
	}
	walk(t)
	return out
}

// ResolveName looks up a taxon by case-insensitive name, falling back to
// the well-known aliases table.
func (ix *Index) ResolveName(s string) (TaxonId, bool) {
	key := strings.ToLower(strings.TrimSpace(s))
	if t, ok := ix.byName[key]; ok {
		return t, true
	}
	if t, ok := wellKnownAliases[key]; ok {
		return t, true
	}
	return 0, false
}

// Canonicalize follows the merged table until it reaches a non-merged
// (current) taxon id.
func (ix *Index) Canonicalize(t TaxonId) TaxonId {
	seen := map[TaxonId]bool{}
	for {
		newT, ok := ix.merged[t]
		if !ok || seen[t] {
			return t
		}
		seen[t] = true
		t = newT
	}
}

// Name returns the taxon's name, if known.
func (ix *Index) Name(t TaxonId) (string, bool) {
	n, ok := ix.names[t]
	return n, ok
}

// RankOf returns the taxon's rank, if known.
func (ix *Index) RankOf(t TaxonId) (Rank, bool) {
	r, ok := ix.rank[t]
	return r, ok
}

// IsDeleted reports whether t appears in delnodes.
func (ix *Index) IsDeleted(t TaxonId) bool {
	_, ok := ix.deleted[t]
	return ok
}
