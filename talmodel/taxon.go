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

// Package talmodel holds the shared, content-addressed data model:
// sequences, chunks, manifests, bi-temporal coordinates and processing
// state. Every other package operates on these types rather than defining
// its own.
package talmodel

// TaxonId is an NCBI-style taxonomy identifier. 0 means unclassified; 1 is
// the root of the tree.
type TaxonId uint32

// Well-known taxon ids used for filter parsing; they carry no
// special storage semantics.
const (
	TaxonUnclassified TaxonId = 0
	TaxonRoot         TaxonId = 1
	TaxonBacteria     TaxonId = 2
	TaxonArchaea      TaxonId = 2157
	TaxonEukaryota    TaxonId = 2759
	TaxonViruses      TaxonId = 10239
	TaxonHuman        TaxonId = 9606
	TaxonEcoli        TaxonId = 562
)

// SequenceType classifies the residue alphabet of a canonical sequence.
type SequenceType int

const (
	SequenceUnknown SequenceType = iota
	SequenceDNA
	SequenceRNA
	SequenceNucleotide
	SequenceProtein
)

func (t SequenceType) String() string {
	switch t {
	case SequenceDNA:
		return "DNA"
	case SequenceRNA:
		return "RNA"
	case SequenceNucleotide:
		return "Nucleotide"
	case SequenceProtein:
		return "Protein"
	default:
		return "Unknown"
	}
}

// Rank is an NCBI-style taxonomic rank.
type Rank string

const (
	RankSuperkingdom Rank = "superkingdom"
	RankPhylum       Rank = "phylum"
	RankClass        Rank = "class"
	RankOrder        Rank = "order"
	RankFamily       Rank = "family"
	RankGenus        Rank = "genus"
	RankSpecies      Rank = "species"
	RankNoRank       Rank = "no rank"
)
