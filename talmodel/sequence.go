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

package talmodel

import "time"

// CanonicalSequence is the one record per distinct biological sequence,
// keyed by SHA-256 of Bytes alone - headers, accessions and taxonomy are
// never part of the hash. The record is write-once except for
// LastSeen.
type CanonicalSequence struct {
	Hash         [32]byte     `msgpack:"hash"`
	Bytes        []byte       `msgpack:"bytes"`
	Length       int          `msgpack:"length"`
	SequenceType SequenceType `msgpack:"sequence_type"`
	// Checksum is a cheap, non-cryptographic fingerprint (xxhash) kept
	// purely as a fast pre-check; SHA-256 in Hash remains the only
	// dedup-relevant identity (spec Non-goals).
	Checksum  uint64    `msgpack:"checksum"`
	FirstSeen time.Time `msgpack:"first_seen_ts"`
	LastSeen  time.Time `msgpack:"last_seen_ts"`
}

// SequenceRepresentation is one source database's view of a canonical
// sequence: its header, accessions, and declared (possibly disagreeing)
// taxon.
type SequenceRepresentation struct {
	Source          DatabaseSource    `msgpack:"source"`
	OriginalHeader  string            `msgpack:"original_header"`
	Accessions      []string          `msgpack:"accessions"`
	Description     *string           `msgpack:"description,omitempty"`
	DeclaredTaxonID *TaxonId          `msgpack:"declared_taxon_id,omitempty"`
	Metadata        map[string]string `msgpack:"metadata_map,omitempty"`
	LastSeen        time.Time         `msgpack:"last_seen_ts"`
}

// IdempotencyKey returns the (source, header) pair that adding a
// representation is idempotent on.
func (r SequenceRepresentation) IdempotencyKey() string {
	return r.Source.String() + "\x00" + r.OriginalHeader
}

// SequenceRepresentations bundles every representation recorded so far for
// one canonical sequence - the dividend of cross-database deduplication.
type SequenceRepresentations struct {
	CanonicalHash   [32]byte                 `msgpack:"canonical_hash"`
	Representations []SequenceRepresentation `msgpack:"representations"`
}

// Add appends rep unless a representation with the same IdempotencyKey is
// already present, in which case it replaces it in place - this is what
// makes storing a sequence idempotent on (source, header).
func (sr *SequenceRepresentations) Add(rep SequenceRepresentation) {
	key := rep.IdempotencyKey()
	for i := range sr.Representations {
		if sr.Representations[i].IdempotencyKey() == key {
			sr.Representations[i] = rep
			return
		}
	}
	sr.Representations = append(sr.Representations, rep)
}

// Has reports whether a representation with the given (source, header) is
// already recorded.
func (sr *SequenceRepresentations) Has(source DatabaseSource, header string) bool {
	key := source.String() + "\x00" + header
	for i := range sr.Representations {
		if sr.Representations[i].IdempotencyKey() == key {
			return true
		}
	}
	return false
}
