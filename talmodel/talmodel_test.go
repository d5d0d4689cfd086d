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

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSequenceRepresentationsAddIsIdempotent(t *testing.T) {
	sr := &SequenceRepresentations{}
	rep := SequenceRepresentation{Source: UniProtSwissProt(), OriginalHeader: "sp|P0A1|foo"}
	sr.Add(rep)
	sr.Add(rep)
	assert.Len(t, sr.Representations, 1)
}

func TestSequenceRepresentationsAddDistinctSources(t *testing.T) {
	sr := &SequenceRepresentations{}
	sr.Add(SequenceRepresentation{Source: UniProtSwissProt(), OriginalHeader: "h"})
	sr.Add(SequenceRepresentation{Source: NCBINR(), OriginalHeader: "h"})
	sr.Add(SequenceRepresentation{Source: NCBIRefSeq(), OriginalHeader: "h"})
	assert.Len(t, sr.Representations, 3)
	assert.True(t, sr.Has(UniProtSwissProt(), "h"))
	assert.True(t, sr.Has(NCBINR(), "h"))
	assert.False(t, sr.Has(UniProtTrEMBL(), "h"))
}

func TestDatabaseSourceStringCustom(t *testing.T) {
	s := Custom("my-local-db")
	assert.Equal(t, "Custom(my-local-db)", s.String())
}

func TestDeltaRecordApplyReconstructsChild(t *testing.T) {
	// reference = "AAAAAAAA", child = "AAATAAAA": a single substitution at
	// offset 3.
	reference := []byte("AAAAAAAA")
	rec := DeltaRecord{
		Ops: []DeltaOp{
			Copy(0, 3),
			Substitute(3, 'T'),
			Copy(4, 4),
		},
	}
	got := rec.Apply(reference)
	assert.Equal(t, "AAATAAAA", string(got))
}

func TestDeltaRecordApplyWithInsertAndDelete(t *testing.T) {
	reference := []byte("ABCDEF")
	rec := DeltaRecord{
		Ops: []DeltaOp{
			Copy(0, 2),   // AB
			Insert([]byte("XY")),
			Delete(2), // consume C, emit nothing
			Copy(3, 3),   // DEF
		},
	}
	got := rec.Apply(reference)
	assert.Equal(t, "ABXYDEF", string(got))
}

func TestChunkBodyExcludesHashAndCreatedAt(t *testing.T) {
	c := Chunk{
		Hash:          [32]byte{1},
		TaxonIDs:      []TaxonId{2},
		SequenceCount: 3,
	}
	body := c.Body()
	assert.Equal(t, []TaxonId{2}, body.TaxonIDs)
	assert.Equal(t, 3, body.SequenceCount)
}
