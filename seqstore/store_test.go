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

package seqstore

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bfowle/talaria-sub008/hash"
	"github.com/bfowle/talaria-sub008/talconfig"
	"github.com/bfowle/talaria-sub008/talmodel"
	"github.com/bfowle/talaria-sub008/talrun"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	cfg := talconfig.Default()
	rt := talrun.New(cfg)
	t.Cleanup(rt.Close)
	s, err := Open(rt, filepath.Join(t.TempDir(), "seq.bolt"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// TestCanonicalIdentityAcrossSources checks that storing the same sequence
// from three different sources dedups to one canonical record with three
// representations.
func TestCanonicalIdentityAcrossSources(t *testing.T) {
	s := newTestStore(t)
	seq := []byte("MKQHKAMIVALIVICITAVVAALVTRKDLCEVHIRTGQTEVAVFTAYESE")

	h1, err := s.StoreSequence(seq, "sp|P12345|FOO_HUMAN OX=9606", talmodel.UniProtSwissProt())
	require.NoError(t, err)
	h2, err := s.StoreSequence(seq, "NR_001 some nr header", talmodel.NCBINR())
	require.NoError(t, err)
	h3, err := s.StoreSequence(seq, "refseq header", talmodel.NCBIRefSeq())
	require.NoError(t, err)

	assert.Equal(t, h1, h2)
	assert.Equal(t, h1, h3)

	st, err := s.Stats()
	require.NoError(t, err)
	assert.Equal(t, 1, st.TotalCanonical)
	assert.Equal(t, 3, st.TotalRepresentations)

	canonical, err := s.LoadCanonical(h1)
	require.NoError(t, err)
	assert.Equal(t, seq, canonical.Bytes)

	reps, err := s.LoadRepresentations(h1)
	require.NoError(t, err)
	assert.Len(t, reps.Representations, 3)
}

func TestStoreSequenceIsIdempotentOnSourceAndHeader(t *testing.T) {
	s := newTestStore(t)
	seq := []byte("ACDEFGHIKLMNPQRSTVWY")
	header := "sp|Q1|BAR_HUMAN"

	_, err := s.StoreSequence(seq, header, talmodel.UniProtSwissProt())
	require.NoError(t, err)
	h, err := s.StoreSequence(seq, header, talmodel.UniProtSwissProt())
	require.NoError(t, err)

	reps, err := s.LoadRepresentations(h)
	require.NoError(t, err)
	assert.Len(t, reps.Representations, 1)
}

func TestExistsUsesBloomThenConfirms(t *testing.T) {
	s := newTestStore(t)
	seq := []byte("ACDEFGHIKLMNPQRSTVWY")
	h, err := s.StoreSequence(seq, "h", talmodel.Test())
	require.NoError(t, err)

	ok, err := s.Exists(h)
	require.NoError(t, err)
	assert.True(t, ok)

	absent := hash.Of([]byte("does-not-exist"))
	ok, err = s.Exists(absent)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestExistsBatch(t *testing.T) {
	s := newTestStore(t)
	hs := make([]hash.Hash, 5)
	for i := 0; i < 5; i++ {
		h, err := s.StoreSequence([]byte{byte(i), 1, 2, 3}, "h", talmodel.Test())
		require.NoError(t, err)
		hs[i] = h
	}
	results, err := s.ExistsBatch(hs)
	require.NoError(t, err)
	for _, r := range results {
		assert.True(t, r)
	}
}

func TestFindByAccessionAndTaxon(t *testing.T) {
	s := newTestStore(t)
	h, err := s.StoreSequence([]byte("ACDEFGHIKLMNPQRSTVWY"), "sp|P99999|BAZ_HUMAN OX=9606", talmodel.UniProtSwissProt())
	require.NoError(t, err)

	found, ok, err := s.FindByAccession("P99999")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, h, found)

	hs, err := s.FindByTaxon(talmodel.TaxonHuman)
	require.NoError(t, err)
	assert.Contains(t, hs, h)
}

func TestRebuildIndices(t *testing.T) {
	s := newTestStore(t)
	h, err := s.StoreSequence([]byte("ACDEFGHIKLMNPQRSTVWY"), "sp|P55555|Q_HUMAN OX=9606", talmodel.UniProtSwissProt())
	require.NoError(t, err)

	require.NoError(t, s.RebuildIndices())

	found, ok, err := s.FindByAccession("P55555")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, h, found)
}
