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

package chunkstore

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	bolt "go.etcd.io/bbolt"

	"github.com/bfowle/talaria-sub008/hash"
	"github.com/bfowle/talaria-sub008/talerr"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "chunks.db"), 4)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestPutGetRoundtrip(t *testing.T) {
	s := openTestStore(t)
	data := []byte("MKTAYIAKQRQISFVKSHFSRQLEERLGLIEVQAPILSRVGDGTQDNLSGAEKAVQVKVKALPDAQFEVVHSLAKWKRQTLGQHDFSAGEGLYTHMKALRPDEDRLSPLHSVYVDQWDWELVMGDGERQFSTLKSTVEAIWAGIKATEAAVSEEFGLAPFLPDQIHFVHSQELLSRYPDLDAKGRERAIAKDLGAVFLVGIGGKLSDGHRHDVRAPDYDDWSTPSELGHAGLNGDILVWNPVLEDAFELSSMGIRVDADTLKHQLALTGDEDRLELEWHQALLRGEMPQTIGGGIGQSRLTMLLLQLPHIGQVQAGVWPAAVRESVPSLL")
	h := hash.Of(data)

	require.NoError(t, s.Put(h, data, PutOptions{}))
	got, err := s.Get(h)
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestPutIsIdempotent(t *testing.T) {
	s := openTestStore(t)
	data := []byte("repeat me")
	h := hash.Of(data)

	require.NoError(t, s.Put(h, data, PutOptions{}))
	require.NoError(t, s.Put(h, data, PutOptions{}))

	has, err := s.Has(h)
	require.NoError(t, err)
	assert.True(t, has)
}

func TestGetMissingReturnsNotFound(t *testing.T) {
	s := openTestStore(t)
	_, err := s.Get(hash.Of([]byte("never stored")))
	require.Error(t, err)
	kind, ok := talerr.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, talerr.NotFound, kind)
}

func TestGetDetectsHashMismatchOnCorruption(t *testing.T) {
	s := openTestStore(t)
	data := []byte("original bytes")
	h := hash.Of(data)
	require.NoError(t, s.Put(h, data, PutOptions{}))

	// Simulate on-disk corruption: overwrite the stored bytes with the
	// compressed form of a different payload under the original key.
	corrupt := compressDefault([]byte("tampered bytes"))
	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketChunks).Put(h[:], corrupt)
	})
	require.NoError(t, err)

	_, getErr := s.Get(h)
	require.Error(t, getErr)
	kind, ok := talerr.KindOf(getErr)
	require.True(t, ok)
	assert.Equal(t, talerr.Integrity, kind)
}

func TestDeleteRemovesChunk(t *testing.T) {
	s := openTestStore(t)
	data := []byte("to be deleted")
	h := hash.Of(data)
	require.NoError(t, s.Put(h, data, PutOptions{}))
	require.NoError(t, s.Delete(h))

	has, err := s.Has(h)
	require.NoError(t, err)
	assert.False(t, has)
}

func TestIterVisitsEveryEntry(t *testing.T) {
	s := openTestStore(t)
	var hashes []hash.Hash
	for _, payload := range [][]byte{[]byte("a"), []byte("b"), []byte("c")} {
		h := hash.Of(payload)
		require.NoError(t, s.Put(h, payload, PutOptions{}))
		hashes = append(hashes, h)
	}

	var seen []hash.Hash
	require.NoError(t, s.Iter(func(e Entry) error {
		seen = append(seen, e.Hash)
		return nil
	}))
	assert.ElementsMatch(t, hashes, seen)
}

func TestStatsReflectsStoredBytes(t *testing.T) {
	s := openTestStore(t)
	data := []byte("some data to compress and measure")
	h := hash.Of(data)
	require.NoError(t, s.Put(h, data, PutOptions{}))

	st, err := s.Stats()
	require.NoError(t, err)
	assert.Equal(t, 1, st.Count)
	assert.Greater(t, st.BytesOnDisk, int64(0))
}

func TestGcRemovesUnreferencedChunks(t *testing.T) {
	s := openTestStore(t)
	kept := hash.Of([]byte("kept"))
	removed := hash.Of([]byte("removed"))
	require.NoError(t, s.Put(kept, []byte("kept"), PutOptions{}))
	require.NoError(t, s.Put(removed, []byte("removed"), PutOptions{}))

	result, err := s.Gc(map[hash.Hash]struct{}{kept: {}})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Removed)

	has, err := s.Has(kept)
	require.NoError(t, err)
	assert.True(t, has)
	has, err = s.Has(removed)
	require.NoError(t, err)
	assert.False(t, has)
}

func TestDictionaryModeTrainsAfterMinSamples(t *testing.T) {
	s := openTestStore(t)
	const taxon = uint32(562)

	var lastHash hash.Hash
	for i := 0; i < 8; i++ {
		data := []byte("MAGDGDIEQVLQKVVEALAGQQMAGRGAVRAAGDLTAEQLRAFQSELQRV" + string(rune('a'+i)))
		h := hash.Of(data)
		require.NoError(t, s.Put(h, data, PutOptions{Taxon: taxon, UseDictionary: true}))
		lastHash = h
	}

	got, err := s.Get(lastHash)
	require.NoError(t, err)
	assert.Contains(t, string(got), "MAGDGDIEQVLQKVVEALAGQQMAGRGAVRAAGDLTAEQLRAFQSELQRV")
}
