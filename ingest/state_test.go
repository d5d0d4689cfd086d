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

package ingest

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bfowle/talaria-sub008/hash"
	"github.com/bfowle/talaria-sub008/talmodel"
)

func openTestManager(t *testing.T) *StateManager {
	t.Helper()
	sm, err := OpenStateManager(filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	t.Cleanup(func() { sm.Close() })
	return sm
}

func TestCreateAssignsFreshOpID(t *testing.T) {
	sm := openTestManager(t)
	target := hash.Of([]byte("manifest"))
	version := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	op1, err := sm.Create("refseq", talmodel.OpChunk, target, version, 10, talmodel.SourceInfo{URI: "s3://bucket/a"})
	require.NoError(t, err)
	op2, err := sm.Create("refseq", talmodel.OpChunk, target, version, 10, talmodel.SourceInfo{URI: "s3://bucket/a"})
	require.NoError(t, err)

	assert.NotEqual(t, op1.State().OpID, op2.State().OpID)
}

func TestResumeFindsMatchingInFlightOperation(t *testing.T) {
	sm := openTestManager(t)
	target := hash.Of([]byte("manifest"))
	version := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	created, err := sm.Create("refseq", talmodel.OpChunk, target, version, 10, talmodel.SourceInfo{})
	require.NoError(t, err)
	require.NoError(t, sm.ReportBatch(created, []hash.Hash{hash.Of([]byte("chunk1")), hash.Of([]byte("chunk2"))}))

	resumed, found, err := sm.Resume("refseq", talmodel.OpChunk, target, version)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, created.State().OpID, resumed.State().OpID)
	assert.Equal(t, 2, resumed.CompletedCount())
	assert.True(t, resumed.IsCompleted(hash.Of([]byte("chunk1"))))
	assert.False(t, resumed.IsCompleted(hash.Of([]byte("chunk3"))))
}

func TestResumeIgnoresMismatchedIdentity(t *testing.T) {
	sm := openTestManager(t)
	target := hash.Of([]byte("manifest"))
	version := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	_, err := sm.Create("refseq", talmodel.OpChunk, target, version, 10, talmodel.SourceInfo{})
	require.NoError(t, err)

	_, found, err := sm.Resume("refseq", talmodel.OpVerify, target, version)
	require.NoError(t, err)
	assert.False(t, found)

	_, found, err = sm.Resume("other-db", talmodel.OpChunk, target, version)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestReportBatchIsCumulativeAndPersisted(t *testing.T) {
	sm := openTestManager(t)
	target := hash.Of([]byte("manifest"))
	version := time.Now().UTC()

	op, err := sm.Create("refseq", talmodel.OpChunk, target, version, 10, talmodel.SourceInfo{})
	require.NoError(t, err)
	require.NoError(t, sm.ReportBatch(op, []hash.Hash{hash.Of([]byte("a"))}))
	require.NoError(t, sm.ReportBatch(op, []hash.Hash{hash.Of([]byte("b"))}))

	resumed, found, err := sm.Resume("refseq", talmodel.OpChunk, target, version)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, 2, resumed.CompletedCount())
}

func TestDeleteRemovesState(t *testing.T) {
	sm := openTestManager(t)
	target := hash.Of([]byte("manifest"))
	version := time.Now().UTC()

	op, err := sm.Create("refseq", talmodel.OpChunk, target, version, 10, talmodel.SourceInfo{})
	require.NoError(t, err)
	require.NoError(t, sm.Delete(op.State().OpID))

	_, found, err := sm.Resume("refseq", talmodel.OpChunk, target, version)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestCleanupExpiredRemovesOnlyStaleStates(t *testing.T) {
	sm := openTestManager(t)
	target := hash.Of([]byte("manifest"))

	fresh, err := sm.Create("fresh-db", talmodel.OpChunk, target, time.Now().UTC(), 10, talmodel.SourceInfo{})
	require.NoError(t, err)
	stale, err := sm.Create("stale-db", talmodel.OpChunk, target, time.Now().UTC(), 10, talmodel.SourceInfo{})
	require.NoError(t, err)

	// Force the stale state's UpdatedAt far into the past.
	staleState := stale.State()
	staleState.UpdatedAt = time.Now().UTC().Add(-30 * 24 * time.Hour)
	require.NoError(t, sm.save(staleState))

	removed, err := sm.CleanupExpired(time.Now().UTC(), talmodel.ProcessingStateTTL)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, found, err := sm.Resume("fresh-db", talmodel.OpChunk, target, fresh.State().TargetManifestVersion)
	require.NoError(t, err)
	assert.True(t, found)

	_, found, err = sm.Resume("stale-db", talmodel.OpChunk, target, staleState.TargetManifestVersion)
	require.NoError(t, err)
	assert.False(t, found)
}
