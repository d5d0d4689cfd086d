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

package manifest

import (
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/bfowle/talaria-sub008/talmodel"
	"github.com/bfowle/talaria-sub008/talrun"
)

var errNotFinal = errors.New("manifest: Finalize called with isFinal=false")

// Builder accumulates chunk metadata across an ingest run's batches and
// writes exactly one manifest version, on the batch marked final. Without
// this, a multi-batch chunking run would otherwise produce one manifest
// version per batch. Append/Finalize are reachable from concurrent ingest
// batches, so both are guarded by mu (manifest_builder_lock in the
// system-wide lock order).
type Builder struct {
	store           *Store
	db              string
	previousVersion *time.Time

	mu        sync.Mutex
	lockOrder *talrun.LockOrder
	chunks    []talmodel.ChunkMetadata
}

// NewBuilder starts a builder for db. previous, if non-nil, links the
// eventual manifest back to the prior version for PreviousVersion.
func NewBuilder(store *Store, db string, previous *time.Time) *Builder {
	return &Builder{store: store, db: db, previousVersion: previous, lockOrder: talrun.NewLockOrder(false)}
}

// EnableLockOrder wires the builder's manifest_builder_lock acquisitions
// into the given LockOrder, so holding it out of rank order (below
// dict_cache_lock or open_chunks_lock) panics instead of deadlocking
// silently.
func (b *Builder) EnableLockOrder(lo *talrun.LockOrder) {
	b.lockOrder = lo
}

// Append records the chunks produced by one batch. It never writes to
// disk by itself.
func (b *Builder) Append(chunks ...talmodel.ChunkMetadata) {
	b.mu.Lock()
	b.lockOrder.Acquire(talrun.RankManifestBuilder)
	defer func() {
		b.lockOrder.Release(talrun.RankManifestBuilder)
		b.mu.Unlock()
	}()
	b.chunks = append(b.chunks, chunks...)
}

// Finalize builds the manifest from every appended batch and writes it,
// satisfying the single-version-per-run invariant. versionTag stamps the
// new version. Called with isFinal=false (an intermediate batch) it
// returns an error and writes nothing; only the call with isFinal=true
// builds and saves a manifest.
func (b *Builder) Finalize(versionTag time.Time, isFinal bool) (talmodel.Manifest, error) {
	if !isFinal {
		return talmodel.Manifest{}, errNotFinal
	}
	b.mu.Lock()
	b.lockOrder.Acquire(talrun.RankManifestBuilder)
	chunks := append([]talmodel.ChunkMetadata(nil), b.chunks...)
	b.lockOrder.Release(talrun.RankManifestBuilder)
	b.mu.Unlock()

	m := talmodel.Manifest{
		VersionTag:      versionTag,
		CreatedAt:       versionTag,
		SourceDatabase:  b.db,
		ChunkIndex:      chunks,
		PreviousVersion: b.previousVersion,
	}
	m.SequenceRoot = [32]byte(SequenceRoot(m))
	m.TaxonomyRoot = [32]byte(TaxonomyRoot(m))
	if err := b.store.Save(b.db, m); err != nil {
		return talmodel.Manifest{}, err
	}
	return m, nil
}
