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

// Package ingest tracks long-running ingest operations so they can resume
// after a crash instead of restarting from scratch: a ProcessingState is
// created when an operation begins, updated after every completed batch,
// and deleted on success. A StateManager restart scans for states matching
// the operation's identity (database, kind, target manifest) to decide
// whether to resume or start fresh.
package ingest

import (
	"time"

	"github.com/google/btree"
	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"

	"github.com/bfowle/talaria-sub008/container"
	"github.com/bfowle/talaria-sub008/hash"
	"github.com/bfowle/talaria-sub008/talerr"
	"github.com/bfowle/talaria-sub008/talmodel"
)

var bucketStates = []byte("processing_states")

// StateManager persists ProcessingState records across restarts.
type StateManager struct {
	db *bolt.DB
}

// OpenStateManager opens (creating if absent) a state manager at path.
func OpenStateManager(path string) (*StateManager, error) {
	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return nil, talerr.New(talerr.IO, "ingest", err).WithPath(path)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketStates)
		return err
	})
	if err != nil {
		db.Close()
		return nil, talerr.New(talerr.IO, "ingest", err).WithPath(path)
	}
	return &StateManager{db: db}, nil
}

// Close releases the underlying database handle.
func (sm *StateManager) Close() error { return sm.db.Close() }

// Operation wraps a ProcessingState with an in-memory completed-chunks
// index, rebuilt from the persisted CompletedChunks slice on resume so
// membership checks during a run don't rescan the slice linearly.
type Operation struct {
	state     talmodel.ProcessingState
	completed *btree.BTreeG[string]
}

func newOperation(state talmodel.ProcessingState) *Operation {
	tr := btree.NewOrderedG[string](32)
	for _, h := range state.CompletedChunks {
		tr.ReplaceOrInsert(hash.Hash(h).String())
	}
	return &Operation{state: state, completed: tr}
}

// State returns the operation's current persisted-shape state.
func (op *Operation) State() talmodel.ProcessingState { return op.state }

// IsCompleted reports whether h was already reported done in a prior batch.
func (op *Operation) IsCompleted(h hash.Hash) bool {
	return op.completed.Has(h.String())
}

// CompletedCount returns how many chunks have been reported done so far.
func (op *Operation) CompletedCount() int { return op.completed.Len() }

// Create starts a new operation with a fresh op_id and persists its
// initial state.
func (sm *StateManager) Create(database string, kind talmodel.OperationKind, targetManifestHash hash.Hash, targetManifestVersion time.Time, totalChunks int, src talmodel.SourceInfo) (*Operation, error) {
	now := time.Now().UTC()
	state := talmodel.ProcessingState{
		OpID:                  uuid.NewString(),
		OpKind:                kind,
		Database:              database,
		TargetManifestHash:    [32]byte(targetManifestHash),
		TargetManifestVersion: targetManifestVersion,
		TotalChunks:           totalChunks,
		StartedAt:             now,
		UpdatedAt:             now,
		SourceInfo:            src,
	}
	if err := sm.save(state); err != nil {
		return nil, err
	}
	return newOperation(state), nil
}

// Resume looks for an existing in-flight state matching the operation's
// identity (database, op_kind, target_manifest_hash, target_manifest_version)
// and returns it if found, so the caller can skip chunks already reported
// done instead of restarting the operation from scratch.
func (sm *StateManager) Resume(database string, kind talmodel.OperationKind, targetManifestHash hash.Hash, targetManifestVersion time.Time) (*Operation, bool, error) {
	var found *talmodel.ProcessingState
	err := sm.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketStates).ForEach(func(_, v []byte) error {
			var st talmodel.ProcessingState
			if err := container.Decode(v, &st); err != nil {
				return err
			}
			if st.Database == database && st.OpKind == kind &&
				hash.Hash(st.TargetManifestHash) == targetManifestHash &&
				st.TargetManifestVersion.Equal(targetManifestVersion) {
				found = &st
			}
			return nil
		})
	})
	if err != nil {
		return nil, false, talerr.New(talerr.IO, "ingest", err)
	}
	if found == nil {
		return nil, false, nil
	}
	return newOperation(*found), true, nil
}

// ReportBatch records a batch of newly completed chunk hashes against op
// and persists the updated state immediately, so a crash loses at most the
// in-flight batch.
func (sm *StateManager) ReportBatch(op *Operation, completed []hash.Hash) error {
	for _, h := range completed {
		op.completed.ReplaceOrInsert(h.String())
	}
	op.state.CompletedChunks = make([][32]byte, 0, op.completed.Len())
	op.completed.Ascend(func(s string) bool {
		h, err := hash.ParseSafe(s)
		if err != nil {
			return true
		}
		op.state.CompletedChunks = append(op.state.CompletedChunks, [32]byte(h))
		return true
	})
	op.state.UpdatedAt = time.Now().UTC()
	return sm.save(op.state)
}

// Delete removes a completed operation's state. Call this only after the
// operation has fully succeeded.
func (sm *StateManager) Delete(opID string) error {
	return sm.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketStates).Delete([]byte(opID))
	})
}

// CleanupExpired deletes every state whose UpdatedAt is older than ttl as
// of now, returning how many were removed. Call this once on startup
// before resuming any operation, so an abandoned run from weeks ago
// doesn't linger forever.
func (sm *StateManager) CleanupExpired(now time.Time, ttl time.Duration) (int, error) {
	var stale [][]byte
	err := sm.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketStates).ForEach(func(k, v []byte) error {
			var st talmodel.ProcessingState
			if err := container.Decode(v, &st); err != nil {
				return err
			}
			if now.Sub(st.UpdatedAt) > ttl {
				key := append([]byte(nil), k...)
				stale = append(stale, key)
			}
			return nil
		})
	})
	if err != nil {
		return 0, talerr.New(talerr.IO, "ingest", err)
	}
	if len(stale) == 0 {
		return 0, nil
	}
	err = sm.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketStates)
		for _, k := range stale {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, talerr.New(talerr.IO, "ingest", err)
	}
	return len(stale), nil
}

func (sm *StateManager) save(state talmodel.ProcessingState) error {
	body, err := container.Encode(state)
	if err != nil {
		return talerr.New(talerr.Integrity, "ingest", err)
	}
	err = sm.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketStates).Put([]byte(state.OpID), body)
	})
	if err != nil {
		return talerr.New(talerr.IO, "ingest", err)
	}
	return nil
}
