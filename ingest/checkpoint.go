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
	bolt "go.etcd.io/bbolt"

	"github.com/bfowle/talaria-sub008/container"
	"github.com/bfowle/talaria-sub008/talerr"
	"github.com/bfowle/talaria-sub008/talmodel"
)

var bucketCheckpoints = []byte("chunking_checkpoints")

// CheckpointStore persists ChunkingCheckpoint records, the chunker's
// lighter-weight sibling to ProcessingState: a byte offset and sequence
// count into the source file rather than a completed-chunks set, written
// every talmodel.CheckpointInterval sequences so a crash mid-file resumes
// close to where it left off instead of from the beginning.
type CheckpointStore struct {
	db *bolt.DB
}

// OpenCheckpointStore opens (creating if absent) a checkpoint store at path.
func OpenCheckpointStore(path string) (*CheckpointStore, error) {
	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return nil, talerr.New(talerr.IO, "ingest", err).WithPath(path)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketCheckpoints)
		return err
	})
	if err != nil {
		db.Close()
		return nil, talerr.New(talerr.IO, "ingest", err).WithPath(path)
	}
	return &CheckpointStore{db: db}, nil
}

// Close releases the underlying database handle.
func (cs *CheckpointStore) Close() error { return cs.db.Close() }

// Save writes cp, overwriting any checkpoint previously saved for the same
// database.
func (cs *CheckpointStore) Save(cp talmodel.ChunkingCheckpoint) error {
	body, err := container.Encode(cp)
	if err != nil {
		return talerr.New(talerr.Integrity, "ingest", err)
	}
	err = cs.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketCheckpoints).Put([]byte(cp.Database), body)
	})
	if err != nil {
		return talerr.New(talerr.IO, "ingest", err)
	}
	return nil
}

// Load retrieves the most recently saved checkpoint for database, if any.
func (cs *CheckpointStore) Load(database string) (talmodel.ChunkingCheckpoint, bool, error) {
	var cp talmodel.ChunkingCheckpoint
	var found bool
	err := cs.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketCheckpoints).Get([]byte(database))
		if v == nil {
			return nil
		}
		found = true
		return container.Decode(v, &cp)
	})
	if err != nil {
		return talmodel.ChunkingCheckpoint{}, false, talerr.New(talerr.IO, "ingest", err)
	}
	return cp, found, nil
}

// Delete removes database's checkpoint, called once ingest finishes
// cleanly so a later run starts fresh rather than resuming a finished job.
func (cs *CheckpointStore) Delete(database string) error {
	return cs.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketCheckpoints).Delete([]byte(database))
	})
}

// ShouldCheckpoint reports whether sequencesProcessed has crossed another
// multiple of talmodel.CheckpointInterval since the last persisted
// checkpoint, i.e. whether it's time to call Save again.
func ShouldCheckpoint(sequencesProcessed, lastCheckpointedAt int64) bool {
	return sequencesProcessed-lastCheckpointedAt >= talmodel.CheckpointInterval
}
