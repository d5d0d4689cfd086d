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

package reduction

import (
	bolt "go.etcd.io/bbolt"

	"github.com/bfowle/talaria-sub008/hash"
	"github.com/bfowle/talaria-sub008/talerr"
)

var bucketProfiles = []byte("reduction_profiles")

// ProfileRegistry persists the name -> reduction-manifest-hash mapping
// referenced by ReductionManifest.ProfileName, so an alignment tool
// collaborator can look up "which reduction am I supposed to run against"
// by a human-chosen name instead of a raw hash.
type ProfileRegistry struct {
	db *bolt.DB
}

// OpenProfileRegistry opens (creating if absent) a registry at path.
func OpenProfileRegistry(path string) (*ProfileRegistry, error) {
	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return nil, talerr.New(talerr.IO, "reduction", err).WithPath(path)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketProfiles)
		return err
	})
	if err != nil {
		db.Close()
		return nil, talerr.New(talerr.IO, "reduction", err).WithPath(path)
	}
	return &ProfileRegistry{db: db}, nil
}

// Close releases the underlying database handle.
func (pr *ProfileRegistry) Close() error { return pr.db.Close() }

// Register records that name currently resolves to manifestHash,
// overwriting any previous registration.
func (pr *ProfileRegistry) Register(name string, manifestHash hash.Hash) error {
	return pr.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketProfiles).Put([]byte(name), manifestHash[:])
	})
}

// Resolve looks up the manifest hash currently registered under name.
func (pr *ProfileRegistry) Resolve(name string) (hash.Hash, bool, error) {
	var h hash.Hash
	var found bool
	err := pr.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketProfiles).Get([]byte(name))
		if v == nil {
			return nil
		}
		parsed, err := hash.New(v)
		if err != nil {
			return err
		}
		h, found = parsed, true
		return nil
	})
	return h, found, err
}

// Names returns every registered profile name.
func (pr *ProfileRegistry) Names() ([]string, error) {
	var names []string
	err := pr.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketProfiles).ForEach(func(k, _ []byte) error {
			names = append(names, string(k))
			return nil
		})
	})
	return names, err
}
