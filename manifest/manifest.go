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

// Package manifest persists per-database manifests - the chunk index plus
// its aggregate Merkle roots - under a versioned on-disk path, and
// maintains the "current" pointer that always resolves to the latest
// successfully written version.
package manifest

import (
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/bfowle/talaria-sub008/container"
	"github.com/bfowle/talaria-sub008/hash"
	"github.com/bfowle/talaria-sub008/talerr"
	"github.com/bfowle/talaria-sub008/talmodel"
)

// Store persists manifests for one database under root, one file per
// version plus a "current" pointer file.
type Store struct {
	root string
}

// Open returns a Store rooted at dir, creating it if absent.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, talerr.New(talerr.IO, "manifest", err).WithPath(dir)
	}
	return &Store{root: dir}, nil
}

func (s *Store) dbDir(db string) string {
	return filepath.Join(s.root, db)
}

func (s *Store) versionPath(db string, version time.Time) string {
	return filepath.Join(s.dbDir(db), version.UTC().Format("20060102T150405.000000000Z")+".manifest")
}

func (s *Store) currentPointerPath(db string) string {
	return filepath.Join(s.dbDir(db), "current")
}

// Load reads the manifest for db at version.
func (s *Store) Load(db string, version time.Time) (talmodel.Manifest, error) {
	return s.loadPath(s.versionPath(db, version))
}

// LoadCurrent reads whichever version the "current" pointer names.
func (s *Store) LoadCurrent(db string) (talmodel.Manifest, error) {
	ptr, err := os.ReadFile(s.currentPointerPath(db))
	if err != nil {
		if os.IsNotExist(err) {
			return talmodel.Manifest{}, talerr.New(talerr.NotFound, "manifest", err).WithPath(db)
		}
		return talmodel.Manifest{}, talerr.New(talerr.IO, "manifest", err).WithPath(db)
	}
	return s.loadPath(filepath.Join(s.dbDir(db), string(ptr)))
}

func (s *Store) loadPath(path string) (talmodel.Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return talmodel.Manifest{}, talerr.New(talerr.NotFound, "manifest", err).WithPath(path)
		}
		return talmodel.Manifest{}, talerr.New(talerr.IO, "manifest", err).WithPath(path)
	}
	var m talmodel.Manifest
	if err := container.Decode(data, &m); err != nil {
		return talmodel.Manifest{}, talerr.New(talerr.Integrity, "manifest", err).WithPath(path)
	}
	return m, nil
}

// Save writes m atomically (temp file + rename) under db, then repoints
// "current" to it.
func (s *Store) Save(db string, m talmodel.Manifest) error {
	if err := os.MkdirAll(s.dbDir(db), 0755); err != nil {
		return talerr.New(talerr.IO, "manifest", err).WithPath(s.dbDir(db))
	}
	encoded, err := container.Encode(m)
	if err != nil {
		return talerr.New(talerr.Integrity, "manifest", err)
	}

	finalPath := s.versionPath(db, m.VersionTag)
	tmp, err := os.CreateTemp(s.dbDir(db), "manifest-*.tmp")
	if err != nil {
		return talerr.New(talerr.IO, "manifest", err).WithPath(s.dbDir(db))
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(encoded); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return talerr.New(talerr.IO, "manifest", err).WithPath(tmpPath)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return talerr.New(talerr.IO, "manifest", err).WithPath(tmpPath)
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		os.Remove(tmpPath)
		return talerr.New(talerr.IO, "manifest", err).WithPath(finalPath)
	}

	pointerTmp, err := os.CreateTemp(s.dbDir(db), "current-*.tmp")
	if err != nil {
		return talerr.New(talerr.IO, "manifest", err).WithPath(s.dbDir(db))
	}
	pointerTmpPath := pointerTmp.Name()
	if _, err := pointerTmp.WriteString(filepath.Base(finalPath)); err != nil {
		pointerTmp.Close()
		os.Remove(pointerTmpPath)
		return talerr.New(talerr.IO, "manifest", err).WithPath(pointerTmpPath)
	}
	if err := pointerTmp.Close(); err != nil {
		os.Remove(pointerTmpPath)
		return talerr.New(talerr.IO, "manifest", err).WithPath(pointerTmpPath)
	}
	return os.Rename(pointerTmpPath, s.currentPointerPath(db))
}

// Diff is a multiset difference over two manifests' chunk indexes.
type Diff struct {
	Added     []talmodel.ChunkMetadata
	Removed   []talmodel.ChunkMetadata
	Unchanged []talmodel.ChunkMetadata
}

// DiffManifests compares a (base) against b, keyed by chunk hash.
func DiffManifests(a, b talmodel.Manifest) Diff {
	countA := map[hash.Hash]int{}
	for _, c := range a.ChunkIndex {
		countA[hash.Hash(c.Hash)]++
	}

	var d Diff
	for _, c := range b.ChunkIndex {
		if h := hash.Hash(c.Hash); countA[h] > 0 {
			countA[h]--
			d.Unchanged = append(d.Unchanged, c)
		} else {
			d.Added = append(d.Added, c)
		}
	}
	for _, c := range a.ChunkIndex {
		if h := hash.Hash(c.Hash); countA[h] > 0 {
			countA[h]--
			d.Removed = append(d.Removed, c)
		}
	}
	sortByHash(d.Added)
	sortByHash(d.Removed)
	sortByHash(d.Unchanged)
	return d
}

func sortByHash(cs []talmodel.ChunkMetadata) {
	sort.Slice(cs, func(i, j int) bool {
		return hash.Hash(cs[i].Hash).Less(hash.Hash(cs[j].Hash))
	})
}

// SequenceRoot computes the Merkle root over the sorted, deduped set of
// chunk hashes in m.
func SequenceRoot(m talmodel.Manifest) hash.Hash {
	hs := make([]hash.Hash, len(m.ChunkIndex))
	for i, c := range m.ChunkIndex {
		hs[i] = hash.Hash(c.Hash)
	}
	return hash.SequenceRoot(hs)
}

// TaxonomyRoot computes the Merkle root over the sorted, deduped set of
// distinct taxonomy-version hashes referenced by m's chunks.
func TaxonomyRoot(m talmodel.Manifest) hash.Hash {
	hs := make([]hash.Hash, len(m.ChunkIndex))
	for i, c := range m.ChunkIndex {
		hs[i] = hash.Hash(c.TaxonomyVersionHash)
	}
	return hash.TaxonomyRoot(hs)
}
