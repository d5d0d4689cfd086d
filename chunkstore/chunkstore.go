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

// Package chunkstore persists content-addressed chunk bytes under a
// hash key, zstd-compressed either with the default no-dictionary codec
// or with a per-taxon dictionary trained lazily from that taxon's own
// traffic.
package chunkstore

import (
	"encoding/binary"

	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"

	"github.com/bfowle/talaria-sub008/hash"
	"github.com/bfowle/talaria-sub008/talerr"
	"github.com/bfowle/talaria-sub008/talrun"
)

var (
	bucketChunks = []byte("chunks")
	bucketMeta   = []byte("chunk_meta")

	errNotFound     = errors.New("chunk not found")
	errUnknownDict  = errors.New("unknown dict_id")
	errHashMismatch = errors.New("decompressed bytes do not hash to the requested key")
)

// CodecTag tags how a stored chunk's bytes were compressed.
type CodecTag int

const (
	CodecBinary CodecTag = iota
	CodecBinaryDict
)

// Metadata is the per-chunk record kept alongside the compressed bytes.
type Metadata struct {
	Codec            CodecTag
	DictID           string
	UncompressedSize int64
	CompressedSize   int64
}

// PutOptions controls how Put compresses a chunk.
type PutOptions struct {
	// Taxon, if nonzero along with UseDictionary, routes the chunk
	// through that taxon's learned dictionary once enough samples have
	// accumulated to train one.
	Taxon         uint32
	UseDictionary bool
}

// Stats summarizes the store's current contents.
type Stats struct {
	Count               int
	BytesOnDisk         int64
	AvgCompressionRatio float64
}

// GCResult reports the outcome of a Gc pass.
type GCResult struct {
	Removed    int
	BytesFreed int64
}

// Store is the on-disk, bbolt-backed chunk store.
type Store struct {
	db    *bolt.DB
	dicts *dictionaryCache
}

// Option configures a Store at Open time.
type Option func(*Store)

// WithLockOrder wires the store's dict_cache_lock acquisitions into the
// given LockOrder, so an ingest path that holds a lower-ranked lock (see
// talrun.LockRank) before reaching into the dictionary cache panics instead
// of deadlocking silently.
func WithLockOrder(lo *talrun.LockOrder) Option {
	return func(s *Store) { s.dicts.lockOrder = lo }
}

// Open opens (creating if absent) a chunk store at path, with dictionary
// training gated on dictMinSamples chunks per taxon before a dictionary is
// built.
func Open(path string, dictMinSamples int, opts ...Option) (*Store, error) {
	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return nil, talerr.New(talerr.IO, "chunkstore", err).WithPath(path)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketChunks); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(bucketMeta)
		return err
	})
	if err != nil {
		db.Close()
		return nil, talerr.New(talerr.IO, "chunkstore", err).WithPath(path)
	}
	s := &Store{db: db, dicts: newDictionaryCache(dictMinSamples)}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Has reports whether h is present, without decompressing it.
func (s *Store) Has(h hash.Hash) (bool, error) {
	var found bool
	err := s.db.View(func(tx *bolt.Tx) error {
		found = tx.Bucket(bucketChunks).Get(h[:]) != nil
		return nil
	})
	return found, err
}

// Put compresses and stores bytes under h. Re-inserting an existing hash
// is a no-op: the store trusts content addressing and never re-verifies
// a hash that is already present.
func (s *Store) Put(h hash.Hash, data []byte, opts PutOptions) error {
	if has, err := s.Has(h); err != nil {
		return err
	} else if has {
		return nil
	}

	var meta Metadata
	var compressed []byte
	if opts.UseDictionary && opts.Taxon != 0 {
		if cdict, dictID, ok := s.dicts.trainedFor(opts.Taxon); ok {
			compressed = compressWithDict(data, cdict)
			meta = Metadata{Codec: CodecBinaryDict, DictID: dictID, UncompressedSize: int64(len(data)), CompressedSize: int64(len(compressed))}
		}
	}
	if compressed == nil {
		compressed = compressDefault(data)
		meta = Metadata{Codec: CodecBinary, UncompressedSize: int64(len(data)), CompressedSize: int64(len(compressed))}
	}
	if opts.UseDictionary && opts.Taxon != 0 {
		s.dicts.observe(opts.Taxon, data)
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.Bucket(bucketChunks).Put(h[:], compressed); err != nil {
			return err
		}
		return tx.Bucket(bucketMeta).Put(h[:], encodeMeta(meta))
	})
}

// Get decompresses and returns the original bytes for h, verifying
// SHA-256(bytes) == h before returning. A mismatch is fatal: it signals
// disk corruption and the caller should treat the chunk as unrecoverable,
// not silently retry.
func (s *Store) Get(h hash.Hash) ([]byte, error) {
	var raw []byte
	var meta Metadata
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketChunks).Get(h[:])
		if v == nil {
			return talerr.New(talerr.NotFound, "chunkstore", errNotFound).WithHash(h)
		}
		raw = append([]byte(nil), v...)
		mv := tx.Bucket(bucketMeta).Get(h[:])
		meta = decodeMeta(mv)
		return nil
	})
	if err != nil {
		return nil, err
	}

	var out []byte
	var decErr error
	switch meta.Codec {
	case CodecBinaryDict:
		ddict, ok := s.dicts.decompressDict(meta.DictID)
		if !ok {
			return nil, talerr.New(talerr.Integrity, "chunkstore", errUnknownDict).WithHash(h)
		}
		out, decErr = decompressWithDict(raw, ddict)
	default:
		out, decErr = decompressDefault(raw)
	}
	if decErr != nil {
		return nil, talerr.New(talerr.Integrity, "chunkstore", decErr).WithHash(h)
	}

	if got := hash.Of(out); !got.Equals(h) {
		return nil, talerr.New(talerr.Integrity, "chunkstore", errHashMismatch).WithHash(h)
	}
	return out, nil
}

// Delete removes h unconditionally. Safe only when called from a gc pass
// that has already computed the full reachable set.
func (s *Store) Delete(h hash.Hash) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.Bucket(bucketChunks).Delete(h[:]); err != nil {
			return err
		}
		return tx.Bucket(bucketMeta).Delete(h[:])
	})
}

// Entry is one (hash, metadata) pair yielded by Iter.
type Entry struct {
	Hash hash.Hash
	Meta Metadata
}

// Iter calls fn for every stored chunk in key order, stopping early if fn
// returns an error.
func (s *Store) Iter(fn func(Entry) error) error {
	return s.db.View(func(tx *bolt.Tx) error {
		mb := tx.Bucket(bucketMeta)
		return tx.Bucket(bucketChunks).ForEach(func(k, _ []byte) error {
			h, err := hash.New(k)
			if err != nil {
				return err
			}
			meta := decodeMeta(mb.Get(k))
			return fn(Entry{Hash: h, Meta: meta})
		})
	})
}

// Stats computes aggregate statistics over the whole store.
func (s *Store) Stats() (Stats, error) {
	var st Stats
	var totalUncompressed, totalCompressed int64
	err := s.Iter(func(e Entry) error {
		st.Count++
		st.BytesOnDisk += e.Meta.CompressedSize
		totalUncompressed += e.Meta.UncompressedSize
		totalCompressed += e.Meta.CompressedSize
		return nil
	})
	if err != nil {
		return Stats{}, err
	}
	if totalCompressed > 0 {
		st.AvgCompressionRatio = float64(totalUncompressed) / float64(totalCompressed)
	}
	return st, nil
}

// Gc removes every stored chunk whose hash is absent from referenced. The
// caller (the manifest layer) computes the reachable set; Gc trusts it
// completely.
func (s *Store) Gc(referenced map[hash.Hash]struct{}) (GCResult, error) {
	var toDelete []hash.Hash
	err := s.Iter(func(e Entry) error {
		if _, ok := referenced[e.Hash]; !ok {
			toDelete = append(toDelete, e.Hash)
		}
		return nil
	})
	if err != nil {
		return GCResult{}, err
	}

	var result GCResult
	for _, h := range toDelete {
		var sz int64
		err := s.db.Update(func(tx *bolt.Tx) error {
			mv := tx.Bucket(bucketMeta).Get(h[:])
			sz = decodeMeta(mv).CompressedSize
			if err := tx.Bucket(bucketChunks).Delete(h[:]); err != nil {
				return err
			}
			return tx.Bucket(bucketMeta).Delete(h[:])
		})
		if err != nil {
			return result, err
		}
		result.Removed++
		result.BytesFreed += sz
	}
	return result, nil
}

// encodeMeta and decodeMeta use a tiny fixed layout rather than the
// container framing: chunk metadata is internal bookkeeping, never
// transmitted, so it does not need MessagePack's schema evolution.
func encodeMeta(m Metadata) []byte {
	buf := make([]byte, 1+8+8+2+len(m.DictID))
	buf[0] = byte(m.Codec)
	binary.BigEndian.PutUint64(buf[1:9], uint64(m.UncompressedSize))
	binary.BigEndian.PutUint64(buf[9:17], uint64(m.CompressedSize))
	binary.BigEndian.PutUint16(buf[17:19], uint16(len(m.DictID)))
	copy(buf[19:], m.DictID)
	return buf
}

func decodeMeta(b []byte) Metadata {
	if len(b) < 19 {
		return Metadata{}
	}
	dictLen := binary.BigEndian.Uint16(b[17:19])
	var dictID string
	if int(dictLen) > 0 && len(b) >= 19+int(dictLen) {
		dictID = string(b[19 : 19+int(dictLen)])
	}
	return Metadata{
		Codec:            CodecTag(b[0]),
		UncompressedSize: int64(binary.BigEndian.Uint64(b[1:9])),
		CompressedSize:   int64(binary.BigEndian.Uint64(b[9:17])),
		DictID:           dictID,
	}
}
