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

// Package seqstore implements the sequence store: the
// canonical/representation split that yields cross-database
// deduplication, backed by an embedded ordered key-value engine
// (go.etcd.io/bbolt, the same embedded engine dolt's own go.mod depends
// on) with one bucket per column family.
package seqstore

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/gob"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/holiman/bloomfilter/v2"
	bolt "go.etcd.io/bbolt"

	"github.com/bfowle/talaria-sub008/container"
	"github.com/bfowle/talaria-sub008/hash"
	"github.com/bfowle/talaria-sub008/talerr"
	"github.com/bfowle/talaria-sub008/talmodel"
	"github.com/bfowle/talaria-sub008/talrun"
)

var (
	bucketCanonical      = []byte("canonical")
	bucketRepresentations = []byte("representations")
	bucketAccessionIdx   = []byte("accession_idx")
	bucketTaxonIdx       = []byte("taxon_idx")
	bucketManifestCache  = []byte("manifest")
	bucketMeta           = []byte("meta")

	bloomKey = []byte("bloom")
)

// bloomCapacityHint is the initial expected element count used to size
// the Bloom filter. The filter is sized once from this hint and is never
// resized.
const bloomCapacityHint = 1 << 20

// bloomFalsePositiveRate is the target false-positive rate. Existence
// checks tolerate false positives (confirmed by a real lookup) but must
// never produce false negatives.
const bloomFalsePositiveRate = 0.001

// Store is the bbolt-backed sequence store. bloomMu (open_chunks_lock in
// the system-wide lock order) guards every read or write of bloom: Exists
// and ExistsBatch can run concurrently with StoreSequence/StoreSequenceBatch
// mutating it from a separate ingest goroutine.
type Store struct {
	rt *talrun.Runtime
	db *bolt.DB

	bloomMu   sync.Mutex
	lockOrder *talrun.LockOrder
	bloom     *bloomfilter.Filter
}

// Open opens (creating if absent) the bbolt-backed sequence store rooted
// at path.
func Open(rt *talrun.Runtime, path string) (*Store, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, talerr.New(talerr.IO, "seqstore", err).WithPath(path)
	}
	s := &Store{rt: rt, db: db, lockOrder: talrun.NewLockOrder(rt.Config.DeadlockDetection)}
	if err := s.init(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) init() error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		for _, b := range [][]byte{bucketCanonical, bucketRepresentations, bucketAccessionIdx, bucketTaxonIdx, bucketManifestCache, bucketMeta} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return talerr.New(talerr.IO, "seqstore", err)
	}
	return s.loadOrCreateBloom()
}

func (s *Store) loadOrCreateBloom() error {
	var raw []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		raw = tx.Bucket(bucketMeta).Get(bloomKey)
		return nil
	})
	if err != nil {
		return talerr.New(talerr.IO, "seqstore", err)
	}
	if raw != nil {
		var f bloomfilter.Filter
		if derr := gob.NewDecoder(bytes.NewReader(raw)).Decode(&f); derr == nil {
			s.bloom = &f
			return nil
		}
	}
	f, err := bloomfilter.NewOptimal(bloomCapacityHint, bloomFalsePositiveRate)
	if err != nil {
		return talerr.New(talerr.Integrity, "seqstore", err)
	}
	s.bloom = f
	return nil
}

func (s *Store) persistBloom(tx *bolt.Tx) error {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(s.bloom); err != nil {
		return err
	}
	return tx.Bucket(bucketMeta).Put(bloomKey, buf.Bytes())
}

func bloomKeyFor(h hash.Hash) uint64 {
	return binary.LittleEndian.Uint64(h[:8])
}

// Close releases the underlying bbolt handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Exists probes the Bloom filter first; a negative answer short-circuits
// without touching the KV engine. A positive answer is confirmed with a
// real get, since Bloom filters admit false positives but never false
// negatives.
func (s *Store) Exists(h hash.Hash) (bool, error) {
	s.bloomMu.Lock()
	s.lockOrder.Acquire(talrun.RankOpenChunks)
	maybePresent := s.bloom.Contains(bloomKeyFor(h))
	s.lockOrder.Release(talrun.RankOpenChunks)
	s.bloomMu.Unlock()
	if !maybePresent {
		return false, nil
	}
	var found bool
	err := s.db.View(func(tx *bolt.Tx) error {
		found = tx.Bucket(bucketCanonical).Get(h[:]) != nil
		return nil
	})
	if err != nil {
		return false, talerr.New(talerr.IO, "seqstore", err)
	}
	return found, nil
}

// ExistsBatch checks many hashes at least as fast as a serial loop by
// fanning the probe out across the CPU pool.
func (s *Store) ExistsBatch(hs []hash.Hash) ([]bool, error) {
	out := make([]bool, len(hs))
	type job struct {
		idx int
		h   hash.Hash
	}
	jobs := make([]job, len(hs))
	for i, h := range hs {
		jobs[i] = job{idx: i, h: h}
	}
	err := talrun.WithCPUBound(context.Background(), s.rt, jobs, func(_ context.Context, j job) error {
		found, err := s.Exists(j.h)
		if err != nil {
			return err
		}
		out[j.idx] = found
		return nil
	})
	return out, err
}

// StoreSequence computes H = SHA-256(bytes); inserts the canonical record
// if absent (first_seen = now); always updates last_seen; appends a
// SequenceRepresentation idempotently on (source, header). Returns H.
func (s *Store) StoreSequence(bytes_ []byte, header string, source talmodel.DatabaseSource) (hash.Hash, error) {
	h := hash.Of(bytes_)
	now := time.Now()
	parsed := ParseHeader(header)

	err := s.db.Update(func(tx *bolt.Tx) error {
		canBucket := tx.Bucket(bucketCanonical)
		repBucket := tx.Bucket(bucketRepresentations)
		accBucket := tx.Bucket(bucketAccessionIdx)
		taxBucket := tx.Bucket(bucketTaxonIdx)

		var canonical talmodel.CanonicalSequence
		existing := canBucket.Get(h[:])
		if existing == nil {
			canonical = talmodel.CanonicalSequence{
				Hash:         h,
				Bytes:        append([]byte(nil), bytes_...),
				Length:       len(bytes_),
				SequenceType: detectSequenceType(bytes_),
				Checksum:     xxhash.Sum64(bytes_),
				FirstSeen:    now,
				LastSeen:     now,
			}
		} else {
			if err := container.Decode(existing, &canonical); err != nil {
				return talerr.New(talerr.Integrity, "seqstore", err).WithHash(h)
			}
			canonical.LastSeen = now
		}
		encCanonical, err := container.Encode(canonical)
		if err != nil {
			return err
		}
		if err := canBucket.Put(h[:], encCanonical); err != nil {
			return err
		}

		var reps talmodel.SequenceRepresentations
		if raw := repBucket.Get(h[:]); raw != nil {
			if err := container.Decode(raw, &reps); err != nil {
				return talerr.New(talerr.Integrity, "seqstore", err).WithHash(h)
			}
		} else {
			reps.CanonicalHash = h
		}
		rep := talmodel.SequenceRepresentation{
			Source:          source,
			OriginalHeader:  header,
			Accessions:      parsed.Accessions,
			DeclaredTaxonID: parsed.DeclaredTaxon,
			LastSeen:        now,
		}
		reps.Add(rep)
		encReps, err := container.Encode(reps)
		if err != nil {
			return err
		}
		if err := repBucket.Put(h[:], encReps); err != nil {
			return err
		}

		for _, acc := range parsed.Accessions {
			if err := accBucket.Put([]byte(acc), h[:]); err != nil {
				return err
			}
		}

		taxon := talmodel.TaxonUnclassified
		if parsed.DeclaredTaxon != nil {
			taxon = *parsed.DeclaredTaxon
		}
		if err := taxBucket.Put(taxonIdxKey(taxon, h), nil); err != nil {
			return err
		}

		s.bloomMu.Lock()
		s.lockOrder.Acquire(talrun.RankOpenChunks)
		s.bloom.Add(bloomKeyFor(h))
		perr := s.persistBloom(tx)
		s.lockOrder.Release(talrun.RankOpenChunks)
		s.bloomMu.Unlock()
		return perr
	})
	if err != nil {
		if te, ok := err.(*talerr.Error); ok {
			return hash.Empty, te
		}
		return hash.Empty, talerr.New(talerr.IO, "seqstore", err).WithHash(h)
	}
	return h, nil
}

// StoreSequenceBatch stores each record with the same semantics as
// StoreSequence. Atomicity is per-record, not whole-batch: a failure partway
// through leaves earlier records committed.
func (s *Store) StoreSequenceBatch(records []BatchRecord) ([]hash.Hash, error) {
	out := make([]hash.Hash, len(records))
	for i, r := range records {
		h, err := s.StoreSequence(r.Bytes, r.Header, r.Source)
		if err != nil {
			return out, err
		}
		out[i] = h
	}
	return out, nil
}

// BatchRecord is one input to StoreSequenceBatch.
type BatchRecord struct {
	Bytes  []byte
	Header string
	Source talmodel.DatabaseSource
}

func taxonIdxKey(t talmodel.TaxonId, h hash.Hash) []byte {
	key := make([]byte, 4+hash.ByteLen)
	binary.BigEndian.PutUint32(key[:4], uint32(t))
	copy(key[4:], h[:])
	return key
}

// LoadCanonical returns the CanonicalSequence for h, or a NotFound error.
func (s *Store) LoadCanonical(h hash.Hash) (talmodel.CanonicalSequence, error) {
	var out talmodel.CanonicalSequence
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(bucketCanonical).Get(h[:])
		if raw == nil {
			return talerr.New(talerr.NotFound, "seqstore", errNotFound("canonical")).WithHash(h)
		}
		return container.Decode(raw, &out)
	})
	return out, err
}

// LoadRepresentations returns the SequenceRepresentations for h, or a
// NotFound error.
func (s *Store) LoadRepresentations(h hash.Hash) (talmodel.SequenceRepresentations, error) {
	var out talmodel.SequenceRepresentations
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(bucketRepresentations).Get(h[:])
		if raw == nil {
			return talerr.New(talerr.NotFound, "seqstore", errNotFound("representations")).WithHash(h)
		}
		return container.Decode(raw, &out)
	})
	return out, err
}

// FindByAccession resolves an accession string to its canonical hash.
func (s *Store) FindByAccession(acc string) (hash.Hash, bool, error) {
	var h hash.Hash
	var found bool
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(bucketAccessionIdx).Get([]byte(acc))
		if raw == nil {
			return nil
		}
		found = true
		copy(h[:], raw)
		return nil
	})
	return h, found, err
}

// FindByTaxon streams every canonical hash indexed under taxon t.
func (s *Store) FindByTaxon(t talmodel.TaxonId) ([]hash.Hash, error) {
	var out []hash.Hash
	prefix := make([]byte, 4)
	binary.BigEndian.PutUint32(prefix, uint32(t))
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketTaxonIdx).Cursor()
		for k, _ := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = c.Next() {
			var h hash.Hash
			copy(h[:], k[4:])
			out = append(out, h)
		}
		return nil
	})
	return out, err
}

// Stats reports aggregate counts across the store.
type Stats struct {
	TotalCanonical      int
	TotalRepresentations int
	Bytes               int64
	DedupRatio          float64
}

// Stats computes aggregate counts across the store.
func (s *Store) Stats() (Stats, error) {
	var st Stats
	err := s.db.View(func(tx *bolt.Tx) error {
		canBucket := tx.Bucket(bucketCanonical)
		st.TotalCanonical = canBucket.Stats().KeyN
		st.TotalRepresentations = 0
		return canBucket.ForEach(func(k, v []byte) error {
			var c talmodel.CanonicalSequence
			if err := container.Decode(v, &c); err != nil {
				return err
			}
			st.Bytes += int64(len(c.Bytes))
			return nil
		})
	})
	if err != nil {
		return st, talerr.New(talerr.IO, "seqstore", err)
	}
	err = s.db.View(func(tx *bolt.Tx) error {
		repBucket := tx.Bucket(bucketRepresentations)
		return repBucket.ForEach(func(k, v []byte) error {
			var r talmodel.SequenceRepresentations
			if err := container.Decode(v, &r); err != nil {
				return err
			}
			st.TotalRepresentations += len(r.Representations)
			return nil
		})
	})
	if err != nil {
		return st, talerr.New(talerr.IO, "seqstore", err)
	}
	denom := st.TotalCanonical
	if denom == 0 {
		denom = 1
	}
	st.DedupRatio = float64(st.TotalRepresentations) / float64(denom)
	return st, nil
}

// RebuildIndices rebuilds accession_idx and taxon_idx from canonical and
// representations, a maintenance operation useful after a bulk
// reclassification or index corruption.
func (s *Store) RebuildIndices() error {
	return s.db.Update(func(tx *bolt.Tx) error {
		accBucket := tx.Bucket(bucketAccessionIdx)
		taxBucket := tx.Bucket(bucketTaxonIdx)
		if err := tx.DeleteBucket(bucketAccessionIdx); err != nil {
			return err
		}
		if err := tx.DeleteBucket(bucketTaxonIdx); err != nil {
			return err
		}
		var err error
		accBucket, err = tx.CreateBucket(bucketAccessionIdx)
		if err != nil {
			return err
		}
		taxBucket, err = tx.CreateBucket(bucketTaxonIdx)
		if err != nil {
			return err
		}

		repBucket := tx.Bucket(bucketRepresentations)
		return repBucket.ForEach(func(k, v []byte) error {
			var reps talmodel.SequenceRepresentations
			if err := container.Decode(v, &reps); err != nil {
				return err
			}
			var h hash.Hash
			copy(h[:], k)
			for _, rep := range reps.Representations {
				for _, acc := range rep.Accessions {
					if err := accBucket.Put([]byte(acc), h[:]); err != nil {
						return err
					}
				}
				taxon := talmodel.TaxonUnclassified
				if rep.DeclaredTaxonID != nil {
					taxon = *rep.DeclaredTaxonID
				}
				if err := taxBucket.Put(taxonIdxKey(taxon, h), nil); err != nil {
					return err
				}
			}
			return nil
		})
	})
}

type notFoundErr string

func (e notFoundErr) Error() string { return string(e) + " not found" }

func errNotFound(what string) error { return notFoundErr(what) }


// detectSequenceType makes a cheap guess at the residue alphabet from byte
// content: predominantly ACGTN/U implies nucleotide, otherwise protein.
func detectSequenceType(b []byte) talmodel.SequenceType {
	if len(b) == 0 {
		return talmodel.SequenceUnknown
	}
	var acgt, u, total int
	for _, c := range b {
		switch c {
		case 'A', 'C', 'G', 'T', 'a', 'c', 'g', 't', 'N', 'n':
			acgt++
		case 'U', 'u':
			u++
		}
		total++
	}
	if float64(acgt+u)/float64(total) < 0.9 {
		return talmodel.SequenceProtein
	}
	if u > 0 {
		return talmodel.SequenceRNA
	}
	return talmodel.SequenceDNA
}
