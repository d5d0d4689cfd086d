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

// Package verify walks a manifest's chunk index against the chunk store
// and reports every way the two have drifted: a chunk gone missing, bytes
// that no longer hash to their key, a declared size that doesn't match
// what's on disk, a delta chunk whose parent has vanished, or an aggregate
// Merkle root that no longer recomputes. It never repairs anything - a
// clean VerificationResult is the caller's signal that the manifest is
// trustworthy, a non-empty one is a list of exactly what to fix.
package verify

import (
	"context"
	"sync"

	"github.com/bfowle/talaria-sub008/hash"
	"github.com/bfowle/talaria-sub008/manifest"
	"github.com/bfowle/talaria-sub008/talerr"
	"github.com/bfowle/talaria-sub008/talmodel"
	"github.com/bfowle/talaria-sub008/talrun"
)

// ErrorKind enumerates the ways a manifest's claims can diverge from the
// chunk store's reality.
type ErrorKind int

const (
	KindHashMismatch ErrorKind = iota
	KindMissing
	KindSizeMismatch
	KindDecodeFailed
	KindDanglingReference
)

func (k ErrorKind) String() string {
	switch k {
	case KindHashMismatch:
		return "hash_mismatch"
	case KindMissing:
		return "missing"
	case KindSizeMismatch:
		return "size_mismatch"
	case KindDecodeFailed:
		return "decode_failed"
	case KindDanglingReference:
		return "dangling_reference"
	default:
		return "unknown"
	}
}

// VerificationError describes one specific way one chunk's claims failed
// to check out.
type VerificationError struct {
	Kind      ErrorKind
	ChunkHash hash.Hash
	Expected  hash.Hash
	Actual    hash.Hash
	Message   string
}

// VerificationResult is what a full walk of a manifest produces.
type VerificationResult struct {
	Errors        []VerificationError
	ChunksChecked int
	BytesChecked  int64
}

// OK reports whether the walk found zero problems.
func (r VerificationResult) OK() bool { return len(r.Errors) == 0 }

// Store is the read surface Verify needs from a chunk store - satisfied
// by *chunkstore.Store without this package importing it directly, so a
// mock store can stand in for tests without a real bbolt file.
type Store interface {
	Has(h hash.Hash) (bool, error)
	Get(h hash.Hash) ([]byte, error)
}

// Verify walks every entry in m.ChunkIndex against store, checking it in
// parallel on the runtime's CPU pool, then recomputes the manifest's
// sequence Merkle root and compares it against the stored value. The
// taxonomy root is not recomputed.
func Verify(ctx context.Context, rt *talrun.Runtime, store Store, m talmodel.Manifest) (VerificationResult, error) {
	var (
		mu     sync.Mutex
		result VerificationResult
	)
	record := func(e VerificationError) {
		mu.Lock()
		result.Errors = append(result.Errors, e)
		mu.Unlock()
	}

	err := talrun.WithCPUBound(ctx, rt, m.ChunkIndex, func(_ context.Context, cm talmodel.ChunkMetadata) error {
		h := hash.Hash(cm.Hash)
		bytes, getErr := store.Get(h)
		if getErr != nil {
			if kind, ok := talerr.KindOf(getErr); ok && kind == talerr.NotFound {
				record(VerificationError{Kind: KindMissing, ChunkHash: h, Message: getErr.Error()})
			} else {
				record(VerificationError{Kind: KindDecodeFailed, ChunkHash: h, Message: getErr.Error()})
			}
			mu.Lock()
			result.ChunksChecked++
			mu.Unlock()
			return nil
		}

		actual := hash.Of(bytes)
		if actual != h {
			record(VerificationError{Kind: KindHashMismatch, ChunkHash: h, Expected: h, Actual: actual})
		}
		if int64(len(bytes)) != cm.UncompressedSize {
			record(VerificationError{
				Kind:      KindSizeMismatch,
				ChunkHash: h,
				Message:   sizeMismatchMessage(cm.UncompressedSize, int64(len(bytes))),
			})
		}
		if cm.Classification.Tag == talmodel.ClassificationDelta {
			parent := hash.Hash(cm.Classification.ParentHash)
			has, hasErr := store.Has(parent)
			if hasErr != nil {
				record(VerificationError{Kind: KindDecodeFailed, ChunkHash: h, Message: hasErr.Error()})
			} else if !has {
				record(VerificationError{Kind: KindDanglingReference, ChunkHash: h, Expected: parent})
			}
		}

		mu.Lock()
		result.ChunksChecked++
		result.BytesChecked += int64(len(bytes))
		mu.Unlock()
		return nil
	})
	if err != nil {
		return result, err
	}

	expectedRoot := manifest.SequenceRoot(m)
	if expectedRoot != hash.Hash(m.SequenceRoot) {
		record(VerificationError{
			Kind:     KindHashMismatch,
			Expected: hash.Hash(m.SequenceRoot),
			Actual:   expectedRoot,
			Message:  "sequence_root does not recompute to the stored value",
		})
	}

	return result, nil
}

func sizeMismatchMessage(declared, observed int64) string {
	if declared == observed {
		return ""
	}
	return "declared uncompressed_size does not match observed byte length"
}
