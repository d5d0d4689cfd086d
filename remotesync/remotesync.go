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

// Package remotesync pulls a database up to date against a remote
// manifest: diff the chunk indexes, fetch only what's missing, and never
// touch a chunk that's already present locally. A corrupt transfer (bytes
// that don't hash to the key that was asked for) is retried under the
// backoff policy rather than silently accepted; the local manifest only
// ever flips over once every missing chunk has arrived intact.
package remotesync

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/bfowle/talaria-sub008/chunkstore"
	"github.com/bfowle/talaria-sub008/hash"
	"github.com/bfowle/talaria-sub008/manifest"
	"github.com/bfowle/talaria-sub008/talerr"
	"github.com/bfowle/talaria-sub008/talmodel"
)

// Fetcher is the external HTTP collaborator's contract as seen from this
// package: fetch a database's current manifest, or fetch one chunk's raw
// bytes by hash.
type Fetcher interface {
	FetchManifest(ctx context.Context, database string) (talmodel.Manifest, error)
	FetchChunk(ctx context.Context, h hash.Hash) ([]byte, error)
}

// ChunkStore is the local write surface Sync needs - satisfied directly
// by *chunkstore.Store.
type ChunkStore interface {
	Has(h hash.Hash) (bool, error)
	Put(h hash.Hash, data []byte, opts chunkstore.PutOptions) error
}

// ManifestStore is the local manifest read/write surface Sync needs -
// satisfied directly by *manifest.Store.
type ManifestStore interface {
	LoadCurrent(database string) (talmodel.Manifest, error)
	Save(database string, m talmodel.Manifest) error
}

// Config tunes the retry policy applied to each chunk fetch.
type Config struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	MaxElapsedTime  time.Duration
	MaxRetries      uint64
}

// DefaultConfig mirrors a conservative client retry budget: quick first
// retries, exponential backoff capped at 5 attempts (the first try plus
// 4 retries; MaxRetries counts retries only).
func DefaultConfig() Config {
	return Config{
		InitialInterval: 250 * time.Millisecond,
		MaxInterval:     10 * time.Second,
		MaxElapsedTime:  2 * time.Minute,
		MaxRetries:      4,
	}
}

func (c Config) newBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.InitialInterval
	b.MaxInterval = c.MaxInterval
	b.MaxElapsedTime = c.MaxElapsedTime
	if c.MaxRetries == 0 {
		return b
	}
	return backoff.WithMaxRetries(b, c.MaxRetries)
}

// Result summarizes one Sync call.
type Result struct {
	ChunksFetched int
	BytesFetched  int64
	AlreadyLocal  int
}

// Sync fetches database's remote manifest, diffs it against whatever is
// locally current (treating "no local manifest yet" as an empty one, so
// a first sync just fetches everything), requests every chunk the diff
// says is missing, and - only once all of them have landed - atomically
// replaces the local manifest with the remote one.
func Sync(ctx context.Context, fetcher Fetcher, chunks ChunkStore, manifests ManifestStore, database string, cfg Config) (Result, error) {
	remote, err := fetcher.FetchManifest(ctx, database)
	if err != nil {
		return Result{}, talerr.New(talerr.Network, "remotesync", err)
	}

	local, err := manifests.LoadCurrent(database)
	if err != nil {
		if kind, ok := talerr.KindOf(err); !ok || kind != talerr.NotFound {
			return Result{}, err
		}
		local = talmodel.Manifest{}
	}

	diff := manifest.DiffManifests(local, remote)

	var result Result
	for _, cm := range diff.Added {
		h := hash.Hash(cm.Hash)
		present, err := chunks.Has(h)
		if err != nil {
			return result, talerr.New(talerr.IO, "remotesync", err)
		}
		if present {
			result.AlreadyLocal++
			continue
		}

		data, err := fetchChunkWithRetry(ctx, fetcher, h, cfg)
		if err != nil {
			return result, err
		}
		if err := chunks.Put(h, data, chunkstore.PutOptions{}); err != nil {
			return result, talerr.New(talerr.IO, "remotesync", err)
		}
		result.ChunksFetched++
		result.BytesFetched += int64(len(data))
	}

	if err := manifests.Save(database, remote); err != nil {
		return result, err
	}
	return result, nil
}

// fetchChunkWithRetry fetches h, verifying on every attempt that the
// returned bytes actually hash to h; a mismatch is treated as a corrupt
// transfer and retried under the backoff policy rather than accepted.
func fetchChunkWithRetry(ctx context.Context, fetcher Fetcher, h hash.Hash, cfg Config) ([]byte, error) {
	var data []byte
	op := func() error {
		b, err := fetcher.FetchChunk(ctx, h)
		if err != nil {
			return err
		}
		if hash.Of(b) != h {
			return errCorruptTransfer
		}
		data = b
		return nil
	}
	if err := backoff.Retry(op, backoff.WithContext(cfg.newBackOff(), ctx)); err != nil {
		return nil, talerr.New(talerr.Network, "remotesync", err).WithHash(h)
	}
	return data, nil
}
