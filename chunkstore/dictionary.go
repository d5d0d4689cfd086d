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

package chunkstore

import (
	"fmt"
	"sync"

	"github.com/dolthub/gozstd"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/bfowle/talaria-sub008/talrun"
)

// maxCachedTaxa bounds how many taxa's sample/dictionary state the cache
// keeps resident at once. A taxon evicted here just retrains from scratch
// the next time enough samples accumulate for it again; eviction never
// loses already-compressed chunk data.
const maxCachedTaxa = 4096

const defaultDictSize = 64 << 10

// compressionLevel is the zstd level used by both the default and
// dictionary codecs.
const compressionLevel = 19

func compressDefault(data []byte) []byte {
	return gozstd.CompressLevel(nil, data, compressionLevel)
}

func decompressDefault(data []byte) ([]byte, error) {
	return gozstd.Decompress(nil, data)
}

func compressWithDict(data []byte, cdict *gozstd.CDict) []byte {
	return gozstd.CompressDict(nil, data, cdict)
}

func decompressWithDict(data []byte, ddict *gozstd.DDict) ([]byte, error) {
	return gozstd.DecompressDict(nil, data, ddict)
}

// taxonSamples accumulates raw chunk bytes for one taxon until there are
// enough to train a dictionary, then trains it exactly once.
type taxonSamples struct {
	mu      sync.Mutex
	samples [][]byte
	trained bool
	dictID  string
	cdict   *gozstd.CDict
	once    sync.Once
}

// dictionaryCache is the process-wide cache of trained per-taxon
// dictionaries: dictionaries are expensive to train and are shared by
// every chunk belonging to the taxon they were trained on. Both maps are
// bounded LRUs so a database with many distinct taxa can't grow the cache
// without limit.
type dictionaryCache struct {
	mu         sync.Mutex
	lockOrder  *talrun.LockOrder
	minSamples int
	perTaxon   *lru.Cache[uint32, *taxonSamples]
	ddicts     *lru.Cache[string, *gozstd.DDict]
}

func newDictionaryCache(minSamples int) *dictionaryCache {
	if minSamples <= 0 {
		minSamples = 32
	}
	perTaxon, err := lru.New[uint32, *taxonSamples](maxCachedTaxa)
	if err != nil {
		panic(err) // only errors on a non-positive size, which maxCachedTaxa never is
	}
	ddicts, err := lru.New[string, *gozstd.DDict](maxCachedTaxa)
	if err != nil {
		panic(err)
	}
	return &dictionaryCache{
		minSamples: minSamples,
		lockOrder:  talrun.NewLockOrder(false),
		perTaxon:   perTaxon,
		ddicts:     ddicts,
	}
}

// observe records data as a training sample for taxon. The call that
// brings the sample count up to minSamples trains the dictionary itself.
func (dc *dictionaryCache) observe(taxon uint32, data []byte) {
	ts := dc.samplesFor(taxon)
	ts.mu.Lock()
	if !ts.trained {
		ts.samples = append(ts.samples, data)
	}
	shouldTrain := !ts.trained && len(ts.samples) >= dc.minSamples
	ts.mu.Unlock()

	if shouldTrain {
		ts.once.Do(func() {
			dc.train(taxon, ts)
		})
	}
}

func (dc *dictionaryCache) samplesFor(taxon uint32) *taxonSamples {
	dc.mu.Lock()
	dc.lockOrder.Acquire(talrun.RankDictCache)
	defer func() {
		dc.lockOrder.Release(talrun.RankDictCache)
		dc.mu.Unlock()
	}()
	ts, ok := dc.perTaxon.Get(taxon)
	if !ok {
		ts = &taxonSamples{}
		dc.perTaxon.Add(taxon, ts)
	}
	return ts
}

func (dc *dictionaryCache) train(taxon uint32, ts *taxonSamples) {
	ts.mu.Lock()
	samples := ts.samples
	ts.mu.Unlock()

	raw := gozstd.BuildDict(samples, defaultDictSize)
	cdict, err := gozstd.NewCDict(raw)
	if err != nil {
		// Training failure just means this taxon keeps using the
		// default no-dictionary codec; it is not fatal to ingest.
		return
	}
	ddict, err := gozstd.NewDDict(raw)
	if err != nil {
		return
	}

	dictID := fmt.Sprintf("taxon-%d", taxon)
	ts.mu.Lock()
	ts.trained = true
	ts.dictID = dictID
	ts.cdict = cdict
	ts.samples = nil
	ts.mu.Unlock()

	dc.mu.Lock()
	dc.lockOrder.Acquire(talrun.RankDictCache)
	dc.ddicts.Add(dictID, ddict)
	dc.lockOrder.Release(talrun.RankDictCache)
	dc.mu.Unlock()
}

// trainedFor returns the taxon's trained dictionary, if one has been
// trained yet.
func (dc *dictionaryCache) trainedFor(taxon uint32) (*gozstd.CDict, string, bool) {
	ts := dc.samplesFor(taxon)
	ts.mu.Lock()
	defer ts.mu.Unlock()
	if !ts.trained {
		return nil, "", false
	}
	return ts.cdict, ts.dictID, true
}

// decompressDict looks up a previously trained dictionary by id.
func (dc *dictionaryCache) decompressDict(dictID string) (*gozstd.DDict, bool) {
	dc.mu.Lock()
	dc.lockOrder.Acquire(talrun.RankDictCache)
	defer func() {
		dc.lockOrder.Release(talrun.RankDictCache)
		dc.mu.Unlock()
	}()
	return dc.ddicts.Get(dictID)
}
