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

// Package reduction picks a small set of reference sequences and encodes
// the rest as deltas against their best-matching reference, for
// alignment-tool-specific database reduction.
package reduction

import (
	"sort"

	"github.com/bfowle/talaria-sub008/hash"
)

// Algorithm selects which reference-selection strategy Select runs.
type Algorithm int

const (
	SinglePass Algorithm = iota
	SimilarityMatrix
)

// Config parameterizes reference selection. Both algorithms honor every
// field identically.
type Config struct {
	Algorithm          Algorithm
	MinLength          int
	SimilarityThreshold float64
	TargetRatio         float64
}

// Sequence is one candidate for reference selection.
type Sequence struct {
	Hash  hash.Hash
	Bytes []byte
}

// SelectionResult is the outcome of a reference-selection pass.
type SelectionResult struct {
	References []Sequence
	Children   []Sequence
	Discarded  []hash.Hash
}

// Select runs cfg.Algorithm over seqs, honoring MinLength,
// SimilarityThreshold and TargetRatio, and is deterministic for a given
// input order and configuration.
func Select(seqs []Sequence, cfg Config) SelectionResult {
	switch cfg.Algorithm {
	case SimilarityMatrix:
		return selectSimilarityMatrix(seqs, cfg)
	default:
		return selectSinglePass(seqs, cfg)
	}
}

// sortStable orders candidates by length descending, then hash ascending
// as a deterministic tiebreak, and splits out anything under MinLength.
func sortStable(seqs []Sequence, minLength int) (eligible []Sequence, discarded []hash.Hash) {
	kept := make([]Sequence, 0, len(seqs))
	for _, s := range seqs {
		if len(s.Bytes) < minLength {
			discarded = append(discarded, s.Hash)
			continue
		}
		kept = append(kept, s)
	}
	sort.SliceStable(kept, func(i, j int) bool {
		if len(kept[i].Bytes) != len(kept[j].Bytes) {
			return len(kept[i].Bytes) > len(kept[j].Bytes)
		}
		return kept[i].Hash.Less(kept[j].Hash)
	})
	sort.Slice(discarded, func(i, j int) bool { return discarded[i].Less(discarded[j]) })
	return kept, discarded
}

// selectSinglePass runs in O(n): sorted longest-first, greedily admits a
// sequence as a reference unless it is already within SimilarityThreshold
// of an existing reference.
func selectSinglePass(seqs []Sequence, cfg Config) SelectionResult {
	eligible, discarded := sortStable(seqs, cfg.MinLength)

	var result SelectionResult
	result.Discarded = discarded
	maxRefs := targetReferenceCount(len(eligible), cfg.TargetRatio)

	var refSigs []kmerSignature
	for _, s := range eligible {
		sig := kmerSignatureOf(s.Bytes)
		isNovel := true
		for _, rs := range refSigs {
			if jaccard(sig, rs) >= cfg.SimilarityThreshold {
				isNovel = false
				break
			}
		}
		if isNovel && len(result.References) < maxRefs {
			result.References = append(result.References, s)
			refSigs = append(refSigs, sig)
		} else {
			result.Children = append(result.Children, s)
		}
	}
	return result
}

// selectSimilarityMatrix runs in O(n^2): computes pairwise similarity for
// all eligible sequences, then greedily picks the sequence that covers the
// most uncovered sequences at or above SimilarityThreshold, repeating
// until TargetRatio of the input is selected or nothing covers anything
// new.
func selectSimilarityMatrix(seqs []Sequence, cfg Config) SelectionResult {
	eligible, discarded := sortStable(seqs, cfg.MinLength)

	var result SelectionResult
	result.Discarded = discarded
	n := len(eligible)
	if n == 0 {
		return result
	}

	sigs := make([]kmerSignature, n)
	for i, s := range eligible {
		sigs[i] = kmerSignatureOf(s.Bytes)
	}

	covers := make([][]bool, n)
	for i := 0; i < n; i++ {
		covers[i] = make([]bool, n)
		for j := 0; j < n; j++ {
			if i == j {
				continue
			}
			covers[i][j] = jaccard(sigs[i], sigs[j]) >= cfg.SimilarityThreshold
		}
	}

	uncovered := make([]bool, n)
	for i := range uncovered {
		uncovered[i] = true
	}
	isRef := make([]bool, n)
	maxRefs := targetReferenceCount(n, cfg.TargetRatio)

	for len(result.References) < maxRefs {
		best := -1
		bestCoverage := 0
		for i := 0; i < n; i++ {
			if isRef[i] {
				continue
			}
			coverage := 0
			for j := 0; j < n; j++ {
				if uncovered[j] && covers[i][j] {
					coverage++
				}
			}
			if coverage > bestCoverage || (coverage == bestCoverage && coverage > 0 && best != -1 && eligible[i].Hash.Less(eligible[best].Hash)) {
				best = i
				bestCoverage = coverage
			}
		}
		if best == -1 || bestCoverage == 0 {
			break
		}
		isRef[best] = true
		uncovered[best] = false
		for j := 0; j < n; j++ {
			if covers[best][j] {
				uncovered[j] = false
			}
		}
	}

	for i, s := range eligible {
		if isRef[i] {
			result.References = append(result.References, s)
		} else {
			result.Children = append(result.Children, s)
		}
	}
	return result
}

func targetReferenceCount(n int, targetRatio float64) int {
	if targetRatio <= 0 {
		return n
	}
	count := int(float64(n)*targetRatio + 0.5)
	if count < 1 && n > 0 {
		count = 1
	}
	return count
}
