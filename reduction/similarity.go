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

const kmerSize = 4

// kmerSignature is a deterministic, cheap similarity fingerprint: the set
// of distinct k-mers present in a sequence. Jaccard similarity over these
// sets is monotone (more shared k-mers never decreases similarity) and
// fully deterministic, which is all reference selection requires - the
// design explicitly does not mandate MinHash or any specific sketch.
type kmerSignature map[string]struct{}

func kmerSignatureOf(b []byte) kmerSignature {
	sig := kmerSignature{}
	k := kmerSize
	if len(b) < k {
		if len(b) > 0 {
			sig[string(b)] = struct{}{}
		}
		return sig
	}
	for i := 0; i+k <= len(b); i++ {
		sig[string(b[i:i+k])] = struct{}{}
	}
	return sig
}

// jaccard computes |a ∩ b| / |a ∪ b|, defined as 1.0 when both sets are
// empty.
func jaccard(a, b kmerSignature) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	var intersection int
	small, large := a, b
	if len(b) < len(a) {
		small, large = b, a
	}
	for k := range small {
		if _, ok := large[k]; ok {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}
