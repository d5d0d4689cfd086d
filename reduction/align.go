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
	"github.com/bfowle/talaria-sub008/talmodel"
)

// AlphabetKind selects the substitution scoring used during alignment.
type AlphabetKind int

const (
	AlphabetNucleotide AlphabetKind = iota
	AlphabetProtein
)

// AlignConfig parameterizes the Needleman-Wunsch global alignment used to
// turn (reference, child) into a delta op list. The choice of alignment
// algorithm affects the size of the resulting delta but never its
// correctness: any op list that reconstructs the child byte-for-byte is
// acceptable.
type AlignConfig struct {
	Alphabet     AlphabetKind
	GapOpen      int
	GapExtend    int
	MatchScore   int // nucleotide only
	MismatchScore int // nucleotide only
}

// DefaultAlignConfig matches common affine-gap defaults for protein
// alignment.
func DefaultAlignConfig() AlignConfig {
	return AlignConfig{
		Alphabet:      AlphabetProtein,
		GapOpen:       -10,
		GapExtend:     -1,
		MatchScore:    2,
		MismatchScore: -1,
	}
}

const negInf = -1 << 30

// align runs affine-gap Needleman-Wunsch global alignment between
// reference and child, returning the aligned byte columns: (refByte,
// childByte) pairs where a gap is represented as -1.
func align(reference, child []byte, cfg AlignConfig) []alignedCol {
	m, n := len(reference), len(child)

	// M[i][j]: best score ending in a match/mismatch at (i,j).
	// X[i][j]: best score ending in a gap in child (reference consumed).
	// Y[i][j]: best score ending in a gap in reference (child consumed).
	M := make2D(m+1, n+1)
	X := make2D(m+1, n+1)
	Y := make2D(m+1, n+1)

	M[0][0] = 0
	X[0][0] = negInf
	Y[0][0] = negInf
	for i := 1; i <= m; i++ {
		M[i][0] = negInf
		X[i][0] = cfg.GapOpen + (i-1)*cfg.GapExtend
		Y[i][0] = negInf
	}
	for j := 1; j <= n; j++ {
		M[0][j] = negInf
		X[0][j] = negInf
		Y[0][j] = cfg.GapOpen + (j-1)*cfg.GapExtend
	}

	for i := 1; i <= m; i++ {
		for j := 1; j <= n; j++ {
			s := score(reference[i-1], child[j-1], cfg)
			M[i][j] = max3(M[i-1][j-1], X[i-1][j-1], Y[i-1][j-1]) + s
			X[i][j] = max2(M[i-1][j]+cfg.GapOpen, X[i-1][j]+cfg.GapExtend)
			Y[i][j] = max2(M[i][j-1]+cfg.GapOpen, Y[i][j-1]+cfg.GapExtend)
		}
	}

	// Traceback from the best-scoring state at (m, n).
	type state int
	const (
		stateM state = iota
		stateX
		stateY
	)
	best := max3(M[m][n], X[m][n], Y[m][n])
	cur := stateM
	switch best {
	case X[m][n]:
		cur = stateX
	case Y[m][n]:
		cur = stateY
	}

	var cols []alignedCol
	i, j := m, n
	for i > 0 || j > 0 {
		switch cur {
		case stateM:
			cols = append(cols, alignedCol{ref: int(reference[i-1]), refIdx: i - 1, child: int(child[j-1]), childIdx: j - 1})
			prev := max3(M[i-1][j-1], X[i-1][j-1], Y[i-1][j-1])
			i, j = i-1, j-1
			switch prev {
			case M[i][j]:
				cur = stateM
			case X[i][j]:
				cur = stateX
			default:
				cur = stateY
			}
		case stateX:
			cols = append(cols, alignedCol{ref: int(reference[i-1]), refIdx: i - 1, child: -1})
			if i > 1 && M[i-1][j]+cfg.GapOpen >= X[i-1][j]+cfg.GapExtend {
				cur = stateM
			}
			i--
		case stateY:
			cols = append(cols, alignedCol{ref: -1, child: int(child[j-1]), childIdx: j - 1})
			if j > 1 && M[i][j-1]+cfg.GapOpen >= Y[i][j-1]+cfg.GapExtend {
				cur = stateM
			}
			j--
		}
	}
	reverseCols(cols)
	return cols
}

type alignedCol struct {
	ref, child       int // byte value, or -1 for a gap
	refIdx, childIdx int
}

func reverseCols(cols []alignedCol) {
	for i, j := 0, len(cols)-1; i < j; i, j = i+1, j-1 {
		cols[i], cols[j] = cols[j], cols[i]
	}
}

func make2D(rows, cols int) [][]int {
	m := make([][]int, rows)
	backing := make([]int, rows*cols)
	for i := range m {
		m[i] = backing[i*cols : (i+1)*cols]
	}
	return m
}

func max2(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func max3(a, b, c int) int {
	return max2(a, max2(b, c))
}

func score(a, b byte, cfg AlignConfig) int {
	if cfg.Alphabet == AlphabetProtein {
		if s, ok := blosum62Score(a, b); ok {
			return s
		}
	}
	if a == b {
		return cfg.MatchScore
	}
	return cfg.MismatchScore
}

// opsFromAlignment translates aligned columns into a minimal Copy/
// Insert/Substitute/Delete op list: runs of matching columns become a
// single Copy, a ref-only column becomes Delete, a child-only column
// becomes Insert, and a mismatched pair becomes Substitute.
func opsFromAlignment(cols []alignedCol) []talmodel.DeltaOp {
	var ops []talmodel.DeltaOp
	i := 0
	for i < len(cols) {
		c := cols[i]
		switch {
		case c.ref != -1 && c.child != -1 && c.ref == c.child:
			start := c.refIdx
			j := i
			for j < len(cols) && cols[j].ref != -1 && cols[j].child != -1 && cols[j].ref == cols[j].child {
				j++
			}
			ops = append(ops, talmodel.Copy(start, j-i))
			i = j
		case c.ref != -1 && c.child != -1:
			ops = append(ops, talmodel.Substitute(c.refIdx, byte(c.child)))
			i++
		case c.child != -1:
			ops = append(ops, talmodel.Insert([]byte{byte(c.child)}))
			i++
		default:
			ops = append(ops, talmodel.Delete(c.refIdx))
			i++
		}
	}
	return ops
}

// Delta computes the op list that reconstructs child from reference.
func Delta(reference, child []byte, cfg AlignConfig) []talmodel.DeltaOp {
	return opsFromAlignment(align(reference, child, cfg))
}
