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

package seqstore

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/bfowle/talaria-sub008/talmodel"
)

// taxidPattern and oxPattern extract a declared taxon from a FASTA header
// here: "TaxID=\d+" (NCBI-style) and "OX=\d+" (UniProt-style).
// Header parsing stops here - no further header semantics live in this
// package.
var (
	taxidPattern = regexp.MustCompile(`TaxID=(\d+)`)
	oxPattern    = regexp.MustCompile(`OX=(\d+)`)

	// accessionPattern accepts a pipe-delimited part of the header's first
	// token as an accession when it contains a run of at least four
	// letters, digits, '_' or '.', a deliberately loose pattern since
	// accession formats vary widely across UniProt/NCBI/RefSeq/custom
	// sources.
	accessionPattern = regexp.MustCompile(`[A-Za-z0-9_.]{4,}`)
)

// ParsedHeader is what header parsing extracts: nothing more. Parse
// failures degrade gracefully here (taxon becomes unclassified,
// accession list may be empty) rather than erroring.
type ParsedHeader struct {
	DeclaredTaxon *talmodel.TaxonId
	Accessions    []string
}

// ParseHeader extracts a declared taxon id and a best-effort accession
// list from a raw FASTA header line (without the leading '>').
func ParseHeader(header string) ParsedHeader {
	var out ParsedHeader

	if m := oxPattern.FindStringSubmatch(header); m != nil {
		if n, err := strconv.ParseUint(m[1], 10, 32); err == nil {
			t := talmodel.TaxonId(n)
			out.DeclaredTaxon = &t
		}
	} else if m := taxidPattern.FindStringSubmatch(header); m != nil {
		if n, err := strconv.ParseUint(m[1], 10, 32); err == nil {
			t := talmodel.TaxonId(n)
			out.DeclaredTaxon = &t
		}
	}

	// The first whitespace-delimited token is conventionally the primary
	// accession (e.g. "sp|P0A1|FOO_ECOLI" or "NP_123456.1"); we also pull
	// any embedded accession-shaped tokens from it so pipe-delimited
	// UniProt-style headers surface every component.
	fields := strings.Fields(header)
	seen := map[string]bool{}
	if len(fields) > 0 {
		for _, part := range strings.Split(fields[0], "|") {
			if part == "" {
				continue
			}
			if accessionPattern.MatchString(part) && !seen[part] {
				out.Accessions = append(out.Accessions, part)
				seen[part] = true
			}
		}
	}
	return out
}
