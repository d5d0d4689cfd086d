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

package taxonomy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilterBacteriaAndNotEcoli(t *testing.T) {
	ix := buildTestIndex()
	f, err := ParseFilter("Bacteria AND NOT Escherichia coli")
	require.NoError(t, err)

	assert.True(t, f.Evaluate(ix, map[TaxonId]struct{}{1280: {}}))
	assert.False(t, f.Evaluate(ix, map[TaxonId]struct{}{562: {}}))
}

func TestFilterOrPrecedence(t *testing.T) {
	ix := buildTestIndex()
	// AND binds tighter than OR: this reads as (562) OR (2 AND NOT 1280).
	f, err := ParseFilter("562 OR 2 AND NOT 1280")
	require.NoError(t, err)

	assert.True(t, f.Evaluate(ix, map[TaxonId]struct{}{562: {}}))
	assert.False(t, f.Evaluate(ix, map[TaxonId]struct{}{1280: {}}))
}

func TestFilterParens(t *testing.T) {
	ix := buildTestIndex()
	f, err := ParseFilter("NOT (562 OR 1280)")
	require.NoError(t, err)

	assert.False(t, f.Evaluate(ix, map[TaxonId]struct{}{562: {}}))
	assert.True(t, f.Evaluate(ix, map[TaxonId]struct{}{2: {}}))
}

func TestFilterUnknownNameEvaluatesFalseNotError(t *testing.T) {
	ix := buildTestIndex()
	f, err := ParseFilter("Thermococcus")
	require.NoError(t, err)
	assert.False(t, f.Evaluate(ix, map[TaxonId]struct{}{2: {}}))
}

func TestFilterMalformedExpressionErrors(t *testing.T) {
	_, err := ParseFilter("AND 1")
	assert.Error(t, err)

	_, err = ParseFilter("(1 OR 2")
	assert.Error(t, err)

	_, err = ParseFilter("1 2")
	assert.Error(t, err)
}
