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

package talerr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/bfowle/talaria-sub008/hash"
)

func TestNewAndKindOf(t *testing.T) {
	err := New(Integrity, "chunkstore", errors.New("boom")).WithHash(hash.Of([]byte("x")))
	k, ok := KindOf(err)
	assert.True(t, ok)
	assert.Equal(t, Integrity, k)
	assert.Contains(t, err.Error(), "chunkstore")
	assert.Contains(t, err.Error(), "hash=")
}

func TestExitCodeMapping(t *testing.T) {
	assert.Equal(t, 2, ExitCode(Config))
	assert.Equal(t, 3, ExitCode(IO))
	assert.Equal(t, 4, ExitCode(Parse))
	assert.Equal(t, 5, ExitCode(Integrity))
	assert.Equal(t, 5, ExitCode(Conflict))
	assert.Equal(t, 5, ExitCode(NotFound))
	assert.Equal(t, 1, ExitCode(Network))
}

func TestToRecord(t *testing.T) {
	err := New(NotFound, "seqstore", errors.New("missing")).WithPath("/x/y")
	rec := err.ToRecord()
	assert.Equal(t, "not_found", rec.Kind)
	assert.Equal(t, "seqstore", rec.Component)
	assert.Equal(t, "/x/y", rec.Path)
}

func TestKindOfFalseForPlainError(t *testing.T) {
	_, ok := KindOf(errors.New("plain"))
	assert.False(t, ok)
}
