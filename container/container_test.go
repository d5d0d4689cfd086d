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

package container

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Name string
	N    int
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	in := sample{Name: "swissprot", N: 42}
	enc, err := Encode(in)
	require.NoError(t, err)
	assert.True(t, hasMagic(enc))

	var out sample
	require.NoError(t, Decode(enc, &out))
	assert.Equal(t, in, out)
}

func TestDecodeAcceptsRawMessagePackWithoutMagic(t *testing.T) {
	in := sample{Name: "legacy", N: 7}
	enc, err := Encode(in)
	require.NoError(t, err)
	raw := enc[len(Magic):]

	var out sample
	require.NoError(t, Decode(raw, &out))
	assert.Equal(t, in, out)
}

func TestCompressedRoundTrip(t *testing.T) {
	in := sample{Name: "compressed", N: 99}
	enc, err := EncodeCompressed(in, Level)
	require.NoError(t, err)
	assert.True(t, isZstd(enc))

	var out sample
	require.NoError(t, Decode(enc, &out))
	assert.Equal(t, in, out)
}

// TestHashStabilityUnderCompression checks that SHA-256(b) is independent
// of whether the container was stored compressed or not.
func TestHashStabilityUnderCompression(t *testing.T) {
	in := sample{Name: "stable", N: 1}
	plain, err := Encode(in)
	require.NoError(t, err)

	compressed, err := EncodeCompressed(in, Level)
	require.NoError(t, err)

	// Identity is computed over the uncompressed framed bytes in both
	// cases, never over the compressed representation.
	h1 := Compute(plain)

	var roundTripped sample
	require.NoError(t, Decode(compressed, &roundTripped))
	replayed, err := Encode(roundTripped)
	require.NoError(t, err)
	h2 := Compute(replayed)

	assert.Equal(t, h1, h2)
}

func TestDecodeRejectsGarbage(t *testing.T) {
	err := Decode([]byte{0xff, 0xff, 0xff, 0xff, 0xff}, &sample{})
	assert.Error(t, err)
}
