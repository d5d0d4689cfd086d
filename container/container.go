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

// Package container implements the TAL\x01 binary framing shared by every
// persisted record: a four-byte magic prefix over a MessagePack body,
// optionally zstd-compressed.
package container

import (
	"bytes"

	"github.com/dolthub/gozstd"
	"github.com/pkg/errors"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/bfowle/talaria-sub008/hash"
)

// Magic is the four-byte prefix written at the front of every encoded
// record, going forward. Absence of it on decode indicates a raw
// MessagePack body from an older writer.
var Magic = [4]byte{'T', 'A', 'L', 0x01}

// zstdMagic is the standard zstd frame magic number, used to detect
// compression transparently at decode time regardless of any flag.
var zstdMagic = [4]byte{0x28, 0xb5, 0x2f, 0xfd}

// Level is the default zstd compression level used when Encode is asked to
// compress: level 19, the chunk store's default.
const Level = 19

// Err* are the sentinel failure modes of the container format. Decode
// returns ErrDecode and ErrDecompress (wrapped); it never returns
// ErrInvalidMagic, because a body without the magic prefix is accepted as
// raw MessagePack.
var (
	ErrInvalidMagic  = errors.New("container: invalid magic")
	ErrDecode        = errors.New("container: decode failed")
	ErrDecompress    = errors.New("container: decompress failed")
)

// Encode MessagePack-encodes value and prefixes it with Magic. Compression
// is an orthogonal opt-in via EncodeCompressed; plain Encode output is
// always raw MessagePack under the magic.
func Encode(value interface{}) ([]byte, error) {
	body, err := msgpack.Marshal(value)
	if err != nil {
		return nil, errors.Wrap(err, "container: marshal")
	}
	out := make([]byte, 0, len(Magic)+len(body))
	out = append(out, Magic[:]...)
	out = append(out, body...)
	return out, nil
}

// EncodeCompressed encodes value exactly as Encode does, then zstd-
// compresses the whole framed buffer at the given level. Hashing must
// always happen on the uncompressed form: callers that need a
// content hash should compute it over the Encode output, not this one.
func EncodeCompressed(value interface{}, level int) ([]byte, error) {
	framed, err := Encode(value)
	if err != nil {
		return nil, err
	}
	return gozstd.CompressLevel(nil, framed, level), nil
}

// Decode accepts either a TAL\x01-prefixed body or raw MessagePack, and
// transparently strips a zstd frame if present, regardless of the magic.
func Decode(data []byte, out interface{}) error {
	body, err := stripFraming(data)
	if err != nil {
		return err
	}
	if err := msgpack.Unmarshal(body, out); err != nil {
		return errors.Wrapf(ErrDecode, "%s", err)
	}
	return nil
}

// stripFraming removes an optional zstd frame and an optional magic
// prefix, in that order (a compressed buffer's zstd magic always comes
// first since compression wraps the already-framed bytes).
func stripFraming(data []byte) ([]byte, error) {
	if isZstd(data) {
		decompressed, err := gozstd.Decompress(nil, data)
		if err != nil {
			return nil, errors.Wrapf(ErrDecompress, "%s", err)
		}
		data = decompressed
	}
	if hasMagic(data) {
		data = data[len(Magic):]
	}
	return data, nil
}

func isZstd(data []byte) bool {
	return len(data) >= len(zstdMagic) && bytes.Equal(data[:len(zstdMagic)], zstdMagic[:])
}

func hasMagic(data []byte) bool {
	return len(data) >= len(Magic) && bytes.Equal(data[:len(Magic)], Magic[:])
}

// Compute returns the SHA-256 identity of b, delegating to package hash.
// Identity is always computed over the uncompressed canonical body.
func Compute(b []byte) hash.Hash {
	return hash.Of(b)
}
