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

package talmodel

import "time"

// OperationKind enumerates the long-running operations a ProcessingState
// can track.
type OperationKind int

const (
	OpDownload OperationKind = iota
	OpChunk
	OpReduce
	OpVerify
	OpSync
)

func (k OperationKind) String() string {
	switch k {
	case OpDownload:
		return "download"
	case OpChunk:
		return "chunk"
	case OpReduce:
		return "reduce"
	case OpVerify:
		return "verify"
	case OpSync:
		return "sync"
	default:
		return "unknown"
	}
}

// SourceInfo records where an ingest operation's input came from, for
// diagnostics and resumability.
type SourceInfo struct {
	URI         string `msgpack:"uri,omitempty"`
	Description string `msgpack:"description,omitempty"`
}

// ProcessingState is the per-operation record: created at ingest start,
// updated after each completed batch, deleted on successful completion,
// inspected on restart.
type ProcessingState struct {
	OpID                  string        `msgpack:"op_id"`
	OpKind                OperationKind `msgpack:"op_kind"`
	Database              string        `msgpack:"database"`
	TargetManifestHash    [32]byte      `msgpack:"target_manifest_hash"`
	TargetManifestVersion time.Time     `msgpack:"target_manifest_version"`
	TotalChunks           int           `msgpack:"total_chunks"`
	CompletedChunks       [][32]byte    `msgpack:"completed_chunks"`
	StartedAt             time.Time     `msgpack:"started_at"`
	UpdatedAt             time.Time     `msgpack:"updated_at"`
	SourceInfo            SourceInfo    `msgpack:"source_info"`
}

// ChunkingCheckpoint is the chunker's simpler sibling to ProcessingState:
// byte offset and sequence count into the input FASTA, persisted every
// CheckpointInterval sequences.
type ChunkingCheckpoint struct {
	Database          string     `msgpack:"database"`
	Version           *time.Time `msgpack:"version,omitempty"`
	SequencesProcessed int64      `msgpack:"sequences_processed"`
	FileOffset        int64      `msgpack:"file_offset"`
	LastSequenceID    *[32]byte  `msgpack:"last_sequence_id,omitempty"`
	TotalFileSize     int64      `msgpack:"total_file_size"`
	LastUpdated       time.Time  `msgpack:"last_updated"`
	Metrics           map[string]float64 `msgpack:"metrics,omitempty"`
}

// CheckpointInterval is how often, in processed sequences, the chunker
// persists a ChunkingCheckpoint.
const CheckpointInterval = 500_000

// ProcessingStateTTL is the default TTL after which an abandoned
// ProcessingState is eligible for cleanup on startup.
const ProcessingStateTTL = 7 * 24 * time.Hour
