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

// Package talerr implements a single sum-typed error surface: a closed set
// of Kind values, each carrying enough structure (component, hash, path)
// to produce both a one-line human summary and a machine-readable error
// record.
package talerr

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/bfowle/talaria-sub008/hash"
)

// Kind enumerates the error taxonomy. It is intentionally closed - a
// switch over Kind should never need a default case for anything the core
// itself raises.
type Kind int

const (
	// Integrity covers hash mismatch, decode failure, dangling reference.
	// Never retried; always surfaced.
	Integrity Kind = iota
	// IO covers transient file, disk-full, permission errors.
	IO
	// Network covers connection, timeout, HTTP 5xx.
	Network
	// Config covers unrecognized filter expressions and bad configuration.
	Config
	// Parse covers malformed headers and unknown taxa; these degrade
	// gracefully at the call site rather than propagating as fatal.
	Parse
	// Conflict covers writing a chunk whose hash already exists with
	// different bytes. Always fatal.
	Conflict
	// Cancelled covers user-triggered cancellation.
	Cancelled
	// NotFound covers lookups against keys absent from a store.
	NotFound
)

func (k Kind) String() string {
	switch k {
	case Integrity:
		return "integrity"
	case IO:
		return "io"
	case Network:
		return "network"
	case Config:
		return "config"
	case Parse:
		return "parse"
	case Conflict:
		return "conflict"
	case Cancelled:
		return "cancelled"
	case NotFound:
		return "not_found"
	default:
		return "unknown"
	}
}

// Error is the single exported error type returned across the core's
// public surface. Component identifies the subsystem (e.g. "chunkstore",
// "manifest"); Hash and Path are optional context populated when the
// failure is tied to a specific content address or on-disk location.
type Error struct {
	Kind      Kind
	Component string
	Hash      *hash.Hash
	Path      string
	cause     error
}

// New builds an Error of the given kind, wrapping cause with a stack trace
// via pkg/errors so propagation through the ingest orchestrator (the only
// component allowed to decide retry-vs-abort) never loses the origin.
func New(kind Kind, component string, cause error) *Error {
	return &Error{Kind: kind, Component: component, cause: errors.WithStack(cause)}
}

// WithHash attaches the content address implicated in the failure.
func (e *Error) WithHash(h hash.Hash) *Error {
	e.Hash = &h
	return e
}

// WithPath attaches the on-disk path implicated in the failure.
func (e *Error) WithPath(p string) *Error {
	e.Path = p
	return e
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s: %s", e.Kind, e.Component, e.cause)
	if e.Hash != nil {
		msg += fmt.Sprintf(" (hash=%s)", e.Hash)
	}
	if e.Path != "" {
		msg += fmt.Sprintf(" (path=%s)", e.Path)
	}
	return msg
}

// Unwrap exposes the wrapped cause to errors.Is/errors.As.
func (e *Error) Unwrap() error { return e.cause }

// Cause exposes the original error via the pkg/errors convention, in
// addition to the stdlib Unwrap above.
func (e *Error) Cause() error { return errors.Cause(e.cause) }

// Record is the machine-readable form of an Error, suitable for structured
// logging or the (out-of-scope) CLI's JSON error output.
type Record struct {
	Kind      string `json:"kind"`
	Component string `json:"component"`
	Hash      string `json:"hash,omitempty"`
	Path      string `json:"path,omitempty"`
	Message   string `json:"message"`
}

// ToRecord converts e into its machine-readable Record.
func (e *Error) ToRecord() Record {
	r := Record{Kind: e.Kind.String(), Component: e.Component, Path: e.Path, Message: e.cause.Error()}
	if e.Hash != nil {
		r.Hash = e.Hash.String()
	}
	return r
}

// Summary renders a one-line human summary to accompany the
// machine-readable record.
func (e *Error) Summary() string {
	return fmt.Sprintf("[%s] %s: %s", e.Kind, e.Component, e.cause)
}

// KindOf extracts the Kind from err if it is (or wraps) a *Error, and
// false otherwise.
func KindOf(err error) (Kind, bool) {
	var te *Error
	if errors.As(err, &te) {
		return te.Kind, true
	}
	return 0, false
}

// ExitCode maps a Kind to a fixed process exit code, for a CLI
// collaborator to surface without duplicating the table.
func ExitCode(k Kind) int {
	switch k {
	case Config:
		return 2
	case IO:
		return 3
	case Parse:
		return 4
	case Integrity, Conflict, NotFound:
		return 5
	case Network:
		return 1
	case Cancelled:
		return 1
	default:
		return 1
	}
}
