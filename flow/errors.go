// Copyright 2025 The Flowmesh Authors
// This file is part of Flowmesh.
//
// Flowmesh is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// Flowmesh is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with Flowmesh. If not, see <http://www.gnu.org/licenses/>.

package flow

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a FlowError for callers that need to branch on the
// failure category instead of matching text.
type ErrorKind int

const (
	// ErrInvalidArgument: misaligned indices, zero-length ranges,
	// mis-sized data.
	ErrInvalidArgument ErrorKind = iota
	// ErrNotFound: an expected batch was absent where an invariant
	// required it present - treated as data corruption.
	ErrNotFound
	// ErrCodec: malformed stored bytes, fatal to the current operation.
	ErrCodec
	// ErrKVFailure: wraps the underlying KV driver's error.
	ErrKVFailure
	// ErrDowncast: a transaction handle of the wrong concrete type was
	// passed to commit - a programmer error.
	ErrDowncast
)

func (k ErrorKind) String() string {
	switch k {
	case ErrInvalidArgument:
		return "invalid_argument"
	case ErrNotFound:
		return "not_found"
	case ErrCodec:
		return "codec"
	case ErrKVFailure:
		return "kv_failure"
	case ErrDowncast:
		return "downcast"
	default:
		return "unknown"
	}
}

// FlowError wraps an operation failure with its kind and the operation name
// it occurred in, following the sentinel-error-plus-wrapping convention
// used throughout the teacher package (see core/state's PrunedError).
type FlowError struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *FlowError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Kind)
}

func (e *FlowError) Unwrap() error { return e.Err }

func newErr(op string, kind ErrorKind, err error) *FlowError {
	return &FlowError{Op: op, Kind: kind, Err: err}
}

// Is reports whether err is a FlowError of the given kind.
func Is(err error, kind ErrorKind) bool {
	var fe *FlowError
	if errors.As(err, &fe) {
		return fe.Kind == kind
	}
	return false
}
