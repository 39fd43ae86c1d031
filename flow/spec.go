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

// Package flow implements the flow storage engine: the batch-indexed flow
// data store, the sealing task manager and its reconciliation protocol with
// external sealers, the padding-metadata sidecar, and the persistent Merkle
// node store backing an append-only Merkle tree.
package flow

// Repo-fixed geometry of the flow. These are compile-time constants of the
// deployment, not runtime configuration.
const (
	// BytesPerSector is the fixed size, in bytes, of one addressable sector.
	BytesPerSector = 256

	// SectorsPerSeal is the number of consecutive sectors one seal unit
	// covers.
	SectorsPerSeal = 16

	// SealsPerLoad is the number of seal units stored in one batch.
	SealsPerLoad = 1024

	// SectorsPerLoad is the number of sectors stored in one batch, also
	// known as PoraChunkSize in the mining protocol this engine backs.
	SectorsPerLoad = SealsPerLoad * SectorsPerSeal
)

// DataRoot is a 32-byte Merkle commitment.
type DataRoot [32]byte

// IsZero reports whether r is the all-zero root (the sentinel for "not yet
// computed").
func (r DataRoot) IsZero() bool {
	return r == DataRoot{}
}
