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

// Package common holds small integer helpers shared across the flow
// storage engine.
package common

// CeilDiv returns ceil(x/y) for non-negative y, 0 if y is 0.
func CeilDiv(x, y uint64) uint64 {
	if y == 0 {
		return 0
	}
	return (x + y - 1) / y
}

// MinU64 returns the smaller of two uint64 values.
func MinU64(a, b uint64) uint64 {
	if a < b {
		return a
	}
	return b
}

// MaxU64 returns the larger of two uint64 values.
func MaxU64(a, b uint64) uint64 {
	if a > b {
		return a
	}
	return b
}
