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

// IndexRange is a half-open [Start, End) range of global entry indices.
type IndexRange struct {
	Start, End uint64
}

// BatchIter returns the batch-boundary decomposition of [start, end):
// one range per batch the interval touches, clipped to [start, end).
func BatchIter(start, end uint64, batchSize uint64) []IndexRange {
	if batchSize == 0 || end <= start {
		return nil
	}
	var out []IndexRange
	first := start / batchSize * batchSize
	for i := first; i < end; i += batchSize {
		batchStart := i
		if batchStart < start {
			batchStart = start
		}
		batchEnd := i + batchSize
		if batchEnd > end {
			batchEnd = end
		}
		out = append(out, IndexRange{Start: batchStart, End: batchEnd})
	}
	return out
}

// BatchIterSharded filters BatchIter's output to ranges whose batch index
// belongs to the given shard.
func BatchIterSharded(start, end, batchSize uint64, shard ShardConfig) []IndexRange {
	all := BatchIter(start, end, batchSize)
	out := all[:0]
	for _, r := range all {
		if shard.InRange(r.Start / batchSize) {
			out = append(out, r)
		}
	}
	return out
}
