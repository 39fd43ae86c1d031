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

import "github.com/RoaringBitmap/roaring/v2"

// ChunkArray is a contiguous run of sector data starting at StartIndex.
type ChunkArray struct {
	StartIndex uint64
	Data       []byte
}

// Len returns the number of whole sectors represented by the chunk.
func (c ChunkArray) Len() uint64 {
	return uint64(len(c.Data)) / BytesPerSector
}

// SubArray returns the [start, end) slice of c, assuming both bounds are
// expressed in global entry indices and fall within c's range.
func (c ChunkArray) SubArray(start, end uint64) (ChunkArray, bool) {
	if start < c.StartIndex || end > c.StartIndex+c.Len() || end <= start {
		return ChunkArray{}, false
	}
	lo := (start - c.StartIndex) * BytesPerSector
	hi := (end - c.StartIndex) * BytesPerSector
	return ChunkArray{StartIndex: start, Data: c.Data[lo:hi]}, true
}

// SealTask is the payload handed to an external sealer.
type SealTask struct {
	SealIndex     uint64
	Version       uint64
	NonSealedData []byte
}

// SealAnswer is what an external sealer reports back for one seal unit.
type SealAnswer struct {
	SealIndex   uint64
	Version     uint64
	SealedData  []byte
	MiningProof []byte
}

// MineLoadChunk is a fixed-size window of sealed sector data for one batch,
// used by the mining protocol. Availabilities marks which of the
// SealsPerLoad slots in LoadedChunk actually hold sealed bytes.
type MineLoadChunk struct {
	LoadedChunk   [][]byte
	Availabilities *roaring.Bitmap
}

// NewMineLoadChunk returns an empty chunk sized for one batch, with every
// slot marked unavailable.
func NewMineLoadChunk() *MineLoadChunk {
	return &MineLoadChunk{
		LoadedChunk:    make([][]byte, SealsPerLoad),
		Availabilities: roaring.New(),
	}
}

// FlowProof is a Merkle inclusion proof for one sector within a batch.
type FlowProof struct {
	Lemma     []DataRoot
	SectorIdx int
}
