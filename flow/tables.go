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

import "encoding/binary"

// Column families (tables) of the flow store's KV backend.
const (
	// ColEntryBatch: be64(batch_index) -> codec bytes of EntryBatch.
	ColEntryBatch = "FlowEntryBatch"

	// ColPadDataList: be64(tx_seq) -> concat(be64(start)||be64(size))*.
	ColPadDataList = "FlowPadDataList"

	// ColPadDataSyncHeight: fixed key "sync_height" -> be64(height).
	ColPadDataSyncHeight = "FlowPadDataSyncHeight"

	// ColMPTNodes: one-byte-discriminant-prefixed node and layer-size
	// keys -> 32-byte root / be64(size). See nodeKey/layerSizeKey below.
	ColMPTNodes = "FlowMPTNodes"
)

// padSyncHeightKey is the single fixed key in ColPadDataSyncHeight.
var padSyncHeightKey = []byte("sync_height")

// mptKeyNode and mptKeyLayerSize are the one-byte discriminants prefixed to
// every ColMPTNodes key, resolving the node/layer-size key collision risk
// spec.md §9 flags as unaddressed in the original source.
const (
	mptKeyNode      byte = 0x00
	mptKeyLayerSize byte = 0x01
)

// batchIndexKey returns the big-endian ColEntryBatch key for batchIndex.
func batchIndexKey(batchIndex uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, batchIndex)
	return key
}

// decodeBatchIndexKey parses a ColEntryBatch key back into a batch index.
func decodeBatchIndexKey(key []byte) (uint64, bool) {
	if len(key) != 8 {
		return 0, false
	}
	return binary.BigEndian.Uint64(key), true
}

// txSeqKey returns the big-endian ColPadDataList key for txSeq.
func txSeqKey(txSeq uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, txSeq)
	return key
}

// nodeKey returns the discriminated ColMPTNodes key for a Merkle node at
// (layer, position).
func nodeKey(layer, position int) []byte {
	key := make([]byte, 17)
	key[0] = mptKeyNode
	binary.BigEndian.PutUint64(key[1:9], uint64(layer))
	binary.BigEndian.PutUint64(key[9:17], uint64(position))
	return key
}

// layerSizeKey returns the discriminated ColMPTNodes key for the recorded
// size of layer.
func layerSizeKey(layer int) []byte {
	key := make([]byte, 9)
	key[0] = mptKeyLayerSize
	binary.BigEndian.PutUint64(key[1:9], uint64(layer))
	return key
}
