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
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPadPairListRoundTrip(t *testing.T) {
	pairs := []PadPair{
		{StartIndex: 0, DataSize: 10},
		{StartIndex: 100, DataSize: 1 << 40},
	}
	raw := EncodePadPairList(pairs)
	require.Len(t, raw, len(pairs)*padPairSize)

	got, err := DecodePadPairList(raw)
	require.NoError(t, err)
	require.Equal(t, pairs, got)
}

func TestDecodePadPairListRejectsMisalignedLength(t *testing.T) {
	_, err := DecodePadPairList(make([]byte, 17))
	require.Error(t, err)
}

func TestBatchRootSingleRoundTrip(t *testing.T) {
	var root DataRoot
	root[0] = 0xAB
	r := BatchRoot{Multi: false, Root: root}
	got, err := UnmarshalBatchRoot(r.Marshal())
	require.NoError(t, err)
	require.Equal(t, r, got)
}

func TestBatchRootMultipleRoundTrip(t *testing.T) {
	var root DataRoot
	root[31] = 0xCD
	r := BatchRoot{Multi: true, Count: 7, Root: root}
	got, err := UnmarshalBatchRoot(r.Marshal())
	require.NoError(t, err)
	require.Equal(t, r, got)
}

func TestEntryBatchMarshalRoundTrip(t *testing.T) {
	b := NewEntryBatch(3)
	sector := make([]byte, BytesPerSector*SectorsPerSeal)
	for i := range sector {
		sector[i] = byte(i)
	}
	completed, err := b.InsertData(0, sector)
	require.NoError(t, err)
	require.Equal(t, []uint16{0}, completed)

	require.NoError(t, b.SubmitSealResult(BatchSealResult{
		LocalSealIndex: 0,
		SealedData:     make([]byte, SectorsPerSeal*BytesPerSector),
		MiningProof:    []byte("proof"),
	}))
	b.SetSubtreeList([]SubtreeEntry{{StartSector: 0, SectorCount: 1, Root: DataRoot{1}}})

	raw, err := b.Marshal()
	require.NoError(t, err)

	got, err := UnmarshalEntryBatch(raw)
	require.NoError(t, err)

	require.Equal(t, b.batchIndex, got.batchIndex)
	data, ok := got.GetUnsealedData(0, SectorsPerSeal)
	require.True(t, ok)
	require.Equal(t, sector, data)

	sealed, ok := got.GetSealedData(0)
	require.True(t, ok)
	require.Len(t, sealed, SectorsPerSeal*BytesPerSector)
}
