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

	"github.com/flowmesh/flowstore/kv/memkv"
)

func newTestFlowDB() *FlowDBStore {
	db := memkv.New(ColEntryBatch, ColPadDataList, ColPadDataSyncHeight, ColMPTNodes)
	return NewFlowDBStore(db)
}

func TestPutGetEntryBatchList(t *testing.T) {
	s := newTestFlowDB()
	b0 := NewEntryBatch(0)
	_, err := b0.InsertData(0, fillSectors(SectorsPerSeal, 1))
	require.NoError(t, err)

	_, err = s.PutEntryBatchList([]IndexedBatch{{Index: 0, Batch: b0}})
	require.NoError(t, err)

	got, ok, err := s.GetEntryBatch(0)
	require.NoError(t, err)
	require.True(t, ok)
	data, ok := got.GetUnsealedData(0, SectorsPerSeal)
	require.True(t, ok)
	require.Equal(t, fillSectors(SectorsPerSeal, 1), data)
}

func TestPutEntryBatchListReportsCompletion(t *testing.T) {
	s := newTestFlowDB()
	b1 := NewEntryBatch(1)
	_, err := b1.InsertData(0, fillSectors(SectorsPerLoad, 2))
	require.NoError(t, err)

	roots, err := s.PutEntryBatchList([]IndexedBatch{{Index: 1, Batch: b1}})
	require.NoError(t, err)
	require.Len(t, roots, 1)
	require.EqualValues(t, 1, roots[0].Index)
	require.False(t, roots[0].Root.IsZero())
}

func TestDeleteBatchList(t *testing.T) {
	s := newTestFlowDB()
	_, err := s.PutEntryBatchList([]IndexedBatch{{Index: 0, Batch: NewEntryBatch(0)}})
	require.NoError(t, err)

	require.NoError(t, s.DeleteBatchList([]uint64{0}))

	_, ok, err := s.GetEntryBatch(0)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestTruncateDropsTailBatchesAndPartiallyResealsBoundary(t *testing.T) {
	s := newTestFlowDB()
	b0 := NewEntryBatch(0)
	_, err := b0.InsertData(0, fillSectors(SectorsPerSeal, 1))
	require.NoError(t, err)
	require.NoError(t, b0.SubmitSealResult(BatchSealResult{
		LocalSealIndex: 0,
		SealedData:     make([]byte, SectorsPerSeal*BytesPerSector),
	}))
	b1 := NewEntryBatch(1)
	_, err = b1.InsertData(0, fillSectors(SectorsPerSeal, 2))
	require.NoError(t, err)

	_, err = s.PutEntryBatchList([]IndexedBatch{{Index: 0, Batch: b0}, {Index: 1, Batch: b1}})
	require.NoError(t, err)

	reseal, err := s.Truncate(SectorsPerSeal/2, SectorsPerLoad)
	require.NoError(t, err)
	require.Equal(t, []uint64{0}, reseal)

	_, ok, err := s.GetEntryBatch(1)
	require.NoError(t, err)
	require.False(t, ok)

	got, ok, err := s.GetEntryBatch(0)
	require.NoError(t, err)
	require.True(t, ok)
	_, ok = got.GetUnsealedData(0, SectorsPerSeal/2)
	require.True(t, ok)
}

func TestPadDataRoundTrip(t *testing.T) {
	s := newTestFlowDB()
	pairs := []PadPair{{StartIndex: 1, DataSize: 2}}
	require.NoError(t, s.PutPadData(pairs, 42))

	got, ok, err := s.GetPadData(42)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, pairs, got)

	_, ok, err = s.GetPadData(43)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestPadDataSyncHeightRoundTrip(t *testing.T) {
	s := newTestFlowDB()
	_, ok, err := s.GetPadDataSyncHeight()
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, s.PutPadDataSyncHeight(99))
	h, ok, err := s.GetPadDataSyncHeight()
	require.NoError(t, err)
	require.True(t, ok)
	require.EqualValues(t, 99, h)
}

func TestNumBatchKeys(t *testing.T) {
	s := newTestFlowDB()
	n, err := s.NumBatchKeys()
	require.NoError(t, err)
	require.Zero(t, n)

	_, err = s.PutEntryBatchList([]IndexedBatch{
		{Index: 0, Batch: NewEntryBatch(0)},
		{Index: 1, Batch: NewEntryBatch(1)},
	})
	require.NoError(t, err)

	n, err = s.NumBatchKeys()
	require.NoError(t, err)
	require.EqualValues(t, 2, n)
}
