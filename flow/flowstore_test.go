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
	"time"

	"github.com/stretchr/testify/require"

	"github.com/flowmesh/flowstore/kv/memkv"
)

func newTestFlowStore(t *testing.T) *FlowStore {
	t.Helper()
	flowDB := memkv.New(ColEntryBatch, ColPadDataSyncHeight)
	dataDB := memkv.New(ColPadDataList, ColMPTNodes)
	cfg := DefaultConfig()
	cfg.SealManager.FreshnessWindow = time.Minute
	return NewFlowStore(flowDB, dataDB, cfg)
}

// S1: data appended while no sealer has ever polled produces no seal tasks;
// once a sealer polls, freshly completed seal units are queued, but
// already-completed ones are not retroactively discovered.
func TestAppendEntriesGatesOnSealWorkerAvailability(t *testing.T) {
	fs := newTestFlowStore(t)

	_, err := fs.AppendEntries(ChunkArray{StartIndex: 0, Data: fillSectors(SectorsPerSeal, 1)})
	require.NoError(t, err)

	tasks, err := fs.PullSealChunk(1 << 20)
	require.NoError(t, err)
	require.Empty(t, tasks)

	_, err = fs.PullSealChunk(1 << 20) // marks the sealer live
	require.NoError(t, err)

	_, err = fs.AppendEntries(ChunkArray{StartIndex: SectorsPerSeal, Data: fillSectors(SectorsPerSeal, 2)})
	require.NoError(t, err)

	tasks, err = fs.PullSealChunk(1 << 20)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	require.EqualValues(t, 1, tasks[0].SealIndex)
}

// S2: a submitted seal answer at the current version is applied and removed
// from the pending set; sealed bytes become readable via LoadSealedData.
func TestSubmitSealResultAppliesCurrentVersion(t *testing.T) {
	fs := newTestFlowStore(t)
	_, err := fs.PullSealChunk(1) // mark sealer live before data lands
	require.NoError(t, err)

	_, err = fs.AppendEntries(ChunkArray{StartIndex: 0, Data: fillSectors(SectorsPerSeal, 5)})
	require.NoError(t, err)

	tasks, err := fs.PullSealChunk(1 << 20)
	require.NoError(t, err)
	require.Len(t, tasks, 1)

	err = fs.SubmitSealResult([]SealAnswer{{
		SealIndex:   tasks[0].SealIndex,
		Version:     tasks[0].Version,
		SealedData:  make([]byte, SectorsPerSeal*BytesPerSector),
		MiningProof: []byte("p"),
	}})
	require.NoError(t, err)

	chunk, err := fs.LoadSealedData(0)
	require.NoError(t, err)
	require.True(t, chunk.Availabilities.Contains(0))

	_, ok := fs.sealMgr.Get(0)
	require.False(t, ok)
}

// S3: a stale seal answer (wrong version) is dropped without error and
// without mutating the batch.
func TestSubmitSealResultDropsStaleVersion(t *testing.T) {
	fs := newTestFlowStore(t)
	_, err := fs.PullSealChunk(1)
	require.NoError(t, err)
	_, err = fs.AppendEntries(ChunkArray{StartIndex: 0, Data: fillSectors(SectorsPerSeal, 5)})
	require.NoError(t, err)

	err = fs.SubmitSealResult([]SealAnswer{{
		SealIndex:  0,
		Version:    999,
		SealedData: make([]byte, SectorsPerSeal*BytesPerSector),
	}})
	require.NoError(t, err)

	chunk, err := fs.LoadSealedData(0)
	require.NoError(t, err)
	require.False(t, chunk.Availabilities.Contains(0))
}

// S4: truncate evicts pending seal units at or beyond the boundary and
// bumps the version, so a subsequently submitted answer for the old
// version is rejected as stale.
func TestTruncateInvalidatesPendingSealVersion(t *testing.T) {
	fs := newTestFlowStore(t)
	_, err := fs.PullSealChunk(1)
	require.NoError(t, err)
	_, err = fs.AppendEntries(ChunkArray{StartIndex: 0, Data: fillSectors(SectorsPerSeal, 5)})
	require.NoError(t, err)

	tasks, err := fs.PullSealChunk(1 << 20)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	staleVersion := tasks[0].Version

	require.NoError(t, fs.Truncate(0))

	err = fs.SubmitSealResult([]SealAnswer{{
		SealIndex:  0,
		Version:    staleVersion,
		SealedData: make([]byte, SectorsPerSeal*BytesPerSector),
	}})
	require.NoError(t, err)

	chunk, err := fs.LoadSealedData(0)
	require.NoError(t, err)
	require.False(t, chunk.Availabilities.Contains(0))
}

// Invariant 6: a partial truncate must evict the pending entry for the
// boundary seal unit itself (floor(startIndex/SectorsPerSeal)), not just
// units strictly above it.
func TestTruncateEvictsBoundarySealUnitItself(t *testing.T) {
	fs := newTestFlowStore(t)
	_, err := fs.PullSealChunk(1)
	require.NoError(t, err)
	_, err = fs.AppendEntries(ChunkArray{StartIndex: 0, Data: fillSectors(SectorsPerSeal, 5)})
	require.NoError(t, err)

	_, ok := fs.sealMgr.Get(0)
	require.True(t, ok, "seal unit 0 should be pending before truncate")

	require.NoError(t, fs.Truncate(SectorsPerSeal/2))

	_, ok = fs.sealMgr.Get(0)
	require.False(t, ok, "partial truncate inside seal unit 0 must evict it, not just units above it")
}

// S5: GetEntries reports an unsatisfiable range with ok=false, not an error;
// GetAvailableEntries returns only what this shard actually holds and
// requires batch-aligned endpoints.
func TestGetEntriesVsGetAvailableEntries(t *testing.T) {
	fs := newTestFlowStore(t)
	_, err := fs.AppendEntries(ChunkArray{StartIndex: 0, Data: fillSectors(SectorsPerSeal, 1)})
	require.NoError(t, err)

	_, ok, err := fs.GetEntries(0, SectorsPerSeal+1)
	require.NoError(t, err)
	require.False(t, ok)

	got, ok, err := fs.GetEntries(0, SectorsPerSeal)
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, got, 1)

	_, err = fs.GetAvailableEntries(1, SectorsPerLoad)
	require.Error(t, err)

	avail, err := fs.GetAvailableEntries(0, SectorsPerLoad)
	require.NoError(t, err)
	require.Len(t, avail, 1)
	require.EqualValues(t, SectorsPerSeal, avail[0].Len())
}

// GetAvailableEntries merges a contiguous run that ends exactly where the
// next batch's run begins into a single ChunkArray.
func TestGetAvailableEntriesCoalescesAcrossBatchBoundary(t *testing.T) {
	fs := newTestFlowStore(t)
	_, err := fs.AppendEntries(ChunkArray{
		StartIndex: SectorsPerLoad - SectorsPerSeal,
		Data:       fillSectors(2*SectorsPerSeal, 3),
	})
	require.NoError(t, err)

	avail, err := fs.GetAvailableEntries(0, 2*SectorsPerLoad)
	require.NoError(t, err)
	require.Len(t, avail, 1)
	require.EqualValues(t, SectorsPerLoad-SectorsPerSeal, avail[0].StartIndex)
	require.EqualValues(t, 2*SectorsPerSeal, avail[0].Len())
}

// S6: EstimateEntryCount is an over-estimate tracking whole batches, and
// pad metadata round-trips through the facade.
func TestEstimateEntryCountAndPadMetadata(t *testing.T) {
	fs := newTestFlowStore(t)
	n, err := fs.EstimateEntryCount()
	require.NoError(t, err)
	require.Zero(t, n)

	_, err = fs.AppendEntries(ChunkArray{StartIndex: 0, Data: fillSectors(SectorsPerSeal, 1)})
	require.NoError(t, err)
	n, err = fs.EstimateEntryCount()
	require.NoError(t, err)
	require.EqualValues(t, SectorsPerLoad, n)

	require.NoError(t, fs.PutPadData([]PadPair{{StartIndex: 1, DataSize: 2}}, 7))
	pairs, ok, err := fs.GetPadData(7)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []PadPair{{StartIndex: 1, DataSize: 2}}, pairs)

	require.NoError(t, fs.PutPadDataSyncHeight(55))
	h, ok, err := fs.GetPadDataSyncHeight()
	require.NoError(t, err)
	require.True(t, ok)
	require.EqualValues(t, 55, h)
}

func TestUpdateShardConfigRejectsInvalid(t *testing.T) {
	fs := newTestFlowStore(t)
	err := fs.UpdateShardConfig(ShardConfig{NumShard: 3, ShardID: 0})
	require.Error(t, err)

	require.NoError(t, fs.UpdateShardConfig(ShardConfig{NumShard: 2, ShardID: 1}))
	require.Equal(t, ShardConfig{NumShard: 2, ShardID: 1}, fs.GetShardConfig())
}

func TestSubtreeAndProof(t *testing.T) {
	fs := newTestFlowStore(t)
	_, err := fs.AppendEntries(ChunkArray{StartIndex: 0, Data: fillSectors(SectorsPerLoad, 4)})
	require.NoError(t, err)

	require.NoError(t, fs.InsertSubtreeListForBatch(0, []SubtreeEntry{
		{StartSector: 0, SectorCount: 1, Root: DataRoot{1}},
	}))

	proof, err := fs.GenProofInBatch(0, 0)
	require.NoError(t, err)
	require.Equal(t, 0, proof.SectorIdx)
}
