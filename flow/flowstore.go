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
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/flowmesh/flowstore/kv"
	"github.com/flowmesh/flowstore/log"
	"github.com/flowmesh/flowstore/metrics"
)

// FlowRead is the read surface of the flow storage engine.
type FlowRead interface {
	GetEntries(start, end uint64) ([]ChunkArray, bool, error)
	GetAvailableEntries(start, end uint64) ([]ChunkArray, error)
	LoadSealedData(loadIndex uint64) (*MineLoadChunk, error)
	EstimateEntryCount() (uint64, error)
	GetShardConfig() ShardConfig
	GetPadData(txSeq uint64) ([]PadPair, bool, error)
	GetPadDataSyncHeight() (uint64, bool, error)
}

// FlowWrite is the mutating surface of the flow storage engine.
type FlowWrite interface {
	AppendEntries(data ChunkArray) ([]IndexedRoot, error)
	Truncate(startIndex uint64) error
	UpdateShardConfig(cfg ShardConfig) error
	PutPadData(pairs []PadPair, txSeq uint64) error
	PutPadDataSyncHeight(height uint64) error
}

// FlowSeal is the reconciliation protocol between the engine and external
// sealer workers.
type FlowSeal interface {
	PullSealChunk(maxSealIndex uint64) ([]SealTask, error)
	SubmitSealResult(answers []SealAnswer) error
}

// FlowProofReader exposes the partial-Merkle-witness bookkeeping an
// external proof system drives.
type FlowProofReader interface {
	InsertSubtreeListForBatch(batchIndex uint64, list []SubtreeEntry) error
	GenProofInBatch(batchIndex uint64, sectorIdx int) (FlowProof, error)
}

// FlowStore is the facade composing the flow DB, the pad/Merkle-node DB, the
// seal task manager, and the shard assignment into the single entry point
// spec.md §5 describes: append_entries/truncate/submit_seal_result take the
// seal manager's lock exclusively; pull_seal_chunk takes it shared.
type FlowStore struct {
	// flowDB serves entry batches and the pad sync-height cursor.
	flowDB *FlowDBStore
	// dataDB serves the pad data list and the persistent Merkle node store.
	dataDB *FlowDBStore

	sealMgr *SealTaskManager
	shard   *SharedShardConfig
	cfg     Config
}

// NewFlowStore wires a FlowStore over the two backing KV handles. flowDB and
// dataDB may be the same physical store opened twice or two distinct ones -
// the facade does not assume either way.
func NewFlowStore(flowDB, dataDB kv.RwDB, cfg Config) *FlowStore {
	return &FlowStore{
		flowDB:  NewFlowDBStore(flowDB),
		dataDB:  NewFlowDBStore(dataDB),
		sealMgr: NewSealTaskManager(cfg.SealManager),
		shard:   NewSharedShardConfig(cfg.Shard),
		cfg:     cfg,
	}
}

var (
	timerGetEntries          = metrics.GetOrRegisterTimer("flow/get_entries")
	timerGetAvailableEntries = metrics.GetOrRegisterTimer("flow/get_available_entries")
	timerAppendEntries       = metrics.GetOrRegisterTimer("flow/append_entries")
	timerTruncate            = metrics.GetOrRegisterTimer("flow/truncate")
	timerPullSealChunk       = metrics.GetOrRegisterTimer("flow/pull_seal_chunk")
	timerSubmitSealResult    = metrics.GetOrRegisterTimer("flow/submit_seal_result")
)

// clipChunk returns the overlap of c with [lo, hi), or ok=false if disjoint.
func clipChunk(c ChunkArray, lo, hi uint64) (ChunkArray, bool) {
	start := c.StartIndex
	if lo > start {
		start = lo
	}
	end := c.StartIndex + c.Len()
	if hi < end {
		end = hi
	}
	if end <= start {
		return ChunkArray{}, false
	}
	return c.SubArray(start, end)
}

// GetEntries returns the raw sector data for [start, end). If any sector in
// that range is absent, it returns ok=false rather than an error - an
// unsatisfiable range is a normal outcome here, not a store failure.
func (s *FlowStore) GetEntries(start, end uint64) ([]ChunkArray, bool, error) {
	defer timerGetEntries.UpdateSince(time.Now())
	ranges := BatchIter(start, end, SectorsPerLoad)
	out := make([]ChunkArray, 0, len(ranges))
	for _, r := range ranges {
		batchIndex := r.Start / SectorsPerLoad
		batch, ok, err := s.flowDB.GetEntryBatch(batchIndex)
		if err != nil {
			return nil, false, err
		}
		if !ok {
			return nil, false, nil
		}
		localStart := r.Start % SectorsPerLoad
		data, ok := batch.GetUnsealedData(localStart, r.End-r.Start)
		if !ok {
			return nil, false, nil
		}
		out = append(out, ChunkArray{StartIndex: r.Start, Data: data})
	}
	return out, true, nil
}

// GetAvailableEntries returns whatever sector data this shard holds within
// [start, end), coalesced per maximal contiguous run. Both endpoints must be
// batch-aligned. Batches are fetched concurrently, one goroutine per batch
// with no concurrency limit set, since each fetch is an independent
// read-only lookup.
func (s *FlowStore) GetAvailableEntries(start, end uint64) ([]ChunkArray, error) {
	defer timerGetAvailableEntries.UpdateSince(time.Now())
	if start%SectorsPerLoad != 0 || end%SectorsPerLoad != 0 {
		return nil, newErr("FlowStore.GetAvailableEntries", ErrInvalidArgument, nil)
	}
	ranges := BatchIterSharded(start, end, SectorsPerLoad, s.shard.Get())
	if len(ranges) == 0 {
		return nil, nil
	}
	perRange := make([][]ChunkArray, len(ranges))
	g, _ := errgroup.WithContext(context.Background())
	for i, r := range ranges {
		i, r := i, r
		g.Go(func() error {
			batchIndex := r.Start / SectorsPerLoad
			batch, ok, err := s.flowDB.GetEntryBatch(batchIndex)
			if err != nil {
				return err
			}
			if !ok {
				return nil
			}
			absStart := batchIndex * SectorsPerLoad
			for _, c := range batch.IntoDataList(absStart) {
				if sub, ok := clipChunk(c, r.Start, r.End); ok {
					perRange[i] = append(perRange[i], sub)
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	var out []ChunkArray
	for _, rs := range perRange {
		for _, c := range rs {
			if n := len(out); n > 0 {
				last := out[n-1]
				if last.StartIndex+last.Len() == c.StartIndex {
					merged := make([]byte, 0, len(last.Data)+len(c.Data))
					merged = append(merged, last.Data...)
					merged = append(merged, c.Data...)
					out[n-1] = ChunkArray{StartIndex: last.StartIndex, Data: merged}
					continue
				}
			}
			out = append(out, c)
		}
	}
	return out, nil
}

// LoadSealedData builds the mining chunk for loadIndex (a batch index),
// with Availabilities marking which local seal units actually hold sealed
// bytes. A wholly absent batch yields an empty chunk rather than an error.
func (s *FlowStore) LoadSealedData(loadIndex uint64) (*MineLoadChunk, error) {
	chunk := NewMineLoadChunk()
	batch, ok, err := s.flowDB.GetEntryBatch(loadIndex)
	if err != nil || !ok {
		return chunk, err
	}
	for local := 0; local < SealsPerLoad; local++ {
		data, ok := batch.GetSealedData(uint16(local))
		if !ok {
			continue
		}
		chunk.LoadedChunk[local] = data
		chunk.Availabilities.Add(uint32(local))
	}
	return chunk, nil
}

// EstimateEntryCount returns an over-estimate of the number of entries
// stored, computed from the batch count rather than exact sector presence -
// callers must not treat this as exact (see SPEC_FULL.md §9).
func (s *FlowStore) EstimateEntryCount() (uint64, error) {
	n, err := s.flowDB.NumBatchKeys()
	if err != nil {
		return 0, err
	}
	return n * SectorsPerLoad, nil
}

// GetShardConfig returns the store's current shard assignment.
func (s *FlowStore) GetShardConfig() ShardConfig {
	return s.shard.Get()
}

// NodeStore exposes the persistent Merkle node store so an external,
// incremental Merkle-tree algorithm can be built against it through the
// NodeDatabase interface, per SPEC_FULL.md §6.
func (s *FlowStore) NodeStore() NodeDatabase {
	return s.dataDB
}

// GetPadData reads the pad-pair list recorded for a transaction sequence
// number.
func (s *FlowStore) GetPadData(txSeq uint64) ([]PadPair, bool, error) {
	return s.dataDB.GetPadData(txSeq)
}

// GetPadDataSyncHeight reads the pad-metadata sync cursor.
func (s *FlowStore) GetPadDataSyncHeight() (uint64, bool, error) {
	return s.flowDB.GetPadDataSyncHeight()
}

// AppendEntries writes data, which may span several batches, creating
// batches as needed. Any seal unit that becomes data-complete is queued for
// sealing only if a sealer has polled recently (seal_worker_available),
// matching spec.md §4.2/§8's "gating, not retroactive discovery" rule. It
// returns the (index, root) of every batch that became complete as a
// result of this write.
func (s *FlowStore) AppendEntries(data ChunkArray) ([]IndexedRoot, error) {
	defer timerAppendEntries.UpdateSince(time.Now())
	s.sealMgr.Lock()
	defer s.sealMgr.Unlock()

	ranges := BatchIter(data.StartIndex, data.StartIndex+data.Len(), SectorsPerLoad)
	if len(ranges) == 0 {
		return nil, nil
	}
	version := s.sealMgr.ToSealVersionLocked()
	workerAvailable := s.sealMgr.SealWorkerAvailable()

	toPut := make([]IndexedBatch, 0, len(ranges))
	for _, r := range ranges {
		batchIndex := r.Start / SectorsPerLoad
		localOffset := r.Start % SectorsPerLoad

		batch, ok, err := s.flowDB.GetEntryBatch(batchIndex)
		if err != nil {
			return nil, err
		}
		if !ok {
			batch = NewEntryBatch(batchIndex)
		}

		sub, ok := data.SubArray(r.Start, r.End)
		if !ok {
			return nil, newErr("FlowStore.AppendEntries", ErrInvalidArgument, nil)
		}
		completed, err := batch.InsertData(localOffset, sub.Data)
		if err != nil {
			return nil, err
		}

		if workerAvailable {
			for _, localSeal := range completed {
				global := batchIndex*SealsPerLoad + uint64(localSeal)
				s.sealMgr.InsertLocked(global, version)
			}
		} else if len(completed) > 0 {
			log.L().Debugw("append_entries: seal units complete but no sealer live, not queued",
				"batch", batchIndex, "count", len(completed))
		}

		toPut = append(toPut, IndexedBatch{Index: batchIndex, Batch: batch})
	}

	roots, err := s.flowDB.PutEntryBatchList(toPut)
	if err != nil {
		return nil, err
	}
	log.L().Debugw("append_entries", "start", data.StartIndex, "len", data.Len())
	return roots, nil
}

// Truncate drops all data at or beyond startIndex and bumps the seal
// version so any in-flight answer for an evicted or resealed unit is
// rejected as stale (invariant 4). The boundary seal unit that survives a
// partial truncation and was previously sealed is re-queued at the new
// version (invariant 6).
func (s *FlowStore) Truncate(startIndex uint64) error {
	defer timerTruncate.UpdateSince(time.Now())
	s.sealMgr.Lock()
	defer s.sealMgr.Unlock()

	reseal, err := s.flowDB.Truncate(startIndex, SectorsPerLoad)
	if err != nil {
		return err
	}

	boundarySeal := startIndex / SectorsPerSeal
	s.sealMgr.EvictFromLocked(boundarySeal)
	newVersion := s.sealMgr.IncSealVersionLocked()
	for _, global := range reseal {
		s.sealMgr.InsertLocked(global, newVersion)
	}

	log.L().Debugw("truncate", "start_index", startIndex, "reseal_count", len(reseal))
	return nil
}

// UpdateShardConfig validates and installs a new shard assignment.
func (s *FlowStore) UpdateShardConfig(cfg ShardConfig) error {
	if !cfg.Valid() {
		return newErr("FlowStore.UpdateShardConfig", ErrInvalidArgument, nil)
	}
	s.shard.Set(cfg)
	return nil
}

// PutPadData overwrites the pad-pair list recorded for txSeq.
func (s *FlowStore) PutPadData(pairs []PadPair, txSeq uint64) error {
	return s.dataDB.PutPadData(pairs, txSeq)
}

// PutPadDataSyncHeight overwrites the pad-metadata sync cursor.
func (s *FlowStore) PutPadDataSyncHeight(height uint64) error {
	return s.flowDB.PutPadDataSyncHeight(height)
}

// PullSealChunk returns one batch's worth of pending seal tasks below
// maxSealIndex and records the pull for seal_worker_available's liveness
// check, taking the seal manager's lock only shared.
func (s *FlowStore) PullSealChunk(maxSealIndex uint64) ([]SealTask, error) {
	defer timerPullSealChunk.UpdateSince(time.Now())
	s.sealMgr.RLock()
	items := s.sealMgr.PullBatchLocked(maxSealIndex)
	s.sealMgr.RUnlock()
	s.sealMgr.UpdatePullTime()

	if len(items) == 0 {
		return nil, nil
	}
	tasks := make([]SealTask, 0, len(items))
	for _, it := range items {
		batchIndex := it.SealIndex / SealsPerLoad
		localIdx := uint16(it.SealIndex % SealsPerLoad)

		batch, ok, err := s.flowDB.GetEntryBatch(batchIndex)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		data, ok := batch.GetNonSealedData(localIdx)
		if !ok {
			continue
		}
		tasks = append(tasks, SealTask{SealIndex: it.SealIndex, Version: it.Version, NonSealedData: data})
	}
	return tasks, nil
}

// SubmitSealResult applies every answer whose version still matches the
// pending set - a stale version (the unit was truncated, resealed, or
// already answered) is logged and dropped rather than applied.
func (s *FlowStore) SubmitSealResult(answers []SealAnswer) error {
	defer timerSubmitSealResult.UpdateSince(time.Now())
	s.sealMgr.Lock()
	defer s.sealMgr.Unlock()

	accepted := make(map[uint64][]BatchSealResult)
	for _, ans := range answers {
		cur, ok := s.sealMgr.GetLocked(ans.SealIndex)
		if !ok || cur != ans.Version {
			log.L().Debugw("submit_seal_result: stale answer dropped", "seal_index", ans.SealIndex, "version", ans.Version)
			continue
		}
		batchIndex := ans.SealIndex / SealsPerLoad
		local := uint16(ans.SealIndex % SealsPerLoad)
		accepted[batchIndex] = append(accepted[batchIndex], BatchSealResult{
			LocalSealIndex: local,
			SealedData:     ans.SealedData,
			MiningProof:    ans.MiningProof,
		})
	}
	if len(accepted) == 0 {
		return nil
	}

	toPut := make([]IndexedBatch, 0, len(accepted))
	for batchIndex, results := range accepted {
		batch, ok, err := s.flowDB.GetEntryBatch(batchIndex)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		for _, r := range results {
			if err := batch.SubmitSealResult(r); err != nil {
				return err
			}
			s.sealMgr.RemoveLocked(batchIndex*SealsPerLoad + uint64(r.LocalSealIndex))
		}
		toPut = append(toPut, IndexedBatch{Index: batchIndex, Batch: batch})
	}
	return s.flowDB.PutEntryRaw(toPut)
}

// InsertSubtreeListForBatch records a partial-Merkle witness list against
// an in-progress batch.
func (s *FlowStore) InsertSubtreeListForBatch(batchIndex uint64, list []SubtreeEntry) error {
	batch, ok, err := s.flowDB.GetEntryBatch(batchIndex)
	if err != nil {
		return err
	}
	if !ok {
		return newErr("FlowStore.InsertSubtreeListForBatch", ErrNotFound, nil)
	}
	batch.SetSubtreeList(list)
	return s.flowDB.PutEntryRaw([]IndexedBatch{{Index: batchIndex, Batch: batch}})
}

// GenProofInBatch returns the inclusion proof for sectorIdx within
// batchIndex, which must be data-complete.
func (s *FlowStore) GenProofInBatch(batchIndex uint64, sectorIdx int) (FlowProof, error) {
	batch, ok, err := s.flowDB.GetEntryBatch(batchIndex)
	if err != nil {
		return FlowProof{}, err
	}
	if !ok {
		return FlowProof{}, newErr("FlowStore.GenProofInBatch", ErrNotFound, nil)
	}
	tree, err := batch.ToMerkleTree(batchIndex == 0)
	if err != nil {
		return FlowProof{}, err
	}
	return tree.GenProof(sectorIdx)
}
