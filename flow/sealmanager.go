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
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/btree"
)

const pendingSetDegree = 32

// pendingItem is one (seal_index -> version) entry in the pending set,
// ordered by SealIndex for google/btree's Less-based ordering.
type pendingItem struct {
	SealIndex uint64
	Version   uint64
}

func (a pendingItem) Less(than btree.Item) bool {
	return a.SealIndex < than.(pendingItem).SealIndex
}

// SealManagerConfig is the policy knobs of the seal task manager - not
// correctness properties per spec.md §4.2.
type SealManagerConfig struct {
	// FreshnessWindow is how recently a sealer must have pulled for
	// SealWorkerAvailable to report true.
	FreshnessWindow time.Duration
}

// DefaultSealManagerConfig mirrors the original's 2-minute sealer-liveness
// heuristic.
func DefaultSealManagerConfig() SealManagerConfig {
	return SealManagerConfig{FreshnessWindow: 2 * time.Minute}
}

// SealTaskManager tracks which seal units are pending, at which version,
// and enforces the single read/write lock discipline spec.md §4.2/§5
// requires: append/truncate/submit take it exclusively, pull takes it
// shared.
type SealTaskManager struct {
	cfg SealManagerConfig

	mu      sync.RWMutex
	pending *btree.BTree // of pendingItem
	version uint64

	// lastPullNano/everPulled track sealer liveness independently of mu:
	// the pull path takes only a shared lock on the pending set yet records
	// the pull time, and AppendEntries reads liveness while holding the
	// exclusive lock, so this bookkeeping never takes mu itself.
	lastPullNano atomic.Int64
	everPulled   atomic.Bool
}

// NewSealTaskManager returns an empty manager at version 0.
func NewSealTaskManager(cfg SealManagerConfig) *SealTaskManager {
	return &SealTaskManager{cfg: cfg, pending: btree.New(pendingSetDegree)}
}

// IncSealVersion bumps and returns the new version, taking the exclusive
// lock itself.
func (m *SealTaskManager) IncSealVersion() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.incSealVersionLocked()
}

// IncSealVersionLocked is IncSealVersion for a caller that already holds
// the exclusive lock via Lock().
func (m *SealTaskManager) IncSealVersionLocked() uint64 {
	return m.incSealVersionLocked()
}

func (m *SealTaskManager) incSealVersionLocked() uint64 {
	m.version++
	return m.version
}

// ToSealVersion returns the current version, taking the shared lock itself.
func (m *SealTaskManager) ToSealVersion() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.version
}

// ToSealVersionLocked is ToSealVersion for a caller that already holds the
// lock (shared or exclusive) via RLock()/Lock().
func (m *SealTaskManager) ToSealVersionLocked() uint64 {
	return m.version
}

// UpdatePullTime records now as the last time a sealer polled. Safe to call
// regardless of whether the caller holds mu, shared or exclusive.
func (m *SealTaskManager) UpdatePullTime() {
	m.lastPullNano.Store(time.Now().UnixNano())
	m.everPulled.Store(true)
}

// SealWorkerAvailable reports whether a sealer has polled within the
// configured freshness window. Safe to call regardless of whether the
// caller holds mu.
func (m *SealTaskManager) SealWorkerAvailable() bool {
	if !m.everPulled.Load() {
		return false
	}
	last := time.Unix(0, m.lastPullNano.Load())
	return time.Since(last) <= m.cfg.FreshnessWindow
}

// insertLocked adds or overwrites a pending entry. Caller must hold mu for
// writing.
func (m *SealTaskManager) insertLocked(sealIndex, version uint64) {
	m.pending.ReplaceOrInsert(pendingItem{SealIndex: sealIndex, Version: version})
}

// Insert adds or overwrites a pending entry, taking the exclusive lock
// itself. Callers that already hold the lock (see Lock/Unlock below) must
// use InsertLocked instead.
func (m *SealTaskManager) Insert(sealIndex, version uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.insertLocked(sealIndex, version)
}

// InsertLocked is Insert for a caller that already holds the exclusive
// lock via Lock().
func (m *SealTaskManager) InsertLocked(sealIndex, version uint64) {
	m.insertLocked(sealIndex, version)
}

func (m *SealTaskManager) evictFromLocked(from uint64) {
	var toRemove []btree.Item
	m.pending.AscendGreaterOrEqual(pendingItem{SealIndex: from}, func(it btree.Item) bool {
		toRemove = append(toRemove, it)
		return true
	})
	for _, it := range toRemove {
		m.pending.Delete(it)
	}
}

// EvictFrom removes every pending entry with key >= from, under the
// exclusive lock (used by truncate, invariant 4/6 of spec.md §3/§8).
func (m *SealTaskManager) EvictFrom(from uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.evictFromLocked(from)
}

// EvictFromLocked is EvictFrom for a caller that already holds the
// exclusive lock via Lock().
func (m *SealTaskManager) EvictFromLocked(from uint64) {
	m.evictFromLocked(from)
}

// Remove deletes a single pending entry, taking the exclusive lock itself.
func (m *SealTaskManager) Remove(sealIndex uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending.Delete(pendingItem{SealIndex: sealIndex})
}

// RemoveLocked is Remove for a caller that already holds the exclusive
// lock via Lock().
func (m *SealTaskManager) RemoveLocked(sealIndex uint64) {
	m.pending.Delete(pendingItem{SealIndex: sealIndex})
}

// Get returns the version pending for sealIndex, if any.
func (m *SealTaskManager) Get(sealIndex uint64) (uint64, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getLocked(sealIndex)
}

func (m *SealTaskManager) getLocked(sealIndex uint64) (uint64, bool) {
	item := m.pending.Get(pendingItem{SealIndex: sealIndex})
	if item == nil {
		return 0, false
	}
	return item.(pendingItem).Version, true
}

// GetLocked is Get for a caller that already holds the lock (shared or
// exclusive) via RLock()/Lock().
func (m *SealTaskManager) GetLocked(sealIndex uint64) (uint64, bool) {
	return m.getLocked(sealIndex)
}

// PullBatchLocked returns the smallest pending entry together with every
// later entry in the same batch that is strictly below max. The caller
// must hold at least a shared lock (via RLock) and is responsible for
// recording the pull time itself (see SealTaskManager.UpdatePullTime).
func (m *SealTaskManager) PullBatchLocked(max uint64) []pendingItem {
	var first pendingItem
	haveFirst := false
	var out []pendingItem
	m.pending.Ascend(func(it btree.Item) bool {
		cur := it.(pendingItem)
		if !haveFirst {
			if cur.SealIndex >= max {
				return false
			}
			first = cur
			haveFirst = true
			out = append(out, cur)
			return true
		}
		if cur.SealIndex/SealsPerLoad != first.SealIndex/SealsPerLoad || cur.SealIndex >= max {
			return false
		}
		out = append(out, cur)
		return true
	})
	return out
}

// deleteBatchListLocked removes all pending seal units whose batch index is
// in indices. Caller must hold mu for writing.
func (m *SealTaskManager) deleteBatchListLocked(indices []uint64) {
	set := make(map[uint64]struct{}, len(indices))
	for _, i := range indices {
		set[i] = struct{}{}
	}
	var toRemove []btree.Item
	m.pending.Ascend(func(it btree.Item) bool {
		cur := it.(pendingItem)
		if _, ok := set[cur.SealIndex/SealsPerLoad]; ok {
			toRemove = append(toRemove, it)
		}
		return true
	})
	for _, it := range toRemove {
		m.pending.Delete(it)
	}
}

// DeleteBatchList removes all pending seal units whose batch index is in
// indices, taking the exclusive lock itself.
func (m *SealTaskManager) DeleteBatchList(indices []uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleteBatchListLocked(indices)
}

// DeleteBatchListLocked is DeleteBatchList for a caller that already holds
// the exclusive lock via Lock().
func (m *SealTaskManager) DeleteBatchListLocked(indices []uint64) {
	m.deleteBatchListLocked(indices)
}

// Lock/Unlock/RLock/RUnlock expose the manager's lock directly so
// FlowStore can hold it exclusively across append_entries/truncate/
// submit_seal_result - each of which touches both the pending set and the
// KV batches under the same critical section, per spec.md §5.
func (m *SealTaskManager) Lock()    { m.mu.Lock() }
func (m *SealTaskManager) Unlock()  { m.mu.Unlock() }
func (m *SealTaskManager) RLock()   { m.mu.RLock() }
func (m *SealTaskManager) RUnlock() { m.mu.RUnlock() }
