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
	"encoding/binary"

	"github.com/flowmesh/flowstore/kv"
	"github.com/flowmesh/flowstore/log"
)

// FlowDBStore persists entry batches, pad metadata, and Merkle nodes over a
// single transactional KV handle. A FlowStore facade (flowstore.go) holds
// two FlowDBStore instances - one serving entry batches and pad sync
// height, one serving pad data lists and Merkle nodes - which may wrap the
// same physical store or two distinct ones (spec.md §5).
type FlowDBStore struct {
	db kv.RwDB
}

// NewFlowDBStore wraps db as a FlowDBStore.
func NewFlowDBStore(db kv.RwDB) *FlowDBStore {
	return &FlowDBStore{db: db}
}

func (s *FlowDBStore) get(table string, key []byte) ([]byte, bool, error) {
	var value []byte
	var ok bool
	err := s.db.View(func(tx kv.Tx) error {
		v, has, err := tx.Get(table, key)
		if err != nil {
			return err
		}
		if has {
			value = append([]byte(nil), v...)
			ok = true
		}
		return nil
	})
	if err != nil {
		return nil, false, newErr("FlowDBStore.get", ErrKVFailure, err)
	}
	return value, ok, nil
}

// GetEntryBatch reads and decodes the batch at batchIndex. A decode failure
// is treated as fatal data corruption, matching spec.md §7.
func (s *FlowDBStore) GetEntryBatch(batchIndex uint64) (*EntryBatch, bool, error) {
	raw, ok, err := s.get(ColEntryBatch, batchIndexKey(batchIndex))
	if err != nil || !ok {
		return nil, false, err
	}
	batch, err := UnmarshalEntryBatch(raw)
	if err != nil {
		return nil, false, err
	}
	return batch, true, nil
}

// IndexedBatch pairs a batch index with the batch to be persisted at it.
type IndexedBatch struct {
	Index uint64
	Batch *EntryBatch
}

// IndexedRoot pairs a batch index with the root it completed at.
type IndexedRoot struct {
	Index uint64
	Root  DataRoot
}

// PutEntryBatchList writes every batch in one transaction. For any batch
// that is now complete (BuildRoot returns non-nil), its (index, root) is
// appended to the returned list in input order.
func (s *FlowDBStore) PutEntryBatchList(list []IndexedBatch) ([]IndexedRoot, error) {
	var completed []IndexedRoot
	err := s.db.Update(func(rw kv.RwTx) error {
		for _, ib := range list {
			raw, err := ib.Batch.Marshal()
			if err != nil {
				return err
			}
			rw.Put(ColEntryBatch, batchIndexKey(ib.Index), raw)

			root, err := ib.Batch.BuildRoot(ib.Index == 0)
			if err != nil {
				return err
			}
			if root != nil {
				log.L().Debugw("complete batch", "index", ib.Index)
				completed = append(completed, IndexedRoot{Index: ib.Index, Root: root.Root})
			}
		}
		return nil
	})
	if err != nil {
		return nil, newErr("FlowDBStore.PutEntryBatchList", ErrKVFailure, err)
	}
	return completed, nil
}

// PutEntryRaw writes every batch in one transaction without completion
// detection - used for idempotent overwrites (seal submission, subtree
// updates).
func (s *FlowDBStore) PutEntryRaw(list []IndexedBatch) error {
	err := s.db.Update(func(rw kv.RwTx) error {
		for _, ib := range list {
			raw, err := ib.Batch.Marshal()
			if err != nil {
				return err
			}
			rw.Put(ColEntryBatch, batchIndexKey(ib.Index), raw)
		}
		return nil
	})
	if err != nil {
		return newErr("FlowDBStore.PutEntryRaw", ErrKVFailure, err)
	}
	return nil
}

// DeleteBatchList deletes every listed batch in one transaction.
func (s *FlowDBStore) DeleteBatchList(indices []uint64) error {
	err := s.db.Update(func(rw kv.RwTx) error {
		for _, idx := range indices {
			rw.Delete(ColEntryBatch, batchIndexKey(idx))
		}
		return nil
	})
	if err != nil {
		return newErr("FlowDBStore.DeleteBatchList", ErrKVFailure, err)
	}
	return nil
}

// Truncate drops all batch data at or beyond startIndex. batchSize is the
// deployment's SectorsPerLoad. It returns the globally-indexed seal units
// that must be re-sealed because they were sealed but their underlying
// sectors survived a partial truncation of the boundary batch.
func (s *FlowDBStore) Truncate(startIndex uint64, batchSize uint64) ([]uint64, error) {
	var reseal []uint64
	err := s.db.Update(func(rw kv.RwTx) error {
		startBatch := startIndex / batchSize
		offset := startIndex % batchSize

		if offset != 0 {
			raw, has, err := rw.Get(ColEntryBatch, batchIndexKey(startBatch))
			if err != nil {
				return err
			}
			if has {
				batch, err := UnmarshalEntryBatch(raw)
				if err != nil {
					return err
				}
				localReseal := batch.Truncate(offset)
				for _, local := range localReseal {
					reseal = append(reseal, startBatch*SealsPerLoad+uint64(local))
				}
				if !batch.IsEmpty() {
					newRaw, err := batch.Marshal()
					if err != nil {
						return err
					}
					rw.Put(ColEntryBatch, batchIndexKey(startBatch), newRaw)
				} else {
					rw.Delete(ColEntryBatch, batchIndexKey(startBatch))
				}
			}
			startBatch++
		}

		maxKey, _, has, err := rw.Last(ColEntryBatch)
		if err != nil {
			return err
		}
		if !has {
			return nil
		}
		maxIndex, ok := decodeBatchIndexKey(maxKey)
		if !ok {
			return newErr("FlowDBStore.Truncate", ErrCodec, nil)
		}
		if startBatch > maxIndex {
			return nil
		}

		deleteBatchRange(rw, startBatch, maxIndex)
		return nil
	})
	if err != nil {
		return nil, newErr("FlowDBStore.Truncate", ErrKVFailure, err)
	}
	return reseal, nil
}

// deleteBatchRange deletes every batch key in [start, end] within rw's
// transaction.
func deleteBatchRange(rw kv.RwTx, start, end uint64) {
	for i := start; i <= end; i++ {
		rw.Delete(ColEntryBatch, batchIndexKey(i))
	}
}

// PutPadData stores the concatenation of pairs' canonical encoding under
// tx_seq, overwriting any existing record.
func (s *FlowDBStore) PutPadData(pairs []PadPair, txSeq uint64) error {
	buf := EncodePadPairList(pairs)
	err := s.db.Update(func(rw kv.RwTx) error {
		rw.Put(ColPadDataList, txSeqKey(txSeq), buf)
		return nil
	})
	if err != nil {
		return newErr("FlowDBStore.PutPadData", ErrKVFailure, err)
	}
	return nil
}

// GetPadData decodes the full pad-pair list stored under txSeq.
func (s *FlowDBStore) GetPadData(txSeq uint64) ([]PadPair, bool, error) {
	raw, ok, err := s.get(ColPadDataList, txSeqKey(txSeq))
	if err != nil || !ok {
		return nil, false, err
	}
	list, err := DecodePadPairList(raw)
	if err != nil {
		return nil, false, err
	}
	return list, true, nil
}

// PutPadDataSyncHeight overwrites the scalar sync-height cursor.
func (s *FlowDBStore) PutPadDataSyncHeight(height uint64) error {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, height)
	err := s.db.Update(func(rw kv.RwTx) error {
		rw.Put(ColPadDataSyncHeight, padSyncHeightKey, buf)
		return nil
	})
	if err != nil {
		return newErr("FlowDBStore.PutPadDataSyncHeight", ErrKVFailure, err)
	}
	return nil
}

// GetPadDataSyncHeight reads the scalar sync-height cursor.
func (s *FlowDBStore) GetPadDataSyncHeight() (uint64, bool, error) {
	raw, ok, err := s.get(ColPadDataSyncHeight, padSyncHeightKey)
	if err != nil || !ok {
		return 0, false, err
	}
	if len(raw) != 8 {
		return 0, false, newErr("FlowDBStore.GetPadDataSyncHeight", ErrCodec, nil)
	}
	return binary.BigEndian.Uint64(raw), true, nil
}

// NumBatchKeys returns the number of ColEntryBatch keys currently stored.
func (s *FlowDBStore) NumBatchKeys() (uint64, error) {
	var n uint64
	err := s.db.View(func(tx kv.Tx) error {
		var err error
		n, err = tx.NumKeys(ColEntryBatch)
		return err
	})
	if err != nil {
		return 0, newErr("FlowDBStore.NumBatchKeys", ErrKVFailure, err)
	}
	return n, nil
}
