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
	"crypto/sha256"
	"fmt"

	"github.com/RoaringBitmap/roaring/v2"
)

// SubtreeEntry is a partial Merkle witness recorded for a contiguous
// sub-range of a batch's sectors before the batch as a whole is complete.
type SubtreeEntry struct {
	StartSector int
	SectorCount int
	Root        DataRoot
}

// EntryBatch holds up to SectorsPerLoad sectors, their seal state, and any
// recorded subtree witnesses for one batch. This is component C of
// SPEC_FULL.md §2 - external to the original spec's budget, implemented
// here in full because this rewrite is a single module.
type EntryBatch struct {
	batchIndex uint64

	// data is the dense byte buffer for all SectorsPerLoad sectors;
	// bytes outside the presence bitmap are meaningless.
	data []byte

	// presence marks which local sector indices hold written raw data.
	presence *roaring.Bitmap

	// dataCompleteSeals marks local seal-unit indices whose
	// SectorsPerSeal sectors are all present, i.e. ready to be sealed.
	dataCompleteSeals *roaring.Bitmap

	// sealedPresence marks local seal-unit indices that have sealed
	// bytes recorded.
	sealedPresence *roaring.Bitmap
	sealedData     [][]byte // length SealsPerLoad, indexed by local seal unit

	subtreeList []SubtreeEntry
}

func newEmptyEntryBatch() *EntryBatch {
	return &EntryBatch{
		data:              make([]byte, SectorsPerLoad*BytesPerSector),
		presence:          roaring.New(),
		dataCompleteSeals: roaring.New(),
		sealedPresence:    roaring.New(),
		sealedData:        make([][]byte, SealsPerLoad),
	}
}

// NewEntryBatch returns an empty batch for the given global batch index.
func NewEntryBatch(batchIndex uint64) *EntryBatch {
	b := newEmptyEntryBatch()
	b.batchIndex = batchIndex
	return b
}

// IsEmpty reports whether the batch holds no raw sector data at all.
func (b *EntryBatch) IsEmpty() bool {
	return b.presence.IsEmpty()
}

func sectorOffset(localSector uint64) int { return int(localSector) * BytesPerSector }

// InsertData writes data (a whole number of sectors) at localOffset and
// returns the local seal-unit indices that became fully data-complete as a
// result of this write.
func (b *EntryBatch) InsertData(localOffset uint64, data []byte) ([]uint16, error) {
	if len(data)%BytesPerSector != 0 {
		return nil, newErr("EntryBatch.InsertData", ErrInvalidArgument, fmt.Errorf("len %d is not sector-aligned", len(data)))
	}
	numSectors := uint64(len(data)) / BytesPerSector
	if localOffset+numSectors > SectorsPerLoad {
		return nil, newErr("EntryBatch.InsertData", ErrInvalidArgument, fmt.Errorf("range [%d,%d) exceeds batch size", localOffset, localOffset+numSectors))
	}
	copy(b.data[sectorOffset(localOffset):], data)

	affectedSeals := make(map[uint16]struct{})
	for s := localOffset; s < localOffset+numSectors; s++ {
		b.presence.Add(uint32(s))
		affectedSeals[uint16(s/SectorsPerSeal)] = struct{}{}
	}

	var completed []uint16
	for seal := range affectedSeals {
		if b.dataCompleteSeals.Contains(uint32(seal)) {
			continue
		}
		if b.sealUnitDataComplete(seal) {
			b.dataCompleteSeals.Add(uint32(seal))
			completed = append(completed, seal)
		}
	}
	return completed, nil
}

func (b *EntryBatch) sealUnitDataComplete(localSealIdx uint16) bool {
	start := uint32(localSealIdx) * SectorsPerSeal
	return b.presence.ContainsRange(uint64(start), uint64(start)+SectorsPerSeal)
}

// GetUnsealedData returns the raw bytes of [offset, offset+length) local
// sectors, or ok=false if any sector in that range has no data.
func (b *EntryBatch) GetUnsealedData(offset, length uint64) ([]byte, bool) {
	if length == 0 || offset+length > SectorsPerLoad {
		return nil, false
	}
	if !b.presence.ContainsRange(offset, offset+length) {
		return nil, false
	}
	out := make([]byte, length*BytesPerSector)
	copy(out, b.data[sectorOffset(offset):sectorOffset(offset+length)])
	return out, true
}

// GetSealedData returns the sealed bytes for a local seal unit, or
// ok=false if it has not been sealed.
func (b *EntryBatch) GetSealedData(localSealIdx uint16) ([]byte, bool) {
	if !b.sealedPresence.Contains(uint32(localSealIdx)) {
		return nil, false
	}
	return b.sealedData[localSealIdx], true
}

// GetNonSealedData returns the raw bytes of a data-complete seal unit, for
// shipping to an external sealer.
func (b *EntryBatch) GetNonSealedData(localSealIdx uint16) ([]byte, bool) {
	if !b.dataCompleteSeals.Contains(uint32(localSealIdx)) {
		return nil, false
	}
	start := uint64(localSealIdx) * SectorsPerSeal
	return b.GetUnsealedData(start, SectorsPerSeal)
}

// BatchSealResult is what an external sealer returns for one seal unit
// within this batch, addressed by local index.
type BatchSealResult struct {
	LocalSealIndex uint16
	SealedData     []byte
	MiningProof    []byte
}

// SubmitSealResult records a sealer's answer for one seal unit. It fails
// iff the answer is self-inconsistent (wrong length sealed payload).
func (b *EntryBatch) SubmitSealResult(r BatchSealResult) error {
	if len(r.SealedData) != SectorsPerSeal*BytesPerSector {
		return newErr("EntryBatch.SubmitSealResult", ErrInvalidArgument,
			fmt.Errorf("sealed payload length %d != %d", len(r.SealedData), SectorsPerSeal*BytesPerSector))
	}
	b.sealedData[r.LocalSealIndex] = r.SealedData
	b.sealedPresence.Add(uint32(r.LocalSealIndex))
	return nil
}

// Truncate drops every local sector >= localOffset and returns the local
// seal-unit indices that must be re-sealed: the boundary seal unit, if it
// was previously sealed and some of its sectors survive the truncation.
func (b *EntryBatch) Truncate(localOffset uint64) []uint16 {
	if localOffset >= SectorsPerLoad {
		return nil
	}
	boundarySeal := uint16(localOffset / SectorsPerSeal)
	partial := localOffset%SectorsPerSeal != 0

	var reseal []uint16
	if partial && b.sealedPresence.Contains(uint32(boundarySeal)) {
		reseal = append(reseal, boundarySeal)
	}

	b.presence.RemoveRange(localOffset, SectorsPerLoad)
	for s := uint32(boundarySeal); s < SealsPerLoad; s++ {
		b.dataCompleteSeals.Remove(s)
		b.sealedPresence.Remove(s)
		b.sealedData[s] = nil
	}
	return reseal
}

// IntoDataList returns the maximal contiguous runs of present raw sector
// data, with StartIndex translated to the global index space by adding
// absStart (the global index of local sector 0).
func (b *EntryBatch) IntoDataList(absStart uint64) []ChunkArray {
	var out []ChunkArray
	var runStart int64 = -1
	flush := func(end uint64) {
		if runStart < 0 {
			return
		}
		lo, hi := uint64(runStart), end
		out = append(out, ChunkArray{
			StartIndex: absStart + lo,
			Data:       append([]byte(nil), b.data[sectorOffset(lo):sectorOffset(hi)]...),
		})
		runStart = -1
	}
	for i := uint64(0); i < SectorsPerLoad; i++ {
		if b.presence.Contains(uint32(i)) {
			if runStart < 0 {
				runStart = int64(i)
			}
		} else {
			flush(i)
		}
	}
	flush(SectorsPerLoad)
	return out
}

// SetSubtreeList replaces the batch's recorded partial-Merkle witnesses.
func (b *EntryBatch) SetSubtreeList(list []SubtreeEntry) {
	b.subtreeList = append([]SubtreeEntry(nil), list...)
}

// BatchMerkleTree is the minimal Merkle commitment EntryBatch computes
// over its own sectors. The flow-wide incremental Merkle tree that
// consumes the NodeDatabase interface is an external collaborator per
// spec.md §1; this is only the self-contained per-batch root/proof used by
// BuildRoot and GenProof.
type BatchMerkleTree struct {
	leaves []DataRoot
}

func sectorLeafHash(isFirst bool, sectorIdx int, sector []byte) DataRoot {
	if isFirst && sectorIdx == 0 {
		return DataRoot{}
	}
	return DataRoot(sha256.Sum256(sector))
}

// ToMerkleTree builds the batch's leaf-level commitments. isFirst activates
// the genesis-sector rule: local sector 0 of batch 0 is a padding artifact
// and is committed as the zero root rather than its actual bytes. Returns
// an error if the batch is not yet data-complete.
func (b *EntryBatch) ToMerkleTree(isFirst bool) (*BatchMerkleTree, error) {
	if uint64(b.presence.GetCardinality()) != SectorsPerLoad {
		return nil, newErr("EntryBatch.ToMerkleTree", ErrInvalidArgument, fmt.Errorf("batch %d incomplete", b.batchIndex))
	}
	leaves := make([]DataRoot, SectorsPerLoad)
	for i := 0; i < SectorsPerLoad; i++ {
		leaves[i] = sectorLeafHash(isFirst, i, b.data[sectorOffset(uint64(i)):sectorOffset(uint64(i+1))])
	}
	for _, s := range b.subtreeList {
		if s.SectorCount == 1 {
			leaves[s.StartSector] = s.Root
		}
	}
	return &BatchMerkleTree{leaves: leaves}, nil
}

// Root folds the tree's leaves pairwise up to a single root.
func (t *BatchMerkleTree) Root() DataRoot {
	level := t.leaves
	for len(level) > 1 {
		next := make([]DataRoot, (len(level)+1)/2)
		for i := range next {
			lo := level[2*i]
			if 2*i+1 < len(level) {
				hi := level[2*i+1]
				h := sha256.New()
				h.Write(lo[:])
				h.Write(hi[:])
				copy(next[i][:], h.Sum(nil))
			} else {
				next[i] = lo
			}
		}
		level = next
	}
	return level[0]
}

// GenProof returns the inclusion proof (sibling hash path) for sectorIdx.
func (t *BatchMerkleTree) GenProof(sectorIdx int) (FlowProof, error) {
	if sectorIdx < 0 || sectorIdx >= len(t.leaves) {
		return FlowProof{}, newErr("BatchMerkleTree.GenProof", ErrInvalidArgument, fmt.Errorf("sector %d out of range", sectorIdx))
	}
	level := t.leaves
	idx := sectorIdx
	var lemma []DataRoot
	for len(level) > 1 {
		var sibling DataRoot
		if idx^1 < len(level) {
			sibling = level[idx^1]
		} else {
			sibling = level[idx]
		}
		lemma = append(lemma, sibling)

		next := make([]DataRoot, (len(level)+1)/2)
		for i := range next {
			lo := level[2*i]
			if 2*i+1 < len(level) {
				hi := level[2*i+1]
				h := sha256.New()
				h.Write(lo[:])
				h.Write(hi[:])
				copy(next[i][:], h.Sum(nil))
			} else {
				next[i] = lo
			}
		}
		level = next
		idx /= 2
	}
	return FlowProof{Lemma: lemma, SectorIdx: sectorIdx}, nil
}

// BuildRoot returns the batch's root iff the batch is now data-complete,
// wrapped as a BatchRoot(Single) value; nil otherwise.
func (b *EntryBatch) BuildRoot(isFirst bool) (*BatchRoot, error) {
	tree, err := b.ToMerkleTree(isFirst)
	if err != nil {
		if Is(err, ErrInvalidArgument) {
			return nil, nil
		}
		return nil, err
	}
	root := BatchRoot{Multi: false, Root: tree.Root()}
	return &root, nil
}

// Marshal/Unmarshal are exported wrappers around the codec implementation
// in codec.go, kept on the type so FlowDBStore can round-trip a batch
// without reaching into package-private helpers from another file.
func (b *EntryBatch) Marshal() ([]byte, error) { return b.marshal() }

// UnmarshalEntryBatch decodes bytes produced by (*EntryBatch).Marshal.
func UnmarshalEntryBatch(raw []byte) (*EntryBatch, error) { return unmarshalEntryBatch(raw) }
