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
	"bytes"
	"encoding/binary"
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// PadPair records a padding region inserted before a transaction's data.
// Its wire layout is a literal fixed two-uint64 big-endian encoding per
// spec - not the tagged codec used below, since the layout is mandated
// exactly rather than left to a forward-compatible scheme.
type PadPair struct {
	StartIndex uint64
	DataSize   uint64
}

const padPairSize = 16

// EncodePadPair appends the canonical 16-byte encoding of p to dst.
func EncodePadPair(dst []byte, p PadPair) []byte {
	var buf [padPairSize]byte
	binary.BigEndian.PutUint64(buf[0:8], p.StartIndex)
	binary.BigEndian.PutUint64(buf[8:16], p.DataSize)
	return append(dst, buf[:]...)
}

// EncodePadPairList concatenates the canonical encoding of every pair.
func EncodePadPairList(pairs []PadPair) []byte {
	out := make([]byte, 0, len(pairs)*padPairSize)
	for _, p := range pairs {
		out = EncodePadPair(out, p)
	}
	return out
}

// DecodePadPairList splits raw into its constituent PadPair records. raw's
// length must be a multiple of padPairSize.
func DecodePadPairList(raw []byte) ([]PadPair, error) {
	if len(raw)%padPairSize != 0 {
		return nil, fmt.Errorf("pad data list: length %d is not a multiple of %d", len(raw), padPairSize)
	}
	n := len(raw) / padPairSize
	out := make([]PadPair, n)
	for i := 0; i < n; i++ {
		rec := raw[i*padPairSize : (i+1)*padPairSize]
		out[i] = PadPair{
			StartIndex: binary.BigEndian.Uint64(rec[0:8]),
			DataSize:   binary.BigEndian.Uint64(rec[8:16]),
		}
	}
	return out, nil
}

// BatchRoot is a tagged union: a batch is committed either as a single
// whole-load root, or as a partial root covering fewer than SectorsPerLoad
// sectors (the tail batch of the flow, not yet full). The field number
// doubling as discriminant keeps the encoding forward-compatible the way
// the original ssz tagged union does, without needing a protoc-generated
// type - see SPEC_FULL.md §4.5.
type BatchRoot struct {
	// Multi is false for the Single(Root) variant, true for
	// Multiple(count, Root).
	Multi bool
	Count uint64
	Root  DataRoot
}

const (
	tagBatchRootSingleRoot    protowire.Number = 1
	tagBatchRootMultipleCount protowire.Number = 2
	tagBatchRootMultipleRoot  protowire.Number = 3
)

// Marshal encodes r using one of two disjoint field numbers per variant, so
// an older reader that only knows the Single shape can still detect (and
// reject) a Multiple-encoded value instead of misreading it.
func (r BatchRoot) Marshal() []byte {
	var b []byte
	if !r.Multi {
		b = protowire.AppendTag(b, tagBatchRootSingleRoot, protowire.BytesType)
		b = protowire.AppendBytes(b, r.Root[:])
		return b
	}
	b = protowire.AppendTag(b, tagBatchRootMultipleCount, protowire.VarintType)
	b = protowire.AppendVarint(b, r.Count)
	b = protowire.AppendTag(b, tagBatchRootMultipleRoot, protowire.BytesType)
	b = protowire.AppendBytes(b, r.Root[:])
	return b
}

// UnmarshalBatchRoot decodes the bytes produced by BatchRoot.Marshal.
func UnmarshalBatchRoot(b []byte) (BatchRoot, error) {
	var r BatchRoot
	var sawSingle, sawCount, sawRoot bool
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return BatchRoot{}, newErr("BatchRoot.Unmarshal", ErrCodec, protowire.ParseError(n))
		}
		b = b[n:]
		switch {
		case num == tagBatchRootSingleRoot && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 || len(v) != len(DataRoot{}) {
				return BatchRoot{}, newErr("BatchRoot.Unmarshal", ErrCodec, fmt.Errorf("bad single root"))
			}
			copy(r.Root[:], v)
			sawSingle = true
			b = b[n:]
		case num == tagBatchRootMultipleCount && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return BatchRoot{}, newErr("BatchRoot.Unmarshal", ErrCodec, fmt.Errorf("bad count"))
			}
			r.Count = v
			sawCount = true
			b = b[n:]
		case num == tagBatchRootMultipleRoot && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 || len(v) != len(DataRoot{}) {
				return BatchRoot{}, newErr("BatchRoot.Unmarshal", ErrCodec, fmt.Errorf("bad multiple root"))
			}
			copy(r.Root[:], v)
			sawRoot = true
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return BatchRoot{}, newErr("BatchRoot.Unmarshal", ErrCodec, fmt.Errorf("unknown field"))
			}
			b = b[n:]
		}
	}
	if sawSingle == (sawCount || sawRoot) {
		return BatchRoot{}, newErr("BatchRoot.Unmarshal", ErrCodec, fmt.Errorf("ambiguous variant"))
	}
	r.Multi = sawCount
	return r, nil
}

// Field numbers for the EntryBatch wire codec.
const (
	tagBatchIndex         protowire.Number = 1
	tagPresenceBitmap     protowire.Number = 2
	tagData               protowire.Number = 3
	tagSealedPresence     protowire.Number = 4
	tagDataCompleteSeals  protowire.Number = 5
	tagSealedUnit         protowire.Number = 6 // repeated
	tagSubtreeEntry       protowire.Number = 7 // repeated
)

// marshal encodes the EntryBatch's full persistent state.
func (b *EntryBatch) marshal() ([]byte, error) {
	var out []byte
	out = protowire.AppendTag(out, tagBatchIndex, protowire.VarintType)
	out = protowire.AppendVarint(out, b.batchIndex)

	presenceBytes, err := b.presence.ToBytes()
	if err != nil {
		return nil, newErr("EntryBatch.Marshal", ErrCodec, err)
	}
	out = protowire.AppendTag(out, tagPresenceBitmap, protowire.BytesType)
	out = protowire.AppendBytes(out, presenceBytes)

	out = protowire.AppendTag(out, tagData, protowire.BytesType)
	out = protowire.AppendBytes(out, b.data)

	sealedPresenceBytes, err := b.sealedPresence.ToBytes()
	if err != nil {
		return nil, newErr("EntryBatch.Marshal", ErrCodec, err)
	}
	out = protowire.AppendTag(out, tagSealedPresence, protowire.BytesType)
	out = protowire.AppendBytes(out, sealedPresenceBytes)

	completeBytes, err := b.dataCompleteSeals.ToBytes()
	if err != nil {
		return nil, newErr("EntryBatch.Marshal", ErrCodec, err)
	}
	out = protowire.AppendTag(out, tagDataCompleteSeals, protowire.BytesType)
	out = protowire.AppendBytes(out, completeBytes)

	it := b.sealedPresence.Iterator()
	for it.HasNext() {
		localIdx := it.Next()
		var unit []byte
		unit = protowire.AppendVarint(unit, uint64(localIdx))
		unit = protowire.AppendBytes(unit, b.sealedData[localIdx])
		out = protowire.AppendTag(out, tagSealedUnit, protowire.BytesType)
		out = protowire.AppendBytes(out, unit)
	}

	for _, s := range b.subtreeList {
		var e []byte
		e = protowire.AppendVarint(e, uint64(s.StartSector))
		e = protowire.AppendVarint(e, uint64(s.SectorCount))
		e = protowire.AppendBytes(e, s.Root[:])
		out = protowire.AppendTag(out, tagSubtreeEntry, protowire.BytesType)
		out = protowire.AppendBytes(out, e)
	}
	return out, nil
}

// unmarshalEntryBatch decodes the bytes produced by (*EntryBatch).marshal.
func unmarshalEntryBatch(raw []byte) (*EntryBatch, error) {
	b := newEmptyEntryBatch()
	var sawIndex bool
	for len(raw) > 0 {
		num, typ, n := protowire.ConsumeTag(raw)
		if n < 0 {
			return nil, newErr("EntryBatch.Unmarshal", ErrCodec, fmt.Errorf("bad tag"))
		}
		raw = raw[n:]
		switch num {
		case tagBatchIndex:
			v, n := protowire.ConsumeVarint(raw)
			if n < 0 {
				return nil, newErr("EntryBatch.Unmarshal", ErrCodec, fmt.Errorf("bad batch index"))
			}
			b.batchIndex = v
			sawIndex = true
			raw = raw[n:]
		case tagPresenceBitmap:
			v, n := protowire.ConsumeBytes(raw)
			if n < 0 {
				return nil, newErr("EntryBatch.Unmarshal", ErrCodec, fmt.Errorf("bad presence bitmap"))
			}
			if _, err := b.presence.ReadFrom(bytes.NewReader(v)); err != nil {
				return nil, newErr("EntryBatch.Unmarshal", ErrCodec, err)
			}
			raw = raw[n:]
		case tagData:
			v, n := protowire.ConsumeBytes(raw)
			if n < 0 {
				return nil, newErr("EntryBatch.Unmarshal", ErrCodec, fmt.Errorf("bad data"))
			}
			copy(b.data, v)
			raw = raw[n:]
		case tagSealedPresence:
			v, n := protowire.ConsumeBytes(raw)
			if n < 0 {
				return nil, newErr("EntryBatch.Unmarshal", ErrCodec, fmt.Errorf("bad sealed presence"))
			}
			if _, err := b.sealedPresence.ReadFrom(bytes.NewReader(v)); err != nil {
				return nil, newErr("EntryBatch.Unmarshal", ErrCodec, err)
			}
			raw = raw[n:]
		case tagDataCompleteSeals:
			v, n := protowire.ConsumeBytes(raw)
			if n < 0 {
				return nil, newErr("EntryBatch.Unmarshal", ErrCodec, fmt.Errorf("bad complete-seal bitmap"))
			}
			if _, err := b.dataCompleteSeals.ReadFrom(bytes.NewReader(v)); err != nil {
				return nil, newErr("EntryBatch.Unmarshal", ErrCodec, err)
			}
			raw = raw[n:]
		case tagSealedUnit:
			v, n := protowire.ConsumeBytes(raw)
			if n < 0 {
				return nil, newErr("EntryBatch.Unmarshal", ErrCodec, fmt.Errorf("bad sealed unit"))
			}
			idx, m := protowire.ConsumeVarint(v)
			if m < 0 {
				return nil, newErr("EntryBatch.Unmarshal", ErrCodec, fmt.Errorf("bad sealed unit index"))
			}
			payload, m2 := protowire.ConsumeBytes(v[m:])
			if m2 < 0 {
				return nil, newErr("EntryBatch.Unmarshal", ErrCodec, fmt.Errorf("bad sealed unit payload"))
			}
			cp := make([]byte, len(payload))
			copy(cp, payload)
			b.sealedData[idx] = cp
			raw = raw[n:]
		case tagSubtreeEntry:
			v, n := protowire.ConsumeBytes(raw)
			if n < 0 {
				return nil, newErr("EntryBatch.Unmarshal", ErrCodec, fmt.Errorf("bad subtree entry"))
			}
			start, m := protowire.ConsumeVarint(v)
			if m < 0 {
				return nil, newErr("EntryBatch.Unmarshal", ErrCodec, fmt.Errorf("bad subtree start"))
			}
			v = v[m:]
			count, m := protowire.ConsumeVarint(v)
			if m < 0 {
				return nil, newErr("EntryBatch.Unmarshal", ErrCodec, fmt.Errorf("bad subtree count"))
			}
			v = v[m:]
			root, m := protowire.ConsumeBytes(v)
			if m < 0 || len(root) != len(DataRoot{}) {
				return nil, newErr("EntryBatch.Unmarshal", ErrCodec, fmt.Errorf("bad subtree root"))
			}
			var entry SubtreeEntry
			entry.StartSector = int(start)
			entry.SectorCount = int(count)
			copy(entry.Root[:], root)
			b.subtreeList = append(b.subtreeList, entry)
			raw = raw[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, raw)
			if n < 0 {
				return nil, newErr("EntryBatch.Unmarshal", ErrCodec, fmt.Errorf("unknown field %d", num))
			}
			raw = raw[n:]
		}
	}
	if !sawIndex {
		return nil, newErr("EntryBatch.Unmarshal", ErrCodec, fmt.Errorf("missing batch index"))
	}
	return b, nil
}
