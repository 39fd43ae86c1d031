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
)

// NodeDatabase is the persistence contract the external, incremental
// Merkle-tree algorithm is built against. FlowDBStore implements it; the
// tree algorithm itself is an external collaborator per spec.md §1.
type NodeDatabase interface {
	GetNode(layer, pos int) (DataRoot, bool, error)
	GetLayerSize(layer int) (int, bool, error)

	// StartTransaction returns a handle only the database that produced
	// it can commit. Callers that do not need to hold the handle open
	// across other work should prefer WithTransaction.
	StartTransaction() NodeTxn
	Commit(NodeTxn) error

	// WithTransaction runs fn against a fresh transaction and commits it
	// iff fn returns nil - the callback-shaped alternative spec.md §9
	// offers as an equivalent to the handle round-trip.
	WithTransaction(fn func(NodeTxn) error) error
}

// NodeTxn accumulates Merkle node mutations for one commit. The concrete
// type is only ever produced and consumed by the same NodeDatabase
// instance; a handle obtained from one store must never be passed to
// another's Commit.
type NodeTxn interface {
	SaveNode(layer, pos int, node DataRoot)
	SaveNodeList(nodes []NodeEntry)
	RemoveNodeList(positions []NodePos)
	SaveLayerSize(layer, size int)
	RemoveLayerSize(layer int)
}

// NodeEntry is one (layer, position) -> root write.
type NodeEntry struct {
	Layer, Pos int
	Root       DataRoot
}

// NodePos identifies a node to remove.
type NodePos struct{ Layer, Pos int }

// nodeTxn is FlowDBStore's concrete NodeTxn. It owns a pending KV mutation
// list rather than an open kv.RwTx, so it can be held across calls and
// applied in one transaction at Commit time, matching the "opaque until
// commit" discipline spec.md §4.1/§9 describes.
type nodeTxn struct {
	owner *FlowDBStore
	puts  map[string][]byte
	dels  map[string]struct{}
}

func newNodeTxn(owner *FlowDBStore) *nodeTxn {
	return &nodeTxn{owner: owner, puts: make(map[string][]byte), dels: make(map[string]struct{})}
}

func (t *nodeTxn) put(key []byte, value []byte) {
	k := string(key)
	delete(t.dels, k)
	t.puts[k] = value
}

func (t *nodeTxn) del(key []byte) {
	k := string(key)
	delete(t.puts, k)
	t.dels[k] = struct{}{}
}

func (t *nodeTxn) SaveNode(layer, pos int, node DataRoot) {
	t.put(nodeKey(layer, pos), append([]byte(nil), node[:]...))
}

func (t *nodeTxn) SaveNodeList(nodes []NodeEntry) {
	for _, n := range nodes {
		t.SaveNode(n.Layer, n.Pos, n.Root)
	}
}

func (t *nodeTxn) RemoveNodeList(positions []NodePos) {
	for _, p := range positions {
		t.del(nodeKey(p.Layer, p.Pos))
	}
}

func (t *nodeTxn) SaveLayerSize(layer, size int) {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(size))
	t.put(layerSizeKey(layer), buf)
}

func (t *nodeTxn) RemoveLayerSize(layer int) {
	t.del(layerSizeKey(layer))
}

// GetNode implements NodeDatabase.
func (s *FlowDBStore) GetNode(layer, pos int) (DataRoot, bool, error) {
	var root DataRoot
	v, ok, err := s.get(ColMPTNodes, nodeKey(layer, pos))
	if err != nil || !ok {
		return root, false, err
	}
	if len(v) != len(root) {
		return root, false, newErr("FlowDBStore.GetNode", ErrCodec, nil)
	}
	copy(root[:], v)
	return root, true, nil
}

// GetLayerSize implements NodeDatabase.
func (s *FlowDBStore) GetLayerSize(layer int) (int, bool, error) {
	v, ok, err := s.get(ColMPTNodes, layerSizeKey(layer))
	if err != nil || !ok {
		return 0, false, err
	}
	if len(v) != 8 {
		return 0, false, newErr("FlowDBStore.GetLayerSize", ErrCodec, nil)
	}
	return int(binary.BigEndian.Uint64(v)), true, nil
}

// StartTransaction implements NodeDatabase.
func (s *FlowDBStore) StartTransaction() NodeTxn {
	return newNodeTxn(s)
}

// Commit implements NodeDatabase. It downcasts tx to *nodeTxn, surfacing
// ErrDowncast if the handle came from a different store.
func (s *FlowDBStore) Commit(tx NodeTxn) error {
	nt, ok := tx.(*nodeTxn)
	if !ok || nt.owner != s {
		return newErr("FlowDBStore.Commit", ErrDowncast, nil)
	}
	return s.db.Update(func(rw kv.RwTx) error {
		for k, v := range nt.puts {
			rw.Put(ColMPTNodes, []byte(k), v)
		}
		for k := range nt.dels {
			rw.Delete(ColMPTNodes, []byte(k))
		}
		return nil
	})
}

// WithTransaction implements NodeDatabase.
func (s *FlowDBStore) WithTransaction(fn func(NodeTxn) error) error {
	tx := s.StartTransaction()
	if err := fn(tx); err != nil {
		return err
	}
	return s.Commit(tx)
}
