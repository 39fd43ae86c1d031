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

// Package memkv is an in-memory, transactional, column-keyed store that
// satisfies the kv.RwDB contract. It exists for tests and local
// development; production deployments supply a real backend (mdbx, badger,
// pebble, ...) behind the same interface.
package memkv

import (
	"bytes"
	"sync"

	"github.com/google/btree"

	"github.com/flowmesh/flowstore/kv"
)

const btreeDegree = 32

// kvItem is a btree.Item ordering entries by key.
type kvItem struct {
	key, value []byte
}

func (a kvItem) Less(than btree.Item) bool {
	return bytes.Compare(a.key, than.(kvItem).key) < 0
}

// DB is an in-memory reference implementation of kv.RwDB. One *btree.BTree
// per declared table; commits swap in cloned-and-mutated trees atomically
// under dbMu so a failed Update leaves the prior snapshot untouched.
type DB struct {
	dbMu   sync.RWMutex
	tables map[string]*btree.BTree
}

// New returns an empty store with the given table (column family) names
// pre-declared. Tables not pre-declared are created lazily on first write.
func New(tables ...string) *DB {
	db := &DB{tables: make(map[string]*btree.BTree, len(tables))}
	for _, t := range tables {
		db.tables[t] = btree.New(btreeDegree)
	}
	return db
}

func (db *DB) tableOrEmpty(name string) *btree.BTree {
	if t, ok := db.tables[name]; ok {
		return t
	}
	return btree.New(btreeDegree)
}

type txView struct {
	db     *DB
	tables map[string]*btree.BTree
}

func (v *txView) Get(table string, key []byte) ([]byte, bool, error) {
	t, ok := v.tables[table]
	if !ok {
		return nil, false, nil
	}
	item := t.Get(kvItem{key: key})
	if item == nil {
		return nil, false, nil
	}
	return item.(kvItem).value, true, nil
}

func (v *txView) Ascend(table string, from []byte, fn func(key, value []byte) bool) error {
	t, ok := v.tables[table]
	if !ok {
		return nil
	}
	t.AscendGreaterOrEqual(kvItem{key: from}, func(it btree.Item) bool {
		kv := it.(kvItem)
		return fn(kv.key, kv.value)
	})
	return nil
}

func (v *txView) Last(table string) (key, value []byte, ok bool, err error) {
	t, has := v.tables[table]
	if !has || t.Len() == 0 {
		return nil, nil, false, nil
	}
	item := t.Max()
	kv := item.(kvItem)
	return kv.key, kv.value, true, nil
}

func (v *txView) NumKeys(table string) (uint64, error) {
	t, ok := v.tables[table]
	if !ok {
		return 0, nil
	}
	return uint64(t.Len()), nil
}

type rwTx struct {
	txView
}

func (tx *rwTx) Put(table string, key, value []byte) {
	t, ok := tx.tables[table]
	if !ok {
		t = btree.New(btreeDegree)
		tx.tables[table] = t
	}
	cp := make([]byte, len(value))
	copy(cp, value)
	t.ReplaceOrInsert(kvItem{key: append([]byte(nil), key...), value: cp})
}

func (tx *rwTx) Delete(table string, key []byte) {
	t, ok := tx.tables[table]
	if !ok {
		return
	}
	t.Delete(kvItem{key: key})
}

// View runs fn against a read-only snapshot of every table.
func (db *DB) View(fn func(tx kv.Tx) error) error {
	db.dbMu.RLock()
	snapshot := make(map[string]*btree.BTree, len(db.tables))
	for name, t := range db.tables {
		snapshot[name] = t
	}
	db.dbMu.RUnlock()
	return fn(&txView{db: db, tables: snapshot})
}

// Update runs fn against copy-on-write clones of every table; the clones
// replace the live tables only if fn returns nil.
func (db *DB) Update(fn func(tx kv.RwTx) error) error {
	db.dbMu.Lock()
	defer db.dbMu.Unlock()

	clones := make(map[string]*btree.BTree, len(db.tables))
	for name, t := range db.tables {
		clones[name] = t.Clone()
	}
	tx := &rwTx{txView{db: db, tables: clones}}
	if err := fn(tx); err != nil {
		return err
	}
	for name, t := range clones {
		db.tables[name] = t
	}
	return nil
}
