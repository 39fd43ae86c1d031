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

// Package kv describes the opaque, transactional, column-keyed byte store
// the flow storage engine is built on. The engine never assumes a concrete
// backend (mdbx, badger, pebble, ...); it only needs the contract below,
// satisfied in this repository by the in-memory reference implementation in
// kv/memkv for tests and development.
package kv

// Getter reads values out of a single column (table) by key.
type Getter interface {
	// Get returns the value stored at key in table, or ok=false if absent.
	Get(table string, key []byte) (value []byte, ok bool, err error)

	// Ascend calls fn for every key >= from in table, in ascending key
	// order, until fn returns false or the table is exhausted.
	Ascend(table string, from []byte, fn func(key, value []byte) bool) error

	// Last returns the lexicographically greatest key in table, or
	// ok=false if the table is empty.
	Last(table string) (key, value []byte, ok bool, err error)

	// NumKeys returns the number of keys stored in table.
	NumKeys(table string) (uint64, error)
}

// Putter mutates a single column (table) by key.
type Putter interface {
	Put(table string, key, value []byte)
	Delete(table string, key []byte)
}

// Tx is a read-only view of the store, valid until the call that produced
// it returns.
type Tx interface {
	Getter
}

// RwTx is a read-write transaction. Nothing mutated through Put/Delete is
// visible to other transactions until the owning RwDB commits it.
type RwTx interface {
	Getter
	Putter
}

// RwDB is the transactional handle the flow storage engine is built
// against. Every mutating operation in this module opens exactly one RwTx,
// applies every KV change it implies, and commits - or discards the RwTx
// and returns an error, leaving no partial state visible.
type RwDB interface {
	// View runs fn against a read-only transaction.
	View(fn func(tx Tx) error) error

	// Update runs fn against a read-write transaction and commits the
	// transaction iff fn returns nil.
	Update(fn func(tx RwTx) error) error
}
