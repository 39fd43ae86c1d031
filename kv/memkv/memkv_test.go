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

package memkv

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/flowmesh/flowstore/kv"
)

var errBoom = errors.New("boom")

func TestPutGetRoundTrip(t *testing.T) {
	db := New("t1")
	err := db.Update(func(tx kv.RwTx) error {
		tx.Put("t1", []byte("a"), []byte("1"))
		tx.Put("t1", []byte("b"), []byte("2"))
		return nil
	})
	require.NoError(t, err)

	err = db.View(func(tx kv.Tx) error {
		v, ok, err := tx.Get("t1", []byte("a"))
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, []byte("1"), v)
		return nil
	})
	require.NoError(t, err)
}

func TestUpdateRollsBackOnError(t *testing.T) {
	db := New("t1")
	require.NoError(t, db.Update(func(tx kv.RwTx) error {
		tx.Put("t1", []byte("a"), []byte("1"))
		return nil
	}))

	failErr := db.Update(func(tx kv.RwTx) error {
		tx.Put("t1", []byte("a"), []byte("999"))
		return errBoom
	})
	require.Error(t, failErr)

	err := db.View(func(tx kv.Tx) error {
		v, ok, err := tx.Get("t1", []byte("a"))
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, []byte("1"), v)
		return nil
	})
	require.NoError(t, err)
}

func TestAscendOrdersKeysAndRespectsFrom(t *testing.T) {
	db := New("t1")
	require.NoError(t, db.Update(func(tx kv.RwTx) error {
		for _, k := range []string{"c", "a", "b", "d"} {
			tx.Put("t1", []byte(k), []byte(k))
		}
		return nil
	}))

	var seen []string
	require.NoError(t, db.View(func(tx kv.Tx) error {
		return tx.Ascend("t1", []byte("b"), func(key, value []byte) bool {
			seen = append(seen, string(key))
			return true
		})
	}))
	require.Equal(t, []string{"b", "c", "d"}, seen)
}

func TestLastAndNumKeys(t *testing.T) {
	db := New("t1")
	require.NoError(t, db.Update(func(tx kv.RwTx) error {
		tx.Put("t1", []byte{0, 0, 0, 1}, []byte("x"))
		tx.Put("t1", []byte{0, 0, 0, 5}, []byte("y"))
		return nil
	}))

	err := db.View(func(tx kv.Tx) error {
		key, value, ok, err := tx.Last("t1")
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, []byte{0, 0, 0, 5}, key)
		require.Equal(t, []byte("y"), value)

		n, err := tx.NumKeys("t1")
		require.NoError(t, err)
		require.EqualValues(t, 2, n)
		return nil
	})
	require.NoError(t, err)
}
