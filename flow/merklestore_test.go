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

	"github.com/stretchr/testify/require"
)

func TestNodeStoreSaveAndGet(t *testing.T) {
	s := newTestFlowDB()

	err := s.WithTransaction(func(tx NodeTxn) error {
		tx.SaveNode(2, 5, DataRoot{1, 2, 3})
		tx.SaveLayerSize(2, 128)
		return nil
	})
	require.NoError(t, err)

	root, ok, err := s.GetNode(2, 5)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, DataRoot{1, 2, 3}, root)

	size, ok, err := s.GetLayerSize(2)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 128, size)
}

func TestNodeStoreRemove(t *testing.T) {
	s := newTestFlowDB()
	require.NoError(t, s.WithTransaction(func(tx NodeTxn) error {
		tx.SaveNode(0, 0, DataRoot{9})
		return nil
	}))

	require.NoError(t, s.WithTransaction(func(tx NodeTxn) error {
		tx.RemoveNodeList([]NodePos{{Layer: 0, Pos: 0}})
		return nil
	}))

	_, ok, err := s.GetNode(0, 0)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestCommitRejectsForeignTransaction(t *testing.T) {
	s1 := newTestFlowDB()
	s2 := newTestFlowDB()

	tx := s1.StartTransaction()
	err := s2.Commit(tx)
	require.Error(t, err)
	require.True(t, Is(err, ErrDowncast))
}

func TestNodeKeyAndLayerSizeKeyAreDisjoint(t *testing.T) {
	require.NotEqual(t, nodeKey(1, 1)[0], layerSizeKey(1)[0])
}
