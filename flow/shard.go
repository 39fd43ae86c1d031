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

import "sync"

// ShardConfig describes which batch indices this node is responsible for:
// batch b belongs to this node iff b mod NumShard == ShardID.
type ShardConfig struct {
	NumShard uint32
	ShardID  uint32
}

// DefaultShardConfig is the single-shard (store-everything) configuration.
func DefaultShardConfig() ShardConfig {
	return ShardConfig{NumShard: 1, ShardID: 0}
}

// Valid reports whether NumShard is a power of two and ShardID is in range.
func (c ShardConfig) Valid() bool {
	return c.NumShard > 0 && c.NumShard&(c.NumShard-1) == 0 && c.ShardID < c.NumShard
}

// InRange reports whether batchIndex belongs to this shard.
func (c ShardConfig) InRange(batchIndex uint64) bool {
	return batchIndex%uint64(c.NumShard) == uint64(c.ShardID)
}

// SharedShardConfig is a reader-writer-locked box around a ShardConfig,
// matching spec.md §9's "explicitly passed reference counted mapping with
// a reader-writer lock".
type SharedShardConfig struct {
	mu  sync.RWMutex
	cfg ShardConfig
}

// NewSharedShardConfig returns a box initialized to cfg.
func NewSharedShardConfig(cfg ShardConfig) *SharedShardConfig {
	return &SharedShardConfig{cfg: cfg}
}

// Get returns the current shard config.
func (s *SharedShardConfig) Get() ShardConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// Set overwrites the shard config.
func (s *SharedShardConfig) Set(cfg ShardConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg = cfg
}
