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

// Config is the top-level configuration for a FlowStore, composing the
// shard assignment and the seal manager's liveness policy.
type Config struct {
	Shard       ShardConfig
	SealManager SealManagerConfig
}

// DefaultConfig mirrors the original's FlowConfig::default(): a single
// shard storing everything, and the standard 2-minute sealer-liveness
// window.
func DefaultConfig() Config {
	return Config{
		Shard:       DefaultShardConfig(),
		SealManager: DefaultSealManagerConfig(),
	}
}
