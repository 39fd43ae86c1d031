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

// Package metrics is a dependency-free counters/timers shim. It mirrors the
// call-site shape of a real metrics registry (GetOrRegisterTimer,
// UpdateSince) without exporting anything, since metrics export is out of
// scope for this module - only the instrumentation discipline is kept.
package metrics

import (
	"sync"
	"sync/atomic"
	"time"
)

// Timer accumulates a count and a total duration for one named operation.
type Timer struct {
	count atomic.Uint64
	nanos atomic.Uint64
}

// UpdateSince adds time.Since(start) to the timer. Named to mirror the
// teacher's metrics.GetOrRegisterTimer(...).UpdateSince(start) idiom.
func (t *Timer) UpdateSince(start time.Time) {
	t.count.Add(1)
	t.nanos.Add(uint64(time.Since(start)))
}

// Snapshot returns the current sample count and mean duration.
func (t *Timer) Snapshot() (count uint64, mean time.Duration) {
	n := t.count.Load()
	if n == 0 {
		return 0, 0
	}
	return n, time.Duration(t.nanos.Load() / n)
}

var (
	mu     sync.Mutex
	timers = make(map[string]*Timer)
)

// GetOrRegisterTimer returns the process-wide Timer for name, creating it on
// first use.
func GetOrRegisterTimer(name string) *Timer {
	mu.Lock()
	defer mu.Unlock()
	t, ok := timers[name]
	if !ok {
		t = &Timer{}
		timers[name] = t
	}
	return t
}
