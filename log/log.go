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

// Package log centralizes construction of the process logger so every
// package calls into the same sink instead of building its own.
package log

import (
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

var (
	once   sync.Once
	base   *zap.Logger
	logPtr atomic.Pointer[zap.SugaredLogger]
)

func initDefault() {
	base, _ = zap.NewProduction()
	if base == nil {
		base = zap.NewNop()
	}
	logPtr.Store(base.Sugar())
}

// L returns the package-level sugared logger, constructing a sane
// production default on first use.
func L() *zap.SugaredLogger {
	once.Do(initDefault)
	return logPtr.Load()
}

// SetLogger replaces the package-level logger, e.g. with a development
// logger in tests or a caller-supplied logger in embedding applications.
func SetLogger(l *zap.Logger) {
	once.Do(func() {})
	logPtr.Store(l.Sugar())
}
