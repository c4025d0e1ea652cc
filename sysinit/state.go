// SPDX-FileCopyrightText: 2025 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package sysinit

import (
	"slices"

	"go.uber.org/zap"
)

// CleanupFunc is run when the boot sequence terminates.
type CleanupFunc func() error

// State is passed to each [Func] of the boot sequence.
type State struct {
	// Log is the diagnostics logger. It is never nil.
	Log *zap.Logger

	// Diagnostics is the sink Log writes to. It may be nil if the logger
	// does not write to a [Diagnostics] sink.
	Diagnostics *Diagnostics

	cleanupFns []CleanupFunc
}

// NewState creates a new [State] logging to the given logger. If logger is
// nil, logging is disabled.
func NewState(logger *zap.Logger, diag *Diagnostics) *State {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &State{
		Log:         logger,
		Diagnostics: diag,
	}
}

// Cleanup registers a function that is run by [State.DoCleanup]. Functions
// run in reverse order of registration.
func (s *State) Cleanup(fn CleanupFunc) {
	s.cleanupFns = append(s.cleanupFns, fn)
}

// DoCleanup runs all registered [CleanupFunc]s. Errors are logged.
func (s *State) DoCleanup() {
	fns := slices.Clone(s.cleanupFns)
	slices.Reverse(fns)

	s.cleanupFns = nil

	for _, fn := range fns {
		if err := fn(); err != nil {
			s.Log.Error("cleanup", zap.Error(err))
		}
	}
}
