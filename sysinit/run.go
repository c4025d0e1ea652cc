// SPDX-FileCopyrightText: 2025 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package sysinit

import (
	"fmt"

	"go.uber.org/zap"
)

// Func is a single step of the boot sequence run by [RunSteps].
//
// A Func returns a [*StepError] with [SeverityBestEffort] for failures that
// should be logged without aborting the sequence. Any other error is fatal.
type Func func(*State) error

// RunSteps runs the given [Func]s in order.
//
// Best-effort failures are logged as warnings and the next [Func] runs. The
// first fatal error stops the sequence and is returned. Panics are recovered
// and returned as fatal error matching [ErrPanic].
func RunSteps(state *State, funcs ...Func) error {
	for _, fn := range funcs {
		err := runFunc(state, fn)
		if err == nil {
			continue
		}

		if !IsFatal(err) {
			state.Log.Warn("boot step degraded", zap.Error(err))
			continue
		}

		return err
	}

	return nil
}

func runFunc(state *State, fn Func) (err error) {
	defer func() {
		rec := recover()
		if rec == nil {
			return
		}

		if recoveredErr, ok := rec.(error); ok {
			err = fmt.Errorf("%w: %w", ErrPanic, recoveredErr)
		} else {
			err = fmt.Errorf("%w: %v", ErrPanic, rec)
		}
	}()

	return fn(state)
}
