// SPDX-FileCopyrightText: 2025 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package sysinit

import (
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// DefaultConsolePath is the console device the standard streams are bound to.
const DefaultConsolePath = "/dev/console"

// ConsoleMode is the direction a console device is opened with.
type ConsoleMode int

// Console modes.
const (
	ConsoleRead ConsoleMode = iota
	ConsoleWrite
)

// String implements [fmt.Stringer].
func (m ConsoleMode) String() string {
	if m == ConsoleWrite {
		return "write"
	}

	return "read"
}

// StreamSlot is a standard stream descriptor number.
type StreamSlot int

// Standard stream slots.
const (
	SlotStdin  StreamSlot = 0
	SlotStdout StreamSlot = 1
	SlotStderr StreamSlot = 2
)

// String implements [fmt.Stringer].
func (s StreamSlot) String() string {
	switch s {
	case SlotStdin:
		return "stdin"
	case SlotStdout:
		return "stdout"
	case SlotStderr:
		return "stderr"
	default:
		return fmt.Sprintf("fd%d", int(s))
	}
}

// ConsoleBinding binds a standard stream to a console device.
type ConsoleBinding struct {
	Path string
	Mode ConsoleMode
	Slot StreamSlot
}

// ConsoleBindings returns the bindings of stdin (read), stdout and stderr
// (write) to the console device at the given path.
func ConsoleBindings(path string) []ConsoleBinding {
	return []ConsoleBinding{
		{Path: path, Mode: ConsoleRead, Slot: SlotStdin},
		{Path: path, Mode: ConsoleWrite, Slot: SlotStdout},
		{Path: path, Mode: ConsoleWrite, Slot: SlotStderr},
	}
}

// Binder binds a single [ConsoleBinding].
type Binder interface {
	Bind(binding ConsoleBinding) error
}

// KernelBinder is a [Binder] that opens the console device and duplicates
// the descriptor onto the standard stream slot.
type KernelBinder struct{}

var _ Binder = KernelBinder{}

// Bind implements [Binder].
func (KernelBinder) Bind(binding ConsoleBinding) error {
	fd, err := openConsole(binding.Path, binding.Mode)
	if err != nil {
		return err
	}

	err = dup3(fd, int(binding.Slot))

	if fd != int(binding.Slot) {
		closeFD(fd)
	}

	return err
}

// ConsoleError is returned by [BindConsole] for all failed bindings.
type ConsoleError struct {
	Failed []ConsoleBinding
	Errs   []error
}

// Error implements the [error] interface.
func (e *ConsoleError) Error() string {
	return fmt.Sprintf("%v: %v", ErrConsoleBind, errors.Join(e.Errs...))
}

// Is implements the [errors.Is] interface.
func (*ConsoleError) Is(other error) bool {
	return other == ErrConsoleBind //nolint:errorlint
}

// Unwrap implements the [errors.Unwrap] interface.
func (e *ConsoleError) Unwrap() []error {
	return e.Errs
}

// WriteFailed returns true if any write binding failed. Diagnostic output
// written to the standard streams might not be observable in this case.
func (e *ConsoleError) WriteFailed() bool {
	for _, binding := range e.Failed {
		if binding.Mode == ConsoleWrite {
			return true
		}
	}

	return false
}

// BindConsole applies all bindings in order. A failing binding does not
// prevent the following ones from being applied. It returns a [*ConsoleError]
// if any binding failed.
func BindConsole(binder Binder, bindings []ConsoleBinding) error {
	var consoleErr ConsoleError

	for _, binding := range bindings {
		err := binder.Bind(binding)
		if err != nil {
			consoleErr.Failed = append(consoleErr.Failed, binding)
			consoleErr.Errs = append(consoleErr.Errs,
				fmt.Errorf("%s: %w", binding.Slot, err))
		}
	}

	if len(consoleErr.Failed) == 0 {
		return nil
	}

	return &consoleErr
}

// WithConsole returns a setup [Func] that wraps [BindConsole].
//
// After binding, the [Diagnostics] sink of the [State] is validated again,
// so that it falls back to the kernel log if the console is not writable.
func WithConsole(binder Binder, bindings []ConsoleBinding, severity Severity) Func {
	return func(state *State) error {
		err := BindConsole(binder, bindings)

		if state.Diagnostics != nil {
			var consoleErr *ConsoleError
			if errors.As(err, &consoleErr) && consoleErr.WriteFailed() {
				state.Diagnostics.Degrade()
			}

			if verr := state.Diagnostics.Validate(); verr != nil {
				state.Log.Warn("diagnostics sink degraded", zap.Error(verr))
			}
		}

		if err != nil {
			return &StepError{Step: "console", Severity: severity, Err: err}
		}

		state.Log.Debug("console bound", zap.Int("bindings", len(bindings)))

		return nil
	}
}
