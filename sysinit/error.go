// SPDX-FileCopyrightText: 2025 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package sysinit

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotPidOne is returned if the process is expected to be run as PID 1
	// but is not.
	ErrNotPidOne = errors.New("process does not have ID 1")

	// ErrPanic is returned if a [Func] panicked.
	ErrPanic = errors.New("function panicked")

	// ErrMount is returned if a mount in the mount table failed.
	ErrMount = errors.New("mount failed")

	// ErrAlreadyMounted is returned by a [Mounter] if the target is mounted
	// already. It is not considered a failure.
	ErrAlreadyMounted = errors.New("already mounted")

	// ErrCriticalMount is returned if a mount with [SeverityCritical] failed.
	ErrCriticalMount = errors.New("critical mount failed")

	// ErrConsoleBind is returned if a standard stream could not be bound to
	// the console device.
	ErrConsoleBind = errors.New("console bind failed")

	// ErrPlatformInit is returned if the platform initialization failed.
	ErrPlatformInit = errors.New("platform init failed")

	// ErrEntropySeed is returned if the kernel random pool could not be
	// seeded. The environment is still usable, but cryptographic operations
	// rely on whatever entropy the kernel gathered on its own.
	ErrEntropySeed = errors.New("entropy seed failed")

	// ErrShortEntropy is returned if an [EntropySource] returned less bytes
	// than requested.
	ErrShortEntropy = errors.New("short entropy read")
)

// MountError is a collection of failed mount entries.
//
// It matches [ErrMount] and, if any of the failed entries has
// [SeverityCritical], also [ErrCriticalMount].
type MountError struct {
	Failures []MountFailure
}

// MountFailure is a single failed entry of a mount table.
type MountFailure struct {
	Index int
	Spec  MountSpec
	Err   error
}

// Error implements the [error] interface.
func (e *MountError) Error() string {
	msgs := make([]string, 0, len(e.Failures))
	for _, failure := range e.Failures {
		msgs = append(msgs, fmt.Sprintf("%s (%s): %v",
			failure.Spec.Target, failure.Spec.Severity, failure.Err))
	}

	return "mount errors: " + strings.Join(msgs, "; ")
}

// Is implements the [errors.Is] interface.
func (e *MountError) Is(other error) bool {
	switch other { //nolint:errorlint
	case ErrMount:
		return true
	case ErrCriticalMount:
		return e.Critical()
	default:
		return false
	}
}

// Unwrap implements the [errors.Unwrap] interface.
func (e *MountError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failures))
	for _, failure := range e.Failures {
		errs = append(errs, failure.Err)
	}

	return errs
}

// Critical returns true if any of the failures is for a mount entry with
// [SeverityCritical].
func (e *MountError) Critical() bool {
	for _, failure := range e.Failures {
		if failure.Spec.Severity == SeverityCritical {
			return true
		}
	}

	return false
}

// StepError wraps the error of a boot step together with the [Severity] that
// was configured for it.
type StepError struct {
	Step     string
	Severity Severity
	Err      error
}

// Error implements the [error] interface.
func (e *StepError) Error() string {
	return fmt.Sprintf("%s (%s): %v", e.Step, e.Severity, e.Err)
}

// Unwrap implements the [errors.Unwrap] interface.
func (e *StepError) Unwrap() error {
	return e.Err
}

// IsFatal returns true if the given error aborts the boot sequence.
//
// An error is fatal unless it is a [StepError] with [SeverityBestEffort].
func IsFatal(err error) bool {
	if err == nil {
		return false
	}

	var stepErr *StepError
	if errors.As(err, &stepErr) {
		return stepErr.Severity == SeverityCritical
	}

	return true
}
