// SPDX-FileCopyrightText: 2025 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package supervisor

import (
	"errors"
	"fmt"
)

var (
	// ErrSpawn is returned if the child process could not be started.
	// Without the bridge there is no connectivity, so this is fatal.
	ErrSpawn = errors.New("spawn child")

	// ErrDescriptorMode is returned if the child's pipes could not be
	// switched to non-blocking mode. The multiplexer cannot run safely with
	// blocking descriptors.
	ErrDescriptorMode = errors.New("set descriptor mode")

	// ErrPoller is returned if the readiness poller failed. The multiplexer
	// cannot continue without it.
	ErrPoller = errors.New("readiness poller")

	// ErrStreamRead is logged if reading a stream failed with an error other
	// than would-block. The stream is closed as if the child closed it.
	ErrStreamRead = errors.New("stream read")

	// ErrWouldBlock is returned by non-blocking stream readers if no data is
	// available.
	ErrWouldBlock = errors.New("would block")
)

// ExitError is returned if the child process exited with a non-zero exit
// code or was terminated by a signal.
type ExitError struct {
	Path string
	Code int
}

// Error implements the [error] interface.
func (e *ExitError) Error() string {
	return fmt.Sprintf("%s exited with code %d", e.Path, e.Code)
}

// ExitCode returns the exit code of the child. Terminations by signal are
// reported as 128 plus the signal number.
func (e *ExitError) ExitCode() int {
	return e.Code
}

// Is implements the [errors.Is] interface.
func (*ExitError) Is(other error) bool {
	_, ok := other.(*ExitError)
	return ok
}
