// SPDX-FileCopyrightText: 2025 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package exitcode

import "errors"

// Unknown is the exit code reported for errors that carry no exit code, like
// a failed boot step.
const Unknown = -1

// Coder is implemented by errors that carry an exit code, like the exit error
// of a supervised child process.
type Coder interface {
	ExitCode() int
}

// From returns an exit code based on the given error and if the error carried
// an exit code.
//
// If the error is nil, the exit code is 0. If the error implements [Coder] the
// exit code is the return value of [Coder.ExitCode]. Otherwise the exit code
// is [Unknown].
func From(err error) (int, bool) {
	if err == nil {
		return 0, false
	}

	var coder Coder
	if errors.As(err, &coder) {
		return coder.ExitCode(), true
	}

	return Unknown, false
}
