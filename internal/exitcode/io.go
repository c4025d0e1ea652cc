// SPDX-FileCopyrightText: 2025 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package exitcode

import (
	"fmt"
	"io"
	"strings"
)

// Identifier is the identifier string for communicating the enclave's exit
// code via the console.
const Identifier = "ENCLAVEOS_EXIT_CODE"

const format = Identifier + ": %d"

// Sprint creates the full exit code string with the given exit code.
func Sprint(exitCode int) string {
	return fmt.Sprintf(format, exitCode)
}

// Fprint writes the full exit code line with the given exit code into the given
// writer.
func Fprint(w io.Writer, exitCode int) (int, error) {
	return fmt.Fprintln(w, Sprint(exitCode)) //nolint:wrapcheck
}

// Parse parses the given string for the exit code.
//
// The identifier can be anywhere in the string. It does not need to be at the
// beginning, so console lines with a prefix are found as well. Returns the
// exit code and whether it was found in the given string.
func Parse(str string) (int, bool) {
	start := strings.Index(str, Identifier)
	if start < 0 {
		return 0, false
	}

	var exitCode int

	if _, err := fmt.Sscanf(str[start:], format, &exitCode); err != nil {
		return 0, false
	}

	return exitCode, true
}
