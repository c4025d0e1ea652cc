// SPDX-FileCopyrightText: 2025 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package exitcode

import (
	"bufio"
	"errors"
	"fmt"
	"io"
)

// ErrNotFound is returned by [Scan] if the output has no exit code line.
var ErrNotFound = errors.New("no exit code line found")

// Scan copies the console output from src line by line to dst and returns
// the exit code of the last exit code line. Console output may carry CR
// line endings, which [Parse] ignores.
func Scan(dst io.Writer, src io.Reader) (int, error) {
	code, found := 0, false

	scanner := bufio.NewScanner(src)
	for scanner.Scan() {
		line := scanner.Text()

		if c, ok := Parse(line); ok {
			code, found = c, true
		}

		if _, err := fmt.Fprintln(dst, line); err != nil {
			return 0, fmt.Errorf("write output: %w", err)
		}
	}

	if err := scanner.Err(); err != nil {
		return 0, fmt.Errorf("read output: %w", err)
	}

	if !found {
		return 0, ErrNotFound
	}

	return code, nil
}
