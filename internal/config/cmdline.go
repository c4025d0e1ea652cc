// SPDX-FileCopyrightText: 2025 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
)

const (
	// CmdlinePath is the kernel command line file.
	CmdlinePath = "/proc/cmdline"

	// CmdlineParam is the kernel command line parameter that overrides
	// [DefaultPath].
	CmdlineParam = "enclaveos.config"
)

// PathFromCmdline returns the config path given by [CmdlineParam] in the
// given kernel command line. If the parameter is present multiple times, the
// last one wins, as for the kernel's own parameters. If it is not present,
// [DefaultPath] is returned.
func PathFromCmdline(cmdline string) string {
	path := DefaultPath

	for _, field := range strings.Fields(cmdline) {
		value, found := strings.CutPrefix(field, CmdlineParam+"=")
		if found && value != "" {
			path = value
		}
	}

	return path
}

// ResolvePath reads the kernel command line from the given file and returns
// the config path. A missing file (/proc not mounted) is not an error.
func ResolvePath(cmdlinePath string) (string, error) {
	data, err := os.ReadFile(cmdlinePath)
	if errors.Is(err, fs.ErrNotExist) {
		return DefaultPath, nil
	} else if err != nil {
		return DefaultPath, fmt.Errorf("read kernel cmdline: %w", err)
	}

	return PathFromCmdline(string(data)), nil
}
