// SPDX-FileCopyrightText: 2025 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"io"
	"path/filepath"
	"testing"

	"github.com/aibor/enclaveos/internal/initramfs"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseArgs(t *testing.T) {
	absInit, err := filepath.Abs("enclaveinit")
	require.NoError(t, err)

	absServer, err := filepath.Abs("server")
	require.NoError(t, err)

	tests := []struct {
		name        string
		args        []string
		expected    flags
		expectedErr error
	}{
		{
			name:        "requires init",
			args:        []string{"-o", "out.cpio"},
			expectedErr: errUsage,
		},
		{
			name:        "unexpected argument",
			args:        []string{"-i", "enclaveinit", "extra"},
			expectedErr: errUsage,
		},
		{
			name:        "relative image path",
			args:        []string{"-i", "enclaveinit", "--file", "app/server=server"},
			expectedErr: errUsage,
		},
		{
			name:        "unknown compression",
			args:        []string{"-i", "enclaveinit", "-z", "bzip2"},
			expectedErr: errUsage,
		},
		{
			name:        "help",
			args:        []string{"--help"},
			expectedErr: pflag.ErrHelp,
		},
		{
			name: "defaults",
			args: []string{"-i", "enclaveinit"},
			expected: flags{
				init:        absInit,
				compression: initramfs.CompressionGzip,
				output:      "-",
			},
		},
		{
			name: "all",
			args: []string{
				"--init=enclaveinit",
				"--bridge=/usr/bin/socat",
				"--bridge-path=/bin/socat",
				"--file=/app/server=server",
				"--dir=/var/lib/app",
				"--compression=zstd",
				"--output=/tmp/initramfs.zst",
				"--no-libs",
				"-v",
			},
			expected: flags{
				init:        absInit,
				bridge:      "/usr/bin/socat",
				bridgePath:  "/bin/socat",
				files:       map[string]string{"/app/server": absServer},
				dirs:        []string{"/var/lib/app"},
				compression: initramfs.CompressionZstd,
				output:      "/tmp/initramfs.zst",
				noLibs:      true,
				verbose:     true,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			actual := flags{
				compression: initramfs.CompressionGzip,
				output:      "-",
			}

			err := actual.parseArgs(append([]string{"mkinitramfs"}, tt.args...), io.Discard)
			require.ErrorIs(t, err, tt.expectedErr)

			if tt.expectedErr != nil {
				return
			}

			assert.Equal(t, tt.expected, actual)
		})
	}
}
