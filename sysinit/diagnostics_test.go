// SPDX-FileCopyrightText: 2025 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package sysinit_test

import (
	"bytes"
	"errors"
	"io"
	"os"
	"testing"

	"github.com/aibor/enclaveos/sysinit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

type brokenWriter struct{}

func (brokenWriter) Write([]byte) (int, error) {
	return 0, errors.New("broken")
}

func TestDiagnostics_Write(t *testing.T) {
	tests := []struct {
		name             string
		primary          io.Writer
		fallback         func(*bytes.Buffer) func() (io.Writer, error)
		expectedFallback string
		expectedDegraded bool
		expectedDropped  int
	}{
		{
			name:    "primary",
			primary: &bytes.Buffer{},
		},
		{
			name:    "fallback",
			primary: brokenWriter{},
			fallback: func(buf *bytes.Buffer) func() (io.Writer, error) {
				return func() (io.Writer, error) { return buf, nil }
			},
			expectedFallback: "msgmsg",
			expectedDegraded: true,
		},
		{
			name:    "fallback unavailable",
			primary: brokenWriter{},
			fallback: func(*bytes.Buffer) func() (io.Writer, error) {
				return func() (io.Writer, error) { return nil, assert.AnError }
			},
			expectedDegraded: true,
			expectedDropped:  2,
		},
		{
			name:             "no fallback",
			primary:          brokenWriter{},
			expectedDegraded: true,
			expectedDropped:  2,
		},
		{
			name:    "fallback broken",
			primary: brokenWriter{},
			fallback: func(*bytes.Buffer) func() (io.Writer, error) {
				return func() (io.Writer, error) { return brokenWriter{}, nil }
			},
			expectedDegraded: true,
			expectedDropped:  2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var fallbackBuf bytes.Buffer

			var openFallback func() (io.Writer, error)
			if tt.fallback != nil {
				openFallback = tt.fallback(&fallbackBuf)
			}

			diag := sysinit.NewDiagnostics(tt.primary, openFallback)

			for range 2 {
				n, err := diag.Write([]byte("msg"))
				require.NoError(t, err, "writes never fail")
				assert.Equal(t, 3, n)
			}

			assert.Equal(t, tt.expectedFallback, fallbackBuf.String())
			assert.Equal(t, tt.expectedDegraded, diag.Degraded())
			assert.Equal(t, tt.expectedDropped, diag.Dropped())
			assert.NoError(t, diag.Sync())
		})
	}
}

func TestDiagnostics_Validate(t *testing.T) {
	t.Run("healthy file", func(t *testing.T) {
		file, err := os.CreateTemp(t.TempDir(), "console")
		require.NoError(t, err)

		t.Cleanup(func() { _ = file.Close() })

		diag := sysinit.NewDiagnostics(file, nil)
		require.NoError(t, diag.Validate())
		assert.False(t, diag.Degraded())
	})

	t.Run("closed file", func(t *testing.T) {
		file, err := os.CreateTemp(t.TempDir(), "console")
		require.NoError(t, err)
		require.NoError(t, file.Close())

		var fallback bytes.Buffer

		diag := sysinit.NewDiagnostics(file, func() (io.Writer, error) {
			return &fallback, nil
		})

		err = diag.Validate()
		require.Error(t, err)
		require.NotErrorIs(t, err, sysinit.ErrDiagnosticsUnavailable)
		assert.True(t, diag.Degraded())

		_, _ = diag.Write([]byte("visible"))
		assert.Equal(t, "visible", fallback.String())
	})

	t.Run("nothing usable", func(t *testing.T) {
		diag := sysinit.NewDiagnostics(&bytes.Buffer{}, nil)
		diag.Degrade()

		err := diag.Validate()
		require.ErrorIs(t, err, sysinit.ErrDiagnosticsUnavailable)
	})
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer

	diag := sysinit.NewDiagnostics(&buf, nil)
	logger := sysinit.NewLogger(diag, zapcore.InfoLevel)

	logger.Debug("hidden")
	logger.Info("visible")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "INFO")
	assert.Contains(t, buf.String(), "enclaveos")
	assert.Contains(t, buf.String(), "visible")
}
