// SPDX-FileCopyrightText: 2025 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package sysinit_test

import (
	"bytes"
	"io"
	"testing"

	"github.com/aibor/enclaveos/sysinit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

type fakeBinder struct {
	bound []sysinit.ConsoleBinding
	fail  map[sysinit.StreamSlot]error
}

func (b *fakeBinder) Bind(binding sysinit.ConsoleBinding) error {
	if err := b.fail[binding.Slot]; err != nil {
		return err
	}

	b.bound = append(b.bound, binding)

	return nil
}

func TestConsoleBindings(t *testing.T) {
	expected := []sysinit.ConsoleBinding{
		{Path: "/dev/console", Mode: sysinit.ConsoleRead, Slot: sysinit.SlotStdin},
		{Path: "/dev/console", Mode: sysinit.ConsoleWrite, Slot: sysinit.SlotStdout},
		{Path: "/dev/console", Mode: sysinit.ConsoleWrite, Slot: sysinit.SlotStderr},
	}

	assert.Equal(t, expected, sysinit.ConsoleBindings(sysinit.DefaultConsolePath))
}

func TestBindConsole(t *testing.T) {
	tests := []struct {
		name                string
		fail                map[sysinit.StreamSlot]error
		expectedBound       []sysinit.StreamSlot
		expectedWriteFailed bool
	}{
		{
			name:          "all bound",
			expectedBound: []sysinit.StreamSlot{sysinit.SlotStdin, sysinit.SlotStdout, sysinit.SlotStderr},
		},
		{
			name:          "stdin fails",
			fail:          map[sysinit.StreamSlot]error{sysinit.SlotStdin: assert.AnError},
			expectedBound: []sysinit.StreamSlot{sysinit.SlotStdout, sysinit.SlotStderr},
		},
		{
			name:                "stdout fails",
			fail:                map[sysinit.StreamSlot]error{sysinit.SlotStdout: assert.AnError},
			expectedBound:       []sysinit.StreamSlot{sysinit.SlotStdin, sysinit.SlotStderr},
			expectedWriteFailed: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			binder := &fakeBinder{fail: tt.fail}

			err := sysinit.BindConsole(binder, sysinit.ConsoleBindings("/dev/ttyS0"))

			bound := []sysinit.StreamSlot{}
			for _, binding := range binder.bound {
				bound = append(bound, binding.Slot)
			}

			assert.Equal(t, tt.expectedBound, bound)

			if tt.fail == nil {
				require.NoError(t, err)
				return
			}

			require.ErrorIs(t, err, sysinit.ErrConsoleBind)
			require.ErrorIs(t, err, assert.AnError)

			var consoleErr *sysinit.ConsoleError
			require.ErrorAs(t, err, &consoleErr)
			assert.Equal(t, tt.expectedWriteFailed, consoleErr.WriteFailed())
		})
	}
}

func TestWithConsole(t *testing.T) {
	t.Run("write failure degrades diagnostics", func(t *testing.T) {
		var primary, fallback bytes.Buffer

		diag := sysinit.NewDiagnostics(&primary, func() (io.Writer, error) {
			return &fallback, nil
		})
		state := sysinit.NewState(sysinit.NewLogger(diag, zapcore.DebugLevel), diag)

		binder := &fakeBinder{fail: map[sysinit.StreamSlot]error{
			sysinit.SlotStderr: assert.AnError,
		}}

		err := sysinit.WithConsole(binder, sysinit.ConsoleBindings("/dev/console"), sysinit.SeverityBestEffort)(state)
		require.ErrorIs(t, err, sysinit.ErrConsoleBind)
		assert.False(t, sysinit.IsFatal(err))
		assert.True(t, diag.Degraded())

		state.Log.Info("after bind")
		assert.NotContains(t, primary.String(), "after bind")
		assert.Contains(t, fallback.String(), "after bind")
	})

	t.Run("critical", func(t *testing.T) {
		binder := &fakeBinder{fail: map[sysinit.StreamSlot]error{
			sysinit.SlotStdin: assert.AnError,
		}}

		err := sysinit.WithConsole(binder, sysinit.ConsoleBindings("/dev/console"), sysinit.SeverityCritical)(sysinit.NewState(nil, nil))
		require.ErrorIs(t, err, sysinit.ErrConsoleBind)
		assert.True(t, sysinit.IsFatal(err))
	})

	t.Run("success", func(t *testing.T) {
		binder := &fakeBinder{}

		err := sysinit.WithConsole(binder, sysinit.ConsoleBindings("/dev/console"), sysinit.SeverityCritical)(sysinit.NewState(nil, nil))
		require.NoError(t, err)
		assert.Len(t, binder.bound, 3)
	})
}
