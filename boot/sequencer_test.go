// SPDX-FileCopyrightText: 2025 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package boot_test

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/aibor/enclaveos/boot"
	"github.com/aibor/enclaveos/internal/exitcode"
	"github.com/aibor/enclaveos/supervisor"
	"github.com/aibor/enclaveos/sysinit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// recorder collects the names of called fakes in order.
type recorder struct {
	mu    sync.Mutex
	calls []string
}

func (r *recorder) record(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.calls = append(r.calls, name)
}

func (r *recorder) Calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]string{}, r.calls...)
}

type fakeMounter struct {
	rec  *recorder
	errs map[string]error
}

func (m *fakeMounter) Mount(spec sysinit.MountSpec) error {
	m.rec.record("mount " + spec.Target)
	return m.errs[spec.Target]
}

type fakeBinder struct {
	rec *recorder
	err error
}

func (b *fakeBinder) Bind(binding sysinit.ConsoleBinding) error {
	b.rec.record("bind " + binding.Slot.String())
	return b.err
}

type fakeSink struct {
	rec *recorder
}

func (s *fakeSink) Seed(data []byte) (int, error) {
	s.rec.record("seed")
	return len(data), nil
}

type fakeTerminator struct {
	rec *recorder
}

func (t *fakeTerminator) Halt() error {
	t.rec.record("halt")
	return nil
}

func (t *fakeTerminator) Reboot() error {
	t.rec.record("reboot")
	return nil
}

func recordingWorkload(rec *recorder, name string, err error) boot.Workload {
	return boot.WorkloadFunc(func(context.Context) error {
		rec.record(name)
		return err
	})
}

func newConfig(rec *recorder, out *bytes.Buffer) boot.Config {
	return boot.Config{
		MountTable: sysinit.MountTable{
			{Source: "proc", Target: "/proc", FSType: sysinit.FSTypeProc, Severity: sysinit.SeverityCritical},
			{Source: "tmpfs", Target: "/tmp", FSType: sysinit.FSTypeTmp},
		},
		Mounter: &fakeMounter{rec: rec},
		Console: boot.ConsoleConfig{
			Bindings: sysinit.ConsoleBindings(sysinit.DefaultConsolePath),
			Binder:   &fakeBinder{rec: rec},
		},
		Platform: boot.PlatformConfig{
			Platform: sysinit.PlatformFunc(func() error {
				rec.record("platform")
				return nil
			}),
		},
		Entropy: boot.EntropyConfig{
			Source: sysinit.EntropySourceFunc(func(n int) ([]byte, error) {
				return make([]byte, n), nil
			}),
			Sink: &fakeSink{rec: rec},
		},
		Bridge:     recordingWorkload(rec, "bridge", nil),
		Workload:   recordingWorkload(rec, "workload", nil),
		Mode:       boot.ModeBlocking,
		OnExit:     sysinit.ActionHalt,
		OnFailure:  sysinit.ActionReboot,
		Terminator: &fakeTerminator{rec: rec},
		Out:        out,
	}
}

func TestSequencer_Run(t *testing.T) {
	tests := []struct {
		name          string
		modify        func(*boot.Config, *recorder)
		expectedCalls []string
		expectedCode  int
		expectedErr   error
	}{
		{
			name: "success",
			expectedCalls: []string{
				"mount /proc", "mount /tmp",
				"bind stdin", "bind stdout", "bind stderr",
				"platform",
				"seed",
				"bridge", "workload",
				"halt",
			},
		},
		{
			name: "best-effort failures continue",
			modify: func(cfg *boot.Config, rec *recorder) {
				cfg.Mounter = &fakeMounter{rec: rec, errs: map[string]error{"/tmp": assert.AnError}}
				cfg.Console.Binder = &fakeBinder{rec: rec, err: assert.AnError}
				cfg.Entropy.Source = sysinit.EntropySourceFunc(func(int) ([]byte, error) {
					return nil, assert.AnError
				})
			},
			expectedCalls: []string{
				"mount /proc", "mount /tmp",
				"bind stdin", "bind stdout", "bind stderr",
				"platform",
				"bridge", "workload",
				"halt",
			},
		},
		{
			name: "critical mount failure",
			modify: func(cfg *boot.Config, rec *recorder) {
				cfg.Mounter = &fakeMounter{rec: rec, errs: map[string]error{"/proc": assert.AnError}}
			},
			expectedCalls: []string{"mount /proc", "mount /tmp", "reboot"},
			expectedCode:  exitcode.Unknown,
			expectedErr:   sysinit.ErrCriticalMount,
		},
		{
			name: "critical platform failure",
			modify: func(cfg *boot.Config, _ *recorder) {
				cfg.Platform.Severity = sysinit.SeverityCritical
				cfg.Platform.Platform = sysinit.PlatformFunc(func() error {
					return assert.AnError
				})
			},
			expectedCalls: []string{
				"mount /proc", "mount /tmp",
				"bind stdin", "bind stdout", "bind stderr",
				"reboot",
			},
			expectedCode: exitcode.Unknown,
			expectedErr:  sysinit.ErrPlatformInit,
		},
		{
			name: "bridge fails in blocking mode",
			modify: func(cfg *boot.Config, rec *recorder) {
				cfg.Bridge = recordingWorkload(rec, "bridge", &supervisor.ExitError{Path: "/usr/bin/socat", Code: 3})
			},
			expectedCalls: []string{
				"mount /proc", "mount /tmp",
				"bind stdin", "bind stdout", "bind stderr",
				"platform",
				"seed",
				"bridge",
				"reboot",
			},
			expectedCode: 3,
			expectedErr:  &supervisor.ExitError{},
		},
		{
			name: "no workload",
			modify: func(cfg *boot.Config, _ *recorder) {
				cfg.Workload = nil
				cfg.Console.Bindings = nil
				cfg.Platform.Platform = nil
				cfg.Entropy.Source = nil
			},
			expectedCalls: []string{"mount /proc", "mount /tmp", "bridge", "halt"},
		},
		{
			name: "no bridge",
			modify: func(cfg *boot.Config, _ *recorder) {
				cfg.Bridge = nil
			},
			expectedCalls: []string{
				"mount /proc", "mount /tmp",
				"bind stdin", "bind stdout", "bind stderr",
				"platform",
				"seed",
				"reboot",
			},
			expectedCode: exitcode.Unknown,
			expectedErr:  boot.ErrNoBridge,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var (
				rec recorder
				out bytes.Buffer
			)

			cfg := newConfig(&rec, &out)
			if tt.modify != nil {
				tt.modify(&cfg, &rec)
			}

			err := boot.New(nil, cfg).Run(context.Background())
			require.ErrorIs(t, err, tt.expectedErr)

			assert.Equal(t, tt.expectedCalls, rec.Calls())
			assert.Equal(t, exitcode.Sprint(tt.expectedCode)+"\n", out.String())
		})
	}
}

type specMounter struct {
	mu    sync.Mutex
	specs sysinit.MountTable
}

func (m *specMounter) Mount(spec sysinit.MountSpec) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.specs = append(m.specs, spec)

	return nil
}

func TestSequencer_BootDefaultMountTable(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	state := sysinit.NewState(zap.New(core), nil)
	mounter := &specMounter{}

	sequencer := boot.New(state, boot.Config{
		Mounter: mounter,
		Bridge:  recordingWorkload(&recorder{}, "bridge", nil),
	})

	require.NoError(t, sequencer.Boot())

	assert.Equal(t, sysinit.EnclaveMountTable(), mounter.specs)
	assert.Len(t, mounter.specs, 9)
	assert.Equal(t, 1, logs.FilterMessage("enclave booted").Len())
}

func TestSequencer_BootFailureNotBooted(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	state := sysinit.NewState(zap.New(core), nil)

	var rec recorder

	cfg := newConfig(&rec, &bytes.Buffer{})
	cfg.Mounter = &fakeMounter{
		rec:  &rec,
		errs: map[string]error{"/proc": assert.AnError},
	}

	err := boot.New(state, cfg).Boot()
	require.Error(t, err)
	assert.True(t, sysinit.IsFatal(err))
	assert.Zero(t, logs.FilterMessage("enclave booted").Len())
}

func TestSequencer_ServeConcurrent(t *testing.T) {
	t.Run("both run", func(t *testing.T) {
		var rec recorder

		cfg := newConfig(&rec, &bytes.Buffer{})
		cfg.Mode = boot.ModeConcurrent

		require.NoError(t, boot.New(nil, cfg).Serve(context.Background()))
		assert.ElementsMatch(t, []string{"bridge", "workload"}, rec.Calls())
	})

	t.Run("failure cancels sibling", func(t *testing.T) {
		var rec recorder

		cfg := newConfig(&rec, &bytes.Buffer{})
		cfg.Mode = boot.ModeConcurrent
		cfg.Bridge = recordingWorkload(&rec, "bridge", &supervisor.ExitError{Path: "/usr/bin/socat", Code: 7})
		cfg.Workload = boot.WorkloadFunc(func(ctx context.Context) error {
			select {
			case <-ctx.Done():
				rec.record("workload canceled")
				return ctx.Err()
			case <-time.After(10 * time.Second):
				return nil
			}
		})

		err := boot.New(nil, cfg).Serve(context.Background())
		require.ErrorIs(t, err, &supervisor.ExitError{})

		code, ok := exitcode.From(err)
		assert.True(t, ok)
		assert.Equal(t, 7, code)
		assert.ElementsMatch(t, []string{"bridge", "workload canceled"}, rec.Calls())
	})
}

func TestSequencer_RunIdle(t *testing.T) {
	var (
		rec recorder
		out bytes.Buffer
	)

	cfg := newConfig(&rec, &out)
	cfg.OnExit = sysinit.ActionIdle

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := boot.New(nil, cfg).Run(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	assert.NotContains(t, rec.Calls(), "halt")
	assert.Equal(t, exitcode.Sprint(0)+"\n", out.String())
}

func TestMode_UnmarshalText(t *testing.T) {
	var mode boot.Mode

	require.NoError(t, mode.UnmarshalText([]byte("blocking")))
	assert.Equal(t, boot.ModeBlocking, mode)

	require.NoError(t, mode.UnmarshalText([]byte("concurrent")))
	assert.Equal(t, boot.ModeConcurrent, mode)

	require.Error(t, mode.UnmarshalText([]byte("parallel")))
}
