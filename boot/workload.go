// SPDX-FileCopyrightText: 2025 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package boot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"syscall"
	"time"

	"github.com/aibor/enclaveos/supervisor"
	"go.uber.org/zap"
)

// Workload is a long running task of the enclave. It must return once the
// context is done.
type Workload interface {
	Run(ctx context.Context) error
}

// WorkloadFunc is a function implementing [Workload].
type WorkloadFunc func(ctx context.Context) error

// Run implements [Workload].
func (f WorkloadFunc) Run(ctx context.Context) error {
	return f(ctx)
}

// Bridge is a [Workload] that supervises the bridge process and relays its
// output as tagged lines.
type Bridge struct {
	Command supervisor.Command
	Options supervisor.Options
}

var _ Workload = (*Bridge)(nil)

// Run implements [Workload].
func (b *Bridge) Run(ctx context.Context) error {
	if err := supervisor.Supervise(ctx, b.Command, b.Options); err != nil {
		return fmt.Errorf("%w: %w", ErrBridge, err)
	}

	return nil
}

// ProcessWorkload is a [Workload] that runs an external service binary with
// its output attached to the console.
type ProcessWorkload struct {
	Command supervisor.Command

	// Stdout and Stderr of the process. Default to [os.Stdout] and
	// [os.Stderr].
	Stdout io.Writer
	Stderr io.Writer

	// GracePeriod between SIGTERM and SIGKILL once the context is done.
	// Defaults to [supervisor.DefaultGracePeriod].
	GracePeriod time.Duration

	// Probe is optional. If set, it is run once the process started and a
	// log line is written once the workload is reachable.
	Probe *Probe

	Log *zap.Logger
}

var _ Workload = (*ProcessWorkload)(nil)

// Run implements [Workload]. A non-zero exit is returned wrapped in
// [ErrWorkload] and carries the exit code.
func (w *ProcessWorkload) Run(ctx context.Context) error {
	log := w.Log
	if log == nil {
		log = zap.NewNop()
	}

	path, err := supervisor.Resolve(w.Command.Path)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrWorkload, err)
	}

	cmd := exec.CommandContext(ctx, path, w.Command.Args...)
	cmd.Env = w.Command.Env
	cmd.Stdout = valueOr[io.Writer](w.Stdout, os.Stdout)
	cmd.Stderr = valueOr[io.Writer](w.Stderr, os.Stderr)
	cmd.WaitDelay = valueOr(w.GracePeriod, supervisor.DefaultGracePeriod)
	cmd.Cancel = func() error {
		return cmd.Process.Signal(syscall.SIGTERM)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("%w: start: %w", ErrWorkload, err)
	}

	log.Info("workload started",
		zap.String("path", path),
		zap.Int("pid", cmd.Process.Pid),
	)

	stopProbe := w.startProbe(ctx, log)
	err = cmd.Wait()

	stopProbe()

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			log.Warn("workload exited", zap.Int("exit_code", exitErr.ExitCode()))
		}

		return fmt.Errorf("%w: %w", ErrWorkload, err)
	}

	log.Info("workload exited", zap.Int("exit_code", 0))

	return nil
}

func (w *ProcessWorkload) startProbe(ctx context.Context, log *zap.Logger) func() {
	if w.Probe == nil {
		return func() {}
	}

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	go func() {
		defer close(done)

		start := time.Now()

		if err := w.Probe.Wait(ctx); err != nil {
			log.Debug("readiness probe stopped", zap.Error(err))
			return
		}

		log.Info("workload reachable",
			zap.String("addr", w.Probe.Addr),
			zap.Duration("after", time.Since(start)),
		)
	}()

	return func() {
		cancel()
		<-done
	}
}

func valueOr[T comparable](value, fallback T) T {
	var zero T
	if value == zero {
		return fallback
	}

	return value
}
