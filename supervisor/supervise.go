// SPDX-FileCopyrightText: 2025 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package supervisor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"
)

// DefaultGracePeriod is the time a child has to exit after SIGTERM before it
// is killed.
const DefaultGracePeriod = 5 * time.Second

// Options for [Supervise].
type Options struct {
	// Out receives the tagged lines. Defaults to [os.Stdout].
	Out io.Writer

	// Log is used for diagnostics. Defaults to a no-op logger.
	Log *zap.Logger

	// NewPoller creates the readiness poller. Defaults to
	// [NewEpollPoller].
	NewPoller func() (Poller, error)

	// GracePeriod between SIGTERM and SIGKILL on cancellation. Defaults to
	// [DefaultGracePeriod].
	GracePeriod time.Duration
}

func (o *Options) setDefaults() {
	if o.Out == nil {
		o.Out = os.Stdout
	}

	if o.Log == nil {
		o.Log = zap.NewNop()
	}

	if o.NewPoller == nil {
		o.NewPoller = func() (Poller, error) {
			return NewEpollPoller()
		}
	}

	if o.GracePeriod <= 0 {
		o.GracePeriod = DefaultGracePeriod
	}
}

// Supervise starts the given command and relays its stdout and stderr as
// tagged lines to the configured output until both streams are closed. It
// then reaps the child.
//
// If the context is done or the poller fails, the child is terminated. This
// includes a child that closed both streams but keeps running. Returns [*ExitError] if the child exited
// non-zero. Startup failures are wrapped in [ErrSpawn] or
// [ErrDescriptorMode].
func Supervise(ctx context.Context, command Command, opts Options) error {
	opts.setDefaults()

	log := opts.Log.With(zap.String("command", command.Path))

	poller, err := opts.NewPoller()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrPoller, err)
	}
	defer poller.Close()

	process, err := Start(command)
	if err != nil {
		return err
	}
	defer process.Close()

	log = log.With(zap.Int("pid", process.Pid()))
	logDigest(log, process.Path)
	log.Info("child started", zap.Strings("args", command.Args))

	stdout, stderr := process.Streams()
	mux := NewMultiplexer(poller, opts.Out, log, stdout, stderr)

	runErr := mux.Run(ctx)

	var code int

	if runErr != nil {
		log.Warn("terminating child",
			zap.Error(runErr),
			zap.Duration("grace_period", opts.GracePeriod),
		)

		code, err = process.Terminate(opts.GracePeriod)
	} else {
		var result waitResult

		result, runErr = waitContext(ctx, process, opts.GracePeriod, log)
		code, err = result.code, result.err
	}

	log.Info("child exited", zap.Int("exit_code", code))

	var exitErr *ExitError
	if err != nil && !errors.As(err, &exitErr) {
		return errors.Join(runErr, err)
	}

	if runErr != nil {
		return runErr
	}

	return err
}

type waitResult struct {
	code int
	err  error
}

// waitContext reaps the child after both streams are closed. The child may
// keep running without output, so the context is still honored: once it is
// done the child is terminated and the context error is returned alongside
// the result.
func waitContext(
	ctx context.Context,
	process *Process,
	grace time.Duration,
	log *zap.Logger,
) (waitResult, error) {
	done := make(chan waitResult, 1)

	go func() {
		code, err := process.Wait()
		done <- waitResult{code, err}
	}()

	select {
	case result := <-done:
		return result, nil
	case <-ctx.Done():
	}

	log.Warn("terminating child without output",
		zap.Error(ctx.Err()),
		zap.Duration("grace_period", grace),
	)

	if err := process.Signal(syscall.SIGTERM); err != nil {
		log.Debug("signal child", zap.Error(err))
	}

	timer := time.AfterFunc(grace, func() {
		_ = process.Kill()
	})
	defer timer.Stop()

	return <-done, ctx.Err()
}

func logDigest(log *zap.Logger, path string) {
	digest, size, err := Digest(path)
	if err != nil {
		log.Debug("executable digest unavailable", zap.Error(err))
		return
	}

	log.Info("executable",
		zap.String("path", path),
		zap.String("blake3", digest),
		zap.String("size", humanize.IBytes(uint64(size))), //nolint:gosec
	)
}
