// SPDX-FileCopyrightText: 2025 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package sysinit

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	// KmsgPath is the kernel log device used as diagnostics fallback.
	KmsgPath = "/dev/kmsg"

	// Records longer than this are truncated by the kernel anyway.
	kmsgMaxRecord = 976
)

// ErrDiagnosticsUnavailable is returned by [Diagnostics.Validate] if neither
// the primary writer nor the fallback are usable.
var ErrDiagnosticsUnavailable = errors.New("no diagnostics sink available")

// Diagnostics is the sink for all diagnostic output of the init program.
//
// It writes to the primary writer until a write fails or it is degraded
// explicitly. From then on it writes to the fallback writer, which is opened
// lazily. Writes never fail: if no writer is usable, the output is dropped
// and counted. This way a broken console never turns into further errors.
//
// Diagnostics implements [zapcore.WriteSyncer] and is safe for concurrent use.
type Diagnostics struct {
	mu           sync.Mutex
	primary      io.Writer
	openFallback func() (io.Writer, error)
	fallback     io.Writer
	fallbackErr  error
	degraded     bool
	dropped      int
}

var _ zapcore.WriteSyncer = (*Diagnostics)(nil)

// NewDiagnostics creates a new [Diagnostics] sink. The openFallback function
// may be nil, in which case output is dropped once the primary writer fails.
func NewDiagnostics(primary io.Writer, openFallback func() (io.Writer, error)) *Diagnostics {
	return &Diagnostics{
		primary:      primary,
		openFallback: openFallback,
	}
}

// Write implements [io.Writer]. It always reports the full length written.
func (d *Diagnostics) Write(data []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.degraded {
		if _, err := d.primary.Write(data); err == nil {
			return len(data), nil
		}

		d.degraded = true
	}

	if w := d.fallbackWriter(); w != nil {
		if _, err := w.Write(data); err == nil {
			return len(data), nil
		}
	}

	d.dropped++

	return len(data), nil
}

// Sync implements [zapcore.WriteSyncer]. Console and kernel log are
// unbuffered, so there is nothing to do.
func (*Diagnostics) Sync() error {
	return nil
}

// Degrade switches to the fallback writer.
func (d *Diagnostics) Degrade() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.degraded = true
}

// Degraded returns true if the primary writer is not used anymore.
func (d *Diagnostics) Degraded() bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.degraded
}

// Dropped returns the number of writes that could not be delivered at all.
func (d *Diagnostics) Dropped() int {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.dropped
}

// Validate checks that output written to the sink is observable.
//
// If the primary writer is an [*os.File] that is not usable (e.g. because the
// descriptor is closed), the sink is degraded. If degraded, the fallback is
// opened. An error is returned if the sink had to be degraded or no writer is
// usable at all.
func (d *Diagnostics) Validate() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	var primaryErr error

	if file, ok := d.primary.(*os.File); ok && !d.degraded {
		if _, err := file.Stat(); err != nil {
			primaryErr = fmt.Errorf("primary: %w", err)
			d.degraded = true
		}
	}

	if !d.degraded {
		return nil
	}

	if d.fallbackWriter() == nil {
		return fmt.Errorf("%w: %w", ErrDiagnosticsUnavailable,
			errors.Join(primaryErr, d.fallbackErr))
	}

	if primaryErr != nil {
		return primaryErr
	}

	return nil
}

func (d *Diagnostics) fallbackWriter() io.Writer {
	if d.fallback != nil || d.fallbackErr != nil {
		return d.fallback
	}

	if d.openFallback == nil {
		d.fallbackErr = errors.New("no fallback")
		return nil
	}

	d.fallback, d.fallbackErr = d.openFallback()

	return d.fallback
}

// OpenKmsg opens the kernel log for writing. It can be used as fallback of
// [NewDiagnostics].
func OpenKmsg() (io.Writer, error) {
	file, err := os.OpenFile(KmsgPath, os.O_WRONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("open kmsg: %w", err)
	}

	return &kmsgWriter{w: file}, nil
}

// kmsgWriter writes each call as a single kernel log record.
type kmsgWriter struct {
	w io.Writer
}

func (k *kmsgWriter) Write(data []byte) (int, error) {
	record := data
	if len(record) > kmsgMaxRecord {
		record = record[:kmsgMaxRecord]
	}

	if _, err := k.w.Write(append([]byte("enclaveos: "), record...)); err != nil {
		return 0, fmt.Errorf("write kmsg: %w", err)
	}

	return len(data), nil
}

// NewLogger creates a console logger writing to the given sink.
func NewLogger(sink zapcore.WriteSyncer, level zapcore.LevelEnabler) *zap.Logger {
	encoderCfg := zapcore.EncoderConfig{
		TimeKey:          "ts",
		LevelKey:         "level",
		NameKey:          "logger",
		MessageKey:       "msg",
		StacktraceKey:    "stacktrace",
		LineEnding:       zapcore.DefaultLineEnding,
		EncodeLevel:      zapcore.CapitalLevelEncoder,
		EncodeTime:       zapcore.ISO8601TimeEncoder,
		EncodeDuration:   zapcore.StringDurationEncoder,
		EncodeName:       zapcore.FullNameEncoder,
		ConsoleSeparator: " ",
	}

	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encoderCfg), sink, level)

	return zap.New(core, zap.ErrorOutput(sink)).Named("enclaveos")
}
