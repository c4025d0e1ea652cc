// SPDX-FileCopyrightText: 2025 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package sysinit

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"
)

const (
	// DefaultEntropyBytes is the number of bytes requested for seeding.
	DefaultEntropyBytes = 4096

	// DefaultEntropyAttempts is the number of attempts before seeding is
	// given up.
	DefaultEntropyAttempts = 3

	// RandomDevicePath is the kernel random device used for seeding.
	RandomDevicePath = "/dev/random"
)

// EntropySource provides random bytes from the platform, e.g. a hardware
// random number generator or a secure module of the hypervisor.
type EntropySource interface {
	Entropy(n int) ([]byte, error)
}

// EntropySourceFunc is a function implementing [EntropySource].
type EntropySourceFunc func(n int) ([]byte, error)

// Entropy implements [EntropySource].
func (f EntropySourceFunc) Entropy(n int) ([]byte, error) {
	return f(n)
}

// FileEntropySource reads entropy from a character device.
type FileEntropySource struct {
	Path string
}

var _ EntropySource = FileEntropySource{}

// Entropy implements [EntropySource].
func (s FileEntropySource) Entropy(n int) ([]byte, error) {
	file, err := os.Open(s.Path)
	if err != nil {
		return nil, fmt.Errorf("open entropy source: %w", err)
	}
	defer file.Close()

	data := make([]byte, n)

	read, err := io.ReadFull(file, data)
	if err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
			err = ErrShortEntropy
		}

		return data[:read], fmt.Errorf("read %s: %w", s.Path, err)
	}

	return data, nil
}

// EntropySink accepts random bytes and feeds them into the kernel's random
// pool. It returns the number of bytes seeded.
type EntropySink interface {
	Seed(data []byte) (int, error)
}

// KernelEntropySink seeds the kernel's random pool via the RNDADDENTROPY
// ioctl, so the bytes are credited as entropy.
type KernelEntropySink struct {
	// Path of the random device. Defaults to [RandomDevicePath].
	Path string
}

var _ EntropySink = KernelEntropySink{}

// Seed implements [EntropySink].
func (s KernelEntropySink) Seed(data []byte) (int, error) {
	path := s.Path
	if path == "" {
		path = RandomDevicePath
	}

	file, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		return 0, fmt.Errorf("open random device: %w", err)
	}
	defer file.Close()

	if err := addEntropy(int(file.Fd()), data); err != nil {
		return 0, err
	}

	return len(data), nil
}

// SeedEntropy requests n bytes from the source and writes them into the
// sink. It returns the number of bytes seeded.
//
// The whole request is tried up to attempts times. If all attempts failed, the
// last error is returned wrapped in [ErrEntropySeed].
func SeedEntropy(source EntropySource, sink EntropySink, n, attempts int) (int, error) {
	var lastErr error

	for range max(attempts, 1) {
		seeded, err := seedOnce(source, sink, n)
		if err == nil {
			return seeded, nil
		}

		lastErr = err
	}

	return 0, fmt.Errorf("%w: %w", ErrEntropySeed, lastErr)
}

func seedOnce(source EntropySource, sink EntropySink, n int) (int, error) {
	data, err := source.Entropy(n)
	if err != nil {
		return 0, fmt.Errorf("source: %w", err)
	}

	if len(data) < n {
		return 0, fmt.Errorf("source: %w: %d of %d bytes", ErrShortEntropy, len(data), n)
	}

	seeded, err := sink.Seed(data[:n])
	if err != nil {
		return 0, fmt.Errorf("sink: %w", err)
	}

	return seeded, nil
}

// WithEntropy returns a setup [Func] that wraps [SeedEntropy].
//
// A failure is always logged as a warning, regardless of the severity.
func WithEntropy(
	source EntropySource,
	sink EntropySink,
	n, attempts int,
	severity Severity,
) Func {
	return func(state *State) error {
		seeded, err := SeedEntropy(source, sink, n, attempts)
		if err != nil {
			state.Log.Warn("kernel random pool not seeded",
				zap.Int("attempts", attempts),
				zap.Error(err),
			)

			return &StepError{Step: "entropy", Severity: severity, Err: err}
		}

		state.Log.Info("seeded kernel with entropy",
			zap.Int("bytes", seeded),
			zap.String("size", humanize.IBytes(uint64(seeded))), //nolint:gosec
		)

		return nil
	}
}
