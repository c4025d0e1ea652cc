// SPDX-FileCopyrightText: 2025 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package boot

import (
	"io"
	"os"

	"github.com/aibor/enclaveos/sysinit"
)

// Config parameterizes a [Sequencer].
type Config struct {
	// MountTable is applied first. Defaults to the result of
	// [sysinit.EnclaveMountTable] if nil.
	MountTable sysinit.MountTable

	// Mounter defaults to [sysinit.KernelMounter].
	Mounter sysinit.Mounter

	Console  ConsoleConfig
	Platform PlatformConfig
	Entropy  EntropyConfig

	// Bridge is required.
	Bridge Workload

	// Workload is optional.
	Workload Workload

	Mode Mode

	// OnExit is the terminal action after bridge and workload finished
	// without error.
	OnExit sysinit.TerminalAction

	// OnFailure is the terminal action after any fatal error.
	OnFailure sysinit.TerminalAction

	// Terminator defaults to [sysinit.KernelTerminator].
	Terminator sysinit.Terminator

	// Out receives the exit code line. Defaults to [os.Stdout].
	Out io.Writer
}

// ConsoleConfig configures the console binding step. It is skipped if there
// are no bindings.
type ConsoleConfig struct {
	Bindings []sysinit.ConsoleBinding

	// Binder defaults to [sysinit.KernelBinder].
	Binder   sysinit.Binder
	Severity sysinit.Severity
}

// PlatformConfig configures the platform initialization step. It is skipped
// if no platform is set.
type PlatformConfig struct {
	Platform sysinit.Platform
	Severity sysinit.Severity
}

// EntropyConfig configures the entropy seeding step. It is skipped if no
// source is set.
type EntropyConfig struct {
	Source sysinit.EntropySource

	// Sink defaults to [sysinit.KernelEntropySink].
	Sink sysinit.EntropySink

	// Bytes defaults to [sysinit.DefaultEntropyBytes].
	Bytes int

	// Attempts defaults to [sysinit.DefaultEntropyAttempts].
	Attempts int

	Severity sysinit.Severity
}

func (c *Config) setDefaults() {
	if c.MountTable == nil {
		c.MountTable = sysinit.EnclaveMountTable()
	}

	if c.Mounter == nil {
		c.Mounter = sysinit.KernelMounter{}
	}

	if c.Console.Binder == nil {
		c.Console.Binder = sysinit.KernelBinder{}
	}

	if c.Entropy.Sink == nil {
		c.Entropy.Sink = sysinit.KernelEntropySink{}
	}

	c.Entropy.Bytes = valueOr(c.Entropy.Bytes, sysinit.DefaultEntropyBytes)
	c.Entropy.Attempts = valueOr(c.Entropy.Attempts, sysinit.DefaultEntropyAttempts)

	if c.Terminator == nil {
		c.Terminator = sysinit.KernelTerminator{}
	}

	if c.Out == nil {
		c.Out = os.Stdout
	}
}
