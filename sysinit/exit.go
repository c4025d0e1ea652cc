// SPDX-FileCopyrightText: 2025 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package sysinit

import (
	"context"
	"fmt"

	"golang.org/x/sys/unix"
)

// TerminalAction is what the init program does once the boot sequence ends.
type TerminalAction int

// Terminal actions.
const (
	// ActionHalt powers the enclave off.
	ActionHalt TerminalAction = iota

	// ActionReboot restarts the enclave. Most enclave hypervisors terminate
	// the enclave on reboot.
	ActionReboot

	// ActionIdle keeps the init program alive without doing anything.
	ActionIdle
)

// String implements [fmt.Stringer].
func (a TerminalAction) String() string {
	switch a {
	case ActionHalt:
		return "halt"
	case ActionReboot:
		return "reboot"
	case ActionIdle:
		return "idle"
	default:
		return fmt.Sprintf("action(%d)", int(a))
	}
}

// MarshalText implements [encoding.TextMarshaler].
func (a TerminalAction) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText implements [encoding.TextUnmarshaler].
func (a *TerminalAction) UnmarshalText(text []byte) error {
	switch string(text) {
	case "halt", "poweroff":
		*a = ActionHalt
	case "reboot":
		*a = ActionReboot
	case "idle":
		*a = ActionIdle
	default:
		return fmt.Errorf("unknown terminal action %q", text)
	}

	return nil
}

// Terminator carries out [TerminalAction]s.
type Terminator interface {
	Halt() error
	Reboot() error
}

// KernelTerminator is a [Terminator] using reboot(2).
type KernelTerminator struct{}

var _ Terminator = KernelTerminator{}

// Halt powers the system off. It does not return, unless in case of error.
func (KernelTerminator) Halt() error {
	return reboot(unix.LINUX_REBOOT_CMD_POWER_OFF)
}

// Reboot restarts the system. It does not return, unless in case of error.
func (KernelTerminator) Reboot() error {
	return reboot(unix.LINUX_REBOOT_CMD_RESTART)
}

// Terminate carries out the given action.
//
// [ActionIdle] blocks until the context is done and returns its error.
func Terminate(ctx context.Context, terminator Terminator, action TerminalAction) error {
	switch action {
	case ActionHalt:
		return terminator.Halt()
	case ActionReboot:
		return terminator.Reboot()
	case ActionIdle:
		<-ctx.Done()
		return ctx.Err() //nolint:wrapcheck
	default:
		return fmt.Errorf("unknown terminal action %d", int(action))
	}
}
