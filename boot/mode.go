// SPDX-FileCopyrightText: 2025 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package boot

import "fmt"

// Mode determines how bridge and workload are run.
type Mode int

const (
	// ModeConcurrent runs bridge and workload in parallel and waits for both.
	// If one of them fails, the other one is canceled.
	ModeConcurrent Mode = iota

	// ModeBlocking supervises the bridge until it exits and runs the workload
	// afterwards.
	ModeBlocking
)

// String implements [fmt.Stringer].
func (m Mode) String() string {
	switch m {
	case ModeConcurrent:
		return "concurrent"
	case ModeBlocking:
		return "blocking"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// MarshalText implements [encoding.TextMarshaler].
func (m Mode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText implements [encoding.TextUnmarshaler].
func (m *Mode) UnmarshalText(text []byte) error {
	switch string(text) {
	case "concurrent", "":
		*m = ModeConcurrent
	case "blocking":
		*m = ModeBlocking
	default:
		return fmt.Errorf("unknown mode %q", text)
	}

	return nil
}
