// SPDX-FileCopyrightText: 2025 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package sysinit

import "fmt"

// Severity classifies how a failure of a boot step or mount entry is handled.
type Severity int

const (
	// SeverityBestEffort failures are logged and the boot continues.
	SeverityBestEffort Severity = iota

	// SeverityCritical failures abort the boot sequence.
	SeverityCritical
)

// String implements [fmt.Stringer].
func (s Severity) String() string {
	switch s {
	case SeverityBestEffort:
		return "best-effort"
	case SeverityCritical:
		return "critical"
	default:
		return fmt.Sprintf("severity(%d)", int(s))
	}
}

// MarshalText implements [encoding.TextMarshaler].
func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements [encoding.TextUnmarshaler].
func (s *Severity) UnmarshalText(text []byte) error {
	switch string(text) {
	case "best-effort", "":
		*s = SeverityBestEffort
	case "critical":
		*s = SeverityCritical
	default:
		return fmt.Errorf("unknown severity %q", text)
	}

	return nil
}
