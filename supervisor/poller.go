// SPDX-FileCopyrightText: 2025 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package supervisor

import "fmt"

// Key identifies a descriptor registered with a [Poller].
type Key int

const (
	// KeyWake is reported by [Poller.Wait] after [Poller.Wake] was called.
	KeyWake Key = 0

	// KeyStdout is the key of the child's stdout stream.
	KeyStdout Key = 1

	// KeyStderr is the key of the child's stderr stream.
	KeyStderr Key = 2
)

// Tag returns the prefix used for output lines of the stream with this key.
func (k Key) Tag() string {
	switch k {
	case KeyStdout:
		return "[STDOUT]"
	case KeyStderr:
		return "[STDERR]"
	default:
		return fmt.Sprintf("[KEY%d]", int(k))
	}
}

// String implements [fmt.Stringer].
func (k Key) String() string {
	switch k {
	case KeyWake:
		return "wake"
	case KeyStdout:
		return "stdout"
	case KeyStderr:
		return "stderr"
	default:
		return fmt.Sprintf("key%d", int(k))
	}
}

// Event is a readiness event reported by [Poller.Wait]. Hang up and error
// conditions are reported as readiness, since the next read reveals them.
type Event struct {
	Key Key
}

// Poller is a level-triggered readiness poller with one-shot interest.
//
// After an event for a descriptor was reported, the descriptor is not
// reported again until it is re-armed with [Poller.Rearm]. Implementations
// must be safe to call [Poller.Wake] from another goroutine while
// [Poller.Wait] blocks. All other methods are only called from the goroutine
// running the [Multiplexer].
type Poller interface {
	// Add registers the descriptor with the given key and arms it.
	Add(fd int, key Key) error

	// Rearm arms the descriptor again after an event was reported.
	Rearm(fd int, key Key) error

	// Delete removes the descriptor permanently.
	Delete(fd int) error

	// Wait blocks until at least one event is available and stores the
	// events in the given slice. It returns the number of events stored.
	Wait(events []Event) (int, error)

	// Wake makes a blocking or the next call of Wait return an event with
	// [KeyWake].
	Wake() error

	// Close releases the poller's resources.
	Close() error
}
