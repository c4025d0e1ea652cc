// SPDX-FileCopyrightText: 2025 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package supervisor

import (
	"errors"
	"fmt"
	"io"

	"golang.org/x/sys/unix"
)

// fdReader reads from a raw non-blocking descriptor.
//
// The descriptors are owned by the [Multiplexer] and must not be handed to
// the Go runtime poller, so no [os.File] is involved.
type fdReader int

// Read implements [io.Reader]. It returns [ErrWouldBlock] if no data is
// available and [io.EOF] once the write end is closed.
func (r fdReader) Read(buf []byte) (int, error) {
	for {
		n, err := unix.Read(int(r), buf)

		switch {
		case errors.Is(err, unix.EINTR):
			continue
		case errors.Is(err, unix.EAGAIN):
			return 0, ErrWouldBlock
		case err != nil:
			return 0, fmt.Errorf("read: %w", err)
		case n == 0 && len(buf) > 0:
			return 0, io.EOF
		default:
			return n, nil
		}
	}
}

func setNonblock(fd int) error {
	if err := unix.SetNonblock(fd, true); err != nil {
		return fmt.Errorf("%w: fd %d: %w", ErrDescriptorMode, fd, err)
	}

	return nil
}

// pipe creates a pipe with close-on-exec set on both ends. The child gets a
// duplicate of the write end on its standard stream slot.
func pipe() (int, int, error) {
	var fds [2]int

	if err := unix.Pipe2(fds[:], unix.O_CLOEXEC); err != nil {
		return -1, -1, fmt.Errorf("pipe2: %w", err)
	}

	return fds[0], fds[1], nil
}

func closeFD(fd int) error {
	if err := unix.Close(fd); err != nil {
		return fmt.Errorf("close fd %d: %w", fd, err)
	}

	return nil
}
