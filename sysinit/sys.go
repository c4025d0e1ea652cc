// SPDX-FileCopyrightText: 2025 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package sysinit

import (
	"encoding/binary"
	"errors"
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

// randPoolInfoHeaderSize is the size of entropy_count and buf_size of
// struct rand_pool_info.
const randPoolInfoHeaderSize = 8

func getpid() int {
	return unix.Getpid()
}

func mount(path, source, fsType string, flags MountFlags, data string) error {
	if source == "" {
		source = fsType
	}

	err := unix.Mount(source, path, fsType, uintptr(flags), data)
	if err != nil {
		return fmt.Errorf("mount %s: %w", path, err)
	}

	return nil
}

// isAlreadyMounted returns true if the error returned by mount(2) signals
// that the target is already mounted.
func isAlreadyMounted(err error) bool {
	return errors.Is(err, unix.EBUSY)
}

func openConsole(path string, mode ConsoleMode) (int, error) {
	flags := unix.O_NOCTTY | unix.O_CLOEXEC
	if mode == ConsoleWrite {
		flags |= unix.O_WRONLY
	} else {
		flags |= unix.O_RDONLY
	}

	fd, err := unix.Open(path, flags, 0)
	if err != nil {
		return -1, fmt.Errorf("open %s: %w", path, err)
	}

	return fd, nil
}

func dup3(oldfd, newfd int) error {
	if oldfd == newfd {
		// dup3 fails with EINVAL for equal descriptors. Just clear the
		// close-on-exec flag so the descriptor is inherited.
		_, err := unix.FcntlInt(uintptr(newfd), unix.F_SETFD, 0)
		if err != nil {
			return fmt.Errorf("fcntl: %w", err)
		}

		return nil
	}

	if err := unix.Dup3(oldfd, newfd, 0); err != nil {
		return fmt.Errorf("dup3: %w", err)
	}

	return nil
}

func closeFD(fd int) {
	_ = unix.Close(fd)
}

// addEntropy adds the given data to the kernel's random pool and credits it
// with full entropy via the RNDADDENTROPY ioctl.
func addEntropy(fd int, data []byte) error {
	// Buffer is __u32 aligned.
	bufSize := (len(data) + 3) &^ 3
	info := make([]byte, randPoolInfoHeaderSize+bufSize)

	binary.NativeEndian.PutUint32(info[0:4], uint32(len(data)*8)) //nolint:gosec
	binary.NativeEndian.PutUint32(info[4:8], uint32(len(data)))   //nolint:gosec
	copy(info[randPoolInfoHeaderSize:], data)

	_, _, errno := unix.Syscall(
		unix.SYS_IOCTL,
		uintptr(fd),
		uintptr(unix.RNDADDENTROPY),
		uintptr(unsafe.Pointer(&info[0])),
	)
	if errno != 0 {
		return fmt.Errorf("ioctl RNDADDENTROPY: %w", errno)
	}

	return nil
}

func reboot(cmd int) error {
	unix.Sync()

	if err := unix.Reboot(cmd); err != nil {
		return fmt.Errorf("reboot: %w", err)
	}

	return nil
}
