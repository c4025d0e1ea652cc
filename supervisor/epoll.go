// SPDX-FileCopyrightText: 2025 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package supervisor

import (
	"encoding/binary"
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

const (
	// Interest for stream descriptors. Level-triggered, but disarmed after
	// each reported event until re-armed.
	streamEvents = unix.EPOLLIN | unix.EPOLLRDHUP | unix.EPOLLONESHOT

	eventfdValueSize = 8
)

// EpollPoller is a [Poller] based on epoll(7).
//
// An eventfd(2) is registered in the same epoll set as control descriptor, so
// that [EpollPoller.Wake] interrupts a blocking [EpollPoller.Wait].
type EpollPoller struct {
	epfd   int
	wakefd int
	buf    []unix.EpollEvent
}

var _ Poller = (*EpollPoller)(nil)

// NewEpollPoller creates a new [EpollPoller].
func NewEpollPoller() (*EpollPoller, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("epoll_create1: %w", err)
	}

	wakefd, err := unix.Eventfd(0, unix.EFD_CLOEXEC|unix.EFD_NONBLOCK)
	if err != nil {
		_ = unix.Close(epfd)
		return nil, fmt.Errorf("eventfd: %w", err)
	}

	poller := &EpollPoller{
		epfd:   epfd,
		wakefd: wakefd,
	}

	err = poller.ctl(unix.EPOLL_CTL_ADD, wakefd, KeyWake, unix.EPOLLIN)
	if err != nil {
		_ = poller.Close()
		return nil, err
	}

	return poller, nil
}

func (p *EpollPoller) ctl(op, fd int, key Key, events uint32) error {
	event := unix.EpollEvent{
		Events: events,
		Fd:     int32(key), //nolint:gosec
	}

	if err := unix.EpollCtl(p.epfd, op, fd, &event); err != nil {
		return fmt.Errorf("epoll_ctl: %w", err)
	}

	return nil
}

// Add implements [Poller].
func (p *EpollPoller) Add(fd int, key Key) error {
	return p.ctl(unix.EPOLL_CTL_ADD, fd, key, streamEvents)
}

// Rearm implements [Poller].
func (p *EpollPoller) Rearm(fd int, key Key) error {
	return p.ctl(unix.EPOLL_CTL_MOD, fd, key, streamEvents)
}

// Delete implements [Poller].
func (p *EpollPoller) Delete(fd int) error {
	err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, fd, nil)
	if err != nil {
		return fmt.Errorf("epoll_ctl: %w", err)
	}

	return nil
}

// Wait implements [Poller]. It blocks without timeout.
func (p *EpollPoller) Wait(events []Event) (int, error) {
	if len(events) == 0 {
		return 0, nil
	}

	if cap(p.buf) < len(events) {
		p.buf = make([]unix.EpollEvent, len(events))
	}

	buf := p.buf[:len(events)]

	for {
		n, err := unix.EpollWait(p.epfd, buf, -1)
		if errors.Is(err, unix.EINTR) {
			continue
		}

		if err != nil {
			return 0, fmt.Errorf("epoll_wait: %w", err)
		}

		for idx := range n {
			key := Key(buf[idx].Fd)
			if key == KeyWake {
				p.drainWake()
			}

			events[idx] = Event{Key: key}
		}

		return n, nil
	}
}

// drainWake resets the eventfd counter, so the wake event is reported once
// per call of Wake.
func (p *EpollPoller) drainWake() {
	var value [eventfdValueSize]byte

	_, _ = unix.Read(p.wakefd, value[:])
}

// Wake implements [Poller].
func (p *EpollPoller) Wake() error {
	var value [eventfdValueSize]byte

	binary.NativeEndian.PutUint64(value[:], 1)

	_, err := unix.Write(p.wakefd, value[:])
	if err != nil && !errors.Is(err, unix.EAGAIN) {
		return fmt.Errorf("write eventfd: %w", err)
	}

	return nil
}

// Close implements [Poller].
func (p *EpollPoller) Close() error {
	return errors.Join(
		closeErr("eventfd", p.wakefd),
		closeErr("epoll", p.epfd),
	)
}

func closeErr(name string, fd int) error {
	if err := unix.Close(fd); err != nil {
		return fmt.Errorf("close %s: %w", name, err)
	}

	return nil
}
