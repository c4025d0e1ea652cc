// SPDX-FileCopyrightText: 2025 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package supervisor

import (
	"errors"
	"io"
	"slices"
)

type readStep struct {
	data string
	err  error
}

// fakeReader returns its steps in order and [ErrWouldBlock] once it ran out
// of steps.
type fakeReader struct {
	steps []readStep
	reads int
}

func (r *fakeReader) pending() bool {
	return len(r.steps) > 0
}

func (r *fakeReader) Read(buf []byte) (int, error) {
	r.reads++

	if len(r.steps) == 0 {
		return 0, ErrWouldBlock
	}

	step := r.steps[0]
	r.steps = r.steps[1:]

	n := copy(buf, step.data)
	if n < len(step.data) {
		r.steps = slices.Insert(r.steps, 0, readStep{data: step.data[n:], err: step.err})
		return n, nil
	}

	return n, step.err
}

func eof(data string) readStep {
	return readStep{data: data, err: io.EOF}
}

func chunk(data string) readStep {
	return readStep{data: data}
}

func wouldBlock() readStep {
	return readStep{err: ErrWouldBlock}
}

// fakePoller reports armed keys whose reader has pending steps, in the
// configured order. It blocks for a wake-up if nothing is ready.
type fakePoller struct {
	readers map[Key]*fakeReader
	order   []Key
	armed   map[Key]bool
	fds     map[int]Key
	wake    chan struct{}

	addErr  error
	waitErr error

	added   []Key
	rearmed []Key
	deleted []Key
	closed  bool
}

func newFakePoller(readers map[Key]*fakeReader, order ...Key) *fakePoller {
	if len(order) == 0 {
		order = []Key{KeyStdout, KeyStderr}
	}

	return &fakePoller{
		readers: readers,
		order:   order,
		armed:   map[Key]bool{},
		fds:     map[int]Key{},
		wake:    make(chan struct{}, 1),
	}
}

func (p *fakePoller) streams() []*Stream {
	streams := make([]*Stream, 0, len(p.order))
	for _, key := range p.order {
		streams = append(streams, NewStream(key, fakeFD(key), p.readers[key]))
	}

	return streams
}

func fakeFD(key Key) int {
	return 100 + int(key)
}

func (p *fakePoller) Add(fd int, key Key) error {
	if p.addErr != nil {
		return p.addErr
	}

	p.fds[fd] = key
	p.armed[key] = true
	p.added = append(p.added, key)

	return nil
}

func (p *fakePoller) Rearm(_ int, key Key) error {
	p.armed[key] = true
	p.rearmed = append(p.rearmed, key)

	return nil
}

func (p *fakePoller) Delete(fd int) error {
	key, exists := p.fds[fd]
	if !exists {
		return errors.New("not registered")
	}

	delete(p.fds, fd)
	delete(p.armed, key)
	p.deleted = append(p.deleted, key)

	return nil
}

func (p *fakePoller) Wait(events []Event) (int, error) {
	if p.waitErr != nil {
		return 0, p.waitErr
	}

	var n int

	for _, key := range p.order {
		if n == len(events) {
			break
		}

		if !p.armed[key] || !p.readers[key].pending() {
			continue
		}

		p.armed[key] = false
		events[n] = Event{Key: key}
		n++
	}

	if n > 0 {
		return n, nil
	}

	<-p.wake

	events[0] = Event{Key: KeyWake}

	return 1, nil
}

func (p *fakePoller) Wake() error {
	select {
	case p.wake <- struct{}{}:
	default:
	}

	return nil
}

func (p *fakePoller) Close() error {
	p.closed = true
	return nil
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) {
	return 0, errors.New("console gone")
}
