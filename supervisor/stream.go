// SPDX-FileCopyrightText: 2025 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package supervisor

import (
	"bytes"
	"errors"
	"fmt"
	"io"
)

const (
	readChunkSize = 4096

	// maxReadsPerEvent bounds the reads done for a single readiness event,
	// so a chatty stream can not starve the other one. The descriptor is
	// level-triggered and reported again if data is left.
	maxReadsPerEvent = 16

	// MaxLineLength is the length after which an incomplete line is emitted
	// anyway, to bound the buffer size.
	MaxLineLength = 64 * 1024
)

// StreamState is the state of a [Stream].
type StreamState int

// Stream states. A stream moves from Open to Ready when the poller reported
// an event, to Draining while it is read and then back to Open (re-armed) or
// to Closed. Closed is final.
const (
	StateOpen StreamState = iota
	StateReady
	StateDraining
	StateClosed
)

// String implements [fmt.Stringer].
func (s StreamState) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateReady:
		return "ready"
	case StateDraining:
		return "draining"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// EmitFunc receives each complete line of a [Stream] without line ending.
type EmitFunc func(key Key, line []byte)

// Stream is one output stream of the supervised child.
//
// A Stream is owned by a single [Multiplexer] and must not be used
// concurrently.
type Stream struct {
	key    Key
	fd     int
	reader io.Reader
	buf    []byte
	chunk  []byte
	state  StreamState
}

// NewStream creates a [Stream] for the given descriptor. The reader must
// return [ErrWouldBlock] if no data is available and [io.EOF] once the
// stream is closed by the peer.
func NewStream(key Key, fd int, reader io.Reader) *Stream {
	return &Stream{
		key:    key,
		fd:     fd,
		reader: reader,
		state:  StateOpen,
	}
}

// Key returns the key the stream is registered with.
func (s *Stream) Key() Key {
	return s.key
}

// FD returns the stream's descriptor.
func (s *Stream) FD() int {
	return s.fd
}

// State returns the current state.
func (s *Stream) State() StreamState {
	return s.state
}

// Closed returns true if the stream reached [StateClosed].
func (s *Stream) Closed() bool {
	return s.state == StateClosed
}

// Buffered returns the incomplete line data buffered.
func (s *Stream) Buffered() []byte {
	return s.buf
}

// markReady records a readiness event. It has no effect on closed streams.
func (s *Stream) markReady() bool {
	if s.state == StateClosed {
		return false
	}

	s.state = StateReady

	return true
}

// drain reads available data, emits all complete lines and keeps the
// incomplete tail buffered.
//
// It returns true if the stream got closed. A read error other than
// [ErrWouldBlock] closes the stream like EOF and is returned wrapped in
// [ErrStreamRead]. On close, a non-empty incomplete tail is emitted as final
// line.
func (s *Stream) drain(emit EmitFunc) (bool, error) {
	if s.state != StateReady {
		return s.state == StateClosed, nil
	}

	s.state = StateDraining

	if s.chunk == nil {
		s.chunk = make([]byte, readChunkSize)
	}

	for range maxReadsPerEvent {
		n, err := s.reader.Read(s.chunk)
		if n > 0 {
			s.buf = append(s.buf, s.chunk[:n]...)
			s.emitLines(emit)
		}

		switch {
		case errors.Is(err, ErrWouldBlock):
			s.state = StateOpen
			return false, nil
		case errors.Is(err, io.EOF), err == nil && n == 0:
			s.close(emit)
			return true, nil
		case err != nil:
			s.close(emit)
			return true, fmt.Errorf("%w %s: %w", ErrStreamRead, s.key, err)
		}
	}

	s.state = StateOpen

	return false, nil
}

func (s *Stream) emitLines(emit EmitFunc) {
	for {
		idx := bytes.IndexByte(s.buf, '\n')
		if idx < 0 {
			break
		}

		emit(s.key, bytes.TrimSuffix(s.buf[:idx], []byte("\r")))
		s.buf = s.buf[idx+1:]
	}

	for len(s.buf) >= MaxLineLength {
		emit(s.key, s.buf[:MaxLineLength])
		s.buf = s.buf[MaxLineLength:]
	}

	// Release the consumed part of the underlying array.
	if len(s.buf) == 0 {
		s.buf = nil
	} else {
		s.buf = bytes.Clone(s.buf)
	}
}

func (s *Stream) close(emit EmitFunc) {
	if len(s.buf) > 0 {
		emit(s.key, bytes.TrimSuffix(s.buf, []byte("\r")))
	}

	s.buf = nil
	s.state = StateClosed
}
