// SPDX-FileCopyrightText: 2025 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package supervisor

import (
	"context"
	"fmt"
	"io"

	"go.uber.org/zap"
)

// Multiplexer merges the output streams of a child into a single writer.
//
// It runs a single-threaded loop driven by readiness events of a [Poller].
// All its [Stream]s are owned exclusively by the goroutine calling
// [Multiplexer.Run].
type Multiplexer struct {
	poller  Poller
	out     io.Writer
	log     *zap.Logger
	streams []*Stream
	events  []Event
}

// NewMultiplexer creates a new [Multiplexer] that writes tagged lines of the
// given streams to out. The streams must have distinct keys other than
// [KeyWake].
func NewMultiplexer(poller Poller, out io.Writer, log *zap.Logger, streams ...*Stream) *Multiplexer {
	if log == nil {
		log = zap.NewNop()
	}

	return &Multiplexer{
		poller:  poller,
		out:     out,
		log:     log,
		streams: streams,
		events:  make([]Event, len(streams)+1),
	}
}

// Run registers all streams with the poller and processes readiness events
// until all streams are closed or the context is done.
//
// It returns nil once all streams are closed. If the context is done before,
// the context's error is returned. Poller failures are returned wrapped in
// [ErrPoller]. Read errors of a stream close that stream and are only logged.
func (m *Multiplexer) Run(ctx context.Context) error {
	for _, stream := range m.streams {
		if stream.Key() == KeyWake {
			return fmt.Errorf("%w: stream uses reserved key", ErrPoller)
		}

		if err := m.poller.Add(stream.FD(), stream.Key()); err != nil {
			return fmt.Errorf("%w: register %s: %w", ErrPoller, stream.Key(), err)
		}
	}

	stop := context.AfterFunc(ctx, func() {
		if err := m.poller.Wake(); err != nil {
			m.log.Error("wake poller", zap.Error(err))
		}
	})
	defer stop()

	for !m.allClosed() {
		n, err := m.poller.Wait(m.events)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrPoller, err)
		}

		for _, event := range m.events[:n] {
			if event.Key == KeyWake {
				if ctx.Err() != nil {
					return ctx.Err() //nolint:wrapcheck
				}

				continue
			}

			if err := m.handle(event.Key); err != nil {
				return err
			}
		}
	}

	m.log.Debug("all streams closed")

	return nil
}

func (m *Multiplexer) stream(key Key) *Stream {
	for _, stream := range m.streams {
		if stream.Key() == key {
			return stream
		}
	}

	return nil
}

func (m *Multiplexer) allClosed() bool {
	for _, stream := range m.streams {
		if !stream.Closed() {
			return false
		}
	}

	return true
}

func (m *Multiplexer) handle(key Key) error {
	stream := m.stream(key)
	if stream == nil {
		m.log.Warn("event for unknown key", zap.Stringer("key", key))
		return nil
	}

	// Stale events for closed streams are ignored. Closed streams are never
	// polled again.
	if !stream.markReady() {
		return nil
	}

	closed, readErr := stream.drain(m.emit)
	if readErr != nil {
		m.log.Warn("stream read failed, closing",
			zap.Stringer("stream", key),
			zap.Error(readErr),
		)
	}

	if closed {
		if err := m.poller.Delete(stream.FD()); err != nil {
			return fmt.Errorf("%w: deregister %s: %w", ErrPoller, key, err)
		}

		m.log.Debug("stream closed", zap.Stringer("stream", key))

		return nil
	}

	if err := m.poller.Rearm(stream.FD(), key); err != nil {
		return fmt.Errorf("%w: re-arm %s: %w", ErrPoller, key, err)
	}

	return nil
}

// emit writes a single tagged line. If the output is not writable, the line
// is passed to the logger, so it is not dropped silently.
func (m *Multiplexer) emit(key Key, line []byte) {
	buf := make([]byte, 0, len(key.Tag())+len(line)+2) //nolint:mnd
	buf = append(buf, key.Tag()...)
	buf = append(buf, ' ')
	buf = append(buf, line...)
	buf = append(buf, '\n')

	_, err := m.out.Write(buf)
	if err == nil {
		return
	}

	m.log.Info(string(line),
		zap.Stringer("stream", key),
		zap.NamedError("output_error", err),
	)
}
