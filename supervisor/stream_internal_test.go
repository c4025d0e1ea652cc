// SPDX-FileCopyrightText: 2025 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package supervisor

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type lineRecorder struct {
	lines []string
}

func (r *lineRecorder) emit(key Key, line []byte) {
	r.lines = append(r.lines, key.Tag()+" "+string(line))
}

func TestStream_Drain(t *testing.T) {
	tests := []struct {
		name           string
		steps          []readStep
		expectedLines  []string
		expectedClosed bool
		expectedState  StreamState
		expectedBuffer string
	}{
		{
			name:          "nothing available",
			expectedState: StateOpen,
		},
		{
			name:          "complete lines",
			steps:         []readStep{chunk("a\nb\n")},
			expectedLines: []string{"[STDOUT] a", "[STDOUT] b"},
			expectedState: StateOpen,
		},
		{
			name:           "incomplete line is kept",
			steps:          []readStep{chunk("a\nbc")},
			expectedLines:  []string{"[STDOUT] a"},
			expectedState:  StateOpen,
			expectedBuffer: "bc",
		},
		{
			name:          "line split across reads",
			steps:         []readStep{chunk("ab"), chunk("c\n")},
			expectedLines: []string{"[STDOUT] abc"},
			expectedState: StateOpen,
		},
		{
			name:          "carriage return is stripped",
			steps:         []readStep{chunk("a\r\n")},
			expectedLines: []string{"[STDOUT] a"},
			expectedState: StateOpen,
		},
		{
			name:          "empty line",
			steps:         []readStep{chunk("\n")},
			expectedLines: []string{"[STDOUT] "},
			expectedState: StateOpen,
		},
		{
			name:           "eof",
			steps:          []readStep{eof("a\n")},
			expectedLines:  []string{"[STDOUT] a"},
			expectedClosed: true,
			expectedState:  StateClosed,
		},
		{
			name:           "eof flushes incomplete line",
			steps:          []readStep{chunk("a\nb"), eof("")},
			expectedLines:  []string{"[STDOUT] a", "[STDOUT] b"},
			expectedClosed: true,
			expectedState:  StateClosed,
		},
		{
			name:           "zero read without error is eof",
			steps:          []readStep{chunk("")},
			expectedClosed: true,
			expectedState:  StateClosed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var recorder lineRecorder

			stream := NewStream(KeyStdout, 1, &fakeReader{steps: tt.steps})
			require.True(t, stream.markReady())

			closed, err := stream.drain(recorder.emit)
			require.NoError(t, err)

			assert.Equal(t, tt.expectedClosed, closed)
			assert.Equal(t, tt.expectedLines, recorder.lines)
			assert.Equal(t, tt.expectedState, stream.State())
			assert.Equal(t, tt.expectedBuffer, string(stream.Buffered()))
		})
	}
}

func TestStream_DrainReadError(t *testing.T) {
	var recorder lineRecorder

	reader := &fakeReader{steps: []readStep{
		chunk("partial"),
		{err: assert.AnError},
	}}

	stream := NewStream(KeyStderr, 2, reader)
	require.True(t, stream.markReady())

	closed, err := stream.drain(recorder.emit)
	require.ErrorIs(t, err, ErrStreamRead)
	require.ErrorIs(t, err, assert.AnError)

	assert.True(t, closed)
	assert.True(t, stream.Closed())
	assert.Equal(t, []string{"[STDERR] partial"}, recorder.lines)
}

func TestStream_DrainBoundedReads(t *testing.T) {
	var recorder lineRecorder

	steps := make([]readStep, maxReadsPerEvent+4)
	for idx := range steps {
		steps[idx] = chunk("x\n")
	}

	reader := &fakeReader{steps: steps}
	stream := NewStream(KeyStdout, 1, reader)

	require.True(t, stream.markReady())

	closed, err := stream.drain(recorder.emit)
	require.NoError(t, err)
	assert.False(t, closed)
	assert.Len(t, recorder.lines, maxReadsPerEvent)
	assert.Equal(t, maxReadsPerEvent, reader.reads)
	assert.Equal(t, StateOpen, stream.State())

	require.True(t, stream.markReady())

	_, err = stream.drain(recorder.emit)
	require.NoError(t, err)
	assert.Len(t, recorder.lines, maxReadsPerEvent+4)
}

func TestStream_DrainLongLine(t *testing.T) {
	var recorder lineRecorder

	long := strings.Repeat("x", MaxLineLength+10)

	steps := []readStep{}
	for rest := long; len(rest) > 0; {
		n := min(len(rest), readChunkSize)
		steps = append(steps, chunk(rest[:n]))
		rest = rest[n:]
	}

	steps = append(steps, eof("\n"))

	stream := NewStream(KeyStdout, 1, &fakeReader{steps: steps})

	for !stream.Closed() {
		require.True(t, stream.markReady())

		_, err := stream.drain(recorder.emit)
		require.NoError(t, err)
	}

	require.Len(t, recorder.lines, 2)
	assert.Len(t, recorder.lines[0], len("[STDOUT] ")+MaxLineLength)
	assert.Equal(t, "[STDOUT] xxxxxxxxxx", recorder.lines[1])
}

func TestStream_ClosedIsFinal(t *testing.T) {
	var recorder lineRecorder

	reader := &fakeReader{steps: []readStep{eof("a\n")}}
	stream := NewStream(KeyStdout, 1, reader)

	require.True(t, stream.markReady())

	closed, err := stream.drain(recorder.emit)
	require.NoError(t, err)
	require.True(t, closed)

	reader.steps = []readStep{chunk("stale\n")}

	assert.False(t, stream.markReady(), "closed stream must not become ready")

	closed, err = stream.drain(recorder.emit)
	require.NoError(t, err)
	assert.True(t, closed)
	assert.Equal(t, StateClosed, stream.State())
	assert.Equal(t, []string{"[STDOUT] a"}, recorder.lines)
	assert.Equal(t, 1, reader.reads)
}

func TestStreamState_String(t *testing.T) {
	assert.Equal(t, "open", StateOpen.String())
	assert.Equal(t, "ready", StateReady.String())
	assert.Equal(t, "draining", StateDraining.String())
	assert.Equal(t, "closed", StateClosed.String())
	assert.Equal(t, "state(9)", StreamState(9).String())
}
