// SPDX-FileCopyrightText: 2025 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package supervisor launches and supervises the single bridge process of the
// enclave.
//
// The child's stdout and stderr are read through non-blocking pipes by a
// [Multiplexer] that waits for readiness events of both descriptors with a
// [Poller]. Each complete line is written immediately to the supervisor's
// output, prefixed with its origin:
//
//	[STDOUT] listening on vsock port 1000
//	[STDERR] connection reset by peer
//
// Lines of a single stream keep their order. Lines of different streams are
// interleaved in the order the poller reports readiness, which is only an
// approximation of the order the child wrote them in. No sequence numbers are
// attached.
//
// The multiplexer loop ends once both streams are closed by the child or the
// context is cancelled. A child that neither writes nor exits blocks the loop
// until cancellation.
package supervisor
