// SPDX-FileCopyrightText: 2025 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package boot orchestrates the enclave's boot sequence.
//
// A [Sequencer] runs the setup steps of package sysinit in order (mount
// plan, console, platform, entropy), then runs the bridge and the workload
// and finally reports the exit code on the console and carries out the
// configured terminal action.
package boot
