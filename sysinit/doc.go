// SPDX-FileCopyrightText: 2025 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package sysinit provides the privileged building blocks of the enclave init
// program: applying the mount plan, binding the serial console, seeding the
// kernel random pool, bringing up the platform and terminating the system.
//
// All steps report failures as errors classified by [Severity]. Best-effort
// failures are logged via the [Diagnostics] sink and the boot continues with
// degraded guarantees. Critical failures abort the boot sequence. Nothing in
// this package terminates the process itself.
package sysinit
