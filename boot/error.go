// SPDX-FileCopyrightText: 2025 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package boot

import "errors"

var (
	// ErrBridge is returned if the bridge process failed.
	ErrBridge = errors.New("bridge failed")

	// ErrWorkload is returned if the workload failed.
	ErrWorkload = errors.New("workload failed")

	// ErrNoBridge is returned if no bridge is configured.
	ErrNoBridge = errors.New("no bridge configured")
)
