// SPDX-FileCopyrightText: 2025 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package boot

import (
	"context"
	"fmt"
	"net"
	"time"
)

// Default probe timings.
const (
	DefaultProbeInterval = 100 * time.Millisecond
	DefaultProbeTimeout  = time.Second
)

// Probe checks if a TCP service accepts connections on loopback.
type Probe struct {
	Addr     string
	Interval time.Duration
	Timeout  time.Duration
}

// Wait blocks until a connection to the address succeeded or the context is
// done. In the latter case the context's error is returned.
func (p *Probe) Wait(ctx context.Context) error {
	interval := valueOr(p.Interval, DefaultProbeInterval)
	dialer := net.Dialer{Timeout: valueOr(p.Timeout, DefaultProbeTimeout)}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		conn, err := dialer.DialContext(ctx, "tcp", p.Addr)
		if err == nil {
			_ = conn.Close()
			return nil
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("probe %s: %w", p.Addr, ctx.Err())
		case <-ticker.C:
		}
	}
}
