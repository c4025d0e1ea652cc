// SPDX-FileCopyrightText: 2025 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package sysinit

import (
	"fmt"

	"github.com/vishvananda/netlink"
	"go.uber.org/zap"
)

// LoopbackInterface is the name of the loopback network interface.
const LoopbackInterface = "lo"

// Platform initializes the platform specific parts of the enclave.
type Platform interface {
	Init() error
}

// PlatformFunc is a function implementing [Platform].
type PlatformFunc func() error

// Init implements [Platform].
func (f PlatformFunc) Init() error {
	return f()
}

// Platforms runs multiple [Platform]s in order. The first error is returned.
type Platforms []Platform

// Init implements [Platform].
func (p Platforms) Init() error {
	for _, platform := range p {
		if err := platform.Init(); err != nil {
			return err
		}
	}

	return nil
}

// LoopbackPlatform brings the loopback interface up. The bridge and the
// workload communicate over loopback only.
type LoopbackPlatform struct {
	// Interface name. Defaults to [LoopbackInterface].
	Interface string
}

var _ Platform = LoopbackPlatform{}

// Init implements [Platform].
func (p LoopbackPlatform) Init() error {
	name := p.Interface
	if name == "" {
		name = LoopbackInterface
	}

	link, err := netlink.LinkByName(name)
	if err != nil {
		return fmt.Errorf("get link %s: %w", name, err)
	}

	if err := netlink.LinkSetUp(link); err != nil {
		return fmt.Errorf("set link %s up: %w", name, err)
	}

	return nil
}

// WithPlatform returns a setup [Func] that wraps [Platform.Init].
func WithPlatform(platform Platform, severity Severity) Func {
	return func(state *State) error {
		if err := platform.Init(); err != nil {
			return &StepError{
				Step:     "platform",
				Severity: severity,
				Err:      fmt.Errorf("%w: %w", ErrPlatformInit, err),
			}
		}

		state.Log.Info("platform initialized", zap.Stringer("severity", severity))

		return nil
	}
}
