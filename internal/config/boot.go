// SPDX-FileCopyrightText: 2025 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package config

import (
	"io"

	"github.com/aibor/enclaveos/boot"
	"github.com/aibor/enclaveos/supervisor"
	"github.com/aibor/enclaveos/sysinit"
	"go.uber.org/zap"
)

// BootConfig converts the config into a [boot.Config]. The bridge's tagged
// lines and the exit code line are written to out.
func (c *Config) BootConfig(log *zap.Logger, out io.Writer) (boot.Config, error) {
	table, err := c.MountTable()
	if err != nil {
		return boot.Config{}, err
	}

	cfg := boot.Config{
		MountTable: table,
		Bridge: &boot.Bridge{
			Command: supervisor.Command{
				Path: c.Bridge.Path,
				Args: c.Bridge.Args,
			},
			Options: supervisor.Options{
				Out:         out,
				Log:         log.Named("bridge"),
				GracePeriod: c.Bridge.GracePeriod,
			},
		},
		Mode:      c.Mode,
		OnExit:    c.OnExit,
		OnFailure: c.OnFailure,
		Out:       out,
	}

	if c.Console.Path != "" {
		cfg.Console = boot.ConsoleConfig{
			Bindings: sysinit.ConsoleBindings(c.Console.Path),
			Severity: c.Console.Severity,
		}
	}

	if c.Platform.Loopback {
		cfg.Platform = boot.PlatformConfig{
			Platform: sysinit.LoopbackPlatform{},
			Severity: c.Platform.Severity,
		}
	}

	if c.Entropy.Source != "" {
		cfg.Entropy = boot.EntropyConfig{
			Source:   sysinit.FileEntropySource{Path: c.Entropy.Source},
			Bytes:    c.Entropy.Bytes,
			Attempts: c.Entropy.Attempts,
			Severity: c.Entropy.Severity,
		}
	}

	if c.Workload.Path != "" {
		workload := &boot.ProcessWorkload{
			Command: supervisor.Command{
				Path: c.Workload.Path,
				Args: c.Workload.Args,
			},
			GracePeriod: c.Workload.GracePeriod,
			Log:         log.Named("workload"),
		}

		if c.Workload.ProbeAddr != "" {
			workload.Probe = &boot.Probe{Addr: c.Workload.ProbeAddr}
		}

		cfg.Workload = workload
	}

	return cfg, nil
}
