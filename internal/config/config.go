// SPDX-FileCopyrightText: 2025 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package config loads the boot configuration of the enclave init program.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aibor/enclaveos/boot"
	"github.com/aibor/enclaveos/sysinit"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultPath is the path the config is read from if not overridden on
	// the kernel command line.
	DefaultPath = "/etc/enclaveos.yaml"

	// DefaultEntropySource is the hardware random number generator device
	// exposed by the enclave's secure module driver.
	DefaultEntropySource = "/dev/hwrng"

	maxEntropyBytes = 1 << 20
)

// DefaultBridgeCommand is the command line of the default bridge. It
// forwards connections on vsock port 1000 to the workload on loopback TCP
// port 8000.
var DefaultBridgeCommand = []string{ //nolint:gochecknoglobals
	"/usr/bin/socat",
	"-t", "30",
	"VSOCK-LISTEN:1000,fork,reuseaddr",
	"TCP:127.0.0.1:8000",
}

// ErrInvalid is returned if the config does not pass validation.
var ErrInvalid = errors.New("invalid config")

// Config is the boot configuration.
type Config struct {
	LogLevel  zapcore.Level          `yaml:"log_level"`
	Mounts    []Mount                `yaml:"mounts"`
	Console   Console                `yaml:"console"`
	Platform  Platform               `yaml:"platform"`
	Entropy   Entropy                `yaml:"entropy"`
	Bridge    Process                `yaml:"bridge"`
	Workload  Workload               `yaml:"workload"`
	Mode      boot.Mode              `yaml:"mode"`
	OnExit    sysinit.TerminalAction `yaml:"on_exit"`
	OnFailure sysinit.TerminalAction `yaml:"on_failure"`

	// Path the config was loaded from. Empty for the built-in defaults.
	Path string `yaml:"-"`
}

// Mount is a single entry of the mount table.
type Mount struct {
	Source   string           `yaml:"source"`
	Target   string           `yaml:"target"`
	FSType   string           `yaml:"fstype"`
	Flags    []string         `yaml:"flags"`
	Data     string           `yaml:"data"`
	Severity sysinit.Severity `yaml:"severity"`
}

// Console configures the console the standard streams are bound to. An
// empty path disables binding.
type Console struct {
	Path     string           `yaml:"path"`
	Severity sysinit.Severity `yaml:"severity"`
}

// Platform configures the platform initialization.
type Platform struct {
	// Loopback brings the loopback interface up.
	Loopback bool             `yaml:"loopback"`
	Severity sysinit.Severity `yaml:"severity"`
}

// Entropy configures the seeding of the kernel random pool. An empty source
// disables seeding.
type Entropy struct {
	Source   string           `yaml:"source"`
	Bytes    int              `yaml:"bytes"`
	Attempts int              `yaml:"attempts"`
	Severity sysinit.Severity `yaml:"severity"`
}

// Process is an external program.
type Process struct {
	Path        string        `yaml:"path"`
	Args        []string      `yaml:"args"`
	GracePeriod time.Duration `yaml:"grace_period"`
}

// Workload is the external service run alongside the bridge. An empty path
// disables the workload.
type Workload struct {
	Process `yaml:",inline"`

	// ProbeAddr is an optional loopback address that is probed until the
	// workload accepts connections.
	ProbeAddr string `yaml:"probe_addr"`
}

// Default returns the built-in configuration.
func Default() *Config {
	mounts := []Mount{}
	for _, spec := range sysinit.EnclaveMountTable() {
		mounts = append(mounts, mountFromSpec(spec))
	}

	return &Config{
		LogLevel: zapcore.InfoLevel,
		Mounts:   mounts,
		Console: Console{
			Path: sysinit.DefaultConsolePath,
		},
		Platform: Platform{
			Loopback: true,
		},
		Entropy: Entropy{
			Source:   DefaultEntropySource,
			Bytes:    sysinit.DefaultEntropyBytes,
			Attempts: sysinit.DefaultEntropyAttempts,
		},
		Bridge: Process{
			Path: DefaultBridgeCommand[0],
			Args: append([]string{}, DefaultBridgeCommand[1:]...),
		},
		Mode:      boot.ModeConcurrent,
		OnExit:    sysinit.ActionHalt,
		OnFailure: sysinit.ActionReboot,
	}
}

// Load reads the config from the file at the given path. Fields not present
// in the file keep their default value. If the file does not exist, the
// built-in defaults are returned.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Default(), nil
	} else if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	cfg.Path = path

	return cfg, nil
}

// Parse parses and validates the given YAML document. Unknown fields are
// rejected.
func Parse(data []byte) (*Config, error) {
	cfg := Default()

	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)

	if err := decoder.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: parse: %w", ErrInvalid, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the config for consistency. All problems found are
// returned joined and wrapped in [ErrInvalid].
func (c *Config) Validate() error {
	var errs []error

	if len(c.Mounts) == 0 {
		errs = append(errs, errors.New("mounts: empty mount table"))
	}

	for idx, mount := range c.Mounts {
		if !filepath.IsAbs(mount.Target) {
			errs = append(errs, fmt.Errorf("mounts[%d]: target %q is not absolute", idx, mount.Target))
		}

		if mount.FSType == "" {
			errs = append(errs, fmt.Errorf("mounts[%d]: fstype is required", idx))
		}

		if _, err := sysinit.ParseMountFlags(mount.Flags); err != nil {
			errs = append(errs, fmt.Errorf("mounts[%d]: %w", idx, err))
		}
	}

	if c.Entropy.Source != "" {
		if c.Entropy.Bytes <= 0 || c.Entropy.Bytes > maxEntropyBytes {
			errs = append(errs, fmt.Errorf("entropy: bytes must be in (0, %d]", maxEntropyBytes))
		}

		if c.Entropy.Attempts <= 0 {
			errs = append(errs, errors.New("entropy: attempts must be positive"))
		}
	}

	if c.Bridge.Path == "" {
		errs = append(errs, errors.New("bridge: path is required"))
	}

	if c.Bridge.GracePeriod < 0 || c.Workload.GracePeriod < 0 {
		errs = append(errs, errors.New("grace_period must not be negative"))
	}

	if c.Workload.ProbeAddr != "" {
		if c.Workload.Path == "" {
			errs = append(errs, errors.New("workload: probe_addr requires path"))
		}

		if _, _, err := net.SplitHostPort(c.Workload.ProbeAddr); err != nil {
			errs = append(errs, fmt.Errorf("workload: probe_addr: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
	}

	return nil
}

// MountTable converts the mounts into a [sysinit.MountTable].
func (c *Config) MountTable() (sysinit.MountTable, error) {
	table := make(sysinit.MountTable, 0, len(c.Mounts))

	for idx, mount := range c.Mounts {
		flags, err := sysinit.ParseMountFlags(mount.Flags)
		if err != nil {
			return nil, fmt.Errorf("mounts[%d]: %w", idx, err)
		}

		table = append(table, sysinit.MountSpec{
			Source:   mount.Source,
			Target:   mount.Target,
			FSType:   sysinit.FSType(mount.FSType),
			Flags:    flags,
			Data:     mount.Data,
			Severity: mount.Severity,
		})
	}

	return table, nil
}

func mountFromSpec(spec sysinit.MountSpec) Mount {
	var flags []string
	if names := spec.Flags.String(); names != "" {
		flags = strings.Split(names, ",")
	}

	return Mount{
		Source:   spec.Source,
		Target:   spec.Target,
		FSType:   string(spec.FSType),
		Flags:    flags,
		Data:     spec.Data,
		Severity: spec.Severity,
	}
}
