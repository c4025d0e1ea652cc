// SPDX-FileCopyrightText: 2025 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package sysinit

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

// FSType is a file system type.
type FSType string

// Special file system types used by the enclave.
const (
	FSTypeDevPts FSType = "devpts"
	FSTypeDevTmp FSType = "devtmpfs"
	FSTypeProc   FSType = "proc"
	FSTypeSys    FSType = "sysfs"
	FSTypeTmp    FSType = "tmpfs"

	defaultDirMode = 0o755
)

// MountFlags are mount flags as defined by mount(2).
type MountFlags uintptr

// Restriction flags applied to the enclave's mount points.
const (
	MountNoDev  MountFlags = unix.MS_NODEV
	MountNoSuid MountFlags = unix.MS_NOSUID
	MountNoExec MountFlags = unix.MS_NOEXEC

	// MountNoSuidExec disallows setuid binaries and execution.
	MountNoSuidExec = MountNoSuid | MountNoExec

	// MountNoDevSuidExec additionally disallows device files.
	MountNoDevSuidExec = MountNoDev | MountNoSuid | MountNoExec
)

var mountFlagNames = []struct {
	name string
	flag MountFlags
}{
	{"nodev", MountNoDev},
	{"nosuid", MountNoSuid},
	{"noexec", MountNoExec},
}

// ParseMountFlags parses the given flag names ("nodev", "nosuid", "noexec").
func ParseMountFlags(names []string) (MountFlags, error) {
	var flags MountFlags

next:
	for _, name := range names {
		for _, known := range mountFlagNames {
			if known.name == name {
				flags |= known.flag
				continue next
			}
		}

		return 0, fmt.Errorf("unknown mount flag %q", name)
	}

	return flags, nil
}

// String returns the comma separated flag names.
func (f MountFlags) String() string {
	names := []string{}

	for _, known := range mountFlagNames {
		if f&known.flag != 0 {
			names = append(names, known.name)
		}
	}

	return strings.Join(names, ",")
}

// MountSpec is a single entry of a [MountTable].
type MountSpec struct {
	// Source is the source device to mount. If empty it is set to the string
	// of the [FSType].
	Source string

	// Target is the absolute path to mount at. It is created if missing.
	Target string

	// FSType is the file system type.
	FSType FSType

	// Flags are mount flags as defined by mount(2).
	Flags MountFlags

	// Data are additional parameters that depend on the [FSType] used.
	Data string

	// Severity determines if a failure aborts the boot sequence.
	Severity Severity
}

// MountTable is an ordered list of [MountSpec]s. Entries are applied in
// order. Duplicates are allowed.
type MountTable []MountSpec

// EnclaveMountTable returns the canonical mount table of the enclave.
//
// The devtmpfs entry is present twice. The kernel may have mounted /dev
// already, and finding it mounted is not a failure. /proc and /sys are
// critical.
func EnclaveMountTable() MountTable {
	return MountTable{
		{"devtmpfs", "/dev", FSTypeDevTmp, MountNoSuidExec, "mode=0755", SeverityBestEffort},
		{"devtmpfs", "/dev", FSTypeDevTmp, MountNoSuidExec, "mode=0755", SeverityBestEffort},
		{"devpts", "/dev/pts", FSTypeDevPts, MountNoSuidExec, "", SeverityBestEffort},
		{"shm", "/dev/shm", FSTypeTmp, MountNoDevSuidExec, "mode=0755", SeverityBestEffort},
		{"proc", "/proc", FSTypeProc, MountNoDevSuidExec, "hidepid=2", SeverityCritical},
		{"tmpfs", "/run", FSTypeTmp, MountNoDevSuidExec, "mode=0755", SeverityBestEffort},
		{"tmpfs", "/tmp", FSTypeTmp, MountNoDevSuidExec, "", SeverityBestEffort},
		{"sysfs", "/sys", FSTypeSys, MountNoDevSuidExec, "", SeverityCritical},
		{"cgroup_root", "/sys/fs/cgroup", FSTypeTmp, MountNoDevSuidExec, "mode=0755", SeverityBestEffort},
	}
}

// Mounter mounts a single [MountSpec].
type Mounter interface {
	Mount(spec MountSpec) error
}

// KernelMounter is a [Mounter] using mount(2).
type KernelMounter struct{}

var _ Mounter = KernelMounter{}

// Mount creates the target directory if it does not exist and mounts the
// file system.
func (KernelMounter) Mount(spec MountSpec) error {
	err := os.MkdirAll(spec.Target, defaultDirMode)
	if err != nil {
		return fmt.Errorf("mkdir %s: %w", spec.Target, err)
	}

	err = mount(spec.Target, spec.Source, string(spec.FSType), spec.Flags, spec.Data)
	if err != nil && isAlreadyMounted(err) {
		return fmt.Errorf("%w: %w", ErrAlreadyMounted, err)
	}

	return err
}

// MountResult is the outcome of a single mount attempt.
type MountResult struct {
	Spec MountSpec
	Err  error
}

// AlreadyMounted returns true if the target was mounted before.
func (r MountResult) AlreadyMounted() bool {
	return errors.Is(r.Err, ErrAlreadyMounted)
}

// Failed returns true if the mount failed. Already mounted targets are not
// considered failures.
func (r MountResult) Failed() bool {
	return r.Err != nil && !r.AlreadyMounted()
}

// MountReport has a [MountResult] for each entry of a [MountTable], in the
// same order.
type MountReport []MountResult

// Err returns a [*MountError] with all failed entries or nil if none failed.
func (r MountReport) Err() error {
	var mountErr MountError

	for idx, result := range r {
		if result.Failed() {
			mountErr.Failures = append(mountErr.Failures, MountFailure{
				Index: idx,
				Spec:  result.Spec,
				Err:   result.Err,
			})
		}
	}

	if len(mountErr.Failures) == 0 {
		return nil
	}

	return &mountErr
}

// MountAll attempts to mount every entry of the given table in order.
//
// A failing entry never prevents the following entries from being attempted,
// regardless of its [Severity]. Use [MountReport.Err] for the outcome.
func MountAll(mounter Mounter, table MountTable) MountReport {
	report := make(MountReport, 0, len(table))

	for _, spec := range table {
		report = append(report, MountResult{
			Spec: spec,
			Err:  mounter.Mount(spec),
		})
	}

	return report
}

// WithMountTable returns a setup [Func] that wraps [MountAll] and logs the
// result of each entry.
//
// It fails only if an entry with [SeverityCritical] failed, after all entries
// have been attempted.
func WithMountTable(mounter Mounter, table MountTable) Func {
	return func(state *State) error {
		report := MountAll(mounter, table)

		for _, result := range report {
			fields := []zap.Field{
				zap.String("target", result.Spec.Target),
				zap.String("fstype", string(result.Spec.FSType)),
				zap.Stringer("flags", result.Spec.Flags),
			}

			switch {
			case result.AlreadyMounted():
				state.Log.Info("already mounted", fields...)
			case result.Failed():
				fields = append(fields,
					zap.Stringer("severity", result.Spec.Severity),
					zap.Error(result.Err),
				)
				state.Log.Warn("mount failed", fields...)
			default:
				state.Log.Info("mounted", fields...)
			}
		}

		err := report.Err()
		if err == nil {
			return nil
		}

		severity := SeverityBestEffort
		if errors.Is(err, ErrCriticalMount) {
			severity = SeverityCritical
		}

		return &StepError{Step: "mount", Severity: severity, Err: err}
	}
}
