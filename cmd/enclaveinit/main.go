// SPDX-FileCopyrightText: 2025 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Enclaveinit is the init program of an enclave. It is started by the kernel
// as PID 1, prepares the system, runs the bridge and the workload and powers
// the enclave off once they are done.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/aibor/enclaveos/boot"
	"github.com/aibor/enclaveos/internal/config"
	"github.com/aibor/enclaveos/internal/exitcode"
	"github.com/aibor/enclaveos/sysinit"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

// Exit codes used if the program returns instead of powering off.
const (
	exitNotPidOne   = 127
	exitTerminating = 126
)

// procMount is mounted before the config is loaded, so the kernel command
// line is readable. The proc entry of the mount table is applied on top
// later.
var procMount = sysinit.MountSpec{
	Source: "proc",
	Target: "/proc",
	FSType: sysinit.FSTypeProc,
	Flags:  sysinit.MountNoDevSuidExec,
}

func loadConfig(log *zap.Logger) (*config.Config, error) {
	if err := (sysinit.KernelMounter{}).Mount(procMount); err != nil {
		log.Debug("early proc mount failed", zap.Error(err))
	}

	path, err := config.ResolvePath(config.CmdlinePath)
	if err != nil {
		log.Warn("kernel command line not readable", zap.Error(err))
	}

	log.Info("load config", zap.String("path", path))

	return config.Load(path)
}

func run(ctx context.Context) int {
	diag := sysinit.NewDiagnostics(os.Stderr, sysinit.OpenKmsg)
	level := zap.NewAtomicLevel()
	log := sysinit.NewLogger(diag, level)

	defer func() { _ = log.Sync() }()

	if !sysinit.IsPidOne() {
		log.Error("refusing to start", zap.Error(sysinit.ErrNotPidOne))
		return exitNotPidOne
	}

	if err := diag.Validate(); err != nil {
		log.Warn("console not usable, using kernel log", zap.Error(err))
	}

	cfg, err := loadConfig(log)
	if err != nil {
		log.Error("invalid config", zap.Error(err))
		return fail(ctx, log, config.Default().OnFailure)
	}

	level.SetLevel(cfg.LogLevel)

	bootCfg, err := cfg.BootConfig(log, os.Stdout)
	if err != nil {
		log.Error("invalid config", zap.Error(err))
		return fail(ctx, log, cfg.OnFailure)
	}

	state := sysinit.NewState(log, diag)

	// Only returns if the terminal action failed or is idle.
	if err := boot.New(state, bootCfg).Run(ctx); err != nil {
		log.Error("enclave terminated", zap.Error(err))
	}

	return exitTerminating
}

// fail writes the exit code line for a failure that happened before the
// boot sequence and carries out the given action.
func fail(ctx context.Context, log *zap.Logger, action sysinit.TerminalAction) int {
	if _, err := exitcode.Fprint(os.Stdout, exitcode.Unknown); err != nil {
		log.Error("write exit code", zap.Error(err))
	}

	err := sysinit.Terminate(ctx, sysinit.KernelTerminator{}, action)
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Error("terminate", zap.Stringer("action", action), zap.Error(err))
	}

	return exitTerminating
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), unix.SIGTERM, unix.SIGINT)

	rc := run(ctx)

	stop()

	if rc != 0 {
		fmt.Fprintf(os.Stderr, "enclaveinit: exit %d\n", rc)
	}

	os.Exit(rc)
}
