// SPDX-FileCopyrightText: 2025 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

//go:build mage

package main

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/aibor/enclaveos/internal/exitcode"
	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
	"github.com/magefile/mage/target"
)

var env map[string]string

func init() {
	env = map[string]string{
		"CGO_ENABLED": "0",
	}

	gobin, exists := os.LookupEnv("GOBIN")
	if !exists {
		gobin = "./gobin"
	}

	if gobin != "" {
		p, err := filepath.Abs(gobin)
		if err == nil {
			gobin = p
		}
	}

	env["GOBIN"] = gobin
}

func gobin(name string) string {
	return filepath.Join(env["GOBIN"], name)
}

func install(name string) error {
	modified, err := target.Dir(gobin(name), "go.mod", "boot", "internal", "supervisor", "sysinit", "cmd")
	if err != nil {
		return err
	}

	if !modified {
		return nil
	}

	return sh.RunWithV(env, "go", "install", "./cmd/"+name)
}

// Build the statically linked init program.
func Enclaveinit() error {
	return install("enclaveinit")
}

// Build the initramfs builder.
func Mkinitramfs() error {
	return install("mkinitramfs")
}

// Build an initramfs with socat as bridge. Pass an empty config to use the
// built-in defaults.
func Initramfs(output, config string) error {
	mg.Deps(Enclaveinit, Mkinitramfs)

	args := []string{
		"--init", gobin("enclaveinit"),
		"--bridge", "/usr/bin/socat",
		"--compression", "zstd",
		"--output", output,
	}
	if config != "" {
		args = append(args, "--config", config)
	}

	return sh.RunV(gobin("mkinitramfs"), args...)
}

// Boot the initramfs in QEMU with the kernel in QEMU_KERNEL and fail with
// the exit code the enclave reports on its console.
func Boot(initramfs string) error {
	kernel, ok := os.LookupEnv("QEMU_KERNEL")
	if !ok {
		return errors.New("QEMU_KERNEL not set")
	}

	cmd := exec.Command("qemu-system-x86_64",
		"-kernel", kernel,
		"-initrd", initramfs,
		"-append", "console=ttyS0 panic=-1 quiet",
		"-m", "512",
		"-display", "none",
		"-serial", "stdio",
		"-no-reboot",
	)
	cmd.Stderr = os.Stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return err
	}

	if err := cmd.Start(); err != nil {
		return err
	}

	code, scanErr := exitcode.Scan(os.Stdout, stdout)
	waitErr := cmd.Wait()

	if scanErr != nil {
		return errors.Join(scanErr, waitErr)
	}

	if code != 0 {
		return mg.Fatalf(code, "enclave exited with code %d", code)
	}

	return waitErr
}

// Run unit tests.
func Test() error {
	return sh.RunV("go", "test", "-race", "-cover", "./...")
}

// Run privileged tests as PID 1 in a VM. Requires QEMU and a kernel in
// QEMU_KERNEL.
func IntegrationTest(verbose bool) error {
	execCmd := []string{"go", "run", "github.com/aibor/virtrun/cmd/virtrun@latest"}
	if verbose {
		execCmd = append(execCmd, "-verbose")
	}

	args := []string{
		"test",
		"-v",
		"-timeout", "2m",
		"-exec", strings.Join(execCmd, " "),
		"-tags", "integration_enclave",
		"./sysinit",
	}

	fmt.Printf("go args: %s\n", args)

	return sh.RunWithV(env, "go", args...)
}

// Remove volatile files.
func Clean() error {
	return sh.Rm(env["GOBIN"])
}
