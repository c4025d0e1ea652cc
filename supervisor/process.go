// SPDX-FileCopyrightText: 2025 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package supervisor

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/zeebo/blake3"
)

// Command describes the child process to supervise.
type Command struct {
	// Path of the executable. If it contains no path separator, it is
	// looked up in PATH. It is canonicalized before execution.
	Path string

	// Args are the arguments, not including the program name.
	Args []string

	// Env is the environment of the child. If nil, the supervisor's
	// environment is used.
	Env []string
}

// String returns the command line.
func (c Command) String() string {
	return strings.Join(append([]string{c.Path}, c.Args...), " ")
}

// Resolve returns the canonical absolute path of the executable with all
// symbolic links resolved.
func Resolve(path string) (string, error) {
	if !strings.ContainsRune(path, filepath.Separator) {
		found, err := exec.LookPath(path)
		if err != nil {
			return "", fmt.Errorf("lookup %s: %w", path, err)
		}

		path = found
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("absolute path: %w", err)
	}

	canonical, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return "", fmt.Errorf("canonicalize: %w", err)
	}

	return canonical, nil
}

// Digest returns the hex encoded BLAKE3 digest of the file at the given path
// and its size.
func Digest(path string) (string, int64, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", 0, fmt.Errorf("open: %w", err)
	}
	defer file.Close()

	hasher := blake3.New()

	size, err := io.Copy(hasher, file)
	if err != nil {
		return "", 0, fmt.Errorf("read: %w", err)
	}

	return hex.EncodeToString(hasher.Sum(nil)), size, nil
}

// Process is a started child process with non-blocking output streams.
type Process struct {
	// Path is the canonical path of the executable.
	Path string

	cmd    *exec.Cmd
	stdout *Stream
	stderr *Stream
}

// Start starts the given command with stdin connected to the null device and
// stdout and stderr connected to pipes. The read ends of the pipes are
// switched to non-blocking mode.
//
// Errors are wrapped in [ErrSpawn] or [ErrDescriptorMode]. In the latter
// case the child is killed and reaped before returning.
func Start(command Command) (*Process, error) {
	path, err := Resolve(command.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSpawn, err)
	}

	outRead, outWrite, err := pipe()
	if err != nil {
		return nil, fmt.Errorf("%w: stdout: %w", ErrSpawn, err)
	}

	errRead, errWrite, err := pipe()
	if err != nil {
		_ = closeFD(outRead)
		_ = closeFD(outWrite)

		return nil, fmt.Errorf("%w: stderr: %w", ErrSpawn, err)
	}

	stdout := os.NewFile(uintptr(outWrite), "stdout")
	stderr := os.NewFile(uintptr(errWrite), "stderr")

	cmd := exec.Command(path, command.Args...)
	cmd.Stdin = nil
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.Env = command.Env
	cmd.SysProcAttr = &syscall.SysProcAttr{
		// Make sure the bridge does not outlive its supervisor.
		Pdeathsig: syscall.SIGKILL,
	}

	err = cmd.Start()

	// The child has its own copies now. Keeping the write ends open would
	// prevent EOF from ever being seen.
	_ = stdout.Close()
	_ = stderr.Close()

	if err != nil {
		_ = closeFD(outRead)
		_ = closeFD(errRead)

		return nil, fmt.Errorf("%w: %w", ErrSpawn, err)
	}

	process := &Process{
		Path:   path,
		cmd:    cmd,
		stdout: NewStream(KeyStdout, outRead, fdReader(outRead)),
		stderr: NewStream(KeyStderr, errRead, fdReader(errRead)),
	}

	if err := errors.Join(setNonblock(outRead), setNonblock(errRead)); err != nil {
		_ = process.Kill()
		_, _ = process.Wait()
		_ = process.Close()

		return nil, err
	}

	return process, nil
}

// Pid returns the process ID of the child.
func (p *Process) Pid() int {
	return p.cmd.Process.Pid
}

// Streams returns the stdout and stderr [Stream]s of the child. Ownership is
// handed over to the caller, which must run them with a single
// [Multiplexer].
func (p *Process) Streams() (*Stream, *Stream) {
	return p.stdout, p.stderr
}

// Signal sends the given signal to the child.
func (p *Process) Signal(sig os.Signal) error {
	if err := p.cmd.Process.Signal(sig); err != nil {
		return fmt.Errorf("signal %s: %w", sig, err)
	}

	return nil
}

// Kill kills the child.
func (p *Process) Kill() error {
	return p.Signal(os.Kill)
}

// Terminate sends SIGTERM to the child and SIGKILL if it did not exit
// within the grace period. It returns once the child was reaped.
func (p *Process) Terminate(grace time.Duration) (int, error) {
	if err := p.Signal(syscall.SIGTERM); err != nil {
		return p.Wait()
	}

	timer := time.AfterFunc(grace, func() {
		_ = p.Kill()
	})
	defer timer.Stop()

	return p.Wait()
}

// Wait waits for the child to exit and returns its exit code. A non-zero
// exit code or termination by signal is returned as [*ExitError].
func (p *Process) Wait() (int, error) {
	err := p.cmd.Wait()

	code := p.cmd.ProcessState.ExitCode()
	if code < 0 {
		code = exitCodeFromState(p.cmd.ProcessState)
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) || (err == nil && code != 0) {
		return code, &ExitError{Path: p.Path, Code: code}
	}

	if err != nil {
		return code, fmt.Errorf("wait: %w", err)
	}

	return code, nil
}

// Close closes the read ends of the output pipes.
func (p *Process) Close() error {
	return errors.Join(closeFD(p.stdout.FD()), closeFD(p.stderr.FD()))
}

// exitCodeFromState maps a termination by signal to the shell convention
// 128+signal.
func exitCodeFromState(state *os.ProcessState) int {
	if state == nil {
		return -1
	}

	status, ok := state.Sys().(syscall.WaitStatus)
	if !ok || !status.Signaled() {
		return -1
	}

	return 128 + int(status.Signal()) //nolint:mnd
}
