// SPDX-FileCopyrightText: 2025 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package boot

import (
	"context"
	"errors"
	"fmt"

	"github.com/aibor/enclaveos/internal/exitcode"
	"github.com/aibor/enclaveos/sysinit"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Sequencer runs the boot sequence of the enclave.
type Sequencer struct {
	cfg   Config
	state *sysinit.State
}

// New creates a new [Sequencer]. Unset fields of the config are set to their
// defaults.
func New(state *sysinit.State, cfg Config) *Sequencer {
	cfg.setDefaults()

	if state == nil {
		state = sysinit.NewState(nil, nil)
	}

	return &Sequencer{
		cfg:   cfg,
		state: state,
	}
}

// Steps returns the setup steps in the order they are run by
// [Sequencer.Boot]. Steps without configuration are omitted.
func (s *Sequencer) Steps() []sysinit.Func {
	steps := []sysinit.Func{
		sysinit.WithMountTable(s.cfg.Mounter, s.cfg.MountTable),
	}

	if len(s.cfg.Console.Bindings) > 0 {
		steps = append(steps, sysinit.WithConsole(
			s.cfg.Console.Binder,
			s.cfg.Console.Bindings,
			s.cfg.Console.Severity,
		))
	}

	if s.cfg.Platform.Platform != nil {
		steps = append(steps, sysinit.WithPlatform(
			s.cfg.Platform.Platform,
			s.cfg.Platform.Severity,
		))
	}

	if s.cfg.Entropy.Source != nil {
		steps = append(steps, sysinit.WithEntropy(
			s.cfg.Entropy.Source,
			s.cfg.Entropy.Sink,
			s.cfg.Entropy.Bytes,
			s.cfg.Entropy.Attempts,
			s.cfg.Entropy.Severity,
		))
	}

	return steps
}

// Boot runs the setup steps. It returns the first fatal error.
func (s *Sequencer) Boot() error {
	if err := sysinit.RunSteps(s.state, s.Steps()...); err != nil {
		return err //nolint:wrapcheck
	}

	s.state.Log.Info("enclave booted")

	return nil
}

// Serve runs bridge and workload according to the configured [Mode] and
// returns once both finished.
func (s *Sequencer) Serve(ctx context.Context) error {
	if s.cfg.Bridge == nil {
		return ErrNoBridge
	}

	s.state.Log.Info("serving", zap.Stringer("mode", s.cfg.Mode))

	switch s.cfg.Mode {
	case ModeConcurrent:
		return s.serveConcurrent(ctx)
	case ModeBlocking:
		return s.serveBlocking(ctx)
	default:
		return fmt.Errorf("unknown mode %d", int(s.cfg.Mode))
	}
}

func (s *Sequencer) serveConcurrent(ctx context.Context) error {
	group, ctx := errgroup.WithContext(ctx)

	group.Go(s.task(ctx, "bridge", s.cfg.Bridge))

	if s.cfg.Workload != nil {
		group.Go(s.task(ctx, "workload", s.cfg.Workload))
	}

	return group.Wait() //nolint:wrapcheck
}

func (s *Sequencer) serveBlocking(ctx context.Context) error {
	if err := s.task(ctx, "bridge", s.cfg.Bridge)(); err != nil {
		return err
	}

	if s.cfg.Workload == nil {
		return nil
	}

	return s.task(ctx, "workload", s.cfg.Workload)()
}

func (s *Sequencer) task(ctx context.Context, name string, workload Workload) func() error {
	return func() error {
		s.state.Log.Debug("task started", zap.String("task", name))

		err := workload.Run(ctx)
		if err != nil {
			s.state.Log.Warn("task failed", zap.String("task", name), zap.Error(err))
			return err
		}

		s.state.Log.Info("task finished", zap.String("task", name))

		return nil
	}
}

// Run runs the whole sequence: [Sequencer.Boot], [Sequencer.Serve] if the
// boot succeeded, cleanup, the exit code line and the terminal action.
//
// With a real [sysinit.Terminator], Run only returns if the terminal action
// failed or is [sysinit.ActionIdle] and the context is done.
func (s *Sequencer) Run(ctx context.Context) error {
	err := s.Boot()
	if err != nil {
		s.state.Log.Error("boot failed", zap.Error(err))
	} else {
		err = s.Serve(ctx)
	}

	s.state.DoCleanup()

	action := s.Finish(err)

	s.state.Log.Info("terminating", zap.Stringer("action", action))

	if termErr := sysinit.Terminate(ctx, s.cfg.Terminator, action); termErr != nil {
		return errors.Join(err, fmt.Errorf("terminate %s: %w", action, termErr))
	}

	return err
}

// Finish writes the exit code line for the given result and returns the
// terminal action to carry out.
func (s *Sequencer) Finish(err error) sysinit.TerminalAction {
	code, _ := exitcode.From(err)

	if _, werr := exitcode.Fprint(s.cfg.Out, code); werr != nil {
		s.state.Log.Error("write exit code", zap.Int("exit_code", code), zap.Error(werr))
	}

	if err != nil {
		return s.cfg.OnFailure
	}

	return s.cfg.OnExit
}
