// Package optimistic runs local-first mutations: the in-memory change is
// applied before the remote write, and a failed write is either reverted
// exactly or reconciled by reloading authoritative state.
package optimistic

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Outcome labels how a command finished.
type Outcome string

const (
	OutcomeCommitted       Outcome = "committed"
	OutcomeRejected        Outcome = "rejected"
	OutcomeReverted        Outcome = "reverted"
	OutcomeReconciled      Outcome = "reconciled"
	OutcomeReconcileFailed Outcome = "reconcile_failed"
	OutcomeSkipped         Outcome = "skipped"
)

// ErrSkip may be returned by Apply to end a command without a remote write.
var ErrSkip = errors.New("optimistic: command skipped")

var (
	errMissingCommit = errors.New("optimistic: command requires a commit step")
	noOpLogger       = zap.NewNop()
)

// Command is one local-first mutation.
//
// Apply mutates local state. Commit performs the remote write. On a Commit
// failure Revert restores the exact prior local value when set, otherwise
// Reconcile reloads authoritative state.
type Command struct {
	Name      string
	Apply     func() error
	Commit    func(ctx context.Context) error
	Revert    func()
	Reconcile func(ctx context.Context) error
}

// Recorder observes command outcomes.
type Recorder interface {
	ObserveCommand(command, outcome string)
}

// RunnerConfig describes the dependencies of a Runner.
type RunnerConfig struct {
	Logger   *zap.Logger
	Recorder Recorder
}

// Runner executes commands and records their outcome.
type Runner struct {
	logger   *zap.Logger
	recorder Recorder
}

// NewRunner returns a Runner with no-op defaults for missing dependencies.
func NewRunner(cfg RunnerConfig) *Runner {
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Runner{logger: logger, recorder: cfg.Recorder}
}

// Execute runs cmd and returns the Apply or Commit error. Reconcile failures
// are logged and never replace the commit error.
func (r *Runner) Execute(ctx context.Context, cmd Command) error {
	if r == nil {
		r = NewRunner(RunnerConfig{})
	}
	if cmd.Commit == nil {
		return errMissingCommit
	}
	commandID := newCommandID()

	if cmd.Apply != nil {
		if err := cmd.Apply(); err != nil {
			if errors.Is(err, ErrSkip) {
				r.finish(cmd.Name, commandID, OutcomeSkipped, nil)
				return nil
			}
			r.finish(cmd.Name, commandID, OutcomeRejected, err)
			return err
		}
	}

	commitErr := cmd.Commit(ctx)
	if commitErr == nil {
		r.finish(cmd.Name, commandID, OutcomeCommitted, nil)
		return nil
	}

	switch {
	case cmd.Revert != nil:
		cmd.Revert()
		r.finish(cmd.Name, commandID, OutcomeReverted, commitErr)
	case cmd.Reconcile != nil:
		if err := cmd.Reconcile(context.WithoutCancel(ctx)); err != nil {
			r.logger.Error("optimistic reconcile failed",
				zap.String("command", cmd.Name),
				zap.String("command_id", commandID),
				zap.Error(err))
			r.finish(cmd.Name, commandID, OutcomeReconcileFailed, commitErr)
			return commitErr
		}
		r.finish(cmd.Name, commandID, OutcomeReconciled, commitErr)
	default:
		r.finish(cmd.Name, commandID, OutcomeReverted, commitErr)
	}
	return commitErr
}

func (r *Runner) finish(name, commandID string, outcome Outcome, err error) {
	if r.recorder != nil {
		r.recorder.ObserveCommand(name, string(outcome))
	}
	fields := []zap.Field{
		zap.String("command", name),
		zap.String("command_id", commandID),
		zap.String("outcome", string(outcome)),
	}
	switch outcome {
	case OutcomeCommitted, OutcomeSkipped:
		r.logger.Debug("optimistic command finished", fields...)
	case OutcomeRejected:
		r.logger.Info("optimistic command rejected", append(fields, zap.Error(err))...)
	default:
		r.logger.Warn("optimistic command rolled back", append(fields, zap.Error(err))...)
	}
}

func newCommandID() string {
	value, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return value.String()
}
