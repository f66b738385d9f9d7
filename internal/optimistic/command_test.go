package optimistic

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type outcomeRecorder struct {
	outcomes []string
}

func (r *outcomeRecorder) ObserveCommand(command, outcome string) {
	r.outcomes = append(r.outcomes, command+":"+outcome)
}

func TestExecuteCommitsAppliedChange(t *testing.T) {
	recorder := &outcomeRecorder{}
	runner := NewRunner(RunnerConfig{Recorder: recorder})
	state := 0

	err := runner.Execute(context.Background(), Command{
		Name:   "counter.increment",
		Apply:  func() error { state++; return nil },
		Commit: func(context.Context) error { return nil },
		Revert: func() { state-- },
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if state != 1 {
		t.Fatalf("expected applied state, got %d", state)
	}
	if len(recorder.outcomes) != 1 || recorder.outcomes[0] != "counter.increment:committed" {
		t.Fatalf("unexpected outcomes %v", recorder.outcomes)
	}
}

func TestExecuteRevertsOnCommitFailure(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	recorder := &outcomeRecorder{}
	runner := NewRunner(RunnerConfig{Logger: zap.New(core), Recorder: recorder})
	commitErr := errors.New("offline")
	state := 0
	reconciled := false

	err := runner.Execute(context.Background(), Command{
		Name:      "counter.increment",
		Apply:     func() error { state++; return nil },
		Commit:    func(context.Context) error { return commitErr },
		Revert:    func() { state-- },
		Reconcile: func(context.Context) error { reconciled = true; return nil },
	})
	if !errors.Is(err, commitErr) {
		t.Fatalf("expected commit error, got %v", err)
	}
	if state != 0 {
		t.Fatalf("expected exact revert, got %d", state)
	}
	if reconciled {
		t.Fatalf("expected revert to take precedence over reconcile")
	}
	if recorder.outcomes[0] != "counter.increment:reverted" {
		t.Fatalf("unexpected outcomes %v", recorder.outcomes)
	}
	if logs.FilterMessage("optimistic command rolled back").Len() != 1 {
		t.Fatalf("expected rollback log entry")
	}
}

func TestExecuteReconcilesWithoutRevert(t *testing.T) {
	recorder := &outcomeRecorder{}
	runner := NewRunner(RunnerConfig{Recorder: recorder})
	ctx, cancel := context.WithCancel(context.Background())
	reconcileCtxErr := errors.New("unset")

	err := runner.Execute(ctx, Command{
		Name: "list.update",
		Commit: func(context.Context) error {
			cancel()
			return context.Canceled
		},
		Reconcile: func(reconcileCtx context.Context) error {
			reconcileCtxErr = reconcileCtx.Err()
			return nil
		},
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected commit error, got %v", err)
	}
	if reconcileCtxErr != nil {
		t.Fatalf("expected reconcile to run on an uncancelled context, got %v", reconcileCtxErr)
	}
	if recorder.outcomes[0] != "list.update:reconciled" {
		t.Fatalf("unexpected outcomes %v", recorder.outcomes)
	}
}

func TestExecuteKeepsCommitErrorWhenReconcileFails(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	runner := NewRunner(RunnerConfig{Logger: zap.New(core)})
	commitErr := errors.New("write failed")

	err := runner.Execute(context.Background(), Command{
		Name:      "list.delete",
		Commit:    func(context.Context) error { return commitErr },
		Reconcile: func(context.Context) error { return errors.New("reload failed") },
	})
	if !errors.Is(err, commitErr) {
		t.Fatalf("expected commit error, got %v", err)
	}
	if logs.FilterMessage("optimistic reconcile failed").Len() != 1 {
		t.Fatalf("expected reconcile failure to be logged")
	}
}

func TestExecuteStopsOnApplyError(t *testing.T) {
	testCases := []struct {
		name        string
		applyErr    error
		expectErr   bool
		wantOutcome string
	}{
		{name: "rejected", applyErr: errors.New("invalid"), expectErr: true, wantOutcome: "cmd:rejected"},
		{name: "skipped", applyErr: ErrSkip, expectErr: false, wantOutcome: "cmd:skipped"},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			recorder := &outcomeRecorder{}
			runner := NewRunner(RunnerConfig{Recorder: recorder})
			committed := false
			err := runner.Execute(context.Background(), Command{
				Name:   "cmd",
				Apply:  func() error { return testCase.applyErr },
				Commit: func(context.Context) error { committed = true; return nil },
			})
			if (err != nil) != testCase.expectErr {
				t.Fatalf("unexpected error state: %v", err)
			}
			if committed {
				t.Fatalf("expected commit to be skipped")
			}
			if recorder.outcomes[0] != testCase.wantOutcome {
				t.Fatalf("unexpected outcomes %v", recorder.outcomes)
			}
		})
	}
}

func TestExecuteRequiresCommit(t *testing.T) {
	err := NewRunner(RunnerConfig{}).Execute(context.Background(), Command{Name: "noop"})
	if err == nil {
		t.Fatalf("expected error for missing commit")
	}
}
