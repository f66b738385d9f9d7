package apperrors

import (
	"errors"
	"fmt"
	"testing"
)

func TestNewErrorMatchesKindSentinelAndCause(t *testing.T) {
	cause := errors.New("disk full")
	err := Persistence("declarations.create", "partition_write_failed", cause)

	if !errors.Is(err, ErrPersistence) {
		t.Fatalf("expected persistence sentinel to match")
	}
	if !errors.Is(err, cause) {
		t.Fatalf("expected cause to match")
	}
	if errors.Is(err, ErrValidation) {
		t.Fatalf("did not expect validation sentinel to match")
	}
	if got := CodeOf(err); got != "declarations.create.partition_write_failed" {
		t.Fatalf("unexpected code %q", got)
	}
	if got := err.Error(); got != "declarations.create.partition_write_failed: disk full" {
		t.Fatalf("unexpected message %q", got)
	}
}

func TestKindOfWrappedError(t *testing.T) {
	testCases := []struct {
		name string
		err  error
		want Kind
	}{
		{name: "validation", err: Validation("journey.add_sentence", "empty_sentence", nil), want: KindValidation},
		{name: "wrapped-not-found", err: fmt.Errorf("outer: %w", NotFound("journey.edit", "missing_pilar", nil)), want: KindNotFound},
		{name: "plain", err: errors.New("boom"), want: KindInternal},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			if got := KindOf(testCase.err); got != testCase.want {
				t.Fatalf("want %s got %s", testCase.want, got)
			}
		})
	}
}

func TestErrorWithoutCause(t *testing.T) {
	err := New(KindForbidden, "declarations.delete", "not_creator", nil)
	if err.Error() != "declarations.delete.not_creator" {
		t.Fatalf("unexpected message %q", err.Error())
	}
	if ReasonOf(err) != "not_creator" {
		t.Fatalf("unexpected reason %q", ReasonOf(err))
	}
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected forbidden sentinel")
	}
}
