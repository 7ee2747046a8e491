package chat

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestErrorKinds(t *testing.T) {
	tests := []struct {
		name string
		err  error
		kind error
		wire string
	}{
		{"validation", Validationf("bad %s", "input"), ErrValidation, "validation"},
		{"forbidden", Forbidden("Not a member of this group"), ErrAuthorization, "authorization"},
		{"auth", Unauthenticated("Invalid token"), ErrAuth, "auth"},
		{"not found", NotFound("User not found"), ErrNotFound, "not_found"},
		{"conflict", Conflict("Already a member"), ErrConflict, "conflict"},
		{"wrapped", fmt.Errorf("outer: %w", Forbidden("no")), ErrAuthorization, "authorization"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KindOf(tt.err); got != tt.kind {
				t.Errorf("KindOf() = %v, want %v", got, tt.kind)
			}
			if got := KindName(tt.err); got != tt.wire {
				t.Errorf("KindName() = %q, want %q", got, tt.wire)
			}
		})
	}
}

func TestStoreFailure(t *testing.T) {
	cause := errors.New("disk full")
	err := StoreFailure("append message", cause)
	if !errors.Is(err, ErrStore) || !errors.Is(err, cause) {
		t.Errorf("StoreFailure() = %v, want store error wrapping cause", err)
	}
	if err.Error() != "append message: store unavailable" {
		t.Errorf("Error() = %q", err.Error())
	}

	timeout := StoreFailure("is member", context.DeadlineExceeded)
	if !errors.Is(timeout, ErrStore) || timeout.Error() != "is member: store timed out" {
		t.Errorf("StoreFailure(deadline) = %v", timeout)
	}

	kinded := NotFound("gone")
	if got := StoreFailure("find", kinded); got != kinded {
		t.Errorf("StoreFailure() = %v, want kinded error unchanged", got)
	}

	if StoreFailure("noop", nil) != nil {
		t.Error("StoreFailure(nil) should be nil")
	}
}

func TestFaultRoundTrip(t *testing.T) {
	f := FaultFrom(Conflict("Already a member of this group"))
	err := f.Err()
	if !errors.Is(err, ErrConflict) {
		t.Errorf("Fault.Err() = %v, want conflict", err)
	}
	if err.Error() != "Already a member of this group" {
		t.Errorf("Fault.Err().Error() = %q", err.Error())
	}

	internal := FaultFrom(errors.New("sql: connection refused"))
	if internal.Kind != "store" || internal.Message != "internal error" {
		t.Errorf("FaultFrom(plain) = %+v, want generic store fault", internal)
	}

	if FaultFrom(nil) != nil {
		t.Error("FaultFrom(nil) should be nil")
	}
	var nilFault *Fault
	if nilFault.Err() != nil {
		t.Error("nil Fault.Err() should be nil")
	}
}
