package apperror

import (
	"errors"
	"fmt"
	"testing"
)

func TestCodeOfWrappedError(t *testing.T) {
	base := errors.New("boom")
	err := fmt.Errorf("close room: %w", New(ErrorCodeAlreadyClosed, "room is already closed", base))

	if CodeOf(err) != ErrorCodeAlreadyClosed {
		t.Fatalf("expected already_closed, got %s", CodeOf(err))
	}
	if !errors.Is(err, base) {
		t.Fatal("expected the cause to stay reachable")
	}
}

func TestCodeOfPlainError(t *testing.T) {
	if CodeOf(errors.New("plain")) != ErrorCodeInternal {
		t.Fatal("plain errors map to internal_error")
	}
	if Is(nil, ErrorCodeInternal) {
		t.Fatal("nil is never an error code")
	}
}

func TestKeepsPending(t *testing.T) {
	if !KeepsPending(Validation("room name must not be empty")) {
		t.Fatal("validation errors keep the pending action")
	}
	if KeepsPending(NotFound("room not found", nil)) {
		t.Fatal("not found clears the pending action")
	}
}
