package model

import (
	"errors"
	"fmt"
	"testing"
)

func TestError_Error(t *testing.T) {
	cause := errors.New("file not found")
	tests := []struct {
		err  *Error
		want string
	}{
		{&Error{Kind: ErrArgumentConversion, Msg: "loading table", Err: cause}, "loading table: file not found"},
		{&Error{Kind: ErrExecution, Err: cause}, "file not found"},
		{&Error{Kind: ErrActionResolution, Msg: "no plugin 'x'"}, "no plugin 'x'"},
	}
	for _, tt := range tests {
		if got := tt.err.Error(); got != tt.want {
			t.Errorf("Error() = %q, want %q", got, tt.want)
		}
	}
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("boom")
	err := fmt.Errorf("stage: %w", NewError(ErrResultPersist, cause, "saving %s", "out"))
	if !errors.Is(err, cause) {
		t.Error("errors.Is did not find the cause")
	}
	if got := KindOf(err); got != ErrResultPersist {
		t.Errorf("KindOf = %q, want %q", got, ErrResultPersist)
	}
	if got := KindOf(cause); got != "" {
		t.Errorf("KindOf(plain) = %q, want empty", got)
	}
}

func TestAPIError_Error(t *testing.T) {
	err := &APIError{Code: ErrNotFound, Message: "Plugin 'dada2' not found"}
	want := "NOT_FOUND: Plugin 'dada2' not found"
	if got := err.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestNewNotFoundError(t *testing.T) {
	err := NewNotFoundError("Action", "denoise-single")
	if err.Code != ErrNotFound {
		t.Errorf("Code = %q, want %q", err.Code, ErrNotFound)
	}
	if err.Message != "Action 'denoise-single' not found" {
		t.Errorf("Message = %q", err.Message)
	}
}

func TestNewValidationError(t *testing.T) {
	err := NewValidationError("Invalid configuration",
		FieldError{Field: "n", Message: "must be at most 9"},
		FieldError{Field: "metric", Message: "required"},
	)
	if err.Code != ErrValidation {
		t.Errorf("Code = %q, want %q", err.Code, ErrValidation)
	}
	if len(err.Details) != 2 {
		t.Errorf("Details length = %d, want 2", len(err.Details))
	}
}
