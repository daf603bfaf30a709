package jeterrors

import (
	"errors"
	"fmt"
	"testing"
)

func TestCorruptFileError(t *testing.T) {
	tests := []struct {
		name    string
		err     *CorruptFileError
		wantMsg string
	}{
		{
			name:    "with page",
			err:     &CorruptFileError{Page: 42, Reason: "bad checksum"},
			wantMsg: "corrupt file at page 42: bad checksum",
		},
		{
			name:    "without page",
			err:     &CorruptFileError{Reason: "truncated header"},
			wantMsg: "corrupt file: truncated header",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.wantMsg {
				t.Errorf("Error() = %q, want %q", got, tt.wantMsg)
			}
			if !errors.Is(tt.err, ErrCorruptFile) {
				t.Errorf("expected errors.Is to match ErrCorruptFile")
			}
		})
	}
}

func TestUniquenessViolationError(t *testing.T) {
	err := &UniquenessViolationError{Table: "Contacts", Index: "PrimaryKey", Key: "7"}
	want := "uniqueness violation on Contacts.PrimaryKey: key 7 already exists"
	if got := err.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
	if !errors.Is(err, ErrUniquenessViolation) {
		t.Error("expected errors.Is to match ErrUniquenessViolation")
	}
}

func TestCascadeCycleError(t *testing.T) {
	err := &CascadeCycleError{Table: "Orders", Path: []string{"Customers", "Orders"}}
	if !errors.Is(err, ErrCascadeCycle) {
		t.Error("expected errors.Is to match ErrCascadeCycle")
	}
}

func TestIOErrorUnwrap(t *testing.T) {
	base := fmt.Errorf("permission denied")
	err := &IOError{Operation: "read", Path: "db.accdb", Err: base}
	if got := err.Unwrap(); got != base {
		t.Errorf("Unwrap() = %v, want %v", got, base)
	}
	want := "failed to read db.accdb: permission denied"
	if got := err.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestDatabasePoisonedError(t *testing.T) {
	err := &DatabasePoisonedError{Reason: "write barrier aborted mid-commit"}
	if !errors.Is(err, ErrDatabasePoisoned) {
		t.Error("expected errors.Is to match ErrDatabasePoisoned")
	}
}

func TestWrap(t *testing.T) {
	base := fmt.Errorf("base error")
	wrapped := Wrap(base, "context message")
	if !errors.Is(wrapped, base) {
		t.Error("Wrap() error does not unwrap to base error")
	}
	if Wrap(nil, "context") != nil {
		t.Error("Wrap(nil) should return nil")
	}
}

func TestWrapf(t *testing.T) {
	base := fmt.Errorf("base error")
	wrapped := Wrapf(base, "failed to process %s", "table.def")
	want := "failed to process table.def: base error"
	if wrapped.Error() != want {
		t.Errorf("Wrapf() = %q, want %q", wrapped.Error(), want)
	}
	if Wrapf(nil, "context %s", "x") != nil {
		t.Error("Wrapf(nil) should return nil")
	}
}

func TestAs(t *testing.T) {
	err := &UniquenessViolationError{Table: "t", Index: "i", Key: "k"}
	var uv *UniquenessViolationError
	if !As(err, &uv) {
		t.Error("As() failed to match UniquenessViolationError")
	}
	if uv.Table != "t" {
		t.Errorf("uv.Table = %q, want %q", uv.Table, "t")
	}
}
