package util

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestNotFoundError(t *testing.T) {
	err := NewNotFoundError("router", "r-1")

	if got := err.Error(); got != "router r-1 not found" {
		t.Errorf("Error() = %q, want %q", got, "router r-1 not found")
	}
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("NotFoundError should unwrap to ErrNotFound")
	}

	wrapped := fmt.Errorf("loading detail: %w", err)
	var nf *NotFoundError
	if !errors.As(wrapped, &nf) {
		t.Fatal("errors.As should find NotFoundError through wrapping")
	}
	if nf.Entity != "router" || nf.ID != "r-1" {
		t.Errorf("unexpected fields: %+v", nf)
	}
}

func TestNotFoundErrorNoID(t *testing.T) {
	err := NewNotFoundError("olt", "")
	if got := err.Error(); got != "olt not found" {
		t.Errorf("Error() = %q, want %q", got, "olt not found")
	}
}

func TestUnsupportedError(t *testing.T) {
	err := NewUnsupportedError("packet-profile", "create")
	if !strings.Contains(err.Error(), "packet-profile") || !strings.Contains(err.Error(), "create") {
		t.Errorf("Error message should name entity and operation: %s", err.Error())
	}
	if !errors.Is(err, ErrUnsupported) {
		t.Errorf("UnsupportedError should unwrap to ErrUnsupported")
	}
}

func TestValidationError(t *testing.T) {
	err := NewValidationError("code is required")
	if err.Error() != "validation failed: code is required" {
		t.Errorf("Single error message incorrect: %s", err.Error())
	}
	if !errors.Is(err, ErrValidationFailed) {
		t.Errorf("ValidationError should unwrap to ErrValidationFailed")
	}

	multi := NewValidationError("code is required", "ip_address is invalid")
	if !strings.Contains(multi.Error(), "code is required") || !strings.Contains(multi.Error(), "ip_address is invalid") {
		t.Errorf("Multiple error message should list all errors: %s", multi.Error())
	}
}

func TestValidationBuilder(t *testing.T) {
	var vb ValidationBuilder
	vb.Add(true, "should not appear").
		Add(false, "base_url is required").
		AddErrorf("timeout %s is invalid", "-1s")

	if !vb.HasErrors() {
		t.Fatal("expected errors")
	}
	err := vb.Build()
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("Build() should return *ValidationError, got %T", err)
	}
	if len(ve.Errors) != 2 {
		t.Errorf("expected 2 errors, got %d: %v", len(ve.Errors), ve.Errors)
	}

	var empty ValidationBuilder
	if empty.Build() != nil {
		t.Error("Build() with no errors should return nil")
	}
}
