package domain

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestPartialInventoryAdjustmentError(t *testing.T) {
	cause := errors.New("connection reset")
	err := &PartialInventoryAdjustmentError{
		OrderID: "order-1",
		Applied: []string{"prod-1"},
		Failed:  []string{"prod-2", "prod-3"},
		Cause:   cause,
	}

	msg := err.Error()
	for _, fragment := range []string{"order-1", "prod-1", "prod-2", "prod-3", "connection reset"} {
		if !strings.Contains(msg, fragment) {
			t.Fatalf("expected %q in error message %q", fragment, msg)
		}
	}

	if !errors.Is(err, cause) {
		t.Fatal("expected Unwrap to expose the cause")
	}

	wrapped := fmt.Errorf("checkout: %w", err)
	if !IsPartialAdjustment(wrapped) {
		t.Fatal("expected IsPartialAdjustment to match wrapped error")
	}
	if IsPartialAdjustment(cause) {
		t.Fatal("expected plain cause not to match")
	}
}

func TestIsValidationError(t *testing.T) {
	if !IsValidationError(ErrEmptyCart) || !IsValidationError(ErrInvalidQuantity) {
		t.Fatal("expected cart validation errors to match")
	}
	if !IsValidationError(fmt.Errorf("checkout: %w", ErrEmptyCart)) {
		t.Fatal("expected wrapped validation error to match")
	}
	if IsValidationError(ErrOrderNotFound) {
		t.Fatal("expected storage error not to match")
	}
}

func TestIdempotencyStatusValid(t *testing.T) {
	for _, status := range []IdempotencyStatus{IdempotencyStatusProcessing, IdempotencyStatusDone, IdempotencyStatusFailed} {
		if !status.Valid() {
			t.Fatalf("expected %s to be valid", status)
		}
	}
	if IdempotencyStatus("unknown").Valid() {
		t.Fatal("expected unknown status to be invalid")
	}
}
