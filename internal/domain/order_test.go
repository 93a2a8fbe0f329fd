package domain

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func validOrder() Order {
	now := time.Now().UTC()
	return Order{
		ID:            "order-1",
		Number:        "ORD-000001",
		Status:        OrderStatusCompleted,
		PaymentStatus: PaymentStatusPaid,
		Payment:       PaymentMethodCash,
		Delivery:      DeliveryMethodPickup,
		Currency:      "INR",
		SubtotalMinor: 179800,
		TaxMinor:      32364,
		TotalMinor:    212164,
		Lines: []OrderLine{{
			ID:             "line-1",
			OrderID:        "order-1",
			ProductID:      "prod-1",
			Name:           "Teddy Bear",
			Qty:            2,
			UnitPriceMinor: 89900,
			AmountMinor:    179800,
			CreatedAt:      now,
		}},
		CreatedAt: now,
	}
}

func TestOrderValidateInvariants_Valid(t *testing.T) {
	order := validOrder()
	if errs := order.ValidateInvariants(); len(errs) != 0 {
		t.Fatalf("expected no violations, got %v", errs)
	}
}

func TestOrderValidateInvariants_Violations(t *testing.T) {
	order := validOrder()
	order.Currency = ""
	order.Lines[0].Qty = 0
	order.Lines[0].AmountMinor = 1

	errs := order.ValidateInvariants()
	if len(errs) == 0 {
		t.Fatal("expected violations")
	}

	wantErrs := []error{ErrCurrencyRequired, ErrLineQtyInvalid, ErrLineAmountMismatch, ErrAmountMismatch}
	for _, want := range wantErrs {
		found := false
		for _, got := range errs {
			if errors.Is(got, want) {
				found = true
				break
			}
		}
		if !found {
			t.Fatalf("expected %v among violations %v", want, errs)
		}
	}
}

func TestOrderValidateInvariants_TotalMismatch(t *testing.T) {
	order := validOrder()
	order.TotalMinor = order.SubtotalMinor // потеряли налог

	errs := order.ValidateInvariants()
	found := false
	for _, got := range errs {
		if errors.Is(got, ErrTotalMismatch) {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected ErrTotalMismatch, got %v", errs)
	}
}

func TestNewOrderNumber_Format(t *testing.T) {
	number := NewOrderNumber(time.Date(2026, 3, 14, 15, 9, 26, 535000000, time.UTC))
	if !strings.HasPrefix(number, "ORD-") {
		t.Fatalf("expected ORD- prefix, got %s", number)
	}
	if len(number) != len("ORD-")+6 {
		t.Fatalf("expected 6-digit suffix, got %s", number)
	}
}
