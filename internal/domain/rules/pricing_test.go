package rules

import (
	"testing"

	"github.com/nyckye/starshop/backend/internal/domain/enums"
)

func TestPriceForTON(t *testing.T) {
	price, err := PriceFor(100, enums.PaymentMethodTON)
	if err != nil {
		t.Fatalf("price for ton: %v", err)
	}
	if price.Value != 0.7 {
		t.Fatalf("expected 0.7 TON for 100 stars, got %v", price.Value)
	}
	if price.Currency != "TON" {
		t.Fatalf("unexpected currency %q", price.Currency)
	}
}

func TestPriceForUnknownMethod(t *testing.T) {
	if _, err := PriceFor(100, enums.PaymentMethod("card")); err == nil {
		t.Fatalf("expected error for unknown method")
	}
}

func TestQuantityInBounds(t *testing.T) {
	if QuantityInBounds(10, 50, 1000000) {
		t.Fatalf("10 must be out of bounds")
	}
	if !QuantityInBounds(50, 50, 1000000) {
		t.Fatalf("50 must be in bounds")
	}
	if !QuantityInBounds(1000000, 50, 1000000) {
		t.Fatalf("upper bound must be inclusive")
	}
	if QuantityInBounds(1000001, 50, 1000000) {
		t.Fatalf("1000001 must be out of bounds")
	}
}

func TestTONFromNano(t *testing.T) {
	if got := TONFromNano(500000000); got != 0.5 {
		t.Fatalf("expected 0.5 TON, got %v", got)
	}
}
