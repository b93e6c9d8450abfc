package rules

import (
	"fmt"
	"math"

	"github.com/nyckye/starshop/backend/internal/domain/enums"
)

const (
	// Nano-TON per TON, the chain's base unit.
	NanoPerTON = 1_000_000_000
)

type Price struct {
	Stars    int
	Value    float64
	Currency string
	Method   enums.PaymentMethod
}

func PriceFor(stars int, method enums.PaymentMethod) (Price, error) {
	switch method {
	case enums.PaymentMethodTON:
		return Price{Stars: stars, Value: roundTo(float64(stars)*0.007, 4), Currency: "TON", Method: method}, nil
	case enums.PaymentMethodCrypto:
		return Price{Stars: stars, Value: roundTo(float64(stars)*0.019, 3), Currency: "USDT", Method: method}, nil
	case enums.PaymentMethodRUB:
		return Price{Stars: stars, Value: roundTo(float64(stars)*1.5, 2), Currency: "RUB", Method: method}, nil
	default:
		return Price{}, fmt.Errorf("unknown payment method: %q", method)
	}
}

func QuantityInBounds(stars, min, max int) bool {
	return stars >= min && stars <= max
}

func TONFromNano(nano int64) float64 {
	return float64(nano) / NanoPerTON
}

func roundTo(v float64, places int) float64 {
	factor := math.Pow10(places)
	return math.Round(v*factor) / factor
}
