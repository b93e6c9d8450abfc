package enums

import (
	"fmt"
	"strings"
)

type PaymentMethod string

const (
	PaymentMethodTON    PaymentMethod = "ton"
	PaymentMethodCrypto PaymentMethod = "crypto"
	PaymentMethodRUB    PaymentMethod = "rub"
)

func ParsePaymentMethod(raw string) (PaymentMethod, error) {
	switch PaymentMethod(strings.ToLower(strings.TrimSpace(raw))) {
	case PaymentMethodTON:
		return PaymentMethodTON, nil
	case PaymentMethodCrypto:
		return PaymentMethodCrypto, nil
	case PaymentMethodRUB:
		return PaymentMethodRUB, nil
	default:
		return "", fmt.Errorf("unknown payment method: %q", raw)
	}
}

func (m PaymentMethod) String() string {
	return string(m)
}
