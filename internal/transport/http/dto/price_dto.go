package dto

type CalculatePriceRequest struct {
	Amount        int    `json:"amount"`
	PaymentMethod string `json:"payment_method"`
}

type PriceCalculation struct {
	Stars         int     `json:"stars"`
	Price         float64 `json:"price"`
	Currency      string  `json:"currency"`
	PaymentMethod string  `json:"payment_method"`
}
