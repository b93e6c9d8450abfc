package dto

import "time"

type PurchaseRequest struct {
	Username       string `json:"username"`
	Amount         int    `json:"amount"`
	PaymentMethod  string `json:"payment_method,omitempty"`
	UserID         int64  `json:"user_id,omitempty"`
	InitData       string `json:"init_data,omitempty"`
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

type PurchaseResponse struct {
	Success   bool    `json:"success"`
	Replayed  bool    `json:"replayed,omitempty"`
	Recipient string  `json:"recipient,omitempty"`
	Stars     int64   `json:"stars,omitempty"`
	AmountTON float64 `json:"amount_ton,omitempty"`
	Memo      string  `json:"memo,omitempty"`
	TxHash    string  `json:"tx_hash,omitempty"`
	TxLink    string  `json:"tx_link,omitempty"`
	Error     string  `json:"error,omitempty"`
}

type PurchaseHistoryItem struct {
	Recipient     string    `json:"recipient"`
	Stars         int64     `json:"stars"`
	PaymentMethod string    `json:"payment_method"`
	Status        string    `json:"status"`
	TxHash        string    `json:"tx_hash,omitempty"`
	TxLink        string    `json:"tx_link,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

type PurchaseHistoryResponse struct {
	Purchases []PurchaseHistoryItem `json:"purchases"`
}
