package dto

import "time"

type AdminLoginRequest struct {
	Token string `json:"token"`
}

type AdminLoginResponse struct {
	AccessToken  string `json:"access_token"`
	ExpiresInSec int64  `json:"expires_in_sec"`
}

type AdminStatisticsResponse struct {
	TotalPurchases  int64   `json:"total_purchases"`
	Succeeded       int64   `json:"succeeded"`
	Failed          int64   `json:"failed"`
	Pending         int64   `json:"pending"`
	StarsDelivered  int64   `json:"stars_delivered"`
	DistinctBuyers  int64   `json:"distinct_buyers"`
	WalletBalance   float64 `json:"wallet_balance,omitempty"`
	WalletAvailable bool    `json:"wallet_available"`
}

type SecurityEventItem struct {
	Kind       string    `json:"kind"`
	Path       string    `json:"path"`
	Method     string    `json:"method"`
	Pattern    string    `json:"pattern"`
	ClientIP   string    `json:"client_ip,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

type SecurityEventsResponse struct {
	Events []SecurityEventItem `json:"events"`
}

type HealthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
}
