package dto

type CheckUserRequest struct {
	Username string `json:"username"`
	UserID   int64  `json:"user_id,omitempty"`
	InitData string `json:"init_data,omitempty"`
}

type UserProfileResponse struct {
	Found     bool   `json:"found"`
	Username  string `json:"username"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	PhotoURL  string `json:"photo_url,omitempty"`
	IsPremium bool   `json:"is_premium,omitempty"`
}
