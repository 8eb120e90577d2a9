package dto

// AccountStatusResponse reports an account's moderation state after an admin action
type AccountStatusResponse struct {
	AccountID uint   `json:"account_id"`
	Role      string `json:"role"`
	IsBlocked bool   `json:"is_blocked"`
}
