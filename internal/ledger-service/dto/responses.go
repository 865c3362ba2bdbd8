package dto

type BalanceResponse struct {
	UserID   string `json:"user_id"`
	Balance  int64  `json:"balance"`
	Reserved int64  `json:"reserved"`
}

type StatusResponse struct {
	Status string `json:"status"`
}
