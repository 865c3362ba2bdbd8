package dto

type OptionResponse struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Total       int64  `json:"total"`
}

type BetResponse struct {
	BetID   string           `json:"bet_id"`
	Status  string           `json:"status"`
	Pool    int64            `json:"pool"`
	Options []OptionResponse `json:"options"`
}

type EntryResponse struct {
	User   string `json:"user"`
	Amount int64  `json:"amount"`
}
