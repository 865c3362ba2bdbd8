package dto

// Payloads da API do ledger-service consumidos pelo bet-service.

type ReserveRequest struct {
	UserID string `json:"user_id"`
	Tag    string `json:"tag"`
	Amount int64  `json:"amount"`
}

type UnreserveRequest struct {
	UserID string `json:"user_id"`
	Tag    string `json:"tag"`
}

type ClearReservationsRequest struct {
	Tag string `json:"tag"`
}

type TransactionItem struct {
	UserID      string `json:"user_id"`
	Amount      int64  `json:"amount"` // negativo debita, positivo credita
	Description string `json:"description"`
}

type TransactionsRequest struct {
	Transactions []TransactionItem `json:"transactions"`
}
