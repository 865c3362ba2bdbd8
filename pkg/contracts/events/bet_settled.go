package events

import "time"

// Pagamento de um vencedor individual.
type WinnerPayout struct {
	User   string `json:"user"`
	Stake  int64  `json:"stake"`
	Payout int64  `json:"payout"`
}

// Evento publicado no tópico "bet_settled" após o encerramento de uma aposta.
type BetSettled struct {
	BetID        string         `json:"bet_id"`
	Option       string         `json:"option"`
	Pool         int64          `json:"pool"`
	WinningTotal int64          `json:"winning_total"`
	Winners      []WinnerPayout `json:"winners"`
	Ts           time.Time      `json:"ts"`
}
