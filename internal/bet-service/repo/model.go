package repo

import "time"

// Status de uma aposta. Linear: OPEN -> CLOSED -> ENDED (end pode pular o CLOSED).
const (
	StatusOpen   = "OPEN"
	StatusClosed = "CLOSED"
	StatusEnded  = "ENDED"
)

// Bet é o registro persistido da aposta corrente.
type Bet struct {
	ID        string
	Status    string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Option é uma das alternativas mutuamente exclusivas de uma aposta.
// Name é a chave curta digitada no chat ("a", "b", ...), sempre minúscula,
// única por aposta. Imutável após a criação.
type Option struct {
	ID          string
	BetID       string
	Name        string
	Description string
}

// Entry é o palpite de um usuário: no máximo uma por (bet, user).
type Entry struct {
	ID       string
	BetID    string
	UserID   string
	OptionID string
	Amount   int64
}
