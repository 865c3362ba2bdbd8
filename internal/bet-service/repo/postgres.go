package repo

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
)

// Postgres implementa a persistência de apostas, opções e palpites.
type Postgres struct{ db *sql.DB }

// NewPostgres retorna uma instância do repositório de apostas
func NewPostgres(db *sql.DB) *Postgres { return &Postgres{db: db} }

// ErrNoActiveBet sinaliza que não existe aposta com status != ENDED para retomar.
var ErrNoActiveBet = errors.New("no active bet")

// CreateBetWithOptions insere a aposta OPEN e suas opções em uma única transação.
func (p *Postgres) CreateBetWithOptions(ctx context.Context, options map[string]string) (string, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer tx.Rollback()

	betID := uuid.NewString()
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO bets (id, status) VALUES ($1, $2)`, betID, StatusOpen); err != nil {
		return "", err
	}

	for name, desc := range options {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO bet_options (id, bet_id, name, description)
			VALUES ($1,$2,$3,$4)`,
			uuid.NewString(), betID, name, desc); err != nil {
			return "", err
		}
	}

	if err := tx.Commit(); err != nil {
		return "", err
	}
	return betID, nil
}

// GetStatus retorna o status atual da aposta.
func (p *Postgres) GetStatus(ctx context.Context, betID string) (string, error) {
	var s string
	err := p.db.QueryRowContext(ctx, `SELECT status FROM bets WHERE id=$1`, betID).Scan(&s)
	return s, err
}

// SetStatus grava o novo status da aposta.
func (p *Postgres) SetStatus(ctx context.Context, betID, status string) error {
	_, err := p.db.ExecContext(ctx,
		`UPDATE bets SET status=$1, updated_at=NOW() WHERE id=$2`, status, betID)
	return err
}

// FindActiveBet retorna a aposta não encerrada mais recente, se existir.
// Usado na recuperação pós-restart; espera-se no máximo uma.
func (p *Postgres) FindActiveBet(ctx context.Context) (*Bet, error) {
	var b Bet
	err := p.db.QueryRowContext(ctx, `
		SELECT id, status, created_at, updated_at
		FROM bets WHERE status <> $1
		ORDER BY created_at DESC LIMIT 1`, StatusEnded).
		Scan(&b.ID, &b.Status, &b.CreatedAt, &b.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNoActiveBet
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// Options lista as opções da aposta.
func (p *Postgres) Options(ctx context.Context, betID string) ([]Option, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, bet_id, name, description
		FROM bet_options WHERE bet_id=$1 ORDER BY name`, betID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Option
	for rows.Next() {
		var o Option
		if err := rows.Scan(&o.ID, &o.BetID, &o.Name, &o.Description); err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// OptionByName busca uma opção pelo nome já normalizado (minúsculo).
// Retorna (nil, nil) quando não existe.
func (p *Postgres) OptionByName(ctx context.Context, betID, name string) (*Option, error) {
	var o Option
	err := p.db.QueryRowContext(ctx, `
		SELECT id, bet_id, name, description
		FROM bet_options WHERE bet_id=$1 AND name=$2`, betID, name).
		Scan(&o.ID, &o.BetID, &o.Name, &o.Description)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &o, nil
}

// Entries lista os palpites da aposta.
func (p *Postgres) Entries(ctx context.Context, betID string) ([]Entry, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, bet_id, user_id, option_id, amount
		FROM bet_entries WHERE bet_id=$1`, betID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.BetID, &e.UserID, &e.OptionID, &e.Amount); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// InsertEntry insere um palpite e retorna o id gerado.
func (p *Postgres) InsertEntry(ctx context.Context, e *Entry) (string, error) {
	id := uuid.NewString()
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO bet_entries (id, bet_id, user_id, option_id, amount)
		VALUES ($1,$2,$3,$4,$5)`,
		id, e.BetID, e.UserID, e.OptionID, e.Amount)
	if err != nil {
		return "", err
	}
	return id, nil
}

// DeleteEntry remove o palpite do usuário; sem erro quando não existe.
func (p *Postgres) DeleteEntry(ctx context.Context, betID, userID string) error {
	_, err := p.db.ExecContext(ctx,
		`DELETE FROM bet_entries WHERE bet_id=$1 AND user_id=$2`, betID, userID)
	return err
}

// SumEntries retorna o pool (soma de todos os palpites); 0 quando não há linhas.
func (p *Postgres) SumEntries(ctx context.Context, betID string) (int64, error) {
	var total int64
	err := p.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(amount),0) FROM bet_entries WHERE bet_id=$1`, betID).
		Scan(&total)
	return total, err
}

// SumEntriesByOption retorna o total apostado em uma opção; 0 quando não há linhas.
func (p *Postgres) SumEntriesByOption(ctx context.Context, betID, optionID string) (int64, error) {
	var total int64
	err := p.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(amount),0) FROM bet_entries
		WHERE bet_id=$1 AND option_id=$2`, betID, optionID).
		Scan(&total)
	return total, err
}

// SumEntriesByUser retorna o valor apostado pelo usuário; 0 quando não há linha.
func (p *Postgres) SumEntriesByUser(ctx context.Context, betID, userID string) (int64, error) {
	var total int64
	err := p.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(amount),0) FROM bet_entries
		WHERE bet_id=$1 AND user_id=$2`, betID, userID).
		Scan(&total)
	return total, err
}
