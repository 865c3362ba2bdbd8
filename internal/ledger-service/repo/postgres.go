package repo

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
)

// Postgres implementa as operações de saldo e reserva do ledger.
type Postgres struct{ db *sql.DB }

func NewPostgres(db *sql.DB) *Postgres { return &Postgres{db: db} }

var ErrInsufficientFunds = errors.New("insufficient funds")

// Transaction é um delta de saldo a aplicar; negativo debita, positivo credita.
type Transaction struct {
	UserID      string
	Amount      int64
	Description string
}

// getOrCreateAccount garante a conta do usuário e a trava com FOR UPDATE.
func getOrCreateAccount(ctx context.Context, tx *sql.Tx, userID string) (string, int64, error) {
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO ledger_accounts(id, user_id, balance, version)
		VALUES($1,$2,0,1) ON CONFLICT (user_id) DO NOTHING`,
		uuid.NewString(), userID); err != nil {
		return "", 0, err
	}

	var id string
	var balance int64
	err := tx.QueryRowContext(ctx,
		`SELECT id, balance FROM ledger_accounts WHERE user_id=$1 FOR UPDATE`, userID).
		Scan(&id, &balance)
	return id, balance, err
}

// Balance retorna saldo e total reservado do usuário, criando a conta se preciso.
func (p *Postgres) Balance(ctx context.Context, userID string) (balance, reserved int64, err error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, 0, err
	}
	defer tx.Rollback()

	accountID, bal, err := getOrCreateAccount(ctx, tx, userID)
	if err != nil {
		return 0, 0, err
	}

	if err = tx.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(amount),0) FROM ledger_reservations WHERE account_id=$1`,
		accountID).Scan(&reserved); err != nil {
		return 0, 0, err
	}

	if err = tx.Commit(); err != nil {
		return 0, 0, err
	}
	return bal, reserved, nil
}

// Deposit incrementa o saldo e registra a operação no journal.
func (p *Postgres) Deposit(ctx context.Context, userID string, amount int64) (newBalance int64, err error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	accountID, balance, err := getOrCreateAccount(ctx, tx, userID)
	if err != nil {
		return 0, err
	}

	newBalance = balance + amount
	if _, err = tx.ExecContext(ctx,
		`UPDATE ledger_accounts SET balance=$1, version=version+1 WHERE id=$2`,
		newBalance, accountID); err != nil {
		return 0, err
	}

	if _, err = tx.ExecContext(ctx, `
		INSERT INTO ledger_entries(id, account_id, operation_type, amount, description)
		VALUES($1,$2,'DEPOSIT',$3,$4)`,
		uuid.NewString(), accountID, amount, "deposit"); err != nil {
		return 0, err
	}

	if err = tx.Commit(); err != nil {
		return 0, err
	}
	return newBalance, nil
}

// Reserve coloca (ou substitui) a retenção (user, tag). A retenção é só
// bookkeeping: o saldo não muda, apenas o disponível (saldo - retenções).
func (p *Postgres) Reserve(ctx context.Context, userID, tag string, amount int64) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	accountID, balance, err := getOrCreateAccount(ctx, tx, userID)
	if err != nil {
		return err
	}

	// Disponível ignora a retenção desta mesma tag, que será substituída.
	var held int64
	if err = tx.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(amount),0) FROM ledger_reservations
		WHERE account_id=$1 AND tag<>$2`, accountID, tag).Scan(&held); err != nil {
		return err
	}
	if balance-held < amount {
		return ErrInsufficientFunds
	}

	if _, err = tx.ExecContext(ctx, `
		INSERT INTO ledger_reservations(id, account_id, tag, amount)
		VALUES($1,$2,$3,$4)
		ON CONFLICT (account_id, tag) DO UPDATE SET amount=EXCLUDED.amount`,
		uuid.NewString(), accountID, tag, amount); err != nil {
		return err
	}

	if _, err = tx.ExecContext(ctx, `
		INSERT INTO ledger_entries(id, account_id, operation_type, amount, description)
		VALUES($1,$2,'RESERVE',$3,$4)`,
		uuid.NewString(), accountID, amount, "reserve:"+tag); err != nil {
		return err
	}

	return tx.Commit()
}

// Unreserve remove a retenção (user, tag); no-op quando não existe.
func (p *Postgres) Unreserve(ctx context.Context, userID, tag string) error {
	_, err := p.db.ExecContext(ctx, `
		DELETE FROM ledger_reservations r
		USING ledger_accounts a
		WHERE r.account_id = a.id AND a.user_id=$1 AND r.tag=$2`, userID, tag)
	return err
}

// ClearReservations remove todas as retenções de uma tag, de todos os usuários.
func (p *Postgres) ClearReservations(ctx context.Context, tag string) error {
	_, err := p.db.ExecContext(ctx,
		`DELETE FROM ledger_reservations WHERE tag=$1`, tag)
	return err
}

// ApplyTransactions aplica um lote de deltas em uma única transação de banco:
// ou todos entram, ou nenhum. Cria contas conforme necessário e registra uma
// linha de journal por delta.
func (p *Postgres) ApplyTransactions(ctx context.Context, batch []Transaction) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, t := range batch {
		accountID, balance, err := getOrCreateAccount(ctx, tx, t.UserID)
		if err != nil {
			return err
		}

		if _, err = tx.ExecContext(ctx,
			`UPDATE ledger_accounts SET balance=$1, version=version+1 WHERE id=$2`,
			balance+t.Amount, accountID); err != nil {
			return err
		}

		op := "CREDIT"
		if t.Amount < 0 {
			op = "DEBIT"
		}
		if _, err = tx.ExecContext(ctx, `
			INSERT INTO ledger_entries(id, account_id, operation_type, amount, description)
			VALUES($1,$2,$3,$4,$5)`,
			uuid.NewString(), accountID, op, t.Amount, t.Description); err != nil {
			return err
		}
	}

	return tx.Commit()
}
