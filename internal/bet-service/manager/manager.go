package manager

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/apostabot/apostabot/internal/bet-service/repo"
)

// Tag usada em todas as reservas de saldo de aposta. Só existe uma aposta
// ativa no sistema, então a limpeza no encerramento é global por tag.
const ReservationTag = "bet"

// Store define as operações de persistência usadas pelo Manager.
// Implementado por repo.Postgres; fakes em memória nos testes.
type Store interface {
	CreateBetWithOptions(ctx context.Context, options map[string]string) (string, error)
	GetStatus(ctx context.Context, betID string) (string, error)
	SetStatus(ctx context.Context, betID, status string) error
	FindActiveBet(ctx context.Context) (*repo.Bet, error)
	Options(ctx context.Context, betID string) ([]repo.Option, error)
	OptionByName(ctx context.Context, betID, name string) (*repo.Option, error)
	Entries(ctx context.Context, betID string) ([]repo.Entry, error)
	InsertEntry(ctx context.Context, e *repo.Entry) (string, error)
	DeleteEntry(ctx context.Context, betID, userID string) error
	SumEntries(ctx context.Context, betID string) (int64, error)
	SumEntriesByOption(ctx context.Context, betID, optionID string) (int64, error)
	SumEntriesByUser(ctx context.Context, betID, userID string) (int64, error)
}

// Transaction é um delta de saldo aplicado pelo ledger: negativo debita,
// positivo credita. O lote inteiro é aplicado de forma atômica pelo serviço.
type Transaction struct {
	User        string
	Amount      int64
	Description string
}

// Ledger define o contrato consumido do serviço de saldo/escrow.
type Ledger interface {
	Reserve(ctx context.Context, user, tag string, amount int64) error
	Unreserve(ctx context.Context, user, tag string) error
	ClearReservations(ctx context.Context, tag string) error
	Transactions(ctx context.Context, batch []Transaction) error
}

// Payout é o resultado de um palpite vencedor após o rateio do pool.
type Payout struct {
	Entry  repo.Entry
	Option string
	Amount int64
}

// Manager é a fachada sem estado sobre store + ledger, amarrada a um betID.
// Não há lock interno: o front-end serializa um comando de aposta por vez.
type Manager struct {
	log    *zap.Logger
	store  Store
	ledger Ledger
	betID  string
}

// Create insere a aposta OPEN com suas opções e devolve o manager amarrado a ela.
func Create(ctx context.Context, log *zap.Logger, store Store, ledger Ledger, options map[string]string) (*Manager, error) {
	if ledger == nil {
		return nil, ErrConfig
	}

	norm := make(map[string]string, len(options))
	for k, v := range options {
		k = normalize(k)
		if k == "" {
			continue
		}
		norm[k] = v
	}
	if len(norm) == 0 {
		return nil, ErrConfig
	}

	betID, err := store.CreateBetWithOptions(ctx, norm)
	if err != nil {
		return nil, depErr("store: create bet", err)
	}

	log.Info("bet created", zap.String("betId", betID), zap.Int("options", len(norm)))
	return &Manager{log: log, store: store, ledger: ledger, betID: betID}, nil
}

// Resume retoma a aposta não encerrada mais recente após um restart.
// Retorna (nil, nil) quando não há nada para retomar; nada de create de novo.
func Resume(ctx context.Context, log *zap.Logger, store Store, ledger Ledger) (*Manager, error) {
	b, err := store.FindActiveBet(ctx)
	if errors.Is(err, repo.ErrNoActiveBet) {
		return nil, nil
	}
	if err != nil {
		return nil, depErr("store: find active bet", err)
	}

	log.Info("bet resumed", zap.String("betId", b.ID), zap.String("status", b.Status))
	return &Manager{log: log, store: store, ledger: ledger, betID: b.ID}, nil
}

// ID retorna o identificador da aposta gerenciada.
func (m *Manager) ID() string { return m.betID }

// Enter registra (ou substitui) o palpite do usuário enquanto a aposta está OPEN.
// Sequência confirmada: libera a reserva anterior, reserva o novo valor,
// apaga o palpite antigo e insere o novo — no máximo um palpite por usuário.
func (m *Manager) Enter(ctx context.Context, user, optionKey string, amount int64) (*repo.Entry, error) {
	status, err := m.store.GetStatus(ctx, m.betID)
	if err != nil {
		return nil, depErr("store: get status", err)
	}
	if status != repo.StatusOpen {
		return nil, ErrInvalidState
	}

	opt, err := m.store.OptionByName(ctx, m.betID, normalize(optionKey))
	if err != nil {
		return nil, depErr("store: option lookup", err)
	}
	if opt == nil {
		return nil, ErrUnknownOption
	}

	if amount < 0 {
		return nil, ErrInvalidAmount
	}

	u := normalize(user)
	if err := m.ledger.Unreserve(ctx, u, ReservationTag); err != nil {
		return nil, depErr("ledger: unreserve", err)
	}
	if err := m.ledger.Reserve(ctx, u, ReservationTag, amount); err != nil {
		return nil, depErr("ledger: reserve", err)
	}

	if err := m.store.DeleteEntry(ctx, m.betID, u); err != nil {
		return nil, depErr("store: delete entry", err)
	}
	e := &repo.Entry{BetID: m.betID, UserID: u, OptionID: opt.ID, Amount: amount}
	id, err := m.store.InsertEntry(ctx, e)
	if err != nil {
		return nil, depErr("store: insert entry", err)
	}
	e.ID = id

	return e, nil
}

// Clear remove o palpite do usuário e libera a reserva correspondente.
func (m *Manager) Clear(ctx context.Context, user string) error {
	status, err := m.store.GetStatus(ctx, m.betID)
	if err != nil {
		return depErr("store: get status", err)
	}
	if status != repo.StatusOpen {
		return ErrInvalidState
	}

	u := normalize(user)
	if err := m.ledger.Unreserve(ctx, u, ReservationTag); err != nil {
		return depErr("ledger: unreserve", err)
	}
	if err := m.store.DeleteEntry(ctx, m.betID, u); err != nil {
		return depErr("store: delete entry", err)
	}
	return nil
}

// Close congela os palpites: OPEN -> CLOSED. Um close redundante é tolerado;
// quem chama deve conferir Closed() antes.
func (m *Manager) Close(ctx context.Context) error {
	status, err := m.store.GetStatus(ctx, m.betID)
	if err != nil {
		return depErr("store: get status", err)
	}
	if status == repo.StatusEnded {
		return ErrInvalidState
	}

	if err := m.store.SetStatus(ctx, m.betID, repo.StatusClosed); err != nil {
		return depErr("store: set status", err)
	}
	return nil
}

// End declara a opção vencedora e liquida a aposta. Pode ser chamado com a
// aposta OPEN ou CLOSED. O status vira ENDED antes do cálculo dos pagamentos:
// um crash no meio deixa a aposta corretamente terminal, mas os lotes de
// débito/crédito não são idempotentes na recuperação.
func (m *Manager) End(ctx context.Context, winningOption string) ([]Payout, error) {
	status, err := m.store.GetStatus(ctx, m.betID)
	if err != nil {
		return nil, depErr("store: get status", err)
	}
	if status == repo.StatusEnded {
		return nil, ErrInvalidState
	}

	win, err := m.store.OptionByName(ctx, m.betID, normalize(winningOption))
	if err != nil {
		return nil, depErr("store: option lookup", err)
	}
	if win == nil {
		return nil, ErrInvalidState
	}

	if err := m.store.SetStatus(ctx, m.betID, repo.StatusEnded); err != nil {
		return nil, depErr("store: set status", err)
	}

	opts, err := m.store.Options(ctx, m.betID)
	if err != nil {
		return nil, depErr("store: list options", err)
	}
	names := make(map[string]string, len(opts))
	for _, o := range opts {
		names[o.ID] = o.Name
	}

	entries, err := m.store.Entries(ctx, m.betID)
	if err != nil {
		return nil, depErr("store: list entries", err)
	}

	var pool, winningTotal int64
	for _, e := range entries {
		pool += e.Amount
		if e.OptionID == win.ID {
			winningTotal += e.Amount
		}
	}

	// Débito de todas as apostas, vencedoras ou não.
	debits := make([]Transaction, 0, len(entries))
	for _, e := range entries {
		debits = append(debits, Transaction{
			User:        e.UserID,
			Amount:      -e.Amount,
			Description: "bet on option " + names[e.OptionID],
		})
	}
	if len(debits) > 0 {
		if err := m.ledger.Transactions(ctx, debits); err != nil {
			return nil, depErr("ledger: debit batch", err)
		}
	}

	// Crédito rateado entre os vencedores. winningTotal == 0 significa que
	// ninguém apostou na opção vencedora: o pool é perdido, sem créditos.
	var winners []Payout
	if winningTotal > 0 {
		credits := make([]Transaction, 0, len(entries))
		for _, e := range entries {
			if e.OptionID != win.ID {
				continue
			}
			pay := proRataPayout(e.Amount, winningTotal, pool)
			winners = append(winners, Payout{Entry: e, Option: win.Name, Amount: pay})
			credits = append(credits, Transaction{
				User:        e.UserID,
				Amount:      pay,
				Description: "bet payout from option " + win.Name,
			})
		}
		if err := m.ledger.Transactions(ctx, credits); err != nil {
			return winners, depErr("ledger: credit batch", err)
		}
	}

	// Limpeza global por tag: parte da premissa de uma única aposta ativa.
	if err := m.ledger.ClearReservations(ctx, ReservationTag); err != nil {
		return winners, depErr("ledger: clear reservations", err)
	}

	m.log.Info("bet settled",
		zap.String("betId", m.betID),
		zap.String("option", win.Name),
		zap.Int64("pool", pool),
		zap.Int("winners", len(winners)),
	)
	return winners, nil
}

// Pool retorna a soma de todos os palpites.
func (m *Manager) Pool(ctx context.Context) (int64, error) {
	total, err := m.store.SumEntries(ctx, m.betID)
	if err != nil {
		return 0, depErr("store: sum entries", err)
	}
	return total, nil
}

// OptionValue retorna o total apostado na opção; 0 para opção sem palpites
// ou inexistente, nunca erro.
func (m *Manager) OptionValue(ctx context.Context, optionKey string) (int64, error) {
	opt, err := m.store.OptionByName(ctx, m.betID, normalize(optionKey))
	if err != nil {
		return 0, depErr("store: option lookup", err)
	}
	if opt == nil {
		return 0, nil
	}
	total, err := m.store.SumEntriesByOption(ctx, m.betID, opt.ID)
	if err != nil {
		return 0, depErr("store: sum option entries", err)
	}
	return total, nil
}

// EntryValue retorna o valor apostado pelo usuário; 0 quando não há palpite.
func (m *Manager) EntryValue(ctx context.Context, user string) (int64, error) {
	total, err := m.store.SumEntriesByUser(ctx, m.betID, normalize(user))
	if err != nil {
		return 0, depErr("store: sum user entries", err)
	}
	return total, nil
}

// Valid informa se a chave corresponde a alguma opção da aposta.
func (m *Manager) Valid(ctx context.Context, optionKey string) (bool, error) {
	opt, err := m.store.OptionByName(ctx, m.betID, normalize(optionKey))
	if err != nil {
		return false, depErr("store: option lookup", err)
	}
	return opt != nil, nil
}

// Closed informa se a aposta já não aceita palpites.
func (m *Manager) Closed(ctx context.Context) (bool, error) {
	status, err := m.store.GetStatus(ctx, m.betID)
	if err != nil {
		return false, depErr("store: get status", err)
	}
	return status != repo.StatusOpen, nil
}

// Options lista as opções da aposta.
func (m *Manager) Options(ctx context.Context) ([]repo.Option, error) {
	opts, err := m.store.Options(ctx, m.betID)
	if err != nil {
		return nil, depErr("store: list options", err)
	}
	return opts, nil
}

// proRataPayout calcula ceil(stake*pool/winningTotal) em aritmética inteira.
// Arredonda pra cima: a soma dos pagamentos pode exceder o pool em até uma
// unidade por vencedor, em vez de perder frações.
func proRataPayout(stake, winningTotal, pool int64) int64 {
	return (stake*pool + winningTotal - 1) / winningTotal
}

// normalize aplica a normalização de fronteira para usuários e chaves de opção.
func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
