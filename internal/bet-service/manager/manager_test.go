package manager

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/apostabot/apostabot/internal/bet-service/repo"
)

// fakeStore guarda tudo em memória, na mesma semântica do repo Postgres.
type fakeStore struct {
	seq     int
	bets    map[string]*repo.Bet
	options []repo.Option
	entries []repo.Entry
}

func newFakeStore() *fakeStore {
	return &fakeStore{bets: make(map[string]*repo.Bet)}
}

func (s *fakeStore) nextID(prefix string) string {
	s.seq++
	return fmt.Sprintf("%s-%d", prefix, s.seq)
}

func (s *fakeStore) CreateBetWithOptions(_ context.Context, options map[string]string) (string, error) {
	id := s.nextID("bet")
	s.bets[id] = &repo.Bet{ID: id, Status: repo.StatusOpen}
	for name, desc := range options {
		s.options = append(s.options, repo.Option{
			ID: s.nextID("opt"), BetID: id, Name: name, Description: desc,
		})
	}
	return id, nil
}

func (s *fakeStore) GetStatus(_ context.Context, betID string) (string, error) {
	b, ok := s.bets[betID]
	if !ok {
		return "", errors.New("bet not found")
	}
	return b.Status, nil
}

func (s *fakeStore) SetStatus(_ context.Context, betID, status string) error {
	b, ok := s.bets[betID]
	if !ok {
		return errors.New("bet not found")
	}
	b.Status = status
	return nil
}

func (s *fakeStore) FindActiveBet(_ context.Context) (*repo.Bet, error) {
	for _, b := range s.bets {
		if b.Status != repo.StatusEnded {
			return b, nil
		}
	}
	return nil, repo.ErrNoActiveBet
}

func (s *fakeStore) Options(_ context.Context, betID string) ([]repo.Option, error) {
	var out []repo.Option
	for _, o := range s.options {
		if o.BetID == betID {
			out = append(out, o)
		}
	}
	return out, nil
}

func (s *fakeStore) OptionByName(_ context.Context, betID, name string) (*repo.Option, error) {
	for _, o := range s.options {
		if o.BetID == betID && o.Name == name {
			opt := o
			return &opt, nil
		}
	}
	return nil, nil
}

func (s *fakeStore) Entries(_ context.Context, betID string) ([]repo.Entry, error) {
	var out []repo.Entry
	for _, e := range s.entries {
		if e.BetID == betID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *fakeStore) InsertEntry(_ context.Context, e *repo.Entry) (string, error) {
	cp := *e
	cp.ID = s.nextID("entry")
	s.entries = append(s.entries, cp)
	return cp.ID, nil
}

func (s *fakeStore) DeleteEntry(_ context.Context, betID, userID string) error {
	kept := s.entries[:0]
	for _, e := range s.entries {
		if !(e.BetID == betID && e.UserID == userID) {
			kept = append(kept, e)
		}
	}
	s.entries = kept
	return nil
}

func (s *fakeStore) SumEntries(_ context.Context, betID string) (int64, error) {
	var total int64
	for _, e := range s.entries {
		if e.BetID == betID {
			total += e.Amount
		}
	}
	return total, nil
}

func (s *fakeStore) SumEntriesByOption(_ context.Context, betID, optionID string) (int64, error) {
	var total int64
	for _, e := range s.entries {
		if e.BetID == betID && e.OptionID == optionID {
			total += e.Amount
		}
	}
	return total, nil
}

func (s *fakeStore) SumEntriesByUser(_ context.Context, betID, userID string) (int64, error) {
	var total int64
	for _, e := range s.entries {
		if e.BetID == betID && e.UserID == userID {
			total += e.Amount
		}
	}
	return total, nil
}

// fakeLedger registra as chamadas para inspeção nos testes.
type fakeLedger struct {
	reserved   map[string]int64 // "user/tag" -> valor retido
	unreserves int
	cleared    []string
	batches    [][]Transaction
	failOp     string
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{reserved: make(map[string]int64)}
}

func (l *fakeLedger) fail(op string) error {
	if l.failOp == op {
		return errors.New("ledger down")
	}
	return nil
}

func (l *fakeLedger) Reserve(_ context.Context, user, tag string, amount int64) error {
	if err := l.fail("reserve"); err != nil {
		return err
	}
	l.reserved[user+"/"+tag] = amount
	return nil
}

func (l *fakeLedger) Unreserve(_ context.Context, user, tag string) error {
	if err := l.fail("unreserve"); err != nil {
		return err
	}
	l.unreserves++
	delete(l.reserved, user+"/"+tag)
	return nil
}

func (l *fakeLedger) ClearReservations(_ context.Context, tag string) error {
	if err := l.fail("clear"); err != nil {
		return err
	}
	l.cleared = append(l.cleared, tag)
	l.reserved = make(map[string]int64)
	return nil
}

func (l *fakeLedger) Transactions(_ context.Context, batch []Transaction) error {
	if err := l.fail("transactions"); err != nil {
		return err
	}
	cp := make([]Transaction, len(batch))
	copy(cp, batch)
	l.batches = append(l.batches, cp)
	return nil
}

func newTestBet(t *testing.T) (*Manager, *fakeStore, *fakeLedger) {
	t.Helper()
	store := newFakeStore()
	ledger := newFakeLedger()
	m, err := Create(context.Background(), zap.NewNop(), store, ledger,
		map[string]string{"a": "Cats", "b": "Dogs"})
	require.NoError(t, err)
	return m, store, ledger
}

func TestCreate_Misconfigured(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()

	_, err := Create(ctx, zap.NewNop(), store, newFakeLedger(), nil)
	assert.ErrorIs(t, err, ErrConfig)

	_, err = Create(ctx, zap.NewNop(), store, newFakeLedger(), map[string]string{})
	assert.ErrorIs(t, err, ErrConfig)

	_, err = Create(ctx, zap.NewNop(), store, nil, map[string]string{"a": "Cats"})
	assert.ErrorIs(t, err, ErrConfig)
}

func TestCreate_OptionsPreserved(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	m, err := Create(ctx, zap.NewNop(), store, newFakeLedger(),
		map[string]string{"A": "Cats", "b": "Dogs & friends"})
	require.NoError(t, err)

	opts, err := m.Options(ctx)
	require.NoError(t, err)
	require.Len(t, opts, 2)

	byName := make(map[string]string)
	for _, o := range opts {
		byName[o.Name] = o.Description
	}
	// chave maiúscula normalizada, descrição intacta
	assert.Equal(t, "Cats", byName["a"])
	assert.Equal(t, "Dogs & friends", byName["b"])
}

func TestEnter_ReplacesPreviousEntry(t *testing.T) {
	ctx := context.Background()
	m, store, ledger := newTestBet(t)

	_, err := m.Enter(ctx, "Alice", "a", 100)
	require.NoError(t, err)

	// a segunda entrada do mesmo usuário substitui a primeira
	e, err := m.Enter(ctx, "ALICE", "b", 50)
	require.NoError(t, err)
	assert.Equal(t, int64(50), e.Amount)

	entries, err := store.Entries(ctx, m.ID())
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "alice", entries[0].UserID)
	assert.Equal(t, int64(50), entries[0].Amount)

	assert.Equal(t, int64(50), ledger.reserved["alice/bet"])
	assert.Equal(t, 2, ledger.unreserves)
}

func TestEnter_ZeroStakeAllowed(t *testing.T) {
	ctx := context.Background()
	m, _, _ := newTestBet(t)

	_, err := m.Enter(ctx, "alice", "a", 0)
	assert.NoError(t, err)
}

func TestEnter_Errors(t *testing.T) {
	ctx := context.Background()

	t.Run("opção desconhecida", func(t *testing.T) {
		m, _, _ := newTestBet(t)
		_, err := m.Enter(ctx, "alice", "z", 10)
		assert.ErrorIs(t, err, ErrUnknownOption)
	})

	t.Run("valor negativo", func(t *testing.T) {
		m, _, _ := newTestBet(t)
		_, err := m.Enter(ctx, "alice", "a", -5)
		assert.ErrorIs(t, err, ErrInvalidAmount)
	})

	t.Run("aposta fechada", func(t *testing.T) {
		m, _, _ := newTestBet(t)
		require.NoError(t, m.Close(ctx))
		_, err := m.Enter(ctx, "alice", "a", 10)
		assert.ErrorIs(t, err, ErrInvalidState)
	})

	t.Run("ledger fora do ar vira DependencyError", func(t *testing.T) {
		m, _, ledger := newTestBet(t)
		ledger.failOp = "reserve"
		_, err := m.Enter(ctx, "alice", "a", 10)
		var dep *DependencyError
		require.ErrorAs(t, err, &dep)
		assert.Equal(t, "ledger: reserve", dep.Op)
	})
}

func TestClear(t *testing.T) {
	ctx := context.Background()
	m, store, ledger := newTestBet(t)

	_, err := m.Enter(ctx, "alice", "a", 100)
	require.NoError(t, err)

	require.NoError(t, m.Clear(ctx, "Alice"))

	entries, err := store.Entries(ctx, m.ID())
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.NotContains(t, ledger.reserved, "alice/bet")

	require.NoError(t, m.Close(ctx))
	assert.ErrorIs(t, m.Clear(ctx, "alice"), ErrInvalidState)
}

func TestClose(t *testing.T) {
	ctx := context.Background()
	m, _, _ := newTestBet(t)

	closed, err := m.Closed(ctx)
	require.NoError(t, err)
	assert.False(t, closed)

	require.NoError(t, m.Close(ctx))

	closed, err = m.Closed(ctx)
	require.NoError(t, err)
	assert.True(t, closed)

	// close redundante é tolerado
	assert.NoError(t, m.Close(ctx))

	_, err = m.End(ctx, "a")
	require.NoError(t, err)
	assert.ErrorIs(t, m.Close(ctx), ErrInvalidState)
}

func TestEnd_ProRataPayout(t *testing.T) {
	ctx := context.Background()
	m, store, ledger := newTestBet(t)

	_, err := m.Enter(ctx, "alice", "a", 100)
	require.NoError(t, err)
	_, err = m.Enter(ctx, "bob", "b", 200)
	require.NoError(t, err)
	_, err = m.Enter(ctx, "carol", "a", 50)
	require.NoError(t, err)

	pool, err := m.Pool(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(350), pool)

	winners, err := m.End(ctx, "a")
	require.NoError(t, err)
	require.Len(t, winners, 2)

	payouts := make(map[string]int64)
	for _, p := range winners {
		assert.Equal(t, "a", p.Option)
		payouts[p.Entry.UserID] = p.Amount
	}
	// ceil(100/150*350)=234, ceil(50/150*350)=117
	assert.Equal(t, int64(234), payouts["alice"])
	assert.Equal(t, int64(117), payouts["carol"])

	require.Len(t, ledger.batches, 2)

	// débito de todo mundo soma exatamente o pool
	var debited int64
	debitDesc := make(map[string]string)
	for _, tx := range ledger.batches[0] {
		require.Negative(t, tx.Amount)
		debited += -tx.Amount
		debitDesc[tx.User] = tx.Description
	}
	assert.Equal(t, int64(350), debited)
	assert.Equal(t, "bet on option a", debitDesc["alice"])
	assert.Equal(t, "bet on option b", debitDesc["bob"])

	// crédito excede o pool em até uma unidade por vencedor (aqui: 351)
	var credited int64
	for _, tx := range ledger.batches[1] {
		require.Positive(t, tx.Amount)
		assert.Equal(t, "bet payout from option a", tx.Description)
		credited += tx.Amount
	}
	assert.Equal(t, int64(351), credited)
	assert.GreaterOrEqual(t, credited, pool)
	assert.Less(t, credited, pool+int64(len(winners)+1))

	// reservas liberadas globalmente pela tag
	assert.Equal(t, []string{ReservationTag}, ledger.cleared)
	assert.Empty(t, ledger.reserved)

	status, err := store.GetStatus(ctx, m.ID())
	require.NoError(t, err)
	assert.Equal(t, repo.StatusEnded, status)

	// terminal: não encerra duas vezes
	_, err = m.End(ctx, "a")
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestEnd_NoWinners(t *testing.T) {
	ctx := context.Background()
	m, _, ledger := newTestBet(t)

	_, err := m.Enter(ctx, "alice", "a", 100)
	require.NoError(t, err)
	_, err = m.Enter(ctx, "carol", "a", 50)
	require.NoError(t, err)

	// ninguém apostou em "b": pool perdido, só o passo de débito acontece
	winners, err := m.End(ctx, "b")
	require.NoError(t, err)
	assert.Empty(t, winners)

	require.Len(t, ledger.batches, 1)
	var debited int64
	for _, tx := range ledger.batches[0] {
		debited += -tx.Amount
	}
	assert.Equal(t, int64(150), debited)
	assert.Equal(t, []string{ReservationTag}, ledger.cleared)
}

func TestEnd_UnknownOptionIsInvalidState(t *testing.T) {
	ctx := context.Background()
	m, store, _ := newTestBet(t)

	_, err := m.End(ctx, "z")
	assert.ErrorIs(t, err, ErrInvalidState)

	// status não muda quando a chave vencedora não existe
	status, err := store.GetStatus(ctx, m.ID())
	require.NoError(t, err)
	assert.Equal(t, repo.StatusOpen, status)
}

func TestEnd_FromOpenSkippingClosed(t *testing.T) {
	ctx := context.Background()
	m, _, _ := newTestBet(t)

	_, err := m.Enter(ctx, "alice", "a", 10)
	require.NoError(t, err)

	// end direto do estado OPEN, sem close antes
	winners, err := m.End(ctx, "a")
	require.NoError(t, err)
	assert.Len(t, winners, 1)
}

func TestAggregates_ZeroWhenEmpty(t *testing.T) {
	ctx := context.Background()
	m, _, _ := newTestBet(t)

	pool, err := m.Pool(ctx)
	require.NoError(t, err)
	assert.Zero(t, pool)

	v, err := m.OptionValue(ctx, "a")
	require.NoError(t, err)
	assert.Zero(t, v)

	// opção inexistente também devolve 0, nunca erro
	v, err = m.OptionValue(ctx, "zzz")
	require.NoError(t, err)
	assert.Zero(t, v)

	v, err = m.EntryValue(ctx, "ninguem")
	require.NoError(t, err)
	assert.Zero(t, v)
}

func TestAggregates(t *testing.T) {
	ctx := context.Background()
	m, _, _ := newTestBet(t)

	_, err := m.Enter(ctx, "alice", "a", 100)
	require.NoError(t, err)
	_, err = m.Enter(ctx, "bob", "b", 200)
	require.NoError(t, err)
	_, err = m.Enter(ctx, "carol", "a", 50)
	require.NoError(t, err)

	v, err := m.OptionValue(ctx, "A")
	require.NoError(t, err)
	assert.Equal(t, int64(150), v)

	v, err = m.EntryValue(ctx, "BOB")
	require.NoError(t, err)
	assert.Equal(t, int64(200), v)

	ok, err := m.Valid(ctx, "b")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = m.Valid(ctx, "z")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestResume(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	ledger := newFakeLedger()

	// nada pra retomar
	m, err := Resume(ctx, zap.NewNop(), store, ledger)
	require.NoError(t, err)
	assert.Nil(t, m)

	created, err := Create(ctx, zap.NewNop(), store, ledger, map[string]string{"a": "Cats"})
	require.NoError(t, err)

	// reanexa sem recriar
	resumed, err := Resume(ctx, zap.NewNop(), store, ledger)
	require.NoError(t, err)
	require.NotNil(t, resumed)
	assert.Equal(t, created.ID(), resumed.ID())

	_, err = resumed.End(ctx, "a")
	require.NoError(t, err)

	// aposta encerrada não é retomada
	m, err = Resume(ctx, zap.NewNop(), store, ledger)
	require.NoError(t, err)
	assert.Nil(t, m)
}
