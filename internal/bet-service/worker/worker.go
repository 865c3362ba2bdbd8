package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/apostabot/apostabot/internal/bet-service/cache"
	"github.com/apostabot/apostabot/internal/bet-service/manager"
	"github.com/apostabot/apostabot/internal/bet-service/repo"
	"github.com/apostabot/apostabot/pkg/contracts/events"
)

// Publisher publica o resultado da liquidação para quem quiser reagir (chat, stats).
type Publisher interface {
	PublishBetSettled(ctx context.Context, e events.BetSettled) error
}

// Snapshots abstrai o cache de snapshot da aposta corrente.
type Snapshots interface {
	Set(ctx context.Context, key string, s cache.Snapshot, ttl time.Duration) error
}

// ErrNoBet indica comando recebido sem aposta ativa.
var ErrNoBet = errors.New("no active bet")

// ErrBetActive indica tentativa de abrir uma aposta com outra ainda ativa.
// Só uma aposta não encerrada pode existir no sistema.
var ErrBetActive = errors.New("bet already active")

// Worker despacha comandos de aposta para o manager, um por vez.
// A serialização é dada pelo loop único de consumo; não há lock aqui.
type Worker struct {
	log     *zap.Logger
	store   manager.Store
	ledger  manager.Ledger
	snaps   Snapshots
	snapKey string
	publ    Publisher

	cur *manager.Manager
}

func New(log *zap.Logger, store manager.Store, ledger manager.Ledger, snaps Snapshots, snapKey string, publ Publisher) *Worker {
	return &Worker{log: log, store: store, ledger: ledger, snaps: snaps, snapKey: snapKey, publ: publ}
}

// Resume tenta reatar a aposta ativa depois de um restart. Melhor esforço:
// falha vira log, não derruba o serviço.
func (w *Worker) Resume(ctx context.Context) {
	m, err := manager.Resume(ctx, w.log, w.store, w.ledger)
	if err != nil {
		w.log.Warn("bet resume failed", zap.Error(err))
		return
	}
	if m == nil {
		w.log.Info("no bet to resume")
		return
	}
	w.cur = m
	w.refreshSnapshot(ctx, m.ID())
}

// Active informa se há aposta sendo gerenciada no momento.
func (w *Worker) Active() bool { return w.cur != nil }

// Handle executa um comando estruturado vindo do front-end de chat.
func (w *Worker) Handle(ctx context.Context, cmd events.BetCommand) error {
	err := w.dispatch(ctx, cmd)
	result := "ok"
	if err != nil {
		result = "error"
	}
	commandsTotal.WithLabelValues(cmd.Action, result).Inc()
	return err
}

func (w *Worker) dispatch(ctx context.Context, cmd events.BetCommand) error {
	switch cmd.Action {
	case events.ActionOpen:
		return w.open(ctx, cmd.Options)

	case events.ActionEnter:
		if w.cur == nil {
			return ErrNoBet
		}
		if _, err := w.cur.Enter(ctx, cmd.User, cmd.Option, cmd.Amount); err != nil {
			return err
		}
		w.refreshSnapshot(ctx, w.cur.ID())
		return nil

	case events.ActionClear:
		if w.cur == nil {
			return ErrNoBet
		}
		if err := w.cur.Clear(ctx, cmd.User); err != nil {
			return err
		}
		w.refreshSnapshot(ctx, w.cur.ID())
		return nil

	case events.ActionClose:
		if w.cur == nil {
			return ErrNoBet
		}
		if err := w.cur.Close(ctx); err != nil {
			return err
		}
		w.refreshSnapshot(ctx, w.cur.ID())
		return nil

	case events.ActionEnd:
		return w.end(ctx, cmd.Option)

	default:
		return fmt.Errorf("unknown action %q", cmd.Action)
	}
}

func (w *Worker) open(ctx context.Context, rawOptions string) error {
	if w.cur != nil {
		return ErrBetActive
	}

	opts := manager.ParseOptions(rawOptions)
	m, err := manager.Create(ctx, w.log, w.store, w.ledger, opts)
	if err != nil {
		return err
	}
	w.cur = m
	w.refreshSnapshot(ctx, m.ID())
	return nil
}

func (w *Worker) end(ctx context.Context, option string) error {
	if w.cur == nil {
		return ErrNoBet
	}

	betID := w.cur.ID()
	pool, err := w.cur.Pool(ctx)
	if err != nil {
		return err
	}

	winners, err := w.cur.End(ctx, option)
	if err != nil {
		// O status pode ter virado ENDED antes da falha (lote de débito,
		// crédito ou limpeza de reservas). Aposta terminal não volta atrás:
		// solta o manager pra próxima aposta poder abrir.
		if status, serr := w.store.GetStatus(ctx, betID); serr == nil && status == repo.StatusEnded {
			w.log.Warn("bet ended with incomplete settlement",
				zap.String("betId", betID), zap.Error(err))
			w.cur = nil
			w.refreshSnapshot(ctx, betID)
		}
		return err
	}
	// Aposta terminou mesmo que publicação/snapshot falhem adiante.
	w.cur = nil

	settled := events.BetSettled{
		BetID:   betID,
		Option:  option,
		Pool:    pool,
		Winners: make([]events.WinnerPayout, 0, len(winners)),
	}
	for _, p := range winners {
		settled.WinningTotal += p.Entry.Amount
		settled.Winners = append(settled.Winners, events.WinnerPayout{
			User:   p.Entry.UserID,
			Stake:  p.Entry.Amount,
			Payout: p.Amount,
		})
	}
	settledPool.Add(float64(pool))

	if err := w.publ.PublishBetSettled(ctx, settled); err != nil {
		w.log.Error("publish bet_settled", zap.String("betId", betID), zap.Error(err))
	}

	w.refreshSnapshot(ctx, betID)
	return nil
}

// refreshSnapshot recalcula e publica a visão da aposta no Redis.
// Falha aqui não interrompe o comando: o snapshot é só conveniência de leitura.
func (w *Worker) refreshSnapshot(ctx context.Context, betID string) {
	status, err := w.store.GetStatus(ctx, betID)
	if err != nil {
		w.log.Warn("snapshot: get status", zap.Error(err))
		return
	}

	opts, err := w.store.Options(ctx, betID)
	if err != nil {
		w.log.Warn("snapshot: list options", zap.Error(err))
		return
	}

	snap := cache.Snapshot{BetID: betID, Status: status}
	for _, o := range opts {
		total, err := w.store.SumEntriesByOption(ctx, betID, o.ID)
		if err != nil {
			w.log.Warn("snapshot: sum option", zap.Error(err))
			return
		}
		snap.Pool += total
		snap.Options = append(snap.Options, cache.OptionTotal{
			Name:        o.Name,
			Description: o.Description,
			Total:       total,
		})
	}

	var ttl time.Duration
	if status == repo.StatusEnded {
		ttl = time.Hour
	}
	if err := w.snaps.Set(ctx, w.snapKey, snap, ttl); err != nil {
		w.log.Warn("snapshot: set", zap.Error(err))
	}
}
