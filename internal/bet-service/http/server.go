package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/apostabot/apostabot/internal/bet-service/cache"
	"github.com/apostabot/apostabot/internal/bet-service/dto"
	"github.com/apostabot/apostabot/internal/bet-service/repo"
)

// Repo define as consultas de leitura usadas pela API; o estado mutável
// fica todo com o worker de comandos.
type Repo interface {
	FindActiveBet(ctx context.Context) (*repo.Bet, error)
	Options(ctx context.Context, betID string) ([]repo.Option, error)
	SumEntries(ctx context.Context, betID string) (int64, error)
	SumEntriesByOption(ctx context.Context, betID, optionID string) (int64, error)
	SumEntriesByUser(ctx context.Context, betID, userID string) (int64, error)
}

// Snapshots lê o snapshot da aposta corrente mantido pelo worker.
type Snapshots interface {
	Get(ctx context.Context, key string) (cache.Snapshot, bool, error)
}

// Server expõe a API de leitura da aposta corrente.
type Server struct {
	log     *zap.Logger
	repo    Repo
	snaps   Snapshots
	snapKey string
}

// NewServer instancia o servidor HTTP de leitura do bet-service.
// snaps é opcional: sem ele toda leitura vai direto ao repositório.
func NewServer(log *zap.Logger, r Repo, snaps Snapshots, snapKey string) *Server {
	return &Server{log: log, repo: r, snaps: snaps, snapKey: snapKey}
}

// Router retorna o mux HTTP com as rotas de leitura
func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/bet", s.getBet)         // GET
	mux.HandleFunc("/bet/entry", s.getEntry) // GET ?user=...
	return mux
}

// getBet retorna a aposta corrente com pool e totais por opção.
// Prefere o snapshot do Redis; cache frio ou indisponível cai no repositório.
func (s *Server) getBet(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if s.snaps != nil {
		snap, ok, err := s.snaps.Get(r.Context(), s.snapKey)
		if err != nil {
			s.log.Warn("snapshot read", zap.Error(err))
		} else if ok && snap.Status != repo.StatusEnded {
			resp := dto.BetResponse{BetID: snap.BetID, Status: snap.Status, Pool: snap.Pool}
			for _, o := range snap.Options {
				resp.Options = append(resp.Options, dto.OptionResponse{
					Name:        o.Name,
					Description: o.Description,
					Total:       o.Total,
				})
			}
			writeJSON(w, resp)
			return
		}
	}

	b, err := s.repo.FindActiveBet(r.Context())
	if errors.Is(err, repo.ErrNoActiveBet) {
		http.Error(w, "no active bet", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	opts, err := s.repo.Options(r.Context(), b.ID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	pool, err := s.repo.SumEntries(r.Context(), b.ID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	resp := dto.BetResponse{BetID: b.ID, Status: b.Status, Pool: pool}
	for _, o := range opts {
		total, err := s.repo.SumEntriesByOption(r.Context(), b.ID, o.ID)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		resp.Options = append(resp.Options, dto.OptionResponse{
			Name:        o.Name,
			Description: o.Description,
			Total:       total,
		})
	}

	writeJSON(w, resp)
}

// getEntry retorna o valor apostado por um usuário; 0 quando não há palpite
func (s *Server) getEntry(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	user := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("user")))
	if user == "" {
		http.Error(w, "user required", http.StatusBadRequest)
		return
	}

	b, err := s.repo.FindActiveBet(r.Context())
	if errors.Is(err, repo.ErrNoActiveBet) {
		http.Error(w, "no active bet", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	amount, err := s.repo.SumEntriesByUser(r.Context(), b.ID, user)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, dto.EntryResponse{User: user, Amount: amount})
}

// writeJSON serializa e envia resposta JSON
func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
