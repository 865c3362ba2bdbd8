package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/apostabot/apostabot/internal/ledger-service/dto"
	"github.com/apostabot/apostabot/internal/ledger-service/repo"
)

// Repo define a interface de operações de ledger usadas pelo handler HTTP
type Repo interface {
	Balance(ctx context.Context, userID string) (balance, reserved int64, err error)
	Deposit(ctx context.Context, userID string, amount int64) (newBalance int64, err error)
	Reserve(ctx context.Context, userID, tag string, amount int64) error
	Unreserve(ctx context.Context, userID, tag string) error
	ClearReservations(ctx context.Context, tag string) error
	ApplyTransactions(ctx context.Context, batch []repo.Transaction) error
}

// Server expõe endpoints HTTP para operações de saldo e escrow
type Server struct {
	log  *zap.Logger
	repo Repo
}

// NewServer instancia o servidor HTTP do ledger
func NewServer(log *zap.Logger, r Repo) *Server { return &Server{log: log, repo: r} }

// Router retorna o mux HTTP com as rotas da API do ledger
func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ledger/health", s.health)             // GET
	mux.HandleFunc("/ledger/balance", s.balance)           // GET ?userId=...
	mux.HandleFunc("/ledger/deposit", s.deposit)           // POST
	mux.HandleFunc("/ledger/reserve", s.reserve)           // POST
	mux.HandleFunc("/ledger/unreserve", s.unreserve)       // POST
	mux.HandleFunc("/ledger/reservations/clear", s.clear)  // POST
	mux.HandleFunc("/ledger/transactions", s.transactions) // POST
	return mux
}

// health responde sem tocar no banco; usado pelo probe do bet-service
func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// balance retorna saldo e total reservado do usuário, criando a conta se preciso
func (s *Server) balance(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		http.Error(w, "userId required", http.StatusBadRequest)
		return
	}
	bal, res, err := s.repo.Balance(r.Context(), userID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, dto.BalanceResponse{UserID: userID, Balance: bal, Reserved: res})
}

// deposit adiciona saldo à conta do usuário
func (s *Server) deposit(w http.ResponseWriter, r *http.Request) {
	var req dto.DepositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	if req.UserID == "" || req.Amount <= 0 {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}
	bal, err := s.repo.Deposit(r.Context(), req.UserID, req.Amount)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, dto.BalanceResponse{UserID: req.UserID, Balance: bal})
}

// reserve cria ou substitui a retenção (user, tag)
func (s *Server) reserve(w http.ResponseWriter, r *http.Request) {
	var req dto.ReserveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	if req.UserID == "" || req.Tag == "" || req.Amount < 0 {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}
	if err := s.repo.Reserve(r.Context(), req.UserID, req.Tag, req.Amount); err != nil {
		if errors.Is(err, repo.ErrInsufficientFunds) {
			http.Error(w, err.Error(), http.StatusConflict)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, dto.StatusResponse{Status: "RESERVED"})
}

// unreserve remove a retenção (user, tag); no-op quando não existe
func (s *Server) unreserve(w http.ResponseWriter, r *http.Request) {
	var req dto.UnreserveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	if req.UserID == "" || req.Tag == "" {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}
	if err := s.repo.Unreserve(r.Context(), req.UserID, req.Tag); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, dto.StatusResponse{Status: "RELEASED"})
}

// clear remove todas as retenções de uma tag
func (s *Server) clear(w http.ResponseWriter, r *http.Request) {
	var req dto.ClearReservationsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	if req.Tag == "" {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}
	if err := s.repo.ClearReservations(r.Context(), req.Tag); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, dto.StatusResponse{Status: "CLEARED"})
}

// transactions aplica um lote de deltas de forma atômica
func (s *Server) transactions(w http.ResponseWriter, r *http.Request) {
	var req dto.TransactionsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	if len(req.Transactions) == 0 {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}

	batch := make([]repo.Transaction, 0, len(req.Transactions))
	for _, t := range req.Transactions {
		if t.UserID == "" {
			http.Error(w, "invalid payload", http.StatusBadRequest)
			return
		}
		batch = append(batch, repo.Transaction{
			UserID:      t.UserID,
			Amount:      t.Amount,
			Description: t.Description,
		})
	}

	if err := s.repo.ApplyTransactions(r.Context(), batch); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, dto.StatusResponse{Status: "APPLIED"})
}

// writeJSON serializa e envia resposta JSON
func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
