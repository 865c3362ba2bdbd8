package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HealthFunc verifica as dependências do serviço (banco, cache, vizinhos).
type HealthFunc func(ctx context.Context) error

// Server agrupa /metrics, /healthz e /readyz numa porta separada da API
// pública, pra scrape e probes não concorrerem com tráfego de negócio.
type Server struct {
	srv      *http.Server
	healthFn HealthFunc
}

// New monta o servidor de observabilidade do serviço.
// /healthz responde 200 enquanto o processo estiver de pé (liveness);
// /readyz roda o HealthFunc com timeout curto (readiness).
func New(port string, healthFn HealthFunc) *Server {
	s := &Server{healthFn: healthFn}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", s.healthz)
	mux.HandleFunc("/readyz", s.readyz)

	s.srv = &http.Server{Addr: ":" + port, Handler: mux}
	return s
}

// Handler expõe o mux; usado nos testes.
func (s *Server) Handler() http.Handler { return s.srv.Handler }

// Start sobe o servidor em goroutine própria. Erros de Serve são engolidos:
// a porta de métricas nunca derruba o serviço.
func (s *Server) Start() {
	go func() { _ = s.srv.ListenAndServe() }()
}

// Shutdown encerra o servidor respeitando o prazo do contexto.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 500*time.Millisecond)
	defer cancel()

	if err := s.healthFn(ctx); err != nil {
		http.Error(w, "not ready: "+err.Error(), http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
