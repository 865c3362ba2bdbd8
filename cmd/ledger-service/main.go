package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	lhttp "github.com/apostabot/apostabot/internal/ledger-service/http"
	lrepo "github.com/apostabot/apostabot/internal/ledger-service/repo"
	"github.com/apostabot/apostabot/internal/shared/config"
	"github.com/apostabot/apostabot/internal/shared/db"
	"github.com/apostabot/apostabot/internal/shared/logger"
	"github.com/apostabot/apostabot/internal/shared/metrics"
)

func main() {
	cfg := config.Load()

	// Inicializa logger estruturado
	log, err := logger.New("ledger-service", cfg.Env)
	if err != nil {
		panic(err)
	}
	defer log.Sync()
	log.Info("starting service", zap.String("env", cfg.Env))

	// Conexão com Postgres para contas, retenções e journal
	pg, err := db.ConnectPostgres(cfg.PostgresDSN)
	if err != nil {
		log.Fatal("postgres connect", zap.Error(err))
	}
	defer pg.Close()

	// Instancia repositório e servidor HTTP do ledger
	repo := lrepo.NewPostgres(pg)
	api := lhttp.NewServer(log, repo)

	// Servidor de métricas e probes
	mon := metrics.New(cfg.MetricsPort, func(ctx context.Context) error {
		return pg.PingContext(ctx)
	})
	mon.Start()
	log.Info("metrics/health", zap.String("addr", ":"+cfg.MetricsPort))

	// Servidor HTTP público (API do ledger)
	apiSrv := &http.Server{
		Addr:    ":" + cfg.HTTPPort,
		Handler: api.Router(),
	}

	go func() {
		log.Info("ledger-service listening", zap.String("addr", ":"+cfg.HTTPPort))
		if err := apiSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("api", zap.Error(err))
		}
	}()

	// Espera SIGINT/SIGTERM e encerra drenando as conexões em andamento
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	log.Info("shutting down")
	shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = apiSrv.Shutdown(shCtx)
	_ = mon.Shutdown(shCtx)
}
