package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	bcache "github.com/apostabot/apostabot/internal/bet-service/cache"
	bhttp "github.com/apostabot/apostabot/internal/bet-service/http"
	"github.com/apostabot/apostabot/internal/bet-service/ledger"
	kpub "github.com/apostabot/apostabot/internal/bet-service/producer"
	"github.com/apostabot/apostabot/internal/bet-service/repo"
	"github.com/apostabot/apostabot/internal/bet-service/worker"
	"github.com/apostabot/apostabot/internal/shared/cache"
	"github.com/apostabot/apostabot/internal/shared/config"
	"github.com/apostabot/apostabot/internal/shared/db"
	"github.com/apostabot/apostabot/internal/shared/kafka"
	"github.com/apostabot/apostabot/internal/shared/logger"
	"github.com/apostabot/apostabot/internal/shared/metrics"
	ev "github.com/apostabot/apostabot/pkg/contracts/events"
)

func main() {
	cfg := config.Load()

	log, err := logger.New("bet-service", cfg.Env)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	// Postgres: apostas, opções e palpites
	pg, err := db.ConnectPostgres(cfg.PostgresDSN)
	if err != nil {
		log.Fatal("pg connect", zap.Error(err))
	}
	defer pg.Close()

	// Redis: snapshot da aposta corrente
	rdb, err := cache.ConnectRedis(cfg.RedisAddr)
	if err != nil {
		log.Fatal("redis connect", zap.Error(err))
	}

	// Kafka: consumidor de comandos + produtores de liquidação e DLQ
	reader := kafka.NewReader(cfg.KafkaBrokers, cfg.TopicBetCommands, "bet-service")
	defer reader.Close()

	settledWriter := kafka.NewWriter(cfg.KafkaBrokers, cfg.TopicBetSettled)
	defer settledWriter.Close()

	var dlqWriter *kafka.Writer
	if cfg.TopicBetCommandsDLQ != "" {
		dlqWriter = kafka.NewWriter(cfg.KafkaBrokers, cfg.TopicBetCommandsDLQ)
		defer dlqWriter.Close()
	}

	// deps
	repository := repo.NewPostgres(pg)
	lcli := ledger.New(cfg.LedgerURL)
	snaps := bcache.New(rdb)
	publ := kpub.NewKafkaPublisher(settledWriter, cfg.TopicBetSettled)

	w := worker.New(log, repository, lcli, snaps, cfg.RedisSnapshotKey, publ)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Recupera a aposta ativa (se houver) antes de aceitar comandos
	w.Resume(ctx)

	// API de leitura da aposta corrente
	api := bhttp.NewServer(log, repository, snaps, cfg.RedisSnapshotKey)
	apiSrv := &http.Server{Addr: ":" + cfg.HTTPPort, Handler: api.Router()}
	go func() {
		log.Info("read api", zap.String("addr", apiSrv.Addr))
		if err := apiSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("read api", zap.Error(err))
		}
	}()

	// Métricas e probes
	mon := metrics.New(cfg.MetricsPort, func(ctx context.Context) error {
		if err := pg.PingContext(ctx); err != nil {
			return err
		}
		if err := rdb.Ping(ctx).Err(); err != nil {
			return err
		}
		return lcli.Ping(ctx)
	})
	mon.Start()
	log.Info("metrics/health", zap.String("addr", ":"+cfg.MetricsPort))

	log.Info("bet-service started", zap.String("consume", cfg.TopicBetCommands))

	// Loop principal: um comando por vez, na ordem do tópico. É essa
	// serialização que dispensa lock dentro do manager.
	for {
		key, value, err := kafka.ReadNext(ctx, reader)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			log.Warn("kafka read", zap.Error(err))
			time.Sleep(time.Second)
			continue
		}

		var cmd ev.BetCommand
		if jerr := json.Unmarshal(value, &cmd); jerr != nil {
			log.Error("unmarshal bet_command", zap.Error(jerr))
			if dlqWriter != nil {
				_ = kafka.WriteJSON(ctx, dlqWriter, string(key), value)
			}
			continue
		}

		if err := w.Handle(ctx, cmd); err != nil {
			log.Error("handle command",
				zap.String("action", cmd.Action),
				zap.String("user", cmd.User),
				zap.Error(err),
			)
			if dlqWriter != nil {
				_ = kafka.WriteJSON(ctx, dlqWriter, cmd.Action, value)
			}
		}
	}

	log.Info("shutting down")
	shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = apiSrv.Shutdown(shCtx)
	_ = mon.Shutdown(shCtx)
}
