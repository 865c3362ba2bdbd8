package main

import (
	"embed"
	"errors"

	"go.uber.org/zap"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/apostabot/apostabot/internal/shared/config"
	"github.com/apostabot/apostabot/internal/shared/db"
	"github.com/apostabot/apostabot/internal/shared/logger"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

func main() {
	cfg := config.Load()

	log, err := logger.New("migrator", cfg.Env)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	if err := run(cfg.PostgresDSN); err != nil {
		log.Fatal("migrations", zap.Error(err))
	}
	log.Info("migrations applied")
}

func run(dsn string) error {
	pg, err := db.ConnectPostgres(dsn)
	if err != nil {
		return err
	}
	defer pg.Close()

	driver, err := postgres.WithInstance(pg, &postgres.Config{})
	if err != nil {
		return err
	}

	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return err
	}

	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		return err
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}
