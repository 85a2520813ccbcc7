package main

import (
	"context"
	"database/sql"
	"flag"

	_ "github.com/go-sql-driver/mysql"
	"github.com/rs/zerolog/log"

	"rental_api/internal/adapters/observability"
	"rental_api/internal/shared"
	mysqlrepo "rental_api/internal/storage/mysql"
)

func main() {
	cfg := shared.Load()
	dir := flag.String("dir", cfg.MigrationsDir, "directory holding the *.sql migrations")
	flag.Parse()

	log.Logger = observability.NewLogger(cfg.AppEnv, cfg.LogLevel)

	db, err := sql.Open("mysql", cfg.MySQLDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("sql.Open failed")
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		log.Fatal().Err(err).Msg("db.Ping failed")
	}

	applied, err := mysqlrepo.Migrate(context.Background(), db, *dir)
	if err != nil {
		log.Fatal().Err(err).Strs("applied", applied).Msg("migration failed")
	}
	log.Info().Str("dir", *dir).Int("applied", len(applied)).Msg("migrations complete")
}
