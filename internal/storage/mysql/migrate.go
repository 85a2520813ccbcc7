package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	createMigrationsTableSQL = `CREATE TABLE IF NOT EXISTS schema_migrations (
  name       VARCHAR(255) NOT NULL,
  applied_at DATETIME(6)  NOT NULL,
  PRIMARY KEY (name)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`
	migrationAppliedSQL = `SELECT COUNT(*) FROM schema_migrations WHERE name = ?`
	recordMigrationSQL  = `INSERT INTO schema_migrations (name, applied_at) VALUES (?, ?)`
)

// Migrate executes every *.sql file of dir in lexical order, skipping files
// already recorded in schema_migrations. Files may hold several statements,
// so the DSN needs multiStatements=true. It returns the files it applied.
func Migrate(ctx context.Context, db *sql.DB, dir string) ([]string, error) {
	ents, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read migrations dir: %w", err)
	}
	var files []string
	for _, e := range ents {
		if !e.IsDir() && filepath.Ext(e.Name()) == ".sql" {
			files = append(files, e.Name())
		}
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no .sql files in %s", dir)
	}
	sort.Strings(files)

	if _, err := db.ExecContext(ctx, createMigrationsTableSQL); err != nil {
		return nil, fmt.Errorf("create schema_migrations: %w", err)
	}

	var applied []string
	for _, name := range files {
		var n int
		if err := db.QueryRowContext(ctx, migrationAppliedSQL, name).Scan(&n); err != nil {
			return applied, fmt.Errorf("check %s: %w", name, err)
		}
		if n > 0 {
			log.Debug().Str("file", name).Msg("migration already applied")
			continue
		}
		body, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return applied, fmt.Errorf("read %s: %w", name, err)
		}
		if _, err := db.ExecContext(ctx, string(body)); err != nil {
			return applied, fmt.Errorf("exec %s: %w", name, err)
		}
		if _, err := db.ExecContext(ctx, recordMigrationSQL, name, time.Now().UTC()); err != nil {
			return applied, fmt.Errorf("record %s: %w", name, err)
		}
		log.Info().Str("file", name).Msg("migration applied")
		applied = append(applied, name)
	}
	return applied, nil
}
