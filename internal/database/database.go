package database

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
	_ "github.com/go-sql-driver/mysql"

	"github.com/digkill/TGContentBot/internal/config"
)

// Connect opens the MySQL connection with sensible pooling defaults and waits
// for the server to answer, retrying with exponential backoff.
func Connect(ctx context.Context, cfg config.Config, log *slog.Logger) (*sql.DB, error) {
	db, err := sql.Open("mysql", withParseTime(cfg.MySQLDSN))
	if err != nil {
		return nil, fmt.Errorf("open mysql: %w", err)
	}

	db.SetConnMaxLifetime(time.Minute * 5)
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)

	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = 500 * time.Millisecond
	expo.MaxInterval = 5 * time.Second
	expo.MaxElapsedTime = 30 * time.Second

	ping := func() error {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := db.PingContext(pingCtx); err != nil {
			log.Warn("mysql not ready", "err", err)
			return err
		}
		return nil
	}
	if err := backoff.Retry(ping, backoff.WithContext(expo, ctx)); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping mysql: %w", err)
	}

	return db, nil
}

// Migrate runs the bootstrap schema to ensure required tables exist.
func Migrate(ctx context.Context, db *sql.DB) error {
	for _, stmt := range statements() {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}

// statements splits the schema because the driver rejects multi-statement
// exec unless multiStatements is enabled in the DSN.
func statements() []string {
	var out []string
	for _, part := range strings.Split(schema, ";") {
		if stmt := strings.TrimSpace(part); stmt != "" {
			out = append(out, stmt)
		}
	}
	return out
}

// withParseTime makes DATETIME columns scan into time.Time.
func withParseTime(dsn string) string {
	if strings.Contains(dsn, "parseTime=") {
		return dsn
	}
	if strings.Contains(dsn, "?") {
		return dsn + "&parseTime=true"
	}
	return dsn + "?parseTime=true"
}
