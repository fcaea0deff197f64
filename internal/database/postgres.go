package database

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"
)

// ConnectPostgres opens the pool backing the membership event log and creates its tables.
func ConnectPostgres(ctx context.Context, log *logrus.Logger, postgresURI string) (*sql.DB, error) {
	db, err := sql.Open("postgres", postgresURI)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	log.Info("Connected to PostgreSQL")

	if err := InitPostgresTables(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	log.Info("PostgreSQL tables initialized")
	return db, nil
}

// InitPostgresTables creates the tables if they don't exist.
func InitPostgresTables(ctx context.Context, db *sql.DB) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS membership_events (
			id UUID PRIMARY KEY,
			chat_id VARCHAR(24) NOT NULL,
			user_id VARCHAR(255) NOT NULL,
			kind VARCHAR(32) NOT NULL,
			occurred_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			applied_at TIMESTAMPTZ
		)`,
		`CREATE INDEX IF NOT EXISTS idx_membership_events_pending ON membership_events(occurred_at) WHERE applied_at IS NULL`,
		`CREATE INDEX IF NOT EXISTS idx_membership_events_chat_id ON membership_events(chat_id)`,
	}

	for _, query := range queries {
		if _, err := db.ExecContext(ctx, query); err != nil {
			return err
		}
	}
	return nil
}
