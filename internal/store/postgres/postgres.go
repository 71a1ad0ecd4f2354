package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"inventorypro/backend/internal/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS documents (
	collection TEXT PRIMARY KEY,
	body       JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// Store keeps one row per collection with the collection value as jsonb.
type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(4)
	db.SetMaxOpenConns(16)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Read(ctx context.Context, c store.Collection) ([]byte, error) {
	var body []byte
	err := s.db.QueryRowContext(ctx, `SELECT body FROM documents WHERE collection = $1`, string(c)).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return body, nil
}

func (s *Store) Write(ctx context.Context, c store.Collection, payload []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO documents (collection, body, updated_at)
		VALUES ($1, $2::jsonb, now())
		ON CONFLICT (collection)
		DO UPDATE SET body = EXCLUDED.body, updated_at = EXCLUDED.updated_at
	`, string(c), string(payload))
	return err
}
