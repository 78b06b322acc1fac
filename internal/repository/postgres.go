package repository

import (
	"context"
	"errors"
	"fmt"

	"meetmap-backend/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const documentKey = "main"

// PostgresStore keeps the document as one JSONB row.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore connects, pings and creates the documents table.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	db, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := db.Ping(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	query := `
		CREATE TABLE IF NOT EXISTS documents (
			id         TEXT PRIMARY KEY,
			body       JSONB NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`
	if _, err := db.Exec(ctx, query); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create documents table: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) Load(ctx context.Context) (*models.Document, error) {
	query := `SELECT body FROM documents WHERE id = $1`
	var body []byte
	err := s.db.QueryRow(ctx, query, documentKey).Scan(&body)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.NewDocument(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document: %w", err)
	}
	return decodeDocument(body)
}

func (s *PostgresStore) Save(ctx context.Context, doc *models.Document) error {
	body, err := encodeDocument(doc, false)
	if err != nil {
		return err
	}
	query := `
		INSERT INTO documents (id, body, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (id) DO UPDATE SET body = EXCLUDED.body, updated_at = EXCLUDED.updated_at
	`
	if _, err := s.db.Exec(ctx, query, documentKey, body); err != nil {
		return fmt.Errorf("failed to save document: %w", err)
	}
	return nil
}

func (s *PostgresStore) Close() error {
	s.db.Close()
	return nil
}
