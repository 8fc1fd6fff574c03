package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"
)

const createDocumentsTable = `
CREATE TABLE IF NOT EXISTS bot_documents (
	key        TEXT PRIMARY KEY,
	body       JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);`

const selectDocument = `SELECT key, body FROM bot_documents WHERE key = $1;`

const upsertDocument = `
INSERT INTO bot_documents (key, body, updated_at)
VALUES ($1, $2, now())
ON CONFLICT (key) DO UPDATE SET
	body = EXCLUDED.body,
	updated_at = EXCLUDED.updated_at;`

type documentRow struct {
	Key  string `db:"key"`
	Body []byte `db:"body"`
}

// PostgresBackend stores the document in a single jsonb row.
type PostgresBackend struct {
	mu   sync.Mutex
	conn *pgx.Conn
}

// NewPostgresBackend connects to dsn and ensures the table exists.
func NewPostgresBackend(ctx context.Context, dsn string) (*PostgresBackend, error) {
	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	if _, err := conn.Exec(ctx, createDocumentsTable); err != nil {
		conn.Close(ctx)
		return nil, fmt.Errorf("create bot_documents table: %w", err)
	}

	return &PostgresBackend{conn: conn}, nil
}

func (b *PostgresBackend) Read(ctx context.Context) (*Document, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var row documentRow
	err := pgxscan.Get(ctx, b.conn, &row, selectDocument, documentKey)
	if pgxscan.NotFound(err) || errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read document: %w", err)
	}

	var doc Document
	if err := json.Unmarshal(row.Body, &doc); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	return &doc, nil
}

func (b *PostgresBackend) Write(ctx context.Context, doc *Document) error {
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, err := b.conn.Exec(ctx, upsertDocument, documentKey, body); err != nil {
		return fmt.Errorf("write document: %w", err)
	}
	return nil
}

func (b *PostgresBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.conn.Close(context.Background())
}
