package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

const schemaLockID int64 = 2026030101

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

const schemaDDL = `
CREATE TABLE IF NOT EXISTS working_documents (
	id TEXT PRIMARY KEY,
	owner_id TEXT NOT NULL,
	template_id TEXT NOT NULL,
	name TEXT NOT NULL,
	storage_key TEXT NOT NULL,
	url TEXT NOT NULL,
	doc_type TEXT NOT NULL DEFAULT '',
	state_tag TEXT NOT NULL DEFAULT '',
	recipient TEXT NOT NULL DEFAULT '',
	is_signed BOOLEAN NOT NULL DEFAULT FALSE,
	delivered BOOLEAN NOT NULL DEFAULT FALSE,
	delivery_error TEXT NOT NULL DEFAULT '',
	signed_at TIMESTAMPTZ,
	created_at TIMESTAMPTZ NOT NULL,
	last_modified TIMESTAMPTZ NOT NULL,
	UNIQUE (owner_id, template_id)
);

CREATE INDEX IF NOT EXISTS idx_working_documents_owner ON working_documents(owner_id, last_modified DESC);
CREATE INDEX IF NOT EXISTS idx_working_documents_undelivered ON working_documents(signed_at) WHERE is_signed AND NOT delivered;

CREATE TABLE IF NOT EXISTS document_answers (
	document_id TEXT NOT NULL REFERENCES working_documents(id) ON DELETE CASCADE,
	question_id TEXT NOT NULL,
	question_text TEXT NOT NULL DEFAULT '',
	value TEXT NOT NULL,
	option_value TEXT NOT NULL DEFAULT '',
	answered_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (document_id, question_id)
);

CREATE TABLE IF NOT EXISTS conversations (
	id TEXT PRIMARY KEY,
	channel TEXT NOT NULL,
	participant_a TEXT NOT NULL,
	participant_b TEXT NOT NULL,
	property_id TEXT NOT NULL DEFAULT '',
	last_sequence INTEGER NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_conversations_participant_a ON conversations(participant_a, updated_at DESC);
CREATE INDEX IF NOT EXISTS idx_conversations_participant_b ON conversations(participant_b, updated_at DESC);

CREATE TABLE IF NOT EXISTS chat_messages (
	id TEXT PRIMARY KEY,
	conversation_id TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
	sequence INTEGER NOT NULL,
	sender_id TEXT NOT NULL,
	recipient_id TEXT NOT NULL,
	body TEXT NOT NULL DEFAULT '',
	attachment_key TEXT,
	attachment_name TEXT,
	attachment_url TEXT,
	created_at TIMESTAMPTZ NOT NULL,
	UNIQUE (conversation_id, sequence)
);
`

// EnsureSchema creates the tables used by the document and chat stores.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across api/worker startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, schemaLockID); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}
	if _, err := tx.ExecContext(ctx, schemaDDL); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func nullableString(v string) interface{} {
	if v == "" {
		return nil
	}
	return v
}
