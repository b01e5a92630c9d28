package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"

	_ "github.com/mattn/go-sqlite3"
)

// InitDB opens the SQLite file at path and creates the schema.
func InitDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// One JSON document per top-level root of the record tree
	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS documents (
		root TEXT PRIMARY KEY,
		data TEXT NOT NULL,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create documents table: %w", err)
	}

	log.Printf("Database initialized at %s", path)
	return db, nil
}

// SQLiteBackend persists record tree roots in SQLite.
type SQLiteBackend struct {
	db *sql.DB
}

func NewSQLiteBackend(db *sql.DB) *SQLiteBackend {
	return &SQLiteBackend{db: db}
}

// Load reads every stored root.
func (b *SQLiteBackend) Load(ctx context.Context) (map[string]any, error) {
	rows, err := b.db.QueryContext(ctx, "SELECT root, data FROM documents")
	if err != nil {
		return nil, fmt.Errorf("failed to query documents: %w", err)
	}
	defer rows.Close()

	out := map[string]any{}
	for rows.Next() {
		var root, dataStr string
		if err := rows.Scan(&root, &dataStr); err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		var value any
		if err := json.Unmarshal([]byte(dataStr), &value); err != nil {
			return nil, fmt.Errorf("failed to unmarshal document %s: %w", root, err)
		}
		out[root] = value
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read documents: %w", err)
	}
	return out, nil
}

// Save upserts a root document, or removes it when value is nil.
func (b *SQLiteBackend) Save(ctx context.Context, root string, value any) error {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if value == nil {
		if _, err := tx.ExecContext(ctx, "DELETE FROM documents WHERE root = ?", root); err != nil {
			return fmt.Errorf("failed to delete document: %w", err)
		}
	} else {
		dataJSON, err := json.Marshal(value)
		if err != nil {
			return fmt.Errorf("failed to marshal document: %w", err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO documents (root, data, updated_at)
			VALUES (?, ?, CURRENT_TIMESTAMP)
			ON CONFLICT(root) DO UPDATE SET
				data = excluded.data,
				updated_at = CURRENT_TIMESTAMP
		`, root, string(dataJSON))
		if err != nil {
			return fmt.Errorf("failed to upsert document: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (b *SQLiteBackend) Close() error {
	return b.db.Close()
}
