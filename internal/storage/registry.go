// Package storage provides the SQLite registry that tracks ingested sources
// and which chunk ids each one produced. The vector and keyword indexes hold
// the chunks themselves; the registry is what lets a whole source be listed or
// deleted as a unit.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Source describes one ingested document source (a file or a raw text submission).
type Source struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	FileType   string    `json:"file_type,omitempty"`
	SizeBytes  int64     `json:"size_bytes"`
	ChunkCount int       `json:"chunk_count"`
	IngestedAt time.Time `json:"ingested_at"`
}

// Registry records sources and their chunk ids in SQLite.
type Registry struct {
	db *sql.DB
}

// NewRegistry opens or creates the registry database at dbPath and initializes
// the schema. Parent directories are created if they do not exist.
func NewRegistry(dbPath string) (*Registry, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return &Registry{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS sources (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		file_type TEXT,
		size_bytes INTEGER NOT NULL DEFAULT 0,
		chunk_count INTEGER NOT NULL DEFAULT 0,
		ingested_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_sources_ingested_at ON sources(ingested_at);

	CREATE TABLE IF NOT EXISTS source_chunks (
		chunk_id TEXT PRIMARY KEY,
		source_id TEXT NOT NULL,
		chunk_index INTEGER NOT NULL,
		FOREIGN KEY (source_id) REFERENCES sources(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_source_chunks_source ON source_chunks(source_id, chunk_index);
	`
	_, err := db.Exec(schema)
	return err
}

// RecordSource inserts a source and its chunk ids in one transaction. A source
// with the same id replaces the previous record and its chunk rows.
func (r *Registry) RecordSource(ctx context.Context, src *Source, chunkIDs []string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if src.IngestedAt.IsZero() {
		src.IngestedAt = time.Now()
	}
	src.ChunkCount = len(chunkIDs)

	if _, err := tx.ExecContext(ctx, `DELETE FROM source_chunks WHERE source_id = ?`, src.ID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO sources (id, name, file_type, size_bytes, chunk_count, ingested_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		src.ID, src.Name, src.FileType, src.SizeBytes, src.ChunkCount, src.IngestedAt,
	); err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO source_chunks (chunk_id, source_id, chunk_index) VALUES (?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for i, chunkID := range chunkIDs {
		if _, err := stmt.ExecContext(ctx, chunkID, src.ID, i); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// GetSource returns a source by id, or nil when absent.
func (r *Registry) GetSource(ctx context.Context, id string) (*Source, error) {
	var src Source
	err := r.db.QueryRowContext(ctx,
		`SELECT id, name, file_type, size_bytes, chunk_count, ingested_at
		 FROM sources WHERE id = ?`, id,
	).Scan(&src.ID, &src.Name, &src.FileType, &src.SizeBytes, &src.ChunkCount, &src.IngestedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &src, nil
}

// ListSources returns sources ordered newest first.
func (r *Registry) ListSources(ctx context.Context, offset, limit int) ([]*Source, error) {
	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, name, file_type, size_bytes, chunk_count, ingested_at
		 FROM sources ORDER BY ingested_at DESC, id LIMIT ? OFFSET ?`,
		limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sources []*Source
	for rows.Next() {
		var src Source
		if err := rows.Scan(&src.ID, &src.Name, &src.FileType, &src.SizeBytes, &src.ChunkCount, &src.IngestedAt); err != nil {
			return nil, err
		}
		sources = append(sources, &src)
	}
	return sources, rows.Err()
}

// ChunkIDs returns the chunk ids of a source in chunk order.
func (r *Registry) ChunkIDs(ctx context.Context, sourceID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT chunk_id FROM source_chunks WHERE source_id = ? ORDER BY chunk_index`, sourceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// SourceOfChunk returns the source id owning a chunk, or "" when untracked.
func (r *Registry) SourceOfChunk(ctx context.Context, chunkID string) (string, error) {
	var sourceID string
	err := r.db.QueryRowContext(ctx,
		`SELECT source_id FROM source_chunks WHERE chunk_id = ?`, chunkID).Scan(&sourceID)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return sourceID, nil
}

// DeleteSource removes a source and returns the chunk ids it owned so the
// caller can evict them from the indexes. Deleting an unknown source returns
// an empty list.
func (r *Registry) DeleteSource(ctx context.Context, id string) ([]string, error) {
	chunkIDs, err := r.ChunkIDs(ctx, id)
	if err != nil {
		return nil, err
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, `DELETE FROM source_chunks WHERE source_id = ?`, id); err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM sources WHERE id = ?`, id); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return chunkIDs, nil
}

// CountSources returns the number of registered sources.
func (r *Registry) CountSources(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sources`).Scan(&count)
	return count, err
}

// CountChunks returns the number of tracked chunk ids.
func (r *Registry) CountChunks(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM source_chunks`).Scan(&count)
	return count, err
}

// Clear removes every source and chunk record.
func (r *Registry) Clear(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, `DELETE FROM source_chunks`); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM sources`); err != nil {
		return err
	}
	return tx.Commit()
}

// Close closes the database connection.
func (r *Registry) Close() error {
	return r.db.Close()
}
