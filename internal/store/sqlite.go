package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/dgallion1/docrecon/internal/chunkset"
)

// SQLite persists chunk sets in a local database file. One row per
// document; the chunk sequence is stored as JSON, which keeps the
// commit atomic (a single UPSERT) for the diff engine's
// copy-on-success contract.
type SQLite struct {
	db   *sql.DB
	path string
}

// NewSQLite opens (or creates) the database at dataDir/chunks.db.
func NewSQLite(dataDir string) (*SQLite, error) {
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	dbPath := filepath.Join(dataDir, "chunks.db")

	// WAL mode for better concurrency across documents.
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &SQLite{db: db, path: dbPath}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

func (s *SQLite) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS chunk_sets (
			doc_id       TEXT PRIMARY KEY,
			content_hash TEXT NOT NULL,
			revision     INTEGER NOT NULL,
			chunks       TEXT NOT NULL,
			updated_at   TEXT NOT NULL DEFAULT (datetime('now'))
		)`)
	return err
}

// Close closes the database connection.
func (s *SQLite) Close() error { return s.db.Close() }

// Path returns the database file path.
func (s *SQLite) Path() string { return s.path }

func (s *SQLite) Load(ctx context.Context, docID string) (*chunkset.ChunkSet, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT content_hash, revision, chunks FROM chunk_sets WHERE doc_id = ?`, docID)

	set := &chunkset.ChunkSet{DocID: docID}
	var chunksJSON string
	err := row.Scan(&set.ContentHash, &set.Revision, &chunksJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading chunk set: %w", err)
	}
	if err := json.Unmarshal([]byte(chunksJSON), &set.Chunks); err != nil {
		return nil, fmt.Errorf("decoding chunks: %w", err)
	}
	return set, nil
}

func (s *SQLite) Save(ctx context.Context, set *chunkset.ChunkSet) error {
	chunksJSON, err := json.Marshal(set.Chunks)
	if err != nil {
		return fmt.Errorf("encoding chunks: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO chunk_sets (doc_id, content_hash, revision, chunks, updated_at)
		VALUES (?, ?, ?, ?, datetime('now'))
		ON CONFLICT(doc_id) DO UPDATE SET
			content_hash = excluded.content_hash,
			revision     = excluded.revision,
			chunks       = excluded.chunks,
			updated_at   = excluded.updated_at`,
		set.DocID, set.ContentHash, set.Revision, string(chunksJSON))
	if err != nil {
		return fmt.Errorf("saving chunk set: %w", err)
	}
	return nil
}

// Docs lists the ids of committed documents.
func (s *SQLite) Docs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT doc_id FROM chunk_sets ORDER BY doc_id`)
	if err != nil {
		return nil, fmt.Errorf("listing documents: %w", err)
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
