package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hyperjump/vincentbot/internal/models"
)

// SQLiteCatalog implements Catalog using SQLite.
type SQLiteCatalog struct {
	db *sql.DB
}

var _ Catalog = (*SQLiteCatalog)(nil)

// NewSQLiteCatalog opens or creates a SQLite database at dbPath and initializes the schema.
// Parent directories are created if they do not exist.
func NewSQLiteCatalog(dbPath string) (*SQLiteCatalog, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteCatalog{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS documents (
		id TEXT PRIMARY KEY,
		source TEXT NOT NULL,
		title TEXT,
		chars INTEGER NOT NULL,
		loaded_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS chunks (
		id TEXT PRIMARY KEY,
		document_id TEXT NOT NULL,
		source TEXT NOT NULL,
		chunk_index INTEGER NOT NULL,
		start_offset INTEGER NOT NULL,
		length INTEGER NOT NULL,
		content TEXT NOT NULL,
		FOREIGN KEY (document_id) REFERENCES documents(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_chunks_document_chunk ON chunks(document_id, chunk_index);

	CREATE TABLE IF NOT EXISTS builds (
		id TEXT PRIMARY KEY,
		status TEXT NOT NULL,
		model_id TEXT,
		documents INTEGER NOT NULL DEFAULT 0,
		chunks INTEGER NOT NULL DEFAULT 0,
		error TEXT,
		started_at TIMESTAMP NOT NULL,
		finished_at TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_builds_started_at ON builds(started_at);
	`
	_, err := db.Exec(schema)
	return err
}

// ReplaceCorpus deletes every document and chunk and inserts docs and chunks in one
// transaction. Readers see either the old corpus or the new one.
func (s *SQLiteCatalog) ReplaceCorpus(ctx context.Context, docs []models.Document, chunks []models.Chunk) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks`); err != nil {
		return fmt.Errorf("failed to clear chunks: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM documents`); err != nil {
		return fmt.Errorf("failed to clear documents: %w", err)
	}

	docStmt, err := tx.PrepareContext(ctx,
		`INSERT INTO documents (id, source, title, chars, loaded_at) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer docStmt.Close()
	for _, d := range docs {
		loadedAt := d.LoadedAt
		if loadedAt.IsZero() {
			loadedAt = time.Now()
		}
		if _, err := docStmt.ExecContext(ctx, d.ID, d.Source, d.Title, len([]rune(d.Text)), loadedAt.UTC()); err != nil {
			return fmt.Errorf("failed to insert document %s: %w", d.ID, err)
		}
	}

	chunkStmt, err := tx.PrepareContext(ctx,
		`INSERT INTO chunks (id, document_id, source, chunk_index, start_offset, length, content)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer chunkStmt.Close()
	for _, c := range chunks {
		if _, err := chunkStmt.ExecContext(ctx, c.ID, c.DocumentID, c.Source, c.Index, c.Start, c.Length, c.Text); err != nil {
			return fmt.Errorf("failed to insert chunk %s: %w", c.ID, err)
		}
	}
	return tx.Commit()
}

// ListDocuments returns documents ordered by source with offset and limit.
func (s *SQLiteCatalog) ListDocuments(ctx context.Context, offset, limit int) ([]DocumentInfo, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT d.id, d.source, d.title, d.chars, d.loaded_at,
		        (SELECT COUNT(*) FROM chunks c WHERE c.document_id = d.id)
		 FROM documents d ORDER BY d.source LIMIT ? OFFSET ?`,
		limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []DocumentInfo
	for rows.Next() {
		var d DocumentInfo
		var title sql.NullString
		if err := rows.Scan(&d.ID, &d.Source, &title, &d.Chars, &d.LoadedAt, &d.Chunks); err != nil {
			return nil, err
		}
		d.Title = title.String
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

// GetChunks returns all chunks of a document ordered by index.
func (s *SQLiteCatalog) GetChunks(ctx context.Context, docID string) ([]models.Chunk, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, document_id, source, chunk_index, start_offset, length, content
		 FROM chunks WHERE document_id = ? ORDER BY chunk_index`,
		docID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chunks []models.Chunk
	for rows.Next() {
		var c models.Chunk
		if err := rows.Scan(&c.ID, &c.DocumentID, &c.Source, &c.Index, &c.Start, &c.Length, &c.Text); err != nil {
			return nil, err
		}
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

// CountDocuments returns the total number of documents.
func (s *SQLiteCatalog) CountDocuments(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents`).Scan(&n)
	return n, err
}

// CountChunks returns the total number of chunks.
func (s *SQLiteCatalog) CountChunks(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks`).Scan(&n)
	return n, err
}

// StartBuild records a running build with the given ID.
func (s *SQLiteCatalog) StartBuild(ctx context.Context, id string) (*Build, error) {
	b := &Build{ID: id, Status: BuildRunning, StartedAt: time.Now().UTC()}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO builds (id, status, started_at) VALUES (?, ?, ?)`,
		b.ID, b.Status, b.StartedAt,
	)
	if err != nil {
		return nil, err
	}
	return b, nil
}

// FinishBuild stores the final status and counts of b.
func (s *SQLiteCatalog) FinishBuild(ctx context.Context, b *Build) error {
	if b.FinishedAt.IsZero() {
		b.FinishedAt = time.Now().UTC()
	}
	result, err := s.db.ExecContext(ctx,
		`UPDATE builds SET status = ?, model_id = ?, documents = ?, chunks = ?, error = ?, finished_at = ?
		 WHERE id = ?`,
		b.Status, b.ModelID, b.Documents, b.Chunks, b.Error, b.FinishedAt, b.ID,
	)
	if err != nil {
		return err
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("build not found: %s", b.ID)
	}
	return nil
}

// LatestBuild returns the most recently started build, or nil when there is none.
func (s *SQLiteCatalog) LatestBuild(ctx context.Context) (*Build, error) {
	var b Build
	var modelID, errText sql.NullString
	var finished sql.NullTime
	err := s.db.QueryRowContext(ctx,
		`SELECT id, status, model_id, documents, chunks, error, started_at, finished_at
		 FROM builds ORDER BY started_at DESC LIMIT 1`,
	).Scan(&b.ID, &b.Status, &modelID, &b.Documents, &b.Chunks, &errText, &b.StartedAt, &finished)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	b.ModelID = modelID.String
	b.Error = errText.String
	if finished.Valid {
		b.FinishedAt = finished.Time
	}
	return &b, nil
}

// Close closes the database.
func (s *SQLiteCatalog) Close() error {
	return s.db.Close()
}
