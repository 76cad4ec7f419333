// Package storage keeps the catalog of ingested documents, their chunks and the
// history of index builds.
package storage

import (
	"context"
	"time"

	"github.com/hyperjump/vincentbot/internal/models"
)

// Build statuses.
const (
	BuildRunning   = "running"
	BuildSucceeded = "succeeded"
	BuildFailed    = "failed"
)

// Build records one ingestion run.
type Build struct {
	ID         string    `json:"id"`
	Status     string    `json:"status"`
	ModelID    string    `json:"model_id,omitempty"`
	Documents  int       `json:"documents"`
	Chunks     int       `json:"chunks"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at,omitempty"`
}

// DocumentInfo summarises a cataloged document without its text.
type DocumentInfo struct {
	ID       string    `json:"id"`
	Source   string    `json:"source"`
	Title    string    `json:"title,omitempty"`
	Chars    int       `json:"chars"`
	Chunks   int       `json:"chunks"`
	LoadedAt time.Time `json:"loaded_at"`
}

// Catalog is the persistence interface for the document catalog.
type Catalog interface {
	// ReplaceCorpus swaps the whole corpus for docs and chunks atomically.
	ReplaceCorpus(ctx context.Context, docs []models.Document, chunks []models.Chunk) error
	ListDocuments(ctx context.Context, offset, limit int) ([]DocumentInfo, error)
	GetChunks(ctx context.Context, docID string) ([]models.Chunk, error)
	CountDocuments(ctx context.Context) (int64, error)
	CountChunks(ctx context.Context) (int64, error)

	StartBuild(ctx context.Context, id string) (*Build, error)
	FinishBuild(ctx context.Context, b *Build) error
	LatestBuild(ctx context.Context) (*Build, error)

	Close() error
}
