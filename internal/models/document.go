// Package models defines core data structures for documents, chunks, retrieval results, and prompts.
package models

import "time"

// Document is a named blob of normalized text loaded from one source.
// Documents are immutable once loaded.
type Document struct {
	ID       string    `json:"id"`
	Source   string    `json:"source"`
	Title    string    `json:"title,omitempty"`
	Text     string    `json:"text"`
	LoadedAt time.Time `json:"loaded_at"`
}

// Chunk is a contiguous substring of a document's text. Start and Length count runes.
type Chunk struct {
	ID         string `json:"id"`
	DocumentID string `json:"document_id"`
	Source     string `json:"source"`
	Index      int    `json:"index"`
	Start      int    `json:"start"`
	Length     int    `json:"length"`
	Text       string `json:"text"`
}

// IndexedEntry pairs a chunk with its embedding vector. Entries are never mutated after a build.
type IndexedEntry struct {
	Chunk  Chunk
	Vector []float32
}
