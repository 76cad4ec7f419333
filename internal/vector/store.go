// Package vector holds the persisted embedding index: an immutable in-memory snapshot
// searched by exact cosine similarity, rebuilt wholesale and swapped atomically.
package vector

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hyperjump/vincentbot/internal/models"
	"github.com/hyperjump/vincentbot/pkg/utils"
	"go.uber.org/zap"
)

// Manifest describes a built index.
type Manifest struct {
	ModelID    string    `json:"model_id"`
	BuildID    string    `json:"build_id,omitempty"`
	Dimensions int       `json:"dimensions"`
	Count      int       `json:"count"`
	BuiltAt    time.Time `json:"built_at"`
}

// BuildInfo is recorded in the manifest of a new build. Dimensions is only needed
// when the entry list is empty.
type BuildInfo struct {
	ModelID    string
	BuildID    string
	Dimensions int
}

// Snapshot is one immutable generation of the index. A query holds the same snapshot
// from start to finish even if a rebuild swaps in a new one meanwhile.
type Snapshot struct {
	manifest Manifest
	entries  []models.IndexedEntry
}

// Manifest returns the snapshot's manifest.
func (s *Snapshot) Manifest() Manifest { return s.manifest }

// Len returns the number of entries.
func (s *Snapshot) Len() int { return len(s.entries) }

// Entries returns the entries in insertion order. Callers must not modify them.
func (s *Snapshot) Entries() []models.IndexedEntry { return s.entries }

// Query returns the k entries most similar to vec by cosine similarity, best first.
// Ties keep insertion order. k larger than the index returns every entry.
func (s *Snapshot) Query(vec []float32, k int) ([]models.ScoredChunk, error) {
	if k <= 0 {
		return nil, models.NewError(models.KindInvalidArgument, "vector.query",
			fmt.Sprintf("k must be positive, got %d", k), nil)
	}
	if len(s.entries) == 0 {
		return []models.ScoredChunk{}, nil
	}
	if len(vec) != s.manifest.Dimensions {
		return nil, models.NewError(models.KindInvalidArgument, "vector.query",
			fmt.Sprintf("query has %d dimensions, index has %d", len(vec), s.manifest.Dimensions), nil)
	}

	scored := make([]models.ScoredChunk, len(s.entries))
	for i, e := range s.entries {
		scored[i] = models.ScoredChunk{Chunk: e.Chunk, Score: utils.Cosine(vec, e.Vector)}
	}
	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	if k > len(scored) {
		k = len(scored)
	}
	out := scored[:k:k]
	for i := range out {
		out[i].Rank = i + 1
	}
	return out, nil
}

// Store owns the index directory and the current snapshot. Reads are lock-free;
// builds are serialized.
type Store struct {
	dir     string
	current atomic.Pointer[Snapshot]
	mu      sync.Mutex
	logger  *zap.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the store's logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// NewStore returns an empty, unloaded store rooted at dir.
func NewStore(dir string, opts ...Option) *Store {
	s := &Store{dir: dir}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = utils.OrNop(s.logger)
	return s
}

// Open returns a store with the persisted index loaded.
func Open(dir string, opts ...Option) (*Store, error) {
	s := NewStore(dir, opts...)
	if err := s.Load(); err != nil {
		return nil, err
	}
	return s, nil
}

// Path returns the index file path.
func (s *Store) Path() string { return filepath.Join(s.dir, IndexFileName) }

// Loaded reports whether a snapshot is available for queries.
func (s *Store) Loaded() bool { return s.current.Load() != nil }

// Snapshot returns the current snapshot, or IndexUnavailable when none is loaded.
func (s *Store) Snapshot() (*Snapshot, error) {
	snap := s.current.Load()
	if snap == nil {
		return nil, models.NewError(models.KindIndexUnavailable, "vector.snapshot", "index not loaded", nil)
	}
	return snap, nil
}

// Manifest returns the current manifest and whether an index is loaded.
func (s *Store) Manifest() (Manifest, bool) {
	snap := s.current.Load()
	if snap == nil {
		return Manifest{}, false
	}
	return snap.manifest, true
}

// Query searches the current snapshot.
func (s *Store) Query(ctx context.Context, vec []float32, k int) ([]models.ScoredChunk, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	snap, err := s.Snapshot()
	if err != nil {
		return nil, err
	}
	return snap.Query(vec, k)
}

// Build replaces the index with entries: it writes a new file beside the old one,
// syncs it, renames it into place and then swaps the in-memory snapshot. On error the
// previous file and snapshot stay in place.
func (s *Store) Build(ctx context.Context, entries []models.IndexedEntry, info BuildInfo) error {
	dims := info.Dimensions
	if len(entries) > 0 {
		dims = len(entries[0].Vector)
	}
	for i, e := range entries {
		if len(e.Vector) == 0 || len(e.Vector) != dims {
			return models.NewError(models.KindInvalidArgument, "vector.build",
				fmt.Sprintf("entry %d has %d dimensions, want %d", i, len(e.Vector), dims), nil)
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	owned := make([]models.IndexedEntry, len(entries))
	for i, e := range entries {
		owned[i] = models.IndexedEntry{Chunk: e.Chunk, Vector: append([]float32(nil), e.Vector...)}
	}
	snap := &Snapshot{
		manifest: Manifest{
			ModelID:    info.ModelID,
			BuildID:    info.BuildID,
			Dimensions: dims,
			Count:      len(owned),
			BuiltAt:    time.Now().UTC(),
		},
		entries: owned,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.write(snap); err != nil {
		return err
	}
	s.current.Store(snap)
	s.logger.Info("vector index built",
		zap.String("model_id", info.ModelID),
		zap.Int("entries", len(owned)),
		zap.Int("dimensions", dims))
	return nil
}

func (s *Store) write(snap *Snapshot) error {
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return fmt.Errorf("create index dir: %w", err)
	}
	tmp, err := os.CreateTemp(s.dir, IndexFileName+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp index: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := encodeSnapshot(tmp, snap); err != nil {
		tmp.Close()
		return fmt.Errorf("write index: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync index: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close index: %w", err)
	}
	if err := os.Rename(tmpName, s.Path()); err != nil {
		return fmt.Errorf("replace index: %w", err)
	}
	return nil
}

// Load reads the index file into a new snapshot. A missing or corrupt file is
// IndexUnavailable and leaves any current snapshot untouched.
func (s *Store) Load() error {
	data, err := os.ReadFile(s.Path())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return models.NewError(models.KindIndexUnavailable, "vector.load", "no index at "+s.Path(), err)
		}
		return models.NewError(models.KindIndexUnavailable, "vector.load", "read index", err)
	}
	snap, err := decodeSnapshot(data)
	if err != nil {
		return models.NewError(models.KindIndexUnavailable, "vector.load", s.Path(), err)
	}
	s.current.Store(snap)
	s.logger.Debug("vector index loaded",
		zap.String("path", s.Path()),
		zap.String("model_id", snap.manifest.ModelID),
		zap.Int("entries", snap.manifest.Count))
	return nil
}
