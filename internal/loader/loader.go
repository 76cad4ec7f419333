// Package loader reads raw profile sources into normalized documents.
package loader

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/hyperjump/vincentbot/internal/extract"
	"github.com/hyperjump/vincentbot/internal/fileid"
	"github.com/hyperjump/vincentbot/internal/models"
	"github.com/hyperjump/vincentbot/pkg/utils"
	"go.uber.org/zap"
)

// SourceSeparator joins sources when they are combined into one document.
const SourceSeparator = "\n\n"

// Loader turns source files and directories into documents.
type Loader struct {
	extractor  *extract.Extractor
	extensions []string
	logger     *zap.Logger
	now        func() time.Time
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithLogger sets a logger for skipped and loaded sources.
func WithLogger(l *zap.Logger) LoaderOption {
	return func(ld *Loader) { ld.logger = l }
}

// WithExtensions restricts directory walks to files with these extensions.
// Files named explicitly are always loaded.
func WithExtensions(exts []string) LoaderOption {
	return func(ld *Loader) { ld.extensions = exts }
}

// NewLoader returns a Loader using extractor for format decoding.
func NewLoader(extractor *extract.Extractor, opts ...LoaderOption) *Loader {
	if extractor == nil {
		extractor = extract.NewExtractor()
	}
	ld := &Loader{extractor: extractor, now: time.Now}
	for _, opt := range opts {
		opt(ld)
	}
	ld.logger = utils.OrNop(ld.logger)
	return ld
}

// Load reads every source in order. Directories are walked in lexical order.
// A missing source is an error; sources that normalize to empty text are skipped.
func (l *Loader) Load(ctx context.Context, sources []string) ([]models.Document, error) {
	var docs []models.Document
	for _, src := range sources {
		paths, err := l.expand(src)
		if err != nil {
			return nil, err
		}
		for _, path := range paths {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			doc, ok, err := l.LoadFile(path)
			if err != nil {
				return nil, err
			}
			if ok {
				docs = append(docs, doc)
			}
		}
	}
	return docs, nil
}

// LoadFile reads a single file. ok is false when the file has no text.
func (l *Loader) LoadFile(path string) (models.Document, bool, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return models.Document{}, false, fmt.Errorf("absolute path: %w", err)
	}
	raw, err := l.extractor.Extract(abs)
	if err != nil {
		return models.Document{}, false, fmt.Errorf("load %s: %w", abs, err)
	}
	text := Normalize(raw)
	if text == "" {
		l.logger.Warn("skipping empty source", zap.String("source", abs))
		return models.Document{}, false, nil
	}
	l.logger.Debug("source loaded", zap.String("source", abs), zap.Int("chars", len([]rune(text))))
	return models.Document{
		ID:       fileid.DocumentID(abs),
		Source:   abs,
		Title:    filepath.Base(abs),
		Text:     text,
		LoadedAt: l.now(),
	}, true, nil
}

func (l *Loader) expand(src string) ([]string, error) {
	info, err := os.Stat(src)
	if err != nil {
		return nil, fmt.Errorf("source %s: %w", src, err)
	}
	if !info.IsDir() {
		return []string{src}, nil
	}
	var paths []string
	err = filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != src && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if MatchExtension(path, l.extensions) {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", src, err)
	}
	sort.Strings(paths)
	return paths, nil
}

// Concatenate merges docs into one document whose text is each document's text joined
// with a blank line. It returns the zero Document and false when docs is empty.
func Concatenate(docs []models.Document) (models.Document, bool) {
	if len(docs) == 0 {
		return models.Document{}, false
	}
	if len(docs) == 1 {
		return docs[0], true
	}
	sources := make([]string, len(docs))
	texts := make([]string, len(docs))
	var loadedAt time.Time
	for i, d := range docs {
		sources[i] = d.Source
		texts[i] = d.Text
		if d.LoadedAt.After(loadedAt) {
			loadedAt = d.LoadedAt
		}
	}
	return models.Document{
		ID:       fileid.DocumentID(sources...),
		Source:   strings.Join(sources, ","),
		Title:    "profile",
		Text:     strings.Join(texts, SourceSeparator),
		LoadedAt: loadedAt,
	}, true
}

// MatchExtension reports whether path has one of extensions (case-insensitive, leading
// dot optional). An empty list matches every path.
func MatchExtension(path string, extensions []string) bool {
	if len(extensions) == 0 {
		return true
	}
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	for _, e := range extensions {
		if strings.TrimPrefix(strings.ToLower(e), ".") == ext {
			return true
		}
	}
	return false
}
