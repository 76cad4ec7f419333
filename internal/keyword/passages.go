// Package keyword keeps a full-text index of ingested passages for keyword lookup.
// It is a diagnostic view of the corpus and plays no part in answer retrieval.
package keyword

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/hyperjump/vincentbot/internal/models"
	"github.com/hyperjump/vincentbot/pkg/utils"
	"go.uber.org/zap"
)

const batchSize = 500

// Passage is a keyword hit.
type Passage struct {
	ChunkID    string  `json:"chunk_id"`
	DocumentID string  `json:"document_id"`
	Source     string  `json:"source"`
	Index      int     `json:"index"`
	Text       string  `json:"text"`
	Score      float64 `json:"score"`
}

// SearchOptions tunes Search. The zero value runs an exact-term match.
type SearchOptions struct {
	// Fuzziness is the edit distance allowed per term (0, 1 or 2).
	Fuzziness int
}

type passageDoc struct {
	Text       string `json:"text"`
	Source     string `json:"source"`
	DocumentID string `json:"document_id"`
	Index      int    `json:"index"`
}

// PassageIndex is a bleve index of chunks stored at a directory.
type PassageIndex struct {
	path   string
	mu     sync.RWMutex
	index  bleve.Index
	logger *zap.Logger
}

// OpenPassageIndex opens the index at path if one exists. A missing index is not an
// error; Search returns no hits until the first Rebuild.
func OpenPassageIndex(path string, logger *zap.Logger) (*PassageIndex, error) {
	p := &PassageIndex{path: path, logger: utils.OrNop(logger)}
	if _, err := os.Stat(path); err == nil {
		idx, err := bleve.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open passage index: %w", err)
		}
		p.index = idx
	}
	return p, nil
}

func newMapping() mapping.IndexMapping {
	im := bleve.NewIndexMapping()
	doc := bleve.NewDocumentMapping()

	text := bleve.NewTextFieldMapping()
	// Standard analyzer: lowercase and tokenize without stemming, so terms match as typed.
	text.Analyzer = standard.Name
	doc.AddFieldMappingsAt("text", text)

	kw := bleve.NewKeywordFieldMapping()
	doc.AddFieldMappingsAt("source", kw)
	doc.AddFieldMappingsAt("document_id", kw)
	num := bleve.NewNumericFieldMapping()
	num.Index = false
	doc.AddFieldMappingsAt("index", num)

	im.DefaultMapping = doc
	return im
}

// Rebuild replaces the whole index with chunks. The new index is built beside the
// old one and swapped in when complete.
func (p *PassageIndex) Rebuild(ctx context.Context, chunks []models.Chunk) error {
	tmp := p.path + ".building"
	_ = os.RemoveAll(tmp)
	idx, err := bleve.New(tmp, newMapping())
	if err != nil {
		return fmt.Errorf("failed to create passage index: %w", err)
	}

	batch := idx.NewBatch()
	for _, c := range chunks {
		if err := ctx.Err(); err != nil {
			_ = idx.Close()
			_ = os.RemoveAll(tmp)
			return err
		}
		doc := passageDoc{Text: c.Text, Source: c.Source, DocumentID: c.DocumentID, Index: c.Index}
		if err := batch.Index(c.ID, doc); err != nil {
			_ = idx.Close()
			_ = os.RemoveAll(tmp)
			return fmt.Errorf("failed to index passage %s: %w", c.ID, err)
		}
		if batch.Size() >= batchSize {
			if err := idx.Batch(batch); err != nil {
				_ = idx.Close()
				_ = os.RemoveAll(tmp)
				return fmt.Errorf("failed to write passages: %w", err)
			}
			batch.Reset()
		}
	}
	if err := idx.Batch(batch); err != nil {
		_ = idx.Close()
		_ = os.RemoveAll(tmp)
		return fmt.Errorf("failed to write passages: %w", err)
	}
	if err := idx.Close(); err != nil {
		return fmt.Errorf("failed to close passage index: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.index != nil {
		_ = p.index.Close()
		p.index = nil
	}
	if err := os.RemoveAll(p.path); err != nil {
		return fmt.Errorf("failed to remove old passage index: %w", err)
	}
	if err := os.Rename(tmp, p.path); err != nil {
		return fmt.Errorf("failed to move passage index: %w", err)
	}
	reopened, err := bleve.Open(p.path)
	if err != nil {
		return fmt.Errorf("failed to reopen passage index: %w", err)
	}
	p.index = reopened
	p.logger.Debug("passage index rebuilt", zap.Int("passages", len(chunks)))
	return nil
}

// Search returns up to limit passages matching query, best first.
func (p *PassageIndex) Search(ctx context.Context, query string, limit int, opts *SearchOptions) ([]Passage, error) {
	if limit <= 0 {
		return nil, models.NewError(models.KindInvalidArgument, "passages",
			fmt.Sprintf("limit must be positive, got %d", limit), nil)
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.index == nil {
		return []Passage{}, nil
	}

	q := bleve.NewMatchQuery(query)
	q.SetField("text")
	if opts != nil && opts.Fuzziness > 0 {
		q.SetFuzziness(min(opts.Fuzziness, 2))
	}
	req := bleve.NewSearchRequest(q)
	req.Size = limit
	req.Fields = []string{"text", "source", "document_id", "index"}
	res, err := p.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("passage search failed: %w", err)
	}

	out := make([]Passage, 0, len(res.Hits))
	for _, hit := range res.Hits {
		ps := Passage{ChunkID: hit.ID, Score: hit.Score}
		ps.Text, _ = hit.Fields["text"].(string)
		ps.Source, _ = hit.Fields["source"].(string)
		ps.DocumentID, _ = hit.Fields["document_id"].(string)
		if f, ok := hit.Fields["index"].(float64); ok {
			ps.Index = int(f)
		}
		out = append(out, ps)
	}
	return out, nil
}

// Count returns the number of indexed passages.
func (p *PassageIndex) Count() (uint64, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.index == nil {
		return 0, nil
	}
	return p.index.DocCount()
}

// Close closes the index.
func (p *PassageIndex) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.index == nil {
		return nil
	}
	err := p.index.Close()
	p.index = nil
	return err
}
