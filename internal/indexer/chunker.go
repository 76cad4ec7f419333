package indexer

import (
	"fmt"

	"github.com/hyperjump/vincentbot/internal/fileid"
	"github.com/hyperjump/vincentbot/internal/models"
)

// Chunker splits text into fixed-size character windows that overlap by a fixed amount.
type Chunker struct {
	maxSize int
	overlap int
}

// NewChunker creates a chunker with the given size and overlap, in characters.
// It requires maxSize > 0 and 0 <= overlap < maxSize.
func NewChunker(maxSize, overlap int) (*Chunker, error) {
	if maxSize <= 0 {
		return nil, models.NewError(models.KindInvalidConfiguration, "chunker",
			fmt.Sprintf("max chunk size must be positive, got %d", maxSize), nil)
	}
	if overlap < 0 || overlap >= maxSize {
		return nil, models.NewError(models.KindInvalidConfiguration, "chunker",
			fmt.Sprintf("overlap must be in [0, %d), got %d", maxSize, overlap), nil)
	}
	return &Chunker{maxSize: maxSize, overlap: overlap}, nil
}

// MaxSize returns the chunk size in characters.
func (c *Chunker) MaxSize() int { return c.maxSize }

// Overlap returns the overlap in characters.
func (c *Chunker) Overlap() int { return c.overlap }

// Chunk splits doc's text into windows [cursor, cursor+maxSize), advancing the cursor by
// maxSize-overlap and stopping at the first window that reaches the end of the text.
func (c *Chunker) Chunk(doc models.Document) []models.Chunk {
	runes := []rune(doc.Text)
	if len(runes) == 0 {
		return nil
	}
	step := c.maxSize - c.overlap
	chunks := make([]models.Chunk, 0, len(runes)/step+1)
	for start := 0; ; start += step {
		end := start + c.maxSize
		if end > len(runes) {
			end = len(runes)
		}
		idx := len(chunks)
		chunks = append(chunks, models.Chunk{
			ID:         fileid.ChunkID(doc.ID, idx),
			DocumentID: doc.ID,
			Source:     doc.Source,
			Index:      idx,
			Start:      start,
			Length:     end - start,
			Text:       string(runes[start:end]),
		})
		if end == len(runes) {
			break
		}
	}
	return chunks
}

// Reassemble joins chunks of one document back into its text by dropping the
// first overlap characters of every chunk after the first.
func Reassemble(chunks []models.Chunk, overlap int) string {
	var out []rune
	for i, ch := range chunks {
		r := []rune(ch.Text)
		if i > 0 {
			r = r[overlap:]
		}
		out = append(out, r...)
	}
	return string(out)
}
