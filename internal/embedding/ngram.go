package embedding

import (
	"context"
	"fmt"
	"hash/fnv"
	"strings"
	"unicode"

	"github.com/hyperjump/vincentbot/pkg/utils"
)

// DefaultNgramDimensions is the bucket count used when none is configured.
const DefaultNgramDimensions = 512

// NgramEmbedder is a deterministic, offline lexical embedder. Each lower-cased word
// contributes one whole-word feature and its padded character trigrams; features are
// hashed into a fixed number of buckets and the result is L2 normalised.
type NgramEmbedder struct {
	dimensions int
}

// NewNgramEmbedder returns an n-gram embedder with the given number of buckets.
func NewNgramEmbedder(dimensions int) *NgramEmbedder {
	if dimensions <= 0 {
		dimensions = DefaultNgramDimensions
	}
	return &NgramEmbedder{dimensions: dimensions}
}

// Embed returns the hashed feature vector for text. Text with no letters or digits
// embeds to the zero vector.
func (e *NgramEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	vec := make([]float32, e.dimensions)
	for _, word := range Words(text) {
		vec[e.bucket("w:"+word)]++
		padded := []rune(" " + word + " ")
		for i := 0; i+3 <= len(padded); i++ {
			vec[e.bucket("g:"+string(padded[i:i+3]))]++
		}
	}
	utils.NormalizeL2(vec)
	return vec, nil
}

// EmbedBatch embeds each text in order.
func (e *NgramEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return embedEach(ctx, e, texts)
}

// Dimensions returns the bucket count.
func (e *NgramEmbedder) Dimensions() int { return e.dimensions }

// ModelID returns "ngram-v1-<dims>".
func (e *NgramEmbedder) ModelID() string { return fmt.Sprintf("ngram-v1-%d", e.dimensions) }

// Close is a no-op.
func (e *NgramEmbedder) Close() error { return nil }

func (e *NgramEmbedder) bucket(feature string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(feature))
	return int(h.Sum32() % uint32(e.dimensions))
}

// Words lower-cases text and splits it on anything that is not a letter or digit.
func Words(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
