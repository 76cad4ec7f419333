package embedding

import (
	"context"
	"strings"
	"testing"
)

func BenchmarkNgramEmbedder_Embed(b *testing.B) {
	e := NewNgramEmbedder(512)
	ctx := context.Background()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = e.Embed(ctx, "What projects has Vincent built with Go and Python?")
	}
}

func BenchmarkEmbedMany(b *testing.B) {
	e := NewNgramEmbedder(512)
	texts := make([]string, 256)
	for i := range texts {
		texts[i] = strings.Repeat("Vincent is a backend engineer. ", 1+i%8)
	}
	ctx := context.Background()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := EmbedMany(ctx, e, texts, 32, 4); err != nil {
			b.Fatal(err)
		}
	}
}
