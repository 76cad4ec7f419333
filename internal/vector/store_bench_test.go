package vector

import (
	"context"
	"fmt"
	"testing"

	"github.com/hyperjump/vincentbot/internal/models"
)

func BenchmarkStore_Query(b *testing.B) {
	const dims = 384
	entries := make([]models.IndexedEntry, 1000)
	for i := range entries {
		vec := make([]float32, dims)
		vec[0] = float32(i) / 1000
		vec[i%dims] += 1
		entries[i] = entry(fmt.Sprintf("c%d", i), vec...)
	}
	s := NewStore(b.TempDir())
	ctx := context.Background()
	if err := s.Build(ctx, entries, BuildInfo{ModelID: "bench"}); err != nil {
		b.Fatal(err)
	}
	query := make([]float32, dims)
	query[0] = 1.0
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = s.Query(ctx, query, 5)
	}
}

func BenchmarkStore_Load(b *testing.B) {
	entries := make([]models.IndexedEntry, 200)
	for i := range entries {
		entries[i] = entry(fmt.Sprintf("c%d", i), float32(i), 1, 0.5)
	}
	s := NewStore(b.TempDir())
	if err := s.Build(context.Background(), entries, BuildInfo{ModelID: "bench"}); err != nil {
		b.Fatal(err)
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := s.Load(); err != nil {
			b.Fatal(err)
		}
	}
}
