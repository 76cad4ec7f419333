package embedding

import (
	"context"
	"fmt"
	"sync"

	"github.com/hyperjump/vincentbot/internal/models"
	"github.com/panjf2000/ants/v2"
)

// EmbedMany embeds texts in batches of batchSize on a pool of at most workers
// goroutines. Results land in their original order. The first batch error cancels the
// remaining batches and is returned; a missing or mis-sized vector is an error.
func EmbedMany(ctx context.Context, e Embedder, texts []string, batchSize, workers int) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if batchSize <= 0 {
		batchSize = len(texts)
	}
	if workers <= 0 {
		workers = 1
	}

	pool, err := ants.NewPool(workers)
	if err != nil {
		return nil, fmt.Errorf("create embedding pool: %w", err)
	}
	defer pool.Release()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	out := make([][]float32, len(texts))
	var (
		wg       sync.WaitGroup
		once     sync.Once
		firstErr error
	)
	fail := func(err error) {
		once.Do(func() {
			firstErr = err
			cancel()
		})
	}

	for start := 0; start < len(texts); start += batchSize {
		start := start // per-iteration copy; the closure below runs on the pool
		end := start + batchSize
		if end > len(texts) {
			end = len(texts)
		}
		wg.Add(1)
		submitErr := pool.Submit(func() {
			defer wg.Done()
			if ctx.Err() != nil {
				fail(ctx.Err())
				return
			}
			vecs, err := e.EmbedBatch(ctx, texts[start:end])
			if err != nil {
				fail(err)
				return
			}
			if len(vecs) != end-start {
				fail(models.NewError(models.KindEmbeddingUnavailable, "embed",
					fmt.Sprintf("provider returned %d vectors for %d texts", len(vecs), end-start), nil))
				return
			}
			copy(out[start:end], vecs)
		})
		if submitErr != nil {
			wg.Done()
			fail(fmt.Errorf("submit embedding batch: %w", submitErr))
			break
		}
	}
	wg.Wait()
	if firstErr != nil {
		return nil, firstErr
	}

	dims := len(out[0])
	for i, v := range out {
		if len(v) == 0 || len(v) != dims {
			return nil, models.NewError(models.KindEmbeddingUnavailable, "embed",
				fmt.Sprintf("vector %d has %d dimensions, want %d", i, len(v), dims), nil)
		}
	}
	return out, nil
}
