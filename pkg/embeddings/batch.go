package embeddings

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// ParallelGenerateBatchEmbeddings calls GenerateEmbedding for every text with
// at most maxConcurrency requests in flight. The first error cancels the rest.
func ParallelGenerateBatchEmbeddings(ctx context.Context, p Provider, texts []string, maxConcurrency int) ([][]float32, error) {
	if maxConcurrency <= 0 {
		maxConcurrency = 4
	}

	results := make([][]float32, len(texts))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrency)

	for i, text := range texts {
		i, text := i, text
		g.Go(func() error {
			embedding, err := p.GenerateEmbedding(ctx, text)
			if err != nil {
				return err
			}
			results[i] = embedding
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// ChunkedGenerateBatchEmbeddings splits texts into batches of at most size
// and calls the provider's batch endpoint for each.
func ChunkedGenerateBatchEmbeddings(ctx context.Context, p Provider, texts []string, size int) ([][]float32, error) {
	if size <= 0 {
		size = 64
	}
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += size {
		end := start + size
		if end > len(texts) {
			end = len(texts)
		}
		batch, err := p.GenerateBatchEmbeddings(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		out = append(out, batch...)
	}
	return out, nil
}
