package embeddings

import (
	"context"
	"math"
)

// EmbeddingModel contains metadata about the embedding model
type EmbeddingModel struct {
	Name       string
	Dimensions int
}

// Provider generates embedding vectors for text.
type Provider interface {
	GenerateEmbedding(ctx context.Context, text string) ([]float32, error)
	// GenerateBatchEmbeddings returns one vector per text, in input order.
	GenerateBatchEmbeddings(ctx context.Context, texts []string) ([][]float32, error)
	GetModel() EmbeddingModel
}

// CosineSimilarity returns the cosine of the angle between a and b, or 0 when
// either is the zero vector or their lengths differ.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
