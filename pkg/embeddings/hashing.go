package embeddings

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

// HashingProvider is an offline provider that projects lowercased word tokens
// onto a fixed number of buckets. Good enough for name lookups without an API key.
type HashingProvider struct {
	dimensions int
}

var _ Provider = &HashingProvider{}

func NewHashingProvider(dimensions int) *HashingProvider {
	if dimensions <= 0 {
		dimensions = 256
	}
	return &HashingProvider{dimensions: dimensions}
}

func (h *HashingProvider) GenerateEmbedding(_ context.Context, text string) ([]float32, error) {
	v := make([]float32, h.dimensions)
	for _, tok := range Tokenize(text) {
		f := fnv.New32a()
		_, _ = f.Write([]byte(tok))
		sum := f.Sum32()
		idx := int(sum % uint32(h.dimensions))
		if sum&(1<<31) != 0 {
			v[idx] -= 1
		} else {
			v[idx] += 1
		}
	}
	var norm float64
	for _, x := range v {
		norm += float64(x) * float64(x)
	}
	if norm > 0 {
		n := float32(math.Sqrt(norm))
		for i := range v {
			v[i] /= n
		}
	}
	return v, nil
}

func (h *HashingProvider) GenerateBatchEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		e, err := h.GenerateEmbedding(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = e
	}
	return out, nil
}

func (h *HashingProvider) GetModel() EmbeddingModel {
	return EmbeddingModel{Name: "hashing", Dimensions: h.dimensions}
}

// Tokenize lowercases text and splits it on anything that is not a letter or digit.
func Tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
