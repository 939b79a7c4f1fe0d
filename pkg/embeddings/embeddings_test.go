package embeddings

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/pkg/errors"
	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingProvider struct {
	single atomic.Int64
	batch  atomic.Int64
	texts  atomic.Int64
	fail   bool
}

func (c *countingProvider) GenerateEmbedding(_ context.Context, text string) ([]float32, error) {
	c.single.Add(1)
	if c.fail {
		return nil, errors.New("boom")
	}
	return []float32{float32(len(text))}, nil
}

func (c *countingProvider) GenerateBatchEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	c.batch.Add(1)
	c.texts.Add(int64(len(texts)))
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{float32(len(t))}
	}
	return out, nil
}

func (c *countingProvider) GetModel() EmbeddingModel {
	return EmbeddingModel{Name: "counting", Dimensions: 1}
}

func TestCachedProvider(t *testing.T) {
	p := &countingProvider{}
	c := NewCachedProvider(p, 2)

	_, err := c.GenerateEmbedding(context.Background(), "a")
	require.NoError(t, err)
	_, err = c.GenerateEmbedding(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, int64(1), p.single.Load())

	_, _ = c.GenerateEmbedding(context.Background(), "bb")
	_, _ = c.GenerateEmbedding(context.Background(), "ccc")
	assert.Equal(t, 2, c.Size())

	// "a" was evicted
	_, _ = c.GenerateEmbedding(context.Background(), "a")
	assert.Equal(t, int64(4), p.single.Load())
}

func TestCachedProviderBatchOnlySendsMisses(t *testing.T) {
	p := &countingProvider{}
	c := NewCachedProvider(p, 10)

	_, err := c.GenerateEmbedding(context.Background(), "tesla")
	require.NoError(t, err)

	out, err := c.GenerateBatchEmbeddings(context.Background(), []string{"tesla", "curie", "lovelace"})
	require.NoError(t, err)
	require.Len(t, out, 3)
	assert.Equal(t, []float32{5}, out[0])
	assert.Equal(t, []float32{8}, out[2])
	assert.Equal(t, int64(2), p.texts.Load())

	_, err = c.GenerateBatchEmbeddings(context.Background(), []string{"curie"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), p.batch.Load())
}

func TestParallelGenerateBatchEmbeddings(t *testing.T) {
	p := &countingProvider{}
	out, err := ParallelGenerateBatchEmbeddings(context.Background(), p, []string{"a", "bb", "ccc"}, 2)
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{1}, {2}, {3}}, out)

	_, err = ParallelGenerateBatchEmbeddings(context.Background(), &countingProvider{fail: true}, []string{"a"}, 2)
	require.Error(t, err)
}

func TestChunkedGenerateBatchEmbeddings(t *testing.T) {
	p := &countingProvider{}
	out, err := ChunkedGenerateBatchEmbeddings(context.Background(), p, []string{"a", "b", "c", "d", "e"}, 2)
	require.NoError(t, err)
	assert.Len(t, out, 5)
	assert.Equal(t, int64(3), p.batch.Load())
}

func TestHashingProviderSimilarity(t *testing.T) {
	h := NewHashingProvider(128)
	ctx := context.Background()

	tesla, _ := h.GenerateEmbedding(ctx, "Name: Dr. Nikola Tesla\nRelation: old friend from university days")
	curie, _ := h.GenerateEmbedding(ctx, "Name: Marie Curie\nRelation: no relation")
	query, _ := h.GenerateEmbedding(ctx, "Nikola Tesla")

	assert.Greater(t, CosineSimilarity(query, tesla), CosineSimilarity(query, curie))
	assert.Equal(t, 128, h.GetModel().Dimensions)
}

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, CosineSimilarity([]float32{1, 2}, []float32{2, 4}), 1e-9)
	assert.InDelta(t, 0.0, CosineSimilarity([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.Equal(t, 0.0, CosineSimilarity([]float32{1}, []float32{1, 2}))
	assert.Equal(t, 0.0, CosineSimilarity([]float32{0, 0}, []float32{1, 2}))
}

func TestOpenAIProviderBatchOrdering(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/embeddings", r.URL.Path)
		var req struct {
			Input []string `json:"input"`
			Model string   `json:"model"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, string(openai.SmallEmbedding3), req.Model)

		// answer out of order to check index handling
		data := []map[string]any{}
		for i := len(req.Input) - 1; i >= 0; i-- {
			data = append(data, map[string]any{"object": "embedding", "index": i, "embedding": []float32{float32(i)}})
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"object": "list", "data": data, "model": req.Model})
	}))
	defer srv.Close()

	p := NewOpenAIProvider("key", srv.URL+"/v1", "", 0)
	out, err := p.GenerateBatchEmbeddings(context.Background(), []string{"a", "b", "c"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{0}, {1}, {2}}, out)

	one, err := p.GenerateEmbedding(context.Background(), "z")
	require.NoError(t, err)
	assert.Equal(t, []float32{0}, one)
	assert.Equal(t, 1536, p.GetModel().Dimensions)
}
