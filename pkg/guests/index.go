package guests

import (
	"context"
	"math"
	"sort"
	"sync"

	"github.com/pkg/errors"

	"github.com/go-go-golems/alfred/pkg/embeddings"
)

// DefaultTopK is how many guest records a lookup returns.
const DefaultTopK = 3

// Retriever finds the guests most relevant to a query, best first.
type Retriever interface {
	Retrieve(ctx context.Context, query string, k int) ([]Guest, error)
}

// VectorIndex ranks guests by cosine similarity between the embedded query
// and each embedded guest document. It always returns min(k, len(guests)) results.
type VectorIndex struct {
	embedder embeddings.Provider

	mu      sync.RWMutex
	guests  []Guest
	vectors [][]float32
}

var _ Retriever = &VectorIndex{}

func NewVectorIndex(embedder embeddings.Provider) *VectorIndex {
	return &VectorIndex{embedder: embedder}
}

// Add embeds and indexes guests.
func (v *VectorIndex) Add(ctx context.Context, guests []Guest) error {
	if len(guests) == 0 {
		return nil
	}
	docs := make([]string, len(guests))
	for i, g := range guests {
		docs[i] = g.Document()
	}
	vecs, err := embeddings.ChunkedGenerateBatchEmbeddings(ctx, v.embedder, docs, 64)
	if err != nil {
		return errors.Wrap(err, "embed guest documents")
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	v.guests = append(v.guests, guests...)
	v.vectors = append(v.vectors, vecs...)
	return nil
}

func (v *VectorIndex) Len() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.guests)
}

func (v *VectorIndex) Retrieve(ctx context.Context, query string, k int) ([]Guest, error) {
	if k <= 0 {
		k = DefaultTopK
	}
	q, err := v.embedder.GenerateEmbedding(ctx, query)
	if err != nil {
		return nil, errors.Wrap(err, "embed query")
	}

	v.mu.RLock()
	defer v.mu.RUnlock()
	scores := make([]float64, len(v.vectors))
	for i, vec := range v.vectors {
		scores[i] = embeddings.CosineSimilarity(q, vec)
	}
	return topK(v.guests, scores, k, math.Inf(-1)), nil
}

// KeywordIndex ranks guests with Okapi BM25 over their documents. Guests that
// share no term with the query are never returned.
type KeywordIndex struct {
	k1, b float64

	guests  []Guest
	docs    []map[string]int
	lengths []int
	avgLen  float64
	df      map[string]int
}

var _ Retriever = &KeywordIndex{}

func NewKeywordIndex(guests []Guest) *KeywordIndex {
	idx := &KeywordIndex{
		k1:     1.5,
		b:      0.75,
		guests: guests,
		df:     map[string]int{},
	}
	total := 0
	for _, g := range guests {
		tf := map[string]int{}
		toks := embeddings.Tokenize(g.Document())
		for _, t := range toks {
			tf[t]++
		}
		for t := range tf {
			idx.df[t]++
		}
		idx.docs = append(idx.docs, tf)
		idx.lengths = append(idx.lengths, len(toks))
		total += len(toks)
	}
	if len(guests) > 0 {
		idx.avgLen = float64(total) / float64(len(guests))
	}
	return idx
}

func (k *KeywordIndex) Retrieve(_ context.Context, query string, n int) ([]Guest, error) {
	if n <= 0 {
		n = DefaultTopK
	}
	terms := embeddings.Tokenize(query)
	docCount := float64(len(k.guests))
	scores := make([]float64, len(k.guests))
	for i, tf := range k.docs {
		var s float64
		for _, t := range terms {
			f := float64(tf[t])
			if f == 0 {
				continue
			}
			df := float64(k.df[t])
			idf := math.Log((docCount-df+0.5)/(df+0.5) + 1)
			norm := 1 - k.b + k.b*float64(k.lengths[i])/k.avgLen
			s += idf * f * (k.k1 + 1) / (f + k.k1*norm)
		}
		scores[i] = s
	}
	return topK(k.guests, scores, n, 0), nil
}

// topK returns up to k guests with a score strictly above floor, best first.
// Ties keep dataset order.
func topK(guests []Guest, scores []float64, k int, floor float64) []Guest {
	idx := make([]int, 0, len(guests))
	for i := range guests {
		if scores[i] > floor {
			idx = append(idx, i)
		}
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return scores[idx[a]] > scores[idx[b]]
	})
	if len(idx) > k {
		idx = idx[:k]
	}
	out := make([]Guest, len(idx))
	for i, j := range idx {
		out[i] = guests[j]
	}
	return out
}
