package guests

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/weaviate/weaviate-go-client/v4/weaviate"
	"github.com/weaviate/weaviate-go-client/v4/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"

	"github.com/go-go-golems/alfred/pkg/embeddings"
)

const DefaultWeaviateClass = "GalaGuest"

type WeaviateConfig struct {
	Host   string `mapstructure:"host" yaml:"host"`
	Scheme string `mapstructure:"scheme" yaml:"scheme"`
	Class  string `mapstructure:"class" yaml:"class"`
}

// WeaviateIndex stores guest documents in a Weaviate class with vectors
// computed locally, and answers queries with nearVector search.
type WeaviateIndex struct {
	client   *weaviate.Client
	class    string
	embedder embeddings.Provider
}

var _ Retriever = &WeaviateIndex{}

func NewWeaviateIndex(cfg WeaviateConfig, embedder embeddings.Provider) (*WeaviateIndex, error) {
	if cfg.Scheme == "" {
		cfg.Scheme = "http"
	}
	if cfg.Class == "" {
		cfg.Class = DefaultWeaviateClass
	}
	client, err := weaviate.NewClient(weaviate.Config{Host: cfg.Host, Scheme: cfg.Scheme})
	if err != nil {
		return nil, errors.Wrap(err, "create weaviate client")
	}
	return &WeaviateIndex{client: client, class: cfg.Class, embedder: embedder}, nil
}

var guestProperties = []string{"name", "relation", "description", "email"}

// EnsureSchema creates the guest class if it does not exist and reports
// whether it did.
func (w *WeaviateIndex) EnsureSchema(ctx context.Context) (bool, error) {
	exists, err := w.client.Schema().ClassExistenceChecker().WithClassName(w.class).Do(ctx)
	if err != nil {
		return false, errors.Wrap(err, "check weaviate class")
	}
	if exists {
		return false, nil
	}

	class := &models.Class{
		Class:       w.class,
		Description: "Gala invitees",
		Vectorizer:  "none",
	}
	for _, p := range guestProperties {
		class.Properties = append(class.Properties, &models.Property{Name: p, DataType: []string{"text"}})
	}
	if err := w.client.Schema().ClassCreator().WithClass(class).Do(ctx); err != nil {
		return false, errors.Wrapf(err, "create weaviate class %s", w.class)
	}
	log.Info().Str("class", w.class).Msg("guests: created weaviate class")
	return true, nil
}

// Add embeds guests and writes them in one batch.
func (w *WeaviateIndex) Add(ctx context.Context, guests []Guest) error {
	if len(guests) == 0 {
		return nil
	}
	docs := make([]string, len(guests))
	for i, g := range guests {
		docs[i] = g.Document()
	}
	vecs, err := embeddings.ChunkedGenerateBatchEmbeddings(ctx, w.embedder, docs, 64)
	if err != nil {
		return errors.Wrap(err, "embed guest documents")
	}

	objs := make([]*models.Object, len(guests))
	for i, g := range guests {
		objs[i] = &models.Object{
			Class: w.class,
			Properties: map[string]interface{}{
				"name":        g.Name,
				"relation":    g.Relation,
				"description": g.Description,
				"email":       g.Email,
			},
			Vector: vecs[i],
		}
	}

	resp, err := w.client.Batch().ObjectsBatcher().WithObjects(objs...).Do(ctx)
	if err != nil {
		return errors.Wrap(err, "batch insert guests")
	}
	var msgs []string
	for _, r := range resp {
		if r.Result == nil || r.Result.Errors == nil {
			continue
		}
		for _, e := range r.Result.Errors.Error {
			msgs = append(msgs, e.Message)
		}
	}
	if len(msgs) > 0 {
		return errors.Errorf("batch insert guests: %s", strings.Join(msgs, "; "))
	}
	return nil
}

func (w *WeaviateIndex) Retrieve(ctx context.Context, query string, k int) ([]Guest, error) {
	if k <= 0 {
		k = DefaultTopK
	}
	vec, err := w.embedder.GenerateEmbedding(ctx, query)
	if err != nil {
		return nil, errors.Wrap(err, "embed query")
	}

	fields := make([]graphql.Field, len(guestProperties))
	for i, p := range guestProperties {
		fields[i] = graphql.Field{Name: p}
	}
	nearVector := w.client.GraphQL().NearVectorArgBuilder().WithVector(vec)

	resp, err := w.client.GraphQL().Get().
		WithClassName(w.class).
		WithFields(fields...).
		WithNearVector(nearVector).
		WithLimit(k).
		Do(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "weaviate nearVector query")
	}
	if len(resp.Errors) > 0 {
		msgs := make([]string, 0, len(resp.Errors))
		for _, e := range resp.Errors {
			msgs = append(msgs, e.Message)
		}
		return nil, errors.Errorf("weaviate query: %s", strings.Join(msgs, "; "))
	}

	return parseGetResponse(resp.Data, w.class)
}

func parseGetResponse(data map[string]models.JSONObject, class string) ([]Guest, error) {
	get, ok := data["Get"].(map[string]interface{})
	if !ok {
		return nil, errors.New("weaviate response has no Get section")
	}
	items, _ := get[class].([]interface{})
	out := make([]Guest, 0, len(items))
	for _, it := range items {
		m, ok := it.(map[string]interface{})
		if !ok {
			continue
		}
		str := func(key string) string {
			s, _ := m[key].(string)
			return s
		}
		out = append(out, Guest{
			Name:        str("name"),
			Relation:    str("relation"),
			Description: str("description"),
			Email:       str("email"),
		})
	}
	return out, nil
}
