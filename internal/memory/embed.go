package memory

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"strings"

	"github.com/dgraph-io/ristretto/v2"
	openai "github.com/sashabaranov/go-openai"

	"jarvis/pkg/textutil"
)

// Vector is one document embedding.
type Vector = []float32

// Embedder turns text into a vector comparable by cosine similarity.
type Embedder interface {
	Embed(ctx context.Context, text string) (Vector, error)
	Dims() int
}

// Cosine returns the cosine similarity of a and b, or 0 when they cannot be
// compared.
func Cosine(a, b Vector) float64 {
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

// HashEmbedder is an offline embedder: accent-folded words and their
// character trigrams are hashed into a fixed number of buckets.
type HashEmbedder struct {
	dims int
}

const defaultDims = 256

func NewHashEmbedder(dims int) *HashEmbedder {
	if dims <= 0 {
		dims = defaultDims
	}
	return &HashEmbedder{dims: dims}
}

func (e *HashEmbedder) Dims() int { return e.dims }

func (e *HashEmbedder) Embed(_ context.Context, text string) (Vector, error) {
	v := make(Vector, e.dims)
	for _, word := range strings.Fields(textutil.Fold(textutil.StripPunct(text))) {
		v[e.bucket("w:"+word)] += 1

		padded := []rune(" " + word + " ")
		for i := 0; i+3 <= len(padded); i++ {
			v[e.bucket("t:"+string(padded[i:i+3]))] += 0.5
		}
	}
	return v, nil
}

func (e *HashEmbedder) bucket(s string) int {
	h := fnv.New32a()
	h.Write([]byte(s))
	return int(h.Sum32() % uint32(e.dims))
}

// OllamaEmbedder asks a local Ollama through its OpenAI-compatible API.
type OllamaEmbedder struct {
	client *openai.Client
	model  string
	dims   int
}

// NewOllamaEmbedder talks to baseURL (e.g. http://localhost:11434/v1).
func NewOllamaEmbedder(baseURL, model string) *OllamaEmbedder {
	if model == "" {
		model = "nomic-embed-text"
	}
	cfg := openai.DefaultConfig("ollama")
	cfg.BaseURL = baseURL

	dims := 768
	if model == "all-minilm" {
		dims = 384
	}
	return &OllamaEmbedder{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
		dims:   dims,
	}
}

func (e *OllamaEmbedder) Dims() int { return e.dims }

func (e *OllamaEmbedder) Embed(ctx context.Context, text string) (Vector, error) {
	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{text},
		Model: openai.EmbeddingModel(e.model),
	})
	if err != nil {
		return nil, fmt.Errorf("ollama embeddings: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("ollama returned no embedding")
	}
	return resp.Data[0].Embedding, nil
}

// cachedEmbedder memoizes vectors by text.
type cachedEmbedder struct {
	next  Embedder
	cache *ristretto.Cache[string, Vector]
}

func newCachedEmbedder(next Embedder) (*cachedEmbedder, error) {
	cache, err := ristretto.NewCache(&ristretto.Config[string, Vector]{
		NumCounters: 10_000,
		MaxCost:     4 << 20,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("create embedding cache: %w", err)
	}
	return &cachedEmbedder{next: next, cache: cache}, nil
}

func (c *cachedEmbedder) Dims() int { return c.next.Dims() }

func (c *cachedEmbedder) Embed(ctx context.Context, text string) (Vector, error) {
	if v, ok := c.cache.Get(text); ok {
		return v, nil
	}
	v, err := c.next.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	c.cache.Set(text, v, int64(len(v)*4))
	return v, nil
}

func (c *cachedEmbedder) Close() {
	c.cache.Close()
}
