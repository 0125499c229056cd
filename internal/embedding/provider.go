// Package embedding turns job names into a semantic distance matrix using a
// text embedding model.
package embedding

import (
	"context"
	"fmt"
	"math"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
	"golang.org/x/time/rate"

	"lineplan/internal/metrics"
)

// Options select and tune the embedding backend.
type Options struct {
	Provider          string
	Model             string
	ServerURL         string
	Token             string
	RequestsPerSecond float64
	BatchSize         int
}

// Provider computes cosine distances between job name embeddings.
type Provider struct {
	name     string
	embedder embeddings.Embedder
	limiter  *rate.Limiter
	batch    int
}

// New builds a provider for opts.Provider ("ollama" or "openai").
func New(opts Options) (*Provider, error) {
	var client embeddings.EmbedderClient
	switch opts.Provider {
	case "ollama":
		o := []ollama.Option{}
		if opts.Model != "" {
			o = append(o, ollama.WithModel(opts.Model))
		}
		if opts.ServerURL != "" {
			o = append(o, ollama.WithServerURL(opts.ServerURL))
		}
		llm, err := ollama.New(o...)
		if err != nil {
			return nil, fmt.Errorf("ollama client: %w", err)
		}
		client = llm
	case "openai":
		o := []openai.Option{openai.WithToken(opts.Token)}
		if opts.Model != "" {
			o = append(o, openai.WithEmbeddingModel(opts.Model))
		}
		if opts.ServerURL != "" {
			o = append(o, openai.WithBaseURL(opts.ServerURL))
		}
		llm, err := openai.New(o...)
		if err != nil {
			return nil, fmt.Errorf("openai client: %w", err)
		}
		client = llm
	default:
		return nil, fmt.Errorf("unknown embeddings provider %q", opts.Provider)
	}
	emb, err := embeddings.NewEmbedder(client)
	if err != nil {
		return nil, fmt.Errorf("embedder: %w", err)
	}
	return NewWithEmbedder(opts.Provider, emb, opts.RequestsPerSecond, opts.BatchSize), nil
}

// NewWithEmbedder wraps an existing embedder. rps <= 0 disables rate limiting.
func NewWithEmbedder(name string, e embeddings.Embedder, rps float64, batch int) *Provider {
	lim := rate.NewLimiter(rate.Inf, 1)
	if rps > 0 {
		lim = rate.NewLimiter(rate.Limit(rps), 1)
	}
	if batch <= 0 {
		batch = 32
	}
	return &Provider{name: name, embedder: e, limiter: lim, batch: batch}
}

// Distances embeds names in batches and returns the pairwise cosine distance
// matrix, symmetric with a zero diagonal.
func (p *Provider) Distances(ctx context.Context, names []string) ([][]float64, error) {
	vecs := make([][]float32, 0, len(names))
	for lo := 0; lo < len(names); lo += p.batch {
		hi := min(lo+p.batch, len(names))
		if err := p.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		out, err := p.embedder.EmbedDocuments(ctx, names[lo:hi])
		if err != nil {
			metrics.EmbeddingRequests.WithLabelValues(p.name, "error").Inc()
			return nil, fmt.Errorf("embed %d names: %w", hi-lo, err)
		}
		metrics.EmbeddingRequests.WithLabelValues(p.name, "ok").Inc()
		if len(out) != hi-lo {
			return nil, fmt.Errorf("embed: got %d vectors for %d names", len(out), hi-lo)
		}
		vecs = append(vecs, out...)
	}
	dist := make([][]float64, len(names))
	for i := range dist {
		dist[i] = make([]float64, len(names))
	}
	for i := range vecs {
		for j := i + 1; j < len(vecs); j++ {
			d := CosineDistance(vecs[i], vecs[j])
			dist[i][j], dist[j][i] = d, d
		}
	}
	return dist, nil
}

// CosineDistance is 1 − cosine similarity clamped to [0, 2]. A zero vector is at distance 1.
func CosineDistance(a, b []float32) float64 {
	if len(a) != len(b) {
		return 1
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 1
	}
	d := 1 - dot/(math.Sqrt(na)*math.Sqrt(nb))
	return math.Min(2, math.Max(0, d))
}
