package citations

import (
	"context"
	"fmt"
	"strings"

	"github.com/mikeboe/widget-studio/pkg/widget"
)

// Searcher finds stored chunks near an embedding.
type Searcher interface {
	Search(ctx context.Context, embedding []float32, q SearchQuery) ([]Match, error)
}

// Provider looks up the articles behind an answer. It returns at most one
// citation per article URL.
type Provider struct {
	embedder Embedder
	searcher Searcher
	topK     int
	minScore float64
	domains  []string
}

type Option func(*Provider)

func WithTopK(k int) Option {
	return func(p *Provider) {
		if k > 0 {
			p.topK = k
		}
	}
}

// WithMinScore drops matches less similar than score.
func WithMinScore(score float64) Option {
	return func(p *Provider) { p.minScore = score }
}

// WithDomains restricts citations to the given publisher domains.
func WithDomains(domains ...string) Option {
	return func(p *Provider) {
		p.domains = append([]string(nil), domains...)
	}
}

func NewProvider(embedder Embedder, searcher Searcher, opts ...Option) *Provider {
	p := &Provider{embedder: embedder, searcher: searcher, topK: 4}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Sources embeds the query together with the answer so the hits reflect
// what was actually said.
func (p *Provider) Sources(ctx context.Context, query, answer string) ([]widget.Citation, error) {
	vec, err := p.embedder.EmbedText(ctx, strings.TrimSpace(query+"\n\n"+answer))
	if err != nil {
		return nil, fmt.Errorf("failed to embed answer: %w", err)
	}
	// several chunks of one article can match, so over-fetch before deduping
	matches, err := p.searcher.Search(ctx, vec, SearchQuery{TopK: p.topK * 3, Domains: p.domains, MinScore: p.minScore})
	if err != nil {
		return nil, fmt.Errorf("failed to search citations: %w", err)
	}

	seen := make(map[string]bool)
	var out []widget.Citation
	for _, m := range matches {
		c := toCitation(m)
		if c.URL == "" || seen[c.URL] {
			continue
		}
		seen[c.URL] = true
		out = append(out, c)
		if len(out) == p.topK {
			break
		}
	}
	return out, nil
}

func toCitation(m Match) widget.Citation {
	a := m.Chunk.Article
	return widget.Citation{
		ID:            m.Chunk.ID,
		Title:         a.Title,
		URL:           a.URL,
		Domain:        a.Domain,
		PublishedDate: a.PublishedDate,
		Excerpt:       a.Excerpt,
		Thumbnail:     a.Thumbnail,
		Score:         m.Score,
	}
}
