// Package ollama provides an embeddings provider backed by a local Ollama
// server.
//
// Ollama (https://ollama.com) hosts local embedding models such as
// nomic-embed-text, mxbai-embed-large, and all-minilm. A locally hosted
// model is the recommended backend for the ontology index: it is
// deterministic across runs and keeps index construction off the metered
// LLM budget.
//
//	p, err := ollama.New("", "nomic-embed-text") // http://localhost:11434
//	vec, err := p.Embed(ctx, "striker scored a goal")
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/MrWong99/ontograph/pkg/provider/embeddings"
)

// DefaultBaseURL is the default base URL for a locally running Ollama instance.
const DefaultBaseURL = "http://localhost:11434"

var _ embeddings.Provider = (*Provider)(nil)

// knownDimensions maps recognised model names to their vector lengths,
// avoiding a probe request for common models.
var knownDimensions = map[string]int{
	"nomic-embed-text":       768,
	"mxbai-embed-large":      1024,
	"all-minilm":             384,
	"snowflake-arctic-embed": 1024,
}

// Provider implements embeddings.Provider using Ollama's /api/embed endpoint.
//
// Dimension resolution order: the WithDimensions option, the built-in
// knownDimensions table, then a one-time probe embed on first use.
//
// Provider is safe for concurrent use.
type Provider struct {
	baseURL    string
	model      string
	httpClient *http.Client

	dimensions int
	detectOnce sync.Once
	detectErr  error
}

type config struct {
	timeout    time.Duration
	dimensions int
}

// Option is a functional option for Provider.
type Option func(*config)

// WithTimeout sets a per-request HTTP timeout on the underlying client.
func WithTimeout(d time.Duration) Option {
	return func(c *config) { c.timeout = d }
}

// WithDimensions pre-sets the embedding dimension, bypassing the look-up
// table and the probe request.
func WithDimensions(dims int) Option {
	return func(c *config) { c.dimensions = dims }
}

// New constructs an Ollama Provider. baseURL defaults to [DefaultBaseURL]
// when empty; model must not be empty.
func New(baseURL, model string, opts ...Option) (*Provider, error) {
	if model == "" {
		return nil, fmt.Errorf("ollama embeddings: model must not be empty")
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	baseURL = strings.TrimRight(baseURL, "/")

	cfg := &config{}
	for _, o := range opts {
		o(cfg)
	}

	httpClient := &http.Client{}
	if cfg.timeout > 0 {
		httpClient.Timeout = cfg.timeout
	}

	p := &Provider{
		baseURL:    baseURL,
		model:      model,
		httpClient: httpClient,
	}
	if cfg.dimensions > 0 {
		p.dimensions = cfg.dimensions
	} else if dims, ok := knownDimensions[model]; ok {
		p.dimensions = dims
	}
	return p, nil
}

// embedRequest is the JSON body for POST /api/embed.
type embedRequest struct {
	Model string `json:"model"`
	Input any    `json:"input"`
}

// embedResponse is the JSON response from POST /api/embed.
type embedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// Embed implements embeddings.Provider.
func (p *Provider) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := p.post(ctx, embedRequest{Model: p.model, Input: text})
	if err != nil {
		return nil, err
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("ollama embeddings: expected 1 vector, got %d", len(vecs))
	}
	return vecs[0], nil
}

// EmbedBatch implements embeddings.Provider.
func (p *Provider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	vecs, err := p.post(ctx, embedRequest{Model: p.model, Input: texts})
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(texts) {
		return nil, fmt.Errorf("ollama embeddings: expected %d vectors, got %d", len(texts), len(vecs))
	}
	return vecs, nil
}

// Dimensions implements embeddings.Provider. For unrecognised models without
// a preset dimension, a single probe embed is issued on first call; a probe
// failure is cached and reported as 0.
func (p *Provider) Dimensions() int {
	if p.dimensions > 0 {
		return p.dimensions
	}
	p.detectOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		vec, err := p.Embed(ctx, "dimension probe")
		if err != nil {
			p.detectErr = err
			return
		}
		p.dimensions = len(vec)
	})
	return p.dimensions
}

// ModelID implements embeddings.Provider.
func (p *Provider) ModelID() string {
	return p.model
}

func (p *Provider) post(ctx context.Context, reqBody embedRequest) ([][]float32, error) {
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("ollama embeddings: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/api/embed", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("ollama embeddings: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ollama embeddings: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ollama embeddings: server returned %s", resp.Status)
	}

	var decoded embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("ollama embeddings: decode response: %w", err)
	}
	return decoded.Embeddings, nil
}
