// Package mock provides test doubles for the embeddings.Provider interface.
//
// [Provider] returns pre-canned vectors and records calls. [Hash] is a
// deterministic stand-in model: it derives a fixed-dimension vector from a
// SHA-256 digest of the lowercased input, so equal texts always embed
// equally and tests never need a live model.
package mock

import (
	"context"
	"crypto/sha256"
	"strings"
	"sync"

	"github.com/MrWong99/ontograph/pkg/provider/embeddings"
)

var (
	_ embeddings.Provider = (*Provider)(nil)
	_ embeddings.Provider = (*Hash)(nil)
)

// EmbedCall records a single invocation of Embed.
type EmbedCall struct {
	// Text is the string passed to Embed.
	Text string
}

// EmbedBatchCall records a single invocation of EmbedBatch.
type EmbedBatchCall struct {
	// Texts is a copy of the string slice passed to EmbedBatch.
	Texts []string
}

// Provider is a scriptable mock implementation of embeddings.Provider.
type Provider struct {
	mu sync.Mutex

	// EmbedResult is returned by Embed. If nil, a zero vector of
	// DimensionsValue length is returned.
	EmbedResult []float32

	// EmbedErr, if non-nil, is returned as the error from Embed.
	EmbedErr error

	// EmbedBatchResult is returned by EmbedBatch. If nil, zero vectors are
	// returned, one per input text.
	EmbedBatchResult [][]float32

	// EmbedBatchErr, if non-nil, is returned as the error from EmbedBatch.
	EmbedBatchErr error

	// DimensionsValue is returned by Dimensions.
	DimensionsValue int

	// ModelIDValue is returned by ModelID.
	ModelIDValue string

	// EmbedCalls and EmbedBatchCalls record invocations in order.
	EmbedCalls      []EmbedCall
	EmbedBatchCalls []EmbedBatchCall
}

// Embed implements embeddings.Provider.
func (p *Provider) Embed(_ context.Context, text string) ([]float32, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.EmbedCalls = append(p.EmbedCalls, EmbedCall{Text: text})
	if p.EmbedErr != nil {
		return nil, p.EmbedErr
	}
	if p.EmbedResult != nil {
		return p.EmbedResult, nil
	}
	return make([]float32, p.DimensionsValue), nil
}

// EmbedBatch implements embeddings.Provider.
func (p *Provider) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.EmbedBatchCalls = append(p.EmbedBatchCalls, EmbedBatchCall{Texts: append([]string(nil), texts...)})
	if p.EmbedBatchErr != nil {
		return nil, p.EmbedBatchErr
	}
	if p.EmbedBatchResult != nil {
		return p.EmbedBatchResult, nil
	}
	out := make([][]float32, len(texts))
	for i := range out {
		out[i] = make([]float32, p.DimensionsValue)
	}
	return out, nil
}

// Dimensions implements embeddings.Provider.
func (p *Provider) Dimensions() int { return p.DimensionsValue }

// ModelID implements embeddings.Provider.
func (p *Provider) ModelID() string { return p.ModelIDValue }

// Hash is a deterministic embeddings.Provider that spreads a SHA-256 digest
// of the lowercased token set across a fixed-dimension vector. Texts sharing
// tokens produce correlated vectors, which is enough signal for retrieval
// tests.
type Hash struct {
	// Dims is the vector dimension. Must be positive.
	Dims int
}

// NewHash returns a Hash provider with the given dimension.
func NewHash(dims int) *Hash {
	return &Hash{Dims: dims}
}

// Embed implements embeddings.Provider.
func (h *Hash) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, h.Dims)
	for _, tok := range strings.Fields(strings.ToLower(text)) {
		sum := sha256.Sum256([]byte(tok))
		for i := 0; i < h.Dims; i++ {
			b := sum[i%len(sum)]
			// Center each byte contribution around zero.
			vec[i] += float32(int(b)-128) / 128
		}
	}
	return vec, nil
}

// EmbedBatch implements embeddings.Provider.
func (h *Hash) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		vec, err := h.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

// Dimensions implements embeddings.Provider.
func (h *Hash) Dimensions() int { return h.Dims }

// ModelID implements embeddings.Provider.
func (h *Hash) ModelID() string { return "mock-hash" }
