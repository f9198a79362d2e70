// Package embeddings defines the Provider interface for vector embedding
// backends.
//
// The hybrid ontology index uses embeddings for its dense half: one averaged
// vector per ontology document at build time, one vector per mention query at
// search time. Determinism of retrieval therefore depends on the backend —
// prefer a locally hosted model (see the ollama subpackage) when reproducible
// ontology slices matter.
//
// Implementations must be safe for concurrent use.
package embeddings

import "context"

// Provider is the abstraction over any text-embedding backend.
//
// All embedding vectors returned by a single Provider instance must share the
// same dimensionality (returned by Dimensions). Callers must not mix vectors
// from different Provider instances in the same similarity computation unless
// both use the same model and space.
type Provider interface {
	// Embed computes the embedding vector for a single text string. Returns
	// a float32 slice of length Dimensions() or an error if the request
	// fails or ctx is cancelled.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch computes embedding vectors for a slice of text strings in a
	// single provider call. The returned slice has the same length as texts
	// and the i-th element corresponds to texts[i].
	//
	// Returns an error if any single embedding fails or if ctx is cancelled.
	// Partial results are not returned — on error the entire slice is nil.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the fixed length of every embedding vector produced
	// by this provider.
	Dimensions() int

	// ModelID returns the provider-specific model identifier, for logging
	// and for checking that index-time and query-time models agree.
	ModelID() string
}
