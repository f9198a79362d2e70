// Package memory defines the optional persistence layer for extraction
// results.
//
// A [Store] records finished runs — the resolved entities and relations plus
// the source chunks with their embeddings — so that downstream consumers can
// look up prior extractions and run semantic search over extracted source
// text. The pipeline itself never requires a store; persistence is wired in
// by the host only when configured.
//
// The interfaces are public so alternative backends (Postgres/pgvector,
// in-memory, …) can be supplied without depending on pipeline internals.
// Every implementation must be safe for concurrent use.
package memory

import (
	"context"
	"time"
)

// Entity is a persisted knowledge-graph entity.
type Entity struct {
	// ID is the canonical entity identifier within its run.
	ID string

	// Mention is the longest surface form observed.
	Mention string

	// Types holds the ontology class IRIs.
	Types []string

	// Attributes maps datatype-property IRIs to literal values.
	Attributes map[string]any
}

// Relation is a persisted statement. Exactly one of ObjectID and Literal is
// meaningful, discriminated by IsLiteral.
type Relation struct {
	SubjectID string
	Predicate string

	// ObjectID references an entity when IsLiteral is false.
	ObjectID string

	// Literal carries the value when IsLiteral is true.
	Literal any

	IsLiteral bool
}

// Chunk is one source text window with its embedding, persisted for
// semantic lookup of where a fact came from.
type Chunk struct {
	// Index is the chunk's document-order position.
	Index int

	// Text is the chunk content.
	Text string

	// Embedding is the chunk's vector representation. May be nil when the
	// host does not embed chunks.
	Embedding []float32
}

// Run is one completed extraction.
type Run struct {
	// ID uniquely identifies the run (e.g., a UUID chosen by the host).
	ID string

	// OntologyPath records which ontology produced the run.
	OntologyPath string

	// Model records the LLM used.
	Model string

	// CreatedAt is when the run was stored.
	CreatedAt time.Time

	Entities  []Entity
	Relations []Relation
	Chunks    []Chunk
}

// ChunkResult pairs a retrieved chunk with its vector-space distance from
// the query embedding. Lower is more similar.
type ChunkResult struct {
	RunID    string
	Chunk    Chunk
	Distance float64
}

// Store persists and retrieves extraction runs.
type Store interface {
	// SaveRun stores a complete run. Saving a run whose ID already exists
	// replaces it.
	SaveRun(ctx context.Context, run Run) error

	// GetRun retrieves a run by ID. Returns (nil, nil) when absent.
	GetRun(ctx context.Context, id string) (*Run, error)

	// ListRuns returns run IDs ordered by creation time descending.
	ListRuns(ctx context.Context, limit int) ([]string, error)

	// SearchChunks finds the topK stored chunks closest to the query
	// embedding across all runs.
	SearchChunks(ctx context.Context, embedding []float32, topK int) ([]ChunkResult, error)

	// Close releases backend resources.
	Close()
}
