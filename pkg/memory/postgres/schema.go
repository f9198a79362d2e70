package postgres

import (
	"context"
	"fmt"
)

// applySchema creates the extension and tables if they do not exist. The
// embedding column dimension is fixed at connect time and must match the
// configured embeddings provider.
func (s *Store) applySchema(ctx context.Context) error {
	statements := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		`CREATE TABLE IF NOT EXISTS extraction_runs (
			id            text PRIMARY KEY,
			ontology_path text NOT NULL,
			model         text NOT NULL,
			created_at    timestamptz NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS run_entities (
			run_id     text NOT NULL REFERENCES extraction_runs(id) ON DELETE CASCADE,
			id         text NOT NULL,
			mention    text NOT NULL,
			types      text[] NOT NULL,
			attributes jsonb,
			PRIMARY KEY (run_id, id)
		)`,
		`CREATE TABLE IF NOT EXISTS run_relations (
			run_id     text NOT NULL REFERENCES extraction_runs(id) ON DELETE CASCADE,
			subject_id text NOT NULL,
			predicate  text NOT NULL,
			object_id  text NOT NULL DEFAULT '',
			literal    jsonb,
			is_literal boolean NOT NULL DEFAULT false
		)`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS run_chunks (
			run_id    text NOT NULL REFERENCES extraction_runs(id) ON DELETE CASCADE,
			ordinal   integer NOT NULL,
			content   text NOT NULL,
			embedding vector(%d),
			PRIMARY KEY (run_id, ordinal)
		)`, s.dims),
		`CREATE INDEX IF NOT EXISTS run_chunks_embedding_hnsw
			ON run_chunks USING hnsw (embedding vector_cosine_ops)`,
	}

	for _, stmt := range statements {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("postgres store: apply schema: %w", err)
		}
	}
	return nil
}
