// Package postgres implements memory.Store on PostgreSQL with the pgvector
// extension for chunk-embedding similarity search.
//
// Obtain a store via [Connect], which also applies the schema. All methods
// are safe for concurrent use — pgxpool handles connection management.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"

	"github.com/MrWong99/ontograph/pkg/memory"
)

// Store is the PostgreSQL/pgvector implementation of memory.Store.
type Store struct {
	pool *pgxpool.Pool
	dims int
}

var _ memory.Store = (*Store)(nil)

// Connect opens a pool against dsn, applies the schema, and returns the
// store. dims is the embedding dimension of the chunks column and must match
// the embeddings provider in use.
func Connect(ctx context.Context, dsn string, dims int) (*Store, error) {
	if dims < 1 {
		return nil, fmt.Errorf("postgres store: dims must be positive")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres store: connect: %w", err)
	}

	s := &Store{pool: pool, dims: dims}
	if err := s.applySchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// Close implements memory.Store.
func (s *Store) Close() {
	s.pool.Close()
}

// SaveRun implements memory.Store. The run is written in one transaction;
// an existing run with the same ID is fully replaced.
func (s *Store) SaveRun(ctx context.Context, run memory.Run) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres store: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM extraction_runs WHERE id = $1`, run.ID); err != nil {
		return fmt.Errorf("postgres store: replace run: %w", err)
	}

	const insertRun = `
		INSERT INTO extraction_runs (id, ontology_path, model, created_at)
		VALUES ($1, $2, $3, COALESCE(NULLIF($4::timestamptz, '0001-01-01 00:00:00+00'), now()))`
	if _, err := tx.Exec(ctx, insertRun, run.ID, run.OntologyPath, run.Model, run.CreatedAt); err != nil {
		return fmt.Errorf("postgres store: insert run: %w", err)
	}

	for _, e := range run.Entities {
		attrs, err := json.Marshal(e.Attributes)
		if err != nil {
			return fmt.Errorf("postgres store: marshal attributes: %w", err)
		}
		const q = `
			INSERT INTO run_entities (run_id, id, mention, types, attributes)
			VALUES ($1, $2, $3, $4, $5)`
		if _, err := tx.Exec(ctx, q, run.ID, e.ID, e.Mention, e.Types, attrs); err != nil {
			return fmt.Errorf("postgres store: insert entity %s: %w", e.ID, err)
		}
	}

	for _, r := range run.Relations {
		literal, err := json.Marshal(r.Literal)
		if err != nil {
			return fmt.Errorf("postgres store: marshal literal: %w", err)
		}
		const q = `
			INSERT INTO run_relations (run_id, subject_id, predicate, object_id, literal, is_literal)
			VALUES ($1, $2, $3, $4, $5, $6)`
		if _, err := tx.Exec(ctx, q, run.ID, r.SubjectID, r.Predicate, r.ObjectID, literal, r.IsLiteral); err != nil {
			return fmt.Errorf("postgres store: insert relation: %w", err)
		}
	}

	for _, c := range run.Chunks {
		var vec any
		if c.Embedding != nil {
			vec = pgvector.NewVector(c.Embedding)
		}
		const q = `
			INSERT INTO run_chunks (run_id, ordinal, content, embedding)
			VALUES ($1, $2, $3, $4)`
		if _, err := tx.Exec(ctx, q, run.ID, c.Index, c.Text, vec); err != nil {
			return fmt.Errorf("postgres store: insert chunk %d: %w", c.Index, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres store: commit: %w", err)
	}
	return nil
}

// GetRun implements memory.Store.
func (s *Store) GetRun(ctx context.Context, id string) (*memory.Run, error) {
	const q = `
		SELECT id, ontology_path, model, created_at
		FROM   extraction_runs
		WHERE  id = $1`
	row := s.pool.QueryRow(ctx, q, id)

	var run memory.Run
	if err := row.Scan(&run.ID, &run.OntologyPath, &run.Model, &run.CreatedAt); err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("postgres store: get run: %w", err)
	}

	var err error
	if run.Entities, err = s.runEntities(ctx, id); err != nil {
		return nil, err
	}
	if run.Relations, err = s.runRelations(ctx, id); err != nil {
		return nil, err
	}
	if run.Chunks, err = s.runChunks(ctx, id); err != nil {
		return nil, err
	}
	return &run, nil
}

func (s *Store) runEntities(ctx context.Context, runID string) ([]memory.Entity, error) {
	const q = `
		SELECT id, mention, types, attributes
		FROM   run_entities
		WHERE  run_id = $1
		ORDER BY id`
	rows, err := s.pool.Query(ctx, q, runID)
	if err != nil {
		return nil, fmt.Errorf("postgres store: entities: %w", err)
	}
	defer rows.Close()

	var out []memory.Entity
	for rows.Next() {
		var e memory.Entity
		var attrs []byte
		if err := rows.Scan(&e.ID, &e.Mention, &e.Types, &attrs); err != nil {
			return nil, fmt.Errorf("postgres store: scan entity: %w", err)
		}
		if len(attrs) > 0 {
			if err := json.Unmarshal(attrs, &e.Attributes); err != nil {
				return nil, fmt.Errorf("postgres store: decode attributes: %w", err)
			}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) runRelations(ctx context.Context, runID string) ([]memory.Relation, error) {
	const q = `
		SELECT subject_id, predicate, object_id, literal, is_literal
		FROM   run_relations
		WHERE  run_id = $1
		ORDER BY subject_id, predicate, object_id`
	rows, err := s.pool.Query(ctx, q, runID)
	if err != nil {
		return nil, fmt.Errorf("postgres store: relations: %w", err)
	}
	defer rows.Close()

	var out []memory.Relation
	for rows.Next() {
		var r memory.Relation
		var literal []byte
		if err := rows.Scan(&r.SubjectID, &r.Predicate, &r.ObjectID, &literal, &r.IsLiteral); err != nil {
			return nil, fmt.Errorf("postgres store: scan relation: %w", err)
		}
		if r.IsLiteral && len(literal) > 0 {
			if err := json.Unmarshal(literal, &r.Literal); err != nil {
				return nil, fmt.Errorf("postgres store: decode literal: %w", err)
			}
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) runChunks(ctx context.Context, runID string) ([]memory.Chunk, error) {
	const q = `
		SELECT ordinal, content, embedding
		FROM   run_chunks
		WHERE  run_id = $1
		ORDER BY ordinal`
	rows, err := s.pool.Query(ctx, q, runID)
	if err != nil {
		return nil, fmt.Errorf("postgres store: chunks: %w", err)
	}
	defer rows.Close()

	var out []memory.Chunk
	for rows.Next() {
		var c memory.Chunk
		var vec *pgvector.Vector
		if err := rows.Scan(&c.Index, &c.Text, &vec); err != nil {
			return nil, fmt.Errorf("postgres store: scan chunk: %w", err)
		}
		if vec != nil {
			c.Embedding = vec.Slice()
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// ListRuns implements memory.Store.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 50
	}
	const q = `
		SELECT id FROM extraction_runs
		ORDER BY created_at DESC
		LIMIT $1`
	rows, err := s.pool.Query(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres store: list runs: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("postgres store: scan run id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// SearchChunks implements memory.Store using cosine distance over the HNSW
// index.
func (s *Store) SearchChunks(ctx context.Context, embedding []float32, topK int) ([]memory.ChunkResult, error) {
	if topK <= 0 {
		topK = 10
	}
	queryVec := pgvector.NewVector(embedding)

	const q = `
		SELECT run_id, ordinal, content, embedding <=> $1 AS distance
		FROM   run_chunks
		WHERE  embedding IS NOT NULL
		ORDER BY embedding <=> $1
		LIMIT $2`
	rows, err := s.pool.Query(ctx, q, queryVec, topK)
	if err != nil {
		return nil, fmt.Errorf("postgres store: search chunks: %w", err)
	}
	defer rows.Close()

	var out []memory.ChunkResult
	for rows.Next() {
		var r memory.ChunkResult
		if err := rows.Scan(&r.RunID, &r.Chunk.Index, &r.Chunk.Text, &r.Distance); err != nil {
			return nil, fmt.Errorf("postgres store: scan chunk result: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
