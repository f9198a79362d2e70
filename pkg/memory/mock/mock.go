// Package mock provides an in-memory memory.Store for tests and for hosts
// that want run inspection without a database.
package mock

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/MrWong99/ontograph/pkg/memory"
)

var _ memory.Store = (*Store)(nil)

// Store is an in-memory implementation of memory.Store. Safe for concurrent
// use.
type Store struct {
	mu   sync.RWMutex
	runs map[string]memory.Run
}

// New creates an empty Store.
func New() *Store {
	return &Store{runs: make(map[string]memory.Run)}
}

// SaveRun implements memory.Store.
func (s *Store) SaveRun(_ context.Context, run memory.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now()
	}
	s.runs[run.ID] = run
	return nil
}

// GetRun implements memory.Store.
func (s *Store) GetRun(_ context.Context, id string) (*memory.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[id]
	if !ok {
		return nil, nil
	}
	return &run, nil
}

// ListRuns implements memory.Store.
func (s *Store) ListRuns(_ context.Context, limit int) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	type entry struct {
		id string
		at time.Time
	}
	entries := make([]entry, 0, len(s.runs))
	for id, run := range s.runs {
		entries = append(entries, entry{id: id, at: run.CreatedAt})
	}
	sort.Slice(entries, func(i, j int) bool {
		if !entries[i].at.Equal(entries[j].at) {
			return entries[i].at.After(entries[j].at)
		}
		return entries[i].id < entries[j].id
	})

	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	ids := make([]string, len(entries))
	for i, e := range entries {
		ids[i] = e.id
	}
	return ids, nil
}

// SearchChunks implements memory.Store with a linear cosine-distance scan.
func (s *Store) SearchChunks(_ context.Context, embedding []float32, topK int) ([]memory.ChunkResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if topK <= 0 {
		topK = 10
	}
	var results []memory.ChunkResult
	for id, run := range s.runs {
		for _, c := range run.Chunks {
			if c.Embedding == nil {
				continue
			}
			results = append(results, memory.ChunkResult{
				RunID:    id,
				Chunk:    c,
				Distance: cosineDistance(embedding, c.Embedding),
			})
		}
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Distance != results[j].Distance {
			return results[i].Distance < results[j].Distance
		}
		return results[i].RunID < results[j].RunID
	})
	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

// Close implements memory.Store.
func (s *Store) Close() {}

func cosineDistance(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return math.MaxFloat64
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return math.MaxFloat64
	}
	return 1 - dot/(math.Sqrt(normA)*math.Sqrt(normB))
}
