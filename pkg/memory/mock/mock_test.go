package mock

import (
	"context"
	"testing"
	"time"

	"github.com/MrWong99/ontograph/pkg/memory"
)

func TestStore_SaveAndGet(t *testing.T) {
	s := New()
	ctx := context.Background()

	run := memory.Run{
		ID:    "run1",
		Model: "test-model",
		Entities: []memory.Entity{
			{ID: "ronaldo", Mention: "Cristiano Ronaldo", Types: []string{"http://o/Player"}},
		},
		Relations: []memory.Relation{
			{SubjectID: "ronaldo", Predicate: "http://o/playsFor", ObjectID: "al_nassr"},
		},
	}
	if err := s.SaveRun(ctx, run); err != nil {
		t.Fatalf("SaveRun: %v", err)
	}

	got, err := s.GetRun(ctx, "run1")
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if got == nil || len(got.Entities) != 1 || got.Entities[0].ID != "ronaldo" {
		t.Errorf("got = %+v", got)
	}

	missing, err := s.GetRun(ctx, "nope")
	if err != nil || missing != nil {
		t.Errorf("missing run = %v, %v; want nil, nil", missing, err)
	}
}

func TestStore_ListRunsNewestFirst(t *testing.T) {
	s := New()
	ctx := context.Background()

	old := memory.Run{ID: "old", CreatedAt: time.Now().Add(-time.Hour)}
	recent := memory.Run{ID: "recent", CreatedAt: time.Now()}
	if err := s.SaveRun(ctx, old); err != nil {
		t.Fatal(err)
	}
	if err := s.SaveRun(ctx, recent); err != nil {
		t.Fatal(err)
	}

	ids, err := s.ListRuns(ctx, 10)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(ids) != 2 || ids[0] != "recent" {
		t.Errorf("ids = %v, want recent first", ids)
	}
}

func TestStore_SearchChunksRanksBySimilarity(t *testing.T) {
	s := New()
	ctx := context.Background()

	run := memory.Run{
		ID: "run1",
		Chunks: []memory.Chunk{
			{Index: 0, Text: "close", Embedding: []float32{1, 0}},
			{Index: 1, Text: "far", Embedding: []float32{0, 1}},
		},
	}
	if err := s.SaveRun(ctx, run); err != nil {
		t.Fatal(err)
	}

	results, err := s.SearchChunks(ctx, []float32{1, 0}, 2)
	if err != nil {
		t.Fatalf("SearchChunks: %v", err)
	}
	if len(results) != 2 || results[0].Chunk.Text != "close" {
		t.Errorf("results = %+v", results)
	}
}
