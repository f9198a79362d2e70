package pipeline

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/ontograph/internal/chunk"
	"github.com/MrWong99/ontograph/internal/emit"
	"github.com/MrWong99/ontograph/internal/extract"
	"github.com/MrWong99/ontograph/internal/gateway"
	"github.com/MrWong99/ontograph/internal/ground"
	"github.com/MrWong99/ontograph/internal/index"
	"github.com/MrWong99/ontograph/internal/ontology"
	"github.com/MrWong99/ontograph/internal/resolve"
	embmock "github.com/MrWong99/ontograph/pkg/provider/embeddings/mock"
	llmmock "github.com/MrWong99/ontograph/pkg/provider/llm/mock"
)

const footballTTL = `
@prefix rdfs: <http://www.w3.org/2000/01/rdf-schema#> .
@prefix owl:  <http://www.w3.org/2002/07/owl#> .
@prefix skos: <http://www.w3.org/2004/02/skos/core#> .
@prefix xsd:  <http://www.w3.org/2001/XMLSchema#> .
@prefix :     <http://example.org/football/> .

:Player a owl:Class ; rdfs:label "Player" ;
    skos:definition "A person who plays association football." .
:Team a owl:Class ; rdfs:label "Team" ;
    skos:definition "A football club or national side." .
:playsFor a owl:ObjectProperty ; rdfs:label "plays for" ;
    rdfs:domain :Player ; rdfs:range :Team .
`

// stage responses reused across tests.
const (
	mentionsResp = `[{"id": "cristiano_ronaldo", "mention": "Cristiano Ronaldo", "context": "Cristiano Ronaldo plays association football"},
		{"id": "al_nassr", "mention": "Al-Nassr", "context": "Al-Nassr is a football club team"}]`
	entitiesResp = `[{"id": "cristiano_ronaldo", "mention": "Cristiano Ronaldo", "types": ["http://example.org/football/Player"]},
		{"id": "al_nassr", "mention": "Al-Nassr", "types": ["http://example.org/football/Team"]}]`
	relationsResp = `[{"subject_id": "cristiano_ronaldo", "predicate": "http://example.org/football/playsFor", "object": "al_nassr"}]`
	groundedResp  = `[{"index": 0, "grounded": true, "confidence": 0.95}]`
	rejectedResp  = `[{"index": 0, "grounded": false, "confidence": 0.9}]`
)

func newTestPipeline(t *testing.T, p *llmmock.Provider) *Pipeline {
	t.Helper()
	onto, err := ontology.Parse(strings.NewReader(footballTTL))
	if err != nil {
		t.Fatalf("parse ontology: %v", err)
	}
	idx, err := index.Build(context.Background(), onto, embmock.NewHash(32), index.Options{})
	if err != nil {
		t.Fatalf("build index: %v", err)
	}
	gw := gateway.New(p, gateway.Config{
		MaxAttempts:       2,
		InitialDelay:      time.Millisecond,
		MaxDelay:          time.Millisecond,
		AttemptTimeout:    time.Second,
		RequestsPerSecond: 1000,
		RequestsPerMinute: 60000,
	}, nil)
	extractor := extract.New(gw, idx, onto, extract.Options{TopKClasses: 4, TopKProperties: 4}, nil)
	grounder := ground.New(gw, ground.Config{ConfidenceThreshold: 0.8, BatchSize: 5}, nil)
	emitter := emit.New(emit.Config{
		BaseNamespace: "http://example.org/kg/",
		Prefixes:      map[string]string{"ex": "http://example.org/kg/", "fb": "http://example.org/football/"},
	})

	return New(extractor, grounder, onto, emitter, Config{
		Concurrency: 1, // deterministic LLM call order for scripted mocks
		Chunking:    chunk.Options{MaxChars: 500, OverlapSentences: 0, PreserveSentences: true},
		Resolver:    resolve.DefaultConfig(),
	}, nil)
}

// S1 — happy path: one sentence, two entities, one grounded relation.
func TestRun_HappyPath(t *testing.T) {
	p := &llmmock.Provider{Responses: []string{mentionsResp, entitiesResp, relationsResp, groundedResp}}
	pipe := newTestPipeline(t, p)

	res, err := pipe.Run(context.Background(), "Cristiano Ronaldo plays for Al-Nassr.")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(res.Graph.Entities) != 2 {
		t.Fatalf("entities = %d, want 2", len(res.Graph.Entities))
	}
	if len(res.Graph.Relations) != 1 {
		t.Fatalf("relations = %d, want 1", len(res.Graph.Relations))
	}
	for _, want := range []string{
		"ex:cristiano_ronaldo rdf:type fb:Player .",
		"ex:al_nassr rdf:type fb:Team .",
		"ex:cristiano_ronaldo fb:playsFor ex:al_nassr .",
	} {
		if !strings.Contains(res.Turtle, want) {
			t.Errorf("turtle missing %q:\n%s", want, res.Turtle)
		}
	}
	if res.Stats.RelationCandidates != 1 || res.Stats.RelationsKept != 1 {
		t.Errorf("stats = %+v", res.Stats)
	}
}

// S4 — grounding rejection: the candidate relation is dropped, entities stay.
func TestRun_GroundingRejectsRelation(t *testing.T) {
	p := &llmmock.Provider{Responses: []string{mentionsResp, entitiesResp, relationsResp, rejectedResp}}
	pipe := newTestPipeline(t, p)

	res, err := pipe.Run(context.Background(), "Cristiano Ronaldo plays for Al-Nassr.")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Graph.Relations) != 0 {
		t.Errorf("relations = %v, want none after rejection", res.Graph.Relations)
	}
	if len(res.Graph.Entities) != 2 {
		t.Errorf("entities = %d, want 2 preserved", len(res.Graph.Entities))
	}
	if res.Stats.RelationsKept != 0 || res.Stats.RelationCandidates != 1 {
		t.Errorf("stats = %+v", res.Stats)
	}
}

// S6 — failure isolation: chunk 0 fails every attempt, chunk 1 contributes.
func TestRun_ChunkFailureIsolated(t *testing.T) {
	p := &llmmock.Provider{Responses: []string{
		// Chunk 0, stage A: both attempts structurally invalid.
		`"garbage"`, `"garbage"`,
		// Chunk 1: mentions then entities (single entity, stage C skipped).
		`[{"id": "al_nassr", "mention": "Al-Nassr", "context": "Al-Nassr is a football club team"}]`,
		`[{"id": "al_nassr", "mention": "Al-Nassr", "types": ["http://example.org/football/Team"]}]`,
	}}
	pipe := newTestPipeline(t, p)
	pipe.cfg.Chunking = chunk.Options{MaxChars: 40, OverlapSentences: 0, PreserveSentences: true}

	res, err := pipe.Run(context.Background(), "First sentence mentions nothing useful. Al-Nassr signed a striker.")
	if err != nil {
		t.Fatalf("Run: %v (failed chunks must not fail the run)", err)
	}
	if res.Stats.ChunksTotal != 2 {
		t.Fatalf("chunks = %d, want 2", res.Stats.ChunksTotal)
	}
	if res.Stats.ChunksFailed != 1 {
		t.Errorf("failed = %d, want 1", res.Stats.ChunksFailed)
	}
	if len(res.Graph.Entities) != 1 || res.Graph.Entities[0].ID != "al_nassr" {
		t.Errorf("entities = %+v, want chunk 1's contribution", res.Graph.Entities)
	}
}

// Coreference across chunks: "Eze" and "Eberechi Eze" resolve to one entity.
func TestRun_CrossChunkCoreference(t *testing.T) {
	p := &llmmock.Provider{Responses: []string{
		// Chunk 0.
		`[{"id": "eze", "mention": "Eze", "context": "Eze plays association football"}]`,
		`[{"id": "eze", "mention": "Eze", "types": ["http://example.org/football/Player"]}]`,
		// Chunk 1.
		`[{"id": "eberechi_eze", "mention": "Eberechi Eze", "context": "Eberechi Eze plays association football"}]`,
		`[{"id": "eberechi_eze", "mention": "Eberechi Eze", "types": ["http://example.org/football/Player"]}]`,
	}}
	pipe := newTestPipeline(t, p)
	pipe.cfg.Chunking = chunk.Options{MaxChars: 20, OverlapSentences: 0, PreserveSentences: true}

	res, err := pipe.Run(context.Background(), "Eze scored today. Eberechi Eze celebrated.")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Graph.Entities) != 1 {
		t.Fatalf("entities = %+v, want 1 after resolution", res.Graph.Entities)
	}
	e := res.Graph.Entities[0]
	if e.ID != "eze" || e.Mention != "Eberechi Eze" {
		t.Errorf("canonical entity = %+v", e)
	}
}

func TestRun_EmptyDocument(t *testing.T) {
	p := &llmmock.Provider{}
	pipe := newTestPipeline(t, p)

	res, err := pipe.Run(context.Background(), "")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !res.Graph.IsEmpty() {
		t.Errorf("graph = %+v, want empty", res.Graph)
	}
	if !strings.Contains(res.Turtle, "@prefix") {
		t.Error("turtle missing prefix table")
	}
	if p.CallCount() != 0 {
		t.Errorf("LLM calls = %d, want 0", p.CallCount())
	}
}

func TestRun_CancelledContext(t *testing.T) {
	p := &llmmock.Provider{Responses: []string{mentionsResp}}
	pipe := newTestPipeline(t, p)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := pipe.Run(ctx, "Cristiano Ronaldo plays for Al-Nassr.")
	if err == nil {
		t.Fatal("expected cancellation error")
	}
}
