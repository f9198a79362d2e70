package extract

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/ontograph/internal/chunk"
	"github.com/MrWong99/ontograph/internal/gateway"
	"github.com/MrWong99/ontograph/internal/index"
	"github.com/MrWong99/ontograph/internal/ontology"
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
    rdfs:domain :Player ; rdfs:range :Team ;
    skos:definition "Connects a player to their club." .
:age a owl:DatatypeProperty ; rdfs:label "age" ;
    rdfs:domain :Player ; rdfs:range xsd:integer .
`

func newTestExtractor(t *testing.T, llmProvider *llmmock.Provider) *Extractor {
	t.Helper()
	onto, err := ontology.Parse(strings.NewReader(footballTTL))
	if err != nil {
		t.Fatalf("parse ontology: %v", err)
	}
	idx, err := index.Build(context.Background(), onto, embmock.NewHash(32), index.Options{})
	if err != nil {
		t.Fatalf("build index: %v", err)
	}
	gw := gateway.New(llmProvider, gateway.Config{
		MaxAttempts:       2,
		InitialDelay:      time.Millisecond,
		MaxDelay:          time.Millisecond,
		AttemptTimeout:    time.Second,
		RequestsPerSecond: 1000,
		RequestsPerMinute: 60000,
	}, nil)
	return New(gw, idx, onto, Options{TopKClasses: 4, TopKProperties: 4}, nil)
}

func testChunk(text string) chunk.TextChunk {
	return chunk.TextChunk{Index: 0, Text: text, StartOffset: 0, EndOffset: len(text)}
}

func TestExtractChunk_HappyPath(t *testing.T) {
	p := &llmmock.Provider{Responses: []string{
		// Stage A.
		`[{"id": "cristiano_ronaldo", "mention": "Cristiano Ronaldo", "context": "Cristiano Ronaldo plays association football"},
		  {"id": "al_nassr", "mention": "Al-Nassr", "context": "Al-Nassr is a football club team"}]`,
		// Stage B.
		`[{"id": "cristiano_ronaldo", "mention": "Cristiano Ronaldo", "types": ["http://example.org/football/Player"]},
		  {"id": "al_nassr", "mention": "Al-Nassr", "types": ["http://example.org/football/Team"]}]`,
		// Stage C.
		`[{"subject_id": "cristiano_ronaldo", "predicate": "http://example.org/football/playsFor", "object": "al_nassr"}]`,
	}}
	e := newTestExtractor(t, p)

	res, err := e.ExtractChunk(context.Background(), testChunk("Cristiano Ronaldo plays for Al-Nassr."))
	if err != nil {
		t.Fatalf("ExtractChunk: %v", err)
	}
	if len(res.Entities) != 2 {
		t.Fatalf("entities = %d, want 2", len(res.Entities))
	}
	if len(res.Relations) != 1 {
		t.Fatalf("relations = %d, want 1", len(res.Relations))
	}
	rel := res.Relations[0]
	if rel.SubjectID != "cristiano_ronaldo" || rel.Object.EntityID() != "al_nassr" {
		t.Errorf("relation = %+v", rel)
	}
	if ontology.LocalName(rel.Predicate) != "playsFor" {
		t.Errorf("predicate = %s", rel.Predicate)
	}
	if p.CallCount() != 3 {
		t.Errorf("LLM calls = %d, want 3 (A, B, C)", p.CallCount())
	}
}

func TestExtractChunk_GeneratesMissingIDs(t *testing.T) {
	p := &llmmock.Provider{Responses: []string{
		`[{"id": "", "mention": "Eberechi Eze", "context": "Eze scored in the football match"}]`,
		`[{"id": "eberechi_eze", "mention": "Eberechi Eze", "types": ["http://example.org/football/Player"]}]`,
	}}
	e := newTestExtractor(t, p)

	res, err := e.ExtractChunk(context.Background(), testChunk("Eberechi Eze scored."))
	if err != nil {
		t.Fatalf("ExtractChunk: %v", err)
	}
	// Single entity: stage C skipped, only two LLM calls.
	if p.CallCount() != 2 {
		t.Errorf("LLM calls = %d, want 2", p.CallCount())
	}
	if len(res.Entities) != 1 || len(res.Relations) != 0 {
		t.Errorf("result = %+v", res)
	}
	// The stage-B prompt must carry the generated id's mention query results;
	// verify the mention survived with a generated id by checking the prompt
	// listed the Player class.
	stageB := p.Calls[1].Req
	if !strings.Contains(stageB.Messages[0].Content, "Player") {
		t.Error("stage B prompt missing retrieved class slice")
	}
}

func TestExtractChunk_ZeroMentionsShortCircuits(t *testing.T) {
	p := &llmmock.Provider{Responses: []string{`[]`}}
	e := newTestExtractor(t, p)

	res, err := e.ExtractChunk(context.Background(), testChunk("Nothing here."))
	if err != nil {
		t.Fatalf("ExtractChunk: %v", err)
	}
	if len(res.Entities) != 0 || len(res.Relations) != 0 {
		t.Errorf("result = %+v, want empty", res)
	}
	if p.CallCount() != 1 {
		t.Errorf("LLM calls = %d, want 1", p.CallCount())
	}
}

func TestExtractChunk_ZeroEntitiesShortCircuits(t *testing.T) {
	p := &llmmock.Provider{Responses: []string{
		`[{"id": "x", "mention": "Something", "context": "something about the football player"}]`,
		`[]`,
	}}
	e := newTestExtractor(t, p)

	res, err := e.ExtractChunk(context.Background(), testChunk("Something happened."))
	if err != nil {
		t.Fatalf("ExtractChunk: %v", err)
	}
	if len(res.Entities) != 0 {
		t.Errorf("entities = %v, want none", res.Entities)
	}
	if p.CallCount() != 2 {
		t.Errorf("LLM calls = %d, want 2 (no stage C)", p.CallCount())
	}
}

func TestExtractChunk_StageFailureSurfacesError(t *testing.T) {
	// Both attempts return structurally invalid output: stage A fails after
	// the retry budget.
	p := &llmmock.Provider{Responses: []string{`"garbage"`, `"garbage"`}}
	e := newTestExtractor(t, p)

	_, err := e.ExtractChunk(context.Background(), testChunk("Some text."))
	if err == nil {
		t.Fatal("expected stage A failure")
	}
	if !strings.Contains(err.Error(), "stage A") {
		t.Errorf("err = %v, want stage A attribution", err)
	}
}
