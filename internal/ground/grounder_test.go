package ground

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/ontograph/internal/gateway"
	"github.com/MrWong99/ontograph/internal/graph"
	"github.com/MrWong99/ontograph/internal/ontology"
	llmmock "github.com/MrWong99/ontograph/pkg/provider/llm/mock"
)

func newTestGrounder(p *llmmock.Provider, cfg Config) *Grounder {
	gw := gateway.New(p, gateway.Config{
		MaxAttempts:       2,
		InitialDelay:      time.Millisecond,
		MaxDelay:          time.Millisecond,
		AttemptTimeout:    time.Second,
		RequestsPerSecond: 1000,
		RequestsPerMinute: 60000,
	}, nil)
	return New(gw, cfg, nil)
}

func candidate(subject, predicate, object string) Candidate {
	return Candidate{
		Relation:       graph.Relation{SubjectID: subject, Predicate: predicate, Object: graph.EntityRef(object)},
		SubjectMention: subject,
		SubjectTypes:   []string{"http://o/Player"},
		ObjectText:     object,
		PredicateLabel: ontology.LocalName(predicate),
	}
}

func TestGround_KeepsConfidentGrounded(t *testing.T) {
	p := &llmmock.Provider{Responses: []string{
		`[{"index": 0, "grounded": true, "confidence": 0.95},
		  {"index": 1, "grounded": false, "confidence": 0.9},
		  {"index": 2, "grounded": true, "confidence": 0.5}]`,
	}}
	g := newTestGrounder(p, Config{ConfidenceThreshold: 0.8, BatchSize: 5})

	cands := []Candidate{
		candidate("ronaldo", "http://o/playsFor", "al_nassr"),
		candidate("ronaldo", "http://o/playsFor", "psg"),
		candidate("messi", "http://o/playsFor", "miami"),
	}
	kept, _, err := g.Ground(context.Background(), "Ronaldo plays for Al-Nassr.", cands)
	if err != nil {
		t.Fatalf("Ground: %v", err)
	}
	if len(kept) != 1 {
		t.Fatalf("kept = %d, want 1 (ungrounded and low-confidence dropped)", len(kept))
	}
	if kept[0].Object.EntityID() != "al_nassr" {
		t.Errorf("kept = %+v", kept[0])
	}
}

func TestGround_MissingIndexFailsClosed(t *testing.T) {
	p := &llmmock.Provider{Responses: []string{
		`[{"index": 0, "grounded": true, "confidence": 0.9}]`,
	}}
	g := newTestGrounder(p, Config{ConfidenceThreshold: 0.8, BatchSize: 5})

	cands := []Candidate{
		candidate("a", "http://o/p", "b"),
		candidate("c", "http://o/p", "d"), // no verdict returned
	}
	kept, _, err := g.Ground(context.Background(), "text", cands)
	if err != nil {
		t.Fatalf("Ground: %v", err)
	}
	if len(kept) != 1 || kept[0].SubjectID != "a" {
		t.Errorf("kept = %v, want only the judged candidate", kept)
	}
}

func TestGround_BatchesPreserveOrder(t *testing.T) {
	// Batch size 2 over 3 candidates: two calls, all grounded.
	p := &llmmock.Provider{Responses: []string{
		`[{"index": 0, "grounded": true, "confidence": 1},
		  {"index": 1, "grounded": true, "confidence": 1}]`,
		`[{"index": 0, "grounded": true, "confidence": 1}]`,
	}}
	g := newTestGrounder(p, Config{ConfidenceThreshold: 0.8, BatchSize: 2})

	cands := []Candidate{
		candidate("s1", "http://o/p", "o1"),
		candidate("s2", "http://o/p", "o2"),
		candidate("s3", "http://o/p", "o3"),
	}
	kept, _, err := g.Ground(context.Background(), "text", cands)
	if err != nil {
		t.Fatalf("Ground: %v", err)
	}
	if len(kept) != 3 {
		t.Fatalf("kept = %d, want 3", len(kept))
	}
	for i, rel := range kept {
		if rel.SubjectID != fmt.Sprintf("s%d", i+1) {
			t.Errorf("order violated at %d: %s", i, rel.SubjectID)
		}
	}
	if p.CallCount() != 2 {
		t.Errorf("calls = %d, want 2 batches", p.CallCount())
	}
}

func TestGround_SingleCandidateUsesFocusedPrompt(t *testing.T) {
	p := &llmmock.Provider{Responses: []string{
		`[{"index": 0, "grounded": true, "confidence": 0.9}]`,
	}}
	g := newTestGrounder(p, Config{ConfidenceThreshold: 0.8, BatchSize: 5})

	_, _, err := g.Ground(context.Background(), "text",
		[]Candidate{candidate("a", "http://o/p", "b")})
	if err != nil {
		t.Fatalf("Ground: %v", err)
	}
	prompt := p.Calls[0].Req.Messages[0].Content
	if !strings.Contains(prompt, "the following statement") {
		t.Errorf("single-candidate prompt not used: %q", prompt[:80])
	}
}

// Raising the threshold can only shrink the kept set.
func TestGround_ThresholdMonotonicity(t *testing.T) {
	response := `[{"index": 0, "grounded": true, "confidence": 0.95},
		{"index": 1, "grounded": true, "confidence": 0.85},
		{"index": 2, "grounded": true, "confidence": 0.6}]`
	cands := []Candidate{
		candidate("a", "http://o/p", "b"),
		candidate("c", "http://o/p", "d"),
		candidate("e", "http://o/p", "f"),
	}

	prev := -1
	for _, threshold := range []float64{0.5, 0.7, 0.9, 1.0} {
		p := &llmmock.Provider{Responses: []string{response}}
		g := newTestGrounder(p, Config{ConfidenceThreshold: threshold, BatchSize: 5})
		kept, _, err := g.Ground(context.Background(), "text", cands)
		if err != nil {
			t.Fatalf("Ground(%v): %v", threshold, err)
		}
		if prev >= 0 && len(kept) > prev {
			t.Errorf("threshold %v kept %d > previous %d", threshold, len(kept), prev)
		}
		prev = len(kept)
	}
}

func TestBuildCandidates_Enrichment(t *testing.T) {
	onto, err := ontology.Parse(strings.NewReader(`
@prefix rdfs: <http://www.w3.org/2000/01/rdf-schema#> .
@prefix owl:  <http://www.w3.org/2002/07/owl#> .
@prefix :     <http://o/> .
:Player a owl:Class ; rdfs:label "Player" .
:playsFor a owl:ObjectProperty ; rdfs:label "plays for" ; rdfs:domain :Player .
`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	entities := []graph.Entity{
		{ID: "ronaldo", Mention: "Cristiano Ronaldo", Types: []string{"http://o/Player"}},
		{ID: "al_nassr", Mention: "Al-Nassr", Types: []string{"http://o/Team"}},
	}
	rels := []graph.Relation{
		{SubjectID: "ronaldo", Predicate: "http://o/playsFor", Object: graph.EntityRef("al_nassr")},
		{SubjectID: "ronaldo", Predicate: "http://o/age", Object: graph.LiteralValue(float64(40))},
	}

	cands := BuildCandidates(rels, entities, onto)
	if len(cands) != 2 {
		t.Fatalf("len = %d", len(cands))
	}
	if cands[0].SubjectMention != "Cristiano Ronaldo" || cands[0].ObjectText != "Al-Nassr" {
		t.Errorf("candidate 0 = %+v", cands[0])
	}
	if cands[0].PredicateLabel != "plays for" {
		t.Errorf("predicate label = %q, want ontology label", cands[0].PredicateLabel)
	}
	if cands[1].ObjectText != "40" {
		t.Errorf("literal object rendered as %q, want 40", cands[1].ObjectText)
	}
}
