package emit

import (
	"strings"
	"testing"

	"github.com/MrWong99/ontograph/internal/graph"
)

func testEmitter() *Emitter {
	return New(Config{
		BaseNamespace: "http://example.org/kg/",
		Prefixes: map[string]string{
			"ex": "http://example.org/kg/",
			"fb": "http://example.org/football/",
		},
	})
}

func happyGraph() graph.KnowledgeGraph {
	return graph.KnowledgeGraph{
		Entities: []graph.Entity{
			{ID: "cristiano_ronaldo", Mention: "Cristiano Ronaldo",
				Types:      []string{"http://example.org/football/Player"},
				Attributes: map[string]any{"http://example.org/football/age": float64(40)}},
			{ID: "al_nassr", Mention: "Al-Nassr",
				Types: []string{"http://example.org/football/Team"}},
		},
		Relations: []graph.Relation{
			{SubjectID: "cristiano_ronaldo", Predicate: "http://example.org/football/playsFor",
				Object: graph.EntityRef("al_nassr")},
		},
	}.Normalize()
}

func TestEmit_HappyPath(t *testing.T) {
	out, err := testEmitter().Emit(happyGraph())
	if err != nil {
		t.Fatalf("Emit: %v", err)
	}

	for _, want := range []string{
		"@prefix ex: <http://example.org/kg/> .",
		"@prefix xsd: <http://www.w3.org/2001/XMLSchema#> .",
		"ex:cristiano_ronaldo rdf:type fb:Player .",
		"ex:al_nassr rdf:type fb:Team .",
		`ex:cristiano_ronaldo rdfs:label "Cristiano Ronaldo" .`,
		"ex:cristiano_ronaldo fb:playsFor ex:al_nassr .",
		`ex:cristiano_ronaldo fb:age "40"^^xsd:integer .`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestEmit_LiteralTyping(t *testing.T) {
	g := graph.KnowledgeGraph{
		Entities: []graph.Entity{
			{ID: "x", Mention: "X", Types: []string{"http://example.org/football/Player"},
				Attributes: map[string]any{
					"http://example.org/football/height": float64(1.87),
					"http://example.org/football/active": true,
					"http://example.org/football/name":   "Xavier",
				}},
		},
	}.Normalize()

	out, err := testEmitter().Emit(g)
	if err != nil {
		t.Fatalf("Emit: %v", err)
	}
	for _, want := range []string{
		`"1.87"^^xsd:decimal`,
		`"true"^^xsd:boolean`,
		`fb:name "Xavier" .`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestEmit_NonIRIAttributeKeyUsesBase(t *testing.T) {
	g := graph.KnowledgeGraph{
		Entities: []graph.Entity{
			{ID: "x", Mention: "X", Types: []string{"http://example.org/football/Player"},
				Attributes: map[string]any{"nickname": "Xa"}},
		},
	}.Normalize()

	out, err := testEmitter().Emit(g)
	if err != nil {
		t.Fatalf("Emit: %v", err)
	}
	if !strings.Contains(out, `ex:nickname "Xa" .`) {
		t.Errorf("base-namespace attribute missing:\n%s", out)
	}
}

func TestEmit_LiteralEscaping(t *testing.T) {
	g := graph.KnowledgeGraph{
		Entities: []graph.Entity{
			{ID: "x", Mention: "He said \"hi\"\nthen left", Types: []string{"http://example.org/football/Player"}},
		},
	}.Normalize()

	out, err := testEmitter().Emit(g)
	if err != nil {
		t.Fatalf("Emit: %v", err)
	}
	if !strings.Contains(out, `"He said \"hi\"\nthen left"`) {
		t.Errorf("escaping wrong:\n%s", out)
	}
}

func TestEmit_EmptyGraph(t *testing.T) {
	out, err := testEmitter().Emit(graph.Empty())
	if err != nil {
		t.Fatalf("Emit: %v", err)
	}
	if !strings.Contains(out, "@prefix") {
		t.Error("prefix table missing for empty graph")
	}
	if strings.Contains(out, " .\n\n") {
		t.Error("unexpected triples in empty graph output")
	}
}

func TestEmit_Deterministic(t *testing.T) {
	a, err := testEmitter().Emit(happyGraph())
	if err != nil {
		t.Fatal(err)
	}
	b, err := testEmitter().Emit(happyGraph())
	if err != nil {
		t.Fatal(err)
	}
	if a != b {
		t.Error("emission is not deterministic")
	}
}

func TestEmit_UncompactableIRIStaysAngled(t *testing.T) {
	g := graph.KnowledgeGraph{
		Entities: []graph.Entity{
			{ID: "x", Mention: "X", Types: []string{"http://other.example/onto#Thing"}},
		},
	}.Normalize()

	out, err := testEmitter().Emit(g)
	if err != nil {
		t.Fatalf("Emit: %v", err)
	}
	if !strings.Contains(out, "<http://other.example/onto#Thing>") {
		t.Errorf("unprefixed IRI not angle-bracketed:\n%s", out)
	}
}
