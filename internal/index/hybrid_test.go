package index

import (
	"context"
	"strings"
	"testing"

	"github.com/MrWong99/ontograph/internal/ontology"
	"github.com/MrWong99/ontograph/pkg/provider/embeddings/mock"
)

const testTTL = `
@prefix rdfs: <http://www.w3.org/2000/01/rdf-schema#> .
@prefix owl:  <http://www.w3.org/2002/07/owl#> .
@prefix skos: <http://www.w3.org/2004/02/skos/core#> .
@prefix xsd:  <http://www.w3.org/2001/XMLSchema#> .
@prefix :     <http://example.org/football/> .

:Player a owl:Class ;
    rdfs:label "Player" ;
    skos:altLabel "Footballer" ;
    skos:definition "A person who plays association football professionally." .

:Team a owl:Class ;
    rdfs:label "Team" ;
    skos:definition "A football club fielding players in competitions." .

:Stadium a owl:Class ;
    rdfs:label "Stadium" ;
    skos:definition "A venue where football matches are hosted." .

:playsFor a owl:ObjectProperty ;
    rdfs:label "plays for" ;
    rdfs:domain :Player ;
    rdfs:range :Team ;
    skos:definition "Connects a player to their club." .

:capacity a owl:DatatypeProperty ;
    rdfs:label "capacity" ;
    rdfs:domain :Stadium ;
    rdfs:range xsd:integer ;
    skos:definition "Seating capacity of a stadium venue." .
`

func buildTestIndex(t *testing.T) (*Index, *ontology.Context) {
	t.Helper()
	onto, err := ontology.Parse(strings.NewReader(testTTL))
	if err != nil {
		t.Fatalf("parse ontology: %v", err)
	}
	idx, err := Build(context.Background(), onto, mock.NewHash(64), Options{})
	if err != nil {
		t.Fatalf("build index: %v", err)
	}
	return idx, onto
}

func TestTokenize_CamelCaseAndStopwords(t *testing.T) {
	got := Tokenize("the playsFor property of a Player")
	want := []string{"plays", "property", "player"}
	// "for", "the", "of", "a" are stopwords; camelCase split applies.
	joined := strings.Join(got, " ")
	for _, w := range want {
		if !strings.Contains(joined, w) {
			t.Errorf("Tokenize missing %q in %v", w, got)
		}
	}
	for _, tok := range got {
		if tok == "the" || tok == "of" || tok == "for" {
			t.Errorf("stopword %q survived: %v", tok, got)
		}
	}
}

func TestSplitCamelCase(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"playsFor", "plays For"},
		{"HTTPServer", "HTTP Server"},
		{"Player", "Player"},
		{"shirtNumber", "shirt Number"},
	}
	for _, c := range cases {
		got := strings.Join(SplitCamelCase(c.in), " ")
		if got != c.want {
			t.Errorf("SplitCamelCase(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestBigrams(t *testing.T) {
	got := Bigrams([]string{"plays", "for", "team"})
	if len(got) != 2 || got[0] != "plays_for" || got[1] != "for_team" {
		t.Errorf("Bigrams = %v", got)
	}
	if Bigrams([]string{"solo"}) != nil {
		t.Error("single token should yield no bigrams")
	}
}

func TestSearchClasses_FindsPlayerForPlayerQuery(t *testing.T) {
	idx, _ := buildTestIndex(t)

	results, err := idx.SearchClasses(context.Background(), "footballer who plays association football", 3)
	if err != nil {
		t.Fatalf("SearchClasses: %v", err)
	}
	if len(results) == 0 {
		t.Fatal("no results")
	}
	if ontology.LocalName(results[0].IRI) != "Player" {
		t.Errorf("top hit = %s, want Player (all: %v)", results[0].IRI, results)
	}
}

func TestSearchClasses_RespectsK(t *testing.T) {
	idx, _ := buildTestIndex(t)

	results, err := idx.SearchClasses(context.Background(), "football", 1)
	if err != nil {
		t.Fatalf("SearchClasses: %v", err)
	}
	if len(results) > 1 {
		t.Errorf("len = %d, want <= 1", len(results))
	}
}

func TestSearchProperties_ImpliesDomainClasses(t *testing.T) {
	idx, _ := buildTestIndex(t)

	props, implied, err := idx.SearchProperties(context.Background(), "seating capacity of the venue", 3)
	if err != nil {
		t.Fatalf("SearchProperties: %v", err)
	}
	if len(props) == 0 {
		t.Fatal("no property results")
	}
	if ontology.LocalName(props[0].IRI) != "capacity" {
		t.Errorf("top property = %s, want capacity", props[0].IRI)
	}

	foundStadium := false
	for _, c := range implied {
		if ontology.LocalName(c.IRI) == "Stadium" {
			foundStadium = true
		}
	}
	if !foundStadium {
		t.Errorf("implied classes %v missing Stadium", implied)
	}
}

func TestSearch_Deterministic(t *testing.T) {
	idx, _ := buildTestIndex(t)

	a, err := idx.SearchClasses(context.Background(), "football club", 5)
	if err != nil {
		t.Fatal(err)
	}
	b, err := idx.SearchClasses(context.Background(), "football club", 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(a) != len(b) {
		t.Fatalf("result count differs: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Errorf("result %d differs: %v vs %v", i, a[i], b[i])
		}
	}
}

func TestBM25_RanksExactTermHigher(t *testing.T) {
	iris := []string{"doc:a", "doc:b"}
	tokens := [][]string{
		{"striker", "goal", "match"},
		{"stadium", "venue", "seats"},
	}
	idx := newBM25Index(iris, tokens, bm25Params{k1: 1.2, b: 0.75})

	results := idx.search([]string{"goal"}, 5)
	if len(results) != 1 || results[0].IRI != "doc:a" {
		t.Errorf("results = %v, want only doc:a", results)
	}
}

func TestCosine(t *testing.T) {
	if got := cosine([]float32{1, 0}, []float32{1, 0}); got < 0.999 {
		t.Errorf("cosine(identical) = %v, want 1", got)
	}
	if got := cosine([]float32{1, 0}, []float32{0, 1}); got != 0 {
		t.Errorf("cosine(orthogonal) = %v, want 0", got)
	}
	if got := cosine([]float32{1}, []float32{1, 2}); got != 0 {
		t.Errorf("cosine(mismatched) = %v, want 0", got)
	}
}
