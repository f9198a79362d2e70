package ontology

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/MrWong99/ontograph/internal/errs"
)

const footballTTL = `
@prefix rdf:  <http://www.w3.org/1999/02/22-rdf-syntax-ns#> .
@prefix rdfs: <http://www.w3.org/2000/01/rdf-schema#> .
@prefix owl:  <http://www.w3.org/2002/07/owl#> .
@prefix skos: <http://www.w3.org/2004/02/skos/core#> .
@prefix xsd:  <http://www.w3.org/2001/XMLSchema#> .
@prefix :     <http://example.org/football/> .

:Player a owl:Class ;
    rdfs:label "Player" ;
    skos:altLabel "Footballer" ;
    skos:hiddenLabel "Soccer player" ;
    skos:definition "A person who plays association football." .

:Team a owl:Class ;
    rdfs:label "Team" ;
    rdfs:comment "A football club or national side." .

:playsFor a owl:ObjectProperty ;
    rdfs:label "plays for" ;
    rdfs:domain :Player ;
    rdfs:range :Team ;
    skos:definition "Connects a player to the team they are contracted to." .

:shirtNumber a owl:DatatypeProperty , owl:FunctionalProperty ;
    rdfs:label "shirt number" ;
    rdfs:domain :Player ;
    rdfs:range xsd:integer .
`

func parseFootball(t *testing.T) *Context {
	t.Helper()
	ctx, err := Parse(strings.NewReader(footballTTL))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	return ctx
}

func TestParse_ClassesAndProperties(t *testing.T) {
	ctx := parseFootball(t)

	if got := ctx.ClassCount(); got != 2 {
		t.Fatalf("ClassCount = %d, want 2", got)
	}
	if got := ctx.PropertyCount(); got != 2 {
		t.Fatalf("PropertyCount = %d, want 2", got)
	}

	player, ok := ctx.ClassByIRI("http://example.org/football/Player")
	if !ok {
		t.Fatal("Player class not found")
	}
	if player.Label != "Player" {
		t.Errorf("Label = %q, want Player", player.Label)
	}
	if len(player.AltLabels) != 1 || player.AltLabels[0] != "Footballer" {
		t.Errorf("AltLabels = %v", player.AltLabels)
	}
	if player.Definition == "" {
		t.Error("Definition empty")
	}
}

func TestParse_PropertyDomainsAndRangeType(t *testing.T) {
	ctx := parseFootball(t)

	playsFor, ok := ctx.PropertyByIRI("http://example.org/football/playsFor")
	if !ok {
		t.Fatal("playsFor not found")
	}
	if playsFor.RangeType != RangeObject {
		t.Errorf("RangeType = %q, want object", playsFor.RangeType)
	}
	if len(playsFor.Domains) != 1 || playsFor.Domains[0] != "Player" {
		t.Errorf("Domains = %v, want [Player]", playsFor.Domains)
	}
	if len(playsFor.Ranges) != 1 || playsFor.Ranges[0] != "Team" {
		t.Errorf("Ranges = %v, want [Team]", playsFor.Ranges)
	}

	shirt, ok := ctx.PropertyByIRI("http://example.org/football/shirtNumber")
	if !ok {
		t.Fatal("shirtNumber not found")
	}
	if shirt.RangeType != RangeDatatype {
		t.Errorf("RangeType = %q, want datatype", shirt.RangeType)
	}
	if !shirt.Functional {
		t.Error("shirtNumber should be functional")
	}
}

func TestCanonicalIRI_CaseInsensitive(t *testing.T) {
	ctx := parseFootball(t)

	canon, ok := ctx.CanonicalIRI("http://example.org/football/player")
	if !ok {
		t.Fatal("lowercased IRI not accepted")
	}
	if canon != "http://example.org/football/Player" {
		t.Errorf("canonical = %q, want PascalCase form", canon)
	}

	// Normalization is the identity on already-canonical IRIs.
	canon2, ok := ctx.CanonicalIRI(canon)
	if !ok || canon2 != canon {
		t.Errorf("CanonicalIRI(canonical) = %q, %v; want identity", canon2, ok)
	}
}

func TestPropertiesForClass(t *testing.T) {
	ctx := parseFootball(t)

	props := ctx.PropertiesForClass("http://example.org/football/Player")
	if len(props) != 2 {
		t.Fatalf("len = %d, want 2", len(props))
	}

	data := ctx.PropertiesForClasses([]string{"http://example.org/football/Player"}, RangeDatatype)
	if len(data) != 1 || LocalName(data[0].IRI) != "shirtNumber" {
		t.Errorf("datatype properties = %v", data)
	}
}

func TestParse_ZeroClasses(t *testing.T) {
	ttl := `
@prefix owl:  <http://www.w3.org/2002/07/owl#> .
@prefix rdfs: <http://www.w3.org/2000/01/rdf-schema#> .
<http://example.org/p> a owl:ObjectProperty ; rdfs:label "p" .
`
	_, err := Parse(strings.NewReader(ttl))
	if !errors.Is(err, errs.OntologyParsingFailed) {
		t.Fatalf("err = %v, want OntologyParsingFailed", err)
	}
}

func TestParse_InvalidTurtle(t *testing.T) {
	_, err := Parse(strings.NewReader("this is not turtle @@@"))
	if !errors.Is(err, errs.OntologyParsingFailed) {
		t.Fatalf("err = %v, want OntologyParsingFailed", err)
	}
}

func TestLoad_FileNotFound(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.ttl"))
	if !errors.Is(err, errs.OntologyFileNotFound) {
		t.Fatalf("err = %v, want OntologyFileNotFound", err)
	}
}

func TestDocuments_Composition(t *testing.T) {
	ctx := parseFootball(t)

	docs := ctx.Documents()
	if len(docs) != 4 {
		t.Fatalf("len = %d, want 4", len(docs))
	}

	var playerDoc *Document
	for i := range docs {
		if LocalName(docs[i].IRI) == "Player" {
			playerDoc = &docs[i]
		}
	}
	if playerDoc == nil {
		t.Fatal("no document for Player")
	}
	if playerDoc.Kind != DocClass {
		t.Errorf("Kind = %q, want class", playerDoc.Kind)
	}
	for _, want := range []string{"Player", "Footballer", "Soccer player", "association football", "plays for"} {
		if !strings.Contains(playerDoc.Text, want) {
			t.Errorf("Player document missing %q:\n%s", want, playerDoc.Text)
		}
	}
}

func TestLocalName(t *testing.T) {
	cases := []struct{ in, want string }{
		{"http://example.org/football/Player", "Player"},
		{"http://example.org/onto#playsFor", "playsFor"},
		{"Player", "Player"},
	}
	for _, c := range cases {
		if got := LocalName(c.in); got != c.want {
			t.Errorf("LocalName(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}
