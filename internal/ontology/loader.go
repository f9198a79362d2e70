package ontology

import (
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"github.com/knakk/rdf"

	"github.com/MrWong99/ontograph/internal/errs"
)

// Recognised vocabulary predicates and type markers.
const (
	rdfType = "http://www.w3.org/1999/02/22-rdf-syntax-ns#type"

	rdfsClass   = "http://www.w3.org/2000/01/rdf-schema#Class"
	rdfsLabel   = "http://www.w3.org/2000/01/rdf-schema#label"
	rdfsComment = "http://www.w3.org/2000/01/rdf-schema#comment"
	rdfsDomain  = "http://www.w3.org/2000/01/rdf-schema#domain"
	rdfsRange   = "http://www.w3.org/2000/01/rdf-schema#range"

	owlClass              = "http://www.w3.org/2002/07/owl#Class"
	owlObjectProperty     = "http://www.w3.org/2002/07/owl#ObjectProperty"
	owlDatatypeProperty   = "http://www.w3.org/2002/07/owl#DatatypeProperty"
	owlFunctionalProperty = "http://www.w3.org/2002/07/owl#FunctionalProperty"

	skosPrefLabel   = "http://www.w3.org/2004/02/skos/core#prefLabel"
	skosAltLabel    = "http://www.w3.org/2004/02/skos/core#altLabel"
	skosHiddenLabel = "http://www.w3.org/2004/02/skos/core#hiddenLabel"
	skosDefinition  = "http://www.w3.org/2004/02/skos/core#definition"
	skosScopeNote   = "http://www.w3.org/2004/02/skos/core#scopeNote"
	skosExample     = "http://www.w3.org/2004/02/skos/core#example"
	skosBroader     = "http://www.w3.org/2004/02/skos/core#broader"
	skosNarrower    = "http://www.w3.org/2004/02/skos/core#narrower"
	skosRelated     = "http://www.w3.org/2004/02/skos/core#related"
	skosExactMatch  = "http://www.w3.org/2004/02/skos/core#exactMatch"
	skosCloseMatch  = "http://www.w3.org/2004/02/skos/core#closeMatch"
)

// Load reads and parses the Turtle ontology at path.
//
// Returns an error matching errs.OntologyFileNotFound when the file is
// absent and errs.OntologyParsingFailed when the Turtle parser rejects the
// content or the ontology declares no classes.
func Load(path string) (*Context, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errs.Wrap(errs.CategoryOntologyFileNotFound, fmt.Sprintf("ontology file %q", path), err)
		}
		return nil, fmt.Errorf("ontology: open %q: %w", path, err)
	}
	defer f.Close()

	ctx, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("ontology: parse %q: %w", path, err)
	}
	return ctx, nil
}

// subjectFacts accumulates every recognised predicate seen for one subject
// IRI before classification into class or property records.
type subjectFacts struct {
	types        []string
	labels       []string
	comments     []string
	prefLabels   []string
	altLabels    []string
	hiddenLabels []string
	definitions  []string
	scopeNotes   []string
	examples     []string
	domains      []string
	ranges       []string
	broader      []string
	narrower     []string
	related      []string
	exactMatch   []string
	closeMatch   []string
}

// Parse decodes a Turtle document from r and builds the ontology [Context].
//
// An ontology with zero declared classes is rejected with
// errs.OntologyParsingFailed: such an ontology cannot type any entity, so
// failing at startup is more useful than extracting into the void.
func Parse(r io.Reader) (*Context, error) {
	dec := rdf.NewTripleDecoder(r, rdf.Turtle)
	triples, err := dec.DecodeAll()
	if err != nil {
		return nil, errs.Wrap(errs.CategoryOntologyParsingFailed, "decode turtle", err)
	}

	facts := make(map[string]*subjectFacts)
	order := []string{}
	factsFor := func(subject string) *subjectFacts {
		if f, ok := facts[subject]; ok {
			return f
		}
		f := &subjectFacts{}
		facts[subject] = f
		order = append(order, subject)
		return f
	}

	for _, t := range triples {
		subjIRI, ok := t.Subj.(rdf.IRI)
		if !ok {
			continue
		}
		predIRI, ok := t.Pred.(rdf.IRI)
		if !ok {
			continue
		}
		subject := subjIRI.String()
		f := factsFor(subject)

		switch predIRI.String() {
		case rdfType:
			f.types = append(f.types, objString(t.Obj))
		case rdfsLabel:
			f.labels = append(f.labels, objString(t.Obj))
		case rdfsComment:
			f.comments = append(f.comments, objString(t.Obj))
		case rdfsDomain:
			f.domains = append(f.domains, LocalName(objString(t.Obj)))
		case rdfsRange:
			f.ranges = append(f.ranges, LocalName(objString(t.Obj)))
		case skosPrefLabel:
			f.prefLabels = append(f.prefLabels, objString(t.Obj))
		case skosAltLabel:
			f.altLabels = append(f.altLabels, objString(t.Obj))
		case skosHiddenLabel:
			f.hiddenLabels = append(f.hiddenLabels, objString(t.Obj))
		case skosDefinition:
			f.definitions = append(f.definitions, objString(t.Obj))
		case skosScopeNote:
			f.scopeNotes = append(f.scopeNotes, objString(t.Obj))
		case skosExample:
			f.examples = append(f.examples, objString(t.Obj))
		case skosBroader:
			f.broader = append(f.broader, objString(t.Obj))
		case skosNarrower:
			f.narrower = append(f.narrower, objString(t.Obj))
		case skosRelated:
			f.related = append(f.related, objString(t.Obj))
		case skosExactMatch:
			f.exactMatch = append(f.exactMatch, objString(t.Obj))
		case skosCloseMatch:
			f.closeMatch = append(f.closeMatch, objString(t.Obj))
		}
	}

	ctx := &Context{
		classes:      make(map[string]*ClassDefinition),
		properties:   make(map[string]*PropertyDefinition),
		canonical:    make(map[string]string),
		byDomain:     make(map[string][]string),
		classByLocal: make(map[string]string),
	}

	for _, subject := range order {
		f := facts[subject]
		switch {
		case slices.Contains(f.types, owlClass) || slices.Contains(f.types, rdfsClass):
			ctx.classes[subject] = buildClass(subject, f)
			ctx.canonical[strings.ToLower(subject)] = subject
			ctx.classByLocal[strings.ToLower(LocalName(subject))] = subject
		case slices.Contains(f.types, owlObjectProperty):
			ctx.addProperty(buildProperty(subject, f, RangeObject))
		case slices.Contains(f.types, owlDatatypeProperty):
			ctx.addProperty(buildProperty(subject, f, RangeDatatype))
		}
	}

	if len(ctx.classes) == 0 {
		return nil, errs.New(errs.CategoryOntologyParsingFailed, "ontology declares no classes")
	}
	return ctx, nil
}

func (c *Context) addProperty(pd *PropertyDefinition) {
	c.properties[pd.IRI] = pd
	c.canonical[strings.ToLower(pd.IRI)] = pd.IRI
	for _, domain := range pd.Domains {
		c.byDomain[domain] = append(c.byDomain[domain], pd.IRI)
	}
}

func buildClass(iri string, f *subjectFacts) *ClassDefinition {
	return &ClassDefinition{
		IRI:          iri,
		Label:        primaryLabel(iri, f),
		PrefLabels:   f.prefLabels,
		AltLabels:    f.altLabels,
		HiddenLabels: f.hiddenLabels,
		Comment:      first(f.comments),
		Definition:   first(f.definitions),
		ScopeNote:    first(f.scopeNotes),
		Example:      first(f.examples),
		Broader:      f.broader,
		Narrower:     f.narrower,
		Related:      f.related,
		ExactMatch:   f.exactMatch,
		CloseMatch:   f.closeMatch,
	}
}

func buildProperty(iri string, f *subjectFacts, rangeType RangeType) *PropertyDefinition {
	return &PropertyDefinition{
		IRI:          iri,
		Label:        primaryLabel(iri, f),
		PrefLabels:   f.prefLabels,
		AltLabels:    f.altLabels,
		HiddenLabels: f.hiddenLabels,
		Comment:      first(f.comments),
		Definition:   first(f.definitions),
		ScopeNote:    first(f.scopeNotes),
		Example:      first(f.examples),
		Broader:      f.broader,
		Narrower:     f.narrower,
		Related:      f.related,
		ExactMatch:   f.exactMatch,
		CloseMatch:   f.closeMatch,
		Domains:      f.domains,
		Ranges:       f.ranges,
		RangeType:    rangeType,
		Functional:   slices.Contains(f.types, owlFunctionalProperty),
	}
}

// primaryLabel picks the rdfs:label, falling back to the IRI local name.
func primaryLabel(iri string, f *subjectFacts) string {
	if len(f.labels) > 0 {
		return f.labels[0]
	}
	return LocalName(iri)
}

func first(values []string) string {
	if len(values) == 0 {
		return ""
	}
	return values[0]
}

// objString extracts the plain string form of a triple object: the IRI text
// for IRI terms, the lexical value for literals.
func objString(obj rdf.Object) string {
	switch o := obj.(type) {
	case rdf.IRI:
		return o.String()
	case rdf.Literal:
		return o.String()
	default:
		return obj.String()
	}
}
