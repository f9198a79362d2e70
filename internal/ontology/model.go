// Package ontology loads an RDF ontology from Turtle and exposes the class
// and property definitions that drive retrieval, schema generation, and
// validation.
//
// The loaded [Context] is immutable after construction and safe to share
// across all pipeline workers. Lookups are case-insensitive on IRI with
// normalization back to the canonical form as written in the ontology — the
// single most common LLM failure mode is emitting a case-mangled IRI, so the
// canonical map built here is threaded through every decode path.
package ontology

import (
	"sort"
	"strings"
)

// RangeType distinguishes properties that point at entities from properties
// that carry literals.
type RangeType string

const (
	// RangeObject marks an owl:ObjectProperty: its value is another entity.
	RangeObject RangeType = "object"

	// RangeDatatype marks an owl:DatatypeProperty: its value is a literal.
	RangeDatatype RangeType = "datatype"
)

// ClassDefinition is the read-only record for one ontology class.
type ClassDefinition struct {
	// IRI is the canonical class IRI exactly as written in the ontology.
	IRI string

	// Label is the primary rdfs:label, or the IRI local name when absent.
	Label string

	// PrefLabels are additional skos:prefLabel values.
	PrefLabels []string

	// AltLabels are skos:altLabel values (synonyms).
	AltLabels []string

	// HiddenLabels are skos:hiddenLabel values (misspellings, legacy names).
	HiddenLabels []string

	// Comment is the rdfs:comment.
	Comment string

	// Definition is the skos:definition; preferred over Comment when both exist.
	Definition string

	// ScopeNote is the skos:scopeNote.
	ScopeNote string

	// Example is the skos:example.
	Example string

	// Broader, Narrower, Related, ExactMatch, CloseMatch hold SKOS hierarchy
	// and mapping IRIs.
	Broader    []string
	Narrower   []string
	Related    []string
	ExactMatch []string
	CloseMatch []string
}

// PropertyDefinition is the read-only record for one ontology property.
type PropertyDefinition struct {
	// IRI is the canonical property IRI exactly as written in the ontology.
	IRI string

	// Label is the primary rdfs:label, or the IRI local name when absent.
	Label string

	PrefLabels   []string
	AltLabels    []string
	HiddenLabels []string
	Comment      string
	Definition   string
	ScopeNote    string
	Example      string
	Broader      []string
	Narrower     []string
	Related      []string
	ExactMatch   []string
	CloseMatch   []string

	// Domains holds the local names of the classes this property applies to.
	Domains []string

	// Ranges holds the local names of the permitted value classes or
	// datatypes.
	Ranges []string

	// RangeType reports whether values are entities or literals.
	RangeType RangeType

	// Functional is set when the property is declared owl:FunctionalProperty.
	Functional bool
}

// Context is the loaded ontology. Read-only after construction.
type Context struct {
	classes    map[string]*ClassDefinition
	properties map[string]*PropertyDefinition

	// canonical maps lowercased IRI to the canonical IRI for
	// case-insensitive acceptance.
	canonical map[string]string

	// byDomain maps a class local name to the IRIs of properties whose
	// rdfs:domain names that class.
	byDomain map[string][]string

	// classByLocal maps a lowercased class local name to the class IRI, for
	// resolving property domains back to class definitions.
	classByLocal map[string]string
}

// ClassByLocalName resolves a class by its IRI local name, case-insensitively.
func (c *Context) ClassByLocalName(name string) (*ClassDefinition, bool) {
	iri, ok := c.classByLocal[strings.ToLower(name)]
	if !ok {
		return nil, false
	}
	cd, ok := c.classes[iri]
	return cd, ok
}

// Classes returns all class definitions sorted by IRI.
func (c *Context) Classes() []*ClassDefinition {
	out := make([]*ClassDefinition, 0, len(c.classes))
	for _, cd := range c.classes {
		out = append(out, cd)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].IRI < out[j].IRI })
	return out
}

// Properties returns all property definitions sorted by IRI.
func (c *Context) Properties() []*PropertyDefinition {
	out := make([]*PropertyDefinition, 0, len(c.properties))
	for _, pd := range c.properties {
		out = append(out, pd)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].IRI < out[j].IRI })
	return out
}

// ClassByIRI looks up a class case-insensitively. The second return reports
// whether the IRI names a class in this ontology.
func (c *Context) ClassByIRI(iri string) (*ClassDefinition, bool) {
	canon, ok := c.canonical[strings.ToLower(iri)]
	if !ok {
		return nil, false
	}
	cd, ok := c.classes[canon]
	return cd, ok
}

// PropertyByIRI looks up a property case-insensitively.
func (c *Context) PropertyByIRI(iri string) (*PropertyDefinition, bool) {
	canon, ok := c.canonical[strings.ToLower(iri)]
	if !ok {
		return nil, false
	}
	pd, ok := c.properties[canon]
	return pd, ok
}

// CanonicalIRI maps any casing of a known IRI back to its canonical form.
func (c *Context) CanonicalIRI(iri string) (string, bool) {
	canon, ok := c.canonical[strings.ToLower(iri)]
	return canon, ok
}

// PropertiesForClass returns the properties whose domain names the class,
// sorted by IRI. The argument may be a class IRI in any casing.
func (c *Context) PropertiesForClass(classIRI string) []*PropertyDefinition {
	cd, ok := c.ClassByIRI(classIRI)
	if !ok {
		return nil
	}
	var out []*PropertyDefinition
	for _, propIRI := range c.byDomain[LocalName(cd.IRI)] {
		if pd, ok := c.properties[propIRI]; ok {
			out = append(out, pd)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].IRI < out[j].IRI })
	return out
}

// PropertiesForClasses unions [Context.PropertiesForClass] over several
// classes, deduplicated and sorted by IRI. When rangeFilter is non-empty only
// properties of that range type are returned.
func (c *Context) PropertiesForClasses(classIRIs []string, rangeFilter RangeType) []*PropertyDefinition {
	seen := make(map[string]*PropertyDefinition)
	for _, classIRI := range classIRIs {
		for _, pd := range c.PropertiesForClass(classIRI) {
			if rangeFilter != "" && pd.RangeType != rangeFilter {
				continue
			}
			seen[pd.IRI] = pd
		}
	}
	out := make([]*PropertyDefinition, 0, len(seen))
	for _, pd := range seen {
		out = append(out, pd)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].IRI < out[j].IRI })
	return out
}

// ClassCount reports the number of loaded classes.
func (c *Context) ClassCount() int { return len(c.classes) }

// PropertyCount reports the number of loaded properties.
func (c *Context) PropertyCount() int { return len(c.properties) }

// LocalName returns the fragment after the last '#' or '/' of an IRI.
func LocalName(iri string) string {
	if i := strings.LastIndexAny(iri, "#/"); i >= 0 && i+1 < len(iri) {
		return iri[i+1:]
	}
	return iri
}
