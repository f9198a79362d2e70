package ontology

import (
	"strings"
)

// DocKind says whether a search document describes a class or a property.
type DocKind string

const (
	DocClass    DocKind = "class"
	DocProperty DocKind = "property"
)

// Document is one searchable unit fed to the hybrid index: everything the
// ontology says about a single class or property, newline-joined. The index
// applies its own token normalization (camelCase splitting, bigrams) when
// building its internal representation — Document carries plain composed
// text so the model exposed to callers stays free of index artifacts.
type Document struct {
	// IRI maps a search hit back to the class or property definition.
	IRI string

	// Kind distinguishes class documents from property documents.
	Kind DocKind

	// Text is the newline-joined composition of labels, synonyms,
	// definition, scope note, example, and structural context.
	Text string
}

// Documents generates one search document per class and per property, in
// deterministic (IRI-sorted) order.
func (c *Context) Documents() []Document {
	docs := make([]Document, 0, len(c.classes)+len(c.properties))
	for _, cd := range c.Classes() {
		docs = append(docs, Document{IRI: cd.IRI, Kind: DocClass, Text: c.classDocument(cd)})
	}
	for _, pd := range c.Properties() {
		docs = append(docs, Document{IRI: pd.IRI, Kind: DocProperty, Text: c.propertyDocument(pd)})
	}
	return docs
}

// classDocument composes the searchable text for a class: primary label,
// additional preferred labels, synonyms, hidden labels, definition or
// comment, scope note, example, the labels of properties applying to the
// class, and SKOS hierarchy context.
func (c *Context) classDocument(cd *ClassDefinition) string {
	var lines []string
	add := func(s string) {
		if s = strings.TrimSpace(s); s != "" {
			lines = append(lines, s)
		}
	}

	add(cd.Label)
	for _, l := range cd.PrefLabels {
		add(l)
	}
	if len(cd.AltLabels) > 0 {
		add("Synonyms: " + strings.Join(cd.AltLabels, ", "))
	}
	if len(cd.HiddenLabels) > 0 {
		add("Also known as: " + strings.Join(cd.HiddenLabels, ", "))
	}
	if cd.Definition != "" {
		add(cd.Definition)
	} else {
		add(cd.Comment)
	}
	add(cd.ScopeNote)
	add(cd.Example)

	if props := c.PropertiesForClass(cd.IRI); len(props) > 0 {
		names := make([]string, len(props))
		for i, pd := range props {
			names[i] = pd.Label
		}
		add("Properties: " + strings.Join(names, ", "))
	}

	add(hierarchyLine("Broader", cd.Broader))
	add(hierarchyLine("Narrower", cd.Narrower))
	add(hierarchyLine("Related", cd.Related))

	return strings.Join(lines, "\n")
}

// propertyDocument composes the searchable text for a property, including
// its domain and range so that queries naming either side retrieve it.
func (c *Context) propertyDocument(pd *PropertyDefinition) string {
	var lines []string
	add := func(s string) {
		if s = strings.TrimSpace(s); s != "" {
			lines = append(lines, s)
		}
	}

	add(pd.Label)
	for _, l := range pd.PrefLabels {
		add(l)
	}
	if len(pd.AltLabels) > 0 {
		add("Synonyms: " + strings.Join(pd.AltLabels, ", "))
	}
	if len(pd.HiddenLabels) > 0 {
		add("Also known as: " + strings.Join(pd.HiddenLabels, ", "))
	}
	if pd.Definition != "" {
		add(pd.Definition)
	} else {
		add(pd.Comment)
	}
	add(pd.ScopeNote)
	add(pd.Example)

	if len(pd.Domains) > 0 {
		add("Domain: " + strings.Join(pd.Domains, ", "))
	}
	if len(pd.Ranges) > 0 {
		add("Range: " + strings.Join(pd.Ranges, ", "))
	}

	add(hierarchyLine("Broader", pd.Broader))
	add(hierarchyLine("Narrower", pd.Narrower))
	add(hierarchyLine("Related", pd.Related))

	return strings.Join(lines, "\n")
}

func hierarchyLine(prefix string, iris []string) string {
	if len(iris) == 0 {
		return ""
	}
	names := make([]string, len(iris))
	for i, iri := range iris {
		names[i] = LocalName(iri)
	}
	return prefix + ": " + strings.Join(names, ", ")
}
