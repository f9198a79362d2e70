// Package emit maps a merged knowledge graph onto RDF triples and
// serializes them as Turtle with a configurable prefix table.
//
// Entities become subjects under the configured base namespace with one
// rdf:type triple per type and an rdfs:label carrying the mention;
// attributes and datatype relations become typed literals (integers as
// xsd:integer, other numerics as xsd:decimal, booleans as xsd:boolean,
// strings as plain literals). The emitter never mutates its input.
package emit

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/knakk/rdf"

	"github.com/MrWong99/ontograph/internal/errs"
	"github.com/MrWong99/ontograph/internal/graph"
)

// Well-known vocabulary IRIs.
const (
	rdfTypeIRI   = "http://www.w3.org/1999/02/22-rdf-syntax-ns#type"
	rdfsLabelIRI = "http://www.w3.org/2000/01/rdf-schema#label"

	xsdIntegerIRI = "http://www.w3.org/2001/XMLSchema#integer"
	xsdDecimalIRI = "http://www.w3.org/2001/XMLSchema#decimal"
	xsdBooleanIRI = "http://www.w3.org/2001/XMLSchema#boolean"
	xsdStringIRI  = "http://www.w3.org/2001/XMLSchema#string"
)

// standardPrefixes are always present in the emitted prefix table;
// user-configured prefixes are merged over them.
var standardPrefixes = map[string]string{
	"rdf":  "http://www.w3.org/1999/02/22-rdf-syntax-ns#",
	"rdfs": "http://www.w3.org/2000/01/rdf-schema#",
	"xsd":  "http://www.w3.org/2001/XMLSchema#",
}

// Config controls namespace and prefix handling.
type Config struct {
	// BaseNamespace prefixes generated entity and attribute IRIs.
	BaseNamespace string

	// Prefixes maps prefix labels to namespace IRIs for output compaction.
	Prefixes map[string]string
}

// Emitter converts knowledge graphs to Turtle text. Immutable and safe for
// concurrent use.
type Emitter struct {
	base     string
	prefixes map[string]string
}

// New creates an Emitter. The standard rdf/rdfs/xsd prefixes are always
// included; cfg.Prefixes is merged over them.
func New(cfg Config) *Emitter {
	prefixes := make(map[string]string, len(standardPrefixes)+len(cfg.Prefixes))
	for k, v := range standardPrefixes {
		prefixes[k] = v
	}
	for k, v := range cfg.Prefixes {
		prefixes[k] = v
	}
	return &Emitter{base: cfg.BaseNamespace, prefixes: prefixes}
}

// Emit serializes g as Turtle. Structural problems (an entity id or
// attribute key that cannot form a valid IRI) are reported as
// errs.RdfSerializationFailed.
func (e *Emitter) Emit(g graph.KnowledgeGraph) (string, error) {
	triples, err := e.Triples(g)
	if err != nil {
		return "", err
	}
	return e.serialize(triples), nil
}

// Triples maps g onto RDF statements, sorted deterministically.
func (e *Emitter) Triples(g graph.KnowledgeGraph) ([]rdf.Triple, error) {
	var triples []rdf.Triple

	for _, entity := range g.Entities {
		subj, err := e.entityIRI(entity.ID)
		if err != nil {
			return nil, err
		}

		for _, typ := range entity.Types {
			obj, err := newIRI(typ)
			if err != nil {
				return nil, errs.Wrap(errs.CategoryRdfSerializationFailed, fmt.Sprintf("type IRI %q", typ), err)
			}
			triples = append(triples, rdf.Triple{Subj: subj, Pred: mustIRI(rdfTypeIRI), Obj: obj})
		}

		label, err := rdf.NewLiteral(entity.Mention)
		if err != nil {
			return nil, errs.Wrap(errs.CategoryRdfSerializationFailed, "label literal", err)
		}
		triples = append(triples, rdf.Triple{Subj: subj, Pred: mustIRI(rdfsLabelIRI), Obj: label})

		for _, key := range sortedAttrKeys(entity.Attributes) {
			pred, err := e.attributeIRI(key)
			if err != nil {
				return nil, err
			}
			triples = append(triples, rdf.Triple{Subj: subj, Pred: pred, Obj: typedLiteral(entity.Attributes[key])})
		}
	}

	for _, rel := range g.Relations {
		subj, err := e.entityIRI(rel.SubjectID)
		if err != nil {
			return nil, err
		}
		pred, err := newIRI(rel.Predicate)
		if err != nil {
			return nil, errs.Wrap(errs.CategoryRdfSerializationFailed, fmt.Sprintf("predicate IRI %q", rel.Predicate), err)
		}

		var obj rdf.Object
		if rel.Object.IsRef() {
			obj, err = e.entityIRI(rel.Object.EntityID())
			if err != nil {
				return nil, err
			}
		} else {
			obj = typedLiteral(rel.Object.Literal())
		}
		triples = append(triples, rdf.Triple{Subj: subj, Pred: pred, Obj: obj})
	}

	sort.Slice(triples, func(i, j int) bool {
		return tripleSortKey(triples[i]) < tripleSortKey(triples[j])
	})
	return triples, nil
}

// serialize writes the prefix table and one line per triple, with IRIs
// compacted through the prefix table.
func (e *Emitter) serialize(triples []rdf.Triple) string {
	var b strings.Builder

	labels := make([]string, 0, len(e.prefixes))
	for label := range e.prefixes {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	for _, label := range labels {
		fmt.Fprintf(&b, "@prefix %s: <%s> .\n", label, e.prefixes[label])
	}
	if len(triples) > 0 {
		b.WriteString("\n")
	}

	for _, t := range triples {
		b.WriteString(e.renderTerm(t.Subj))
		b.WriteString(" ")
		b.WriteString(e.renderTerm(t.Pred))
		b.WriteString(" ")
		b.WriteString(e.renderTerm(t.Obj))
		b.WriteString(" .\n")
	}
	return b.String()
}

// renderTerm writes one term in Turtle syntax, compacting IRIs.
func (e *Emitter) renderTerm(term rdf.Term) string {
	switch t := term.(type) {
	case rdf.IRI:
		return e.compact(t.String())
	case rdf.Literal:
		return e.renderLiteral(t)
	default:
		return term.Serialize(rdf.Turtle)
	}
}

func (e *Emitter) renderLiteral(lit rdf.Literal) string {
	quoted := quoteLiteral(lit.String())
	dt := lit.DataType.String()
	if dt == "" || dt == xsdStringIRI {
		return quoted
	}
	return quoted + "^^" + e.compact(dt)
}

// compact rewrites an IRI as prefix:local when a configured namespace
// matches and the remainder is a safe local name; otherwise <iri>.
func (e *Emitter) compact(iri string) string {
	bestLabel, bestNS := "", ""
	for label, ns := range e.prefixes {
		if strings.HasPrefix(iri, ns) && len(ns) > len(bestNS) {
			bestLabel, bestNS = label, ns
		}
	}
	if bestNS != "" {
		local := iri[len(bestNS):]
		if safeLocalName(local) {
			return bestLabel + ":" + local
		}
	}
	return "<" + iri + ">"
}

// safeLocalName reports whether local can follow a prefix without escaping.
func safeLocalName(local string) bool {
	if local == "" {
		return false
	}
	for _, r := range local {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '_' || r == '-') {
			return false
		}
	}
	return true
}

func quoteLiteral(s string) string {
	replacer := strings.NewReplacer(
		"\\", "\\\\",
		"\"", "\\\"",
		"\n", "\\n",
		"\r", "\\r",
		"\t", "\\t",
	)
	return "\"" + replacer.Replace(s) + "\""
}

// typedLiteral maps a runtime value onto an RDF literal: integral numbers
// become xsd:integer, other numerics xsd:decimal, booleans xsd:boolean, and
// strings plain literals.
func typedLiteral(v any) rdf.Literal {
	switch x := v.(type) {
	case bool:
		return rdf.NewTypedLiteral(strconv.FormatBool(x), mustIRI(xsdBooleanIRI))
	case int:
		return rdf.NewTypedLiteral(strconv.Itoa(x), mustIRI(xsdIntegerIRI))
	case int64:
		return rdf.NewTypedLiteral(strconv.FormatInt(x, 10), mustIRI(xsdIntegerIRI))
	case float64:
		if x == math.Trunc(x) && !math.IsInf(x, 0) {
			return rdf.NewTypedLiteral(strconv.FormatInt(int64(x), 10), mustIRI(xsdIntegerIRI))
		}
		return rdf.NewTypedLiteral(strconv.FormatFloat(x, 'f', -1, 64), mustIRI(xsdDecimalIRI))
	default:
		return rdf.NewTypedLiteral(graph.FormatLiteral(v), mustIRI(xsdStringIRI))
	}
}

// entityIRI forms the subject/object IRI for an entity id.
func (e *Emitter) entityIRI(id string) (rdf.IRI, error) {
	iri, err := newIRI(e.base + id)
	if err != nil {
		return rdf.IRI{}, errs.Wrap(errs.CategoryRdfSerializationFailed, fmt.Sprintf("entity id %q", id), err)
	}
	return iri, nil
}

// attributeIRI uses the key directly when it is an absolute IRI, otherwise
// the key under the base namespace.
func (e *Emitter) attributeIRI(key string) (rdf.IRI, error) {
	target := key
	if !isAbsoluteIRI(key) {
		target = e.base + key
	}
	iri, err := newIRI(target)
	if err != nil {
		return rdf.IRI{}, errs.Wrap(errs.CategoryRdfSerializationFailed, fmt.Sprintf("attribute key %q", key), err)
	}
	return iri, nil
}

func isAbsoluteIRI(s string) bool {
	return strings.Contains(s, "://") || strings.HasPrefix(s, "urn:")
}

func newIRI(s string) (rdf.IRI, error) {
	return rdf.NewIRI(s)
}

func mustIRI(s string) rdf.IRI {
	iri, err := rdf.NewIRI(s)
	if err != nil {
		panic(err)
	}
	return iri
}

func tripleSortKey(t rdf.Triple) string {
	return t.Subj.String() + "\x1f" + t.Pred.String() + "\x1f" + t.Obj.String()
}

func sortedAttrKeys(attrs map[string]any) []string {
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
