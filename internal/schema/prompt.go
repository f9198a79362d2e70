package schema

import (
	"fmt"
	"sort"
	"strings"

	"github.com/MrWong99/ontograph/internal/graph"
	"github.com/MrWong99/ontograph/internal/ontology"
)

// Prompt is the two-part instruction handed to the LLM gateway.
type Prompt struct {
	// System carries the stage role and the rules block.
	System string

	// User carries the text span, the ontology slice, and the quick
	// reference with the exact allowed value sets the schema enforces.
	User string
}

// Generator builds the coupled (schema, prompt) pair for each stage. Both
// artifacts derive from the same allowed-IRI sets and rule lists, so a hard
// rule stated in the prompt is always enforced by the schema and vice versa.
// The caller supplies the per-chunk ontology slice; the Generator itself is
// stateless and shareable.
type Generator struct{}

// NewGenerator creates a Generator.
func NewGenerator() *Generator {
	return &Generator{}
}

// MentionStage produces the stage-A artifacts: no ontology slice is needed
// yet — mentions drive the retrieval that selects the slice for stage B.
func (g *Generator) MentionStage(chunkText string) (*MentionSchema, Prompt) {
	s := &MentionSchema{}

	var b strings.Builder
	b.WriteString("Identify every entity mention in the text below.\n\n")
	writeText(&b, chunkText)
	b.WriteString("\nReturn a JSON array named \"mentions\". Each element:\n")
	b.WriteString(`{"id": "snake_case_id", "mention": "exact text span", "context": "surrounding phrase"}` + "\n")

	return s, Prompt{
		System: systemPreamble("You extract entity mentions from text for knowledge graph construction.", s.Rules()),
		User:   b.String(),
	}
}

// EntityStage produces the stage-B artifacts from the retrieved class slice
// and the datatype properties applying to it.
func (g *Generator) EntityStage(chunkText string, classes []*ontology.ClassDefinition, attrs []*ontology.PropertyDefinition) (*EntitySchema, Prompt) {
	classIRIs := make([]string, len(classes))
	for i, cd := range classes {
		classIRIs[i] = cd.IRI
	}
	attrIRIs := make([]string, len(attrs))
	for i, pd := range attrs {
		attrIRIs[i] = pd.IRI
	}
	s := &EntitySchema{Classes: NewIRISet(classIRIs), Attributes: NewIRISet(attrIRIs)}

	var b strings.Builder
	b.WriteString("Extract typed entities from the text below, using only the listed ontology classes.\n\n")
	writeText(&b, chunkText)

	b.WriteString("\nALLOWED CLASSES:\n")
	for _, cd := range classes {
		writeDefinitionLine(&b, cd.IRI, cd.Label, description(cd.Definition, cd.Comment))
	}
	if len(attrs) > 0 {
		b.WriteString("\nALLOWED ATTRIBUTES (datatype properties):\n")
		for _, pd := range attrs {
			writeDefinitionLine(&b, pd.IRI, pd.Label, description(pd.Definition, pd.Comment))
		}
	}

	b.WriteString("\nQUICK REFERENCE — allowed class IRIs:\n")
	writeIRIList(&b, s.Classes.Values())
	if s.Attributes.Len() > 0 {
		b.WriteString("QUICK REFERENCE — allowed attribute IRIs:\n")
		writeIRIList(&b, s.Attributes.Values())
	}

	b.WriteString("\nReturn a JSON array named \"entities\". Each element:\n")
	b.WriteString(`{"id": "snake_case_id", "mention": "exact text span", "types": ["<class IRI>"], "attributes": {"<attribute IRI>": <literal>}}` + "\n")

	return s, Prompt{
		System: systemPreamble("You extract typed entities from text, constrained by an ontology.", s.Rules()),
		User:   b.String(),
	}
}

// RelationStage produces the stage-C artifacts from the stage-B entities and
// the properties scoped to their types.
func (g *Generator) RelationStage(chunkText string, entities []graph.Entity, props []*ontology.PropertyDefinition) (*RelationSchema, Prompt) {
	s := NewRelationSchema(props, entities)

	var b strings.Builder
	b.WriteString("Extract relations between the listed entities from the text below.\n\n")
	writeText(&b, chunkText)

	b.WriteString("\nENTITIES (use these ids):\n")
	for _, e := range entities {
		fmt.Fprintf(&b, "- %s: %q (types: %s)\n", e.ID, e.Mention, strings.Join(localNames(e.Types), ", "))
	}

	b.WriteString("\nALLOWED PROPERTIES:\n")
	for _, pd := range props {
		kind := "object → use an entity id as object"
		if pd.RangeType == ontology.RangeDatatype {
			kind = "datatype → use a literal as object"
		}
		writeDefinitionLine(&b, pd.IRI, pd.Label, kind)
	}

	b.WriteString("\nQUICK REFERENCE — allowed property IRIs:\n")
	writeIRIList(&b, s.Properties.Values())
	b.WriteString("QUICK REFERENCE — allowed entity ids:\n")
	writeIRIList(&b, sortedKeys(s.EntityIDs))

	b.WriteString("\nReturn a JSON array named \"relations\". Each element:\n")
	b.WriteString(`{"subject_id": "<entity id>", "predicate": "<property IRI>", "object": "<entity id or literal>"}` + "\n")

	return s, Prompt{
		System: systemPreamble("You extract relations between already-identified entities, constrained by an ontology.", s.Rules()),
		User:   b.String(),
	}
}

// systemPreamble composes a stage role statement with its rules block and
// the IRI-copying instruction that addresses the dominant failure mode.
func systemPreamble(role string, rules []Rule) string {
	var b strings.Builder
	b.WriteString(role)
	b.WriteString("\n\nRULES:\n")
	for _, r := range rules {
		tag := "MUST"
		if r.Severity == SeverityWarning {
			tag = "SHOULD"
		}
		fmt.Fprintf(&b, "- [%s] %s\n", tag, r.Text)
	}
	b.WriteString("\nCopy IRIs character-for-character from the quick reference. ")
	b.WriteString("Never re-case an IRI: if the reference says .../PlaysFor, do not write .../playsFor.\n")
	b.WriteString("Respond with ONLY the JSON value — no markdown, no prose.")
	return b.String()
}

func writeText(b *strings.Builder, chunkText string) {
	b.WriteString("TEXT:\n\"\"\"\n")
	b.WriteString(chunkText)
	b.WriteString("\n\"\"\"\n")
}

func writeDefinitionLine(b *strings.Builder, iri, label, desc string) {
	if desc != "" {
		fmt.Fprintf(b, "- %s (%s): %s\n", iri, label, desc)
	} else {
		fmt.Fprintf(b, "- %s (%s)\n", iri, label)
	}
}

func writeIRIList(b *strings.Builder, values []string) {
	for _, v := range values {
		b.WriteString("  ")
		b.WriteString(v)
		b.WriteString("\n")
	}
}

func description(definition, comment string) string {
	if definition != "" {
		return definition
	}
	return comment
}

func localNames(iris []string) []string {
	out := make([]string, len(iris))
	for i, iri := range iris {
		out[i] = ontology.LocalName(iri)
	}
	return out
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
