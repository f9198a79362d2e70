// Package schema synthesizes, per chunk and per extraction stage, the two
// coupled artifacts that bind the LLM: a validation schema constraining its
// structured output, and a prompt presenting the task with the exact same
// allowed-value sets the schema enforces.
//
// Schemas are data-dependent — the allowed class IRIs, property IRIs, and
// entity ids are enumerated at runtime from the retrieved ontology slice —
// so they are built as first-class Go values rather than static
// declarations. Decoding produces localized, path-addressed issues
// ([Issue]); a structural failure yields a [*ValidationError] whose text is
// fed back to the model on retry.
//
// IRI acceptance is case-insensitive with normalization to canonical casing
// on decode (see [IRISet]) — the most common model failure mode is
// rewriting PascalCase IRI local names into camelCase derived from labels.
package schema

import (
	"encoding/json"
	"fmt"

	"github.com/MrWong99/ontograph/internal/graph"
	"github.com/MrWong99/ontograph/internal/ontology"
)

// Severity classifies a rule: error rules are enforced by the schema,
// warning rules are stated in the prompt as preferences.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Rule is one constraint shared between schema enforcement and prompt text.
type Rule struct {
	Severity Severity
	Text     string
}

// Schema validates and decodes one stage's LLM output.
//
// Decode returns the stage-specific value on success. Row-level findings
// that were recovered by filtering are reported as issues; a non-nil error
// (always a [*ValidationError] for validation problems) means the output as
// a whole is unusable and the gateway should retry with feedback.
type Schema interface {
	// ObjectName names the expected payload, e.g. "mentions". Used in
	// prompts and as the accepted wrapper key when the model nests the
	// array inside an object.
	ObjectName() string

	// Rules returns the constraint set this schema enforces, in the order
	// they should be presented in the prompt.
	Rules() []Rule

	// Decode validates data and returns the decoded value, recovered
	// row-level issues, and a fatal validation error if the payload is
	// unusable.
	Decode(data []byte) (any, []Issue, error)
}

// Mention is the stage-A output row: a surface form with enough context to
// retrieve candidate classes for it.
type Mention struct {
	// ID is a provisional snake-case identifier. May be empty after decode
	// when the model supplied a non-conforming one; the extractor generates
	// a deterministic replacement.
	ID string

	// Mention is the exact text span.
	Mention string

	// Context is the surrounding phrase the model saw the mention in.
	Context string
}

// Grounding is one verdict row from the grounding stage.
type Grounding struct {
	Index      int
	Grounded   bool
	Confidence float64
}

// decodeArray accepts either a bare JSON array or an object wrapping the
// array under the given key — models flip between the two shapes.
func decodeArray(data []byte, key string) ([]json.RawMessage, error) {
	var rows []json.RawMessage
	if err := json.Unmarshal(data, &rows); err == nil {
		return rows, nil
	}
	var wrapper map[string]json.RawMessage
	if err := json.Unmarshal(data, &wrapper); err != nil {
		return nil, fmt.Errorf("not a JSON array or object: %w", err)
	}
	inner, ok := wrapper[key]
	if !ok {
		return nil, fmt.Errorf("object has no %q key", key)
	}
	if err := json.Unmarshal(inner, &rows); err != nil {
		return nil, fmt.Errorf("%q is not a JSON array: %w", key, err)
	}
	return rows, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Stage A — mentions
// ─────────────────────────────────────────────────────────────────────────────

// MentionSchema validates the stage-A output: an array of
// {id, mention, context}.
type MentionSchema struct{}

// ObjectName implements Schema.
func (s *MentionSchema) ObjectName() string { return "mentions" }

// Rules implements Schema.
func (s *MentionSchema) Rules() []Rule {
	return []Rule{
		{SeverityError, "Return a JSON array of objects with fields id, mention, context."},
		{SeverityError, "mention must be the exact text span as it appears, preserving case and punctuation."},
		{SeverityError, "id must start with a letter and contain only letters, digits, and underscores."},
		{SeverityWarning, "Prefer short snake_case ids derived from the mention."},
		{SeverityWarning, "context should be the full phrase or clause surrounding the mention."},
	}
}

type rawMention struct {
	ID      string `json:"id"`
	Mention string `json:"mention"`
	Context string `json:"context"`
}

// Decode implements Schema. Rows with empty mentions are dropped; rows with
// non-conforming ids keep the mention but lose the id so the extractor can
// regenerate it deterministically.
func (s *MentionSchema) Decode(data []byte) (any, []Issue, error) {
	rows, err := decodeArray(data, s.ObjectName())
	if err != nil {
		return nil, nil, newValidationError(s.ObjectName(), Issue{Path: "mentions", Message: err.Error()})
	}

	var issues []Issue
	var out []Mention
	for i, raw := range rows {
		path := fmt.Sprintf("mentions[%d]", i)
		var row rawMention
		if err := json.Unmarshal(raw, &row); err != nil {
			issues = append(issues, Issue{Path: path, Message: "not an object with id/mention/context"})
			continue
		}
		if row.Mention == "" {
			issues = append(issues, Issue{Path: path + ".mention", Message: "must not be empty"})
			continue
		}
		if row.ID != "" && !ValidID(row.ID) {
			issues = append(issues, Issue{Path: path + ".id", Message: fmt.Sprintf("%q does not match the identifier pattern", row.ID)})
			row.ID = ""
		}
		out = append(out, Mention{ID: row.ID, Mention: row.Mention, Context: row.Context})
	}
	return out, issues, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Stage B — typed entities
// ─────────────────────────────────────────────────────────────────────────────

// EntitySchema validates the stage-B output against the retrieved ontology
// slice: every type must be an allowed class IRI (case-insensitively,
// normalized on acceptance) and attribute keys are filtered against the
// allowed datatype properties.
type EntitySchema struct {
	// Classes is the allowed class IRI set for this chunk.
	Classes *IRISet

	// Attributes is the allowed datatype-property IRI set for this chunk.
	Attributes *IRISet
}

// ObjectName implements Schema.
func (s *EntitySchema) ObjectName() string { return "entities" }

// Rules implements Schema.
func (s *EntitySchema) Rules() []Rule {
	return []Rule{
		{SeverityError, "Return a JSON array of objects with fields id, mention, types, and optionally attributes."},
		{SeverityError, "Every element of types must be one of the allowed class IRIs, copied character-for-character."},
		{SeverityError, "types must contain at least one class IRI."},
		{SeverityError, "id must start with a letter and contain only letters, digits, and underscores."},
		{SeverityError, "Attribute keys must be allowed datatype property IRIs; values must be strings, numbers, or booleans."},
		{SeverityWarning, "Only extract entities actually denoted in the text; do not invent."},
		{SeverityWarning, "mention must reproduce the surface form exactly."},
	}
}

type rawEntity struct {
	ID         string                     `json:"id"`
	Mention    string                     `json:"mention"`
	Types      []string                   `json:"types"`
	Attributes map[string]json.RawMessage `json:"attributes"`
}

// Decode implements Schema. Individual invalid rows are filtered with
// issues; the payload only fails wholesale when it is structurally broken or
// when every row was rejected.
func (s *EntitySchema) Decode(data []byte) (any, []Issue, error) {
	rows, err := decodeArray(data, s.ObjectName())
	if err != nil {
		return nil, nil, newValidationError(s.ObjectName(), Issue{Path: "entities", Message: err.Error()})
	}

	var issues []Issue
	var out []graph.Entity
	for i, raw := range rows {
		path := fmt.Sprintf("entities[%d]", i)
		var row rawEntity
		if err := json.Unmarshal(raw, &row); err != nil {
			issues = append(issues, Issue{Path: path, Message: "not an object with id/mention/types"})
			continue
		}

		entity, rowIssues, ok := s.decodeRow(path, row)
		issues = append(issues, rowIssues...)
		if ok {
			out = append(out, entity)
		}
	}

	if len(rows) > 0 && len(out) == 0 {
		return nil, nil, newValidationError(s.ObjectName(), issues...)
	}
	return out, issues, nil
}

func (s *EntitySchema) decodeRow(path string, row rawEntity) (graph.Entity, []Issue, bool) {
	var issues []Issue

	if !ValidID(row.ID) {
		issues = append(issues, Issue{Path: path + ".id", Message: fmt.Sprintf("%q does not match the identifier pattern", row.ID)})
		return graph.Entity{}, issues, false
	}
	if row.Mention == "" {
		issues = append(issues, Issue{Path: path + ".mention", Message: "must not be empty"})
		return graph.Entity{}, issues, false
	}

	var types []string
	seen := make(map[string]bool)
	for j, typ := range row.Types {
		canon, ok := s.Classes.Normalize(typ)
		if !ok {
			issues = append(issues, Issue{
				Path:    fmt.Sprintf("%s.types[%d]", path, j),
				Message: fmt.Sprintf("%q is not an allowed class IRI", typ),
			})
			continue
		}
		if !seen[canon] {
			seen[canon] = true
			types = append(types, canon)
		}
	}
	if len(types) == 0 {
		issues = append(issues, Issue{Path: path + ".types", Message: "no valid class IRI remains"})
		return graph.Entity{}, issues, false
	}

	entity := graph.Entity{ID: row.ID, Mention: row.Mention, Types: types}
	for key, rawVal := range row.Attributes {
		canon, ok := s.Attributes.Normalize(key)
		if !ok {
			// Accepted permissively, filtered silently: models pad
			// attributes with keys outside the slice.
			continue
		}
		value, ok := decodeScalar(rawVal)
		if !ok {
			issues = append(issues, Issue{
				Path:    fmt.Sprintf("%s.attributes[%s]", path, key),
				Message: "value must be a string, number, or boolean",
			})
			continue
		}
		if entity.Attributes == nil {
			entity.Attributes = make(map[string]any)
		}
		entity.Attributes[canon] = value
	}
	return entity, issues, true
}

// ─────────────────────────────────────────────────────────────────────────────
// Stage C — relations
// ─────────────────────────────────────────────────────────────────────────────

// RelationSchema validates the stage-C output as a discriminated union per
// property kind: object-property relations must reference one of the
// enumerated stage-B entity ids, datatype-property relations must carry a
// literal.
type RelationSchema struct {
	// Properties is the allowed property IRI set for this chunk.
	Properties *IRISet

	// PropertyDefs maps canonical property IRIs to their definitions, for
	// the object/datatype discrimination.
	PropertyDefs map[string]*ontology.PropertyDefinition

	// EntityIDs is the set of stage-B entity ids valid as subject or
	// object-property object.
	EntityIDs map[string]bool
}

// NewRelationSchema builds the stage-C schema from the scoped properties and
// the stage-B entities.
func NewRelationSchema(props []*ontology.PropertyDefinition, entities []graph.Entity) *RelationSchema {
	iris := make([]string, len(props))
	defs := make(map[string]*ontology.PropertyDefinition, len(props))
	for i, pd := range props {
		iris[i] = pd.IRI
		defs[pd.IRI] = pd
	}
	ids := make(map[string]bool, len(entities))
	for _, e := range entities {
		ids[e.ID] = true
	}
	return &RelationSchema{Properties: NewIRISet(iris), PropertyDefs: defs, EntityIDs: ids}
}

// ObjectName implements Schema.
func (s *RelationSchema) ObjectName() string { return "relations" }

// Rules implements Schema.
func (s *RelationSchema) Rules() []Rule {
	return []Rule{
		{SeverityError, "Return a JSON array of objects with fields subject_id, predicate, object."},
		{SeverityError, "subject_id must be one of the listed entity ids."},
		{SeverityError, "predicate must be one of the allowed property IRIs, copied character-for-character."},
		{SeverityError, "For object properties, object must be one of the listed entity ids."},
		{SeverityError, "For datatype properties, object must be a string, number, or boolean literal."},
		{SeverityWarning, "Only state relations the text itself asserts between the listed entities."},
	}
}

type rawRelation struct {
	SubjectID string          `json:"subject_id"`
	Predicate string          `json:"predicate"`
	Object    json.RawMessage `json:"object"`
}

// Decode implements Schema.
func (s *RelationSchema) Decode(data []byte) (any, []Issue, error) {
	rows, err := decodeArray(data, s.ObjectName())
	if err != nil {
		return nil, nil, newValidationError(s.ObjectName(), Issue{Path: "relations", Message: err.Error()})
	}

	var issues []Issue
	var out []graph.Relation
	for i, raw := range rows {
		path := fmt.Sprintf("relations[%d]", i)
		var row rawRelation
		if err := json.Unmarshal(raw, &row); err != nil {
			issues = append(issues, Issue{Path: path, Message: "not an object with subject_id/predicate/object"})
			continue
		}

		rel, rowIssues, ok := s.decodeRow(path, row)
		issues = append(issues, rowIssues...)
		if ok {
			out = append(out, rel)
		}
	}

	if len(rows) > 0 && len(out) == 0 {
		return nil, nil, newValidationError(s.ObjectName(), issues...)
	}
	return out, issues, nil
}

func (s *RelationSchema) decodeRow(path string, row rawRelation) (graph.Relation, []Issue, bool) {
	var issues []Issue

	if !s.EntityIDs[row.SubjectID] {
		issues = append(issues, Issue{Path: path + ".subject_id", Message: fmt.Sprintf("%q is not a listed entity id", row.SubjectID)})
		return graph.Relation{}, issues, false
	}

	predicate, ok := s.Properties.Normalize(row.Predicate)
	if !ok {
		issues = append(issues, Issue{Path: path + ".predicate", Message: fmt.Sprintf("%q is not an allowed property IRI", row.Predicate)})
		return graph.Relation{}, issues, false
	}
	def := s.PropertyDefs[predicate]

	if def.RangeType == ontology.RangeObject {
		var objectID string
		if err := json.Unmarshal(row.Object, &objectID); err != nil || !s.EntityIDs[objectID] {
			issues = append(issues, Issue{
				Path:    path + ".object",
				Message: fmt.Sprintf("object property %s requires one of the listed entity ids", ontology.LocalName(predicate)),
			})
			return graph.Relation{}, issues, false
		}
		return graph.Relation{SubjectID: row.SubjectID, Predicate: predicate, Object: graph.EntityRef(objectID)}, issues, true
	}

	value, ok := decodeScalar(row.Object)
	if !ok {
		issues = append(issues, Issue{
			Path:    path + ".object",
			Message: fmt.Sprintf("datatype property %s requires a string, number, or boolean literal", ontology.LocalName(predicate)),
		})
		return graph.Relation{}, issues, false
	}
	return graph.Relation{SubjectID: row.SubjectID, Predicate: predicate, Object: graph.LiteralValue(value)}, issues, true
}

// ─────────────────────────────────────────────────────────────────────────────
// Grounding verdicts
// ─────────────────────────────────────────────────────────────────────────────

// GroundingSchema validates the grounding pass output: one verdict per
// numbered candidate.
type GroundingSchema struct {
	// Count is the number of candidates presented; indices outside
	// [0, Count) are rejected.
	Count int
}

// ObjectName implements Schema.
func (s *GroundingSchema) ObjectName() string { return "verdicts" }

// Rules implements Schema.
func (s *GroundingSchema) Rules() []Rule {
	return []Rule{
		{SeverityError, "Return a JSON array of objects with fields index, grounded, confidence."},
		{SeverityError, "index must be the number of a presented triple."},
		{SeverityError, "confidence must be a number between 0 and 1."},
		{SeverityWarning, "Judge each triple using only the provided context, not prior knowledge."},
	}
}

type rawGrounding struct {
	Index      int     `json:"index"`
	Grounded   bool    `json:"grounded"`
	Confidence float64 `json:"confidence"`
}

// Decode implements Schema.
func (s *GroundingSchema) Decode(data []byte) (any, []Issue, error) {
	rows, err := decodeArray(data, s.ObjectName())
	if err != nil {
		return nil, nil, newValidationError(s.ObjectName(), Issue{Path: "verdicts", Message: err.Error()})
	}

	var issues []Issue
	var out []Grounding
	for i, raw := range rows {
		path := fmt.Sprintf("verdicts[%d]", i)
		var row rawGrounding
		if err := json.Unmarshal(raw, &row); err != nil {
			issues = append(issues, Issue{Path: path, Message: "not an object with index/grounded/confidence"})
			continue
		}
		if row.Index < 0 || row.Index >= s.Count {
			issues = append(issues, Issue{Path: path + ".index", Message: fmt.Sprintf("%d is not a presented triple number", row.Index)})
			continue
		}
		if row.Confidence < 0 || row.Confidence > 1 {
			issues = append(issues, Issue{Path: path + ".confidence", Message: "must be between 0 and 1"})
			continue
		}
		out = append(out, Grounding{Index: row.Index, Grounded: row.Grounded, Confidence: row.Confidence})
	}

	if len(rows) > 0 && len(out) == 0 {
		return nil, nil, newValidationError(s.ObjectName(), issues...)
	}
	return out, issues, nil
}

// decodeScalar accepts a JSON string, number, or boolean.
func decodeScalar(raw json.RawMessage) (any, bool) {
	if len(raw) == 0 {
		return nil, false
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, false
	}
	switch v.(type) {
	case string, float64, bool:
		return v, true
	default:
		return nil, false
	}
}
