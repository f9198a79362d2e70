// Package extract runs the per-chunk extraction stages: mention discovery
// (A), typed-entity extraction (B), and relation extraction (C).
//
// Stage A exists to enable entity-level retrieval: each mention plus its
// context becomes a hybrid-index query, and the union of per-mention class
// candidates forms the ontology slice that stage B is constrained to. Stage
// C is scoped to the properties whose domain covers any extracted type.
//
// Every stage short-circuits to an empty result rather than failing the
// chunk: zero mentions, zero candidate classes, or zero entities all end
// processing early.
package extract

import (
	"context"
	"fmt"
	"time"

	"github.com/MrWong99/ontograph/internal/chunk"
	"github.com/MrWong99/ontograph/internal/gateway"
	"github.com/MrWong99/ontograph/internal/graph"
	"github.com/MrWong99/ontograph/internal/index"
	"github.com/MrWong99/ontograph/internal/observe"
	"github.com/MrWong99/ontograph/internal/ontology"
	"github.com/MrWong99/ontograph/internal/schema"
	"github.com/MrWong99/ontograph/pkg/provider/llm"
)

// Options tunes retrieval fan-out per mention.
type Options struct {
	// TopKClasses is the per-mention class candidate count. Default: 8.
	TopKClasses int

	// TopKProperties is the per-mention property candidate count. Default: 8.
	TopKProperties int
}

// Result carries one chunk's extraction output: typed entities and
// ungrounded candidate relations, plus accumulated token usage.
type Result struct {
	Entities  []graph.Entity
	Relations []graph.Relation
	Usage     llm.Usage
}

// Extractor runs stages A–C for single chunks. Safe for concurrent use: all
// fields are read-only after construction and the gateway synchronises its
// own state.
type Extractor struct {
	gw      *gateway.Gateway
	idx     *index.Index
	gen     *schema.Generator
	onto    *ontology.Context
	opts    Options
	metrics *observe.Metrics
}

// New creates an Extractor.
func New(gw *gateway.Gateway, idx *index.Index, onto *ontology.Context, opts Options, metrics *observe.Metrics) *Extractor {
	if opts.TopKClasses == 0 {
		opts.TopKClasses = 8
	}
	if opts.TopKProperties == 0 {
		opts.TopKProperties = 8
	}
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}
	return &Extractor{
		gw:      gw,
		idx:     idx,
		gen:     schema.NewGenerator(),
		onto:    onto,
		opts:    opts,
		metrics: metrics,
	}
}

// ExtractChunk runs the three stages over one chunk. A zero-valued Result
// with nil error means a short-circuit (nothing extractable); errors are
// stage failures that survived the gateway's retries.
func (e *Extractor) ExtractChunk(ctx context.Context, c chunk.TextChunk) (Result, error) {
	log := observe.Logger(ctx).With("chunk", c.Index)
	var result Result

	// Stage A — mentions.
	mentions, usage, err := e.extractMentions(ctx, c.Text)
	result.Usage.Add(usage)
	if err != nil {
		return result, fmt.Errorf("stage A: %w", err)
	}
	if len(mentions) == 0 {
		log.Debug("no mentions, chunk short-circuits")
		return result, nil
	}

	// Entity-level retrieval — per-mention class candidates.
	classes, err := e.retrieveClasses(ctx, mentions)
	if err != nil {
		return result, fmt.Errorf("class retrieval: %w", err)
	}
	if len(classes) == 0 {
		log.Debug("no candidate classes, chunk short-circuits")
		return result, nil
	}

	// Stage B — typed entities.
	entities, usage, err := e.extractEntities(ctx, c.Text, classes)
	result.Usage.Add(usage)
	if err != nil {
		return result, fmt.Errorf("stage B: %w", err)
	}
	if len(entities) == 0 {
		log.Debug("no entities, chunk short-circuits")
		return result, nil
	}
	result.Entities = entities

	// Stage C — relations, skipped for degenerate inputs.
	var types []string
	for _, entity := range entities {
		types = append(types, entity.Types...)
	}
	props := e.onto.PropertiesForClasses(types, "")
	if len(entities) < 2 || len(props) == 0 {
		log.Debug("stage C skipped", "entities", len(entities), "properties", len(props))
		return result, nil
	}

	relations, usage, err := e.extractRelations(ctx, c.Text, entities, props)
	result.Usage.Add(usage)
	if err != nil {
		return result, fmt.Errorf("stage C: %w", err)
	}
	result.Relations = relations
	return result, nil
}

// extractMentions runs stage A and fills in deterministic ids where the
// model's id was missing or non-conforming.
func (e *Extractor) extractMentions(ctx context.Context, text string) ([]schema.Mention, llm.Usage, error) {
	start := time.Now()
	defer func() { e.metrics.RecordStage(ctx, "mention", time.Since(start).Seconds()) }()

	s, prompt := e.gen.MentionStage(text)
	res, err := e.gw.GenerateObject(ctx, gateway.Request{Prompt: prompt, Schema: s})
	if err != nil {
		return nil, res.Usage, err
	}
	logIssues(ctx, "mention", res.Issues)

	var mentions []schema.Mention
	for _, m := range res.Value.([]schema.Mention) {
		if m.ID == "" {
			m.ID = GenerateID(m.Mention)
		}
		if m.ID == "" {
			continue
		}
		mentions = append(mentions, m)
	}
	return mentions, res.Usage, nil
}

// retrieveClasses queries the hybrid index once per mention and unions the
// candidates, preserving first-seen order (deterministic given the index's
// determinism). Property hits contribute their domain classes.
func (e *Extractor) retrieveClasses(ctx context.Context, mentions []schema.Mention) ([]*ontology.ClassDefinition, error) {
	seen := make(map[string]bool)
	var classes []*ontology.ClassDefinition
	addIRI := func(iri string) {
		if seen[iri] {
			return
		}
		seen[iri] = true
		if cd, ok := e.onto.ClassByIRI(iri); ok {
			classes = append(classes, cd)
		}
	}

	for _, m := range mentions {
		query := m.Mention
		if m.Context != "" {
			query += " " + m.Context
		}

		classHits, err := e.idx.SearchClasses(ctx, query, e.opts.TopKClasses)
		if err != nil {
			return nil, err
		}
		for _, hit := range classHits {
			addIRI(hit.IRI)
		}

		_, implied, err := e.idx.SearchProperties(ctx, query, e.opts.TopKProperties)
		if err != nil {
			return nil, err
		}
		for _, hit := range implied {
			addIRI(hit.IRI)
		}
	}
	return classes, nil
}

// extractEntities runs stage B against the aggregated class slice plus the
// datatype properties applying to it.
func (e *Extractor) extractEntities(ctx context.Context, text string, classes []*ontology.ClassDefinition) ([]graph.Entity, llm.Usage, error) {
	start := time.Now()
	defer func() { e.metrics.RecordStage(ctx, "entity", time.Since(start).Seconds()) }()

	classIRIs := make([]string, len(classes))
	for i, cd := range classes {
		classIRIs[i] = cd.IRI
	}
	attrs := e.onto.PropertiesForClasses(classIRIs, ontology.RangeDatatype)

	s, prompt := e.gen.EntityStage(text, classes, attrs)
	res, err := e.gw.GenerateObject(ctx, gateway.Request{Prompt: prompt, Schema: s})
	if err != nil {
		return nil, res.Usage, err
	}
	logIssues(ctx, "entity", res.Issues)
	return res.Value.([]graph.Entity), res.Usage, nil
}

// extractRelations runs stage C over the stage-B entities and the property
// union scoped to their types.
func (e *Extractor) extractRelations(ctx context.Context, text string, entities []graph.Entity, props []*ontology.PropertyDefinition) ([]graph.Relation, llm.Usage, error) {
	start := time.Now()
	defer func() { e.metrics.RecordStage(ctx, "relation", time.Since(start).Seconds()) }()

	s, prompt := e.gen.RelationStage(text, entities, props)
	res, err := e.gw.GenerateObject(ctx, gateway.Request{Prompt: prompt, Schema: s})
	if err != nil {
		return nil, res.Usage, err
	}
	logIssues(ctx, "relation", res.Issues)
	return res.Value.([]graph.Relation), res.Usage, nil
}

// logIssues reports recovered per-row findings without failing anything.
func logIssues(ctx context.Context, stage string, issues []schema.Issue) {
	if len(issues) == 0 {
		return
	}
	log := observe.Logger(ctx)
	for _, issue := range issues {
		log.Debug("row filtered", "stage", stage, "path", issue.Path, "reason", issue.Message)
	}
}
