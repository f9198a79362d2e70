// Package ground implements the second-pass verification of candidate
// relations: for each chunk, every stage-C relation is presented back to the
// model alongside the chunk text, and only relations the model confirms as
// grounded in that text — with sufficient confidence — survive.
//
// Larger candidate lists are partitioned into fixed-size batches whose
// results are concatenated in order; a chunk with exactly one candidate gets
// a focused single-relation prompt. Missing verdicts fail closed.
package ground

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/MrWong99/ontograph/internal/gateway"
	"github.com/MrWong99/ontograph/internal/graph"
	"github.com/MrWong99/ontograph/internal/observe"
	"github.com/MrWong99/ontograph/internal/ontology"
	"github.com/MrWong99/ontograph/internal/schema"
	"github.com/MrWong99/ontograph/pkg/provider/llm"
)

// groundingTimeoutScale widens the per-attempt timeout for grounding calls,
// which carry more context than extraction calls.
const groundingTimeoutScale = 2.5

// Config tunes the grounding gate.
type Config struct {
	// ConfidenceThreshold is the minimum confidence for a grounded verdict
	// to keep its relation. Default: 0.8.
	ConfidenceThreshold float64

	// BatchSize is the number of candidates verified per LLM call.
	// Default: 5.
	BatchSize int
}

// Candidate is one relation enriched with the display context the model
// needs to judge it.
type Candidate struct {
	// Relation is the stage-C output under judgment.
	Relation graph.Relation

	// SubjectMention and SubjectTypes describe the subject entity.
	SubjectMention string
	SubjectTypes   []string

	// ObjectText is the object's mention for entity references or the
	// rendered literal for datatype relations.
	ObjectText string

	// PredicateLabel is the property's human label.
	PredicateLabel string
}

// BuildCandidates enriches relations with subject/object mentions and types
// and the predicate label, resolving against the chunk's entities and the
// ontology.
func BuildCandidates(relations []graph.Relation, entities []graph.Entity, onto *ontology.Context) []Candidate {
	byID := make(map[string]graph.Entity, len(entities))
	for _, e := range entities {
		byID[e.ID] = e
	}

	out := make([]Candidate, 0, len(relations))
	for _, rel := range relations {
		c := Candidate{Relation: rel, PredicateLabel: ontology.LocalName(rel.Predicate)}
		if pd, ok := onto.PropertyByIRI(rel.Predicate); ok {
			c.PredicateLabel = pd.Label
		}
		if subj, ok := byID[rel.SubjectID]; ok {
			c.SubjectMention = subj.Mention
			c.SubjectTypes = subj.Types
		} else {
			c.SubjectMention = rel.SubjectID
		}
		if rel.Object.IsRef() {
			if obj, ok := byID[rel.Object.EntityID()]; ok {
				c.ObjectText = obj.Mention
			} else {
				c.ObjectText = rel.Object.EntityID()
			}
		} else {
			c.ObjectText = graph.FormatLiteral(rel.Object.Literal())
		}
		out = append(out, c)
	}
	return out
}

// Grounder gates candidate relations through verification calls that share
// the gateway's rate-limit budget with extraction.
type Grounder struct {
	gw      *gateway.Gateway
	cfg     Config
	metrics *observe.Metrics
}

// New creates a Grounder.
func New(gw *gateway.Gateway, cfg Config, metrics *observe.Metrics) *Grounder {
	if cfg.ConfidenceThreshold == 0 {
		cfg.ConfidenceThreshold = 0.8
	}
	if cfg.BatchSize == 0 {
		cfg.BatchSize = 5
	}
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}
	return &Grounder{gw: gw, cfg: cfg, metrics: metrics}
}

// Ground verifies the candidates against the chunk text and returns the
// surviving relations in candidate order.
func (g *Grounder) Ground(ctx context.Context, chunkText string, candidates []Candidate) ([]graph.Relation, llm.Usage, error) {
	var usage llm.Usage
	if len(candidates) == 0 {
		return nil, usage, nil
	}

	start := time.Now()
	defer func() { g.metrics.RecordStage(ctx, "grounding", time.Since(start).Seconds()) }()

	var kept []graph.Relation
	for offset := 0; offset < len(candidates); offset += g.cfg.BatchSize {
		end := min(offset+g.cfg.BatchSize, len(candidates))
		batch := candidates[offset:end]

		survivors, batchUsage, err := g.groundBatch(ctx, chunkText, batch)
		usage.Add(batchUsage)
		if err != nil {
			return nil, usage, err
		}
		kept = append(kept, survivors...)
	}

	dropped := len(candidates) - len(kept)
	if dropped > 0 {
		g.metrics.RelationsDropped.Add(ctx, int64(dropped))
		observe.Logger(ctx).Debug("grounding dropped relations",
			"candidates", len(candidates), "kept", len(kept))
	}
	return kept, usage, nil
}

// groundBatch issues one verification call for up to BatchSize candidates
// and maps verdicts back by index. A candidate without a verdict is treated
// as not grounded.
func (g *Grounder) groundBatch(ctx context.Context, chunkText string, batch []Candidate) ([]graph.Relation, llm.Usage, error) {
	s := &schema.GroundingSchema{Count: len(batch)}
	prompt := buildPrompt(chunkText, batch, s.Rules())

	res, err := g.gw.GenerateObject(ctx, gateway.Request{
		Prompt:       prompt,
		Schema:       s,
		TimeoutScale: groundingTimeoutScale,
	})
	if err != nil {
		return nil, res.Usage, fmt.Errorf("grounding: %w", err)
	}

	verdicts := make(map[int]schema.Grounding, len(batch))
	for _, v := range res.Value.([]schema.Grounding) {
		verdicts[v.Index] = v
	}

	var kept []graph.Relation
	for i, cand := range batch {
		v, ok := verdicts[i]
		if !ok {
			// Missing index fails closed: grounded=false, confidence=0.
			continue
		}
		if v.Grounded && v.Confidence >= g.cfg.ConfidenceThreshold {
			kept = append(kept, cand.Relation)
		}
	}
	return kept, res.Usage, nil
}

// buildPrompt renders the verification request. The single-candidate variant
// asks one focused question instead of presenting a numbered list.
func buildPrompt(chunkText string, batch []Candidate, rules []schema.Rule) schema.Prompt {
	var b strings.Builder
	if len(batch) == 1 {
		b.WriteString("Decide whether the following statement is asserted by the context below.\n\n")
	} else {
		b.WriteString("Decide, for each numbered statement, whether it is asserted by the context below.\n\n")
	}

	b.WriteString("CONTEXT:\n\"\"\"\n")
	b.WriteString(chunkText)
	b.WriteString("\n\"\"\"\n\nSTATEMENTS:\n")
	for i, cand := range batch {
		fmt.Fprintf(&b, "%d. %s (%s) — %s — %s\n",
			i, cand.SubjectMention, strings.Join(localNames(cand.SubjectTypes), ", "),
			cand.PredicateLabel, cand.ObjectText)
	}

	b.WriteString("\nReturn a JSON array named \"verdicts\". Each element:\n")
	b.WriteString(`{"index": <statement number>, "grounded": <true|false>, "confidence": <0.0-1.0>}` + "\n")

	var sys strings.Builder
	sys.WriteString("You verify candidate knowledge-graph statements against a text passage. ")
	sys.WriteString("Use ONLY the provided context; a statement supported elsewhere but not in this context is not grounded.\n\nRULES:\n")
	for _, r := range rules {
		tag := "MUST"
		if r.Severity == schema.SeverityWarning {
			tag = "SHOULD"
		}
		fmt.Fprintf(&sys, "- [%s] %s\n", tag, r.Text)
	}
	sys.WriteString("\nRespond with ONLY the JSON value — no markdown, no prose.")

	return schema.Prompt{System: sys.String(), User: b.String()}
}

func localNames(iris []string) []string {
	out := make([]string, len(iris))
	for i, iri := range iris {
		out[i] = ontology.LocalName(iri)
	}
	return out
}
