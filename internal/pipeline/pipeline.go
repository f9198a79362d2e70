// Package pipeline orchestrates the full extraction run: chunking, bounded
// parallel per-chunk extraction and grounding, the concurrent merge fold,
// cross-chunk entity resolution, and Turtle emission.
//
// Per-chunk isolation is absolute: a chunk whose stages fail after all
// gateway retries is logged and replaced by an empty fragment — one broken
// chunk never terminates the run. Fragments reach the reducer unordered; the
// merge monoid's algebra makes the fold result order-independent, and the
// emitted output is sorted deterministically.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/ontograph/internal/chunk"
	"github.com/MrWong99/ontograph/internal/emit"
	"github.com/MrWong99/ontograph/internal/errs"
	"github.com/MrWong99/ontograph/internal/extract"
	"github.com/MrWong99/ontograph/internal/graph"
	"github.com/MrWong99/ontograph/internal/ground"
	"github.com/MrWong99/ontograph/internal/observe"
	"github.com/MrWong99/ontograph/internal/ontology"
	"github.com/MrWong99/ontograph/internal/resolve"
	"github.com/MrWong99/ontograph/pkg/provider/llm"
)

// Config tunes the orchestrator.
type Config struct {
	// Concurrency bounds in-flight chunks. Default: 2.
	Concurrency int

	// Chunking configures text preparation.
	Chunking chunk.Options

	// Resolver configures cross-chunk coreference resolution.
	Resolver resolve.Config
}

// Stats summarises one run for logging and metrics.
type Stats struct {
	ChunksTotal  int
	ChunksEmpty  int
	ChunksFailed int

	// RelationCandidates counts stage-C output before grounding;
	// RelationsKept counts survivors.
	RelationCandidates int
	RelationsKept      int

	// Usage is the accumulated LLM token usage across all chunks.
	Usage llm.Usage

	// Conflicts holds attribute disagreements recorded by the tracking
	// merge, for audit.
	Conflicts []graph.MergeConflict
}

// Result is a completed run.
type Result struct {
	// Graph is the resolved document-level knowledge graph.
	Graph graph.KnowledgeGraph

	// Turtle is the serialized output.
	Turtle string

	// Stats summarises the run.
	Stats Stats
}

// Pipeline wires the per-chunk stages to the fold. Safe for repeated and
// concurrent Run calls; all fields are read-only after construction.
type Pipeline struct {
	extractor *extract.Extractor
	grounder  *ground.Grounder
	onto      *ontology.Context
	emitter   *emit.Emitter
	cfg       Config
	metrics   *observe.Metrics
}

// New creates a Pipeline.
func New(extractor *extract.Extractor, grounder *ground.Grounder, onto *ontology.Context, emitter *emit.Emitter, cfg Config, metrics *observe.Metrics) *Pipeline {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 2
	}
	if cfg.Chunking.MaxChars == 0 {
		cfg.Chunking.MaxChars = 500
	}
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}
	return &Pipeline{
		extractor: extractor,
		grounder:  grounder,
		onto:      onto,
		emitter:   emitter,
		cfg:       cfg,
		metrics:   metrics,
	}
}

// fragment is what each chunk worker hands to the reducer.
type fragment struct {
	graph      graph.KnowledgeGraph
	usage      llm.Usage
	failed     bool
	empty      bool
	candidates int
	kept       int
}

// Run executes the pipeline over the document text and returns the Turtle
// serialization with the resolved graph.
//
// On external cancellation the orchestrator stops spawning chunks, lets
// in-flight chunks abandon their current LLM attempt, drains produced
// fragments, and returns the partial result alongside ctx.Err().
func (p *Pipeline) Run(ctx context.Context, text string) (Result, error) {
	ctx, span := observe.StartSpan(ctx, "pipeline.run")
	defer span.End()
	log := observe.Logger(ctx)

	normalized := chunk.Normalize(text)
	chunks := chunk.Chunk(normalized, p.cfg.Chunking)

	var stats Stats
	stats.ChunksTotal = len(chunks)
	span.SetAttributes(attribute.Int("chunks.total", len(chunks)))

	merged := graph.Empty()
	if len(chunks) > 0 {
		fragments := make(chan fragment, 2*p.cfg.Concurrency)

		// Reducer: owns the accumulator; consumes fragments as they arrive.
		reducerDone := make(chan struct{})
		go func() {
			defer close(reducerDone)
			for f := range fragments {
				var conflicts []graph.MergeConflict
				merged, conflicts = graph.MergeTracked(merged, f.graph)
				stats.Conflicts = append(stats.Conflicts, conflicts...)
				stats.Usage.Add(f.usage)
				stats.RelationCandidates += f.candidates
				stats.RelationsKept += f.kept
				if f.failed {
					stats.ChunksFailed++
				} else if f.empty {
					stats.ChunksEmpty++
				}
			}
		}()

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(p.cfg.Concurrency)
		for _, c := range chunks {
			if gctx.Err() != nil {
				// Cancelled: stop spawning new chunks.
				break
			}
			g.Go(func() error {
				fragments <- p.processChunk(gctx, c)
				return nil
			})
		}
		_ = g.Wait()
		close(fragments)
		<-reducerDone

		if err := ctx.Err(); err != nil {
			// Drained fragments are returned alongside the cancellation.
			return Result{Graph: merged, Stats: stats}, err
		}
	}

	resolved := resolve.Resolve(merged, p.cfg.Resolver)

	turtle, err := p.emitter.Emit(resolved)
	if err != nil {
		return Result{Graph: resolved, Stats: stats}, fmt.Errorf("pipeline: %w", err)
	}

	log.Info("extraction complete",
		"chunks", stats.ChunksTotal,
		"failed", stats.ChunksFailed,
		"entities", len(resolved.Entities),
		"relations", len(resolved.Relations),
		"tokens", stats.Usage.TotalTokens)

	return Result{Graph: resolved, Turtle: turtle, Stats: stats}, nil
}

// processChunk runs extraction and grounding for one chunk. Failures degrade
// to an empty fragment — the error never propagates.
func (p *Pipeline) processChunk(ctx context.Context, c chunk.TextChunk) fragment {
	ctx, span := observe.StartSpan(ctx, "pipeline.chunk",
		trace.WithAttributes(attribute.Int("chunk.index", c.Index)))
	defer span.End()
	start := time.Now()
	defer func() { p.metrics.ChunkDuration.Record(ctx, time.Since(start).Seconds()) }()

	log := observe.Logger(ctx).With("chunk", c.Index)

	extracted, err := p.extractor.ExtractChunk(ctx, c)
	if err != nil {
		return p.failChunk(ctx, log, c, extracted.Usage, err)
	}

	relations := extracted.Relations
	candidates := len(relations)
	usage := extracted.Usage

	if candidates > 0 {
		enriched := ground.BuildCandidates(relations, extracted.Entities, p.onto)
		kept, groundUsage, err := p.grounder.Ground(ctx, c.Text, enriched)
		usage.Add(groundUsage)
		if err != nil {
			return p.failChunk(ctx, log, c, usage, err)
		}
		relations = kept
	}

	frag := graph.KnowledgeGraph{
		Entities:   extracted.Entities,
		Relations:  relations,
		Provenance: []int{c.Index},
	}.Normalize()

	return fragment{
		graph:      frag,
		usage:      usage,
		empty:      frag.IsEmpty(),
		candidates: candidates,
		kept:       len(relations),
	}
}

// failChunk logs a per-chunk failure and substitutes the empty fragment.
func (p *Pipeline) failChunk(ctx context.Context, log *slog.Logger, c chunk.TextChunk, usage llm.Usage, cause error) fragment {
	tagged := errs.WrapChunk(errs.CategoryExtractionFailed, "chunk degraded to empty fragment", c.Index, cause)
	log.Error("chunk failed", "error", tagged)
	p.metrics.ChunkFailures.Add(ctx, 1)
	return fragment{graph: graph.Empty(), usage: usage, failed: true}
}
