// Command ontograph extracts an ontology-constrained knowledge graph from a
// text document and writes the result as Turtle.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/MrWong99/ontograph/internal/chunk"
	"github.com/MrWong99/ontograph/internal/config"
	"github.com/MrWong99/ontograph/internal/emit"
	"github.com/MrWong99/ontograph/internal/extract"
	"github.com/MrWong99/ontograph/internal/gateway"
	"github.com/MrWong99/ontograph/internal/ground"
	"github.com/MrWong99/ontograph/internal/index"
	"github.com/MrWong99/ontograph/internal/observe"
	"github.com/MrWong99/ontograph/internal/ontology"
	"github.com/MrWong99/ontograph/internal/pipeline"
	"github.com/MrWong99/ontograph/internal/resolve"
	"github.com/MrWong99/ontograph/pkg/memory"
	pgmemory "github.com/MrWong99/ontograph/pkg/memory/postgres"
	"github.com/MrWong99/ontograph/pkg/provider/embeddings"
	embollama "github.com/MrWong99/ontograph/pkg/provider/embeddings/ollama"
	embopenai "github.com/MrWong99/ontograph/pkg/provider/embeddings/openai"
	"github.com/MrWong99/ontograph/pkg/provider/llm/anyllm"
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	inputPath := flag.String("in", "-", "path to the input document ('-' for stdin)")
	outputPath := flag.String("out", "-", "path for the Turtle output ('-' for stdout)")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "ontograph: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "ontograph: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	slog.SetDefault(newLogger(cfg.Server.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	shutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceName: "ontograph"})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown", "err", err)
		}
	}()

	// ── Inputs ────────────────────────────────────────────────────────────────
	document, err := readInput(*inputPath)
	if err != nil {
		slog.Error("failed to read document", "err", err)
		return 1
	}

	onto, err := ontology.Load(cfg.Ontology.Path)
	if err != nil {
		slog.Error("failed to load ontology", "err", err)
		return 1
	}
	slog.Info("ontology loaded",
		"path", cfg.Ontology.Path,
		"classes", onto.ClassCount(),
		"properties", onto.PropertyCount(),
	)

	// ── Providers ─────────────────────────────────────────────────────────────
	embedder, err := buildEmbedder(cfg)
	if err != nil {
		slog.Error("failed to build embeddings provider", "err", err)
		return 1
	}

	var llmOpts []anyllmlib.Option
	if cfg.LLM.APIKey != "" {
		llmOpts = append(llmOpts, anyllmlib.WithAPIKey(cfg.LLM.APIKey))
	}
	if cfg.LLM.BaseURL != "" {
		llmOpts = append(llmOpts, anyllmlib.WithBaseURL(cfg.LLM.BaseURL))
	}
	provider, err := anyllm.New(cfg.LLM.Provider, cfg.LLM.Model, llmOpts...)
	if err != nil {
		slog.Error("failed to build llm provider", "err", err)
		return 1
	}

	// ── Pipeline wiring ───────────────────────────────────────────────────────
	idx, err := index.Build(ctx, onto, embedder, index.Options{})
	if err != nil {
		slog.Error("failed to build hybrid index", "err", err)
		return 1
	}

	gw := gateway.New(provider, gateway.Config{
		MaxAttempts:       cfg.Runtime.RetryMaxAttempts,
		InitialDelay:      time.Duration(cfg.Runtime.RetryInitialDelayMs) * time.Millisecond,
		MaxDelay:          time.Duration(cfg.Runtime.RetryMaxDelayMs) * time.Millisecond,
		AttemptTimeout:    time.Duration(cfg.LLM.TimeoutMs) * time.Millisecond,
		Temperature:       cfg.LLM.Temperature,
		MaxTokens:         cfg.LLM.MaxTokens,
		RequestsPerSecond: cfg.LLM.Rate.RequestsPerSecond,
		RequestsPerMinute: cfg.LLM.Rate.RequestsPerMinute,
	}, nil)

	extractor := extract.New(gw, idx, onto, extract.Options{
		TopKClasses:    cfg.Retrieval.TopKClasses,
		TopKProperties: cfg.Retrieval.TopKProperties,
	}, nil)
	grounder := ground.New(gw, ground.Config{
		ConfidenceThreshold: cfg.Grounding.ConfidenceThreshold,
		BatchSize:           cfg.Grounding.BatchSize,
	}, nil)
	emitter := emit.New(emit.Config{
		BaseNamespace: cfg.RDF.BaseNamespace,
		Prefixes:      cfg.RDF.Prefixes,
	})

	pipe := pipeline.New(extractor, grounder, onto, emitter, pipeline.Config{
		Concurrency: cfg.Runtime.ExtractionConcurrency,
		Chunking:    chunkOptions(cfg),
		Resolver:    resolve.DefaultConfig(),
	}, nil)

	slog.Info("ontograph starting",
		"llm", cfg.LLM.Provider+"/"+cfg.LLM.Model,
		"embeddings", embedder.ModelID(),
		"concurrency", cfg.Runtime.ExtractionConcurrency,
	)

	// ── Run ───────────────────────────────────────────────────────────────────
	result, err := pipe.Run(ctx, document)
	if err != nil {
		slog.Error("extraction failed", "err", err)
		return 1
	}

	if err := writeOutput(*outputPath, result.Turtle); err != nil {
		slog.Error("failed to write output", "err", err)
		return 1
	}

	// Optional persistence of the run for later lookup and semantic search.
	if cfg.Memory.PostgresDSN != "" {
		if err := persistRun(ctx, cfg, embedder, document, result); err != nil {
			slog.Warn("failed to persist run", "err", err)
		}
	}

	slog.Info("done",
		"entities", len(result.Graph.Entities),
		"relations", len(result.Graph.Relations),
		"chunks_failed", result.Stats.ChunksFailed,
		"tokens", result.Stats.Usage.TotalTokens,
	)
	return 0
}

// chunkOptions maps the config onto the chunker options. Used for both the
// pipeline and persistence (the stored chunks must match what was extracted).
func chunkOptions(cfg *config.Config) chunk.Options {
	return chunk.Options{
		MaxChars:          cfg.Chunking.MaxChars,
		OverlapSentences:  cfg.Chunking.OverlapSentences,
		PreserveSentences: cfg.Chunking.PreserveSentences == nil || *cfg.Chunking.PreserveSentences,
	}
}

// persistRun stores the resolved graph and the source chunks (with
// embeddings, when the embedder cooperates) in the configured pgvector store.
func persistRun(ctx context.Context, cfg *config.Config, embedder embeddings.Provider, document string, result pipeline.Result) error {
	store, err := pgmemory.Connect(ctx, cfg.Memory.PostgresDSN, cfg.Memory.EmbeddingDimensions)
	if err != nil {
		return err
	}
	defer store.Close()

	run := memory.Run{
		ID:           fmt.Sprintf("run-%d", time.Now().UnixNano()),
		OntologyPath: cfg.Ontology.Path,
		Model:        cfg.LLM.Provider + "/" + cfg.LLM.Model,
	}

	for _, e := range result.Graph.Entities {
		run.Entities = append(run.Entities, memory.Entity{
			ID:         e.ID,
			Mention:    e.Mention,
			Types:      e.Types,
			Attributes: e.Attributes,
		})
	}
	for _, r := range result.Graph.Relations {
		rel := memory.Relation{SubjectID: r.SubjectID, Predicate: r.Predicate}
		if r.Object.IsRef() {
			rel.ObjectID = r.Object.EntityID()
		} else {
			rel.Literal = r.Object.Literal()
			rel.IsLiteral = true
		}
		run.Relations = append(run.Relations, rel)
	}

	chunks := chunk.Chunk(chunk.Normalize(document), chunkOptions(cfg))
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vecs, err := embedder.EmbedBatch(ctx, texts)
	if err != nil {
		slog.Warn("chunk embedding for persistence failed, storing text only", "err", err)
		vecs = nil
	}
	for i, c := range chunks {
		mc := memory.Chunk{Index: c.Index, Text: c.Text}
		if vecs != nil {
			mc.Embedding = vecs[i]
		}
		run.Chunks = append(run.Chunks, mc)
	}

	if err := store.SaveRun(ctx, run); err != nil {
		return err
	}
	slog.Info("run persisted", "run_id", run.ID, "chunks", len(run.Chunks))
	return nil
}

// buildEmbedder instantiates the configured embeddings backend.
func buildEmbedder(cfg *config.Config) (embeddings.Provider, error) {
	switch cfg.Embeddings.Provider {
	case "ollama":
		return embollama.New(cfg.Embeddings.BaseURL, cfg.Embeddings.Model)
	case "openai":
		var opts []embopenai.Option
		if cfg.Embeddings.BaseURL != "" {
			opts = append(opts, embopenai.WithBaseURL(cfg.Embeddings.BaseURL))
		}
		return embopenai.New(cfg.Embeddings.APIKey, cfg.Embeddings.Model, opts...)
	default:
		return nil, fmt.Errorf("unknown embeddings provider %q", cfg.Embeddings.Provider)
	}
}

func readInput(path string) (string, error) {
	if path == "-" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		return string(data), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read %q: %w", path, err)
	}
	return string(data), nil
}

func writeOutput(path, content string) error {
	if path == "-" {
		_, err := os.Stdout.WriteString(content)
		return err
	}
	return os.WriteFile(path, []byte(content), 0o644)
}

// newLogger builds the process logger at the configured level.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
