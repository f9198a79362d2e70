package config

import (
	"strings"
	"testing"
)

const validYAML = `
llm:
  provider: ollama
  model: llama3.1
ontology:
  path: testdata/football.ttl
rdf:
  base_namespace: "http://example.org/kg/"
  prefixes:
    ex: "http://example.org/kg/"
`

func TestLoadFromReader_Valid(t *testing.T) {
	cfg, err := LoadFromReader(strings.NewReader(validYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.LLM.Provider != "ollama" {
		t.Errorf("llm.provider = %q, want ollama", cfg.LLM.Provider)
	}
	if cfg.LLM.Model != "llama3.1" {
		t.Errorf("llm.model = %q, want llama3.1", cfg.LLM.Model)
	}
	if cfg.RDF.Prefixes["ex"] != "http://example.org/kg/" {
		t.Errorf("rdf.prefixes[ex] = %q", cfg.RDF.Prefixes["ex"])
	}
}

func TestLoadFromReader_AppliesDefaults(t *testing.T) {
	cfg, err := LoadFromReader(strings.NewReader(validYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.LLM.TimeoutMs != 60000 {
		t.Errorf("llm.timeout_ms = %d, want 60000", cfg.LLM.TimeoutMs)
	}
	if cfg.Runtime.ExtractionConcurrency != 2 {
		t.Errorf("runtime.extraction_concurrency = %d, want 2", cfg.Runtime.ExtractionConcurrency)
	}
	if cfg.Runtime.RetryMaxAttempts != 8 {
		t.Errorf("runtime.retry_max_attempts = %d, want 8", cfg.Runtime.RetryMaxAttempts)
	}
	if cfg.Chunking.MaxChars != 500 {
		t.Errorf("chunking.max_chars = %d, want 500", cfg.Chunking.MaxChars)
	}
	if cfg.Chunking.PreserveSentences == nil || !*cfg.Chunking.PreserveSentences {
		t.Error("chunking.preserve_sentences should default to true")
	}
	if cfg.Grounding.ConfidenceThreshold != 0.8 {
		t.Errorf("grounding.confidence_threshold = %v, want 0.8", cfg.Grounding.ConfidenceThreshold)
	}
	if cfg.Grounding.BatchSize != 5 {
		t.Errorf("grounding.batch_size = %d, want 5", cfg.Grounding.BatchSize)
	}
	if cfg.Embeddings.Provider != "ollama" {
		t.Errorf("embeddings.provider = %q, want ollama", cfg.Embeddings.Provider)
	}
}

func TestLoadFromReader_UnknownField(t *testing.T) {
	_, err := LoadFromReader(strings.NewReader("bogus_key: 1\n"))
	if err == nil {
		t.Fatal("expected error for unknown top-level key")
	}
}

func TestValidate_CollectsAllFailures(t *testing.T) {
	cfg := Default()
	cfg.LLM.Provider = "not-a-provider"
	cfg.Grounding.ConfidenceThreshold = 1.5
	cfg.Runtime.ExtractionConcurrency = 0

	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected validation failure")
	}
	msg := err.Error()
	for _, want := range []string{"llm.provider", "grounding.confidence_threshold", "runtime.extraction_concurrency"} {
		if !strings.Contains(msg, want) {
			t.Errorf("error %q missing %q", msg, want)
		}
	}
}

func TestValidate_RejectsNonTurtleOutput(t *testing.T) {
	cfg := Default()
	cfg.RDF.OutputFormat = "rdfxml"
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for non-turtle output format")
	}
}
