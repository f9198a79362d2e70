package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidLLMProviders lists the provider names accepted by llm.provider.
var ValidLLMProviders = []string{
	"openai", "anthropic", "gemini", "ollama", "deepseek", "mistral", "groq", "llamacpp", "llamafile",
}

// ValidEmbeddingsProviders lists the provider names accepted by embeddings.provider.
var ValidEmbeddingsProviders = []string{"ollama", "openai"}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults, and
// validates the result. Useful in tests where configs are constructed from
// string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a config with every default applied and no provider
// credentials. Callers still need to set Ontology.Path and LLM.Model before
// running.
func Default() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults fills zero-valued fields with their documented defaults.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = "info"
	}
	if cfg.LLM.Provider == "" {
		cfg.LLM.Provider = "openai"
	}
	if cfg.LLM.TimeoutMs == 0 {
		cfg.LLM.TimeoutMs = 60000
	}
	if cfg.LLM.MaxTokens == 0 {
		cfg.LLM.MaxTokens = 4096
	}
	if cfg.LLM.Temperature == 0 {
		cfg.LLM.Temperature = 0.1
	}
	if cfg.LLM.Rate.RequestsPerSecond == 0 {
		cfg.LLM.Rate.RequestsPerSecond = 2
	}
	if cfg.LLM.Rate.RequestsPerMinute == 0 {
		cfg.LLM.Rate.RequestsPerMinute = 60
	}
	if cfg.Runtime.ExtractionConcurrency == 0 {
		cfg.Runtime.ExtractionConcurrency = 2
	}
	if cfg.Runtime.RetryMaxAttempts == 0 {
		cfg.Runtime.RetryMaxAttempts = 8
	}
	if cfg.Runtime.RetryInitialDelayMs == 0 {
		cfg.Runtime.RetryInitialDelayMs = 3000
	}
	if cfg.Runtime.RetryMaxDelayMs == 0 {
		cfg.Runtime.RetryMaxDelayMs = 30000
	}
	if cfg.RDF.BaseNamespace == "" {
		cfg.RDF.BaseNamespace = "http://example.org/kg/"
	}
	if cfg.RDF.OutputFormat == "" {
		cfg.RDF.OutputFormat = "turtle"
	}
	if cfg.Chunking.MaxChars == 0 {
		cfg.Chunking.MaxChars = 500
	}
	if cfg.Chunking.OverlapSentences == 0 {
		cfg.Chunking.OverlapSentences = 2
	}
	if cfg.Chunking.PreserveSentences == nil {
		t := true
		cfg.Chunking.PreserveSentences = &t
	}
	if cfg.Retrieval.TopKClasses == 0 {
		cfg.Retrieval.TopKClasses = 8
	}
	if cfg.Retrieval.TopKProperties == 0 {
		cfg.Retrieval.TopKProperties = 8
	}
	if cfg.Embeddings.Provider == "" {
		cfg.Embeddings.Provider = "ollama"
	}
	if cfg.Embeddings.Model == "" {
		cfg.Embeddings.Model = "nomic-embed-text"
	}
	if cfg.Grounding.ConfidenceThreshold == 0 {
		cfg.Grounding.ConfidenceThreshold = 0.8
	}
	if cfg.Grounding.BatchSize == 0 {
		cfg.Grounding.BatchSize = 5
	}
	if cfg.Memory.EmbeddingDimensions == 0 {
		cfg.Memory.EmbeddingDimensions = 768
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if !slices.Contains([]string{"debug", "info", "warn", "error"}, cfg.Server.LogLevel) {
		errs = append(errs, fmt.Errorf("server.log_level: unknown level %q", cfg.Server.LogLevel))
	}
	if !slices.Contains(ValidLLMProviders, cfg.LLM.Provider) {
		errs = append(errs, fmt.Errorf("llm.provider: unknown provider %q", cfg.LLM.Provider))
	}
	if cfg.LLM.Temperature < 0 || cfg.LLM.Temperature > 2 {
		errs = append(errs, fmt.Errorf("llm.temperature: %v outside [0, 2]", cfg.LLM.Temperature))
	}
	if cfg.LLM.Rate.RequestsPerSecond <= 0 {
		errs = append(errs, errors.New("llm.rate.requests_per_second: must be positive"))
	}
	if cfg.LLM.Rate.RequestsPerMinute <= 0 {
		errs = append(errs, errors.New("llm.rate.requests_per_minute: must be positive"))
	}
	if cfg.Runtime.ExtractionConcurrency < 1 {
		errs = append(errs, errors.New("runtime.extraction_concurrency: must be at least 1"))
	}
	if cfg.Runtime.RetryMaxAttempts < 1 {
		errs = append(errs, errors.New("runtime.retry_max_attempts: must be at least 1"))
	}
	if cfg.Runtime.RetryMaxDelayMs < cfg.Runtime.RetryInitialDelayMs {
		errs = append(errs, errors.New("runtime.retry_max_delay_ms: must not be below retry_initial_delay_ms"))
	}
	if cfg.RDF.OutputFormat != "turtle" {
		errs = append(errs, fmt.Errorf("rdf.output_format: unsupported format %q", cfg.RDF.OutputFormat))
	}
	if cfg.Chunking.MaxChars < 1 {
		errs = append(errs, errors.New("chunking.max_chars: must be positive"))
	}
	if cfg.Chunking.OverlapSentences < 0 {
		errs = append(errs, errors.New("chunking.overlap_sentences: must not be negative"))
	}
	if !slices.Contains(ValidEmbeddingsProviders, cfg.Embeddings.Provider) {
		errs = append(errs, fmt.Errorf("embeddings.provider: unknown provider %q", cfg.Embeddings.Provider))
	}
	if cfg.Grounding.ConfidenceThreshold < 0 || cfg.Grounding.ConfidenceThreshold > 1 {
		errs = append(errs, fmt.Errorf("grounding.confidence_threshold: %v outside [0, 1]", cfg.Grounding.ConfidenceThreshold))
	}
	if cfg.Grounding.BatchSize < 1 {
		errs = append(errs, errors.New("grounding.batch_size: must be at least 1"))
	}
	if cfg.Memory.PostgresDSN != "" && cfg.Memory.EmbeddingDimensions < 1 {
		errs = append(errs, errors.New("memory.embedding_dimensions: must be positive when persistence is enabled"))
	}

	return errors.Join(errs...)
}
