// Package gateway wraps an llm.Provider with everything the extraction
// pipeline needs from a structured-output caller: dual token-bucket rate
// limiting, per-attempt timeouts, exponential backoff with jitter on
// transport failures, and validation-feedback retries on schema failures.
//
// A schema failure rebuilds the conversation: the original user message, an
// assistant turn holding the invalid output, and a user turn carrying the
// validator's path-addressed error description plus a reminder of the hard
// rules. A transport failure retries the identical prompt after backoff.
// Both failure modes draw from one shared attempt budget.
//
// The gateway adds no stochasticity of its own: at temperature 0 it is as
// deterministic as the provider allows.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/MrWong99/ontograph/internal/errs"
	"github.com/MrWong99/ontograph/internal/observe"
	"github.com/MrWong99/ontograph/internal/schema"
	"github.com/MrWong99/ontograph/pkg/provider/llm"
)

// Config tunes the gateway. Zero values fall back to the documented
// defaults.
type Config struct {
	// MaxAttempts is the total attempt budget per call, shared between
	// transport retries and validation-feedback retries. Default: 8.
	MaxAttempts int

	// InitialDelay is the first transport backoff delay. Default: 3s.
	InitialDelay time.Duration

	// MaxDelay caps the exponential backoff. Default: 30s.
	MaxDelay time.Duration

	// AttemptTimeout is the per-attempt wall clock. Default: 60s.
	AttemptTimeout time.Duration

	// Temperature and MaxTokens are passed through to the provider.
	Temperature float64
	MaxTokens   int

	// RequestsPerSecond is the burst bucket refill rate. Default: 2.
	RequestsPerSecond float64

	// RequestsPerMinute is the sustained bucket refill rate. Default: 60.
	RequestsPerMinute float64
}

func (c *Config) applyDefaults() {
	if c.MaxAttempts == 0 {
		c.MaxAttempts = 8
	}
	if c.InitialDelay == 0 {
		c.InitialDelay = 3 * time.Second
	}
	if c.MaxDelay == 0 {
		c.MaxDelay = 30 * time.Second
	}
	if c.AttemptTimeout == 0 {
		c.AttemptTimeout = 60 * time.Second
	}
	if c.RequestsPerSecond == 0 {
		c.RequestsPerSecond = 2
	}
	if c.RequestsPerMinute == 0 {
		c.RequestsPerMinute = 60
	}
}

// Request is one structured-output generation.
type Request struct {
	// Prompt is the stage prompt pair produced by the schema generator.
	Prompt schema.Prompt

	// Schema validates and decodes the model output.
	Schema schema.Schema

	// TimeoutScale multiplies the per-attempt timeout; grounding calls pass
	// a larger window. Zero means 1.
	TimeoutScale float64
}

// Result is a successful generation.
type Result struct {
	// Value is the schema-decoded output.
	Value any

	// Issues holds recovered row-level findings for the caller to log.
	Issues []schema.Issue

	// Usage is the accumulated token usage across all attempts.
	Usage llm.Usage
}

// Gateway is the rate-limited, retrying structured-output caller. Safe for
// concurrent use; the limiter state is the only mutable part and the rate
// package synchronises it internally, with FIFO ordering on waiters.
type Gateway struct {
	provider llm.Provider
	cfg      Config
	metrics  *observe.Metrics

	// Dual token buckets: a request waits on both before issuing.
	secBucket *rate.Limiter
	minBucket *rate.Limiter
}

// New creates a Gateway over the provider.
func New(provider llm.Provider, cfg Config, metrics *observe.Metrics) *Gateway {
	cfg.applyDefaults()
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}
	return &Gateway{
		provider:  provider,
		cfg:       cfg,
		metrics:   metrics,
		secBucket: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst(cfg.RequestsPerSecond)),
		minBucket: rate.NewLimiter(rate.Limit(cfg.RequestsPerMinute/60), burst(cfg.RequestsPerMinute/60)),
	}
}

func burst(perSecond float64) int {
	if perSecond < 1 {
		return 1
	}
	return int(perSecond)
}

// GenerateObject runs the request to completion: rate-limit wait, provider
// call, schema decode, and retries per failure mode until the attempt budget
// is spent. On caller cancellation the in-flight attempt is abandoned and no
// further retries are scheduled.
func (g *Gateway) GenerateObject(ctx context.Context, req Request) (Result, error) {
	log := observe.Logger(ctx)

	messages := []llm.Message{{Role: llm.RoleUser, Content: req.Prompt.User}}
	timeout := g.cfg.AttemptTimeout
	if req.TimeoutScale > 0 {
		timeout = time.Duration(float64(timeout) * req.TimeoutScale)
	}

	var usage llm.Usage
	var lastErr error
	transportFailures := 0

	for attempt := 1; attempt <= g.cfg.MaxAttempts; attempt++ {
		if err := g.waitBuckets(ctx); err != nil {
			return Result{Usage: usage}, err
		}

		attemptCtx, cancel := context.WithTimeout(ctx, timeout)
		resp, err := g.provider.Complete(attemptCtx, llm.CompletionRequest{
			Messages:     messages,
			SystemPrompt: req.Prompt.System,
			Temperature:  g.cfg.Temperature,
			MaxTokens:    g.cfg.MaxTokens,
		})
		attemptTimedOut := attemptCtx.Err() != nil && ctx.Err() == nil
		cancel()

		if err != nil {
			if ctx.Err() != nil {
				// Caller cancelled: abandon without counting the attempt.
				return Result{Usage: usage}, ctx.Err()
			}
			category := classifyTransport(err, attemptTimedOut)
			g.metrics.RecordLLMRequest(ctx, string(category))
			lastErr = errs.Wrap(category, fmt.Sprintf("attempt %d/%d", attempt, g.cfg.MaxAttempts), err)
			log.Warn("llm attempt failed",
				"attempt", attempt, "category", string(category), "error", err)

			transportFailures++
			if attempt < g.cfg.MaxAttempts {
				if err := g.backoff(ctx, transportFailures); err != nil {
					return Result{Usage: usage}, err
				}
			}
			continue
		}

		usage.Add(resp.Usage)
		g.metrics.RecordTokens(ctx, resp.Usage.PromptTokens, resp.Usage.CompletionTokens)

		value, issues, err := req.Schema.Decode([]byte(stripFences(resp.Content)))
		if err != nil {
			g.metrics.RecordLLMRequest(ctx, "schema_invalid")
			lastErr = errs.Wrap(errs.CategoryLlmInvalidResponse, req.Schema.ObjectName(), err)
			log.Warn("llm output failed validation",
				"attempt", attempt, "object", req.Schema.ObjectName(), "error", err)
			messages = appendFeedback(messages, resp.Content, err, req.Schema)
			continue
		}

		g.metrics.RecordLLMRequest(ctx, "ok")
		return Result{Value: value, Issues: issues, Usage: usage}, nil
	}

	return Result{Usage: usage}, lastErr
}

// waitBuckets blocks until both rate buckets admit one request.
func (g *Gateway) waitBuckets(ctx context.Context) error {
	if err := g.secBucket.Wait(ctx); err != nil {
		return err
	}
	return g.minBucket.Wait(ctx)
}

// backoff sleeps for an exponentially growing, jittered delay. failure is
// the count of transport failures so far (1-based).
func (g *Gateway) backoff(ctx context.Context, failure int) error {
	delay := g.cfg.InitialDelay << (failure - 1)
	if delay > g.cfg.MaxDelay || delay <= 0 {
		delay = g.cfg.MaxDelay
	}
	// Full jitter over [delay/2, delay].
	delay = delay/2 + time.Duration(rand.Int64N(int64(delay/2)+1))

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// classifyTransport maps a provider error onto the error surface: per-attempt
// deadline → timeout, provider throttling → rate limit, anything else →
// extraction-level transport failure.
func classifyTransport(err error, attemptTimedOut bool) errs.Category {
	if attemptTimedOut || errors.Is(err, context.DeadlineExceeded) {
		return errs.CategoryLlmTimeout
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "429") || strings.Contains(msg, "rate limit") || strings.Contains(msg, "too many requests") {
		return errs.CategoryLlmRateLimit
	}
	return errs.CategoryExtractionFailed
}

// appendFeedback extends the conversation with the invalid output and a
// correction turn quoting the validator errors and the hard rules.
func appendFeedback(messages []llm.Message, rawOutput string, verr error, s schema.Schema) []llm.Message {
	var b strings.Builder
	b.WriteString("Your previous response was invalid.\n\n")
	b.WriteString(verr.Error())
	b.WriteString("\n\nCritical rules:\n")
	for _, r := range s.Rules() {
		if r.Severity == schema.SeverityError {
			b.WriteString("- ")
			b.WriteString(r.Text)
			b.WriteString("\n")
		}
	}
	b.WriteString("\nReturn ONLY the corrected JSON.")

	return append(messages,
		llm.Message{Role: llm.RoleAssistant, Content: truncateForFeedback(rawOutput)},
		llm.Message{Role: llm.RoleUser, Content: b.String()},
	)
}

// feedbackOutputCap bounds how much of an invalid output is replayed into
// the correction conversation.
const feedbackOutputCap = 4096

func truncateForFeedback(s string) string {
	if len(s) <= feedbackOutputCap {
		return s
	}
	return s[:feedbackOutputCap] + "…"
}

// stripFences removes a markdown code fence around a JSON payload. Models
// wrap output in ```json fences despite instructions often enough that the
// gateway tolerates it rather than spending a retry.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.Index(s, "\n"); i >= 0 {
		s = s[i+1:] // drop the language tag line
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
