// Package mock provides a test double for the llm.Provider interface.
//
// Use Provider in unit tests to verify that the gateway and extractor send
// correct CompletionRequests and to feed controlled responses without a live
// LLM backend. Responses can be scripted in sequence, which is how retry
// behaviour is exercised: an invalid response followed by a corrected one.
//
//	p := &mock.Provider{}
//	p.Script(`not json`, `[{"id": "x", "mention": "X", "context": ""}]`)
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/ontograph/pkg/provider/llm"
)

var _ llm.Provider = (*Provider)(nil)

// CompleteCall records a single invocation of Complete.
type CompleteCall struct {
	// Req is the CompletionRequest passed to Complete.
	Req llm.CompletionRequest
}

// Provider is a mock implementation of llm.Provider.
//
// If Responses is non-empty, Complete pops responses in order, repeating the
// last one when the script runs out. Errs is consulted per call index: a
// non-nil entry is returned instead of the response at that position.
type Provider struct {
	mu sync.Mutex

	// Responses is the scripted sequence of completion contents.
	Responses []string

	// Errs maps call index to an injected error for that call.
	Errs map[int]error

	// UsagePerCall is returned as the Usage of every successful call.
	UsagePerCall llm.Usage

	// ModelIDValue is returned by ModelID. Defaults to "mock-model".
	ModelIDValue string

	// Calls records every invocation of Complete in order.
	Calls []CompleteCall

	callCount int
}

// Script replaces the response sequence.
func (p *Provider) Script(responses ...string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Responses = responses
	p.callCount = 0
	p.Calls = nil
}

// Complete implements llm.Provider.
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	idx := p.callCount
	p.callCount++
	p.Calls = append(p.Calls, CompleteCall{Req: req})

	if err, ok := p.Errs[idx]; ok && err != nil {
		return nil, err
	}

	content := ""
	if len(p.Responses) > 0 {
		if idx >= len(p.Responses) {
			idx = len(p.Responses) - 1
		}
		content = p.Responses[idx]
	}
	return &llm.CompletionResponse{Content: content, Usage: p.UsagePerCall}, nil
}

// ModelID implements llm.Provider.
func (p *Provider) ModelID() string {
	if p.ModelIDValue == "" {
		return "mock-model"
	}
	return p.ModelIDValue
}

// CallCount reports how many times Complete was invoked.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.callCount
}
