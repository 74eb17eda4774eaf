// Package mock provides a scripted test double for generate.Generator.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/mockprep/internal/generate"
)

// Reply is one scripted response.
type Reply struct {
	Text string
	Err  error
}

// Generator replays Replies in order and records every prompt. Once the
// script is exhausted the last reply repeats. With no replies it returns
// ("", nil).
type Generator struct {
	mu      sync.Mutex
	Replies []Reply
	Prompts []string
}

var _ generate.Generator = (*Generator)(nil)

// New returns a Generator that always answers text.
func New(text string) *Generator {
	return &Generator{Replies: []Reply{{Text: text}}}
}

// Failing returns a Generator that always fails with err.
func Failing(err error) *Generator {
	return &Generator{Replies: []Reply{{Err: err}}}
}

// Generate records prompt and returns the next scripted reply.
func (g *Generator) Generate(_ context.Context, prompt string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	idx := len(g.Prompts)
	g.Prompts = append(g.Prompts, prompt)
	if len(g.Replies) == 0 {
		return "", nil
	}
	if idx >= len(g.Replies) {
		idx = len(g.Replies) - 1
	}
	r := g.Replies[idx]
	return r.Text, r.Err
}

// Calls returns the number of Generate invocations.
func (g *Generator) Calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.Prompts)
}

// LastPrompt returns the most recent prompt, or "".
func (g *Generator) LastPrompt() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.Prompts) == 0 {
		return ""
	}
	return g.Prompts[len(g.Prompts)-1]
}
