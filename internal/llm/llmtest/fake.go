// Package llmtest provides a scripted llm.Generator for tests.
package llmtest

import (
	"context"
	"strings"
	"sync"

	"github.com/dshills/datasheet-rag/internal/llm"
)

// Generator is an in-memory llm.Generator. It answers every prompt with Answer,
// or with the result of AnswerFunc when set, and records the prompts it saw.
type Generator struct {
	Answer     string
	AnswerFunc func(prompt string) (string, error)
	Err        error
	Down       bool
	Installed  []string
	ModelName  string

	mu      sync.Mutex
	prompts []string
	opts    []llm.Options
}

var _ llm.Generator = (*Generator)(nil)

// New returns a Generator that always answers with answer
func New(answer string) *Generator {
	return &Generator{Answer: answer, ModelName: "fake-model"}
}

func (g *Generator) record(prompt string, opts llm.Options) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.prompts = append(g.prompts, prompt)
	g.opts = append(g.opts, opts)
}

func (g *Generator) answer(prompt string) (string, error) {
	if g.Err != nil {
		return "", g.Err
	}
	if g.AnswerFunc != nil {
		return g.AnswerFunc(prompt)
	}
	return g.Answer, nil
}

func (g *Generator) Generate(ctx context.Context, prompt string, opts llm.Options) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	g.record(prompt, opts)
	return g.answer(prompt)
}

// Stream emits the answer one whitespace-separated word at a time
func (g *Generator) Stream(ctx context.Context, prompt string, opts llm.Options, fn llm.TokenFunc) error {
	g.record(prompt, opts)
	answer, err := g.answer(prompt)
	if err != nil {
		return err
	}
	for i, word := range strings.Fields(answer) {
		if err := ctx.Err(); err != nil {
			return err
		}
		if i > 0 {
			word = " " + word
		}
		if err := fn(word); err != nil {
			return err
		}
	}
	return nil
}

func (g *Generator) Available(context.Context) bool {
	return !g.Down
}

func (g *Generator) Models(context.Context) ([]string, error) {
	if g.Down {
		return nil, llm.ErrUnavailable
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.Installed...), nil
}

// EnsureModel adds ModelName to Installed when missing
func (g *Generator) EnsureModel(context.Context) error {
	if g.Down {
		return llm.ErrUnavailable
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, name := range g.Installed {
		if strings.Contains(name, g.ModelName) {
			return nil
		}
	}
	g.Installed = append(g.Installed, g.ModelName)
	return nil
}

func (g *Generator) Model() string {
	return g.ModelName
}

// Prompts returns a copy of every prompt received
func (g *Generator) Prompts() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.prompts...)
}

// LastOptions returns the options of the most recent call
func (g *Generator) LastOptions() llm.Options {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.opts) == 0 {
		return llm.Options{}
	}
	return g.opts[len(g.opts)-1]
}
