package llm

import (
	"context"
	"errors"
	"time"
)

// Defaults for the Ollama generator
const (
	DefaultHost        = "http://localhost:11434"
	DefaultModel       = "qwen2:0.5b"
	DefaultTimeout     = 120 * time.Second
	DefaultTemperature = 0.1
	DefaultMaxTokens   = 512
	DefaultTopK        = 40
	DefaultTopP        = 0.9
)

var (
	// ErrUnavailable indicates the LLM server could not be reached
	ErrUnavailable = errors.New("llm server unavailable")

	// ErrModelPull indicates a model download failed
	ErrModelPull = errors.New("model pull failed")

	// ErrEmptyPrompt indicates an empty prompt was passed to Generate or Stream
	ErrEmptyPrompt = errors.New("prompt cannot be empty")
)

// Options controls sampling for a single generation
type Options struct {
	Temperature float64
	MaxTokens   int
	TopK        int
	TopP        float64
}

// DefaultOptions returns the sampling settings used for datasheet answers
func DefaultOptions() Options {
	return Options{
		Temperature: DefaultTemperature,
		MaxTokens:   DefaultMaxTokens,
		TopK:        DefaultTopK,
		TopP:        DefaultTopP,
	}
}

// TokenFunc receives streamed tokens. Returning an error stops the stream.
type TokenFunc func(token string) error

// Generator produces answers from a prompt
type Generator interface {
	// Generate returns the full completion for prompt
	Generate(ctx context.Context, prompt string, opts Options) (string, error)

	// Stream calls fn for every token as it is produced
	Stream(ctx context.Context, prompt string, opts Options, fn TokenFunc) error

	// Available reports whether the server answers
	Available(ctx context.Context) bool

	// Models lists the models installed on the server
	Models(ctx context.Context) ([]string, error)

	// EnsureModel pulls the configured model when it is missing
	EnsureModel(ctx context.Context) error

	// Model returns the configured model name
	Model() string
}
