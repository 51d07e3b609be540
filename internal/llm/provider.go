// Package llm defines the provider-agnostic interface to the text-completion
// backend. The control loop consumes it as an opaque generate(prompt) -> text
// service; everything above it must be unit-testable with a fake client.
package llm

import "context"

// Client is the abstraction over any text-completion backend.
type Client interface {
	// Complete sends a prompt and returns the generated text.
	Complete(ctx context.Context, prompt string) (string, error)
	// Name returns the provider identifier (e.g. "ollama").
	Name() string
}

// Embedder produces vector embeddings for semantic memory.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
}

// CompleteFunc adapts a plain function to the Client interface, used by tests
// and deterministic fallbacks.
type CompleteFunc func(ctx context.Context, prompt string) (string, error)

func (f CompleteFunc) Complete(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

func (f CompleteFunc) Name() string { return "func" }
