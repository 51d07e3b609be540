// Package summarize implements the text.summarize tool, backed by the
// configured text-completion model.
package summarize

import (
	"context"
	"fmt"
	"strings"

	"github.com/jkaninda/busara/internal/llm"
	"github.com/jkaninda/busara/internal/tools"
)

const maxInputChars = 32_000

// Tool condenses text through the completion backend.
type Tool struct {
	backend llm.Client
}

// NewTool creates a summarize tool over the given backend.
func NewTool(backend llm.Client) *Tool {
	return &Tool{backend: backend}
}

func (t *Tool) Name() string { return "text.summarize" }

func (t *Tool) Description() string {
	return "Summarize a block of text. Accepts an optional bullet count for a bulleted summary."
}

func (t *Tool) InputSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"text":    map[string]any{"type": "string", "description": "The text to summarize"},
			"bullets": map[string]any{"type": "integer", "description": "Number of bullet points. 0 for prose"},
		},
		"required": []string{"text"},
	}
}

func (t *Tool) Validate(args map[string]any) error {
	v, ok := args["text"]
	if !ok {
		return fmt.Errorf("missing required parameter: text")
	}
	s, ok := v.(string)
	if !ok {
		return fmt.Errorf("parameter text must be a string, got %T", v)
	}
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("parameter text must not be empty")
	}
	if len(s) > maxInputChars {
		return fmt.Errorf("text exceeds %d characters", maxInputChars)
	}
	if b, ok := args["bullets"]; ok {
		switch b.(type) {
		case float64, int:
		default:
			return fmt.Errorf("parameter bullets must be a number, got %T", b)
		}
	}
	return nil
}

func (t *Tool) Execute(ctx context.Context, args map[string]any) (any, error) {
	text, _ := args["text"].(string)
	prompt := buildPrompt(text, bulletCount(args))

	summary, err := t.backend.Complete(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("summarization request: %w", err)
	}
	return map[string]any{
		"ok":      true,
		"summary": strings.TrimSpace(summary),
	}, nil
}

func buildPrompt(text string, bullets int) string {
	var b strings.Builder
	if bullets > 0 {
		fmt.Fprintf(&b, "Summarize the following text in exactly %d bullet points.\n\n", bullets)
	} else {
		b.WriteString("Summarize the following text in a short paragraph.\n\n")
	}
	b.WriteString(text)
	return b.String()
}

func bulletCount(args map[string]any) int {
	switch v := args["bullets"].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return 0
	}
}

var _ tools.Tool = (*Tool)(nil)
