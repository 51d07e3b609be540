package summarize

import (
	"context"
	"errors"
	"strings"
	"testing"
)

type fakeBackend struct {
	response string
	err      error
	prompt   string
}

func (f *fakeBackend) Complete(_ context.Context, prompt string) (string, error) {
	f.prompt = prompt
	return f.response, f.err
}

func (f *fakeBackend) Name() string { return "fake" }

func TestExecute(t *testing.T) {
	backend := &fakeBackend{response: "  short summary  "}
	tool := NewTool(backend)

	out, err := tool.Execute(context.Background(), map[string]any{"text": "a long document"})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	got := out.(map[string]any)
	if got["summary"] != "short summary" {
		t.Errorf("summary = %v", got["summary"])
	}
	if !strings.Contains(backend.prompt, "a long document") {
		t.Error("prompt missing the input text")
	}
}

func TestExecuteBulleted(t *testing.T) {
	backend := &fakeBackend{response: "- one\n- two\n- three"}
	tool := NewTool(backend)

	// JSON-decoded args carry numbers as float64.
	if _, err := tool.Execute(context.Background(), map[string]any{"text": "doc", "bullets": float64(3)}); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !strings.Contains(backend.prompt, "3 bullet points") {
		t.Errorf("prompt = %q", backend.prompt)
	}
}

func TestExecuteBackendError(t *testing.T) {
	tool := NewTool(&fakeBackend{err: errors.New("offline")})
	if _, err := tool.Execute(context.Background(), map[string]any{"text": "doc"}); err == nil {
		t.Fatal("want error when the backend is down")
	}
}

func TestValidate(t *testing.T) {
	tool := NewTool(nil)
	tests := []struct {
		name    string
		args    map[string]any
		wantErr bool
	}{
		{"valid", map[string]any{"text": "hello"}, false},
		{"with bullets", map[string]any{"text": "hello", "bullets": float64(2)}, false},
		{"missing text", map[string]any{}, true},
		{"blank text", map[string]any{"text": " "}, true},
		{"bad bullets", map[string]any{"text": "hello", "bullets": "two"}, true},
		{"oversized", map[string]any{"text": strings.Repeat("x", maxInputChars+1)}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tool.Validate(tt.args); (err != nil) != tt.wantErr {
				t.Errorf("Validate error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
