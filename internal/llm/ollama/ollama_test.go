package ollama

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestComplete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != generatePath {
			t.Errorf("path = %q", r.URL.Path)
		}
		var req generateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decoding request: %v", err)
		}
		if req.Stream {
			t.Error("stream must be false")
		}
		if req.Model != "llama3" {
			t.Errorf("model = %q", req.Model)
		}
		json.NewEncoder(w).Encode(generateResponse{Response: "42", Done: true})
	}))
	defer srv.Close()

	c := NewClient("llama3", nil, WithBaseURL(srv.URL))
	got, err := c.Complete(context.Background(), "meaning of life?")
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if got != "42" {
		t.Errorf("got %q", got)
	}
}

func TestEmbed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != embedPath {
			t.Errorf("path = %q", r.URL.Path)
		}
		json.NewEncoder(w).Encode(embedResponse{Embeddings: [][]float64{{0.1, 0.2, 0.3}}})
	}))
	defer srv.Close()

	c := NewClient("llama3", nil, WithBaseURL(srv.URL))
	vec, err := c.Embed(context.Background(), "text")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(vec) != 3 {
		t.Errorf("vec = %v", vec)
	}
}

func TestEmbedLegacyFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case embedPath:
			http.NotFound(w, r)
		case legacyEmbedPath:
			json.NewEncoder(w).Encode(legacyEmbedResponse{Embedding: []float64{1, 2}})
		default:
			t.Errorf("unexpected path %q", r.URL.Path)
		}
	}))
	defer srv.Close()

	c := NewClient("llama3", nil, WithBaseURL(srv.URL))
	vec, err := c.Embed(context.Background(), "text")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(vec) != 2 {
		t.Errorf("vec = %v", vec)
	}
}
