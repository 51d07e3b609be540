package semantic

import (
	"context"
	"math"
	"path/filepath"
	"testing"
)

// fakeEmbedder maps known strings to fixed vectors.
type fakeEmbedder struct {
	vectors map[string][]float64
}

func (f *fakeEmbedder) Embed(_ context.Context, text string) ([]float64, error) {
	if v, ok := f.vectors[text]; ok {
		return v, nil
	}
	return []float64{0, 0, 1}, nil
}

func testStore(t *testing.T, emb *fakeEmbedder) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "semantic.db")
	s, err := NewSQLiteStore(path, emb, nil)
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	return s
}

func TestRememberAndSearchRanksBySimilarity(t *testing.T) {
	emb := &fakeEmbedder{vectors: map[string][]float64{
		"cats are great":  {1, 0, 0},
		"dogs are loyal":  {0.7, 0.7, 0},
		"stock prices up": {0, 1, 0},
		"tell me about cats": {1, 0.1, 0},
	}}
	s := testStore(t, emb)
	ctx := context.Background()

	for _, text := range []string{"cats are great", "dogs are loyal", "stock prices up"} {
		if err := s.Remember(ctx, text, map[string]string{"kind": "note"}); err != nil {
			t.Fatalf("Remember(%q): %v", text, err)
		}
	}

	results, err := s.Search(ctx, "tell me about cats", 2)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	if results[0].Text != "cats are great" {
		t.Errorf("top result = %q", results[0].Text)
	}
	if results[0].Score < results[1].Score {
		t.Error("results not sorted by score")
	}
	if results[0].Metadata["kind"] != "note" {
		t.Errorf("metadata lost: %v", results[0].Metadata)
	}
}

func TestBuildContextEmptyStore(t *testing.T) {
	s := testStore(t, &fakeEmbedder{})
	if got := s.BuildContext(context.Background(), "anything"); got != "" {
		t.Errorf("got %q, want empty", got)
	}
}

func TestCosine(t *testing.T) {
	cases := []struct {
		a, b []float64
		want float64
	}{
		{[]float64{1, 0}, []float64{1, 0}, 1},
		{[]float64{1, 0}, []float64{0, 1}, 0},
		{[]float64{1, 0}, []float64{1, 0, 0}, 0}, // dimension mismatch
		{nil, nil, 0},
	}
	for _, tc := range cases {
		if got := cosine(tc.a, tc.b); math.Abs(got-tc.want) > 1e-9 {
			t.Errorf("cosine(%v, %v) = %v, want %v", tc.a, tc.b, got, tc.want)
		}
	}
}
