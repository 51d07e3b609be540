// Package semantic provides vector-backed long-term memory. Texts are
// embedded via an llm.Embedder and stored with their vectors in a relational
// store (SQLite by default, PostgreSQL optionally); retrieval is cosine
// similarity over the stored vectors. Semantic memory is advisory: callers
// treat every failure here as degradable, never fatal to a turn.
package semantic

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/jkaninda/busara/internal/llm"
)

// DefaultTopK is how many records a search returns by default.
const DefaultTopK = 3

// Record is one embedded memory entry.
type Record struct {
	ID        uint   `gorm:"primaryKey"`
	Text      string `gorm:"not null"`
	Vector    string `gorm:"not null"` // JSON-encoded []float64
	Metadata  string
	CreatedAt time.Time
}

// TableName keeps the table name stable across gorm versions.
func (Record) TableName() string { return "semantic_memories" }

// Result is a search hit with its similarity score.
type Result struct {
	Text     string
	Metadata map[string]string
	Score    float64
}

// Store persists and searches embedded memories.
type Store struct {
	db       *gorm.DB
	embedder llm.Embedder
	topK     int
	logger   *slog.Logger
}

// NewSQLiteStore opens a SQLite-backed store at path.
func NewSQLiteStore(path string, embedder llm.Embedder, logger *slog.Logger) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Discard,
	})
	if err != nil {
		return nil, fmt.Errorf("opening sqlite semantic store: %w", err)
	}
	return newStore(db, embedder, logger)
}

// NewPostgresStore opens a PostgreSQL-backed store.
func NewPostgresStore(dsn string, embedder llm.Embedder, logger *slog.Logger) (*Store, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Discard,
	})
	if err != nil {
		return nil, fmt.Errorf("opening postgres semantic store: %w", err)
	}
	return newStore(db, embedder, logger)
}

func newStore(db *gorm.DB, embedder llm.Embedder, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if err := db.AutoMigrate(&Record{}); err != nil {
		return nil, fmt.Errorf("migrating semantic store: %w", err)
	}
	return &Store{db: db, embedder: embedder, topK: DefaultTopK, logger: logger}, nil
}

// WithTopK overrides the default search size.
func (s *Store) WithTopK(k int) *Store {
	if k > 0 {
		s.topK = k
	}
	return s
}

// Remember embeds and stores one text with optional metadata.
func (s *Store) Remember(ctx context.Context, text string, metadata map[string]string) error {
	vec, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return fmt.Errorf("embedding text: %w", err)
	}
	vecJSON, err := json.Marshal(vec)
	if err != nil {
		return fmt.Errorf("encoding vector: %w", err)
	}
	var metaJSON []byte
	if len(metadata) > 0 {
		metaJSON, _ = json.Marshal(metadata)
	}

	rec := Record{Text: text, Vector: string(vecJSON), Metadata: string(metaJSON)}
	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return fmt.Errorf("storing memory: %w", err)
	}
	return nil
}

// Search returns up to topK records ranked by cosine similarity to the query.
func (s *Store) Search(ctx context.Context, query string, topK int) ([]Result, error) {
	if topK <= 0 {
		topK = s.topK
	}
	queryVec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	var records []Record
	if err := s.db.WithContext(ctx).Find(&records).Error; err != nil {
		return nil, fmt.Errorf("loading memories: %w", err)
	}

	results := make([]Result, 0, len(records))
	for _, rec := range records {
		var vec []float64
		if err := json.Unmarshal([]byte(rec.Vector), &vec); err != nil {
			s.logger.Warn("skipping memory with malformed vector", slog.Uint64("id", uint64(rec.ID)))
			continue
		}
		score := cosine(queryVec, vec)
		if score <= 0 {
			continue
		}
		var meta map[string]string
		if rec.Metadata != "" {
			_ = json.Unmarshal([]byte(rec.Metadata), &meta)
		}
		results = append(results, Result{Text: rec.Text, Metadata: meta, Score: score})
	}

	sort.Slice(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

// BuildContext renders the top matches as a context block, or "" when there
// are none or the search failed (semantic memory never fails a turn).
func (s *Store) BuildContext(ctx context.Context, query string) string {
	results, err := s.Search(ctx, query, s.topK)
	if err != nil {
		s.logger.Warn("semantic search failed", slog.String("error", err.Error()))
		return ""
	}
	if len(results) == 0 {
		return ""
	}
	var b strings.Builder
	for _, r := range results {
		fmt.Fprintf(&b, "- %s\n", strings.TrimSpace(r.Text))
	}
	return strings.TrimRight(b.String(), "\n")
}

// cosine returns the cosine similarity of two vectors, 0 when incomparable.
func cosine(a, b []float64) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
