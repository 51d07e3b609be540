// Package memory provides the episodic conversation memory used to augment
// composition prompts. Episodes are persisted as append-only JSONL, one
// object per line; the file is a log, never a source of control decisions.
package memory

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

const (
	// DefaultMaxRecent is how many trailing episodes are always included.
	DefaultMaxRecent = 4
	// DefaultMaxRelevant is how many keyword-matched episodes are merged in.
	DefaultMaxRelevant = 3
)

// Episode is one recorded user/assistant exchange.
type Episode struct {
	TS        string `json:"ts"`
	User      string `json:"user"`
	Assistant string `json:"assistant"`
}

// Store is a JSONL-backed episodic memory.
type Store struct {
	path        string
	maxRecent   int
	maxRelevant int
	logger      *slog.Logger

	mu       sync.Mutex
	episodes []Episode
}

// NewStore opens (or creates) the episodic store at path and loads existing
// episodes. Malformed lines are skipped, not fatal.
func NewStore(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	s := &Store{
		path:        path,
		maxRecent:   DefaultMaxRecent,
		maxRelevant: DefaultMaxRelevant,
		logger:      logger,
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating memory dir: %w", err)
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

// WithLimits overrides the recent/relevant episode counts.
func (s *Store) WithLimits(maxRecent, maxRelevant int) *Store {
	if maxRecent > 0 {
		s.maxRecent = maxRecent
	}
	if maxRelevant > 0 {
		s.maxRelevant = maxRelevant
	}
	return s
}

func (s *Store) load() error {
	f, err := os.Open(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("opening memory file: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		var ep Episode
		if err := json.Unmarshal([]byte(text), &ep); err != nil {
			s.logger.Warn("skipping malformed memory line",
				slog.String("file", s.path),
				slog.Int("line", line),
			)
			continue
		}
		s.episodes = append(s.episodes, ep)
	}
	return scanner.Err()
}

// Append records one exchange, persisting it before returning.
func (s *Store) Append(userText, assistantText string) error {
	ep := Episode{
		TS:        time.Now().UTC().Format(time.RFC3339),
		User:      userText,
		Assistant: assistantText,
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("opening memory file for append: %w", err)
	}
	defer f.Close()

	data, err := json.Marshal(ep)
	if err != nil {
		return fmt.Errorf("marshaling episode: %w", err)
	}
	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("appending episode: %w", err)
	}

	s.episodes = append(s.episodes, ep)
	return nil
}

// Len returns the number of stored episodes.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.episodes)
}

// BuildContext renders a compact context block for the query: the most recent
// episodes merged with keyword-relevant older ones, deduplicated, oldest
// first. Returns "" when the store is empty or nothing matches.
func (s *Store) BuildContext(query string) string {
	s.mu.Lock()
	episodes := append([]Episode(nil), s.episodes...)
	s.mu.Unlock()

	if len(episodes) == 0 {
		return ""
	}

	selected := make(map[int]struct{})
	start := len(episodes) - s.maxRecent
	if start < 0 {
		start = 0
	}
	for i := start; i < len(episodes); i++ {
		selected[i] = struct{}{}
	}

	queryTokens := tokenize(query)
	if len(queryTokens) > 0 {
		type scored struct {
			idx   int
			score int
		}
		var candidates []scored
		for i, ep := range episodes {
			if _, already := selected[i]; already {
				continue
			}
			score := overlap(queryTokens, tokenize(ep.User+" "+ep.Assistant))
			if score > 0 {
				candidates = append(candidates, scored{idx: i, score: score})
			}
		}
		sort.Slice(candidates, func(i, j int) bool {
			if candidates[i].score != candidates[j].score {
				return candidates[i].score > candidates[j].score
			}
			return candidates[i].idx > candidates[j].idx // prefer newer on ties
		})
		for i := 0; i < len(candidates) && i < s.maxRelevant; i++ {
			selected[candidates[i].idx] = struct{}{}
		}
	}

	indices := make([]int, 0, len(selected))
	for i := range selected {
		indices = append(indices, i)
	}
	sort.Ints(indices)

	var b strings.Builder
	for _, i := range indices {
		ep := episodes[i]
		fmt.Fprintf(&b, "User: %s\nAssistant: %s\n", ep.User, ep.Assistant)
	}
	return strings.TrimRight(b.String(), "\n")
}

var stopwords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {}, "be": {},
	"by": {}, "for": {}, "from": {}, "has": {}, "have": {}, "i": {}, "in": {},
	"is": {}, "it": {}, "me": {}, "my": {}, "of": {}, "on": {}, "or": {},
	"that": {}, "the": {}, "this": {}, "to": {}, "was": {},
	"what": {}, "when": {}, "where": {}, "which": {}, "who": {}, "will": {},
	"with": {}, "you": {}, "your": {},
}

// tokenize lowercases and splits text into stopword-filtered word tokens.
func tokenize(text string) map[string]struct{} {
	tokens := make(map[string]struct{})
	for _, w := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !('a' <= r && r <= 'z') && !('0' <= r && r <= '9')
	}) {
		if len(w) < 2 {
			continue
		}
		if _, stop := stopwords[w]; stop {
			continue
		}
		tokens[w] = struct{}{}
	}
	return tokens
}

// overlap counts tokens present in both sets.
func overlap(a, b map[string]struct{}) int {
	n := 0
	for t := range a {
		if _, ok := b[t]; ok {
			n++
		}
	}
	return n
}
