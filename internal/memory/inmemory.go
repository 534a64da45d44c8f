package memory

import (
	"context"
	"math"
	"sort"
	"strings"
	"sync"

	"github.com/sunggeunkim/haya-sub004/pkg/models"
)

// InMemoryStore is a reference MemoryDatabase + VectorIndex combination
// backed by an in-process map, term-frequency lexical ranking, and cosine
// distance over stored embeddings. It exists for tests and small
// deployments; production setups plug in a real FTS5/ANN-backed pair.
type InMemoryStore struct {
	mu      sync.RWMutex
	entries map[string]*models.MemoryEntry
}

// NewInMemoryStore creates an empty store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{entries: make(map[string]*models.MemoryEntry)}
}

// Put inserts or replaces an entry.
func (s *InMemoryStore) Put(entry models.MemoryEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := entry
	s.entries[entry.ID] = &e
}

// Delete removes an entry by id.
func (s *InMemoryStore) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, id)
}

// GetByID implements MemoryDatabase.
func (s *InMemoryStore) GetByID(ctx context.Context, id string) (*models.MemoryEntry, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[id]
	if !ok {
		return nil, false, nil
	}
	copied := *e
	return &copied, true, nil
}

// LexicalSearch implements MemoryDatabase with a simple term-overlap rank:
// rank is the negative total number of occurrences of the query terms in
// the entry (more matches, more negative rank), matching the FTS5 "negative = match"
// convention Search expects.
func (s *InMemoryStore) LexicalSearch(ctx context.Context, query string, limit int) ([]LexicalCandidate, error) {
	terms := tokenize(query)
	if len(terms) == 0 {
		return nil, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var hits []LexicalCandidate
	for id, e := range s.entries {
		content := strings.ToLower(e.Content)
		matches := 0
		for _, t := range terms {
			matches += strings.Count(content, t)
		}
		if matches == 0 {
			continue
		}
		hits = append(hits, LexicalCandidate{ID: id, Rank: -float64(matches)})
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Rank != hits[j].Rank {
			return hits[i].Rank < hits[j].Rank // more negative (more matches) first
		}
		return hits[i].ID < hits[j].ID
	})
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

// Search implements VectorIndex with brute-force cosine distance.
func (s *InMemoryStore) Search(ctx context.Context, embedding []float32, limit int) ([]VectorCandidate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var hits []VectorCandidate
	for id, e := range s.entries {
		if len(e.Embedding) == 0 {
			continue
		}
		hits = append(hits, VectorCandidate{ID: id, Distance: cosineDistance(embedding, e.Embedding)})
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Distance != hits[j].Distance {
			return hits[i].Distance < hits[j].Distance
		}
		return hits[i].ID < hits[j].ID
	})
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

func cosineDistance(a, b []float32) float64 {
	var dot, normA, normB float64
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 1
	}
	similarity := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	return 1 - similarity
}

func tokenize(s string) []string {
	fields := strings.Fields(strings.ToLower(s))
	out := fields[:0]
	for _, f := range fields {
		f = strings.Trim(f, ".,!?;:\"'()")
		if f != "" {
			out = append(out, f)
		}
	}
	return out
}
