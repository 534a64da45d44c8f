// Package memory implements the hybrid (vector + lexical) memory search:
// candidates are fused from a VectorIndex and a lexical ranker over a
// MemoryDatabase, scored, and merged per configurable weights.
package memory

import (
	"context"

	"github.com/sunggeunkim/haya-sub004/pkg/models"
)

// MemoryDatabase stores MemoryEntry records and, where available, answers
// lexical (FTS-like) queries.
type MemoryDatabase interface {
	GetByID(ctx context.Context, id string) (*models.MemoryEntry, bool, error)
	// LexicalSearch returns up to limit candidates ranked by BM25-style
	// rank, most relevant first. A negative rank denotes a match per the
	// FTS5 convention this gateway follows.
	LexicalSearch(ctx context.Context, query string, limit int) ([]LexicalCandidate, error)
}

// LexicalCandidate is one BM25-ranked lexical hit.
type LexicalCandidate struct {
	ID   string
	Rank float64
}

// VectorIndex answers nearest-neighbor queries over embeddings.
type VectorIndex interface {
	// Search returns up to limit candidates ordered by ascending distance
	// (closest first).
	Search(ctx context.Context, embedding []float32, limit int) ([]VectorCandidate, error)
}

// VectorCandidate is one nearest-neighbor hit.
type VectorCandidate struct {
	ID       string
	Distance float64
}
