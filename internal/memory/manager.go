package memory

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/sunggeunkim/haya-sub004/pkg/models"
)

// Embedder turns text into a dense vector for the vector index. A nil
// Embedder means the Manager operates lexical-only.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Config configures a Manager.
type Config struct {
	VectorWeight float64
	TextWeight   float64
}

// Manager coordinates a MemoryDatabase, an optional VectorIndex, and an
// optional Embedder behind the tool-facing save/search operations.
type Manager struct {
	db       MemoryDatabase
	index    VectorIndex
	embedder Embedder
	cfg      Config
}

// NewManager builds a Manager. index and embedder may be nil to run
// lexical-only.
func NewManager(db MemoryDatabase, index VectorIndex, embedder Embedder, cfg Config) *Manager {
	return &Manager{db: db, index: index, embedder: embedder, cfg: cfg}
}

// putter is implemented by MemoryDatabase backends that support direct
// insertion (the in-memory reference store does; a production FTS5/ANN
// pair would insert through its own write path instead).
type putter interface {
	Put(entry models.MemoryEntry)
}

// Save persists a new memory entry, embedding its content if an embedder
// is configured.
func (m *Manager) Save(ctx context.Context, content string, metadata models.MemoryMetadata) (string, error) {
	p, ok := m.db.(putter)
	if !ok {
		return "", fmt.Errorf("memory backend does not support direct writes")
	}

	entry := models.MemoryEntry{
		ID:       uuid.NewString(),
		Content:  content,
		Metadata: metadata,
	}

	if m.embedder != nil {
		embedding, err := m.embedder.Embed(ctx, content)
		if err != nil {
			return "", fmt.Errorf("embed memory content: %w", err)
		}
		entry.Embedding = embedding
	}

	p.Put(entry)
	return entry.ID, nil
}

// Search runs a hybrid search against the manager's configured weights.
func (m *Manager) Search(ctx context.Context, query string, limit int, minScore float64) ([]models.MemorySearchResult, error) {
	var embedding []float32
	if m.embedder != nil {
		var err error
		embedding, err = m.embedder.Embed(ctx, query)
		if err != nil {
			return nil, fmt.Errorf("embed query: %w", err)
		}
	}

	return Search(ctx, query, embedding, m.db, m.index, SearchOptions{
		Limit:        limit,
		MinScore:     minScore,
		VectorWeight: m.cfg.VectorWeight,
		TextWeight:   m.cfg.TextWeight,
	})
}
