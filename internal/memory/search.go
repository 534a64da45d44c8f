package memory

import (
	"context"
	"sort"

	"github.com/sunggeunkim/haya-sub004/pkg/models"
)

const (
	defaultLimit        = 10
	defaultVectorWeight = 0.7
	defaultTextWeight   = 0.3
	candidateFanout     = 4
)

// SearchOptions configures one hybrid search call.
type SearchOptions struct {
	Limit        int
	MinScore     float64
	VectorWeight float64
	TextWeight   float64
}

func (o SearchOptions) withDefaults() SearchOptions {
	if o.Limit <= 0 {
		o.Limit = defaultLimit
	}
	return o
}

type fusedCandidate struct {
	vectorScore float64
	textScore   float64
}

// Search performs a hybrid vector+lexical search per the fusion algorithm:
// candidates are gathered from whichever of vectorIndex/queryEmbedding and
// memoryDb's lexical search are available, scored, weight-normalized,
// combined, filtered by MinScore, and returned in descending score order
// (ties broken by ascending id).
func Search(ctx context.Context, query string, queryEmbedding []float32, memoryDb MemoryDatabase, vectorIndex VectorIndex, opts SearchOptions) ([]models.MemorySearchResult, error) {
	opts = opts.withDefaults()
	candidateLimit := opts.Limit * candidateFanout

	candidates := make(map[string]*fusedCandidate)

	if vectorIndex != nil && len(queryEmbedding) > 0 {
		hits, err := vectorIndex.Search(ctx, queryEmbedding, candidateLimit)
		if err != nil {
			return nil, err
		}
		for _, h := range hits {
			getOrCreate(candidates, h.ID).vectorScore = distanceToScore(h.Distance)
		}
	}

	if memoryDb != nil {
		hits, err := memoryDb.LexicalSearch(ctx, query, candidateLimit)
		if err != nil {
			return nil, err
		}
		for _, h := range hits {
			getOrCreate(candidates, h.ID).textScore = rankToScore(h.Rank)
		}
	}

	vw, tw := normalizeWeights(opts.VectorWeight, opts.TextWeight)

	type scored struct {
		id    string
		score float64
	}
	var ranked []scored
	for id, c := range candidates {
		combined := vw*c.vectorScore + tw*c.textScore
		if combined < opts.MinScore {
			continue
		}
		ranked = append(ranked, scored{id: id, score: combined})
	}

	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score > ranked[j].score
		}
		return ranked[i].id < ranked[j].id
	})

	if len(ranked) > opts.Limit {
		ranked = ranked[:opts.Limit]
	}

	out := make([]models.MemorySearchResult, 0, len(ranked))
	for _, r := range ranked {
		entry, ok, err := memoryDb.GetByID(ctx, r.id)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		out = append(out, models.MemorySearchResult{
			ID:       entry.ID,
			Content:  entry.Content,
			Source:   entry.Metadata.Source,
			Score:    r.score,
			Metadata: entry.Metadata,
		})
	}
	return out, nil
}

func getOrCreate(m map[string]*fusedCandidate, id string) *fusedCandidate {
	c, ok := m[id]
	if !ok {
		c = &fusedCandidate{}
		m[id] = c
	}
	return c
}

// distanceToScore maps a cosine/L2 distance to a (0,1] score, monotonically
// decreasing in distance.
func distanceToScore(d float64) float64 {
	if d < 0 {
		d = 0
	}
	return 1 / (1 + d)
}

// rankToScore maps a BM25-style rank to a (0,1] score following the FTS5
// convention: a negative rank denotes a match and scores 1.0; positive
// ranks score lower as they grow.
func rankToScore(rank float64) float64 {
	if rank < 0 {
		rank = 0
	}
	return 1 / (1 + rank)
}

// normalizeWeights scales (vw, tw) to sum to 1, falling back to the
// package defaults when both are zero.
func normalizeWeights(vw, tw float64) (float64, float64) {
	if vw == 0 && tw == 0 {
		vw, tw = defaultVectorWeight, defaultTextWeight
	}
	sum := vw + tw
	if sum == 0 {
		return defaultVectorWeight, defaultTextWeight
	}
	return vw / sum, tw / sum
}
