package chunk

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/ragchat/ragchat/internal/domain"
)

// MemoryIndex is an in-process chunk index using brute-force cosine similarity.
// It backs the "memory" driver for local runs and tests; scores are raw cosine
// similarity clamped to [0,1], monotonic with the Redis backend's mapping.
type MemoryIndex struct {
	mu        sync.RWMutex
	dimension int
	chunks    []domain.Chunk
	byID      map[string]int
}

// NewMemory creates an in-memory chunk index with the given vector dimension.
func NewMemory(dimension int) *MemoryIndex {
	return &MemoryIndex{dimension: dimension, byID: make(map[string]int)}
}

// Upsert stores chunks, replacing any existing chunk with the same id.
func (m *MemoryIndex) Upsert(_ context.Context, chunks []domain.Chunk) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, c := range chunks {
		if len(c.Embedding) != m.dimension {
			return fmt.Errorf(
				"chunk %s: embedding has %d dimensions, index expects %d: %w",
				c.ID, len(c.Embedding), m.dimension, domain.ErrVectorDimMismatch,
			)
		}
	}

	for _, c := range chunks {
		if i, ok := m.byID[c.ID]; ok {
			m.chunks[i] = c
			continue
		}
		m.byID[c.ID] = len(m.chunks)
		m.chunks = append(m.chunks, c)
	}
	return nil
}

// Query returns the topK most similar chunks above threshold, restricted by filter.
func (m *MemoryIndex) Query(
	_ context.Context, embedding []float32, topK int, threshold float64, filter domain.Filter,
) ([]domain.RetrievalResult, error) {
	if len(embedding) != m.dimension {
		return nil, fmt.Errorf(
			"query embedding has %d dimensions, index expects %d: %w",
			len(embedding), m.dimension, domain.ErrVectorDimMismatch,
		)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	results := make([]domain.RetrievalResult, 0, topK)
	for _, c := range m.chunks {
		if !filter.Allows(c.SourceID) {
			continue
		}
		score := cosineScore(embedding, c.Embedding)
		if score < threshold {
			continue
		}
		results = append(results, domain.RetrievalResult{Chunk: c, Score: score})
	}

	sortResults(results)
	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

// ListSources returns the distinct source ids currently indexed, sorted.
func (m *MemoryIndex) ListSources(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	seen := make(map[string]struct{})
	var sources []string
	for _, c := range m.chunks {
		if _, ok := seen[c.SourceID]; ok {
			continue
		}
		seen[c.SourceID] = struct{}{}
		sources = append(sources, c.SourceID)
	}
	sort.Strings(sources)
	return sources, nil
}

// DeleteSource removes all chunks belonging to sourceID.
func (m *MemoryIndex) DeleteSource(_ context.Context, sourceID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.chunks[:0]
	for _, c := range m.chunks {
		if c.SourceID != sourceID {
			kept = append(kept, c)
		}
	}
	m.chunks = kept

	m.byID = make(map[string]int, len(m.chunks))
	for i, c := range m.chunks {
		m.byID[c.ID] = i
	}
	return nil
}

// cosineScore maps cosine similarity into [0,1]; zero vectors score 0.
func cosineScore(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	cos := dot / (math.Sqrt(na) * math.Sqrt(nb))
	return math.Min(1, math.Max(0, cos))
}
