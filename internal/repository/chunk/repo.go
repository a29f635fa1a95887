// Package chunk stores embedded chunks and serves similarity queries over them.
package chunk

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/ragchat/ragchat/internal/db"
	"github.com/ragchat/ragchat/internal/domain"
)

// store is the consumer interface for the Redis-backed index (ISP).
type store interface {
	HSetMulti(ctx context.Context, items []db.HashSetItem) error
	Del(ctx context.Context, keys ...string) error
	Scan(ctx context.Context, pattern string) ([]string, error)
	CreateIndex(ctx context.Context, def *db.IndexDefinition) error
	IndexExists(ctx context.Context, name string) (bool, error)
	SearchKNN(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error)
	TagValues(ctx context.Context, index, field string) ([]string, error)
}

// Repo is the Redis-backed chunk index. Chunks live as hashes under
// `<prefix>chunk:<source>:<seq>` with a TAG source field and a FLOAT32
// COSINE vector field; similarity scores are 1-distance clamped to [0,1].
type Repo struct {
	store     store
	keyPrefix string
	dimension int
}

// New creates a Redis-backed chunk index with the given vector dimension.
func New(s store, keyPrefix string, dimension int) *Repo {
	return &Repo{store: s, keyPrefix: keyPrefix, dimension: dimension}
}

func (r *Repo) indexName() string { return r.keyPrefix + "chunks:idx" }
func (r *Repo) chunkPrefix() string { return r.keyPrefix + "chunk:" }

// EnsureIndex creates the FT index if it does not exist yet.
func (r *Repo) EnsureIndex(ctx context.Context) error {
	exists, err := r.store.IndexExists(ctx, r.indexName())
	if err != nil {
		return fmt.Errorf("check index: %w", err)
	}
	if exists {
		return nil
	}

	def := &db.IndexDefinition{
		Name:     r.indexName(),
		Prefixes: []string{r.chunkPrefix()},
		Fields: []db.IndexField{
			{Name: "source", Type: db.IndexFieldTag, TagSeparator: "|"},
			{Name: "seq", Type: db.IndexFieldNumeric},
			{
				Name:           "vector",
				Type:           db.IndexFieldVector,
				VectorAlgo:     db.VectorFlat,
				VectorDim:      r.dimension,
				VectorDistance: db.DistanceCosine,
			},
		},
	}
	if err := r.store.CreateIndex(ctx, def); err != nil && err != db.ErrIndexExists {
		return fmt.Errorf("create index: %w", err)
	}
	return nil
}

// Upsert stores chunks with their embeddings set.
func (r *Repo) Upsert(ctx context.Context, chunks []domain.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	items := make([]db.HashSetItem, 0, len(chunks))
	for _, c := range chunks {
		if len(c.Embedding) != r.dimension {
			return fmt.Errorf(
				"chunk %s: embedding has %d dimensions, index expects %d: %w",
				c.ID, len(c.Embedding), r.dimension, domain.ErrVectorDimMismatch,
			)
		}
		items = append(items, db.HashSetItem{
			Key: r.chunkPrefix() + c.ID,
			Fields: map[string]string{
				"source": c.SourceID,
				"seq":    strconv.Itoa(c.SequenceIndex),
				"text":   c.Text,
				"vector": vectorToBytes(c.Embedding),
			},
		})
	}

	if err := r.store.HSetMulti(ctx, items); err != nil {
		return fmt.Errorf("upsert chunks: %w", err)
	}
	return nil
}

// Query returns the topK most similar chunks above threshold, restricted by filter.
// Results are sorted by score descending; ties break by source id then sequence index.
func (r *Repo) Query(
	ctx context.Context, embedding []float32, topK int, threshold float64, filter domain.Filter,
) ([]domain.RetrievalResult, error) {
	q := &db.KNNQuery{
		IndexName:    r.indexName(),
		Vector:       embedding,
		K:            topK,
		Sources:      filter.Sources,
		ReturnFields: []string{"source", "seq", "text", "__vector_score"},
	}

	sr, err := r.store.SearchKNN(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("search knn: %w: %w", domain.ErrIndexQuery, err)
	}

	results := make([]domain.RetrievalResult, 0, len(sr.Entries))
	for _, entry := range sr.Entries {
		if entry.Score < threshold {
			continue
		}
		results = append(results, domain.RetrievalResult{
			Chunk: entryToChunk(entry, r.chunkPrefix()),
			Score: entry.Score,
		})
	}

	sortResults(results)
	return results, nil
}

// ListSources returns the distinct source ids currently indexed.
func (r *Repo) ListSources(ctx context.Context) ([]string, error) {
	values, err := r.store.TagValues(ctx, r.indexName(), "source")
	if err != nil {
		return nil, fmt.Errorf("list sources: %w: %w", domain.ErrIndexQuery, err)
	}
	sort.Strings(values)
	return values, nil
}

// DeleteSource removes all chunks belonging to sourceID.
func (r *Repo) DeleteSource(ctx context.Context, sourceID string) error {
	pattern := r.chunkPrefix() + globEscaper.Replace(sourceID) + ":*"
	keys, err := r.store.Scan(ctx, pattern)
	if err != nil {
		return fmt.Errorf("scan source %s: %w", sourceID, err)
	}
	if len(keys) == 0 {
		return nil
	}
	if err := r.store.Del(ctx, keys...); err != nil {
		return fmt.Errorf("delete source %s: %w", sourceID, err)
	}
	return nil
}

func entryToChunk(entry db.SearchEntry, prefix string) domain.Chunk {
	id := strings.TrimPrefix(entry.Key, prefix)
	seq, _ := strconv.Atoi(entry.Fields["seq"])
	return domain.Chunk{
		ID:            id,
		SourceID:      entry.Fields["source"],
		SequenceIndex: seq,
		Text:          entry.Fields["text"],
	}
}

// sortResults orders by score descending, ties by source id then sequence index.
func sortResults(results []domain.RetrievalResult) {
	sort.SliceStable(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.Chunk.SourceID != b.Chunk.SourceID {
			return a.Chunk.SourceID < b.Chunk.SourceID
		}
		return a.Chunk.SequenceIndex < b.Chunk.SequenceIndex
	})
}

// globEscaper escapes SCAN MATCH metacharacters in source ids.
var globEscaper = strings.NewReplacer(
	"*", "\\*",
	"?", "\\?",
	"[", "\\[",
	"]", "\\]",
)

func vectorToBytes(v []float32) string {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return string(buf)
}
