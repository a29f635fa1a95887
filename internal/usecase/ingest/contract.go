package ingest

import (
	"context"

	"github.com/ragchat/ragchat/internal/domain"
)

// Index defines the storage contract for embedded chunks.
type Index interface {
	Upsert(ctx context.Context, chunks []domain.Chunk) error
	DeleteSource(ctx context.Context, sourceID string) error
	ListSources(ctx context.Context) ([]string, error)
}

// Chunker splits raw text into ordered chunks.
type Chunker interface {
	Chunk(rawText, sourceID string) ([]domain.Chunk, error)
}

// Embedder vectorizes text into embeddings.
type Embedder interface {
	Embed(ctx context.Context, text string) (domain.EmbeddingResult, error)
}
