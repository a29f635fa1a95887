// Package ingest turns raw documents into embedded chunks in the index.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ragchat/ragchat/internal/domain"
)

// Service handles document ingestion: chunk, embed, replace in the index.
type Service struct {
	index        Index
	chunker      Chunker
	embedder     Embedder
	embedTimeout time.Duration
	logger       *zap.Logger
}

// New creates an ingestion service.
func New(index Index, chunker Chunker, embedder Embedder, embedTimeout time.Duration, logger *zap.Logger) *Service {
	return &Service{
		index:        index,
		chunker:      chunker,
		embedder:     embedder,
		embedTimeout: embedTimeout,
		logger:       logger,
	}
}

// Ingest chunks and embeds a document, then replaces any previously ingested
// chunks for the same source. Returns the number of chunks indexed.
func (s *Service) Ingest(ctx context.Context, sourceID, rawText string) (int, error) {
	chunks, err := s.chunker.Chunk(rawText, sourceID)
	if err != nil {
		return 0, fmt.Errorf("chunk document: %w", err)
	}

	for i := range chunks {
		vec, err := s.embedChunk(ctx, chunks[i].Text)
		if err != nil {
			return 0, fmt.Errorf("embed chunk %d of %s: %w", i, sourceID, err)
		}
		chunks[i].Embedding = vec
	}

	// Re-ingesting a source replaces its old chunks entirely.
	if err := s.index.DeleteSource(ctx, sourceID); err != nil {
		return 0, fmt.Errorf("delete previous chunks of %s: %w", sourceID, err)
	}
	if err := s.index.Upsert(ctx, chunks); err != nil {
		return 0, fmt.Errorf("index chunks of %s: %w", sourceID, err)
	}

	s.logger.Info("Document ingested",
		zap.String("source", sourceID),
		zap.Int("chunks", len(chunks)),
	)
	return len(chunks), nil
}

// Sources lists the distinct source ids currently in the index.
func (s *Service) Sources(ctx context.Context) ([]string, error) {
	sources, err := s.index.ListSources(ctx)
	if err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}
	return sources, nil
}

func (s *Service) embedChunk(ctx context.Context, text string) ([]float32, error) {
	embedCtx := ctx
	var cancel context.CancelFunc
	if s.embedTimeout > 0 {
		embedCtx, cancel = context.WithTimeout(ctx, s.embedTimeout)
		defer cancel()
	}

	result, err := s.embedder.Embed(embedCtx, text)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("embedding timed out: %w", domain.ErrTimeout)
		}
		return nil, err
	}
	return result.Embedding, nil
}
