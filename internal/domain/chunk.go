package domain

import (
	"fmt"
	"strings"
)

// Chunk is a bounded span of a source document's text, embedded for similarity search.
// Immutable once ingested; the vector index owns it from then on.
type Chunk struct {
	ID            string
	SourceID      string
	SequenceIndex int
	Text          string
	Embedding     []float32
}

// NewChunk creates a chunk with a deterministic `<sourceID>:<seq>` identifier.
// The embedding is left unset until the embedding client populates it.
func NewChunk(sourceID string, sequenceIndex int, text string) (Chunk, error) {
	if strings.TrimSpace(text) == "" {
		return Chunk{}, fmt.Errorf("chunk text: %w", ErrEmptyInput)
	}
	if sourceID == "" {
		return Chunk{}, fmt.Errorf("source id is required: %w", ErrInvalidArgument)
	}
	if sequenceIndex < 0 {
		return Chunk{}, fmt.Errorf("sequence index must be >= 0: %w", ErrInvalidArgument)
	}
	return Chunk{
		ID:            fmt.Sprintf("%s:%d", sourceID, sequenceIndex),
		SourceID:      sourceID,
		SequenceIndex: sequenceIndex,
		Text:          text,
	}, nil
}
