// Package chunker splits extracted document text into bounded token windows.
package chunker

import (
	"fmt"
	"strings"

	"github.com/ragchat/ragchat/internal/domain"
)

// Chunker splits text into windows of at most maxTokens whitespace tokens,
// with consecutive windows sharing overlapTokens tokens. Splitting is
// deterministic: the same input always yields the same chunk boundaries.
type Chunker struct {
	maxTokens     int
	overlapTokens int
}

// New creates a chunker. overlapTokens must be smaller than maxTokens,
// otherwise the window could never advance.
func New(maxTokens, overlapTokens int) (*Chunker, error) {
	if maxTokens <= 0 {
		return nil, fmt.Errorf("max tokens must be positive, got %d: %w", maxTokens, domain.ErrInvalidArgument)
	}
	if overlapTokens < 0 {
		return nil, fmt.Errorf("overlap tokens must be >= 0, got %d: %w", overlapTokens, domain.ErrInvalidArgument)
	}
	if overlapTokens >= maxTokens {
		return nil, fmt.Errorf(
			"overlap tokens (%d) must be less than max tokens (%d): %w",
			overlapTokens, maxTokens, domain.ErrInvalidArgument,
		)
	}
	return &Chunker{maxTokens: maxTokens, overlapTokens: overlapTokens}, nil
}

// Chunk splits rawText into ordered chunks tagged with sourceID.
// Returns domain.ErrEmptyInput when rawText is empty after trimming.
func (c *Chunker) Chunk(rawText, sourceID string) ([]domain.Chunk, error) {
	tokens := strings.Fields(rawText)
	if len(tokens) == 0 {
		return nil, fmt.Errorf("chunk %q: %w", sourceID, domain.ErrEmptyInput)
	}

	step := c.maxTokens - c.overlapTokens
	chunks := make([]domain.Chunk, 0, (len(tokens)+step-1)/step)

	for start, seq := 0, 0; start < len(tokens); start, seq = start+step, seq+1 {
		end := start + c.maxTokens
		if end > len(tokens) {
			end = len(tokens)
		}

		chunk, err := domain.NewChunk(sourceID, seq, strings.Join(tokens[start:end], " "))
		if err != nil {
			return nil, fmt.Errorf("build chunk %d: %w", seq, err)
		}
		chunks = append(chunks, chunk)

		if end == len(tokens) {
			break
		}
	}

	return chunks, nil
}
