package chat

import (
	"context"

	"github.com/ragchat/ragchat/internal/domain"
)

// Index serves similarity queries over embedded chunks.
type Index interface {
	Query(
		ctx context.Context, embedding []float32, topK int, threshold float64, filter domain.Filter,
	) ([]domain.RetrievalResult, error)
}

// Embedder vectorizes text into embeddings.
type Embedder interface {
	Embed(ctx context.Context, text string) (domain.EmbeddingResult, error)
}

// Model produces chat completions.
type Model interface {
	Complete(ctx context.Context, system string, messages []domain.ChatMessage) (domain.ChatResult, error)
}

// Memory keeps per-conversation turn history.
type Memory interface {
	Append(conversationID string, turns ...domain.Turn)
	RecentTurns(conversationID string, maxTurns int) []domain.Turn
}
