// Package chat orchestrates retrieval-augmented question answering.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ragchat/ragchat/internal/domain"
	"github.com/ragchat/ragchat/internal/metrics"
)

// Answer is the orchestrator's response: the model's text plus the chunks
// that backed it, for provenance.
type Answer struct {
	Text       string
	UsedChunks []domain.Chunk
}

// Config holds the retrieval and timeout settings for the orchestrator.
type Config struct {
	TopK                int
	SimilarityThreshold float64
	MemoryTurns         int
	EmbedTimeout        time.Duration
	QueryTimeout        time.Duration
	ChatTimeout         time.Duration
}

// Service answers questions over the indexed documents, grounded in retrieved
// chunks and the conversation so far.
type Service struct {
	index    Index
	embedder Embedder
	model    Model
	memory   Memory
	cfg      Config
	logger   *zap.Logger
}

// New creates the chat orchestrator.
func New(index Index, embedder Embedder, model Model, memory Memory, cfg Config, logger *zap.Logger) *Service {
	return &Service{
		index:    index,
		embedder: embedder,
		model:    model,
		memory:   memory,
		cfg:      cfg,
		logger:   logger,
	}
}

// Ask embeds the question, retrieves the most similar chunks restricted by
// filter, and asks the chat model with the retrieved context and the last
// turns of the conversation. The user/assistant pair is recorded only after
// the model answers.
func (s *Service) Ask(
	ctx context.Context, question, conversationID string, filter domain.Filter,
) (Answer, error) {
	if strings.TrimSpace(question) == "" {
		return Answer{}, fmt.Errorf("question is empty: %w", domain.ErrEmptyInput)
	}
	if conversationID == "" {
		return Answer{}, fmt.Errorf("conversation id is required: %w", domain.ErrInvalidArgument)
	}

	embedding, err := s.embedQuestion(ctx, question)
	if err != nil {
		return Answer{}, err
	}

	retrieved, err := s.retrieve(ctx, embedding, filter)
	if err != nil {
		return Answer{}, err
	}
	metrics.RetrievedChunks.Observe(float64(len(retrieved)))

	history := s.memory.RecentTurns(conversationID, s.cfg.MemoryTurns)
	userMessage := buildUserMessage(question, retrieved)
	messages := buildMessages(history, userMessage)

	result, err := s.complete(ctx, messages)
	if err != nil {
		return Answer{}, err
	}

	s.memory.Append(conversationID,
		domain.NewTurn(domain.RoleUser, question),
		domain.NewTurn(domain.RoleAssistant, result.Content),
	)

	s.logger.Debug("Question answered",
		zap.String("conversation_id", conversationID),
		zap.Int("retrieved_chunks", len(retrieved)),
		zap.Int("history_turns", len(history)),
		zap.Int("total_tokens", result.TotalTokens),
	)

	used := make([]domain.Chunk, 0, len(retrieved))
	for _, r := range retrieved {
		used = append(used, r.Chunk)
	}
	return Answer{Text: result.Content, UsedChunks: used}, nil
}

func (s *Service) embedQuestion(ctx context.Context, question string) ([]float32, error) {
	embedCtx, cancel := s.withTimeout(ctx, s.cfg.EmbedTimeout)
	defer cancel()

	result, err := s.embedder.Embed(embedCtx, question)
	if err != nil {
		return nil, wrapDeadline(err, "embed question")
	}
	return result.Embedding, nil
}

func (s *Service) retrieve(
	ctx context.Context, embedding []float32, filter domain.Filter,
) ([]domain.RetrievalResult, error) {
	queryCtx, cancel := s.withTimeout(ctx, s.cfg.QueryTimeout)
	defer cancel()

	retrieved, err := s.index.Query(queryCtx, embedding, s.cfg.TopK, s.cfg.SimilarityThreshold, filter)
	if err != nil {
		return nil, wrapDeadline(err, "query index")
	}
	return retrieved, nil
}

func (s *Service) complete(ctx context.Context, messages []domain.ChatMessage) (domain.ChatResult, error) {
	chatCtx, cancel := s.withTimeout(ctx, s.cfg.ChatTimeout)
	defer cancel()

	result, err := s.model.Complete(chatCtx, systemPrompt, messages)
	if err != nil {
		return domain.ChatResult{}, wrapDeadline(err, "chat completion")
	}
	return result, nil
}

func (s *Service) withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, d)
}

func wrapDeadline(err error, op string) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s timed out: %w", op, domain.ErrTimeout)
	}
	return fmt.Errorf("%s: %w", op, err)
}
