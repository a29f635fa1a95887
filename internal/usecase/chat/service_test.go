package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/ragchat/ragchat/internal/domain"
	"github.com/ragchat/ragchat/internal/repository/conversation"
)

type mockIndex struct {
	results    []domain.RetrievalResult
	err        error
	lastFilter domain.Filter
	lastTopK   int
}

func (m *mockIndex) Query(
	_ context.Context, _ []float32, topK int, _ float64, filter domain.Filter,
) ([]domain.RetrievalResult, error) {
	m.lastTopK = topK
	m.lastFilter = filter
	return m.results, m.err
}

type mockEmbedder struct {
	embedding []float32
	err       error
}

func (m *mockEmbedder) Embed(_ context.Context, _ string) (domain.EmbeddingResult, error) {
	if m.err != nil {
		return domain.EmbeddingResult{}, m.err
	}
	return domain.EmbeddingResult{Embedding: m.embedding, TotalTokens: 5}, nil
}

type mockModel struct {
	answer      string
	err         error
	lastSystem  string
	lastHistory []domain.ChatMessage
	mu          sync.Mutex
}

func (m *mockModel) Complete(
	_ context.Context, system string, messages []domain.ChatMessage,
) (domain.ChatResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastSystem = system
	m.lastHistory = messages
	if m.err != nil {
		return domain.ChatResult{}, m.err
	}
	return domain.ChatResult{Content: m.answer, TotalTokens: 10}, nil
}

func retrievalResult(t *testing.T, sourceID string, seq int, text string, score float64) domain.RetrievalResult {
	t.Helper()
	c, err := domain.NewChunk(sourceID, seq, text)
	if err != nil {
		t.Fatalf("NewChunk: %v", err)
	}
	return domain.RetrievalResult{Chunk: c, Score: score}
}

func testConfig() Config {
	return Config{
		TopK:                5,
		SimilarityThreshold: 0.7,
		MemoryTurns:         10,
		EmbedTimeout:        time.Second,
		QueryTimeout:        time.Second,
		ChatTimeout:         time.Second,
	}
}

func newTestService(index *mockIndex, emb *mockEmbedder, model *mockModel, memory Memory) *Service {
	if memory == nil {
		memory = conversation.NewStore()
	}
	return New(index, emb, model, memory, testConfig(), zap.NewNop())
}

func TestAsk_AnswersFromRetrievedContext(t *testing.T) {
	index := &mockIndex{results: []domain.RetrievalResult{
		retrievalResult(t, "doc1.txt", 0, "Paris is the capital of France.", 0.93),
	}}
	emb := &mockEmbedder{embedding: []float32{0.1, 0.2}}
	model := &mockModel{answer: "The capital of France is Paris."}
	memory := conversation.NewStore()
	svc := newTestService(index, emb, model, memory)

	answer, err := svc.Ask(context.Background(), "What is the capital of France?", "conv1", domain.Filter{})
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}

	if !strings.Contains(answer.Text, "Paris") {
		t.Errorf("unexpected answer: %q", answer.Text)
	}
	if len(answer.UsedChunks) != 1 || answer.UsedChunks[0].SourceID != "doc1.txt" {
		t.Errorf("provenance missing: %+v", answer.UsedChunks)
	}
	if index.lastTopK != 5 {
		t.Errorf("expected topK=5, got %d", index.lastTopK)
	}

	// The final user message carries the chunk text and source attribution.
	last := model.lastHistory[len(model.lastHistory)-1]
	if !strings.Contains(last.Content, "Paris is the capital of France.") {
		t.Errorf("chunk text missing from prompt: %q", last.Content)
	}
	if !strings.Contains(last.Content, "doc1.txt") {
		t.Errorf("source attribution missing from prompt: %q", last.Content)
	}
	if !strings.Contains(model.lastSystem, "only the information from the context") {
		t.Errorf("unexpected system prompt: %q", model.lastSystem)
	}

	turns := memory.RecentTurns("conv1", 10)
	if len(turns) != 2 {
		t.Fatalf("expected 2 recorded turns, got %d", len(turns))
	}
	if turns[0].Role != domain.RoleUser || turns[0].Content != "What is the capital of France?" {
		t.Errorf("user turn not recorded: %+v", turns[0])
	}
	if turns[1].Role != domain.RoleAssistant || turns[1].Content != answer.Text {
		t.Errorf("assistant turn not recorded: %+v", turns[1])
	}
}

func TestAsk_EmptyRetrievalIsNotAnError(t *testing.T) {
	index := &mockIndex{}
	emb := &mockEmbedder{embedding: []float32{0.1}}
	model := &mockModel{answer: "I don't know based on the provided context."}
	svc := newTestService(index, emb, model, nil)

	filter := domain.Filter{Sources: []string{"doc2.txt"}}
	answer, err := svc.Ask(context.Background(), "What is in doc2?", "conv1", filter)
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if answer.Text == "" {
		t.Error("expected an answer despite empty retrieval")
	}
	if len(answer.UsedChunks) != 0 {
		t.Errorf("expected no used chunks, got %+v", answer.UsedChunks)
	}
	if len(index.lastFilter.Sources) != 1 || index.lastFilter.Sources[0] != "doc2.txt" {
		t.Errorf("filter not forwarded: %+v", index.lastFilter)
	}

	// Without context the question is sent bare.
	last := model.lastHistory[len(model.lastHistory)-1]
	if last.Content != "What is in doc2?" {
		t.Errorf("unexpected final message: %q", last.Content)
	}
}

func TestAsk_EmptyQuestion(t *testing.T) {
	svc := newTestService(&mockIndex{}, &mockEmbedder{}, &mockModel{}, nil)

	_, err := svc.Ask(context.Background(), "   ", "conv1", domain.Filter{})
	if !errors.Is(err, domain.ErrEmptyInput) {
		t.Errorf("expected ErrEmptyInput, got %v", err)
	}
}

func TestAsk_MissingConversationID(t *testing.T) {
	svc := newTestService(&mockIndex{}, &mockEmbedder{}, &mockModel{}, nil)

	_, err := svc.Ask(context.Background(), "question", "", domain.Filter{})
	if !errors.Is(err, domain.ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument, got %v", err)
	}
}

func TestAsk_EmbedderFailureRecordsNothing(t *testing.T) {
	memory := conversation.NewStore()
	emb := &mockEmbedder{err: fmt.Errorf("api down: %w", domain.ErrEmbeddingProvider)}
	svc := newTestService(&mockIndex{}, emb, &mockModel{}, memory)

	_, err := svc.Ask(context.Background(), "question", "conv1", domain.Filter{})
	if !errors.Is(err, domain.ErrEmbeddingProvider) {
		t.Errorf("expected ErrEmbeddingProvider, got %v", err)
	}
	if turns := memory.RecentTurns("conv1", 10); len(turns) != 0 {
		t.Errorf("memory must stay untouched on failure, got %d turns", len(turns))
	}
}

func TestAsk_ModelFailureRecordsNothing(t *testing.T) {
	memory := conversation.NewStore()
	model := &mockModel{err: fmt.Errorf("api down: %w", domain.ErrChatProvider)}
	emb := &mockEmbedder{embedding: []float32{0.1}}
	svc := newTestService(&mockIndex{}, emb, model, memory)

	_, err := svc.Ask(context.Background(), "question", "conv1", domain.Filter{})
	if !errors.Is(err, domain.ErrChatProvider) {
		t.Errorf("expected ErrChatProvider, got %v", err)
	}
	if turns := memory.RecentTurns("conv1", 10); len(turns) != 0 {
		t.Errorf("memory must stay untouched on failure, got %d turns", len(turns))
	}
}

func TestAsk_IndexFailurePropagates(t *testing.T) {
	index := &mockIndex{err: fmt.Errorf("search: %w", domain.ErrIndexQuery)}
	emb := &mockEmbedder{embedding: []float32{0.1}}
	svc := newTestService(index, emb, &mockModel{}, nil)

	_, err := svc.Ask(context.Background(), "question", "conv1", domain.Filter{})
	if !errors.Is(err, domain.ErrIndexQuery) {
		t.Errorf("expected ErrIndexQuery, got %v", err)
	}
}

func TestAsk_DeadlineWrappedAsTimeout(t *testing.T) {
	emb := &mockEmbedder{err: context.DeadlineExceeded}
	svc := newTestService(&mockIndex{}, emb, &mockModel{}, nil)

	_, err := svc.Ask(context.Background(), "question", "conv1", domain.Filter{})
	if !errors.Is(err, domain.ErrTimeout) {
		t.Errorf("expected ErrTimeout, got %v", err)
	}
}

func TestAsk_HistoryIncludedInPrompt(t *testing.T) {
	memory := conversation.NewStore()
	memory.Append("conv1",
		domain.NewTurn(domain.RoleUser, "earlier question"),
		domain.NewTurn(domain.RoleAssistant, "earlier answer"),
	)
	emb := &mockEmbedder{embedding: []float32{0.1}}
	model := &mockModel{answer: "ok"}
	svc := newTestService(&mockIndex{}, emb, model, memory)

	if _, err := svc.Ask(context.Background(), "follow-up", "conv1", domain.Filter{}); err != nil {
		t.Fatalf("Ask: %v", err)
	}

	if len(model.lastHistory) != 3 {
		t.Fatalf("expected 3 messages (2 history + question), got %d", len(model.lastHistory))
	}
	if model.lastHistory[0].Content != "earlier question" || model.lastHistory[1].Content != "earlier answer" {
		t.Errorf("history out of order: %+v", model.lastHistory[:2])
	}
	if model.lastHistory[2].Content != "follow-up" {
		t.Errorf("question must come last: %+v", model.lastHistory[2])
	}
}

func TestAsk_ConcurrentSameConversation(t *testing.T) {
	memory := conversation.NewStore()
	emb := &mockEmbedder{embedding: []float32{0.1}}
	model := &mockModel{answer: "answer"}
	svc := newTestService(&mockIndex{}, emb, model, memory)

	const askers = 10
	var wg sync.WaitGroup
	for i := 0; i < askers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, err := svc.Ask(context.Background(), fmt.Sprintf("question %d", n), "conv1", domain.Filter{})
			if err != nil {
				t.Errorf("Ask %d: %v", n, err)
			}
		}(i)
	}
	wg.Wait()

	turns := memory.RecentTurns("conv1", askers*2)
	if len(turns) != askers*2 {
		t.Fatalf("expected %d turns, got %d", askers*2, len(turns))
	}
	for i := 0; i < len(turns); i += 2 {
		if turns[i].Role != domain.RoleUser || turns[i+1].Role != domain.RoleAssistant {
			t.Fatalf("pair at %d interleaved: %s then %s", i, turns[i].Role, turns[i+1].Role)
		}
	}
}
