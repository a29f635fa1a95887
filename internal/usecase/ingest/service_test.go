package ingest

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/ragchat/ragchat/internal/chunker"
	"github.com/ragchat/ragchat/internal/domain"
)

type mockIndex struct {
	upserted      []domain.Chunk
	deletedSource string
	deleteCalls   int
	sources       []string
	upsertErr     error
	deleteErr     error
	sourcesErr    error
}

func (m *mockIndex) Upsert(_ context.Context, chunks []domain.Chunk) error {
	if m.upsertErr != nil {
		return m.upsertErr
	}
	m.upserted = append(m.upserted, chunks...)
	return nil
}

func (m *mockIndex) DeleteSource(_ context.Context, sourceID string) error {
	m.deleteCalls++
	m.deletedSource = sourceID
	return m.deleteErr
}

func (m *mockIndex) ListSources(_ context.Context) ([]string, error) {
	return m.sources, m.sourcesErr
}

type mockEmbedder struct {
	embedding []float32
	err       error
	calls     int
}

func (m *mockEmbedder) Embed(_ context.Context, _ string) (domain.EmbeddingResult, error) {
	m.calls++
	if m.err != nil {
		return domain.EmbeddingResult{}, m.err
	}
	return domain.EmbeddingResult{Embedding: m.embedding, TotalTokens: 3}, nil
}

func newTestService(t *testing.T, index *mockIndex, emb *mockEmbedder) *Service {
	t.Helper()
	ch, err := chunker.New(5, 1)
	if err != nil {
		t.Fatalf("chunker.New: %v", err)
	}
	return New(index, ch, emb, time.Second, zap.NewNop())
}

func TestIngest_ChunksEmbeddedAndIndexed(t *testing.T) {
	index := &mockIndex{}
	emb := &mockEmbedder{embedding: []float32{0.1, 0.2}}
	svc := newTestService(t, index, emb)

	text := "one two three four five six seven eight nine"
	count, err := svc.Ingest(context.Background(), "doc1.txt", text)
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if count == 0 || count != len(index.upserted) {
		t.Fatalf("count=%d, upserted=%d", count, len(index.upserted))
	}
	if emb.calls != count {
		t.Errorf("expected %d embed calls, got %d", count, emb.calls)
	}
	for i, c := range index.upserted {
		if c.SourceID != "doc1.txt" {
			t.Errorf("chunk %d: wrong source %s", i, c.SourceID)
		}
		if c.SequenceIndex != i {
			t.Errorf("chunk %d: wrong sequence %d", i, c.SequenceIndex)
		}
		if len(c.Embedding) != 2 {
			t.Errorf("chunk %d: embedding not set", i)
		}
	}
}

func TestIngest_ReplacesPreviousChunks(t *testing.T) {
	index := &mockIndex{}
	emb := &mockEmbedder{embedding: []float32{0.1}}
	svc := newTestService(t, index, emb)

	if _, err := svc.Ingest(context.Background(), "doc1.txt", "some words here"); err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if index.deleteCalls != 1 || index.deletedSource != "doc1.txt" {
		t.Errorf("expected old chunks deleted for doc1.txt, got %d calls for %q",
			index.deleteCalls, index.deletedSource)
	}
}

func TestIngest_EmptyDocument(t *testing.T) {
	index := &mockIndex{}
	emb := &mockEmbedder{embedding: []float32{0.1}}
	svc := newTestService(t, index, emb)

	_, err := svc.Ingest(context.Background(), "doc1.txt", "   \n\t  ")
	if !errors.Is(err, domain.ErrEmptyInput) {
		t.Errorf("expected ErrEmptyInput, got %v", err)
	}
	if index.deleteCalls != 0 || len(index.upserted) != 0 {
		t.Error("index must not be touched on empty input")
	}
}

func TestIngest_EmbedderErrorStopsIngestion(t *testing.T) {
	index := &mockIndex{}
	emb := &mockEmbedder{err: domain.ErrEmbeddingProvider}
	svc := newTestService(t, index, emb)

	_, err := svc.Ingest(context.Background(), "doc1.txt", "some words")
	if !errors.Is(err, domain.ErrEmbeddingProvider) {
		t.Errorf("expected ErrEmbeddingProvider, got %v", err)
	}
	if index.deleteCalls != 0 || len(index.upserted) != 0 {
		t.Error("index must not be touched when embedding fails")
	}
}

func TestIngest_EmbedTimeout(t *testing.T) {
	index := &mockIndex{}
	emb := &mockEmbedder{err: context.DeadlineExceeded}
	svc := newTestService(t, index, emb)

	_, err := svc.Ingest(context.Background(), "doc1.txt", "some words")
	if !errors.Is(err, domain.ErrTimeout) {
		t.Errorf("expected ErrTimeout, got %v", err)
	}
}

func TestIngest_IndexErrorPropagates(t *testing.T) {
	index := &mockIndex{upsertErr: errors.New("write failed")}
	emb := &mockEmbedder{embedding: []float32{0.1}}
	svc := newTestService(t, index, emb)

	_, err := svc.Ingest(context.Background(), "doc1.txt", "some words")
	if err == nil {
		t.Fatal("expected error from index")
	}
}

func TestSources(t *testing.T) {
	index := &mockIndex{sources: []string{"a.txt", "b.txt"}}
	emb := &mockEmbedder{embedding: []float32{0.1}}
	svc := newTestService(t, index, emb)

	sources, err := svc.Sources(context.Background())
	if err != nil {
		t.Fatalf("Sources: %v", err)
	}
	if len(sources) != 2 {
		t.Errorf("expected 2 sources, got %v", sources)
	}
}
