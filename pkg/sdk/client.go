package ragchat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const defaultTimeout = 90 * time.Second

// Client is the ragchat SDK entry point.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// New creates a ragchat Client for the given base URL.
func New(baseURL string, opts ...Option) *Client {
	cfg := &clientConfig{}
	for _, o := range opts {
		o.apply(cfg)
	}

	hc := cfg.httpClient
	if hc == nil {
		hc = &http.Client{Timeout: defaultTimeout}
	}

	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     cfg.apiKey,
		httpClient: hc,
	}
}

// IngestResult reports the outcome of a document ingestion.
type IngestResult struct {
	Source string `json:"source"`
	Chunks int    `json:"chunks"`
}

// IngestDocument uploads a plain-text document for chunking and indexing.
// Re-ingesting the same source replaces its previous chunks.
func (c *Client) IngestDocument(ctx context.Context, source, text string) (IngestResult, error) {
	body := map[string]string{"source": source, "text": text}

	var result IngestResult
	if err := c.do(ctx, http.MethodPost, "/api/v1/documents", body, &result); err != nil {
		return IngestResult{}, err
	}
	return result, nil
}

// UsedChunk identifies a chunk that backed an answer.
type UsedChunk struct {
	Source string `json:"source"`
	Seq    int    `json:"seq"`
	Text   string `json:"text"`
}

// Answer carries the model's answer and its provenance.
type Answer struct {
	Answer     string      `json:"answer"`
	UsedChunks []UsedChunk `json:"usedChunks"`
}

// Ask sends a question within a conversation. A non-nil sources list restricts
// retrieval to those documents.
func (c *Client) Ask(ctx context.Context, question, conversationID string, sources []string) (Answer, error) {
	body := map[string]any{
		"question":       question,
		"conversationId": conversationID,
	}
	if len(sources) > 0 {
		body["sources"] = sources
	}

	var answer Answer
	if err := c.do(ctx, http.MethodPost, "/api/v1/chat", body, &answer); err != nil {
		return Answer{}, err
	}
	return answer, nil
}

// ListSources returns the ids of all ingested documents.
func (c *Client) ListSources(ctx context.Context) ([]string, error) {
	var resp struct {
		Sources []string `json:"sources"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/v1/sources", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Sources, nil
}

// HealthReport aggregates the service's component health.
type HealthReport struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// Health reports the service's component health. A degraded service responds
// with 503 but still carries a report, returned here without error.
func (c *Client) Health(ctx context.Context) (HealthReport, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", http.NoBody)
	if err != nil {
		return HealthReport{}, fmt.Errorf("ragchat: build request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return HealthReport{}, fmt.Errorf("ragchat: GET /health: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusServiceUnavailable {
		return HealthReport{}, &APIError{Status: resp.StatusCode, Code: "unknown", Message: resp.Status}
	}

	var report HealthReport
	if err := json.NewDecoder(resp.Body).Decode(&report); err != nil {
		return HealthReport{}, fmt.Errorf("ragchat: decode response: %w", err)
	}
	return report, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reqBody *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("ragchat: encode request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	} else {
		reqBody = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("ragchat: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("ragchat: %s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		apiErr := &APIError{Status: resp.StatusCode, Code: "unknown", Message: resp.Status}
		var errBody struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		}
		if json.NewDecoder(resp.Body).Decode(&errBody) == nil && errBody.Code != "" {
			apiErr.Code = errBody.Code
			apiErr.Message = errBody.Message
		}
		return apiErr
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("ragchat: decode response: %w", err)
		}
	}
	return nil
}
