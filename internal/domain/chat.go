package domain

import "context"

// ChatMessage is one message in a chat completion request.
type ChatMessage struct {
	Role    Role
	Content string
}

// ChatResult holds a completion and its token usage.
type ChatResult struct {
	Content          string
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// ChatModel produces a completion for an assembled message list.
type ChatModel interface {
	Complete(ctx context.Context, system string, messages []ChatMessage) (ChatResult, error)
}
