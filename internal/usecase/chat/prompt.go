package chat

import (
	"fmt"
	"strings"

	"github.com/ragchat/ragchat/internal/domain"
)

const systemPrompt = "You are an expert assistant specialized in answering questions " +
	"based on provided documents. Answer in a concise manner using only the information " +
	"from the context. If you don't know the answer based on the context, say so."

// buildUserMessage renders the retrieved context and the question into the
// final user message. With no retrieved chunks the question is sent as is,
// letting the model answer per the system instruction.
func buildUserMessage(question string, retrieved []domain.RetrievalResult) string {
	if len(retrieved) == 0 {
		return question
	}

	var b strings.Builder
	b.WriteString("Context:\n")
	for _, r := range retrieved {
		fmt.Fprintf(&b, "[%s] %s\n", r.Chunk.SourceID, r.Chunk.Text)
	}
	b.WriteString("\nQuestion: ")
	b.WriteString(question)
	return b.String()
}

// buildMessages assembles the history followed by the final user message.
func buildMessages(history []domain.Turn, userMessage string) []domain.ChatMessage {
	messages := make([]domain.ChatMessage, 0, len(history)+1)
	for _, turn := range history {
		messages = append(messages, domain.ChatMessage{Role: turn.Role, Content: turn.Content})
	}
	messages = append(messages, domain.ChatMessage{Role: domain.RoleUser, Content: userMessage})
	return messages
}
