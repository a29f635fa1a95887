package domain

import "time"

// Role identifies the author of a conversation turn.
type Role string

const (
	// RoleUser marks a turn authored by the asking user.
	RoleUser Role = "user"
	// RoleAssistant marks a turn authored by the model.
	RoleAssistant Role = "assistant"
)

// Turn is one message in a conversation. Turns are append-only and never
// reordered; At is informational, ordering is insertion order.
type Turn struct {
	Role    Role
	Content string
	At      time.Time
}

// NewTurn creates a turn stamped with the current time.
func NewTurn(role Role, content string) Turn {
	return Turn{Role: role, Content: content, At: time.Now()}
}
