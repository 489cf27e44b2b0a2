package models

// Role represents the role of a chat message sender
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a single chat-completion message.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}
