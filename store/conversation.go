package store

import "time"

// Role identifies the author of a conversation message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ConversationMessage is one row of the append-only message log.
type ConversationMessage struct {
	ConversationID string    `json:"conversation_id"`
	UserID         string    `json:"user_id"`
	Role           Role      `json:"role"`
	Message        string    `json:"message"`
	CreatedAt      time.Time `json:"timestamp"`
}

// ConversationSubject is the title row written once per conversation.
// Title is empty for conversations whose title has not been written yet.
type ConversationSubject struct {
	ConversationID string    `json:"conversation_id"`
	UserID         string    `json:"user_id"`
	Title          string    `json:"subject"`
	CreatedAt      time.Time `json:"timestamp"`
}

type FindConversationSubject struct {
	UserID string
	Offset int
	Limit  int
}

// UserProfile holds the static attributes of a user.
type UserProfile struct {
	ID     string            `json:"id"`
	Name   string            `json:"name"`
	Age    string            `json:"age"`
	Height string            `json:"height"`
	Gender string            `json:"gender"`
	Extra  map[string]string `json:"extra,omitempty"`
}
