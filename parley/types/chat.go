package types

import (
	"errors"
	"time"
)

// DefaultChatTitle is the title a chat keeps until the background rename lands.
const DefaultChatTitle = "New Chat"

// ErrInvalidRole is returned when persisting a message whose role is not user or assistant.
var ErrInvalidRole = errors.New("invalid message role")

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is one of the two persisted roles.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

type Chat struct {
	ID        string    `json:"_id"`
	UserID    string    `json:"userId"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"createdAt"`
}

type Message struct {
	ID        string    `json:"_id"`
	ChatID    string    `json:"chatId"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

// Transcript is the archived form of a chat and its messages.
type Transcript struct {
	Chat       Chat      `json:"chat"`
	Messages   []Message `json:"messages"`
	ArchivedAt time.Time `json:"archivedAt"`
}
