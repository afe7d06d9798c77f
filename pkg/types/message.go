package types

import (
	"time"

	"github.com/oklog/ulid/v2"
)

// Role identifies who produced a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleError     Role = "error"
)

// Message is one entry in a session transcript. Content is append-only while
// a generation streams into it; the message is owned by exactly one transcript
// while in memory.
type Message struct {
	ID      string `json:"id"`
	Role    Role   `json:"role"`
	Content string `json:"content"`

	// IsThinking is set while the model emits a <think> span; the span text
	// itself never reaches Content.
	IsThinking bool `json:"isThinking,omitempty"`

	// IsLoadingModel is set on a placeholder assistant message until the
	// first token arrives.
	IsLoadingModel bool `json:"isLoadingModel,omitempty"`

	CreatedAt int64 `json:"createdAt"`

	// Details carries secondary text, e.g. the classified error string on a
	// failure notice.
	Details string `json:"details,omitempty"`
}

// NewMessage creates a message stamped with the current time.
func NewMessage(role Role, content string) *Message {
	return &Message{
		ID:        ulid.Make().String(),
		Role:      role,
		Content:   content,
		CreatedAt: time.Now().UnixMilli(),
	}
}
