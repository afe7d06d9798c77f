package event

import "github.com/tagforge/tagforge/pkg/types"

// SessionCreatedData is the data for session.created events.
type SessionCreatedData struct {
	Info *types.Session `json:"info"`
}

// SessionUpdatedData is the data for session.updated events.
type SessionUpdatedData struct {
	Info *types.Session `json:"info"`
}

// SessionDeletedData is the data for session.deleted events.
type SessionDeletedData struct {
	SessionID string         `json:"sessionID"`
	Category  types.Category `json:"category"`
}

// SessionListChangedData is the data for session.list.changed events. A zero
// Category means every category may have changed.
type SessionListChangedData struct {
	Category types.Category `json:"category,omitempty"`
}

// MessageUpdatedData is the data for message.updated events fired while a
// generation streams into a transcript. Delta carries just the newly applied
// batch text.
type MessageUpdatedData struct {
	SessionID string         `json:"sessionID"`
	Message   *types.Message `json:"message"`
	Delta     string         `json:"delta,omitempty"`
}

// GenerationStateData is the data for generation.state events.
type GenerationStateData struct {
	SessionID  string `json:"sessionID"`
	Generating bool   `json:"generating"`
	State      string `json:"state"`
}

// ScrollRequestedData is the data for scroll.requested events.
type ScrollRequestedData struct {
	SessionID string `json:"sessionID"`
}
