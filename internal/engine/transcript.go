package engine

import (
	"sync"

	"github.com/tagforge/tagforge/pkg/types"
)

// Transcript is the live message list of the active session. The streaming
// pipeline appends to it from its own goroutine, so access is synchronized.
type Transcript struct {
	mu   sync.RWMutex
	msgs []*types.Message
}

// NewTranscript wraps an existing message slice.
func NewTranscript(msgs []*types.Message) *Transcript {
	return &Transcript{msgs: msgs}
}

// Append adds a message to the end.
func (t *Transcript) Append(msg *types.Message) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.msgs = append(t.msgs, msg)
}

// Messages returns a snapshot of the message list.
func (t *Transcript) Messages() []*types.Message {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]*types.Message(nil), t.msgs...)
}

// Len returns the message count.
func (t *Transcript) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.msgs)
}
