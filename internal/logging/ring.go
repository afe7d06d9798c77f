package logging

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// defaultRingCap bounds the in-memory log feed.
const defaultRingCap = 1000

// Entry is one captured log line.
type Entry struct {
	Time    time.Time
	Level   Level
	Message string
}

// Ring is a bounded in-memory log sink. It implements zerolog.Hook so it can
// be attached to the global logger; when full, the oldest entry is dropped.
// It also serves as the diagnostic sink for raw provider errors, which are
// recorded in full here while the transcript only gets a short user string.
type Ring struct {
	mu      sync.Mutex
	entries []Entry
	cap     int
}

// NewRing creates a ring with the default capacity.
func NewRing() *Ring {
	return NewRingSize(defaultRingCap)
}

// NewRingSize creates a ring holding at most size entries.
func NewRingSize(size int) *Ring {
	if size <= 0 {
		size = defaultRingCap
	}
	return &Ring{cap: size}
}

// Run implements zerolog.Hook.
func (r *Ring) Run(_ *zerolog.Event, level zerolog.Level, message string) {
	if message == "" {
		return
	}
	r.Append(Entry{Time: time.Now(), Level: level, Message: message})
}

// Append records an entry directly, bypassing the logger.
func (r *Ring) Append(e Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.entries = append(r.entries, e)
	if len(r.entries) > r.cap {
		r.entries = r.entries[len(r.entries)-r.cap:]
	}
}

// Entries returns a snapshot of the captured entries, oldest first.
func (r *Ring) Entries() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Entry, len(r.entries))
	copy(out, r.entries)
	return out
}

// Len returns the number of captured entries.
func (r *Ring) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
