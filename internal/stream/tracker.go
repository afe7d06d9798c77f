package stream

import (
	"sync"
	"time"

	"github.com/tagforge/tagforge/internal/event"
	"github.com/tagforge/tagforge/internal/history"
	"github.com/tagforge/tagforge/internal/logging"
	"github.com/tagforge/tagforge/pkg/types"
)

// backgroundSaveDebounce is the minimum gap between persists of a session
// that is generating while not displayed.
const backgroundSaveDebounce = 2 * time.Second

// Transcript is the live message list a generation streams into. The engine
// owns the concrete type; the tracker only appends notices and snapshots it
// for persistence.
type Transcript interface {
	Append(msg *types.Message)
	Messages() []*types.Message
}

// Tracker follows the single in-flight generation across session switches.
// While the generating session is displayed, batches only mutate the target
// message and the transcript stays in memory; once the user switches away the
// tracker keeps streaming into the detached message and persists it to disk
// on a debounce, so progress survives even if the session is never reopened.
type Tracker struct {
	store    *history.Store
	bus      *event.Bus
	debounce time.Duration

	mu          sync.Mutex
	sessionID   string
	category    types.Category
	transcript  Transcript
	target      *types.Message
	displayedID string
	lastPersist time.Time

	saveLocks sync.Map // session id -> *sync.Mutex
	saves     sync.WaitGroup
}

// NewTracker creates a tracker persisting through store and publishing
// message updates on bus.
func NewTracker(store *history.Store, bus *event.Bus) *Tracker {
	return &Tracker{
		store:    store,
		bus:      bus,
		debounce: backgroundSaveDebounce,
	}
}

// SetDisplayed records which session the user is currently looking at.
func (t *Tracker) SetDisplayed(sessionID string) {
	t.mu.Lock()
	t.displayedID = sessionID
	t.mu.Unlock()
}

// Displayed returns the currently displayed session id.
func (t *Tracker) Displayed() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.displayedID
}

// Generating reports the session a generation is running for, if any.
func (t *Tracker) Generating() (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sessionID, t.sessionID != ""
}

// Live returns the transcript of the generation running for sessionID, so a
// caller switching back into that session can adopt the in-flight messages
// instead of reloading a stale copy from disk.
func (t *Tracker) Live(sessionID string) (Transcript, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.sessionID != sessionID || t.transcript == nil {
		return nil, false
	}
	return t.transcript, true
}

// Begin claims the single generation slot for sessionID. Only one generation
// may run at a time; a second Begin fails with ErrGenerationActive.
func (t *Tracker) Begin(sessionID string, category types.Category, transcript Transcript, target *types.Message) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.sessionID != "" {
		return ErrGenerationActive
	}
	t.sessionID = sessionID
	t.category = category
	t.transcript = transcript
	t.target = target
	t.lastPersist = time.Now()
	return nil
}

// Apply records that delta was appended to the target message. Content is a
// snapshot of the target's full content after the append; it is captured here
// so background persists never race the streaming goroutine.
func (t *Tracker) Apply(delta, content string) {
	t.mu.Lock()
	sessionID := t.sessionID
	category := t.category
	target := t.target
	background := sessionID != "" && sessionID != t.displayedID
	due := background && time.Since(t.lastPersist) >= t.debounce
	if due {
		t.lastPersist = time.Now()
	}
	t.mu.Unlock()

	if sessionID == "" {
		return
	}

	// Sync publish keeps deltas ordered for subscribers.
	t.bus.PublishSync(event.Event{
		Type: event.MessageUpdated,
		Data: event.MessageUpdatedData{SessionID: sessionID, Message: target, Delta: delta},
	})

	if due {
		t.saves.Add(1)
		go func() {
			defer t.saves.Done()
			t.persistBackground(sessionID, category, content)
		}()
	}
}

// Finish releases the generation slot and persists the final transcript
// unconditionally. A non-nil notice (stop or failure marker) is appended to
// the transcript first.
func (t *Tracker) Finish(notice *types.Message) {
	t.mu.Lock()
	sessionID := t.sessionID
	category := t.category
	transcript := t.transcript
	t.sessionID = ""
	t.category = ""
	t.transcript = nil
	t.target = nil
	t.mu.Unlock()

	if sessionID == "" || transcript == nil {
		return
	}
	if notice != nil {
		transcript.Append(notice)
	}

	// Outstanding debounced saves carry older snapshots; let them land first
	// so the final persist wins.
	t.saves.Wait()

	lock := t.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()
	t.store.SaveTranscript(sessionID, transcript.Messages(), category)
}

// WaitIdle blocks until all outstanding background saves have completed.
func (t *Tracker) WaitIdle() {
	t.saves.Wait()
}

// WithSessionLock runs fn while holding the per-session write lock, so
// callers persisting a transcript from outside the tracker cannot interleave
// with a background save of the same session.
func (t *Tracker) WithSessionLock(sessionID string, fn func()) {
	lock := t.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()
	fn()
}

// persistBackground merges the accumulated content into the on-disk
// transcript. The transcript was persisted when the user switched away, so
// the target assistant message is normally its last assistant entry.
func (t *Tracker) persistBackground(sessionID string, category types.Category, content string) {
	lock := t.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	messages := t.store.LoadTranscript(sessionID)
	merged := false
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == types.RoleAssistant {
			messages[i].Content = content
			merged = true
			break
		}
	}
	if !merged {
		msg := types.NewMessage(types.RoleAssistant, content)
		messages = append(messages, msg)
	}
	t.store.SaveTranscript(sessionID, messages, category)

	logging.Debug().
		Str("sessionID", sessionID).
		Int("messages", len(messages)).
		Msg("persisted background generation progress")
}

func (t *Tracker) sessionLock(sessionID string) *sync.Mutex {
	actual, _ := t.saveLocks.LoadOrStore(sessionID, &sync.Mutex{})
	return actual.(*sync.Mutex)
}
