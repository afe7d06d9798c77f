package stream

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tagforge/tagforge/internal/event"
	"github.com/tagforge/tagforge/internal/history"
	"github.com/tagforge/tagforge/internal/storage"
	"github.com/tagforge/tagforge/pkg/types"
)

func newTrackerHarness(t *testing.T) (*Tracker, *history.Store) {
	t.Helper()
	bus := event.NewBus()
	t.Cleanup(func() { bus.Close() })
	store := history.New(storage.New(t.TempDir()), bus)
	tracker := NewTracker(store, bus)
	tracker.debounce = 5 * time.Millisecond
	return tracker, store
}

// seedGeneration claims the slot for sessionID with a transcript already on
// disk, mirroring the state after the user switched away mid-generation.
func seedGeneration(t *testing.T, tracker *Tracker, store *history.Store, sessionID string) (*memTranscript, *types.Message) {
	t.Helper()
	transcript := &memTranscript{}
	transcript.Append(types.NewMessage(types.RoleUser, "prompt"))
	target := types.NewMessage(types.RoleAssistant, "")
	transcript.Append(target)
	store.SaveTranscript(sessionID, transcript.Messages(), types.CategoryChat)

	require.NoError(t, tracker.Begin(sessionID, types.CategoryChat, transcript, target))
	return transcript, target
}

func TestTrackerRejectsSecondBegin(t *testing.T) {
	tracker, store := newTrackerHarness(t)
	seedGeneration(t, tracker, store, "chat_2024")

	err := tracker.Begin("chat_2025", types.CategoryChat, &memTranscript{}, types.NewMessage(types.RoleAssistant, ""))
	assert.ErrorIs(t, err, ErrGenerationActive)

	tracker.Finish(nil)
	require.NoError(t, tracker.Begin("chat_2025", types.CategoryChat, &memTranscript{}, types.NewMessage(types.RoleAssistant, "")))
	tracker.Finish(nil)
}

func TestTrackerForegroundDoesNotPersistPerBatch(t *testing.T) {
	tracker, store := newTrackerHarness(t)
	_, target := seedGeneration(t, tracker, store, "chat_2024")
	tracker.SetDisplayed("chat_2024")

	time.Sleep(10 * time.Millisecond)
	target.Content = "streamed"
	tracker.Apply("streamed", target.Content)
	tracker.WaitIdle()

	persisted := store.LoadTranscript("chat_2024")
	require.Len(t, persisted, 2)
	assert.Equal(t, "", persisted[1].Content, "foreground batches stay in memory until the run settles")

	tracker.Finish(nil)
	persisted = store.LoadTranscript("chat_2024")
	assert.Equal(t, "streamed", persisted[1].Content)
}

func TestTrackerBackgroundPersistsOnDebounce(t *testing.T) {
	tracker, store := newTrackerHarness(t)
	_, target := seedGeneration(t, tracker, store, "chat_2024")
	// User is looking at a different session.
	tracker.SetDisplayed("chat_2025")

	time.Sleep(10 * time.Millisecond)
	target.Content = "partial progress"
	tracker.Apply("partial progress", target.Content)
	tracker.WaitIdle()

	persisted := store.LoadTranscript("chat_2024")
	require.Len(t, persisted, 2)
	assert.Equal(t, "partial progress", persisted[1].Content)

	// Inside the debounce window nothing new lands on disk.
	tracker.debounce = time.Hour
	target.Content += " more"
	tracker.Apply(" more", target.Content)
	tracker.WaitIdle()
	persisted = store.LoadTranscript("chat_2024")
	assert.Equal(t, "partial progress", persisted[1].Content)

	// The final persist always wins.
	tracker.Finish(nil)
	persisted = store.LoadTranscript("chat_2024")
	assert.Equal(t, "partial progress more", persisted[1].Content)
}

func TestTrackerBackgroundAppendsWhenAssistantMissing(t *testing.T) {
	tracker, store := newTrackerHarness(t)

	transcript := &memTranscript{}
	transcript.Append(types.NewMessage(types.RoleUser, "prompt"))
	target := types.NewMessage(types.RoleAssistant, "")
	transcript.Append(target)
	// Only the user message made it to disk.
	store.SaveTranscript("chat_2024", transcript.Messages()[:1], types.CategoryChat)

	require.NoError(t, tracker.Begin("chat_2024", types.CategoryChat, transcript, target))
	tracker.SetDisplayed("chat_2025")

	time.Sleep(10 * time.Millisecond)
	target.Content = "recovered"
	tracker.Apply("recovered", target.Content)
	tracker.WaitIdle()

	persisted := store.LoadTranscript("chat_2024")
	require.Len(t, persisted, 2)
	assert.Equal(t, types.RoleAssistant, persisted[1].Role)
	assert.Equal(t, "recovered", persisted[1].Content)

	tracker.Finish(nil)
}

func TestTrackerFinishAppendsNotice(t *testing.T) {
	tracker, store := newTrackerHarness(t)
	transcript, target := seedGeneration(t, tracker, store, "chat_2024")
	tracker.SetDisplayed("chat_2024")

	target.Content = "cut short"
	tracker.Apply("cut short", target.Content)
	tracker.Finish(types.NewMessage(types.RoleSystem, stoppedNotice))

	msgs := transcript.Messages()
	require.Len(t, msgs, 3)
	assert.Equal(t, stoppedNotice, msgs[2].Content)

	persisted := store.LoadTranscript("chat_2024")
	require.Len(t, persisted, 3)
	assert.Equal(t, "cut short", persisted[1].Content)
	assert.Equal(t, types.RoleSystem, persisted[2].Role)
}
