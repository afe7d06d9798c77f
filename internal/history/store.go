// Package history provides durable, crash-tolerant storage of per-session
// transcripts and the per-category session index, plus the read-side catalog
// for the session browser.
package history

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/tagforge/tagforge/internal/event"
	"github.com/tagforge/tagforge/internal/logging"
	"github.com/tagforge/tagforge/internal/storage"
	"github.com/tagforge/tagforge/pkg/types"
)

// Store owns the on-disk session layout: one transcript file per session
// under a per-category directory, and one index file per category.
//
// Persistence here is deliberately best-effort: a failed save is logged and
// swallowed, never raised, because losing a save must not take down an
// in-progress generation or a UI action. The index is a cache over the
// transcripts and self-heals from them, so a stale index after a crash is
// recoverable.
type Store struct {
	files *storage.Store
	bus   *event.Bus
}

// New creates a Store over the given file store. The bus may be nil.
func New(files *storage.Store, bus *event.Bus) *Store {
	return &Store{files: files, bus: bus}
}

// transcriptFile returns the store-relative transcript path for a session.
func transcriptFile(category types.Category, sessionID string) string {
	return filepath.Join(string(category), sessionID+".json")
}

// indexFile returns the store-relative index path for a category.
func indexFile(category types.Category) string {
	return fmt.Sprintf("sessions_index_%s.json", category)
}

// CreateSession returns a session to write into. If the category already has
// a session with zero messages it is reused (bumped and marked active) so
// navigation churn does not pile up empty files; otherwise a fresh session is
// allocated and persisted.
func (s *Store) CreateSession(category types.Category) *types.Session {
	now := time.Now().UnixMilli()
	sessions := s.LoadIndex(category)

	for i := range sessions {
		if sessions[i].MessageCount == 0 {
			sessions[i].LastModified = now
			sessions[i].Active = true
			s.writeIndex(category, sessions)
			reused := sessions[i]
			return &reused
		}
	}

	session := &types.Session{
		ID:           s.uniqueSessionID(category, sessions),
		Title:        fallbackTitle(),
		CreatedAt:    now,
		LastModified: now,
		Active:       true,
	}

	if err := s.files.WriteJSON(transcriptFile(category, session.ID), []*types.Message{}); err != nil {
		logging.Error().Err(err).Str("session", session.ID).Msg("failed to persist new transcript")
	}

	sessions = append(sessions, *session)
	s.writeIndex(category, sessions)

	s.publish(event.Event{Type: event.SessionCreated, Data: event.SessionCreatedData{Info: session}})
	return session
}

// uniqueSessionID allocates a timestamp id that collides with neither the
// index nor an existing transcript file. Sessions created within the same
// millisecond get successive timestamps.
func (s *Store) uniqueSessionID(category types.Category, sessions []types.Session) string {
	taken := make(map[string]bool, len(sessions))
	for _, sess := range sessions {
		taken[sess.ID] = true
	}

	id := types.NewSessionID(category)
	ts := time.Now().UnixMilli()
	for taken[id] || s.files.Exists(transcriptFile(category, id)) {
		ts++
		id = fmt.Sprintf("%s_%d", category, ts)
	}
	return id
}

// LoadTranscript returns the ordered messages of a session. A missing or
// unparsable file is an empty session, never an error.
func (s *Store) LoadTranscript(sessionID string) []*types.Message {
	category := (&types.Session{ID: sessionID}).Category()

	var messages []*types.Message
	if err := s.files.ReadJSON(transcriptFile(category, sessionID), &messages); err != nil {
		if err != storage.ErrNotFound {
			logging.Warn().Err(err).Str("session", sessionID).Msg("unreadable transcript treated as empty")
		}
		return []*types.Message{}
	}
	if messages == nil {
		messages = []*types.Message{}
	}
	return messages
}

// SaveTranscript writes the transcript file, then refreshes the session's
// index entry with freshly derived title, preview, count and last-modified.
// The two writes are not atomic with each other; a crash in between leaves a
// stale index that self-heals on the next load or save.
func (s *Store) SaveTranscript(sessionID string, messages []*types.Message, category types.Category) {
	if err := s.files.WriteJSON(transcriptFile(category, sessionID), messages); err != nil {
		logging.Error().Err(err).Str("session", sessionID).Msg("failed to save transcript")
		return
	}

	sessions := s.readIndex(category)

	summary := deriveSummary(sessionID, messages)
	found := false
	for i := range sessions {
		if sessions[i].ID == sessionID {
			if sessions[i].CreatedAt > 0 {
				summary.CreatedAt = sessions[i].CreatedAt
			}
			summary.Active = sessions[i].Active
			sessions[i] = summary
			found = true
			break
		}
	}
	if !found {
		sessions = append(sessions, summary)
	}

	s.writeIndex(category, sessions)
}

// RenameSession sets a new title on the index entry and bumps last-modified.
func (s *Store) RenameSession(sessionID string, category types.Category, title string) {
	sessions := s.readIndex(category)
	for i := range sessions {
		if sessions[i].ID == sessionID {
			sessions[i].Title = title
			sessions[i].LastModified = time.Now().UnixMilli()
			updated := sessions[i]
			s.writeIndex(category, sessions)
			s.publish(event.Event{Type: event.SessionUpdated, Data: event.SessionUpdatedData{Info: &updated}})
			return
		}
	}
}

// DeleteSession removes a session's transcript and index entry. Missing files
// are not errors.
func (s *Store) DeleteSession(sessionID string, category types.Category) {
	if err := s.files.Remove(transcriptFile(category, sessionID)); err != nil {
		logging.Warn().Err(err).Str("session", sessionID).Msg("failed to delete transcript")
	}

	sessions := s.readIndex(category)
	kept := sessions[:0]
	for _, sess := range sessions {
		if sess.ID != sessionID {
			kept = append(kept, sess)
		}
	}
	s.writeIndex(category, kept)

	s.publish(event.Event{Type: event.SessionDeleted, Data: event.SessionDeletedData{
		SessionID: sessionID,
		Category:  category,
	}})
}

// DeleteAllSessions removes every transcript in a category and empties the
// index.
func (s *Store) DeleteAllSessions(category types.Category) {
	ids, err := s.files.ListJSON(string(category))
	if err != nil {
		logging.Warn().Err(err).Str("category", string(category)).Msg("failed to list transcripts")
	}
	for _, id := range ids {
		if err := s.files.Remove(transcriptFile(category, id)); err != nil {
			logging.Warn().Err(err).Str("session", id).Msg("failed to delete transcript")
		}
	}

	s.writeIndex(category, nil)
	s.publishListChanged(category)
}

// DeleteEmptySessions removes sessions whose transcripts hold no messages.
func (s *Store) DeleteEmptySessions(category types.Category) {
	sessions := s.LoadIndex(category)
	kept := sessions[:0]
	for _, sess := range sessions {
		if len(s.LoadTranscript(sess.ID)) == 0 {
			if err := s.files.Remove(transcriptFile(category, sess.ID)); err != nil {
				logging.Warn().Err(err).Str("session", sess.ID).Msg("failed to delete empty transcript")
			}
			continue
		}
		kept = append(kept, sess)
	}
	s.writeIndex(category, kept)
	s.publishListChanged(category)
}

// publish fires an event when a bus is attached, followed by a list-changed
// notification so browsers refresh.
func (s *Store) publish(e event.Event) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(e)
	s.bus.Publish(event.Event{Type: event.SessionListChanged, Data: event.SessionListChangedData{}})
}

func (s *Store) publishListChanged(category types.Category) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(event.Event{Type: event.SessionListChanged, Data: event.SessionListChangedData{Category: category}})
}
