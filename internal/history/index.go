package history

import (
	"sort"

	"github.com/tagforge/tagforge/internal/logging"
	"github.com/tagforge/tagforge/pkg/types"
)

// LoadIndex returns the category's sessions ordered by recency. A missing or
// corrupt index, or one that disagrees with the transcript files actually on
// disk, is rebuilt by scanning the category directory — the index is a cache
// over the transcripts, never the source of truth.
func (s *Store) LoadIndex(category types.Category) []types.Session {
	sessions := s.readIndex(category)

	if s.indexStale(category, sessions) {
		sessions = s.rebuildIndex(category)
		s.writeIndex(category, sessions)
	}

	sessions = dedupe(sessions)
	sortByRecency(sessions)
	return sessions
}

// readIndex reads the raw index file without healing. Missing or corrupt
// files yield nil.
func (s *Store) readIndex(category types.Category) []types.Session {
	var index types.SessionIndex
	if err := s.files.ReadJSON(indexFile(category), &index); err != nil {
		return nil
	}
	return index.Sessions
}

// writeIndex persists the deduplicated index, logging and swallowing I/O
// failures per the store's persistence contract.
func (s *Store) writeIndex(category types.Category, sessions []types.Session) {
	index := types.SessionIndex{Sessions: dedupe(sessions)}
	sortByRecency(index.Sessions)
	if err := s.files.WriteJSON(indexFile(category), index); err != nil {
		logging.Error().Err(err).Str("category", string(category)).Msg("failed to persist session index")
	}
}

// indexStale reports whether the index disagrees with the transcript files on
// disk, id for id.
func (s *Store) indexStale(category types.Category, sessions []types.Session) bool {
	ids, err := s.files.ListJSON(string(category))
	if err != nil {
		return false
	}

	if len(ids) != len(dedupe(sessions)) {
		return true
	}

	indexed := make(map[string]bool, len(sessions))
	for _, sess := range sessions {
		indexed[sess.ID] = true
	}
	for _, id := range ids {
		if !indexed[id] {
			return true
		}
	}
	return false
}

// rebuildIndex reconstructs session summaries by scanning the category's
// transcript directory. Derived fields come from the transcripts themselves;
// timestamps fall back to file metadata.
func (s *Store) rebuildIndex(category types.Category) []types.Session {
	ids, err := s.files.ListJSON(string(category))
	if err != nil {
		logging.Error().Err(err).Str("category", string(category)).Msg("index rebuild failed")
		return nil
	}

	sessions := make([]types.Session, 0, len(ids))
	for _, id := range ids {
		messages := s.LoadTranscript(id)
		summary := deriveSummary(id, messages)

		if info, err := s.files.Stat(transcriptFile(category, id)); err == nil {
			summary.CreatedAt = info.ModTime().UnixMilli()
			summary.LastModified = info.ModTime().UnixMilli()
		}
		if len(messages) > 0 {
			summary.CreatedAt = messages[0].CreatedAt
		}

		sessions = append(sessions, summary)
	}

	logging.Info().Str("category", string(category)).Int("sessions", len(sessions)).Msg("rebuilt session index")
	return sessions
}

// deriveSummary computes the denormalized index entry for a transcript.
func deriveSummary(sessionID string, messages []*types.Message) types.Session {
	createdAt := nowMillis()
	if len(messages) > 0 && messages[0].CreatedAt > 0 {
		createdAt = messages[0].CreatedAt
	}
	return types.Session{
		ID:           sessionID,
		Title:        DeriveTitle(messages),
		CreatedAt:    createdAt,
		LastModified: nowMillis(),
		MessageCount: len(messages),
		PreviewText:  derivePreview(messages),
	}
}

// dedupe keeps exactly one entry per id; on conflict the entry with the
// latest last-modified wins.
func dedupe(sessions []types.Session) []types.Session {
	byID := make(map[string]types.Session, len(sessions))
	order := make([]string, 0, len(sessions))

	for _, sess := range sessions {
		existing, ok := byID[sess.ID]
		if !ok {
			byID[sess.ID] = sess
			order = append(order, sess.ID)
			continue
		}
		if sess.LastModified > existing.LastModified {
			byID[sess.ID] = sess
		}
	}

	out := make([]types.Session, 0, len(byID))
	for _, id := range order {
		out = append(out, byID[id])
	}
	return out
}

// sortByRecency orders sessions by last-modified descending.
func sortByRecency(sessions []types.Session) {
	sort.SliceStable(sessions, func(i, j int) bool {
		return sessions[i].LastModified > sessions[j].LastModified
	})
}
