package history

import (
	"encoding/json"
	"os"

	"github.com/tagforge/tagforge/internal/logging"
	"github.com/tagforge/tagforge/pkg/types"
)

// legacyFiles maps the single flat transcript files of old releases to the
// category their contents belong in.
var legacyFiles = map[string]types.Category{
	"history.json":            types.CategoryChat,
	"generation_history.json": types.CategoryGenerator,
}

// MigrateLegacy consumes any legacy flat transcript files found in the data
// directory. Safe to call on every startup; it is a no-op once the files are
// gone.
func (s *Store) MigrateLegacy() {
	for name, category := range legacyFiles {
		path := s.files.Path(name)
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if sess := s.MigrateLegacyFile(path, category); sess != nil {
			logging.Info().Str("file", name).Str("session", sess.ID).Msg("migrated legacy history")
		}
	}
}

// MigrateLegacyFile reads a legacy flat transcript and, if it holds any
// messages, synthesizes a new session from it. The legacy file is removed
// afterwards in every case, including when it was empty or unparsable.
func (s *Store) MigrateLegacyFile(oldPath string, category types.Category) *types.Session {
	data, err := os.ReadFile(oldPath)
	if err != nil {
		return nil
	}

	var messages []*types.Message
	if err := json.Unmarshal(data, &messages); err != nil {
		logging.Warn().Err(err).Str("file", oldPath).Msg("unparsable legacy history discarded")
		messages = nil
	}

	var session *types.Session
	if len(messages) > 0 {
		session = &types.Session{
			ID:           types.MigratedSessionID(category),
			Title:        DeriveTitle(messages),
			CreatedAt:    nowMillis(),
			LastModified: nowMillis(),
		}
		s.SaveTranscript(session.ID, messages, category)
	}

	if err := os.Remove(oldPath); err != nil {
		logging.Warn().Err(err).Str("file", oldPath).Msg("failed to remove legacy history file")
	}

	return session
}
