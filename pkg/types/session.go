// Package types provides the core data types for the TagForge engine.
package types

import (
	"fmt"
	"strings"
	"time"
)

// Category partitions sessions into the chat and generator domains.
type Category string

const (
	CategoryChat      Category = "chat"
	CategoryGenerator Category = "generator"
)

// Categories lists every known category, in display order.
func Categories() []Category {
	return []Category{CategoryChat, CategoryGenerator}
}

// ParseCategory normalizes a category string. Old session files used "tag"
// for what is now the generator category.
func ParseCategory(s string) (Category, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "chat":
		return CategoryChat, nil
	case "generator", "tag":
		return CategoryGenerator, nil
	default:
		return "", fmt.Errorf("unknown category: %q", s)
	}
}

// Session is the summary record for one conversation thread. The full
// transcript lives in its own file; a Session row is what the index and the
// session browser carry around.
type Session struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	CreatedAt    int64  `json:"createdAt"`
	LastModified int64  `json:"lastModified"`
	MessageCount int    `json:"messageCount"`
	PreviewText  string `json:"previewText"`

	// Active marks the session currently shown in the UI. It is a selection
	// hint only and carries no meaning after a restart.
	Active bool `json:"active,omitempty"`
}

// NewSessionID allocates a session id of the form <category>_<timestamp>.
// Ids are immutable once created.
func NewSessionID(category Category) string {
	return fmt.Sprintf("%s_%d", category, time.Now().UnixMilli())
}

// MigratedSessionID allocates an id for a session synthesized from a legacy
// flat transcript file.
func MigratedSessionID(category Category) string {
	return fmt.Sprintf("%s_migrated_%d", category, time.Now().UnixMilli())
}

// Category derives the owning category from the id prefix. Legacy ids that
// start with "tag_" belong to the generator category.
func (s *Session) Category() Category {
	if strings.HasPrefix(s.ID, string(CategoryChat)+"_") {
		return CategoryChat
	}
	return CategoryGenerator
}

// SessionIndex is the per-category summary cache over transcript files. It is
// rebuildable from disk and never the source of truth.
type SessionIndex struct {
	Sessions []Session `json:"sessions"`
}
