package history

import (
	"strings"
	"time"

	"github.com/tagforge/tagforge/pkg/types"
)

const (
	titleMaxLen   = 50
	previewMaxLen = 100
)

func nowMillis() int64 {
	return time.Now().UnixMilli()
}

// fallbackTitle is used when a transcript has no user message yet.
func fallbackTitle() string {
	return "Chat - " + time.Now().Format("2006-01-02 15:04")
}

// DeriveTitle derives a session title from the first user message: newlines
// collapsed to spaces, cut at 50 characters on a space boundary with a
// trailing ellipsis. Without a user message the timestamp fallback is used.
func DeriveTitle(messages []*types.Message) string {
	for _, msg := range messages {
		if msg.Role != types.RoleUser {
			continue
		}

		text := strings.Join(strings.Fields(msg.Content), " ")
		if text == "" {
			break
		}

		runes := []rune(text)
		if len(runes) <= titleMaxLen {
			return text
		}

		cut := string(runes[:titleMaxLen])
		if idx := strings.LastIndex(cut, " "); idx > 0 {
			cut = cut[:idx]
		}
		return cut + "..."
	}

	return fallbackTitle()
}

// derivePreview takes the first assistant message, capped at 100 characters.
func derivePreview(messages []*types.Message) string {
	for _, msg := range messages {
		if msg.Role != types.RoleAssistant {
			continue
		}

		text := strings.TrimSpace(msg.Content)
		runes := []rune(text)
		if len(runes) > previewMaxLen {
			return string(runes[:previewMaxLen])
		}
		return text
	}
	return ""
}
