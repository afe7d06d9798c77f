package history

import (
	"strings"

	"github.com/tagforge/tagforge/pkg/types"
)

// Filter selects which categories a catalog query covers.
type Filter int

const (
	FilterAll Filter = iota
	FilterChat
	FilterGenerator
)

// Catalog is the read-only aggregation over the store used by the session
// browser. Queries recompute synchronously; with session counts in the
// hundreds there is nothing to index incrementally.
type Catalog struct {
	store *Store
}

// NewCatalog creates a catalog over the store.
func NewCatalog(store *Store) *Catalog {
	return &Catalog{store: store}
}

// Sessions returns every session across all categories, most recent first.
func (c *Catalog) Sessions() []types.Session {
	var all []types.Session
	for _, category := range types.Categories() {
		all = append(all, c.store.LoadIndex(category)...)
	}
	sortByRecency(all)
	return all
}

// Search applies the text query and category filter to the merged list.
// The query matches case-insensitively against title and preview.
func (c *Catalog) Search(query string, filter Filter) []types.Session {
	query = strings.ToLower(strings.TrimSpace(query))

	var out []types.Session
	for _, sess := range c.Sessions() {
		if !matchesFilter(&sess, filter) {
			continue
		}
		if query != "" &&
			!strings.Contains(strings.ToLower(sess.Title), query) &&
			!strings.Contains(strings.ToLower(sess.PreviewText), query) {
			continue
		}
		out = append(out, sess)
	}
	return out
}

func matchesFilter(sess *types.Session, filter Filter) bool {
	switch filter {
	case FilterChat:
		return sess.Category() == types.CategoryChat
	case FilterGenerator:
		return sess.Category() == types.CategoryGenerator
	default:
		return true
	}
}
