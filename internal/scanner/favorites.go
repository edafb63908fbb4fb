package scanner

import (
	"sort"

	"casework/internal/store"
)

// FavoriteIndex keeps the newest copy of each favorited file name.
type FavoriteIndex struct {
	entries map[string]store.Favorite
}

// NewFavoriteIndex returns an empty index.
func NewFavoriteIndex() *FavoriteIndex {
	return &FavoriteIndex{entries: make(map[string]store.Favorite)}
}

// Add records favorited files from records; non-favorites are ignored.
func (idx *FavoriteIndex) Add(records ...store.FileRecord) {
	for _, rec := range records {
		if !rec.Favorite || rec.IsDir() {
			continue
		}
		current, ok := idx.entries[rec.Name]
		if ok && !rec.ModifiedAt.After(current.ModifiedAt) {
			continue
		}
		idx.entries[rec.Name] = store.Favorite{
			Name:       rec.Name,
			CaseID:     rec.CaseID,
			Path:       rec.Path,
			Location:   rec.Location,
			ModifiedAt: rec.ModifiedAt,
		}
	}
}

// Lookup returns the newest copy of name.
func (idx *FavoriteIndex) Lookup(name string) (store.Favorite, bool) {
	fav, ok := idx.entries[name]
	return fav, ok
}

// Len reports the number of indexed names.
func (idx *FavoriteIndex) Len() int { return len(idx.entries) }

// Favorites returns the index sorted by name.
func (idx *FavoriteIndex) Favorites() []store.Favorite {
	out := make([]store.Favorite, 0, len(idx.entries))
	for _, fav := range idx.entries {
		out = append(out, fav)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
