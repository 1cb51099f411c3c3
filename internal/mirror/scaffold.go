package mirror

// ScaffoldEntry is one Book/Chapter/Page row of a series. Page.Content is
// not loaded.
type ScaffoldEntry struct {
	Book    Book
	Chapter Chapter
	Page    Page
}

// Scaffold is the flattened structure of a series ordered by Page ordinal.
type Scaffold []ScaffoldEntry

// KnownPages indexes the scaffold's entries by Page hash.
func (s Scaffold) KnownPages() map[string]ScaffoldEntry {
	known := make(map[string]ScaffoldEntry, len(s))
	for _, entry := range s {
		known[entry.Page.Hash] = entry
	}
	return known
}

// Last returns the entry with the highest Page ordinal.
func (s Scaffold) Last() (ScaffoldEntry, bool) {
	if len(s) == 0 {
		return ScaffoldEntry{}, false
	}
	return s[len(s)-1], true
}

// Books returns the distinct books in ordinal order of first appearance.
func (s Scaffold) Books() []Book {
	seen := make(map[int64]struct{})
	var books []Book
	for _, entry := range s {
		if _, ok := seen[entry.Book.ID]; ok {
			continue
		}
		seen[entry.Book.ID] = struct{}{}
		books = append(books, entry.Book)
	}
	return books
}
