package resolver

// Listing categories.
const (
	ListRequires  = "REQUIRES"
	ListComponent = "COMPONENT"
	ListLibrary   = "LIBRARY"
	ListProgram   = "PROGRAM"
)

// Listing collects the names a configuration would request without doing any
// environment work. A session opened with WithListing records every facade
// call here and skips resolution entirely.
type Listing struct {
	entries map[string][]string
}

// NewListing creates an empty listing.
func NewListing() *Listing {
	return &Listing{entries: make(map[string][]string)}
}

func (l *Listing) add(category, name string) {
	if name == "" {
		return
	}
	l.entries[category] = append(l.entries[category], name)
}

// Entries returns the recorded names for a category in request order.
func (l *Listing) Entries(category string) []string {
	return append([]string(nil), l.entries[category]...)
}

// Categories returns the categories that have at least one entry.
func (l *Listing) Categories() []string {
	cats := make([]string, 0, len(l.entries))
	for c := range l.entries {
		cats = append(cats, c)
	}
	return cats
}
