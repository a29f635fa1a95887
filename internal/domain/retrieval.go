package domain

// Filter restricts retrieval to chunks from the given sources.
// An empty source set means no restriction.
type Filter struct {
	Sources []string
}

// IsEmpty reports whether the filter places no restriction.
func (f Filter) IsEmpty() bool { return len(f.Sources) == 0 }

// Allows reports whether a chunk from sourceID passes the filter.
func (f Filter) Allows(sourceID string) bool {
	if f.IsEmpty() {
		return true
	}
	for _, s := range f.Sources {
		if s == sourceID {
			return true
		}
	}
	return false
}

// RetrievalResult is a single retrieved chunk with its similarity score in [0,1].
type RetrievalResult struct {
	Chunk Chunk
	Score float64
}
