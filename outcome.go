package annostore

import "github.com/hupe1980/annostore/model"

// WriteOutcome reports how far a mutating operation propagated.
//
// The canonical write either happened or the operation returned an
// error; the outcome only distinguishes whether the index mirror was
// brought up to date as well.
type WriteOutcome int

const (
	// OutcomeCommitted: the record store write succeeded and the mirror
	// reflects it (or indexing is disabled, in which case there is
	// nothing to reflect).
	OutcomeCommitted WriteOutcome = iota
	// OutcomePartiallyCommitted: the record store write succeeded but
	// the mirror update failed. The note is durable; search may lag
	// until the next write for the same note or the next rebuild.
	OutcomePartiallyCommitted
)

// String returns a string representation of the outcome.
func (o WriteOutcome) String() string {
	switch o {
	case OutcomeCommitted:
		return "committed"
	case OutcomePartiallyCommitted:
		return "partially-committed"
	default:
		return "unknown"
	}
}

// WriteResult is the result of a mutating operation.
type WriteResult struct {
	// Note is the note as committed, zero for deletes.
	Note model.Note
	// Outcome reports mirror propagation.
	Outcome WriteOutcome
}

// SearchSource identifies which backing store served a search.
type SearchSource int

const (
	// SearchSourceIndex: the index mirror served the query.
	SearchSourceIndex SearchSource = iota
	// SearchSourceRecords: the record store fallback served the query.
	SearchSourceRecords
)

// String returns a string representation of the source.
func (s SearchSource) String() string {
	switch s {
	case SearchSourceIndex:
		return "index"
	case SearchSourceRecords:
		return "records"
	default:
		return "unknown"
	}
}

// SearchResult is a ranked (index path) or recency-ordered (fallback
// path) result set, together with the store that produced it. The two
// paths make no promise of identical ranking or completeness.
type SearchResult struct {
	Notes  []model.Note
	Source SearchSource
}
