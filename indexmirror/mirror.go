package indexmirror

import (
	"context"
	"errors"

	"github.com/hupe1980/annostore/model"
)

// ErrUnavailable is the single failure class of the index mirror.
//
// Implementations must collapse every failure mode (connection refused,
// timeout, document-shape mismatch) into an error that satisfies
// `errors.Is(err, ErrUnavailable)`.
var ErrUnavailable = errors.New("index mirror unavailable")

// Document is the searchable projection of a note. The field set is
// fixed here, in one place, so the two stores cannot drift apart
// silently.
type Document struct {
	ID       string   `json:"id"`
	UserID   string   `json:"user"`
	CourseID string   `json:"course_id"`
	UsageID  string   `json:"usage_id"`
	Text     string   `json:"text"`
	Quote    string   `json:"quote"`
	Tags     []string `json:"tags"`
}

// FromNote projects a note to its index document.
func FromNote(n model.Note) Document {
	tags := n.Tags
	if tags == nil {
		tags = []string{}
	}
	return Document{
		ID:       n.ID,
		UserID:   n.UserID,
		CourseID: n.CourseID,
		UsageID:  n.UsageID,
		Text:     n.Text,
		Quote:    n.Quote,
		Tags:     tags,
	}
}

// Query is a full-text search with optional term filters.
type Query struct {
	// Text is matched against the text and tags fields. The quote is
	// stored but not searched, same as the record-store fallback.
	Text     string
	UserID   string
	CourseID string
	UsageIDs []string

	Limit  int
	Offset int
}

// Hit is a single ranked search result.
type Hit struct {
	ID    string
	Score float64
}

// Mirror is the index side of the dual store.
type Mirror interface {
	// Upsert creates or replaces the document. Last writer wins.
	Upsert(ctx context.Context, doc Document) error
	// Delete removes the document. Deleting an absent id is not an error.
	Delete(ctx context.Context, id string) error
	// Search returns ranked hits for the query.
	Search(ctx context.Context, q Query) ([]Hit, error)
	// IDs enumerates every document id, for the rebuild reconciliation
	// pass.
	IDs(ctx context.Context) ([]string, error)
	// Reset drops all documents, for a full rebuild.
	Reset(ctx context.Context) error
	// Ping reports whether the mirror is reachable.
	Ping(ctx context.Context) error
}

// BulkUpserter is an optional interface for mirrors that support
// batched writes. The rebuild job uses it when available.
type BulkUpserter interface {
	BulkUpsert(ctx context.Context, docs []Document) error
}
