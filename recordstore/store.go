package recordstore

import (
	"context"
	"errors"

	"github.com/hupe1980/annostore/model"
)

// ErrNotFound is returned when a note does not exist.
//
// Implementations must return an error that satisfies
// `errors.Is(err, ErrNotFound)`.
var ErrNotFound = errors.New("note not found")

// Filter narrows List results. Zero values mean "no constraint".
type Filter struct {
	UserID   string
	CourseID string
	// UsageIDs matches notes anchored to any of the given content blocks.
	UsageIDs []string
	// Text matches case-insensitive substrings of the note text or tags.
	// This is the lower-fidelity fallback for full-text search.
	Text string

	Limit  int
	Offset int

	// OrderByID switches from the default updated-descending order to
	// id-ascending, the stable order used by the rebuild walk.
	OrderByID bool
	// AfterID restricts results to ids strictly greater than the given
	// one. Combined with OrderByID this is a keyset cursor: unlike an
	// offset, it does not skip rows when earlier ones are deleted
	// between pages.
	AfterID string
}

// Store is the canonical storage of notes.
type Store interface {
	// Create persists a new note, assigning its ID and timestamps.
	Create(ctx context.Context, note model.Note) (model.Note, error)
	// Update applies the non-nil fields of upd and bumps Updated.
	Update(ctx context.Context, id string, upd model.Update) (model.Note, error)
	// Delete removes a note.
	Delete(ctx context.Context, id string) error
	// Get returns a note by id.
	Get(ctx context.Context, id string) (model.Note, error)
	// List returns notes matching the filter.
	List(ctx context.Context, f Filter) ([]model.Note, error)
	// Count returns the number of notes a user has in a course.
	Count(ctx context.Context, userID, courseID string) (int, error)
	// DeleteByUser removes every note owned by userID and returns the
	// deleted ids so the caller can mirror the deletes.
	DeleteByUser(ctx context.Context, userID string) ([]string, error)
	// Close releases the underlying resources.
	Close() error
}
