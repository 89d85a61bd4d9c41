package model

import (
	"fmt"
	"time"
)

// Note is the canonical annotation record.
type Note struct {
	// ID is assigned by the record store on creation and never changes.
	ID string `json:"id"`
	// UserID is the anonymized id of the owning user.
	UserID string `json:"user"`
	// CourseID scopes the note to a course.
	CourseID string `json:"course_id"`
	// UsageID identifies the content block the quote comes from.
	UsageID string `json:"usage_id"`
	// Text is the user's thoughts on the quote.
	Text string `json:"text"`
	// Quote is the quoted source passage.
	Quote string `json:"quote"`
	// Ranges describes the position of the quote in the source document.
	// The engine round-trips them without interpretation.
	Ranges []Range `json:"ranges"`
	// Tags is a set of free-form labels.
	Tags []string `json:"tags"`

	Created time.Time `json:"created"`
	Updated time.Time `json:"updated"`
}

// Range is a single anchor descriptor: element paths plus character
// offsets delimiting the quoted passage.
type Range struct {
	Start       string `json:"start"`
	End         string `json:"end"`
	StartOffset int    `json:"startOffset"`
	EndOffset   int    `json:"endOffset"`
}

// Update carries the mutable fields of a note. Nil fields are left
// unchanged.
type Update struct {
	Text *string
	Tags *[]string
}

// ValidationError reports a malformed note field. It is a caller error,
// never retried.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid note: %s %s", e.Field, e.Reason)
}

// Validate checks the invariants required to create a note.
func (n *Note) Validate() error {
	if n.UserID == "" {
		return &ValidationError{Field: "user", Reason: "is required"}
	}
	if n.CourseID == "" {
		return &ValidationError{Field: "course_id", Reason: "is required"}
	}
	if n.UsageID == "" {
		return &ValidationError{Field: "usage_id", Reason: "is required"}
	}
	if len(n.Ranges) == 0 {
		return &ValidationError{Field: "ranges", Reason: "must contain at least one range"}
	}
	return nil
}

// Clone returns a deep copy of the note. Stores hand out clones so
// callers cannot mutate retained state through shared slices.
func (n Note) Clone() Note {
	c := n
	if n.Ranges != nil {
		c.Ranges = make([]Range, len(n.Ranges))
		copy(c.Ranges, n.Ranges)
	}
	if n.Tags != nil {
		c.Tags = make([]string, len(n.Tags))
		copy(c.Tags, n.Tags)
	}
	return c
}
